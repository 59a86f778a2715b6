/*
Copyright (c) The ptpcore Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package wire

import "github.com/ptpengine/ptpcore/errkind"

// maxNanoseconds is the boundary from 5.3.3: nanoseconds must stay
// below one second; 999_999_999 is valid, 1_000_000_000 is not.
const maxNanoseconds = 1_000_000_000

// Validate reports errkind.ErrInvalidTimestamp if Nanoseconds has
// rolled over into the next second.
func (t Timestamp) Validate() error {
	if t.Nanoseconds >= maxNanoseconds {
		return errkind.ErrInvalidTimestamp
	}
	return nil
}
