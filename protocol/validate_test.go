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

package protocol

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ptpengine/ptpcore/errkind"
	"github.com/ptpengine/ptpcore/wire"
)

func validAnnounce() *Announce {
	return &Announce{
		Header: Header{
			SdoIDAndMsgType: NewSdoIDAndMsgType(MessageAnnounce, 0),
			Version:         Version,
			MessageLength:   headerSize + 30,
		},
		AnnounceBody: AnnounceBody{
			OriginTimestamp: wire.Timestamp{Nanoseconds: 999_999_999},
			StepsRemoved:    255,
		},
	}
}

func TestAnnounceValidateAcceptsBoundaryValues(t *testing.T) {
	require.NoError(t, validAnnounce().Validate())
}

func TestAnnounceValidateRejectsOverflowedNanoseconds(t *testing.T) {
	a := validAnnounce()
	a.OriginTimestamp.Nanoseconds = 1_000_000_000
	err := a.Validate()
	require.Error(t, err)
	require.True(t, errors.Is(err, errkind.ErrInvalidTimestamp))
}

func TestAnnounceValidateRejectsStepsRemovedOverflow(t *testing.T) {
	a := validAnnounce()
	a.StepsRemoved = 256
	err := a.Validate()
	require.Error(t, err)
	require.True(t, errors.Is(err, errkind.ErrInvalidStepsRemoved))
}

func TestHeaderValidateRejectsWrongVersion(t *testing.T) {
	a := validAnnounce()
	a.Version = 1
	err := a.Validate()
	require.Error(t, err)
	require.True(t, errors.Is(err, errkind.ErrInvalidVersion))
}

func TestPDelayReqValidateRejectsNonZeroReserved(t *testing.T) {
	p := &PDelayReq{
		Header: Header{Version: Version, MessageLength: headerSize + 20},
	}
	p.Reserved[3] = 1
	err := p.Validate()
	require.Error(t, err)
	require.True(t, errors.Is(err, errkind.ErrInvalidReservedField))
}
