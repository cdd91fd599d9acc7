/*
 * This file is part of the legacy-ril distribution (https://github.com/mlipscombe/legacy-ril).
 * Copyright (c) 2021 Mark Lipscombe.
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, version 3.
 *
 * This program is distributed in the hope that it will be useful, but
 * WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the GNU
 * General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program. If not, see <http://www.gnu.org/licenses/>.
 */

package ril

import "fmt"

// RequestCode identifies a solicited request on the wire.
type RequestCode int32

// Canonical request codes understood by the generic telephony stack.
const (
	SetAllowedCarriersRequest   RequestCode = 136
	GetAllowedCarriersRequest   RequestCode = 137
	SimGetAtrRequest            RequestCode = 140
	SimOpenChannelWithP2Request RequestCode = 141
	GetAdnRecordRequest         RequestCode = 142
	UpdateAdnRecordRequest      RequestCode = 143
)

// Request codes emitted by the legacy firmware. They overlap canonical
// codes of unrelated requests, so they are only meaningful through the
// legacy table.
const (
	legacySimGetAtrRequest        RequestCode = 136
	legacySimOpenChannelWithP2Req RequestCode = 137
	legacyGetAdnRecordRequest     RequestCode = 138
	legacyUpdateAdnRecordRequest  RequestCode = 139
)

func (code RequestCode) String() string {
	switch code {
	case SimGetAtrRequest:
		return "SIM_GET_ATR"
	case SimOpenChannelWithP2Request:
		return "CAF_SIM_OPEN_CHANNEL_WITH_P2"
	case GetAdnRecordRequest:
		return "GET_ADN_RECORD"
	case UpdateAdnRecordRequest:
		return "UPDATE_ADN_RECORD"
	}
	return fmt.Sprintf("REQUEST_%d", int32(code))
}

// EventCode identifies an unsolicited event on the wire.
type EventCode int32

const (
	AdnInitDoneEvent       EventCode = 1048
	AdnRecordsEvent        EventCode = 1049
	legacyAdnInitDoneEvent EventCode = 1046
	legacyAdnRecordsEvent  EventCode = 1047
)

func (code EventCode) String() string {
	switch code {
	case AdnInitDoneEvent:
		return "UNSOL_RESPONSE_ADN_INIT_DONE"
	case AdnRecordsEvent:
		return "UNSOL_RESPONSE_ADN_RECORDS"
	}
	return fmt.Sprintf("UNSOL_%d", int32(code))
}

// ResponseType is the first word of every inbound record.
type ResponseType int32

const (
	SolicitedResponse   ResponseType = 0
	UnsolicitedResponse ResponseType = 1
)

// Event is an unsolicited notification delivered to subscribers.
type Event struct {
	Code   EventCode
	Result *Result
}
