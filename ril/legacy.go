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

// LegacyMap translates between firmware codes and canonical codes. It is
// built once and never mutated.
type LegacyMap struct {
	requests        map[RequestCode]RequestCode
	requestsReverse map[RequestCode]RequestCode
	events          map[EventCode]EventCode
	eventsReverse   map[EventCode]EventCode
}

// Legacy is the table for the firmware this module targets.
var Legacy = MustLegacyMap(
	map[RequestCode]RequestCode{
		legacySimGetAtrRequest:        SimGetAtrRequest,
		legacySimOpenChannelWithP2Req: SimOpenChannelWithP2Request,
		legacyGetAdnRecordRequest:     GetAdnRecordRequest,
		legacyUpdateAdnRecordRequest:  UpdateAdnRecordRequest,
	},
	map[EventCode]EventCode{
		legacyAdnInitDoneEvent: AdnInitDoneEvent,
		legacyAdnRecordsEvent:  AdnRecordsEvent,
	},
)

// NewLegacyMap builds a LegacyMap, rejecting tables where two legacy codes
// share a canonical code.
func NewLegacyMap(requests map[RequestCode]RequestCode, events map[EventCode]EventCode) (*LegacyMap, error) {
	m := &LegacyMap{
		requests:        make(map[RequestCode]RequestCode, len(requests)),
		requestsReverse: make(map[RequestCode]RequestCode, len(requests)),
		events:          make(map[EventCode]EventCode, len(events)),
		eventsReverse:   make(map[EventCode]EventCode, len(events)),
	}
	for legacy, canonical := range requests {
		if other, ok := m.requestsReverse[canonical]; ok {
			return nil, fmt.Errorf("request %d mapped from both %d and %d", canonical, other, legacy)
		}
		m.requests[legacy] = canonical
		m.requestsReverse[canonical] = legacy
	}
	for legacy, canonical := range events {
		if other, ok := m.eventsReverse[canonical]; ok {
			return nil, fmt.Errorf("event %d mapped from both %d and %d", canonical, other, legacy)
		}
		m.events[legacy] = canonical
		m.eventsReverse[canonical] = legacy
	}
	return m, nil
}

// MustLegacyMap is NewLegacyMap for package-level tables.
func MustLegacyMap(requests map[RequestCode]RequestCode, events map[EventCode]EventCode) *LegacyMap {
	m, err := NewLegacyMap(requests, events)
	if err != nil {
		panic(err)
	}
	return m
}

func (m *LegacyMap) ToCanonical(code RequestCode) (RequestCode, bool) {
	canonical, ok := m.requests[code]
	return canonical, ok
}

func (m *LegacyMap) ToLegacy(code RequestCode) (RequestCode, bool) {
	legacy, ok := m.requestsReverse[code]
	return legacy, ok
}

func (m *LegacyMap) EventToCanonical(code EventCode) (EventCode, bool) {
	canonical, ok := m.events[code]
	return canonical, ok
}

func (m *LegacyMap) EventToLegacy(code EventCode) (EventCode, bool) {
	legacy, ok := m.eventsReverse[code]
	return legacy, ok
}

// Owns reports whether code is a legacy wire request code.
func (m *LegacyMap) Owns(code RequestCode) bool {
	_, ok := m.requests[code]
	return ok
}
