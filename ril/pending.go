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

import (
	"sort"
	"sync"
	"time"
)

// PendingTable tracks in-flight requests by serial. All methods are safe for
// concurrent use.
type PendingTable struct {
	mu       sync.Mutex
	lastSeq  uint32
	requests map[uint32]*Request
}

func NewPendingTable() *PendingTable {
	return &PendingTable{
		requests: make(map[uint32]*Request),
	}
}

// Register assigns the next free serial to a new request for code and
// stores it. Serial 0 is never issued.
func (t *PendingTable) Register(code RequestCode, payload *Parcel, cb ResultFunc) *Request {
	t.mu.Lock()
	defer t.mu.Unlock()

	for {
		t.lastSeq++
		if t.lastSeq == 0 {
			continue
		}
		if _, busy := t.requests[t.lastSeq]; !busy {
			break
		}
	}

	req := &Request{
		Serial:  t.lastSeq,
		Code:    code,
		Payload: payload,
		Result:  cb,
		Queued:  time.Now(),
	}
	t.requests[req.Serial] = req
	pendingRequests.Set(float64(len(t.requests)))
	return req
}

// Peek returns the pending request for serial without removing it.
func (t *PendingTable) Peek(serial uint32) (*Request, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	req, ok := t.requests[serial]
	return req, ok
}

// Take removes and returns the request for serial. For any serial at most
// one caller ever receives the request.
func (t *PendingTable) Take(serial uint32) (*Request, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	req, ok := t.requests[serial]
	if !ok {
		return nil, false
	}
	delete(t.requests, serial)
	pendingRequests.Set(float64(len(t.requests)))
	return req, true
}

func (t *PendingTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.requests)
}

// Drain removes every pending request and returns them in serial order.
func (t *PendingTable) Drain() []*Request {
	t.mu.Lock()
	out := make([]*Request, 0, len(t.requests))
	for serial, req := range t.requests {
		out = append(out, req)
		delete(t.requests, serial)
	}
	pendingRequests.Set(0)
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Serial < out[j].Serial
	})
	return out
}
