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
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/mlipscombe/legacy-ril/transport"
)

// mockModem plays the firmware side of a connection.
type mockModem struct {
	t        *testing.T
	conn     *transport.Conn
	requests chan *Request
}

func newTestRIL(t *testing.T) (*RIL, *mockModem) {
	t.Helper()
	client, server := net.Pipe()

	r := NewRIL(transport.New(client))
	r.Timeout = 2 * time.Second

	m := &mockModem{
		t:        t,
		conn:     transport.New(server),
		requests: make(chan *Request, 16),
	}
	go m.serve()

	t.Cleanup(func() {
		r.Close()
		m.conn.Close()
	})
	return r, m
}

func (m *mockModem) serve() {
	for {
		frame, err := m.conn.ReadFrame()
		if err != nil {
			close(m.requests)
			return
		}
		var req Request
		if err := req.Unpack(NewParcel(frame)); err != nil {
			m.t.Errorf("modem failed to unpack request: %v", err)
			continue
		}
		m.requests <- &req
	}
}

// next waits for the next request written by the RIL.
func (m *mockModem) next() *Request {
	m.t.Helper()
	select {
	case req, ok := <-m.requests:
		if !ok {
			m.t.Fatal("modem connection closed")
		}
		return req
	case <-time.After(2 * time.Second):
		m.t.Fatal("timed out waiting for request")
	}
	return nil
}

func (m *mockModem) reply(reply *Reply) {
	m.t.Helper()
	buf := new(bytes.Buffer)
	if err := reply.Pack(buf); err != nil {
		m.t.Fatalf("reply Pack() error = %v", err)
	}
	if err := m.conn.WriteFrame(buf.Bytes()); err != nil {
		m.t.Fatalf("reply write error = %v", err)
	}
}

func (m *mockModem) event(event *Unsolicited) {
	m.t.Helper()
	buf := new(bytes.Buffer)
	if err := event.Pack(buf); err != nil {
		m.t.Fatalf("event Pack() error = %v", err)
	}
	if err := m.conn.WriteFrame(buf.Bytes()); err != nil {
		m.t.Fatalf("event write error = %v", err)
	}
}
