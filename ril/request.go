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
	"fmt"
	"io"
	"time"
)

// ResultFunc receives the outcome of a request exactly once.
type ResultFunc func(result *Result, err error)

// Request is one outbound command. Code is the code put on the wire, which
// for intercepted operations is the legacy code.
type Request struct {
	Serial  uint32
	Code    RequestCode
	Payload *Parcel
	Result  ResultFunc
	Queued  time.Time
}

func (req *Request) Validate() error {
	if req.Code < 0 {
		return fmt.Errorf("%w: request code %d", ErrInvalidArgument, req.Code)
	}
	if req.Serial == 0 {
		return fmt.Errorf("request %s has no serial", req.Code)
	}
	return nil
}

// Pack writes {code, serial, payload}.
func (req *Request) Pack(writer io.Writer) error {
	if err := req.Validate(); err != nil {
		return err
	}
	out := NewParcel(make([]byte, 0, 2*Int32Size+req.payloadLen()))
	out.WriteInt32(int32(req.Code))
	out.WriteInt32(int32(req.Serial))
	if req.Payload != nil {
		out.WriteRaw(req.Payload.Bytes())
	}
	if _, err := writer.Write(out.Bytes()); err != nil {
		return fmt.Errorf("failed to write request %d: %w", req.Serial, err)
	}
	return nil
}

// Unpack reads a request written by Pack. The payload is left undecoded.
func (req *Request) Unpack(p *Parcel) error {
	code, err := p.ReadInt32("request code")
	if err != nil {
		return err
	}
	serial, err := p.ReadInt32("serial")
	if err != nil {
		return err
	}
	req.Code = RequestCode(code)
	req.Serial = uint32(serial)
	req.Payload = NewParcel(p.Remaining())
	return nil
}

func (req *Request) payloadLen() int {
	if req.Payload == nil {
		return 0
	}
	return len(req.Payload.Bytes())
}

func (req *Request) complete(result *Result, err error) {
	if req.Result != nil {
		req.Result(result, err)
	}
}

func (req *Request) serialString() string {
	return fmt.Sprintf("[%04d]", req.Serial)
}
