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
)

// Reply is a solicited record: {type, serial, status, payload}.
type Reply struct {
	Serial uint32
	Status int32
	Result *Result
}

func (reply *Reply) Pack(writer io.Writer) error {
	p := NewParcel(nil)
	p.WriteInt32(int32(SolicitedResponse))
	p.WriteInt32(int32(reply.Serial))
	p.WriteInt32(reply.Status)
	if reply.Result != nil {
		if err := reply.Result.Pack(p); err != nil {
			return err
		}
	}
	if _, err := writer.Write(p.Bytes()); err != nil {
		return fmt.Errorf("failed to write reply %d: %w", reply.Serial, err)
	}
	return nil
}

// Unsolicited is an event record: {type, code, payload}.
type Unsolicited struct {
	Code   EventCode
	Result *Result
}

func (event *Unsolicited) Pack(writer io.Writer) error {
	p := NewParcel(nil)
	p.WriteInt32(int32(UnsolicitedResponse))
	p.WriteInt32(int32(event.Code))
	if event.Result != nil {
		if err := event.Result.Pack(p); err != nil {
			return err
		}
	}
	if _, err := writer.Write(p.Bytes()); err != nil {
		return fmt.Errorf("failed to write event %d: %w", event.Code, err)
	}
	return nil
}

// readHeader reads the solicited header without touching the payload.
func readHeader(p *Parcel) (serial uint32, status int32, err error) {
	s, err := p.ReadInt32("serial")
	if err != nil {
		return 0, 0, err
	}
	status, err = p.ReadInt32("status")
	if err != nil {
		return 0, 0, err
	}
	return uint32(s), status, nil
}
