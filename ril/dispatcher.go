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

	log "github.com/sirupsen/logrus"
)

// Handler consumes inbound records. The parcel cursor sits just past the
// response type word when a Handle method is called.
type Handler interface {
	HandleSolicited(p *Parcel)
	HandleUnsolicited(p *Parcel)
}

// RequestTable is the view of the pending table the dispatcher needs.
type RequestTable interface {
	Peek(serial uint32) (*Request, bool)
	Take(serial uint32) (*Request, bool)
}

// Dispatcher claims replies to legacy requests and legacy events, and
// forwards every other record to next with the cursor where it found it.
type Dispatcher struct {
	pending RequestTable
	legacy  *LegacyMap
	events  *EventBus
	next    Handler
}

func NewDispatcher(pending RequestTable, legacy *LegacyMap, events *EventBus, next Handler) *Dispatcher {
	return &Dispatcher{
		pending: pending,
		legacy:  legacy,
		events:  events,
		next:    next,
	}
}

// Dispatch routes one complete inbound record by its response type.
func (d *Dispatcher) Dispatch(p *Parcel) error {
	responseType, err := p.ReadInt32("response type")
	if err != nil {
		return err
	}
	switch ResponseType(responseType) {
	case SolicitedResponse:
		d.HandleSolicited(p)
	case UnsolicitedResponse:
		d.HandleUnsolicited(p)
	default:
		return fmt.Errorf("unknown response type %d", responseType)
	}
	return nil
}

func (d *Dispatcher) HandleSolicited(p *Parcel) {
	start := p.Position()
	serial, status, err := readHeader(p)
	if err != nil {
		p.SetPosition(start)
		d.next.HandleSolicited(p)
		return
	}

	req, ok := d.pending.Peek(serial)
	if !ok || req.Serial != serial || !d.legacy.Owns(req.Code) {
		p.SetPosition(start)
		d.next.HandleSolicited(p)
		return
	}

	req, ok = d.pending.Take(serial)
	if !ok {
		log.Debugf("%04d already completed", serial)
		repliesHandled.WithLabelValues("legacy", "lost_race").Inc()
		return
	}

	canonical, ok := d.legacy.ToCanonical(req.Code)
	kind, known := ResponseKind(canonical)
	if !ok || !known {
		err := fmt.Errorf("%w: %d", ErrUnrecognizedOwnedCode, req.Code)
		log.Errorf("%s %v", req.serialString(), err)
		req.complete(nil, err)
		panic(err)
	}

	result, err := decodeReply(canonical, kind, status, p)
	if discarded := p.Remaining(); len(discarded) > 0 {
		log.Debugf("%s discarding %d trailing bytes", req.serialString(), len(discarded))
	}
	if err != nil {
		log.Debugf("%s< %s error %v", req.serialString(), canonical, err)
		repliesHandled.WithLabelValues("legacy", "error").Inc()
		req.complete(nil, err)
		return
	}
	log.Debugf("%s< %s %s", req.serialString(), canonical, result)
	repliesHandled.WithLabelValues("legacy", "ok").Inc()
	req.complete(result, nil)
}

// decodeReply decodes the payload when the status is success or bytes
// remain. Some failure replies carry a payload and are delivered as success.
func decodeReply(code RequestCode, kind ResultKind, status int32, p *Parcel) (result *Result, err error) {
	if status != 0 && p.DataAvail() == 0 {
		return nil, &CommandError{Request: code, Status: status}
	}
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("%w: %v", ErrMalformedResponse, r)
		}
	}()
	return UnpackResult(kind, p)
}

func (d *Dispatcher) HandleUnsolicited(p *Parcel) {
	start := p.Position()
	code, err := p.ReadInt32("event code")
	if err != nil {
		p.SetPosition(start)
		d.next.HandleUnsolicited(p)
		return
	}

	canonical, ok := d.legacy.EventToCanonical(EventCode(code))
	kind, known := EventKind(canonical)
	if !ok || !known {
		p.SetPosition(start)
		d.next.HandleUnsolicited(p)
		return
	}

	result, err := decodeEvent(kind, p)
	p.Remaining()
	if err != nil {
		log.Errorf("failed to decode %s: %v", canonical, err)
		eventsHandled.WithLabelValues("legacy", "malformed").Inc()
		return
	}
	log.Debugf("[UNSL]< %s %s", canonical, result)
	eventsHandled.WithLabelValues("legacy", canonical.String()).Inc()
	d.events.Publish(Event{Code: canonical, Result: result})
}

func decodeEvent(kind ResultKind, p *Parcel) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("%w: %v", ErrMalformedResponse, r)
		}
	}()
	return UnpackResult(kind, p)
}
