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
	log "github.com/sirupsen/logrus"
)

// GenericHandler is the end of the handler chain. It completes any pending
// request with the raw payload and publishes unknown events as raw.
type GenericHandler struct {
	pending RequestTable
	events  *EventBus
}

func NewGenericHandler(pending RequestTable, events *EventBus) *GenericHandler {
	return &GenericHandler{pending: pending, events: events}
}

func (h *GenericHandler) HandleSolicited(p *Parcel) {
	serial, status, err := readHeader(p)
	if err != nil {
		log.Errorf("dropping solicited record: %v", err)
		repliesHandled.WithLabelValues("generic", "malformed").Inc()
		return
	}
	req, ok := h.pending.Take(serial)
	if !ok {
		log.Infof("serial %d has no pending request", serial)
		repliesHandled.WithLabelValues("generic", "unmatched").Inc()
		return
	}
	if status != 0 && p.DataAvail() == 0 {
		log.Debugf("%s< %s error %d", req.serialString(), req.Code, status)
		repliesHandled.WithLabelValues("generic", "error").Inc()
		req.complete(nil, &CommandError{Request: req.Code, Status: status})
		return
	}
	result := &Result{Kind: RawResult, Raw: p.Remaining()}
	log.Debugf("%s< %s %s", req.serialString(), req.Code, result)
	repliesHandled.WithLabelValues("generic", "ok").Inc()
	req.complete(result, nil)
}

func (h *GenericHandler) HandleUnsolicited(p *Parcel) {
	code, err := p.ReadInt32("event code")
	if err != nil {
		log.Errorf("dropping unsolicited record: %v", err)
		eventsHandled.WithLabelValues("generic", "malformed").Inc()
		return
	}
	event := Event{
		Code:   EventCode(code),
		Result: &Result{Kind: RawResult, Raw: p.Remaining()},
	}
	log.Debugf("[UNSL]< %s %s", event.Code, event.Result)
	eventsHandled.WithLabelValues("generic", "other").Inc()
	h.events.Publish(event)
}
