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
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// recordingHandler stands in for the base protocol handler.
type recordingHandler struct {
	solicited   []int
	unsolicited []int
	bytes       [][]byte
}

func (h *recordingHandler) HandleSolicited(p *Parcel) {
	h.solicited = append(h.solicited, p.Position())
	h.bytes = append(h.bytes, append([]byte(nil), p.Bytes()...))
}

func (h *recordingHandler) HandleUnsolicited(p *Parcel) {
	h.unsolicited = append(h.unsolicited, p.Position())
	h.bytes = append(h.bytes, append([]byte(nil), p.Bytes()...))
}

type delivery struct {
	result *Result
	err    error
	calls  int
}

func (d *delivery) sink(result *Result, err error) {
	d.result = result
	d.err = err
	d.calls++
}

type dispatcherFixture struct {
	pending    *PendingTable
	events     *EventBus
	fallback   *recordingHandler
	dispatcher *Dispatcher
}

func newDispatcherFixture() *dispatcherFixture {
	f := &dispatcherFixture{
		pending:  NewPendingTable(),
		events:   NewEventBus(),
		fallback: &recordingHandler{},
	}
	f.dispatcher = NewDispatcher(f.pending, Legacy, f.events, f.fallback)
	return f
}

// registerAt registers a request so that it receives serial.
func (f *dispatcherFixture) registerAt(serial uint32, code RequestCode, cb ResultFunc) *Request {
	f.pending.mu.Lock()
	f.pending.lastSeq = serial - 1
	f.pending.mu.Unlock()
	return f.pending.Register(code, nil, cb)
}

func replyParcel(t *testing.T, reply *Reply) *Parcel {
	t.Helper()
	p := NewParcel(nil)
	w := &parcelWriter{p}
	if err := reply.Pack(w); err != nil {
		t.Fatalf("Pack() error = %v", err)
	}
	return p
}

func eventParcel(t *testing.T, event *Unsolicited) *Parcel {
	t.Helper()
	p := NewParcel(nil)
	w := &parcelWriter{p}
	if err := event.Pack(w); err != nil {
		t.Fatalf("Pack() error = %v", err)
	}
	return p
}

type parcelWriter struct {
	p *Parcel
}

func (w *parcelWriter) Write(b []byte) (int, error) {
	w.p.WriteRaw(b)
	return len(b), nil
}

func TestDispatchOpenChannelReply(t *testing.T) {
	f := newDispatcherFixture()
	var got delivery
	req := f.registerAt(7, wireCode(SimOpenChannelWithP2Request), got.sink)
	if req.Serial != 7 {
		t.Fatalf("serial = %d, want 7", req.Serial)
	}

	p := replyParcel(t, &Reply{Serial: 7, Status: 0, Result: &Result{Kind: IntsResult, Ints: []int32{1, 2, 3}}})
	if err := f.dispatcher.Dispatch(p); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if got.calls != 1 {
		t.Fatalf("sink called %d times, want 1", got.calls)
	}
	if got.err != nil {
		t.Fatalf("sink error = %v", got.err)
	}
	if diff := cmp.Diff([]int32{1, 2, 3}, got.result.Ints); diff != "" {
		t.Errorf("ints mismatch (-want +got):\n%s", diff)
	}
	if f.pending.Len() != 0 {
		t.Errorf("pending Len() = %d, want 0", f.pending.Len())
	}
	if len(f.fallback.solicited) != 0 {
		t.Error("owned reply was forwarded")
	}
}

func TestDispatchForwardsUnownedWithCursorUnchanged(t *testing.T) {
	codes := []RequestCode{0, 12, SetAllowedCarriersRequest - 1, SimGetAtrRequest, UpdateAdnRecordRequest, 500}

	for _, code := range codes {
		t.Run(code.String(), func(t *testing.T) {
			f := newDispatcherFixture()
			var got delivery
			req := f.pending.Register(code, nil, got.sink)

			p := replyParcel(t, &Reply{Serial: req.Serial, Result: &Result{Kind: IntsResult, Ints: []int32{4}}})
			original := append([]byte(nil), p.Bytes()...)

			if _, err := p.ReadInt32("response type"); err != nil {
				t.Fatal(err)
			}
			before := p.Position()
			f.dispatcher.HandleSolicited(p)

			if diff := cmp.Diff([]int{before}, f.fallback.solicited); diff != "" {
				t.Fatalf("forwarded cursor mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(original, f.fallback.bytes[0]); diff != "" {
				t.Errorf("forwarded bytes modified (-want +got):\n%s", diff)
			}
			if got.calls != 0 {
				t.Error("unowned request was completed by the legacy dispatcher")
			}
			if f.pending.Len() != 1 {
				t.Errorf("pending Len() = %d, want 1", f.pending.Len())
			}
		})
	}
}

func TestDispatchForwardsUnknownSerial(t *testing.T) {
	f := newDispatcherFixture()
	p := replyParcel(t, &Reply{Serial: 99})
	if err := f.dispatcher.Dispatch(p); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if diff := cmp.Diff([]int{Int32Size}, f.fallback.solicited); diff != "" {
		t.Errorf("forwarded cursor mismatch (-want +got):\n%s", diff)
	}
}

func TestDispatchForwardsShortHeader(t *testing.T) {
	f := newDispatcherFixture()
	p := NewParcel(nil)
	p.WriteInt32(int32(SolicitedResponse))
	p.WriteRaw([]byte{0x01, 0x00})
	if err := f.dispatcher.Dispatch(p); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if diff := cmp.Diff([]int{Int32Size}, f.fallback.solicited); diff != "" {
		t.Errorf("forwarded cursor mismatch (-want +got):\n%s", diff)
	}
}

func TestDispatchEmptyAtrReply(t *testing.T) {
	f := newDispatcherFixture()
	var got delivery
	f.registerAt(42, wireCode(SimGetAtrRequest), got.sink)

	f.dispatcher.Dispatch(replyParcel(t, &Reply{Serial: 42, Status: 0}))

	if got.calls != 1 || got.err != nil {
		t.Fatalf("sink calls=%d err=%v, want one success", got.calls, got.err)
	}
	if got.result.Kind != TextResult || got.result.Text != nil {
		t.Errorf("result = %s, want absent text", got.result)
	}
}

func TestDispatchErrorStatus(t *testing.T) {
	f := newDispatcherFixture()
	var got delivery
	req := f.pending.Register(wireCode(UpdateAdnRecordRequest), nil, got.sink)

	f.dispatcher.Dispatch(replyParcel(t, &Reply{Serial: req.Serial, Status: 2}))

	var cmdErr *CommandError
	if !errors.As(got.err, &cmdErr) {
		t.Fatalf("sink error = %v, want *CommandError", got.err)
	}
	if cmdErr.Status != 2 || cmdErr.Request != UpdateAdnRecordRequest {
		t.Errorf("CommandError = %+v", cmdErr)
	}
	if got.result != nil {
		t.Errorf("result = %s, want nil", got.result)
	}
}

func TestDispatchErrorStatusWithPayload(t *testing.T) {
	f := newDispatcherFixture()
	var got delivery
	req := f.pending.Register(wireCode(SimOpenChannelWithP2Request), nil, got.sink)

	f.dispatcher.Dispatch(replyParcel(t, &Reply{
		Serial: req.Serial,
		Status: 5,
		Result: &Result{Kind: IntsResult, Ints: []int32{0x6a, 0x82}},
	}))

	if got.err != nil {
		t.Fatalf("sink error = %v, want payload delivered", got.err)
	}
	if diff := cmp.Diff([]int32{0x6a, 0x82}, got.result.Ints); diff != "" {
		t.Errorf("ints mismatch (-want +got):\n%s", diff)
	}
}

func TestDispatchMalformedReplyDeliversFailure(t *testing.T) {
	f := newDispatcherFixture()
	var got delivery
	req := f.pending.Register(wireCode(GetAdnRecordRequest), nil, got.sink)

	p := NewParcel(nil)
	p.WriteInt32(int32(SolicitedResponse))
	p.WriteInt32(int32(req.Serial))
	p.WriteInt32(0)
	p.WriteInt32(4)
	p.WriteInt32(1)

	f.dispatcher.Dispatch(p)

	if got.calls != 1 {
		t.Fatalf("sink called %d times, want 1", got.calls)
	}
	if !errors.Is(got.err, ErrMalformedResponse) {
		t.Errorf("sink error = %v, want ErrMalformedResponse", got.err)
	}
	if p.DataAvail() != 0 {
		t.Errorf("record not fully consumed: %d bytes left", p.DataAvail())
	}
	if f.pending.Len() != 0 {
		t.Errorf("pending Len() = %d, want 0", f.pending.Len())
	}
}

// racingTable sees the entry on Peek but loses it before Take, as when a
// timeout removes the request between the two calls.
type racingTable struct {
	req *Request
}

func (r *racingTable) Peek(serial uint32) (*Request, bool) {
	return r.req, r.req.Serial == serial
}

func (r *racingTable) Take(serial uint32) (*Request, bool) {
	return nil, false
}

func TestDispatchLostRace(t *testing.T) {
	var got delivery
	req := &Request{Serial: 11, Code: wireCode(SimGetAtrRequest), Result: got.sink}
	fallback := &recordingHandler{}
	d := NewDispatcher(&racingTable{req: req}, Legacy, NewEventBus(), fallback)

	d.Dispatch(replyParcel(t, &Reply{Serial: 11, Result: &Result{Kind: TextResult, Text: strPtr("3B")}}))

	if got.calls != 0 {
		t.Errorf("sink called %d times after lost race, want 0", got.calls)
	}
	if len(fallback.solicited) != 0 {
		t.Error("lost race was forwarded")
	}
}

func TestDispatchUnrecognizedOwnedCodePanics(t *testing.T) {
	broken := MustLegacyMap(map[RequestCode]RequestCode{900: 901}, nil)
	pending := NewPendingTable()
	fallback := &recordingHandler{}
	d := NewDispatcher(pending, broken, NewEventBus(), fallback)

	var got delivery
	req := pending.Register(900, nil, got.sink)

	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, ErrUnrecognizedOwnedCode) {
			t.Errorf("recover() = %v, want ErrUnrecognizedOwnedCode", r)
		}
		if !errors.Is(got.err, ErrUnrecognizedOwnedCode) {
			t.Errorf("sink error = %v, want ErrUnrecognizedOwnedCode", got.err)
		}
	}()
	d.Dispatch(replyParcel(t, &Reply{Serial: req.Serial}))
}

func TestDispatchAdnRecordsEvent(t *testing.T) {
	f := newDispatcherFixture()
	events, cancel := f.events.Subscribe(1)
	defer cancel()

	record := AdnRecord{Index: 3, AlphaTag: "Mom", Number: "+15551234567", AdNumbers: []string{"+15559876543"}}
	p := eventParcel(t, &Unsolicited{
		Code:   legacyAdnRecordsEvent,
		Result: &Result{Kind: RecordsResult, Records: []AdnRecord{record}},
	})
	if err := f.dispatcher.Dispatch(p); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	select {
	case event := <-events:
		if event.Code != AdnRecordsEvent {
			t.Errorf("event code = %s, want %s", event.Code, AdnRecordsEvent)
		}
		if diff := cmp.Diff([]AdnRecord{record}, event.Result.Records, cmpopts.EquateEmpty()); diff != "" {
			t.Errorf("records mismatch (-want +got):\n%s", diff)
		}
	default:
		t.Fatal("no event delivered")
	}
}

func TestDispatchAdnInitDoneEvent(t *testing.T) {
	f := newDispatcherFixture()
	events, cancel := f.events.Subscribe(1)
	defer cancel()

	f.dispatcher.Dispatch(eventParcel(t, &Unsolicited{Code: legacyAdnInitDoneEvent}))

	select {
	case event := <-events:
		if event.Code != AdnInitDoneEvent || event.Result.Kind != VoidResult {
			t.Errorf("event = %s %s, want init done void", event.Code, event.Result.Kind)
		}
	default:
		t.Fatal("no event delivered")
	}
}

func TestDispatchForwardsUnownedEvent(t *testing.T) {
	f := newDispatcherFixture()
	events, cancel := f.events.Subscribe(1)
	defer cancel()

	p := eventParcel(t, &Unsolicited{Code: 1000, Result: &Result{Kind: RawResult, Raw: []byte{1, 2, 3, 4}}})
	original := append([]byte(nil), p.Bytes()...)
	f.dispatcher.Dispatch(p)

	if diff := cmp.Diff([]int{Int32Size}, f.fallback.unsolicited); diff != "" {
		t.Fatalf("forwarded cursor mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(original, f.fallback.bytes[0]); diff != "" {
		t.Errorf("forwarded bytes modified (-want +got):\n%s", diff)
	}
	select {
	case event := <-events:
		t.Errorf("unexpected event %s", event.Code)
	default:
	}
}

func TestDispatchMalformedEventDropped(t *testing.T) {
	f := newDispatcherFixture()
	events, cancel := f.events.Subscribe(1)
	defer cancel()

	p := NewParcel(nil)
	p.WriteInt32(int32(UnsolicitedResponse))
	p.WriteInt32(int32(legacyAdnRecordsEvent))
	p.WriteInt32(2)

	f.dispatcher.Dispatch(p)

	select {
	case event := <-events:
		t.Errorf("unexpected event %s", event.Code)
	default:
	}
	if len(f.fallback.unsolicited) != 0 {
		t.Error("owned event was forwarded")
	}
}

func TestDispatchUnknownResponseType(t *testing.T) {
	f := newDispatcherFixture()
	p := NewParcel(nil)
	p.WriteInt32(7)
	if err := f.dispatcher.Dispatch(p); err == nil {
		t.Error("Dispatch() expected error for unknown response type")
	}
}
