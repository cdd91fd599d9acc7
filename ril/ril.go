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
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mlipscombe/legacy-ril/transport"
	log "github.com/sirupsen/logrus"
)

const DefaultTimeout = 5 * time.Second

// RIL is one connection to the modem. It owns the pending table, the
// handler chain and the single reader goroutine for the connection.
type RIL struct {
	URI     *url.URL
	Timeout time.Duration

	conn       *transport.Conn
	pending    *PendingTable
	events     *EventBus
	dispatcher *Dispatcher

	done      chan struct{}
	closeOnce sync.Once
	errMu     sync.Mutex
	err       error
}

// Dial connects to the modem at uri and starts reading.
func Dial(uri *url.URL, timeout time.Duration) (*RIL, error) {
	conn, err := transport.Dial(uri, timeout)
	if err != nil {
		return nil, err
	}
	r := NewRIL(conn)
	r.URI = uri
	if timeout > 0 {
		r.Timeout = timeout
	}
	return r, nil
}

// NewRIL starts a reader on an established connection.
func NewRIL(conn *transport.Conn) *RIL {
	pending := NewPendingTable()
	events := NewEventBus()
	r := &RIL{
		Timeout:    DefaultTimeout,
		conn:       conn,
		pending:    pending,
		events:     events,
		dispatcher: NewDispatcher(pending, Legacy, events, NewGenericHandler(pending, events)),
		done:       make(chan struct{}),
	}
	go r.listen()
	return r
}

func (r *RIL) listen() {
	for {
		frame, err := r.conn.ReadFrame()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Errorf("modem read failed: %v", err)
			}
			r.teardown(err)
			return
		}
		if err := r.dispatcher.Dispatch(NewParcel(frame)); err != nil {
			log.Errorf("failed to dispatch record: %v", err)
		}
	}
}

// teardown fails every outstanding request and ends event subscriptions.
func (r *RIL) teardown(cause error) {
	r.closeOnce.Do(func() {
		r.errMu.Lock()
		r.err = cause
		r.errMu.Unlock()
		close(r.done)

		for _, req := range r.pending.Drain() {
			req.complete(nil, ErrConnectionClosed)
		}
		r.events.Close()
	})
}

// Done is closed once the reader has stopped.
func (r *RIL) Done() <-chan struct{} {
	return r.done
}

// Err returns why the reader stopped, if it has.
func (r *RIL) Err() error {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	return r.err
}

func (r *RIL) Close() error {
	err := r.conn.Close()
	<-r.done
	return err
}

// Pending is the number of requests awaiting a reply.
func (r *RIL) Pending() int {
	return r.pending.Len()
}

// Subscribe receives unsolicited events until the returned func is called
// or the connection closes.
func (r *RIL) Subscribe(buffer int) (<-chan Event, func()) {
	return r.events.Subscribe(buffer)
}

// SendAsync registers a request and writes it to the modem. When it
// returns a non-nil error cb is never called; otherwise cb is called
// exactly once, by the reader goroutine or by connection teardown.
func (r *RIL) SendAsync(code RequestCode, payload *Parcel, cb ResultFunc) (uint32, error) {
	select {
	case <-r.done:
		return 0, ErrConnectionClosed
	default:
	}

	if code < 0 {
		return 0, fmt.Errorf("%w: request code %d", ErrInvalidArgument, code)
	}

	req := r.pending.Register(code, payload, cb)

	packet := new(bytes.Buffer)
	if err := req.Pack(packet); err != nil {
		if _, ok := r.pending.Take(req.Serial); ok {
			return req.Serial, err
		}
		return req.Serial, nil
	}

	log.Debugf("%s> %s", req.serialString(), describe(code))

	if err := r.conn.WriteFrame(packet.Bytes()); err != nil {
		if _, ok := r.pending.Take(req.Serial); ok {
			return req.Serial, err
		}
		// Teardown already delivered ErrConnectionClosed to cb.
		return req.Serial, nil
	}
	requestsSent.WithLabelValues(describe(code)).Inc()

	// The reader may have drained the table before this request was added.
	select {
	case <-r.done:
		if _, ok := r.pending.Take(req.Serial); ok {
			return req.Serial, ErrConnectionClosed
		}
	default:
	}
	return req.Serial, nil
}

// Send is SendAsync that waits for the reply, the context, or Timeout.
func (r *RIL) Send(ctx context.Context, code RequestCode, payload *Parcel) (*Result, error) {
	type outcome struct {
		result *Result
		err    error
	}
	replies := make(chan outcome, 1)

	serial, err := r.SendAsync(code, payload, func(result *Result, err error) {
		replies <- outcome{result, err}
	})
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(r.Timeout)
	defer timer.Stop()

	select {
	case o := <-replies:
		return o.result, o.err
	case <-timer.C:
		err = ErrTimeout
	case <-ctx.Done():
		err = ctx.Err()
	}
	if _, ok := r.pending.Take(serial); ok {
		log.Debugf("[%04d] abandoned: %v", serial, err)
		return nil, err
	}
	// Lost the race with the reader; its delivery is imminent.
	o := <-replies
	return o.result, o.err
}

func describe(code RequestCode) string {
	if canonical, ok := Legacy.ToCanonical(code); ok {
		return canonical.String()
	}
	return code.String()
}

func wireCode(canonical RequestCode) RequestCode {
	legacy, ok := Legacy.ToLegacy(canonical)
	if !ok {
		panic(fmt.Errorf("%w: %s has no legacy code", ErrUnrecognizedOwnedCode, canonical))
	}
	return legacy
}

func atrPayload() *Parcel {
	const slotID = 0
	payload := NewParcel(nil)
	payload.WriteInt32(1)
	payload.WriteInt32(slotID)
	return payload
}

func (r *RIL) GetAtrAsync(cb ResultFunc) (uint32, error) {
	return r.SendAsync(wireCode(SimGetAtrRequest), atrPayload(), cb)
}

// GetAtr returns the SIM Answer To Reset as hex. An absent reply is "".
func (r *RIL) GetAtr(ctx context.Context) (string, error) {
	result, err := r.Send(ctx, wireCode(SimGetAtrRequest), atrPayload())
	if err != nil {
		return "", err
	}
	if result.Text == nil {
		return "", nil
	}
	return *result.Text, nil
}

// NormalizeAID validates an application identifier and returns it upper
// case.
func NormalizeAID(aid string) (string, error) {
	aid = strings.ToUpper(strings.TrimSpace(aid))
	if aid == "" {
		return "", fmt.Errorf("%w: empty AID", ErrInvalidArgument)
	}
	if _, err := hex.DecodeString(aid); err != nil {
		return "", fmt.Errorf("%w: AID %q: %v", ErrInvalidArgument, aid, err)
	}
	return aid, nil
}

func openChannelPayload(aid string, p2 byte) (*Parcel, error) {
	aid, err := NormalizeAID(aid)
	if err != nil {
		return nil, err
	}
	payload := NewParcel(nil)
	payload.WriteInt32(int32(p2))
	if err := payload.WriteStringValue(aid); err != nil {
		return nil, err
	}
	return payload, nil
}

func (r *RIL) OpenLogicalChannelAsync(aid string, p2 byte, cb ResultFunc) (uint32, error) {
	payload, err := openChannelPayload(aid, p2)
	if err != nil {
		return 0, err
	}
	return r.SendAsync(wireCode(SimOpenChannelWithP2Request), payload, cb)
}

// OpenLogicalChannel returns the channel id followed by any select
// response bytes, as reported by the modem.
func (r *RIL) OpenLogicalChannel(ctx context.Context, aid string, p2 byte) ([]int32, error) {
	payload, err := openChannelPayload(aid, p2)
	if err != nil {
		return nil, err
	}
	result, err := r.Send(ctx, wireCode(SimOpenChannelWithP2Request), payload)
	if err != nil {
		return nil, err
	}
	return result.Ints, nil
}

// GetAdnRecordAsync asks the modem to load the phonebook. Records arrive
// as AdnRecordsEvent.
func (r *RIL) GetAdnRecordAsync(cb ResultFunc) (uint32, error) {
	return r.SendAsync(wireCode(GetAdnRecordRequest), nil, cb)
}

func (r *RIL) GetAdnRecord(ctx context.Context) ([]int32, error) {
	result, err := r.Send(ctx, wireCode(GetAdnRecordRequest), nil)
	if err != nil {
		return nil, err
	}
	return result.Ints, nil
}

func updateAdnPayload(record *AdnRecord) (*Parcel, error) {
	if record == nil {
		return nil, fmt.Errorf("%w: nil record", ErrInvalidArgument)
	}
	if err := record.Validate(); err != nil {
		return nil, err
	}
	payload := NewParcel(nil)
	if err := record.Pack(payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func (r *RIL) UpdateAdnRecordAsync(record *AdnRecord, cb ResultFunc) (uint32, error) {
	payload, err := updateAdnPayload(record)
	if err != nil {
		return 0, err
	}
	log.Debugf("update adn record %s", record)
	return r.SendAsync(wireCode(UpdateAdnRecordRequest), payload, cb)
}

func (r *RIL) UpdateAdnRecord(ctx context.Context, record *AdnRecord) ([]int32, error) {
	payload, err := updateAdnPayload(record)
	if err != nil {
		return nil, err
	}
	result, err := r.Send(ctx, wireCode(UpdateAdnRecordRequest), payload)
	if err != nil {
		return nil, err
	}
	return result.Ints, nil
}

// SendRawAsync sends a request this layer does not special-case. Codes in
// the legacy table are refused: on this firmware their numbers mean the
// legacy operations.
func (r *RIL) SendRawAsync(code RequestCode, body []byte, cb ResultFunc) (uint32, error) {
	if err := checkRawCode(code); err != nil {
		return 0, err
	}
	payload := NewParcel(nil)
	payload.WriteRaw(body)
	return r.SendAsync(code, payload, cb)
}

func (r *RIL) SendRaw(ctx context.Context, code RequestCode, body []byte) ([]byte, error) {
	if err := checkRawCode(code); err != nil {
		return nil, err
	}
	payload := NewParcel(nil)
	payload.WriteRaw(body)
	result, err := r.Send(ctx, code, payload)
	if err != nil {
		return nil, err
	}
	return result.Raw, nil
}

func checkRawCode(code RequestCode) error {
	if Legacy.Owns(code) {
		return fmt.Errorf("%w: request %d is a legacy wire code", ErrInvalidArgument, code)
	}
	if _, ok := Legacy.ToLegacy(code); ok {
		return fmt.Errorf("%w: use the typed operation for %s", ErrInvalidArgument, code)
	}
	return nil
}
