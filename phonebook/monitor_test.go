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

package phonebook

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/mlipscombe/legacy-ril/ril"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakePublisher struct {
	mu        sync.Mutex
	published map[string]interface{}
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{published: make(map[string]interface{})}
}

func (f *fakePublisher) Publish(topic string, val interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published[topic] = val
	return nil
}

func (f *fakePublisher) PublishMany(topic string, values map[string]interface{}) error {
	for key, val := range values {
		f.Publish(topic+"/"+key, val)
	}
	return nil
}

func (f *fakePublisher) get(topic string) (interface{}, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	val, ok := f.published[topic]
	return val, ok
}

type fakeSource struct {
	events chan ril.Event
	loads  chan struct{}
	err    error
}

func (f *fakeSource) Subscribe(int) (<-chan ril.Event, func()) {
	return f.events, func() {}
}

func (f *fakeSource) GetAdnRecordAsync(cb ril.ResultFunc) (uint32, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.loads <- struct{}{}
	cb(&ril.Result{Kind: ril.IntsResult, Ints: []int32{1}}, nil)
	return 1, nil
}

func TestApplyPublishesOnlyChanges(t *testing.T) {
	pub := newFakePublisher()
	m := NewMonitor(&fakeSource{}, pub, "apply")

	home := ril.AdnRecord{Index: 1, AlphaTag: "Home", Number: "5551234"}
	mom := ril.AdnRecord{Index: 3, AlphaTag: "Mom", Number: "+15551234567"}

	changes := m.Apply([]ril.AdnRecord{home, mom})
	if len(changes) != 2 {
		t.Fatalf("first Apply published %d records, want 2", len(changes))
	}

	momMoved := mom
	momMoved.Number = "+15550000000"
	changes = m.Apply([]ril.AdnRecord{home, momMoved})
	if diff := cmp.Diff(map[string]interface{}{"3": momMoved}, changes); diff != "" {
		t.Errorf("changes mismatch (-want +got):\n%s", diff)
	}

	got, ok := pub.get("phonebook/records/3")
	if !ok {
		t.Fatal("record 3 not published")
	}
	if diff := cmp.Diff(momMoved, got); diff != "" {
		t.Errorf("published record mismatch (-want +got):\n%s", diff)
	}
	if val, _ := pub.get("phonebook/count"); val != "2" {
		t.Errorf("count = %v, want 2", val)
	}
	if got := testutil.ToFloat64(recordCount.WithLabelValues("apply")); got != 2 {
		t.Errorf("records gauge = %v, want 2", got)
	}
	if got := testutil.ToFloat64(recordChanges.WithLabelValues("apply")); got != 3 {
		t.Errorf("changes counter = %v, want 3", got)
	}
}

func TestApplyClearsEmptySlots(t *testing.T) {
	pub := newFakePublisher()
	m := NewMonitor(&fakeSource{}, pub, "clear")

	m.Apply([]ril.AdnRecord{{Index: 2, AlphaTag: "Work", Number: "5559999"}})
	changes := m.Apply([]ril.AdnRecord{{Index: 2}, {Index: 7}})

	if diff := cmp.Diff(map[string]interface{}{"2": nil}, changes); diff != "" {
		t.Errorf("changes mismatch (-want +got):\n%s", diff)
	}
	if val, ok := pub.get("phonebook/records/2"); !ok || val != nil {
		t.Errorf("record 2 = %v, %v; want cleared", val, ok)
	}
	if _, ok := pub.get("phonebook/records/7"); ok {
		t.Error("empty slot 7 was published although it was never cached")
	}
	if len(m.Records()) != 0 {
		t.Errorf("Records() = %v, want none", m.Records())
	}
}

func TestRecordsSorted(t *testing.T) {
	m := NewMonitor(&fakeSource{}, newFakePublisher(), "sorted")
	m.Apply([]ril.AdnRecord{
		{Index: 9, AlphaTag: "C"},
		{Index: 1, AlphaTag: "A"},
		{Index: 4, AlphaTag: "B"},
	})

	var indexes []int32
	for _, record := range m.Records() {
		indexes = append(indexes, record.Index)
	}
	if diff := cmp.Diff([]int32{1, 4, 9}, indexes); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestStartPhonebookMonitor(t *testing.T) {
	source := &fakeSource{
		events: make(chan ril.Event, 4),
		loads:  make(chan struct{}, 1),
	}
	pub := newFakePublisher()
	ready := StartPhonebookMonitor(source, pub, "start", 4)

	source.events <- ril.Event{Code: ril.AdnInitDoneEvent, Result: &ril.Result{Kind: ril.VoidResult}}
	select {
	case <-source.loads:
	case <-time.After(2 * time.Second):
		t.Fatal("init done did not trigger a phonebook load")
	}

	source.events <- ril.Event{Code: 1009, Result: &ril.Result{Kind: ril.RawResult}}
	source.events <- ril.Event{Code: ril.AdnRecordsEvent, Result: &ril.Result{
		Kind:    ril.RecordsResult,
		Records: []ril.AdnRecord{{Index: 1, AlphaTag: "Home", Number: "5551234"}},
	}}

	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("monitor never signalled ready")
	}
	close(source.events)

	if val, _ := pub.get("phonebook/status"); val != "ready" {
		t.Errorf("status = %v, want ready", val)
	}
	if _, ok := pub.get("phonebook/records/1"); !ok {
		t.Error("record 1 not published")
	}
}

func TestInitDoneLoadFailure(t *testing.T) {
	source := &fakeSource{err: errors.New("connection closed")}
	pub := newFakePublisher()
	m := NewMonitor(source, pub, "fail")

	m.handleInitDone()

	if val, _ := pub.get("phonebook/status"); val != "ready" {
		t.Errorf("status = %v, want ready", val)
	}
}
