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
	"sort"
	"strconv"
	"sync"

	cmp "github.com/google/go-cmp/cmp"
	"github.com/mlipscombe/legacy-ril/ril"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

const (
	statusTopic  = "phonebook/status"
	recordsTopic = "phonebook/records"
	countTopic   = "phonebook/count"
)

// Source is the part of *ril.RIL the monitor needs.
type Source interface {
	Subscribe(buffer int) (<-chan ril.Event, func())
	GetAdnRecordAsync(cb ril.ResultFunc) (uint32, error)
}

// Publisher is the part of *mqtt.Client the monitor needs.
type Publisher interface {
	Publish(topic string, val interface{}) error
	PublishMany(topic string, values map[string]interface{}) error
}

var (
	recordCount = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "legacy_ril",
		Subsystem: "phonebook",
		Name:      "records",
		Help:      "ADN records currently cached.",
	}, []string{"modem"})
	recordChanges = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "legacy_ril",
		Subsystem: "phonebook",
		Name:      "changes_total",
		Help:      "ADN records published because they changed.",
	}, []string{"modem"})
)

func init() {
	prometheus.MustRegister(recordCount, recordChanges)
}

// Monitor caches the SIM phonebook from ADN events and publishes records
// that changed.
type Monitor struct {
	source    Source
	publisher Publisher
	modem     string

	mu    sync.Mutex
	cache map[int32]ril.AdnRecord
}

func NewMonitor(source Source, publisher Publisher, modem string) *Monitor {
	return &Monitor{
		source:    source,
		publisher: publisher,
		modem:     modem,
		cache:     make(map[int32]ril.AdnRecord),
	}
}

// StartPhonebookMonitor subscribes to source and runs a Monitor until the
// subscription closes. The returned channel is signalled after the first
// batch of records is published.
func StartPhonebookMonitor(source Source, publisher Publisher, modem string, buffer int) chan bool {
	m := NewMonitor(source, publisher, modem)
	events, _ := source.Subscribe(buffer)
	ready := make(chan bool, 1)

	go m.Run(events, ready)

	return ready
}

// Run handles events until the channel closes.
func (m *Monitor) Run(events <-chan ril.Event, ready chan bool) {
	firstPublish := true
	for event := range events {
		switch event.Code {
		case ril.AdnInitDoneEvent:
			m.handleInitDone()
		case ril.AdnRecordsEvent:
			if event.Result == nil {
				continue
			}
			m.Apply(event.Result.Records)
			if firstPublish && ready != nil {
				select {
				case ready <- true:
				default:
				}
				firstPublish = false
			}
		}
	}
	log.Debugf("phonebook monitor for %s stopped", m.modem)
}

func (m *Monitor) handleInitDone() {
	log.Info("SIM phonebook initialised, loading records")
	if err := m.publisher.Publish(statusTopic, "ready"); err != nil {
		log.Errorf("failed to publish phonebook status: %v", err)
	}
	_, err := m.source.GetAdnRecordAsync(func(result *ril.Result, err error) {
		if err != nil {
			log.Errorf("failed to load phonebook: %v", err)
			return
		}
		log.Debugf("phonebook load accepted: %s", result)
	})
	if err != nil {
		log.Errorf("failed to request phonebook: %v", err)
	}
}

// Apply merges records into the cache and publishes those that changed. A
// record with no alpha tag and no number is an empty slot; its retained
// topic is cleared.
func (m *Monitor) Apply(records []ril.AdnRecord) map[string]interface{} {
	m.mu.Lock()
	changeSet := make(map[string]interface{})
	for _, record := range records {
		key := strconv.Itoa(int(record.Index))
		cached, ok := m.cache[record.Index]
		if isEmpty(record) {
			if ok {
				delete(m.cache, record.Index)
				changeSet[key] = nil
			}
			continue
		}
		if ok && cmp.Equal(cached, record) {
			continue
		}
		m.cache[record.Index] = record
		changeSet[key] = record
	}
	count := len(m.cache)
	m.mu.Unlock()

	recordCount.WithLabelValues(m.modem).Set(float64(count))
	if len(changeSet) == 0 {
		return changeSet
	}
	recordChanges.WithLabelValues(m.modem).Add(float64(len(changeSet)))
	if err := m.publisher.PublishMany(recordsTopic, changeSet); err != nil {
		log.Errorf("failed to publish phonebook records: %v", err)
	}
	if err := m.publisher.Publish(countTopic, strconv.Itoa(count)); err != nil {
		log.Errorf("failed to publish phonebook count: %v", err)
	}
	return changeSet
}

// Records returns the cached records ordered by index.
func (m *Monitor) Records() []ril.AdnRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	records := make([]ril.AdnRecord, 0, len(m.cache))
	for _, record := range m.cache {
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Index < records[j].Index
	})
	return records
}

func isEmpty(record ril.AdnRecord) bool {
	return record.AlphaTag == "" && record.Number == "" &&
		len(record.Emails) == 0 && len(record.AdNumbers) == 0
}
