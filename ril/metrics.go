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

import "github.com/prometheus/client_golang/prometheus"

var (
	requestsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "legacy_ril",
			Name:      "requests_sent_total",
			Help:      "Requests written to the modem, by request code.",
		},
		[]string{"request"},
	)
	repliesHandled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "legacy_ril",
			Name:      "replies_total",
			Help:      "Solicited replies, by handler and outcome.",
		},
		[]string{"handler", "outcome"},
	)
	eventsHandled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "legacy_ril",
			Name:      "events_total",
			Help:      "Unsolicited events, by handler and event code.",
		},
		[]string{"handler", "event"},
	)
	eventsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "legacy_ril",
			Name:      "events_dropped_total",
			Help:      "Events not delivered because a subscriber was full.",
		},
	)
	pendingRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "legacy_ril",
			Name:      "pending_requests",
			Help:      "Requests awaiting a reply.",
		},
	)
)

func init() {
	prometheus.MustRegister(requestsSent, repliesHandled, eventsHandled, eventsDropped, pendingRequests)
}
