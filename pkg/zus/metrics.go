// Copyright 2018 The Kura Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package zus

import (
	"time"

	"github.com/kurafs/zus/pkg/zufs"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the server's prometheus collectors, registered on a private
// registry so tests and embedders can run several servers side by side. A
// nil *Metrics records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	commands      *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	mounts        prometheus.Gauge
	mountFailures prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zus",
			Name:      "commands_total",
			Help:      "Commands handled, by operation and resulting errno.",
		}, []string{"op", "errno"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "zus",
			Name:      "command_duration_seconds",
			Help:      "Time spent handling a command, by operation.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		}, []string{"op"}),
		mounts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "zus",
			Name:      "mounts",
			Help:      "Live mount instances.",
		}),
		mountFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "zus",
			Name:      "mount_failures_total",
			Help:      "Mounts that failed and were rolled back.",
		}),
	}
	m.Registry.MustRegister(m.commands, m.latency, m.mounts, m.mountFailures)
	return m
}

func (m *Metrics) observe(op string, err error, start time.Time) {
	if m == nil {
		return
	}
	errno := "OK"
	if err != nil {
		errno = zufs.ToErrno(err).ErrnoName()
	}
	m.commands.WithLabelValues(op, errno).Inc()
	m.latency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *Metrics) mounted(delta float64) {
	if m == nil {
		return
	}
	m.mounts.Add(delta)
}

func (m *Metrics) mountFailed() {
	if m == nil {
		return
	}
	m.mountFailures.Inc()
}
