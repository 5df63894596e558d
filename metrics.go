// Copyright 2019 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmkv

import (
	"bytes"
	"fmt"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/prometheus/client_golang/prometheus"
)

// LevelMetrics holds per-level metrics: file count, total size, compaction
// score, and the bytes moved during compactions into the level.
type LevelMetrics struct {
	NumFiles     int64
	Size         uint64
	Score        float64
	BytesIn      uint64
	BytesMoved   uint64
	BytesRead    uint64
	BytesWritten uint64
}

// Add accumulates u's counters into m.
func (m *LevelMetrics) Add(u *LevelMetrics) {
	m.BytesIn += u.BytesIn
	m.BytesMoved += u.BytesMoved
	m.BytesRead += u.BytesRead
	m.BytesWritten += u.BytesWritten
}

// WriteAmp computes write amplification at this level: BytesWritten /
// BytesIn.
func (m *LevelMetrics) WriteAmp() float64 {
	if m.BytesIn == 0 {
		return 0
	}
	return float64(m.BytesWritten) / float64(m.BytesIn)
}

func (m *LevelMetrics) format(buf *bytes.Buffer) {
	fmt.Fprintf(buf, "%6d %9d %7.2f %9d %9d %9d %9d %7.1f\n",
		m.NumFiles, m.Size, m.Score, m.BytesIn, m.BytesMoved, m.BytesRead, m.BytesWritten, m.WriteAmp())
}

// CountMetrics tallies how many times a background job has run.
type CountMetrics struct {
	Count int64
}

// Metrics is the snapshot spec.md §5 names as DB.Metrics(): per-level file
// counts and sizes, and flush/compaction counters. It doubles as a
// prometheus.Collector so the engine can be registered directly with a
// prometheus.Registry.
type Metrics struct {
	Levels  [numLevels]LevelMetrics
	Flush   CountMetrics
	Compact CountMetrics

	getLatency   *hdrhistogram.Histogram
	writeLatency *hdrhistogram.Histogram
}

func newMetrics() *Metrics {
	m := &Metrics{}
	m.init()
	return m
}

// init allocates the latency histograms; Metrics is often embedded by value
// (versionSet.metrics), so this is called explicitly rather than relying on a
// constructor.
func (m *Metrics) init() {
	m.getLatency = hdrhistogram.New(1, 10_000_000, 3)
	m.writeLatency = hdrhistogram.New(1, 10_000_000, 3)
}

func (m *Metrics) recordGet(nanos int64)   { _ = m.getLatency.RecordValue(nanos) }
func (m *Metrics) recordWrite(nanos int64) { _ = m.writeLatency.RecordValue(nanos) }

// String renders a pretty-printed level/WAL/compaction table, in the
// teacher's "level__files____size___score" style.
func (m *Metrics) String() string {
	var buf bytes.Buffer
	var total LevelMetrics
	fmt.Fprintf(&buf, "level__files_____size___score_______in____moved_____read____write___w-amp\n")
	for level := 0; level < numLevels; level++ {
		l := &m.Levels[level]
		fmt.Fprintf(&buf, "%5d ", level)
		l.format(&buf)
		total.Add(l)
		total.NumFiles += l.NumFiles
		total.Size += l.Size
	}
	fmt.Fprintf(&buf, "total ")
	total.format(&buf)
	fmt.Fprintf(&buf, "flushes: %d  compactions: %d\n", m.Flush.Count, m.Compact.Count)
	return buf.String()
}

var (
	metricDescNumFiles = prometheus.NewDesc(
		"lsmkv_level_files", "Number of files at a level.", []string{"level"}, nil)
	metricDescSize = prometheus.NewDesc(
		"lsmkv_level_bytes", "Total size of files at a level.", []string{"level"}, nil)
	metricDescFlushes = prometheus.NewDesc(
		"lsmkv_flushes_total", "Number of memtable flushes.", nil, nil)
	metricDescCompactions = prometheus.NewDesc(
		"lsmkv_compactions_total", "Number of background compactions.", nil, nil)
	metricDescGetLatency = prometheus.NewDesc(
		"lsmkv_get_latency_ns", "Get call latency in nanoseconds.", []string{"quantile"}, nil)
)

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- metricDescNumFiles
	ch <- metricDescSize
	ch <- metricDescFlushes
	ch <- metricDescCompactions
	ch <- metricDescGetLatency
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	for level := 0; level < numLevels; level++ {
		lbl := fmt.Sprintf("%d", level)
		ch <- prometheus.MustNewConstMetric(metricDescNumFiles, prometheus.GaugeValue, float64(m.Levels[level].NumFiles), lbl)
		ch <- prometheus.MustNewConstMetric(metricDescSize, prometheus.GaugeValue, float64(m.Levels[level].Size), lbl)
	}
	ch <- prometheus.MustNewConstMetric(metricDescFlushes, prometheus.CounterValue, float64(m.Flush.Count))
	ch <- prometheus.MustNewConstMetric(metricDescCompactions, prometheus.CounterValue, float64(m.Compact.Count))
	if m.getLatency != nil {
		for _, q := range []float64{0.5, 0.95, 0.99} {
			ch <- prometheus.MustNewConstMetric(metricDescGetLatency, prometheus.GaugeValue,
				float64(m.getLatency.ValueAtQuantile(q*100)), fmt.Sprintf("%.2f", q))
		}
	}
}
