// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package xmetrics registers the indexer's prometheus counters and
// gauges. Unlike the teacher's metrics/prometheus package -- which
// adapts a geth-style internal metrics registry into a
// prometheus.Gatherer -- this module's counters are prometheus types
// from the start, so there is no adapter layer to write; metrics are
// created directly against a prometheus.Registry and served from it via
// promhttp.HandlerFor.
package xmetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every counter/gauge the pipeline and writer touch.
type Metrics struct {
	BlocksFetched       prometheus.Counter
	BatchesBuilt        prometheus.Counter
	BatchesCommitted    prometheus.Counter
	TipHeight           prometheus.Gauge
	WriterCommitLatency prometheus.Histogram
	MergeStripeWait     prometheus.Histogram
}

// New creates and registers a Metrics set against reg.
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		BlocksFetched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "btcindex",
			Name:      "blocks_fetched_total",
			Help:      "Number of blocks fetched from the block source.",
		}),
		BatchesBuilt: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "btcindex",
			Name:      "batches_built_total",
			Help:      "Number of batches produced by the batch builder.",
		}),
		BatchesCommitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "btcindex",
			Name:      "batches_committed_total",
			Help:      "Number of batches committed to storage.",
		}),
		TipHeight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "btcindex",
			Name:      "tip_height",
			Help:      "Height of the most recently committed block.",
		}),
		WriterCommitLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "btcindex",
			Name:      "writer_commit_latency_seconds",
			Help:      "Latency of Layer.Apply's pebble.Batch.Commit call.",
			Buckets:   prometheus.DefBuckets,
		}),
		MergeStripeWait: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "btcindex",
			Name:      "merge_stripe_wait_seconds",
			Help:      "Time spent waiting on a merge-stripe mutex during a batch commit.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// ObserveStripeWait implements chainkv.CommitObserver.
func (m *Metrics) ObserveStripeWait(d time.Duration) { m.MergeStripeWait.Observe(d.Seconds()) }

// ObserveCommitLatency implements chainkv.CommitObserver.
func (m *Metrics) ObserveCommitLatency(d time.Duration) { m.WriterCommitLatency.Observe(d.Seconds()) }

// SetTipHeight implements chainkv.CommitObserver.
func (m *Metrics) SetTipHeight(height uint32) { m.TipHeight.Set(float64(height)) }

// IncBatchesCommitted implements chainkv.CommitObserver.
func (m *Metrics) IncBatchesCommitted() { m.BatchesCommitted.Inc() }

// ObserveBlockFetched increments the blocks-fetched counter; it
// implements internal/pipeline.Metrics and is called by Pipeline.Run
// for every block it receives from the fetcher.
func (m *Metrics) ObserveBlockFetched() { m.BlocksFetched.Inc() }

// ObserveBatchBuilt increments the batches-built counter.
func (m *Metrics) ObserveBatchBuilt() { m.BatchesBuilt.Inc() }
