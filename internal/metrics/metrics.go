// Package metrics provides the counters the daemon's request router
// increments on every request, and a background printer that logs
// non-zero deltas periodically, matching the behavior of a
// lazily-initialized global counter set with a reporting thread.
package metrics

import (
	"log"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Sink is the narrow counter interface the request router depends on.
// Injected so tests can substitute a no-op or an assertable fake instead
// of registering real Prometheus collectors.
type Sink interface {
	IncReads()
	IncWrites()
	IncInvalidRequests()
	IncForwards()
	IncReplicationFailures()
}

// PrometheusSink is a Sink backed by real counters registered against a
// prometheus.Registerer, for code embedding the daemon. The daemon does
// not expose an HTTP scrape endpoint, and RunPeriodicSummary does not read
// these counters (cmd/crushd feeds it from an AtomicSink).
type PrometheusSink struct {
	reads               prometheus.Counter
	writes              prometheus.Counter
	invalidRequests     prometheus.Counter
	forwards            prometheus.Counter
	replicationFailures prometheus.Counter
}

// NewPrometheusSink registers the daemon's counters against reg and
// returns a Sink backed by them.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{
		reads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crushstore_reads_total",
			Help: "Total read_object and read_part requests served.",
		}),
		writes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crushstore_writes_total",
			Help: "Total write_object, write_part, and delete requests served.",
		}),
		invalidRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crushstore_invalid_requests_total",
			Help: "Total datagrams dropped for failing to parse or authenticate.",
		}),
		forwards: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crushstore_forwards_total",
			Help: "Total requests forwarded to another daemon.",
		}),
		replicationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crushstore_replication_failures_total",
			Help: "Total secondary replication attempts that did not complete.",
		}),
	}
	reg.MustRegister(s.reads, s.writes, s.invalidRequests, s.forwards, s.replicationFailures)
	return s
}

func (s *PrometheusSink) IncReads()               { s.reads.Inc() }
func (s *PrometheusSink) IncWrites()              { s.writes.Inc() }
func (s *PrometheusSink) IncInvalidRequests()     { s.invalidRequests.Inc() }
func (s *PrometheusSink) IncForwards()            { s.forwards.Inc() }
func (s *PrometheusSink) IncReplicationFailures() { s.replicationFailures.Inc() }

// NoopSink discards every increment, for callers that want no metrics at
// all.
type NoopSink struct{}

func (NoopSink) IncReads()               {}
func (NoopSink) IncWrites()              {}
func (NoopSink) IncInvalidRequests()     {}
func (NoopSink) IncForwards()            {}
func (NoopSink) IncReplicationFailures() {}

// AtomicSink is a Sink backed by plain atomic counters, readable back via
// Snapshot without touching Prometheus internals. Useful standalone, and
// as the thing RunPeriodicSummary reads from when no Prometheus registry
// is wired in.
type AtomicSink struct {
	reads, writes, invalidRequests, forwards, replicationFailures atomic.Int64
}

func (s *AtomicSink) IncReads()               { s.reads.Add(1) }
func (s *AtomicSink) IncWrites()              { s.writes.Add(1) }
func (s *AtomicSink) IncInvalidRequests()     { s.invalidRequests.Add(1) }
func (s *AtomicSink) IncForwards()            { s.forwards.Add(1) }
func (s *AtomicSink) IncReplicationFailures() { s.replicationFailures.Add(1) }

// Snapshot returns the current read/write/invalid-request totals, for
// RunPeriodicSummary or ad hoc inspection.
func (s *AtomicSink) Snapshot() (reads, writes, invalid int64) {
	return s.reads.Load(), s.writes.Load(), s.invalidRequests.Load()
}

// RunPeriodicSummary logs non-zero deltas in the three counters snapshot
// returns (reads, writes, invalid requests) every interval, until stop is
// closed. Mirrors a lazily-started background
// printer thread, adapted to stop cleanly on shutdown instead of
// running forever.
func RunPeriodicSummary(stop <-chan struct{}, interval time.Duration, snapshot func() (reads, writes, invalid int64)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastReads, lastWrites, lastInvalid int64
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			reads, writes, invalid := snapshot()
			if reads != lastReads || writes != lastWrites || invalid != lastInvalid {
				log.Printf("last %s: %d reads, %d writes, %d invalid requests",
					interval, reads-lastReads, writes-lastWrites, invalid-lastInvalid)
				lastReads, lastWrites, lastInvalid = reads, writes, invalid
			}
		}
	}
}
