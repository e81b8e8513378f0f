package metrics

import (
	"testing"
	"time"
)

func TestAtomicSinkCounts(t *testing.T) {
	var s AtomicSink
	s.IncReads()
	s.IncReads()
	s.IncWrites()
	s.IncInvalidRequests()

	reads, writes, invalid := s.Snapshot()
	if reads != 2 || writes != 1 || invalid != 1 {
		t.Fatalf("snapshot = (%d, %d, %d), want (2, 1, 1)", reads, writes, invalid)
	}
}

func TestRunPeriodicSummaryStopsOnSignal(t *testing.T) {
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		RunPeriodicSummary(stop, time.Millisecond, func() (int64, int64, int64) { return 0, 0, 0 })
		close(done)
	}()
	close(stop)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunPeriodicSummary did not stop after stop signal")
	}
}
