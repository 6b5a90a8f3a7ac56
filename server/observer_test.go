package server

import (
	"testing"
)

func TestMultiObserverFansOut(t *testing.T) {
	a := newCaptureObserver()
	b := newCaptureObserver()
	multi := NewMultiObserver(a, b)

	multi.Metric("RequestCount", 1, UnitCount, map[string]string{"Method": "GET"})
	multi.Event("info", "hello", map[string]interface{}{"k": "v"})

	for _, obs := range []*captureObserver{a, b} {
		if obs.metric("RequestCount") != 1 {
			t.Errorf("metric not fanned out: %v", obs.metrics)
		}
		if len(obs.events) != 1 {
			t.Errorf("event not fanned out: %v", obs.events)
		}
	}
}

func TestLogObserverLevels(t *testing.T) {
	obs := NewLogObserver("debug")
	// All levels must be accepted without panicking, nil fields included.
	for _, level := range []string{"debug", "info", "warn", "error", "unknown"} {
		obs.Event(level, "message", nil)
	}
	obs.Metric("RequestDuration", 12.5, UnitMilliseconds, nil)
}

func TestNoOpObserver(t *testing.T) {
	var obs Observer = NoOpObserver{}
	obs.Event("info", "ignored", nil)
	obs.Metric("ignored", 1, UnitCount, nil)
}
