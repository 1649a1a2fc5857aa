package services_test

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/esp32-home/iot-gateway/internal/services"
)

// TestLivenessService_StartStop tests the service lifecycle guards.
func TestLivenessService_StartStop(t *testing.T) {
	l := services.NewLivenessService(time.Second, 10*time.Millisecond, zerolog.Nop())

	err := l.Start()
	assert.NoError(t, err)

	// Try to start again (should fail)
	err = l.Start()
	assert.Error(t, err)
	assert.Equal(t, "liveness service is already running", err.Error())

	err = l.Stop()
	assert.NoError(t, err)

	// Try to stop again (should fail)
	err = l.Stop()
	assert.Error(t, err)
	assert.Equal(t, "liveness service is not running", err.Error())
}

// TestLivenessService_StartsDisconnected tests that no verdict is
// given before any evidence arrives.
func TestLivenessService_StartsDisconnected(t *testing.T) {
	l := services.NewLivenessService(time.Second, time.Second, zerolog.Nop())
	assert.False(t, l.IsConnected(time.Now()))
}

// TestLivenessService_EvidenceConnectsImmediately tests that any
// evidence message flips the link up at once.
func TestLivenessService_EvidenceConnectsImmediately(t *testing.T) {
	l := services.NewLivenessService(time.Second, time.Second, zerolog.Nop())

	now := time.Now()
	l.RecordEvidence(now)
	assert.True(t, l.IsConnected(now))
}

// TestLivenessService_TimeoutFlipsDisconnected tests the lazy timeout
// re-evaluation on read.
func TestLivenessService_TimeoutFlipsDisconnected(t *testing.T) {
	l := services.NewLivenessService(50*time.Millisecond, time.Hour, zerolog.Nop())

	now := time.Now()
	l.RecordEvidence(now)
	assert.True(t, l.IsConnected(now.Add(40*time.Millisecond)))
	assert.False(t, l.IsConnected(now.Add(60*time.Millisecond)))

	// New evidence restores the link immediately.
	later := now.Add(time.Second)
	l.RecordEvidence(later)
	assert.True(t, l.IsConnected(later))
}

// TestLivenessService_SweepDetectsSilence tests that silence alone is
// enough to flip the link down within one tick interval.
func TestLivenessService_SweepDetectsSilence(t *testing.T) {
	l := services.NewLivenessService(30*time.Millisecond, 10*time.Millisecond, zerolog.Nop())

	reconnects := make(chan struct{}, 2)
	l.SetReconnectHook(func() {
		reconnects <- struct{}{}
	})

	err := l.Start()
	assert.NoError(t, err)
	defer func() {
		assert.NoError(t, l.Stop())
	}()

	l.RecordEvidence(time.Now())
	select {
	case <-reconnects:
	case <-time.After(time.Second):
		t.Fatal("expected reconnect hook after first evidence")
	}

	// Stay silent past timeout + one tick and let the sweep flip the
	// link without any read.
	time.Sleep(60 * time.Millisecond)
	assert.False(t, l.IsConnected(time.Now()))

	// Evidence after the sweep-detected outage fires the hook again.
	l.RecordEvidence(time.Now())
	select {
	case <-reconnects:
	case <-time.After(time.Second):
		t.Fatal("expected reconnect hook after recovery")
	}
}
