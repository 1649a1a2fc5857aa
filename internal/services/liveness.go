package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LivenessService derives the device link's connected/disconnected
// status from the recency of evidence messages. A periodic sweep
// re-evaluates the timeout so silence alone, not just the next
// inbound message, flips the link to disconnected within one tick.
type LivenessService struct {
	Timeout      time.Duration
	TickInterval time.Duration
	Logger       zerolog.Logger

	mu             sync.Mutex
	lastEvidenceAt time.Time
	connected      bool
	onReconnect    func()

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewLivenessService initializes a monitor in the disconnected state.
func NewLivenessService(timeout, tickInterval time.Duration, logger zerolog.Logger) *LivenessService {
	return &LivenessService{
		Timeout:      timeout,
		TickInterval: tickInterval,
		Logger:       logger,
	}
}

// SetReconnectHook registers the callback fired on a
// disconnected-to-connected transition. Must be called before Start.
func (l *LivenessService) SetReconnectHook(hook func()) {
	l.mu.Lock()
	l.onReconnect = hook
	l.mu.Unlock()
}

// RecordEvidence marks the link alive at the given instant. A
// transition from disconnected fires the reconnect hook on its own
// goroutine so the MQTT handler is not held up by resync.
func (l *LivenessService) RecordEvidence(now time.Time) {
	l.mu.Lock()
	l.lastEvidenceAt = now
	reconnected := !l.connected
	l.connected = true
	hook := l.onReconnect
	l.mu.Unlock()

	if reconnected {
		l.Logger.Info().Time("at", now).Msg("Device link is up")
		if hook != nil {
			go hook()
		}
	}
}

// IsConnected recomputes the liveness verdict at the given instant.
func (l *LivenessService) IsConnected(now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.connected && now.Sub(l.lastEvidenceAt) > l.Timeout {
		l.connected = false
		l.Logger.Warn().
			Time("last_evidence", l.lastEvidenceAt).
			Dur("timeout", l.Timeout).
			Msg("Device link timed out")
	}
	return l.connected
}

// Start launches the periodic sweep in a separate goroutine.
func (l *LivenessService) Start() error {
	if l.ctx != nil {
		l.Logger.Warn().Msg("LivenessService is already running")
		return errors.New("liveness service is already running")
	}

	l.ctx, l.cancel = context.WithCancel(context.Background())

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.runSweepLoop()
	}()

	l.Logger.Info().
		Dur("timeout", l.Timeout).
		Dur("tick", l.TickInterval).
		Msg("LivenessService started successfully")
	return nil
}

// Stop gracefully stops the periodic sweep.
func (l *LivenessService) Stop() error {
	if l.ctx == nil {
		l.Logger.Warn().Msg("LivenessService is not running")
		return errors.New("liveness service is not running")
	}

	l.cancel()
	l.wg.Wait()

	l.ctx = nil
	l.cancel = nil

	l.Logger.Info().Msg("LivenessService stopped successfully")
	return nil
}

// runSweepLoop re-evaluates the timeout at a fixed interval,
// independent of message arrival.
func (l *LivenessService) runSweepLoop() {
	ticker := time.NewTicker(l.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.IsConnected(time.Now())
		case <-l.ctx.Done():
			l.Logger.Info().Msg("LivenessService stopping gracefully")
			return
		}
	}
}
