// Package quality samples link quality and decides the outgoing audio bitrate.
package quality

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Duet/internal/core"
)

const (
	DefaultInterval         = 5 * time.Second
	DefaultLowBandwidthKbps = 500
	LowBitrate              = 20_000
	NormalBitrate           = 64_000
)

type Policy struct {
	LowBandwidthKbps float64
	LowBitrate       int
	NormalBitrate    int
}

func DefaultPolicy() Policy {
	return Policy{
		LowBandwidthKbps: DefaultLowBandwidthKbps,
		LowBitrate:       LowBitrate,
		NormalBitrate:    NormalBitrate,
	}
}

// Decide returns the max audio bitrate for the sampled link. An unknown
// downlink (zero) does not count as low bandwidth.
func (p Policy) Decide(q core.LinkQuality) int {
	lowBandwidth := q.DownlinkKbps > 0 && q.DownlinkKbps < p.LowBandwidthKbps
	if lowBandwidth || q.Class.LowTier() {
		return p.LowBitrate
	}
	return p.NormalBitrate
}

// Monitor periodically samples a probe and reports bitrate decisions.
// onDecision is only called when the decision changes.
type Monitor struct {
	probe      core.LinkProbe
	policy     Policy
	interval   time.Duration
	onDecision func(bps int)
	logger     zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	last   int
}

func NewMonitor(probe core.LinkProbe, policy Policy, interval time.Duration, onDecision func(bps int)) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{
		probe:      probe,
		policy:     policy,
		interval:   interval,
		onDecision: onDecision,
		logger:     log.With().Str("module", "quality").Logger(),
	}
}

// Start launches the sampling loop. Calling Start on a running monitor is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.loop(ctx, m.done)
	m.logger.Debug().Dur("interval", m.interval).Msg("monitor started")
}

// Stop cancels the sampling loop and waits for it to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.last = 0
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	m.logger.Debug().Msg("monitor stopped")
}

func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancel != nil
}

func (m *Monitor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sample()
		}
	}
}

// Sample takes one reading and reports a changed decision.
func (m *Monitor) Sample() {
	q, err := m.probe.LinkQuality()
	if err != nil {
		m.logger.Warn().Err(err).Msg("link quality sample failed")
		return
	}
	bps := m.policy.Decide(q)

	m.mu.Lock()
	changed := bps != m.last
	m.last = bps
	m.mu.Unlock()
	if !changed {
		return
	}
	m.logger.Info().
		Float64("downlink_kbps", q.DownlinkKbps).
		Dur("rtt", q.RTT).
		Str("class", string(q.Class)).
		Int("bitrate", bps).
		Msg("audio bitrate decision")
	if m.onDecision != nil {
		m.onDecision(bps)
	}
}
