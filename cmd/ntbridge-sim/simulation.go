package main

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/ntbridge/ntbridge-go/pkg/value"
)

// Demo topics published by the simulator.
const (
	TopicUptime  = "/sim/uptime"
	TopicCounter = "/sim/counter"
	TopicWave    = "/sim/wave"
	TopicEnabled = "/sim/enabled"
	TopicMode    = "/sim/mode"
)

var modes = []string{"disabled", "autonomous", "teleop", "test"}

// Setter publishes a value from the server side.
type Setter interface {
	Set(name string, v value.Value) error
}

// Simulator writes a changing set of demo topics at a fixed rate.
type Simulator struct {
	target   Setter
	interval time.Duration
	logger   *slog.Logger

	start time.Time
	tick  uint64
}

// NewSimulator creates a simulator publishing to target every interval.
func NewSimulator(target Setter, interval time.Duration, logger *slog.Logger) *Simulator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Simulator{target: target, interval: interval, logger: logger}
}

// Run publishes until ctx ends.
func (s *Simulator) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.start = time.Now()
	s.Step(s.start)
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.Step(now)
		}
	}
}

// Step publishes one round of demo values for the time now.
func (s *Simulator) Step(now time.Time) {
	if s.start.IsZero() {
		s.start = now
	}
	elapsed := now.Sub(s.start).Seconds()

	updates := []struct {
		topic string
		v     value.Value
	}{
		{TopicUptime, value.Float(elapsed)},
		{TopicCounter, value.Float(float64(s.tick))},
		{TopicWave, value.Float(math.Round(math.Sin(elapsed/5*2*math.Pi)*1000) / 1000)},
		{TopicEnabled, value.Boolean(s.tick/10%2 == 0)},
		{TopicMode, value.String(modes[s.tick/20%uint64(len(modes))])},
	}
	for _, u := range updates {
		if err := s.target.Set(u.topic, u.v); err != nil {
			s.logger.Warn("demo update failed", "topic", u.topic, "error", err)
		}
	}
	s.logger.Debug("demo values published", "tick", s.tick)
	s.tick++
}
