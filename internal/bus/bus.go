// Package bus decouples telemetry sources from the commentary engine and the
// engine from its delivery sinks with two buffered channels.
package bus

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/slipstreamco/slipcast/internal/events"
)

// TelemetryKind discriminates inbound messages.
type TelemetryKind string

const (
	KindSettings TelemetryKind = "settings"
	KindFrame    TelemetryKind = "frame"
	KindEnd      TelemetryKind = "end"
)

// Telemetry is one inbound message from a source: match settings, a frame of
// player state, or the end of the stream.
type Telemetry struct {
	Kind      TelemetryKind
	Handle    string
	Source    string
	Timestamp time.Time

	// Kind == KindSettings
	Roster  []events.PlayerInfo
	StageID int

	// Kind == KindFrame
	Frame   int32
	Players []*PlayerState
	Combos  []ComboState

	// Kind == KindEnd
	EndReason events.EndReason
	Quitter   int
}

// PlayerState is one player's raw per-frame state. A nil entry in
// Telemetry.Players marks a data gap for that player.
type PlayerState struct {
	Stocks      int
	Percent     float64
	ActionState uint16
}

// ComboState is a combo computed by the telemetry source, delivered alongside
// the frame it ended on.
type ComboState struct {
	Player       int
	StartFrame   int32
	EndFrame     int32
	Hits         int
	StartPercent float64
	EndPercent   float64
	Damage       float64
}

// LineKind discriminates outbound text.
type LineKind string

const (
	LineNarration LineKind = "narration"
	LineSummary   LineKind = "summary"
	LineCoaching  LineKind = "coaching"
)

// Line is one piece of commentary ready for delivery.
type Line struct {
	Handle string
	Kind   LineKind
	Text   string
}

type subscriber struct {
	name string
	fn   func(Line) error
}

// Bus carries telemetry in and commentary out. Outbound lines fan out to
// every subscriber; a failing subscriber is logged and skipped, never
// blocking the others.
type Bus struct {
	Inbound  chan Telemetry
	Outbound chan Line

	mu   sync.RWMutex
	subs []subscriber
}

func New(bufSize int) *Bus {
	return &Bus{
		Inbound:  make(chan Telemetry, bufSize),
		Outbound: make(chan Line, bufSize),
	}
}

// SubscribeOutbound registers a delivery callback for every outbound line.
func (b *Bus) SubscribeOutbound(name string, fn func(Line) error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subscriber{name: name, fn: fn})
}

// DispatchOutbound fans outbound lines out to subscribers until ctx ends.
func (b *Bus) DispatchOutbound(ctx context.Context) {
	for {
		select {
		case line := <-b.Outbound:
			b.mu.RLock()
			subs := make([]subscriber, len(b.subs))
			copy(subs, b.subs)
			b.mu.RUnlock()

			for _, s := range subs {
				if err := s.fn(line); err != nil {
					log.Printf("[bus] deliver to %s failed: %v", s.name, err)
				}
			}
		case <-ctx.Done():
			return
		}
	}
}
