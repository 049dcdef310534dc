// Package gateway wires the commentary pipeline together: telemetry comes in
// over the bus, flows through the tracker, admission controller and batcher,
// and leaves as narration, summaries and coaching on the outbound side.
package gateway

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/slipstreamco/slipcast/internal/admit"
	"github.com/slipstreamco/slipcast/internal/batch"
	"github.com/slipstreamco/slipcast/internal/bus"
	"github.com/slipstreamco/slipcast/internal/config"
	"github.com/slipstreamco/slipcast/internal/events"
	"github.com/slipstreamco/slipcast/internal/narrate"
	"github.com/slipstreamco/slipcast/internal/provider"
	"github.com/slipstreamco/slipcast/internal/sink"
	"github.com/slipstreamco/slipcast/internal/summary"
	"github.com/slipstreamco/slipcast/internal/tracker"
)

// ProviderFactory creates the text-generation provider (allows injection in
// tests). A nil provider runs the engine on templates alone.
type ProviderFactory func(cfg *config.Config) (provider.Provider, error)

// Options for creating an Engine.
type Options struct {
	ProviderFactory ProviderFactory
	SignalChan      chan os.Signal // for testing signal handling
	Sinkless        bool           // skip sink manager, callers subscribe themselves
}

// Engine is the match-commentary orchestrator.
type Engine struct {
	cfg       *config.Config
	bus       *bus.Bus
	tracker   *tracker.Tracker
	admit     *admit.Controller
	batcher   *batch.Batcher
	narrator  *narrate.Dispatcher
	summaries *summary.Builder
	provider  provider.Provider
	sinks     *sink.Manager
	style     narrate.Style
	cron      *cron.Cron

	signalChan chan os.Signal // for testing
}

// New creates an Engine with default options.
func New(cfg *config.Config) (*Engine, error) {
	return NewWithOptions(cfg, Options{})
}

// NewWithOptions creates an Engine with custom options for testing.
func NewWithOptions(cfg *config.Config, opts Options) (*Engine, error) {
	e := &Engine{
		cfg:     cfg,
		bus:     bus.New(config.DefaultBufSize),
		tracker: tracker.New(),
		style:   narrate.ParseStyle(cfg.Narration.Style),
	}

	factory := opts.ProviderFactory
	if factory == nil {
		factory = provider.New
	}
	p, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("create provider: %w", err)
	}
	e.provider = p
	if p == nil {
		log.Printf("[gateway] no provider configured, narrating from templates")
	}

	e.admit = admit.New(throttleWindows(cfg.Throttle))

	cache := narrate.NewCache(
		time.Duration(cfg.Narration.CacheTTLSeconds)*time.Second,
		cfg.Narration.CacheMaxEntries,
	)
	e.narrator = narrate.New(p, cache, cfg.Narration.MaxTokens, cfg.Provider.Temperature)

	var coach provider.Provider
	if cfg.Coaching.Enabled {
		coach = p
	}
	e.summaries = summary.NewBuilder(coach, cfg.Coaching.MaxTokens)

	e.batcher = batch.New(
		cfg.Batch.Size,
		time.Duration(cfg.Batch.IntervalMs)*time.Millisecond,
		e.flushBatch,
	)

	if !opts.Sinkless {
		sinks, err := sink.NewManager(cfg.Sinks, e.bus)
		if err != nil {
			return nil, fmt.Errorf("create sink manager: %w", err)
		}
		e.sinks = sinks
	}

	e.cron = cron.New()
	if _, err := e.cron.AddFunc("@every 30s", func() {
		if n := cache.Sweep(); n > 0 {
			log.Printf("[gateway] swept %d expired narration cache entries", n)
		}
	}); err != nil {
		return nil, fmt.Errorf("schedule cache sweep: %w", err)
	}
	if _, err := e.cron.AddFunc("@every 1m", func() {
		maxAge := time.Duration(config.DefaultCompletedSweepMin) * time.Minute
		if n := e.tracker.SweepCompleted(maxAge); n > 0 {
			log.Printf("[gateway] swept %d completed matches", n)
		}
	}); err != nil {
		return nil, fmt.Errorf("schedule match sweep: %w", err)
	}

	e.signalChan = opts.SignalChan
	return e, nil
}

func throttleWindows(cfg config.ThrottleConfig) map[events.Class]time.Duration {
	ms := func(v, fallback int) time.Duration {
		if v <= 0 {
			v = fallback
		}
		return time.Duration(v) * time.Millisecond
	}
	return map[events.Class]time.Duration{
		events.ClassStockLoss:        ms(cfg.StockLossMs, config.DefaultStockLossMs),
		events.ClassSignificantCombo: ms(cfg.SignificantComboMs, config.DefaultSignificantMs),
		events.ClassMinorCombo:       ms(cfg.MinorComboMs, config.DefaultMinorComboMs),
		events.ClassNeutralExchange:  ms(cfg.NeutralExchangeMs, config.DefaultNeutralMs),
		events.ClassFrameUpdate:      ms(cfg.FrameUpdateMs, config.DefaultFrameUpdateMs),
	}
}

// Bus exposes the engine's bus for telemetry sources and test subscribers.
func (e *Engine) Bus() *bus.Bus { return e.bus }

// Run processes telemetry until a shutdown signal or ctx cancellation.
func (e *Engine) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go e.bus.DispatchOutbound(ctx)
	go e.processLoop(ctx)
	e.cron.Start()

	if e.sinks != nil {
		log.Printf("[gateway] sinks active: %v", e.sinks.Enabled())
	}

	sigCh := e.signalChan
	if sigCh == nil {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	}

	select {
	case <-sigCh:
		log.Printf("[gateway] shutting down...")
	case <-ctx.Done():
	}
	return e.Shutdown()
}

func (e *Engine) processLoop(ctx context.Context) {
	for {
		select {
		case msg := <-e.bus.Inbound:
			e.handleTelemetry(ctx, msg)
		case <-ctx.Done():
			return
		}
	}
}

func (e *Engine) handleTelemetry(ctx context.Context, msg bus.Telemetry) {
	switch msg.Kind {
	case bus.KindSettings:
		start, ok := e.tracker.OnSettings(msg.Handle, msg.Roster, msg.StageID)
		if !ok {
			return
		}
		log.Printf("[gateway] match %s started: %d players on %s",
			msg.Handle, len(msg.Roster), events.StageName(msg.StageID))
		e.dispatchEvent(msg.Handle, start)

	case bus.KindFrame:
		snap := tracker.FrameSnapshot{Frame: msg.Frame}
		for _, p := range msg.Players {
			if p == nil {
				snap.Players = append(snap.Players, nil)
				continue
			}
			snap.Players = append(snap.Players, &tracker.PlayerFrame{
				Stocks:      p.Stocks,
				Percent:     p.Percent,
				ActionState: p.ActionState,
			})
		}
		var combos []tracker.ComboRecord
		for _, c := range msg.Combos {
			combos = append(combos, tracker.ComboRecord{
				Player:       c.Player,
				StartFrame:   c.StartFrame,
				EndFrame:     c.EndFrame,
				Hits:         c.Hits,
				StartPercent: c.StartPercent,
				EndPercent:   c.EndPercent,
				Damage:       c.Damage,
			})
		}
		for _, ev := range e.tracker.OnFrame(msg.Handle, snap, combos) {
			e.dispatchEvent(msg.Handle, ev)
		}

	case bus.KindEnd:
		end, ok := e.tracker.OnMatchEnd(msg.Handle, msg.EndReason, msg.Quitter)
		if !ok {
			return
		}
		e.finishMatch(ctx, msg.Handle, end)
	}
}

// dispatchEvent feeds one emitted event into statistics and, when admitted,
// the batcher. Summary statistics see every event; throttling only limits
// commentary.
func (e *Engine) dispatchEvent(handle string, ev events.Event) {
	e.summaries.Record(handle, ev)
	if !e.admit.Admit(handle, ev) {
		return
	}
	e.batcher.Enqueue(handle, ev)
}

// finishMatch flushes what is pending, emits the end-of-match lines and
// releases per-match state.
func (e *Engine) finishMatch(ctx context.Context, handle string, end events.MatchEnd) {
	e.summaries.Record(handle, end)
	if dropped := e.admit.Dropped(handle); dropped > 0 {
		log.Printf("[gateway] match %s: %d events throttled", handle, dropped)
	}

	e.batcher.Stop(handle)
	e.dispatchLine(handle, bus.LineNarration,
		e.narrator.Narrate(ctx, handle, []events.Event{end}, e.matchContext(handle), e.style))

	sum := e.summaries.Summarize(handle)
	e.dispatchLine(handle, bus.LineSummary, summary.RenderSummary(sum))

	if e.cfg.Coaching.Enabled && e.provider != nil {
		e.dispatchLine(handle, bus.LineCoaching, e.summaries.Coach(ctx, handle))
	}

	e.admit.Forget(handle)
	e.summaries.Forget(handle)
	log.Printf("[gateway] match %s complete (%s)", handle, end.Reason)
}

func (e *Engine) flushBatch(handle string, batch []events.Event) {
	text := e.narrator.Narrate(context.Background(), handle, batch, e.matchContext(handle), e.style)
	e.dispatchLine(handle, bus.LineNarration, text)
}

func (e *Engine) matchContext(handle string) *narrate.Context {
	roster, stageID := e.tracker.Roster(handle)
	if roster == nil {
		return nil
	}
	return &narrate.Context{Roster: roster, StageID: stageID}
}

func (e *Engine) dispatchLine(handle string, kind bus.LineKind, text string) {
	if text == "" {
		return
	}
	e.bus.Outbound <- bus.Line{Handle: handle, Kind: kind, Text: text}
}

// AwaitIdle blocks until both bus channels have drained and stayed empty
// briefly. Single-replay mode uses it to let the final lines flush before
// stopping the engine.
func (e *Engine) AwaitIdle(ctx context.Context) {
	idleSince := time.Time{}
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if len(e.bus.Inbound) > 0 || len(e.bus.Outbound) > 0 {
				idleSince = time.Time{}
				continue
			}
			if idleSince.IsZero() {
				idleSince = time.Now()
			}
			if time.Since(idleSince) > 200*time.Millisecond {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// Shutdown stops background workers. Pending batches are discarded; the
// end-of-match lines have already been emitted.
func (e *Engine) Shutdown() error {
	e.cron.Stop()
	e.batcher.StopAll()
	if closer, ok := e.provider.(interface{ Close() }); ok {
		closer.Close()
	}
	log.Printf("[gateway] shutdown complete")
	return nil
}
