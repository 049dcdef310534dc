// Package summary folds a match's full event history into per-player
// statistics and, when a provider is available, a short coaching blurb.
package summary

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"
	"sync"

	"github.com/slipstreamco/slipcast/internal/events"
	"github.com/slipstreamco/slipcast/internal/provider"
)

type PlayerSummary struct {
	Index       int
	Port        int
	CharacterID int
	DamageDealt float64
	StocksLost  int
	ComboCount  int
	Efficiency  int
}

type MatchSummary struct {
	Handle  string
	StageID int
	Players []PlayerSummary
	Frames  int32
}

// Efficiency scores a player 1..10 from damage dealt and stocks lost.
// Losing no stocks is a perfect score regardless of damage output.
func Efficiency(damageDealt float64, stocksLost int) int {
	if stocksLost == 0 {
		return 10
	}
	if damageDealt == 0 {
		return 1
	}
	score := int(math.Floor(damageDealt / float64(stocksLost) / 20))
	if score < 1 {
		return 1
	}
	if score > 10 {
		return 10
	}
	return score
}

type playerStats struct {
	damageDealt float64
	stocksLost  int
	comboCount  int
}

type matchStats struct {
	stageID   int
	roster    []events.PlayerInfo
	players   map[int]*playerStats
	lastFrame int32
}

// Builder accumulates statistics from the full emitted event stream, before
// admission throttling, so dropped commentary never skews the numbers.
type Builder struct {
	mu       sync.Mutex
	matches  map[string]*matchStats
	provider provider.Provider // nil disables generated coaching
	tokens   int
}

func NewBuilder(p provider.Provider, coachingTokens int) *Builder {
	return &Builder{
		matches:  make(map[string]*matchStats),
		provider: p,
		tokens:   coachingTokens,
	}
}

// Record folds one event into the match's running statistics.
func (b *Builder) Record(handle string, ev events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	m, ok := b.matches[handle]
	if !ok {
		m = &matchStats{players: make(map[int]*playerStats)}
		b.matches[handle] = m
	}
	if ev.Frame() > m.lastFrame {
		m.lastFrame = ev.Frame()
	}

	switch e := ev.(type) {
	case events.MatchStart:
		m.stageID = e.StageID
		m.roster = e.Roster
	case events.StockLost:
		m.player(e.Player).stocksLost += e.StocksLost
	case events.Combo:
		p := m.player(e.Player)
		p.comboCount++
		p.damageDealt += e.Damage
	}
}

func (m *matchStats) player(index int) *playerStats {
	p, ok := m.players[index]
	if !ok {
		p = &playerStats{}
		m.players[index] = p
	}
	return p
}

// Summarize builds the final statistics for a match. An unknown handle
// yields an empty summary rather than an error; a match that ended before
// any frames arrived has zero stats for everyone.
func (b *Builder) Summarize(handle string) MatchSummary {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := MatchSummary{Handle: handle}
	m, ok := b.matches[handle]
	if !ok {
		return out
	}
	out.StageID = m.stageID
	out.Frames = m.lastFrame

	for _, info := range m.roster {
		ps := PlayerSummary{Index: info.Index, Port: info.Port, CharacterID: info.CharacterID}
		if stats, ok := m.players[info.Index]; ok {
			ps.DamageDealt = stats.damageDealt
			ps.StocksLost = stats.stocksLost
			ps.ComboCount = stats.comboCount
		}
		ps.Efficiency = Efficiency(ps.DamageDealt, ps.StocksLost)
		out.Players = append(out.Players, ps)
	}
	return out
}

// Coach produces post-match coaching text. Provider failures fall back to a
// deterministic rendering of the summary.
func (b *Builder) Coach(ctx context.Context, handle string) string {
	sum := b.Summarize(handle)
	if b.provider == nil {
		return RenderSummary(sum)
	}

	text, err := b.provider.Complete(ctx, provider.Request{
		System: coachingSystemPrompt,
		Prompt: coachingPrompt(sum),
		// Coaching runs once per match, so it gets a bigger budget than
		// live narration.
		MaxTokens: b.tokens,
	})
	if err != nil {
		log.Printf("[summary] %s: coaching provider failed, using stats only: %v", handle, err)
		return RenderSummary(sum)
	}
	return text
}

// Forget drops a match's accumulated statistics.
func (b *Builder) Forget(handle string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.matches, handle)
}

const coachingSystemPrompt = `You are a Super Smash Bros. Melee coach reviewing a finished match.
Given per-player statistics, write a short post-match analysis: who controlled
the game, what each player should work on. Keep it under five sentences.`

func coachingPrompt(sum MatchSummary) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Match on %s, %d frames (%.1f minutes).\n",
		events.StageName(sum.StageID), sum.Frames, float64(sum.Frames)/60/60)
	for _, p := range sum.Players {
		fmt.Fprintf(&sb, "%s (port %d): %.1f%% damage dealt, %d stocks lost, %d combos, efficiency %d/10.\n",
			events.CharacterName(p.CharacterID), p.Port, p.DamageDealt, p.StocksLost, p.ComboCount, p.Efficiency)
	}
	return sb.String()
}

// RenderSummary formats a summary as plain text for sinks and fallbacks.
func RenderSummary(sum MatchSummary) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Match complete on %s.", events.StageName(sum.StageID))
	for _, p := range sum.Players {
		fmt.Fprintf(&sb, "\n%s (port %d): %.1f%% dealt, %d stocks lost, %d combos, efficiency %d/10",
			events.CharacterName(p.CharacterID), p.Port, p.DamageDealt, p.StocksLost, p.ComboCount, p.Efficiency)
	}
	return sb.String()
}
