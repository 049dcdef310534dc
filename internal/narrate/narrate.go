// Package narrate turns admitted event batches into one short line of
// commentary, either through a configured text-generation provider or
// through deterministic templates. Generated lines are cached on the batch's
// semantic content so a recurring situation is narrated once per TTL window.
package narrate

import (
	"context"
	"fmt"
	"log"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/slipstreamco/slipcast/internal/events"
	"github.com/slipstreamco/slipcast/internal/provider"
)

// Style alters vocabulary and focus of generated commentary, never event
// selection.
type Style string

const (
	StyleTechnical   Style = "technical"
	StyleHype        Style = "hype"
	StyleEducational Style = "educational"
	StyleAnalytical  Style = "analytical"
)

// ParseStyle maps a config string to a Style, defaulting to hype.
func ParseStyle(s string) Style {
	switch Style(strings.ToLower(strings.TrimSpace(s))) {
	case StyleTechnical:
		return StyleTechnical
	case StyleEducational:
		return StyleEducational
	case StyleAnalytical:
		return StyleAnalytical
	}
	return StyleHype
}

var styleInstructions = map[Style]string{
	StyleTechnical:   "Use precise Melee terminology: frame advantage, punish game, stage positioning. No exclamations.",
	StyleHype:        "You are a hype esports caster. Big energy, short sentences, exclamations welcome.",
	StyleEducational: "Explain what happened and why it matters, as if teaching a newer player.",
	StyleAnalytical:  "Neutral, analytical tone. Comment on momentum, stock advantage, and decision quality.",
}

const systemPrompt = `You are a live Super Smash Bros. Melee commentator.
Given a batch of game events, produce exactly one short line of commentary
(max two sentences). Never mention frame numbers or raw event names. %s`

// Context carries optional match information into the prompt.
type Context struct {
	Roster  []events.PlayerInfo
	StageID int
}

type Dispatcher struct {
	provider    provider.Provider // nil means templates only
	cache       *Cache
	maxTokens   int
	temperature float64
	group       singleflight.Group
}

func New(p provider.Provider, cache *Cache, maxTokens int, temperature float64) *Dispatcher {
	if cache == nil {
		cache = NewCache(DefaultCacheTTL, DefaultCacheMax)
	}
	return &Dispatcher{
		provider:    p,
		cache:       cache,
		maxTokens:   maxTokens,
		temperature: temperature,
	}
}

// Cache exposes the dispatcher's cache for maintenance sweeps.
func (d *Dispatcher) Cache() *Cache { return d.cache }

// Narrate returns one line of commentary for a batch. It always produces
// text: provider failures fall back to templates and are only logged.
// Concurrent requests for the same semantic key are collapsed into a single
// generation.
func (d *Dispatcher) Narrate(ctx context.Context, handle string, batch []events.Event, mctx *Context, style Style) string {
	if len(batch) == 0 {
		return ""
	}
	key := CacheKey(batch, style)
	if text, ok := d.cache.Get(key); ok {
		return text
	}

	v, _, _ := d.group.Do(key, func() (any, error) {
		// A concurrent caller may have generated and cached it already.
		if text, ok := d.cache.Get(key); ok {
			return text, nil
		}
		text := d.generate(ctx, handle, batch, mctx, style)
		d.cache.Put(key, text)
		return text, nil
	})
	return v.(string)
}

func (d *Dispatcher) generate(ctx context.Context, handle string, batch []events.Event, mctx *Context, style Style) string {
	if d.provider == nil {
		return Render(batch, mctx)
	}

	text, err := d.provider.Complete(ctx, provider.Request{
		System:      fmt.Sprintf(systemPrompt, styleInstructions[style]),
		Prompt:      buildPrompt(batch, mctx),
		MaxTokens:   d.maxTokens,
		Temperature: d.temperature,
	})
	if err != nil {
		log.Printf("[narrate] %s: provider failed, falling back to templates: %v", handle, err)
		return Render(batch, mctx)
	}
	return text
}

func buildPrompt(batch []events.Event, mctx *Context) string {
	var sb strings.Builder
	if mctx != nil && len(mctx.Roster) > 0 {
		sb.WriteString("Match: ")
		var names []string
		for _, p := range mctx.Roster {
			names = append(names, fmt.Sprintf("%s (port %d)", events.CharacterName(p.CharacterID), p.Port))
		}
		sb.WriteString(strings.Join(names, " vs "))
		sb.WriteString(" on ")
		sb.WriteString(events.StageName(mctx.StageID))
		sb.WriteString("\n")
	}
	sb.WriteString("Events:\n")
	for _, ev := range batch {
		sb.WriteString("- ")
		sb.WriteString(describeEvent(ev, mctx))
		sb.WriteString("\n")
	}
	return sb.String()
}

func describeEvent(ev events.Event, mctx *Context) string {
	switch e := ev.(type) {
	case events.StockLost:
		return fmt.Sprintf("%s lost %d stock(s), %d remaining", playerLabel(e.Player, mctx), e.StocksLost, e.Remaining)
	case events.Combo:
		return fmt.Sprintf("%s landed a %d-hit combo dealing %.1f%%", playerLabel(e.Player, mctx), e.Hits, e.Damage)
	case events.ActionState:
		return fmt.Sprintf("%s: %s (%s)", playerLabel(e.Player, mctx), e.Subtype, e.Detail)
	case events.FrameHeartbeat:
		var parts []string
		for _, p := range e.Players {
			parts = append(parts, fmt.Sprintf("%s %d stocks %.0f%%", playerLabel(p.Index, mctx), p.Stocks, p.Percent))
		}
		return "status: " + strings.Join(parts, ", ")
	case events.MatchStart:
		return "the match just started"
	case events.MatchEnd:
		return fmt.Sprintf("the match ended (%s)", e.Reason)
	}
	return "something happened"
}
