package narrate

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/slipstreamco/slipcast/internal/events"
)

// Deterministic fallback phrasings, used whenever no provider is configured
// or the provider fails. Selection among equivalent phrasings is randomized
// for variety.

var stockLostPhrases = []string{
	"%s loses a stock, %d remaining!",
	"Down goes %s! %d stocks left.",
	"That's a stock off %s, sitting at %d.",
}

var comboPhrases = []string{
	"%s strings together a %d-hit combo for %.0f%%!",
	"A huge punish from %s, %d hits for %.0f%% of damage!",
	"%s cashes in %d hits for %.0f%%.",
}

var heartbeatPhrases = []string{
	"Current standing: %s.",
	"Where we're at: %s.",
}

var matchStartPhrases = []string{
	"Here we go: %s on %s!",
	"Match underway, %s battling it out on %s.",
}

var matchEndPhrases = []string{
	"And that's the game!",
	"GAME! What a set.",
}

var actionPhrases = map[events.Subtype][]string{
	events.SubtypeTech:          {"%s techs the knockdown.", "Clean tech from %s."},
	events.SubtypeTechMiss:      {"%s misses the tech!", "No tech from %s, that hurts."},
	events.SubtypeShield:        {"%s hides in shield.", "%s shields up."},
	events.SubtypeGrab:          {"%s gets the grab!", "Grab secured by %s."},
	events.SubtypeRecovery:      {"%s snags the ledge.", "%s makes it back to the edge."},
	events.SubtypeAerialLanding: {"%s lands the aerial.", "Aerial connects for %s."},
	events.SubtypeWavedash:      {"Slick wavedash from %s.", "%s slides in with a wavedash."},
}

// defaultPhrase covers any event type templates don't recognize; narration
// must always produce some text.
const defaultPhrase = "The action continues!"

func pick(phrases []string) string {
	return phrases[rand.Intn(len(phrases))]
}

// Render produces one deterministic-template line for a batch.
func Render(batch []events.Event, mctx *Context) string {
	var parts []string
	for _, ev := range batch {
		parts = append(parts, renderEvent(ev, mctx))
	}
	if len(parts) == 0 {
		return defaultPhrase
	}
	return strings.Join(parts, " ")
}

func renderEvent(ev events.Event, mctx *Context) string {
	switch e := ev.(type) {
	case events.StockLost:
		return fmt.Sprintf(pick(stockLostPhrases), playerLabel(e.Player, mctx), e.Remaining)
	case events.Combo:
		return fmt.Sprintf(pick(comboPhrases), playerLabel(e.Player, mctx), e.Hits, e.Damage)
	case events.ActionState:
		phrases, ok := actionPhrases[e.Subtype]
		if !ok {
			return defaultPhrase
		}
		return fmt.Sprintf(pick(phrases), playerLabel(e.Player, mctx))
	case events.FrameHeartbeat:
		var standings []string
		for _, p := range e.Players {
			standings = append(standings, fmt.Sprintf("%s at %d stocks, %.0f%%", playerLabel(p.Index, mctx), p.Stocks, p.Percent))
		}
		if len(standings) == 0 {
			return defaultPhrase
		}
		return fmt.Sprintf(pick(heartbeatPhrases), strings.Join(standings, ", "))
	case events.MatchStart:
		var names []string
		for _, p := range e.Roster {
			names = append(names, events.CharacterName(p.CharacterID))
		}
		return fmt.Sprintf(pick(matchStartPhrases), strings.Join(names, " vs "), events.StageName(e.StageID))
	case events.MatchEnd:
		return pick(matchEndPhrases)
	}
	return defaultPhrase
}

func playerLabel(index int, mctx *Context) string {
	if mctx != nil {
		for _, p := range mctx.Roster {
			if p.Index == index {
				return events.CharacterName(p.CharacterID)
			}
		}
	}
	return fmt.Sprintf("Player %d", index+1)
}
