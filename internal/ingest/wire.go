// Package ingest adapts telemetry sources to the bus: JSONL replay feeds, a
// spool directory watcher, and a live websocket stream. Sources only decode
// and forward; all match semantics live behind the bus.
package ingest

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/slipstreamco/slipcast/internal/bus"
	"github.com/slipstreamco/slipcast/internal/events"
)

type wirePlayer struct {
	Port      int  `json:"port"`
	Character int  `json:"character"`
	CPU       bool `json:"cpu"`
}

type wireFrame struct {
	Stocks  int     `json:"stocks"`
	Percent float64 `json:"percent"`
	State   uint16  `json:"state"`
}

type wireCombo struct {
	Player       int     `json:"player"`
	StartFrame   int32   `json:"startFrame"`
	EndFrame     int32   `json:"endFrame"`
	Hits         int     `json:"hits"`
	StartPercent float64 `json:"startPercent"`
	EndPercent   float64 `json:"endPercent"`
	Damage       float64 `json:"damage"`
}

type wireMessage struct {
	Type    string       `json:"type"`
	Stage   int          `json:"stage"`
	Players []*wireFrame `json:"players"`
	Frame   int32        `json:"frame"`
	Combos  []wireCombo  `json:"combos"`
	Reason  string       `json:"reason"`
	Quitter int          `json:"quitter"`
}

// settings lines carry roster objects where frame lines carry player state,
// both under "players", so settings are decoded in a second pass.
type wireSettings struct {
	Stage   int          `json:"stage"`
	Players []wirePlayer `json:"players"`
}

// decodeLine turns one JSONL line into a Telemetry message. Unknown types
// return ok=false without an error.
func decodeLine(handle, source string, data []byte) (bus.Telemetry, bool, error) {
	var msg wireMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return bus.Telemetry{}, false, fmt.Errorf("decode telemetry line: %w", err)
	}

	t := bus.Telemetry{Handle: handle, Source: source, Timestamp: time.Now()}
	switch msg.Type {
	case "settings":
		var s wireSettings
		if err := json.Unmarshal(data, &s); err != nil {
			return bus.Telemetry{}, false, fmt.Errorf("decode settings line: %w", err)
		}
		t.Kind = bus.KindSettings
		t.StageID = s.Stage
		for i, p := range s.Players {
			t.Roster = append(t.Roster, events.PlayerInfo{
				Index:       i,
				Port:        p.Port,
				CharacterID: p.Character,
				CPU:         p.CPU,
			})
		}
	case "frame":
		t.Kind = bus.KindFrame
		t.Frame = msg.Frame
		for _, p := range msg.Players {
			if p == nil {
				t.Players = append(t.Players, nil)
				continue
			}
			t.Players = append(t.Players, &bus.PlayerState{
				Stocks:      p.Stocks,
				Percent:     p.Percent,
				ActionState: p.State,
			})
		}
		for _, c := range msg.Combos {
			t.Combos = append(t.Combos, bus.ComboState{
				Player:       c.Player,
				StartFrame:   c.StartFrame,
				EndFrame:     c.EndFrame,
				Hits:         c.Hits,
				StartPercent: c.StartPercent,
				EndPercent:   c.EndPercent,
				Damage:       c.Damage,
			})
		}
	case "end":
		t.Kind = bus.KindEnd
		t.EndReason = parseEndReason(msg.Reason)
		t.Quitter = msg.Quitter
	default:
		return bus.Telemetry{}, false, nil
	}
	return t, true, nil
}

func parseEndReason(reason string) events.EndReason {
	switch strings.ToUpper(strings.TrimSpace(reason)) {
	case "GAME!", "GAME":
		return events.EndGame
	case "QUIT", "LRAS":
		return events.EndQuit
	}
	return events.EndStreamClosed
}
