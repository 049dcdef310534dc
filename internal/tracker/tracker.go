// Package tracker converts per-frame telemetry into discrete candidate events.
// It owns all per-match mutable state: roster, last seen stocks and action
// states, and the set of combos already counted.
package tracker

import (
	"log"
	"sync"
	"time"

	"github.com/slipstreamco/slipcast/internal/events"
)

// HeartbeatInterval is how many frames pass between FrameHeartbeat events
// (~5 s at 60 fps). Heartbeats fire regardless of other activity so narration
// stays alive during quiet play.
const HeartbeatInterval = 300

const initialStocks = 4

// PlayerFrame is one player's slice of a frame snapshot. A nil entry in
// FrameSnapshot.Players is a data gap for that player and is skipped.
type PlayerFrame struct {
	Stocks      int
	Percent     float64
	ActionState uint16
}

type FrameSnapshot struct {
	Frame   int32
	Players []*PlayerFrame
}

// ComboRecord is an externally computed combo handed in alongside a frame.
// Damage may be zero, in which case EndPercent-StartPercent is used.
type ComboRecord struct {
	Player       int
	StartFrame   int32
	EndFrame     int32
	Hits         int
	StartPercent float64
	EndPercent   float64
	Damage       float64
}

// Phase of a match. Active is entered at most once; Completed is terminal.
type Phase int

const (
	PhasePending Phase = iota
	PhaseActive
	PhaseCompleted
)

type comboKey struct {
	player     int
	startFrame int32
}

type playerState struct {
	stocks      int
	actionState uint16
	seenState   bool
}

type matchState struct {
	phase         Phase
	roster        []events.PlayerInfo
	stageID       int
	lastFrame     int32
	seenFrame     bool
	players       map[int]*playerState
	seenCombos    map[comboKey]struct{}
	lastHeartbeat int32
	droppedFrames int
	completedAt   time.Time
}

type Tracker struct {
	mu      sync.Mutex
	matches map[string]*matchState
	now     func() time.Time
}

func New() *Tracker {
	return &Tracker{
		matches: make(map[string]*matchState),
		now:     time.Now,
	}
}

func (t *Tracker) match(handle string) *matchState {
	m, ok := t.matches[handle]
	if !ok {
		m = &matchState{
			players:       make(map[int]*playerState),
			seenCombos:    make(map[comboKey]struct{}),
			lastHeartbeat: -1,
		}
		t.matches[handle] = m
	}
	return m
}

// OnSettings marks the match Active and returns its MatchStart event. The
// second and later calls for the same handle are ignored.
func (t *Tracker) OnSettings(handle string, roster []events.PlayerInfo, stageID int) (events.MatchStart, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	m := t.match(handle)
	if m.phase != PhasePending {
		return events.MatchStart{}, false
	}
	m.phase = PhaseActive
	m.roster = append([]events.PlayerInfo(nil), roster...)
	m.stageID = stageID
	for _, p := range roster {
		m.players[p.Index] = &playerState{stocks: initialStocks}
	}
	log.Printf("[tracker] %s: match active, %d players, stage %d", handle, len(roster), stageID)
	return events.MatchStart{Roster: m.roster, StageID: stageID}, true
}

// OnFrame diffs one frame snapshot against tracked state and returns the
// candidate events it produced, in fixed order: stock losses, action-state
// transitions, combos, heartbeat. Frames at or before the last processed
// frame are dropped (idempotent re-delivery). Frames for a completed match
// are dropped silently.
func (t *Tracker) OnFrame(handle string, snap FrameSnapshot, combos []ComboRecord) []events.Event {
	t.mu.Lock()
	defer t.mu.Unlock()

	m := t.match(handle)
	if m.phase == PhaseCompleted {
		return nil
	}
	if m.seenFrame && snap.Frame <= m.lastFrame {
		m.droppedFrames++
		return nil
	}
	m.lastFrame = snap.Frame
	m.seenFrame = true

	var out []events.Event

	// Stock losses first.
	for idx, pf := range snap.Players {
		if pf == nil {
			continue
		}
		ps, ok := m.players[idx]
		if !ok {
			ps = &playerState{stocks: initialStocks}
			m.players[idx] = ps
		}
		if pf.Stocks < ps.stocks {
			out = append(out, events.StockLost{
				Player:     idx,
				StocksLost: ps.stocks - pf.Stocks,
				Remaining:  pf.Stocks,
				FrameNum:   snap.Frame,
			})
		}
		// Track unconditionally so a missed emission never causes drift.
		ps.stocks = pf.Stocks
	}

	// Action-state transitions, edge-triggered.
	for idx, pf := range snap.Players {
		if pf == nil {
			continue
		}
		ps := m.players[idx]
		if ps.seenState && ps.actionState != pf.ActionState {
			if sub, ok := classifyTransition(ps.actionState, pf.ActionState); ok {
				out = append(out, events.ActionState{
					Player:   idx,
					Subtype:  sub,
					FrameNum: snap.Frame,
					Detail:   stateName(pf.ActionState),
				})
			}
		}
		ps.actionState = pf.ActionState
		ps.seenState = true
	}

	// Combos, deduplicated on (player, start frame); 1-hit combos are noise.
	for _, c := range combos {
		if c.Hits < 2 {
			continue
		}
		key := comboKey{player: c.Player, startFrame: c.StartFrame}
		if _, seen := m.seenCombos[key]; seen {
			continue
		}
		m.seenCombos[key] = struct{}{}
		damage := c.Damage
		if damage == 0 {
			damage = c.EndPercent - c.StartPercent
		}
		out = append(out, events.Combo{
			Player:     c.Player,
			Hits:       c.Hits,
			Damage:     damage,
			StartFrame: c.StartFrame,
			EndFrame:   c.EndFrame,
		})
	}

	// Heartbeat every HeartbeatInterval frames.
	if m.lastHeartbeat < 0 || snap.Frame-m.lastHeartbeat >= HeartbeatInterval {
		m.lastHeartbeat = snap.Frame
		hb := events.FrameHeartbeat{FrameNum: snap.Frame}
		for idx, pf := range snap.Players {
			if pf == nil {
				continue
			}
			hb.Players = append(hb.Players, events.PlayerSnapshot{
				Index:   idx,
				Stocks:  pf.Stocks,
				Percent: pf.Percent,
			})
		}
		out = append(out, hb)
	}

	return out
}

// OnMatchEnd completes the match and returns its MatchEnd event. A handle
// never seen before still completes, so a zero-length match summarizes to
// all-zero stats instead of erroring. Returns false if already completed.
func (t *Tracker) OnMatchEnd(handle string, reason events.EndReason, quitter int) (events.MatchEnd, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	m := t.match(handle)
	if m.phase == PhaseCompleted {
		return events.MatchEnd{}, false
	}
	m.phase = PhaseCompleted
	m.completedAt = t.now()
	if m.droppedFrames > 0 {
		log.Printf("[tracker] %s: dropped %d out-of-order frames", handle, m.droppedFrames)
	}
	return events.MatchEnd{Reason: reason, Quitter: quitter, FrameNum: m.lastFrame}, true
}

// Roster returns the roster recorded at match start, or nil.
func (t *Tracker) Roster(handle string) ([]events.PlayerInfo, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if m, ok := t.matches[handle]; ok {
		return m.roster, m.stageID
	}
	return nil, 0
}

// Phase reports the match lifecycle phase. Unknown handles are Pending.
func (t *Tracker) Phase(handle string) Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	if m, ok := t.matches[handle]; ok {
		return m.phase
	}
	return PhasePending
}

// Stocks returns the tracked stock count for one player.
func (t *Tracker) Stocks(handle string, player int) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.matches[handle]
	if !ok {
		return 0, false
	}
	ps, ok := m.players[player]
	if !ok {
		return 0, false
	}
	return ps.stocks, true
}

// Remove discards all state for a match.
func (t *Tracker) Remove(handle string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.matches, handle)
}

// SweepCompleted removes matches that completed more than maxAge ago and
// returns how many were removed.
func (t *Tracker) SweepCompleted(maxAge time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-maxAge)
	removed := 0
	for handle, m := range t.matches {
		if m.phase == PhaseCompleted && m.completedAt.Before(cutoff) {
			delete(t.matches, handle)
			removed++
		}
	}
	return removed
}
