// Package events defines the closed set of candidate events the tracker can
// emit and the throttle class each one maps to. Events carry only plain
// semantic fields so they can be queued and batched by value.
package events

import "fmt"

// Class is the throttling bucket an event belongs to.
type Class int

const (
	ClassLifecycle Class = iota // match start/end, never throttled
	ClassStockLoss
	ClassSignificantCombo // >= 4 hits
	ClassMinorCombo       // 2-3 hits
	ClassNeutralExchange  // tech/shield/grab/recovery/aerial landings
	ClassFrameUpdate
)

func (c Class) String() string {
	switch c {
	case ClassLifecycle:
		return "lifecycle"
	case ClassStockLoss:
		return "stock-loss"
	case ClassSignificantCombo:
		return "significant-combo"
	case ClassMinorCombo:
		return "minor-combo"
	case ClassNeutralExchange:
		return "neutral-exchange"
	case ClassFrameUpdate:
		return "frame-update"
	}
	return "unknown"
}

// Subtype of a recognized action-state transition.
type Subtype string

const (
	SubtypeTech          Subtype = "tech"
	SubtypeTechMiss      Subtype = "tech-miss"
	SubtypeShield        Subtype = "shield"
	SubtypeGrab          Subtype = "grab"
	SubtypeRecovery      Subtype = "recovery"
	SubtypeAerialLanding Subtype = "aerial-landing"
	SubtypeWavedash      Subtype = "wavedash"
)

// EndReason describes how a match ended.
type EndReason string

const (
	EndGame         EndReason = "game"
	EndQuit         EndReason = "quit"
	EndStreamClosed EndReason = "stream-closed"
)

// PlayerInfo is one roster slot, fixed at match start.
type PlayerInfo struct {
	Index       int
	Port        int
	CharacterID int
	CPU         bool
}

// PlayerSnapshot is one player's state inside a heartbeat.
type PlayerSnapshot struct {
	Index   int
	Stocks  int
	Percent float64
}

// Event is the tagged variant consumed by admission, batching, narration and
// summaries. Key returns a canonical string of the event's semantic fields;
// the narration cache is keyed on it.
type Event interface {
	Class() Class
	Frame() int32
	Key() string
}

type StockLost struct {
	Player     int
	StocksLost int
	Remaining  int
	FrameNum   int32
}

func (e StockLost) Class() Class { return ClassStockLoss }
func (e StockLost) Frame() int32 { return e.FrameNum }
func (e StockLost) Key() string {
	return fmt.Sprintf("stock:p%d:lost%d:rem%d", e.Player, e.StocksLost, e.Remaining)
}

type Combo struct {
	Player     int
	Hits       int
	Damage     float64
	StartFrame int32
	EndFrame   int32
}

func (e Combo) Class() Class {
	if e.Hits >= 4 {
		return ClassSignificantCombo
	}
	return ClassMinorCombo
}
func (e Combo) Frame() int32 { return e.EndFrame }
func (e Combo) Key() string {
	return fmt.Sprintf("combo:p%d:hits%d:dmg%.0f", e.Player, e.Hits, e.Damage)
}

type ActionState struct {
	Player   int
	Subtype  Subtype
	FrameNum int32
	Detail   string
}

func (e ActionState) Class() Class { return ClassNeutralExchange }
func (e ActionState) Frame() int32 { return e.FrameNum }
func (e ActionState) Key() string {
	return fmt.Sprintf("action:p%d:%s", e.Player, e.Subtype)
}

type FrameHeartbeat struct {
	FrameNum int32
	Players  []PlayerSnapshot
}

func (e FrameHeartbeat) Class() Class { return ClassFrameUpdate }
func (e FrameHeartbeat) Frame() int32 { return e.FrameNum }
func (e FrameHeartbeat) Key() string {
	key := "heartbeat"
	for _, p := range e.Players {
		key += fmt.Sprintf(":p%d/%d/%.0f%%", p.Index, p.Stocks, p.Percent)
	}
	return key
}

type MatchStart struct {
	Roster  []PlayerInfo
	StageID int
}

func (e MatchStart) Class() Class { return ClassLifecycle }
func (e MatchStart) Frame() int32 { return 0 }
func (e MatchStart) Key() string {
	key := fmt.Sprintf("start:stage%d", e.StageID)
	for _, p := range e.Roster {
		key += fmt.Sprintf(":c%d", p.CharacterID)
	}
	return key
}

type MatchEnd struct {
	Reason   EndReason
	Quitter  int // player index, -1 when nobody quit
	FrameNum int32
}

func (e MatchEnd) Class() Class { return ClassLifecycle }
func (e MatchEnd) Frame() int32 { return e.FrameNum }
func (e MatchEnd) Key() string {
	return fmt.Sprintf("end:%s:q%d", e.Reason, e.Quitter)
}
