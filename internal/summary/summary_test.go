package summary

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/slipstreamco/slipcast/internal/events"
	"github.com/slipstreamco/slipcast/internal/provider"
)

type fakeCoach struct {
	text  string
	err   error
	calls int
}

func (f *fakeCoach) Name() string { return "fake" }

func (f *fakeCoach) Complete(ctx context.Context, req provider.Request) (string, error) {
	f.calls++
	return f.text, f.err
}

func twoPlayerRoster() []events.PlayerInfo {
	return []events.PlayerInfo{
		{Index: 0, Port: 1, CharacterID: 2},  // Fox
		{Index: 1, Port: 2, CharacterID: 20}, // Falco
	}
}

func TestEfficiency(t *testing.T) {
	cases := []struct {
		name   string
		damage float64
		stocks int
		want   int
	}{
		{"no stocks lost", 0, 0, 10},
		{"no stocks lost with damage", 250, 0, 10},
		{"zero damage one stock", 0, 1, 1},
		{"low ratio clamps to 1", 15, 2, 1},
		{"mid ratio", 120, 2, 3},
		{"high ratio clamps to 10", 900, 2, 10},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Efficiency(tc.damage, tc.stocks); got != tc.want {
				t.Fatalf("Efficiency(%v, %d) = %d, want %d", tc.damage, tc.stocks, got, tc.want)
			}
		})
	}
}

func TestSummarizeFoldsHistory(t *testing.T) {
	b := NewBuilder(nil, 1024)
	b.Record("m1", events.MatchStart{Roster: twoPlayerRoster(), StageID: 32})
	b.Record("m1", events.Combo{Player: 0, Hits: 4, Damage: 38.5, StartFrame: 100, EndFrame: 180})
	b.Record("m1", events.StockLost{Player: 1, StocksLost: 1, Remaining: 3, FrameNum: 200})
	b.Record("m1", events.Combo{Player: 0, Hits: 6, Damage: 52, StartFrame: 900, EndFrame: 1000})
	b.Record("m1", events.StockLost{Player: 1, StocksLost: 1, Remaining: 2, FrameNum: 1100})
	b.Record("m1", events.StockLost{Player: 0, StocksLost: 1, Remaining: 3, FrameNum: 2400})

	sum := b.Summarize("m1")
	if len(sum.Players) != 2 {
		t.Fatalf("expected 2 players, got %d", len(sum.Players))
	}
	p0, p1 := sum.Players[0], sum.Players[1]
	if p0.DamageDealt != 90.5 || p0.ComboCount != 2 || p0.StocksLost != 1 {
		t.Fatalf("unexpected player 0 stats: %+v", p0)
	}
	if p1.StocksLost != 2 || p1.ComboCount != 0 {
		t.Fatalf("unexpected player 1 stats: %+v", p1)
	}
	if sum.Frames != 2400 {
		t.Fatalf("expected last frame 2400, got %d", sum.Frames)
	}
	if p0.Efficiency != Efficiency(90.5, 1) {
		t.Fatalf("player 0 efficiency mismatch: %d", p0.Efficiency)
	}
}

func TestStockLossRoundTrip(t *testing.T) {
	b := NewBuilder(nil, 1024)
	b.Record("m1", events.MatchStart{Roster: twoPlayerRoster(), StageID: 3})
	for i := 0; i < 4; i++ {
		b.Record("m1", events.StockLost{Player: 0, StocksLost: 1, Remaining: 3 - i, FrameNum: int32(1000 * (i + 1))})
	}

	if got := b.Summarize("m1").Players[0].StocksLost; got != 4 {
		t.Fatalf("expected 4 stocks lost, got %d", got)
	}
}

func TestSummarizeUnknownHandle(t *testing.T) {
	b := NewBuilder(nil, 1024)
	sum := b.Summarize("ghost")
	if len(sum.Players) != 0 || sum.Frames != 0 {
		t.Fatalf("expected empty summary, got %+v", sum)
	}
}

func TestSummarizeZeroLengthMatch(t *testing.T) {
	b := NewBuilder(nil, 1024)
	b.Record("m1", events.MatchStart{Roster: twoPlayerRoster(), StageID: 8})
	b.Record("m1", events.MatchEnd{Reason: events.EndStreamClosed, Quitter: -1, FrameNum: 0})

	sum := b.Summarize("m1")
	if len(sum.Players) != 2 {
		t.Fatalf("expected roster-sized summary, got %d players", len(sum.Players))
	}
	for _, p := range sum.Players {
		if p.DamageDealt != 0 || p.StocksLost != 0 || p.ComboCount != 0 {
			t.Fatalf("expected zero stats, got %+v", p)
		}
		if p.Efficiency != 10 {
			t.Fatalf("no stocks lost should score 10, got %d", p.Efficiency)
		}
	}
}

func TestCoachUsesProvider(t *testing.T) {
	p := &fakeCoach{text: "Work on your ledge game."}
	b := NewBuilder(p, 1024)
	b.Record("m1", events.MatchStart{Roster: twoPlayerRoster(), StageID: 31})

	if got := b.Coach(context.Background(), "m1"); got != "Work on your ledge game." {
		t.Fatalf("unexpected coaching text: %q", got)
	}
	if p.calls != 1 {
		t.Fatalf("expected one provider call, got %d", p.calls)
	}
}

func TestCoachFallsBackOnError(t *testing.T) {
	p := &fakeCoach{err: errors.New("overloaded")}
	b := NewBuilder(p, 1024)
	b.Record("m1", events.MatchStart{Roster: twoPlayerRoster(), StageID: 32})
	b.Record("m1", events.StockLost{Player: 0, StocksLost: 1, Remaining: 3, FrameNum: 500})

	got := b.Coach(context.Background(), "m1")
	if !strings.Contains(got, "Fox") || !strings.Contains(got, "1 stocks lost") {
		t.Fatalf("expected stats fallback, got %q", got)
	}
}

func TestForget(t *testing.T) {
	b := NewBuilder(nil, 1024)
	b.Record("m1", events.MatchStart{Roster: twoPlayerRoster(), StageID: 2})
	b.Forget("m1")
	if len(b.Summarize("m1").Players) != 0 {
		t.Fatal("expected stats dropped after Forget")
	}
}
