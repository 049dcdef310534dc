package narrate

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/slipstreamco/slipcast/internal/events"
	"github.com/slipstreamco/slipcast/internal/provider"
)

type fakeProvider struct {
	mu    sync.Mutex
	calls int
	text  string
	err   error
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Complete(ctx context.Context, req provider.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.text, f.err
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testBatch() []events.Event {
	return []events.Event{
		events.StockLost{Player: 0, StocksLost: 1, Remaining: 2, FrameNum: 4500},
		events.Combo{Player: 1, Hits: 5, Damage: 42.3, StartFrame: 4300, EndFrame: 4480},
	}
}

func TestCacheKeyOrderIndependent(t *testing.T) {
	batch := testBatch()
	reversed := []events.Event{batch[1], batch[0]}

	if CacheKey(batch, StyleHype) != CacheKey(reversed, StyleHype) {
		t.Fatal("cache key should not depend on batch order")
	}
}

func TestCacheKeyVariesByStyle(t *testing.T) {
	batch := testBatch()
	if CacheKey(batch, StyleHype) == CacheKey(batch, StyleTechnical) {
		t.Fatal("cache key should vary by style")
	}
}

func TestCacheTTLExpiry(t *testing.T) {
	c := NewCache(30*time.Second, 100)
	current := time.Unix(1000, 0)
	c.now = func() time.Time { return current }

	c.Put("k", "line")
	if text, ok := c.Get("k"); !ok || text != "line" {
		t.Fatalf("expected fresh hit, got %q %v", text, ok)
	}

	current = current.Add(31 * time.Second)
	if _, ok := c.Get("k"); ok {
		t.Fatal("expected expired entry to miss")
	}
	if c.Len() != 0 {
		t.Fatalf("expired entry should be removed, len=%d", c.Len())
	}
}

func TestCacheEvictsOldestFirst(t *testing.T) {
	c := NewCache(time.Minute, 2)
	c.Put("a", "1")
	c.Put("b", "2")
	c.Put("c", "3")

	if _, ok := c.Get("a"); ok {
		t.Fatal("oldest entry should be evicted")
	}
	if _, ok := c.Get("b"); !ok {
		t.Fatal("entry b should survive")
	}
	if _, ok := c.Get("c"); !ok {
		t.Fatal("entry c should survive")
	}
}

func TestCacheReinsertMovesToBack(t *testing.T) {
	c := NewCache(time.Minute, 2)
	c.Put("a", "1")
	c.Put("b", "2")
	c.Put("a", "1b")
	c.Put("c", "3")

	if _, ok := c.Get("b"); ok {
		t.Fatal("b became oldest after a was re-inserted, should be evicted")
	}
	if text, ok := c.Get("a"); !ok || text != "1b" {
		t.Fatalf("re-inserted entry should survive with new text, got %q %v", text, ok)
	}
}

func TestCacheSweep(t *testing.T) {
	c := NewCache(30*time.Second, 100)
	current := time.Unix(1000, 0)
	c.now = func() time.Time { return current }

	c.Put("old", "1")
	current = current.Add(20 * time.Second)
	c.Put("fresh", "2")
	current = current.Add(15 * time.Second)

	if removed := c.Sweep(); removed != 1 {
		t.Fatalf("expected 1 swept entry, got %d", removed)
	}
	if _, ok := c.Get("fresh"); !ok {
		t.Fatal("fresh entry should survive the sweep")
	}
}

func TestNarrateProviderCalledOncePerKey(t *testing.T) {
	p := &fakeProvider{text: "What a sequence!"}
	d := New(p, NewCache(time.Minute, 100), 150, 0.7)
	batch := testBatch()

	first := d.Narrate(context.Background(), "m1", batch, nil, StyleHype)
	second := d.Narrate(context.Background(), "m1", []events.Event{batch[1], batch[0]}, nil, StyleHype)

	if first != "What a sequence!" || second != first {
		t.Fatalf("expected identical cached text, got %q and %q", first, second)
	}
	if p.callCount() != 1 {
		t.Fatalf("expected one provider call, got %d", p.callCount())
	}
}

func TestNarrateFallsBackOnProviderError(t *testing.T) {
	p := &fakeProvider{err: errors.New("rate limited")}
	d := New(p, NewCache(time.Minute, 100), 150, 0.7)

	batch := []events.Event{events.MatchEnd{Reason: events.EndGame, FrameNum: 9000}}
	text := d.Narrate(context.Background(), "m1", batch, nil, StyleHype)

	found := false
	for _, phrase := range matchEndPhrases {
		if text == phrase {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a template phrase on provider failure, got %q", text)
	}
}

func TestNarrateTemplatesOnlyWithoutProvider(t *testing.T) {
	d := New(nil, NewCache(time.Minute, 100), 150, 0.7)

	roster := []events.PlayerInfo{
		{Index: 0, Port: 1, CharacterID: 2},  // Fox
		{Index: 1, Port: 2, CharacterID: 20}, // Falco
	}
	batch := []events.Event{events.StockLost{Player: 0, StocksLost: 1, Remaining: 3, FrameNum: 600}}
	text := d.Narrate(context.Background(), "m1", batch, &Context{Roster: roster, StageID: 32}, StyleHype)

	if !strings.Contains(text, "Fox") {
		t.Fatalf("expected character name in template output, got %q", text)
	}
}

func TestNarrateEmptyBatch(t *testing.T) {
	d := New(nil, nil, 150, 0.7)
	if text := d.Narrate(context.Background(), "m1", nil, nil, StyleHype); text != "" {
		t.Fatalf("expected empty text for empty batch, got %q", text)
	}
}

func TestRenderUnknownSubtypeUsesDefault(t *testing.T) {
	batch := []events.Event{events.ActionState{Player: 0, Subtype: events.Subtype("unknown"), FrameNum: 10}}
	if text := Render(batch, nil); text != defaultPhrase {
		t.Fatalf("expected default phrase, got %q", text)
	}
}

func TestRenderCoversEveryEventType(t *testing.T) {
	roster := []events.PlayerInfo{{Index: 0, Port: 1, CharacterID: 9}}
	mctx := &Context{Roster: roster, StageID: 8}
	batch := []events.Event{
		events.MatchStart{Roster: roster, StageID: 8},
		events.StockLost{Player: 0, StocksLost: 1, Remaining: 3, FrameNum: 100},
		events.Combo{Player: 0, Hits: 4, Damage: 30, StartFrame: 50, EndFrame: 90},
		events.ActionState{Player: 0, Subtype: events.SubtypeWavedash, FrameNum: 120},
		events.FrameHeartbeat{FrameNum: 300, Players: []events.PlayerSnapshot{{Index: 0, Stocks: 3, Percent: 42}}},
		events.MatchEnd{Reason: events.EndGame, FrameNum: 9000},
	}
	text := Render(batch, mctx)
	if text == "" || text == defaultPhrase {
		t.Fatalf("expected composed narration, got %q", text)
	}
}

func TestParseStyle(t *testing.T) {
	if ParseStyle(" Technical ") != StyleTechnical {
		t.Fatal("expected technical")
	}
	if ParseStyle("bogus") != StyleHype {
		t.Fatal("expected hype default")
	}
}
