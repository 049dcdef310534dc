package ingest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/slipstreamco/slipcast/internal/bus"
	"github.com/slipstreamco/slipcast/internal/events"
)

func TestDecodeSettingsLine(t *testing.T) {
	line := []byte(`{"type":"settings","stage":31,"players":[{"port":1,"character":2,"cpu":false},{"port":2,"character":20,"cpu":true}]}`)

	msg, ok, err := decodeLine("m1", "feed", line)
	if err != nil || !ok {
		t.Fatalf("decode failed: ok=%v err=%v", ok, err)
	}
	if msg.Kind != bus.KindSettings || msg.StageID != 31 {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if len(msg.Roster) != 2 {
		t.Fatalf("expected 2 roster slots, got %d", len(msg.Roster))
	}
	if msg.Roster[1].Index != 1 || msg.Roster[1].CharacterID != 20 || !msg.Roster[1].CPU {
		t.Fatalf("unexpected roster slot: %+v", msg.Roster[1])
	}
}

func TestDecodeFrameLineWithGapAndCombo(t *testing.T) {
	line := []byte(`{"type":"frame","frame":123,"players":[{"stocks":4,"percent":12.4,"state":14},null],"combos":[{"player":0,"startFrame":90,"endFrame":120,"hits":4,"startPercent":10,"endPercent":42.5}]}`)

	msg, ok, err := decodeLine("m1", "feed", line)
	if err != nil || !ok {
		t.Fatalf("decode failed: ok=%v err=%v", ok, err)
	}
	if msg.Kind != bus.KindFrame || msg.Frame != 123 {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if len(msg.Players) != 2 || msg.Players[1] != nil {
		t.Fatalf("expected nil data-gap entry, got %+v", msg.Players)
	}
	if msg.Players[0].Percent != 12.4 || msg.Players[0].ActionState != 14 {
		t.Fatalf("unexpected player state: %+v", msg.Players[0])
	}
	if len(msg.Combos) != 1 || msg.Combos[0].Hits != 4 || msg.Combos[0].EndPercent != 42.5 {
		t.Fatalf("unexpected combos: %+v", msg.Combos)
	}
}

func TestDecodeEndLine(t *testing.T) {
	msg, ok, err := decodeLine("m1", "feed", []byte(`{"type":"end","reason":"GAME!","quitter":-1}`))
	if err != nil || !ok {
		t.Fatalf("decode failed: ok=%v err=%v", ok, err)
	}
	if msg.Kind != bus.KindEnd || msg.EndReason != events.EndGame || msg.Quitter != -1 {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestDecodeUnknownTypeIgnored(t *testing.T) {
	_, ok, err := decodeLine("m1", "feed", []byte(`{"type":"chat","text":"hi"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("unknown type should be ignored")
	}
}

func TestDecodeMalformedLine(t *testing.T) {
	_, _, err := decodeLine("m1", "feed", []byte(`{"type":`))
	if err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestParseEndReason(t *testing.T) {
	if parseEndReason("GAME!") != events.EndGame {
		t.Fatal("GAME! should map to game end")
	}
	if parseEndReason("LRAS") != events.EndQuit {
		t.Fatal("LRAS should map to quit")
	}
	if parseEndReason("whatever") != events.EndStreamClosed {
		t.Fatal("unknown reason should map to stream-closed")
	}
}

func TestCastDrainsWholeFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "game-001.jsonl")
	content := `{"type":"settings","stage":32,"players":[{"port":1,"character":2},{"port":2,"character":9}]}
{"type":"frame","frame":1,"players":[{"stocks":4,"percent":0,"state":14},{"stocks":4,"percent":0,"state":14}]}
{"type":"end","reason":"GAME!","quitter":-1}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	b := bus.New(16)
	if err := Cast(path, "game-001", b); err != nil {
		t.Fatalf("cast failed: %v", err)
	}

	var kinds []bus.TelemetryKind
	for len(b.Inbound) > 0 {
		kinds = append(kinds, (<-b.Inbound).Kind)
	}
	want := []bus.TelemetryKind{bus.KindSettings, bus.KindFrame, bus.KindEnd}
	if len(kinds) != len(want) {
		t.Fatalf("expected %v, got %v", want, kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, kinds)
		}
	}
}

func TestCastWithoutEndLineEmitsStreamClosed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "truncated.jsonl")
	content := `{"type":"settings","stage":8,"players":[{"port":1,"character":0},{"port":2,"character":1}]}
{"type":"frame","frame":1,"players":[{"stocks":4,"percent":0,"state":14},{"stocks":4,"percent":0,"state":14}]}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	b := bus.New(16)
	if err := Cast(path, "truncated", b); err != nil {
		t.Fatalf("cast failed: %v", err)
	}

	var last bus.Telemetry
	for len(b.Inbound) > 0 {
		last = <-b.Inbound
	}
	if last.Kind != bus.KindEnd || last.EndReason != events.EndStreamClosed {
		t.Fatalf("expected implicit stream-closed end, got %+v", last)
	}
}

func TestTailHoldsPartialLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "m.jsonl")
	if err := os.WriteFile(path, []byte(`{"type":"frame","fra`), 0o644); err != nil {
		t.Fatal(err)
	}

	b := bus.New(16)
	tl, err := newTail(path, "m", b)
	if err != nil {
		t.Fatal(err)
	}
	defer tl.close()

	tl.consume()
	if len(b.Inbound) != 0 {
		t.Fatal("partial line should not be emitted")
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("me\":7,\"players\":[{\"stocks\":4,\"percent\":1,\"state\":14}]}\n"); err != nil {
		t.Fatal(err)
	}
	f.Close()

	tl.consume()
	if len(b.Inbound) != 1 {
		t.Fatalf("expected 1 message after line completed, got %d", len(b.Inbound))
	}
	msg := <-b.Inbound
	if msg.Kind != bus.KindFrame || msg.Frame != 7 {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestHandleForPath(t *testing.T) {
	if got := HandleForPath("/spool/game-042.jsonl"); got != "game-042" {
		t.Fatalf("unexpected handle %q", got)
	}
}

func TestNewWatcherRejectsMissingDir(t *testing.T) {
	_, err := NewWatcher(filepath.Join(t.TempDir(), "absent"), bus.New(1))
	if err == nil {
		t.Fatal("expected error for missing directory")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

type fakeConn struct {
	frames [][]byte
	pos    int
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	if f.pos >= len(f.frames) {
		return 0, nil, &websocketClosed{}
	}
	data := f.frames[f.pos]
	f.pos++
	return 1, data, nil
}

func (f *fakeConn) Close() error { return nil }

type websocketClosed struct{}

func (*websocketClosed) Error() string { return "connection closed" }

func TestLiveEmitsImplicitEndOnStreamClose(t *testing.T) {
	b := bus.New(16)
	l := NewLive("ws://example", b)
	l.dial = func(string) (liveConn, error) {
		return &fakeConn{frames: [][]byte{
			[]byte(`{"type":"settings","stage":3,"players":[{"port":1,"character":12},{"port":2,"character":13}]}`),
			[]byte(`{"type":"frame","frame":1,"players":[{"stocks":4,"percent":0,"state":14},{"stocks":4,"percent":0,"state":14}]}`),
		}}, nil
	}

	ctx := t.Context()
	if err := l.Run(ctx); err == nil {
		t.Fatal("expected read error from abrupt close")
	}

	var last bus.Telemetry
	for len(b.Inbound) > 0 {
		last = <-b.Inbound
	}
	if last.Kind != bus.KindEnd || last.EndReason != events.EndStreamClosed {
		t.Fatalf("expected implicit end, got %+v", last)
	}
	if last.Handle != l.Handle() {
		t.Fatalf("handle mismatch: %q vs %q", last.Handle, l.Handle())
	}
}

func TestLiveStopsAfterExplicitEnd(t *testing.T) {
	b := bus.New(16)
	l := NewLive("ws://example", b)
	l.dial = func(string) (liveConn, error) {
		return &fakeConn{frames: [][]byte{
			[]byte(`{"type":"end","reason":"GAME!","quitter":-1}`),
			[]byte(`{"type":"frame","frame":99,"players":[]}`),
		}}, nil
	}

	if err := l.Run(t.Context()); err != nil {
		t.Fatalf("expected clean stop after end message, got %v", err)
	}

	count := 0
	for len(b.Inbound) > 0 {
		<-b.Inbound
		count++
	}
	if count != 1 {
		t.Fatalf("expected only the end message, got %d messages", count)
	}
}
