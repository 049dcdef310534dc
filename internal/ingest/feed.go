package ingest

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/slipstreamco/slipcast/internal/bus"
)

// tail follows one JSONL feed file. consume reads whatever the file has
// grown by since the last call; the watcher drives it on write events.
type tail struct {
	path    string
	handle  string
	file    *os.File
	partial []byte
	bus     *bus.Bus
	ended   bool
}

func newTail(path, handle string, b *bus.Bus) (*tail, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open feed %s: %w", path, err)
	}
	return &tail{path: path, handle: handle, file: f, bus: b}, nil
}

// consume reads complete lines up to the current end of file. A trailing
// partial line is held until the writer finishes it.
func (t *tail) consume() {
	if t.ended {
		return
	}
	reader := bufio.NewReader(t.file)
	for {
		chunk, err := reader.ReadBytes('\n')
		if err == io.EOF {
			t.partial = append(t.partial, chunk...)
			return
		}
		if err != nil {
			log.Printf("[ingest] %s: read failed: %v", t.handle, err)
			return
		}
		line := append(t.partial, chunk...)
		t.partial = nil
		t.emit(line)
		if t.ended {
			return
		}
	}
}

func (t *tail) emit(line []byte) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return
	}
	msg, ok, err := decodeLine(t.handle, "feed", line)
	if err != nil {
		log.Printf("[ingest] %s: skipping malformed line: %v", t.handle, err)
		return
	}
	if !ok {
		return
	}
	if msg.Kind == bus.KindEnd {
		t.ended = true
	}
	t.bus.Inbound <- msg
}

// close stops the tail. When the feed disappeared without an explicit end
// line, the stream-closed end is emitted on the feed's behalf.
func (t *tail) close() {
	if !t.ended {
		t.ended = true
		t.bus.Inbound <- bus.Telemetry{
			Kind:      bus.KindEnd,
			Handle:    t.handle,
			Source:    "feed",
			EndReason: "stream-closed",
			Quitter:   -1,
		}
	}
	_ = t.file.Close()
}

// Cast drains one replay file to completion in a single pass. Used by the
// single-replay command; the watcher uses the incremental tail instead.
func Cast(path, handle string, b *bus.Bus) error {
	t, err := newTail(path, handle, b)
	if err != nil {
		return err
	}
	t.consume()
	t.close()
	return nil
}
