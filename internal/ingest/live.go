package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/slipstreamco/slipcast/internal/bus"
)

const liveHandshakeTimeout = 10 * time.Second

// Live streams telemetry from a websocket endpoint. Each connection is one
// match with a generated handle; the stream closing ends the match.
type Live struct {
	url    string
	handle string
	bus    *bus.Bus
	dial   func(url string) (liveConn, error)
}

// liveConn narrows *websocket.Conn for tests.
type liveConn interface {
	ReadMessage() (int, []byte, error)
	Close() error
}

func NewLive(url string, b *bus.Bus) *Live {
	return &Live{
		url:    url,
		handle: "live-" + uuid.NewString(),
		bus:    b,
		dial: func(url string) (liveConn, error) {
			dialer := websocket.Dialer{HandshakeTimeout: liveHandshakeTimeout}
			conn, _, err := dialer.Dial(url, nil)
			return conn, err
		},
	}
}

func (l *Live) Handle() string { return l.handle }

// Run connects and forwards messages until the stream closes or ctx ends.
// The implicit match end is always emitted, whatever ended the stream.
func (l *Live) Run(ctx context.Context) error {
	conn, err := l.dial(l.url)
	if err != nil {
		return fmt.Errorf("dial %s: %w", l.url, err)
	}
	defer conn.Close()

	log.Printf("[ingest] live stream %s connected as match %s", l.url, l.handle)

	ended := false
	defer func() {
		if !ended {
			l.bus.Inbound <- bus.Telemetry{
				Kind:      bus.KindEnd,
				Handle:    l.handle,
				Source:    "live",
				EndReason: "stream-closed",
				Quitter:   -1,
			}
		}
	}()

	// Unblock ReadMessage when ctx ends.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("read live stream: %w", err)
		}
		msg, ok, err := decodeLine(l.handle, "live", data)
		if err != nil {
			log.Printf("[ingest] %s: skipping malformed message: %v", l.handle, err)
			continue
		}
		if !ok {
			continue
		}
		if msg.Kind == bus.KindEnd {
			ended = true
		}
		l.bus.Inbound <- msg
		if ended {
			return nil
		}
	}
}
