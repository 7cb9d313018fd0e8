package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/time/rate"

	"github.com/sidelinehq/sideline/internal/observe"
	"github.com/sidelinehq/sideline/pkg/types"
)

const (
	// defaultRetryBackoff is the pause between reconnect attempts to the
	// capture device.
	defaultRetryBackoff = 3 * time.Second

	// drainIdleInterval is how often the drain loop re-checks an empty
	// spool while connected.
	drainIdleInterval = time.Second

	// drainRate bounds spool drain throughput so a long offline backlog
	// cannot saturate the link when the device reconnects.
	drainRate = 20 // payloads per second
)

// frame is the JSON envelope exchanged with the capture device.
//
// Inbound frames carry type "transcript" (direct-message ingestion path).
// Outbound frames carry the [Outbound] kind/body verbatim.
type frame struct {
	Type        string          `json:"type"`
	Text        string          `json:"text,omitempty"`
	WindowStart time.Time       `json:"window_start,omitzero"`
	WindowEnd   time.Time       `json:"window_end,omitzero"`
	Kind        string          `json:"kind,omitempty"`
	Body        json.RawMessage `json:"body,omitempty"`
}

// Compile-time interface check.
var _ Link = (*WSLink)(nil)

// WSOption is a functional option for configuring a [WSLink].
type WSOption func(*WSLink)

// WithRetryBackoff overrides the reconnect pause. Default: 3 seconds.
func WithRetryBackoff(d time.Duration) WSOption {
	return func(l *WSLink) {
		if d > 0 {
			l.retryBackoff = d
		}
	}
}

// WithMetrics sets the metrics instance. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) WSOption {
	return func(l *WSLink) {
		if m != nil {
			l.metrics = m
		}
	}
}

// WSLink is the websocket connection to the capture device. It dials the
// device, redials on loss, dispatches inbound frames to the [Handler], and
// drains the [Spool] whenever the device is reachable.
//
// All methods are safe for concurrent use.
type WSLink struct {
	url          string
	handler      Handler
	spool        *Spool
	metrics      *observe.Metrics
	limiter      *rate.Limiter
	retryBackoff time.Duration

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWSLink creates a link that will dial the capture device at url
// (e.g. "ws://capture.local:9400/link"). The link does not connect until
// [WSLink.Run] is called.
func NewWSLink(url string, handler Handler, spool *Spool, opts ...WSOption) *WSLink {
	l := &WSLink{
		url:          url,
		handler:      handler,
		spool:        spool,
		metrics:      observe.DefaultMetrics(),
		limiter:      rate.NewLimiter(rate.Limit(drainRate), 1),
		retryBackoff: defaultRetryBackoff,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Run connects to the capture device and processes frames until ctx is
// done. Connection loss is not fatal; the link backs off and redials.
func (l *WSLink) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, _, err := websocket.Dial(ctx, l.url, &websocket.DialOptions{})
		if err != nil {
			slog.Warn("capture device unreachable, retrying", "url", l.url, "err", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(l.retryBackoff):
			}
			continue
		}

		l.setConn(conn)
		slog.Info("capture device connected", "url", l.url)

		// Drain spooled payloads for as long as this connection lives.
		drainCtx, stopDrain := context.WithCancel(ctx)
		go l.drain(drainCtx, conn)

		err = l.readLoop(ctx, conn)
		stopDrain()
		l.setConn(nil)
		conn.Close(websocket.StatusNormalClosure, "link closed")

		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Warn("capture device link lost, reconnecting", "err", err)
	}
}

// readLoop dispatches inbound frames until the connection fails.
func (l *WSLink) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			slog.Warn("discarding malformed frame", "err", err)
			continue
		}

		switch f.Type {
		case "transcript":
			d := TranscriptDelivery{
				Text:   f.Text,
				Window: types.Window{Start: f.WindowStart, End: f.WindowEnd},
			}
			if err := l.handler.HandleTranscript(ctx, d); err != nil {
				slog.Error("transcript delivery failed", "err", err)
			}
		default:
			slog.Warn("discarding frame of unknown type", "type", f.Type)
		}
	}
}

// drain delivers spooled payloads over conn until the context is cancelled
// or a write fails (the payload stays queued for the next connection).
func (l *WSLink) drain(ctx context.Context, conn *websocket.Conn) {
	for {
		if err := l.limiter.Wait(ctx); err != nil {
			return
		}

		id, out, ok, err := l.spool.Next()
		if err != nil {
			slog.Error("spool read failed", "err", err)
			return
		}
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-time.After(drainIdleInterval):
			}
			continue
		}

		if err := l.writeOutbound(ctx, conn, out); err != nil {
			slog.Warn("spool drain write failed, payload stays queued", "err", err)
			return
		}
		if err := l.spool.Ack(id); err != nil {
			slog.Error("spool ack failed", "id", id, "err", err)
			return
		}
		l.metrics.SpoolDepth.Add(ctx, -1)
	}
}

// IsReachable implements [Link].
func (l *WSLink) IsReachable() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn != nil
}

// SendOrQueue implements [Link]. A payload that cannot be written right now
// (unreachable device, failed write) is spooled; the caller is never
// blocked waiting for the device.
func (l *WSLink) SendOrQueue(ctx context.Context, out Outbound) (SendState, error) {
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()

	if conn != nil {
		if err := l.writeOutbound(ctx, conn, out); err == nil {
			return SendSent, nil
		}
		// Fall through: the connection just died, spool instead.
	}

	if err := l.spool.Enqueue(out); err != nil {
		return SendQueued, fmt.Errorf("transport: queue outbound: %w", err)
	}
	l.metrics.SpoolDepth.Add(ctx, 1)
	return SendQueued, nil
}

func (l *WSLink) writeOutbound(ctx context.Context, conn *websocket.Conn, out Outbound) error {
	data, err := json.Marshal(frame{Type: "outbound", Kind: out.Kind, Body: out.Body})
	if err != nil {
		return fmt.Errorf("transport: marshal outbound: %w", err)
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

func (l *WSLink) setConn(conn *websocket.Conn) {
	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()
}
