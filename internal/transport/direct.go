package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"

	"github.com/coder/websocket"
)

// Direct is a Transport backed by a directly connected websocket client.
type Direct struct {
	conn   *websocket.Conn
	ctx    context.Context
	closed atomic.Bool
}

// NewDirect wraps an accepted websocket connection. ctx bounds the
// connection's lifetime (typically the request context).
func NewDirect(ctx context.Context, conn *websocket.Conn) *Direct {
	return &Direct{conn: conn, ctx: ctx}
}

// Send marshals v to JSON and writes it as a text message.
func (d *Direct) Send(v any) error {
	if d.closed.Load() {
		return context.Canceled
	}
	if err := d.ctx.Err(); err != nil {
		d.closed.Store(true)
		return err
	}

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := d.conn.Write(d.ctx, websocket.MessageText, data); err != nil {
		// Abrupt client disconnects are routine; mark closed and stop writing.
		slog.Debug("Direct transport write failed", "error", err)
		d.closed.Store(true)
		return err
	}
	return nil
}

// Open reports whether the connection is still usable.
func (d *Direct) Open() bool {
	return !d.closed.Load() && d.ctx.Err() == nil
}

// MarkClosed flags the transport as unusable without closing the socket,
// which the accept loop owns.
func (d *Direct) MarkClosed() {
	d.closed.Store(true)
}
