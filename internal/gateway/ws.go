package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/voxgate/internal/session"
	"github.com/MrWong99/voxgate/internal/stream"
)

// rejectTimeout bounds the error frame sent to a connection that never
// enters the pipeline.
const rejectTimeout = 5 * time.Second

// handleStream upgrades the connection and offers it to the worker queue.
// The handler returns immediately after enqueueing; a worker owns the
// connection from then on.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, err := s.svc.Store().Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown_session")
		return
	}

	// The fixed window was already charged when the session was created;
	// opening the stream for an admitted session is always free.
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "session_id", id, "error", err)
		return
	}
	t := newWSTransport(conn)

	// A session's stream can only be opened once, while it is pending.
	if sess.Status != session.StatusPending {
		reject(t, 400, "session_not_pending", stream.CloseBadRequest)
		return
	}

	if err := s.queue.TryEnqueue(r.Context(), stream.WorkItem{SessionID: id, Transport: t}); err != nil {
		reason := "queue_full"
		if errors.Is(err, stream.ErrQueueClosed) {
			reason = "shutting_down"
		}
		slog.Warn("stream rejected", "session_id", id, "reason", reason)
		// The session stays pending so the client may retry after backoff.
		reject(t, 503, reason, stream.CloseTryAgainLater)
	}
}

// reject delivers a terminal error frame to a connection that was never
// handed to the pipeline, then closes it.
func reject(t *wsTransport, code int, reason string, closeCode stream.CloseCode) {
	ctx, cancel := context.WithTimeout(context.Background(), rejectTimeout)
	defer cancel()
	_ = t.Send(ctx, stream.ErrorFrame(code, reason))
	_ = t.Close(closeCode, reason)
}

// wsTransport adapts a websocket connection to [stream.Transport]. The
// protocol is server-to-client only; inbound messages are drained and
// dropped, and the first read error marks the peer gone.
type wsTransport struct {
	conn *websocket.Conn

	done      chan struct{}
	doneOnce  sync.Once
	closeOnce sync.Once
}

func newWSTransport(conn *websocket.Conn) *wsTransport {
	t := &wsTransport{
		conn: conn,
		done: make(chan struct{}),
	}
	go t.readLoop()
	return t
}

// readLoop drains inbound messages until the connection dies. Closing the
// connection server-side also ends the loop.
func (t *wsTransport) readLoop() {
	for {
		if _, _, err := t.conn.Read(context.Background()); err != nil {
			t.doneOnce.Do(func() { close(t.done) })
			return
		}
	}
}

// Send writes one JSON-encoded frame as a text message. The write blocks
// until the frame drains into the connection, making it the pipeline's
// back-pressure point.
func (t *wsTransport) Send(ctx context.Context, f stream.Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return t.conn.Write(ctx, websocket.MessageText, data)
}

// Close performs the websocket close handshake. Only the first call takes
// effect.
func (t *wsTransport) Close(code stream.CloseCode, reason string) error {
	var err error
	t.closeOnce.Do(func() {
		err = t.conn.Close(websocket.StatusCode(code), reason)
	})
	return err
}

// Done is closed when the peer has disconnected.
func (t *wsTransport) Done() <-chan struct{} {
	return t.done
}
