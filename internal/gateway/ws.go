package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/bananabit/fluxgate/internal/dispatch"
)

// channelRequest is one invocation submitted over the WebSocket channel.
// The id is echoed back in the matching response; when the client omits
// it the gateway assigns one.
type channelRequest struct {
	ID        string         `json:"id"`
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
}

// channelResponse is delivered in completion order, not submission order.
type channelResponse struct {
	ID     string       `json:"id"`
	Tool   string       `json:"tool"`
	Status string       `json:"status"`
	Result any          `json:"result,omitempty"`
	Error  *errorDetail `json:"error,omitempty"`
}

func (s *Server) handleChannel(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("websocket accept failed", "error", err)
		return
	}

	s.metrics.ChannelConnections.Add(r.Context(), 1)
	defer s.metrics.ChannelConnections.Add(context.Background(), -1)

	sess := &channelSession{
		server: s,
		conn:   conn,
		outbox: make(chan channelResponse, s.backlog),
		slots:  make(chan struct{}, s.backlog),
	}
	sess.run(r.Context())
}

// channelSession owns one WebSocket connection. The read loop never
// blocks on a dispatch: every invocation runs on its own goroutine and
// pushes its response into the outbox, which a single writer drains.
// The slots channel bounds the per-connection backlog; submissions
// beyond it are refused immediately with a capacity error.
type channelSession struct {
	server *Server
	conn   *websocket.Conn
	outbox chan channelResponse
	slots  chan struct{}

	wg sync.WaitGroup
}

func (c *channelSession) run(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	writerDone := make(chan struct{})
	go c.writeLoop(ctx, cancel, writerDone)

	c.readLoop(ctx)

	// Connection is gone. Cancel outstanding invocations so their
	// dispatcher slots are released, then wait for them to drain and
	// shut the writer down.
	cancel()
	c.wg.Wait()
	close(c.outbox)
	<-writerDone

	c.conn.Close(websocket.StatusNormalClosure, "session closed")
}

func (c *channelSession) readLoop(ctx context.Context) {
	for {
		var req channelRequest
		if err := wsjson.Read(ctx, c.conn, &req); err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				c.server.log.Debug("websocket read ended", "error", err)
			}
			return
		}
		if req.ID == "" {
			req.ID = uuid.NewString()
		}

		select {
		case c.slots <- struct{}{}:
		default:
			// Connection backlog exhausted. Refuse without touching
			// the global slot pool.
			c.deliver(ctx, channelResponse{
				ID:     req.ID,
				Tool:   req.Tool,
				Status: "error",
				Error: &errorDetail{
					Kind:    dispatch.KindCapacity.String(),
					Message: "channel backlog exhausted",
				},
			})
			continue
		}

		c.wg.Add(1)
		go c.invoke(ctx, req)
	}
}

func (c *channelSession) invoke(ctx context.Context, req channelRequest) {
	defer c.wg.Done()
	defer func() { <-c.slots }()

	inv := dispatch.Invocation{
		Tool:          req.Tool,
		Args:          req.Arguments,
		CorrelationID: req.ID,
		SubmittedAt:   time.Now(),
	}

	resp := channelResponse{ID: req.ID, Tool: req.Tool}
	result, err := c.server.dispatcher.TryDispatch(ctx, inv)
	if err != nil {
		kind := dispatch.KindInternal
		msg := "internal error"
		if derr, ok := dispatch.AsError(err); ok {
			kind = derr.Kind
			msg = derr.Message
		}
		resp.Status = "error"
		resp.Error = &errorDetail{Kind: kind.String(), Message: msg}
	} else {
		resp.Status = "ok"
		resp.Result = result
	}

	c.deliver(ctx, resp)
}

// deliver queues a response for the writer, dropping it when the
// connection is already gone.
func (c *channelSession) deliver(ctx context.Context, resp channelResponse) {
	select {
	case c.outbox <- resp:
	case <-ctx.Done():
	}
}

// writeLoop is the sole writer on the connection. When a write fails it
// cancels the whole session, otherwise a reader parked on a full outbox
// would wait on it forever.
func (c *channelSession) writeLoop(ctx context.Context, cancel context.CancelFunc, done chan<- struct{}) {
	defer close(done)
	defer cancel()
	for resp := range c.outbox {
		payload, err := json.Marshal(resp)
		if err != nil {
			c.server.log.Error("failed to encode channel response",
				"correlation_id", resp.ID, "error", err)
			continue
		}
		if err := c.conn.Write(ctx, websocket.MessageText, payload); err != nil {
			c.server.log.Debug("websocket write failed", "error", err)
			return
		}
	}
}
