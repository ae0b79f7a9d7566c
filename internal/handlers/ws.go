// internal/handlers/ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/jason-s-yu/trivia/internal/auth"
	"github.com/jason-s-yu/trivia/internal/broadcast"
	"github.com/jason-s-yu/trivia/internal/lobby"
	"github.com/jason-s-yu/trivia/internal/middleware"
	"github.com/jason-s-yu/trivia/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Subprotocol is the only protocol /ws speaks.
const Subprotocol = "trivia"

const maxFrameBytes = 64 << 10

var (
	errPeerClosed   = errors.New("peer closed the connection")
	errInvalidFrame = lobby.Errorf(lobby.KindInvalid, "invalid json frame")
)

// wsTransport is the registry's handle on one socket. Send never blocks: a
// client that cannot keep up with its buffer is disconnected.
type wsTransport struct {
	out  chan interface{}
	done chan struct{}
	once sync.Once

	code   websocket.StatusCode
	reason string
}

func newWSTransport(buffer int) *wsTransport {
	return &wsTransport{
		out:  make(chan interface{}, buffer),
		done: make(chan struct{}),
	}
}

func (t *wsTransport) Send(msg interface{}) bool {
	select {
	case <-t.done:
		return false
	default:
	}
	select {
	case t.out <- msg:
		return true
	case <-t.done:
		return false
	default:
		t.closeWith(SlowConsumerError, "outbound buffer full")
		return false
	}
}

// Close is called by the registry when a newer session takes over.
func (t *wsTransport) Close(reason string) {
	t.closeWith(ReplacedSessionError, reason)
}

func (t *wsTransport) closeWith(code websocket.StatusCode, reason string) {
	t.once.Do(func() {
		t.code = code
		t.reason = reason
		close(t.done)
	})
}

// actionResult answers one socket frame.
type actionResult struct {
	RequestID string      `json:"request_id,omitempty"`
	Action    string      `json:"action"`
	OK        bool        `json:"ok"`
	Result    interface{} `json:"result,omitempty"`
	Error     *rejection  `json:"error,omitempty"`
}

// originPatterns turns CORS origins into the host patterns websocket.Accept expects.
func originPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			out = append(out, u.Host)
			continue
		}
		out = append(out, o)
	}
	return out
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	id := caller(r)
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{Subprotocol},
		OriginPatterns: originPatterns(s.opts.AllowedOrigins),
	})
	if err != nil {
		s.Logger.Warnf("websocket accept error: %v", err)
		return
	}
	defer c.Close(websocket.StatusInternalError, "handler finished")

	if c.Subprotocol() != Subprotocol {
		c.Close(BadSubprotocolError, "client must speak the trivia subprotocol")
		return
	}
	c.SetReadLimit(maxFrameBytes)

	fields := logrus.Fields{"user": id.UserID}
	middleware.LogWebSocketConnect(s.Logger, r.RemoteAddr, r.URL.Path, fields)

	if id.Username == "" {
		id.Username = s.displayName(r.Context(), id)
	}

	t := newWSTransport(s.opts.WriteBuffer)
	s.Registry.Register(id.UserID, t)

	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error { return s.writePump(ctx, c, t) })
	g.Go(func() error { return s.readPump(ctx, c, t, id) })
	err = g.Wait()

	s.Registry.Unregister(t)
	if errors.Is(err, errPeerClosed) {
		err = nil
	}
	middleware.LogWebSocketDisconnect(s.Logger, r.RemoteAddr, r.URL.Path, fields, err)
}

// readPump decodes client frames and dispatches them one at a time.
func (s *Server) readPump(ctx context.Context, c *websocket.Conn, t *wsTransport, id auth.Identity) error {
	for {
		typ, msg, err := c.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return errPeerClosed
			}
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if typ != websocket.MessageText {
			continue
		}

		var action models.Action
		if err := json.Unmarshal(msg, &action); err != nil {
			_, body := rejectionFor(errInvalidFrame)
			t.Send(s.envelope(action, actionResult{Error: &body}))
			continue
		}

		res, err := s.dispatch(ctx, id, action)
		reply := actionResult{RequestID: action.RequestID, Action: action.Type, OK: err == nil}
		if err != nil {
			status, body := rejectionFor(err)
			if status == http.StatusInternalServerError {
				s.Logger.WithFields(logrus.Fields{"user": id.UserID, "action": action.Type}).Errorf("unclassified error: %v", err)
			}
			reply.Error = &body
		} else {
			reply.Result = res
		}
		t.Send(s.envelope(action, reply))
	}
}

func (s *Server) envelope(action models.Action, res actionResult) broadcast.Envelope {
	return broadcast.Envelope{
		Type:      broadcast.EventActionResult,
		LobbyID:   action.LobbyID,
		Timestamp: time.Now().UnixMilli(),
		Payload:   res,
	}
}

// writePump owns every write to c, including pings and the final close.
func (s *Server) writePump(ctx context.Context, c *websocket.Conn, t *wsTransport) error {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-t.done:
			// flush what was queued before the close, e.g. force_disconnected
		drain:
			for {
				select {
				case msg := <-t.out:
					if err := s.write(ctx, c, msg); err != nil {
						return err
					}
				default:
					break drain
				}
			}
			c.Close(t.code, t.reason)
			return errors.New(t.reason)

		case msg := <-t.out:
			if err := s.write(ctx, c, msg); err != nil {
				return err
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, s.opts.WriteTimeout)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}

func (s *Server) write(ctx context.Context, c *websocket.Conn, msg interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		s.Logger.Warnf("failed to marshal outgoing message: %v", err)
		return nil
	}
	writeCtx, cancel := context.WithTimeout(ctx, s.opts.WriteTimeout)
	defer cancel()
	return c.Write(writeCtx, websocket.MessageText, data)
}
