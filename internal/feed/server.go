package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/bacakata/internal/observe"
	"github.com/MrWong99/bacakata/internal/session"
)

// defaultReadLimit bounds a single client frame in bytes.
const defaultReadLimit = 64 * 1024

// Frame is a client message: one recognizer result for the connection's
// session.
type Frame struct {
	// Text is the recognized text.
	Text string `json:"text"`

	// Busy reports whether the client's narration output is still speaking.
	Busy bool `json:"busy,omitempty"`

	// Error is set when recognition failed on the client. Text is ignored.
	Error string `json:"error,omitempty"`
}

// Reply is the server's answer to one [Frame].
type Reply struct {
	// Action is "emit", "suppress" or "failed".
	Action string `json:"action"`

	// Text is the text to display and narrate. Set only for "emit".
	Text string `json:"text,omitempty"`

	// Reason explains a suppression.
	Reason string `json:"reason,omitempty"`

	// Corrected is the corrected fragment, whether or not it was emitted.
	Corrected string `json:"corrected"`

	// Similarity is the score against the last narrated text.
	Similarity int `json:"similarity"`

	// Skipped reports that correction was not run due to the cooldown.
	Skipped bool `json:"skipped,omitempty"`

	// Session is the server-side session ID.
	Session string `json:"session"`

	// Trace is the trace ID under which the frame was handled.
	Trace string `json:"trace,omitempty"`
}

// ActionFailed is the [Reply.Action] for frames that carried an error.
const ActionFailed = "failed"

// EngineFactory creates the engine for a new connection.
type EngineFactory func() *session.Engine

// ServerOption is a functional option for configuring a [Server].
type ServerOption func(*Server)

// WithOriginPatterns sets the host patterns accepted for cross-origin
// connections. Default: same origin only.
func WithOriginPatterns(patterns ...string) ServerOption {
	return func(s *Server) {
		s.origins = append(s.origins, patterns...)
	}
}

// WithReadLimit sets the maximum size of one client frame. Default: 64 KiB.
func WithReadLimit(n int64) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.readLimit = n
		}
	}
}

// WithServerClock sets the time source used to stamp frames. Default: [time.Now].
func WithServerClock(now func() time.Time) ServerOption {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// Server is an [http.Handler] that upgrades requests to WebSocket
// connections. Every connection gets its own [session.Engine]; frames on a
// connection are processed strictly in order.
type Server struct {
	origins   []string
	readLimit int64
	now       func() time.Time

	base   context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	factory  EngineFactory
	sessions map[string]*session.Engine
}

var _ http.Handler = (*Server)(nil)

// NewServer returns a Server creating engines with factory.
func NewServer(factory EngineFactory, opts ...ServerOption) *Server {
	s := &Server{
		readLimit: defaultReadLimit,
		now:       time.Now,
		factory:   factory,
		sessions:  make(map[string]*session.Engine),
	}
	for _, o := range opts {
		o(s)
	}
	s.base, s.cancel = context.WithCancel(context.Background())
	return s
}

// Close ends every open connection with a going-away status. Hijacked
// connections are not tracked by [http.Server.Shutdown], so call Close
// during shutdown.
func (s *Server) Close() {
	s.cancel()
}

// Len returns the number of open connections.
func (s *Server) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// SetFactory replaces the engine factory. Existing connections keep their
// engines; only new connections use the new factory.
func (s *Server) SetFactory(factory EngineFactory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.factory = factory
}

// Sessions returns stats for every open connection.
func (s *Server) Sessions() []session.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]session.Stats, 0, len(s.sessions))
	for _, e := range s.sessions {
		out = append(out, e.Stats())
	}
	return out
}

// ServeHTTP implements [http.Handler].
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.origins,
	})
	if err != nil {
		observe.Logger(r.Context()).Warn("feed: websocket accept failed", "err", err)
		return
	}
	conn.SetReadLimit(s.readLimit)

	engine := s.open()
	defer s.close(engine)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(s.base, cancel)
	defer stop()

	ctx = observe.WithSession(ctx, engine.ID())
	log := observe.Logger(ctx)
	log.Info("feed: session opened", "remote", r.RemoteAddr)

	err = s.serve(ctx, conn, engine)
	switch {
	case err == nil, websocket.CloseStatus(err) == websocket.StatusNormalClosure,
		websocket.CloseStatus(err) == websocket.StatusGoingAway:
		conn.Close(websocket.StatusNormalClosure, "session closed")
	case errors.Is(err, context.Canceled):
		conn.Close(websocket.StatusGoingAway, "server shutting down")
	default:
		log.Warn("feed: session ended with error", "err", err)
		conn.Close(websocket.StatusInternalError, "session error")
	}

	st := engine.Stats()
	log.Info("feed: session closed", "frames", st.Frames, "emitted", st.Emitted, "failures", st.Failures)
}

func (s *Server) serve(ctx context.Context, conn *websocket.Conn, engine *session.Engine) error {
	for {
		var f Frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			return err
		}
		if err := wsjson.Write(ctx, conn, s.handle(ctx, engine, f)); err != nil {
			return err
		}
	}
}

func (s *Server) handle(ctx context.Context, engine *session.Engine, f Frame) Reply {
	ctx, span := observe.StartSpan(ctx, "feed.frame", trace.WithAttributes(
		attribute.Bool("frame.busy", f.Busy),
		attribute.Bool("frame.failed", f.Error != ""),
	))
	defer span.End()
	traceID := observe.CorrelationID(ctx)

	if f.Error != "" {
		err := fmt.Errorf("%w: %s", ErrRecognition, f.Error)
		span.SetStatus(codes.Error, err.Error())
		engine.Fail(ctx, err)
		return Reply{Action: ActionFailed, Session: engine.ID(), Trace: traceID}
	}
	out := engine.Process(ctx, f.Text, s.now(), f.Busy)
	return Reply{
		Action:     out.Decision.Action.String(),
		Text:       out.Decision.Text,
		Reason:     string(out.Decision.Reason),
		Corrected:  out.Fragment.Corrected,
		Similarity: out.Decision.Similarity,
		Skipped:    out.Skipped,
		Session:    engine.ID(),
		Trace:      traceID,
	}
}

func (s *Server) open() *session.Engine {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.factory()
	s.sessions[e.ID()] = e
	return e
}

func (s *Server) close(e *session.Engine) {
	s.mu.Lock()
	delete(s.sessions, e.ID())
	s.mu.Unlock()
	e.Close()
	slog.Debug("feed: engine released", "session_id", e.ID())
}
