package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/bonosa/MarsLife/internal/metrics"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	writeTimeout = 10 * time.Second
	readLimit    = 64 << 10

	// maxInflight bounds the frames one session may have in progress. The
	// read loop stops reading while the session is at the limit.
	maxInflight = 4
)

// Server upgrades HTTP requests to WebSocket sessions.
type Server struct {
	handler         *Handler
	defaultLanguage string
	originPatterns  []string
	logger          *zap.Logger
	maxInflight     int

	base context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup
}

// NewServer returns a Server. Empty originPatterns accept any origin.
func NewServer(handler *Handler, defaultLanguage string, originPatterns []string, logger *zap.Logger) *Server {
	if len(originPatterns) == 0 {
		originPatterns = []string{"*"}
	}
	base, stop := context.WithCancel(context.Background())
	return &Server{
		handler:         handler,
		defaultLanguage: defaultLanguage,
		originPatterns:  originPatterns,
		logger:          logger.Named("ws"),
		maxInflight:     maxInflight,
		base:            base,
		stop:            stop,
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.originPatterns})
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	release := context.AfterFunc(s.base, cancel)
	defer release()

	s.wg.Add(1)
	defer s.wg.Done()
	s.ServeConn(ctx, conn)
}

// Close ends every open session and waits for their handlers to return.
func (s *Server) Close() {
	s.stop()
	s.wg.Wait()
}

// wsSender serialises writes to one connection.
type wsSender struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsSender) Send(ctx context.Context, event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, w.conn, Envelope{Event: event, Data: raw})
}

// ServeConn reads frames until the peer goes away or ctx ends. Each frame
// is handled in its own goroutine, at most maxInflight at a time; closing
// the connection cancels the ones still running.
func (s *Server) ServeConn(ctx context.Context, conn *websocket.Conn) {
	conn.SetReadLimit(readLimit)
	ctx, cancel := context.WithCancel(ctx)

	sess := NewSession(s.defaultLanguage)
	out := &wsSender{conn: conn}
	logger := s.logger.With(zap.String("session_id", sess.ID))
	logger.Info("Session opened")
	metrics.ActiveSessions.Inc()

	var inflight sync.WaitGroup
	slots := make(chan struct{}, s.maxInflight)
	defer func() {
		cancel()
		inflight.Wait()
		conn.Close(websocket.StatusNormalClosure, "")
		metrics.ActiveSessions.Dec()
		user, _ := sess.UserID()
		logger.Info("Session closed", zap.String("user_id", user))
	}()

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				logger.Debug("Connection closed", zap.Error(err))
			} else {
				logger.Warn("Read failed", zap.Error(err))
			}
			return
		}
		if typ != websocket.MessageText {
			s.handler.sendError(ctx, out, sess, "error_invalid_payload", "Event", "binary")
			continue
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			s.handler.sendError(ctx, out, sess, "error_invalid_payload", "Event", "frame")
			continue
		}

		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
			return
		}
		inflight.Add(1)
		go func() {
			defer func() {
				<-slots
				inflight.Done()
			}()
			s.handler.Handle(ctx, sess, out, env)
		}()
	}
}
