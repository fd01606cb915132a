// Package transport bridges a WebSocket connection to a session.Session's
// Submit endpoint and to the Subscription that session.Manager.Connect
// returns, and owns the JSON codec. It carries no OT
// logic of its own.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"nhooyr.io/websocket"

	"github.com/shiv248/otrelay/internal/protocol"
	"github.com/shiv248/otrelay/pkg/document"
	"github.com/shiv248/otrelay/pkg/logger"
	"github.com/shiv248/otrelay/pkg/metrics"
	"github.com/shiv248/otrelay/pkg/ot"
	"github.com/shiv248/otrelay/pkg/session"
)

// Server hosts the /ws upgrade endpoint and the /metrics scrape endpoint.
type Server struct {
	manager       *session.Manager
	mux           *http.ServeMux
	readTimeout   time.Duration
	writeTimeout  time.Duration
	maxPayloadLen int64
}

// Config configures the transport's timeouts. Zero values fall back to the
// defaults below.
type Config struct {
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	MaxPayloadLen int64
}

// NewServer wires a Server around an existing session.Manager.
func NewServer(manager *session.Manager, cfg Config) *Server {
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 60 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.MaxPayloadLen == 0 {
		cfg.MaxPayloadLen = 1 << 20 // 1 MiB
	}

	s := &Server{
		manager:       manager,
		mux:           http.NewServeMux(),
		readTimeout:   cfg.ReadTimeout,
		writeTimeout:  cfg.WriteTimeout,
		maxPayloadLen: cfg.MaxPayloadLen,
	}
	s.mux.HandleFunc("/ws", s.handleWS)
	s.mux.Handle("/metrics", promhttp.Handler())
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleWS implements GET /ws?document=<doc_id>&client=<client_id>. Both
// query parameters are required non-empty strings.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	documentID := r.URL.Query().Get("document")
	clientID := r.URL.Query().Get("client")
	if documentID == "" || clientID == "" {
		http.Error(w, "document and client query parameters are required", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		logger.Warn("transport: accept failed", "err", err.Error())
		return
	}
	conn.SetReadLimit(s.maxPayloadLen)

	connID := uuid.NewString()
	sess, sub := s.manager.Connect(clientID, documentID)
	defer s.manager.Disconnect(clientID, documentID, sub)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	logger.Info("transport: connection accepted", "document", documentID, "client", clientID, "conn", connID)
	defer logger.Info("transport: connection closed", "document", documentID, "client", clientID, "conn", connID)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.writeLoop(ctx, cancel, conn, sub, connID)
	}()

	s.readLoop(ctx, cancel, conn, sess, connID, documentID)
	<-done
}

// writeLoop forwards committed operations from sub to the client. Ping
// frames are answered with a matching Pong entirely inside
// nhooyr.io/websocket's own read path; there is nothing for this loop to do
// for them.
func (s *Server) writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, sub *session.Subscription, connID string) {
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case op, ok := <-sub.C():
			if !ok {
				logger.Warn("transport: subscriber lagged, closing connection", "conn", connID)
				_ = conn.Close(websocket.StatusPolicyViolation, "lagged")
				return
			}
			if err := s.writeOperation(ctx, conn, op); err != nil {
				logger.Warn("transport: write failed", "conn", connID, "err", err.Error())
				return
			}
		}
	}
}

func (s *Server) writeOperation(ctx context.Context, conn *websocket.Conn, op ot.Operation) error {
	data, err := json.Marshal(protocol.FromOperation(op))
	if err != nil {
		return err
	}
	writeCtx, writeCancel := context.WithTimeout(ctx, s.writeTimeout)
	defer writeCancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}

// readLoop decodes inbound frames and submits them to the session. A
// malformed frame or an invalid operation closes only this connection;
// binary frames are ignored; a normal close ends the loop cleanly.
func (s *Server) readLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, sess *session.Session, connID, documentID string) {
	defer cancel()
	defer conn.Close(websocket.StatusNormalClosure, "")

	for {
		readCtx, readCancel := context.WithTimeout(ctx, s.readTimeout)
		typ, data, err := conn.Read(readCtx)
		readCancel()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if code := websocket.CloseStatus(err); code != -1 {
				return
			}
			logger.Warn("transport: read failed", "conn", connID, "err", err.Error())
			return
		}

		switch typ {
		case websocket.MessageBinary:
			continue
		case websocket.MessageText:
			if !s.handleTextFrame(ctx, conn, sess, connID, documentID, data) {
				return
			}
		}
	}
}

// handleTextFrame decodes and submits one frame. It returns false if the
// connection must be closed.
func (s *Server) handleTextFrame(ctx context.Context, conn *websocket.Conn, sess *session.Session, connID, documentID string, data []byte) bool {
	var msg protocol.OperationMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		metrics.FramesRejected.WithLabelValues("malformed").Inc()
		logger.Warn("transport: malformed frame", "conn", connID, "err", err.Error())
		_ = conn.Close(websocket.StatusProtocolError, "malformed frame")
		return false
	}

	op, err := msg.ToOperation()
	if err != nil {
		metrics.FramesRejected.WithLabelValues("malformed").Inc()
		_ = conn.Close(websocket.StatusProtocolError, "malformed frame")
		return false
	}

	if err := sess.Submit(ctx, op); err != nil {
		if errors.Is(err, document.ErrInvalidRevision) || errors.Is(err, ot.ErrOutOfBounds) {
			metrics.FramesRejected.WithLabelValues("invalid_operation").Inc()
			logger.Warn("transport: invalid operation", "document", documentID, "conn", connID, "err", err.Error())
			_ = conn.Close(websocket.StatusPolicyViolation, "invalid operation")
			return false
		}
		// Context cancellation from the write side or client disconnect.
		return false
	}
	return true
}
