package server

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/danielpatrickdp/boardgate/internal/session"
)

// #region wire-types
// wsRequest is one inbound client message.
type wsRequest struct {
	Type      string `json:"type"` // start_recognition, video_frame, stop_recognition
	ContextID string `json:"context_id"`
	FrameID   string `json:"frame_id,omitempty"`
	Frame     string `json:"frame,omitempty"` // base64 image bytes
}

// wsEvent is one outbound server message.
type wsEvent struct {
	Type      string          `json:"type"` // recognition_started, recognition_result, recognition_stopped, error
	ContextID string          `json:"context_id,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	FrameID   string          `json:"frame_id,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Message   string          `json:"message,omitempty"`
	Event     *session.Result `json:"event,omitempty"`
}
// #endregion wire-types

// #region ws-conn
// wsConn serializes writes to one websocket connection. The read loop and
// every session worker feeding this connection write through it.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) send(evt wsEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, c.conn, evt); err != nil {
		log.Printf("[SERVER] ws write failed: %v", err)
	}
}
// #endregion ws-conn

// #region emitter
// wsEmitter delivers one session's events onto the owning connection.
type wsEmitter struct {
	conn      *wsConn
	contextID string
}

func (e *wsEmitter) EmitResult(res session.Result) {
	e.conn.send(wsEvent{Type: "recognition_result", ContextID: e.contextID, Event: &res})
}

func (e *wsEmitter) EmitError(sessionID, frameID, message string) {
	e.conn.send(wsEvent{Type: "error", ContextID: e.contextID, SessionID: sessionID, FrameID: frameID, Message: message})
}

func (e *wsEmitter) EmitStopped(sessionID, reason string) {
	e.conn.send(wsEvent{Type: "recognition_stopped", ContextID: e.contextID, SessionID: sessionID, Reason: reason})
}
// #endregion emitter

// #region ws-handler
// handleWS runs the realtime recognition channel. One connection may
// drive multiple boarding contexts; closing it stops every session it
// started. The connection ID keys idempotent starts, so re-sending
// start_recognition for a live context is a no-op.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{})
	if err != nil {
		return
	}
	connID := uuid.New().String()
	wc := &wsConn{conn: conn}
	sessions := map[string]*session.Session{} // by context ID, read loop only
	log.Printf("[SERVER] ws connected conn=%s", connID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	for {
		var req wsRequest
		if err := wsjson.Read(ctx, conn, &req); err != nil {
			break
		}
		switch req.Type {
		case "start_recognition":
			s.wsStart(wc, connID, sessions, req)
		case "video_frame":
			s.wsFrame(wc, sessions, req)
		case "stop_recognition":
			s.wsStop(wc, sessions, req)
		default:
			wc.send(wsEvent{Type: "error", Message: fmt.Sprintf("unknown message type %q", req.Type)})
		}
	}

	for _, sess := range sessions {
		sess.Stop()
	}
	log.Printf("[SERVER] ws closed conn=%s contexts=%d", connID, len(sessions))
	_ = conn.Close(websocket.StatusNormalClosure, "closed")
}

func (s *Server) wsStart(wc *wsConn, connID string, sessions map[string]*session.Session, req wsRequest) {
	if req.ContextID == "" {
		wc.send(wsEvent{Type: "error", Message: "context_id required"})
		return
	}
	sess, err := s.coord.Start(req.ContextID, connID, &wsEmitter{conn: wc, contextID: req.ContextID})
	if err != nil {
		wc.send(wsEvent{Type: "error", ContextID: req.ContextID, Message: err.Error()})
		return
	}
	sessions[req.ContextID] = sess
	wc.send(wsEvent{Type: "recognition_started", ContextID: req.ContextID, SessionID: sess.ID})
}

func (s *Server) wsFrame(wc *wsConn, sessions map[string]*session.Session, req wsRequest) {
	sess, ok := sessions[req.ContextID]
	if !ok {
		wc.send(wsEvent{Type: "error", ContextID: req.ContextID, Message: "no active session for context"})
		return
	}
	image, err := base64.StdEncoding.DecodeString(req.Frame)
	if err != nil {
		wc.send(wsEvent{Type: "error", ContextID: req.ContextID, SessionID: sess.ID, FrameID: req.FrameID, Message: "invalid frame encoding"})
		return
	}
	// Dropped frames (pacing, full buffer) are normal flow and not reported.
	if _, _, err := sess.Submit(req.FrameID, image); err != nil {
		delete(sessions, req.ContextID)
		wc.send(wsEvent{Type: "error", ContextID: req.ContextID, SessionID: sess.ID, FrameID: req.FrameID, Message: err.Error()})
	}
}

func (s *Server) wsStop(wc *wsConn, sessions map[string]*session.Session, req wsRequest) {
	sess, ok := sessions[req.ContextID]
	if !ok {
		wc.send(wsEvent{Type: "error", ContextID: req.ContextID, Message: "no active session for context"})
		return
	}
	delete(sessions, req.ContextID)
	sess.Stop()
}
// #endregion ws-handler
