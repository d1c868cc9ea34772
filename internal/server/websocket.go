package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/michaelbrown/nuxlab/internal/nuagex"
	"github.com/michaelbrown/nuxlab/internal/reconcile"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // same trust boundary as the REST routes
	},
}

// wsIncoming asks for one reconciliation of the lab named in the URL.
type wsIncoming struct {
	State    string `json:"state"`
	Template string `json:"template"`
	Check    bool   `json:"check"`
}

// wsOutgoing is a message to the client.
type wsOutgoing struct {
	Type    string            `json:"type"`
	Content string            `json:"content,omitempty"`
	Attempt int               `json:"attempt,omitempty"`
	Status  string            `json:"status,omitempty"`
	Result  *reconcile.Result `json:"result,omitempty"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade", "error", err)
		return
	}
	defer conn.Close()

	// Cancelled when the client goes away so a pending wait stops polling
	// and releases its locks.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		wsMu sync.Mutex
		wg   sync.WaitGroup
	)
	busy := make(chan struct{}, 1)
	defer wg.Wait()

	for {
		var msg wsIncoming
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("websocket read", "error", err)
			}
			cancel()
			return
		}

		state, err := reconcile.ParseState(msg.State)
		if err != nil {
			s.wsWriteJSON(conn, &wsMu, wsOutgoing{Type: "error", Content: err.Error()})
			continue
		}

		select {
		case busy <- struct{}{}:
		default:
			s.wsWriteJSON(conn, &wsMu, wsOutgoing{Type: "error", Content: "a reconciliation is already running on this connection"})
			continue
		}

		p := reconcile.Params{
			Name:      name,
			Template:  msg.Template,
			State:     state,
			CheckMode: msg.Check,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-busy }()
			s.processWebSocketMessage(ctx, conn, &wsMu, p)
		}()
	}
}

// processWebSocketMessage runs one reconciliation while the handler keeps
// reading, so a disconnect can cancel it. wsMu serializes writes on conn.
func (s *Server) processWebSocketMessage(ctx context.Context, conn *websocket.Conn, wsMu *sync.Mutex, p reconcile.Params) {
	unlock := s.locks.Lock(p.Name)
	defer unlock()

	onPoll := func(attempt int, lab *nuagex.Lab) {
		status := "gone"
		if lab != nil {
			status = lab.Status
		}
		s.wsWriteJSON(conn, wsMu, wsOutgoing{Type: "poll", Attempt: attempt, Status: status})
	}

	res, err := s.app.Ensure(ctx, p, onPoll)
	if err != nil {
		if ctx.Err() != nil {
			s.log.Info("websocket client gone, reconciliation cancelled", "lab", p.Name)
			return
		}
		s.wsWriteJSON(conn, wsMu, wsOutgoing{Type: "error", Content: err.Error()})
		return
	}

	s.wsWriteJSON(conn, wsMu, wsOutgoing{Type: "result", Result: res})
}

func (s *Server) wsWriteJSON(conn *websocket.Conn, mu *sync.Mutex, v any) {
	if mu != nil {
		mu.Lock()
		defer mu.Unlock()
	}
	data, err := json.Marshal(v)
	if err != nil {
		s.log.Error("websocket marshal", "error", err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.log.Debug("websocket write", "error", err)
	}
}
