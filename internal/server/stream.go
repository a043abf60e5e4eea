package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/joseph-ayodele/pdf-analyzer/internal/common"
	"github.com/joseph-ayodele/pdf-analyzer/internal/progress"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleStatus streams the job's progress as server-sent events: the
// current snapshot first, then every update until the terminal one or
// until the caller disconnects. Disconnecting never stops the analysis.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap, sub, err := s.registry.Subscribe(id)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	defer sub.Close()

	log := common.LoggerFromContext(r.Context(), s.logger).With("job_id", id)
	rc := http.NewResponseController(w)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func(ev progress.Event) bool {
		b, err := json.Marshal(ev)
		if err != nil {
			log.Error("sse.encode.failed", "error", err)
			return false
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", b); err != nil {
			return false
		}
		return rc.Flush() == nil
	}

	if !send(snap.Event()) || snap.Terminal() {
		return
	}

	keepAlive := time.NewTicker(s.opts.KeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			log.Debug("sse.client.gone")
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if !send(ev) || ev.Progress >= 100 {
				return
			}
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil || rc.Flush() != nil {
				return
			}
		}
	}
}

// handleWebSocket carries the same payloads as handleStatus over a websocket.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap, sub, err := s.registry.Subscribe(id)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	defer sub.Close()

	log := common.LoggerFromContext(r.Context(), s.logger).With("job_id", id)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("ws.upgrade.failed", "error", err)
		return
	}
	defer conn.Close()

	// reads only detect the client going away
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(ev progress.Event) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(ev); err != nil {
			log.Debug("ws.write.failed", "error", err)
			return false
		}
		return true
	}
	closeNormal := func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "analysis finished")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	}

	if !send(snap.Event()) {
		return
	}
	if snap.Terminal() {
		closeNormal()
		return
	}

	ping := time.NewTicker(s.opts.KeepAlive)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug("ws.client.gone")
			return
		case ev, ok := <-sub.Events():
			if !ok {
				closeNormal()
				return
			}
			if !send(ev) {
				return
			}
			if ev.Progress >= 100 {
				closeNormal()
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
				return
			}
		}
	}
}
