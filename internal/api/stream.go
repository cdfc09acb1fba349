package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"carevrp/internal/model"
)

// heartbeatEvery keeps idle SSE connections open through proxies.
var heartbeatEvery = 15 * time.Second

func finished(status string) bool {
	return status == model.RunDone || status == model.RunFailed || status == model.RunStale
}

// doneEvent describes a run that finished before the subscriber arrived.
func doneEvent(run model.SolveRun) model.Event {
	return model.Event{Type: model.EventDone, SolveID: run.ID, Stage: run.Stage, Status: run.Status, TS: time.Now().UTC()}
}

func writeSSE(w http.ResponseWriter, f http.Flusher, evt model.Event) {
	b, _ := json.Marshal(evt)
	fmt.Fprintf(w, "event: %s\n", evt.Type)
	fmt.Fprintf(w, "data: %s\n\n", b)
	f.Flush()
}

// streamSolve serves stage and completion events for one solve as SSE. The
// stream ends after solve.done.
func (s *Server) streamSolve(w http.ResponseWriter, r *http.Request, id string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, 500, "Streaming unsupported", "", r.URL.Path)
		return
	}
	// subscribe before reading the run so a finish in between is not lost
	ch := s.Broker.Subscribe(id)
	defer s.Broker.Unsubscribe(id, ch)
	run, err := s.Store.GetSolve(r.Context(), id)
	if err != nil {
		writeStoreError(w, r, "Get solve failed", err)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	if finished(run.Status) {
		writeSSE(w, flusher, doneEvent(run))
		return
	}
	heartbeat := func() {
		fmt.Fprintf(w, "event: heartbeat\n")
		fmt.Fprintf(w, "data: {\"solveId\":\"%s\",\"ts\":\"%s\"}\n\n", id, time.Now().UTC().Format(time.RFC3339))
		flusher.Flush()
	}
	heartbeat()
	ticker := time.NewTicker(heartbeatEvery)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			writeSSE(w, flusher, evt)
			if evt.Type == model.EventDone {
				return
			}
		case <-ticker.C:
			heartbeat()
		}
	}
}

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

// wsMessage follows the graphql-transport-ws framing: connection_init/ack,
// subscribe/next/complete, ping/pong and error.
type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type subscribePayload struct {
	SolveID string `json:"solveId"`
}

// WSHandler handles /v1/ws. Each subscribe message names a solve; its
// events are sent as next messages until solve.done, then complete.
func (s *Server) WSHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	var wmu sync.Mutex
	write := func(v any) error {
		wmu.Lock()
		defer wmu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(v)
	}
	next := func(id string, evt model.Event) error {
		payload, _ := json.Marshal(map[string]any{"data": evt})
		return write(wsMessage{Type: "next", ID: id, Payload: payload})
	}
	fail := func(id, msg string) {
		payload, _ := json.Marshal([]map[string]string{{"message": msg}})
		_ = write(wsMessage{Type: "error", ID: id, Payload: payload})
	}

	type sub struct {
		solveID string
		ch      chan model.Event
	}
	var smu sync.Mutex
	subs := map[string]sub{}
	stop := func(id string) {
		smu.Lock()
		s0, ok := subs[id]
		delete(subs, id)
		smu.Unlock()
		if ok {
			s.Broker.Unsubscribe(s0.solveID, s0.ch)
		}
	}
	done := make(chan struct{})
	defer func() {
		close(done)
		smu.Lock()
		ids := make([]string, 0, len(subs))
		for id := range subs {
			ids = append(ids, id)
		}
		smu.Unlock()
		for _, id := range ids {
			stop(id)
		}
	}()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error { _ = conn.SetReadDeadline(time.Now().Add(60 * time.Second)); return nil })

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		switch msg.Type {
		case "connection_init":
			_ = write(wsMessage{Type: "connection_ack"})
			go func() {
				ticker := time.NewTicker(20 * time.Second)
				defer ticker.Stop()
				for {
					select {
					case <-done:
						return
					case <-ticker.C:
						if err := write(wsMessage{Type: "ping"}); err != nil {
							return
						}
					}
				}
			}()
		case "ping":
			_ = write(wsMessage{Type: "pong"})
		case "subscribe":
			var pl subscribePayload
			_ = json.Unmarshal(msg.Payload, &pl)
			if msg.ID == "" || pl.SolveID == "" {
				fail(msg.ID, "id and payload.solveId required")
				continue
			}
			smu.Lock()
			_, dup := subs[msg.ID]
			smu.Unlock()
			if dup {
				fail(msg.ID, "subscription id already in use")
				continue
			}
			ch := s.Broker.Subscribe(pl.SolveID)
			run, err := s.Store.GetSolve(r.Context(), pl.SolveID)
			if err != nil {
				s.Broker.Unsubscribe(pl.SolveID, ch)
				fail(msg.ID, "solve not found")
				continue
			}
			if finished(run.Status) {
				s.Broker.Unsubscribe(pl.SolveID, ch)
				_ = next(msg.ID, doneEvent(run))
				_ = write(wsMessage{Type: "complete", ID: msg.ID})
				continue
			}
			smu.Lock()
			subs[msg.ID] = sub{solveID: pl.SolveID, ch: ch}
			smu.Unlock()
			go func(id string, c chan model.Event) {
				for evt := range c {
					if err := next(id, evt); err != nil {
						return
					}
					if evt.Type == model.EventDone {
						_ = write(wsMessage{Type: "complete", ID: id})
						stop(id)
						return
					}
				}
			}(msg.ID, ch)
		case "complete":
			stop(msg.ID)
		default:
			// ignore
		}
	}
}
