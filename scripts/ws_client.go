// Package main runs a demo WebSocket client for solve events.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

const demoInstance = `{"depot":{"id":0,"lat":0,"lon":0},
"agents":[{"id":1,"name":"A","skills":["WoundCare"]},{"id":2,"name":"B","skills":["Pediatrics","WoundCare"]}],
"tasks":[{"id":101,"required_skill":"WoundCare","lat":0,"lon":0,"duration":10},
{"id":102,"required_skill":"Pediatrics","lat":1,"lon":1,"duration":10},
{"id":103,"required_skill":"WoundCare","lat":2,"lon":0,"duration":15}]}`

func post(base, path, body string, out any) {
	resp, err := http.Post(base+path, "application/json", bytes.NewReader([]byte(body)))
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		log.Fatalf("POST %s: %s", path, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		log.Fatal(err)
	}
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	var rec struct {
		ID string `json:"id"`
	}
	post(base, "/v1/instances", demoInstance, &rec)
	var queued struct {
		SolveID string `json:"solveId"`
	}
	post(base, "/v1/instances/"+rec.ID+"/solve", "{}", &queued)
	log.Printf("Instance %s, solve %s", rec.ID, queued.SolveID)

	// Connect WS
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/ws"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		log.Fatal(err)
	}
	pl, _ := json.Marshal(map[string]string{"solveId": queued.SolveID})
	if err := c.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: pl}); err != nil {
		log.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m wsMessage
			if err := c.ReadJSON(&m); err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("WS <- %s: %s", m.Type, string(m.Payload))
			if m.Type == "complete" || m.Type == "error" {
				return
			}
		}
	}()

	select {
	case <-time.After(60 * time.Second):
		log.Printf("timed out waiting for solve.done")
	case <-done:
	}

	resp, err := http.Get(base + "/v1/solves/" + queued.SolveID)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	var run json.RawMessage
	_ = json.NewDecoder(resp.Body).Decode(&run)
	log.Printf("Solve: %s", run)
}
