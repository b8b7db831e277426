// Package main runs a demo WebSocket client: it subscribes to the tenant's
// events, posts a synthetic county to /v1/rebalance and prints what arrives.
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

	"vspcbal/internal/model"
	"vspcbal/internal/synth"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// Connect WS
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/ws"}
	hdr := http.Header{}
	hdr.Set("X-Tenant-Id", "t_demo")
	hdr.Set("X-Role", "planner")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		log.Fatal(err)
	}
	if err := c.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: json.RawMessage(`{"types":[]}`)}); err != nil {
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
		}
	}()

	// Build a small county and rebalance it
	sc := synth.DefaultConfig()
	sc.Units, sc.Centers = 150, 8
	county := synth.Generate(sc)
	req := model.RebalanceRequest{Label: "ws demo"}
	for _, u := range county.Units {
		lat, lng := u.Location.Lat(), u.Location.Lon()
		req.Units = append(req.Units, model.UnitIn{ID: u.ID, Weight: u.Weight, Lat: &lat, Lng: &lng})
	}
	for _, ctr := range county.Centers {
		lat, lng := ctr.Location.Lat(), ctr.Location.Lon()
		req.Centers = append(req.Centers, model.CenterIn{ID: ctr.ID, Name: ctr.Name, Lat: &lat, Lng: &lng})
	}
	body, _ := json.Marshal(req)

	time.Sleep(300 * time.Millisecond)
	httpReq, _ := http.NewRequest(http.MethodPost, base+"/v1/rebalance", bytes.NewReader(body))
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-Id", "t_demo")
	httpReq.Header.Set("X-Role", "planner")
	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		log.Fatal(err)
	}
	var out model.RebalanceResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		log.Fatal(err)
	}
	_ = resp.Body.Close()
	log.Printf("Run %s: %s, %d moves", out.RunID, out.Summary.State, out.Summary.Moves)

	// Wait briefly to receive the remaining events
	select {
	case <-time.After(2 * time.Second):
	case <-done:
	}
}
