// Package main runs a demo WebSocket client for dispatch events. Start the API
// with SEED_FILE=scripts/seed.yaml to get the tr_demo request.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type event struct {
	Type      string         `json:"type"`
	RequestID string         `json:"requestId"`
	At        time.Time      `json:"ts"`
	Data      map[string]any `json:"data"`
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	requestID := "tr_demo"
	if len(os.Args) > 1 {
		requestID = os.Args[1]
	}
	base := fmt.Sprintf("http://localhost:%s/v1/dispatch/%s", port, url.PathEscape(requestID))

	// Open the session so the event stream has something to follow.
	post := func(path string) int {
		req, _ := http.NewRequest(http.MethodPost, base+path, nil)
		req.Header.Set("X-User", "ws-client")
		req.Header.Set("X-Roles", "dispatcher")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			log.Fatal(err)
		}
		_ = resp.Body.Close()
		return resp.StatusCode
	}
	if code := post(""); code != http.StatusOK {
		log.Fatalf("start session: http %d", code)
	}

	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/dispatch/" + requestID + "/ws"}
	hdr := http.Header{}
	hdr.Set("X-User", "ws-client")
	hdr.Set("X-Roles", "dispatcher")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var evt event
			if err := c.ReadJSON(&evt); err != nil {
				log.Printf("read: %v", err)
				return
			}
			data, _ := json.Marshal(evt.Data)
			log.Printf("WS <- %s %s", evt.Type, data)
		}
	}()

	// Seat everyone and ask for estimates to produce a few events.
	time.Sleep(200 * time.Millisecond)
	log.Printf("auto-assign: http %d", post("/auto-assign"))
	log.Printf("proceed: http %d", post("/proceed"))

	select {
	case <-time.After(3 * time.Second):
	case <-done:
	}
}
