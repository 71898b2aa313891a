// companion-pair.go: manual companion client for the pairing handshake.
//
// Usage:
//   1. Start the server:  go run ./cmd/ytmcompanion server --surface console
//   2. Enable pairing:    go run ./cmd/ytmcompanion pairing enable
//   3. Run this script:   go run ./scripts/companion-pair.go -app "My Phone"
//
// Flags:
//   -addr    server base URL    (default "http://127.0.0.1:26538")
//   -app     app name to pair   (default "companion-pair")
//   -token   skip pairing and use an existing token
//   -watch   stay connected to /realtime and print events
//
// What it does:
//   1. POST /auth/requestcode, prints the code
//   2. POST /auth/request with the code; approve it in the server console
//   3. GET /state with the issued token
//   4. Optionally dials /realtime and prints every event

package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

func post(client *http.Client, base, path string, body any) (map[string]any, int, error) {
	buf, _ := json.Marshal(body)
	resp, err := client.Post(base+path, "application/json", bytes.NewReader(buf))
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	var out map[string]any
	raw, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(raw, &out)
	return out, resp.StatusCode, nil
}

func main() {
	addr := flag.String("addr", "http://127.0.0.1:26538", "server base URL")
	app := flag.String("app", "companion-pair", "app name")
	token := flag.String("token", "", "existing token (skips pairing)")
	watch := flag.Bool("watch", false, "print realtime events")
	flag.Parse()

	base := strings.TrimRight(*addr, "/")
	client := &http.Client{Timeout: 90 * time.Second}

	if *token == "" {
		res, status, err := post(client, base, "/auth/requestcode", map[string]string{"appName": *app})
		if err != nil {
			log.Fatalf("requestcode: %v", err)
		}
		if status != http.StatusOK {
			log.Fatalf("requestcode: %d %v", status, res)
		}
		code, _ := res["code"].(string)
		fmt.Printf("Code: %s (approve it on the server)\n", code)

		res, status, err = post(client, base, "/auth/request", map[string]string{"appName": *app, "code": code})
		if err != nil {
			log.Fatalf("request: %v", err)
		}
		if status != http.StatusOK {
			log.Fatalf("request: %d %v", status, res)
		}
		*token, _ = res["token"].(string)
		fmt.Printf("Token: %s\n", *token)
	}

	req, _ := http.NewRequest(http.MethodGet, base+"/state", nil)
	req.Header.Set("Authorization", "Bearer "+*token)
	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("state: %v", err)
	}
	state, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	fmt.Printf("State (%d): %s\n", resp.StatusCode, state)

	if !*watch {
		return
	}

	u, err := url.Parse(base)
	if err != nil {
		log.Fatalf("addr: %v", err)
	}
	u.Scheme = "ws"
	u.Path = "/realtime"
	header := http.Header{"Authorization": []string{"Bearer " + *token}}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), header)
	if err != nil {
		log.Fatalf("realtime dial: %v", err)
	}
	defer conn.Close()

	fmt.Println("Connected to /realtime. Ctrl+C to stop.")
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			log.Fatalf("realtime read: %v", err)
		}
		fmt.Println(string(msg))
	}
}
