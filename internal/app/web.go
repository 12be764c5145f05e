// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/diffdrive/internal/protocol"
	"github.com/relabs-tech/diffdrive/internal/telemetry"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

const wsWriteTimeout = time.Second

// WebLink serves the status API and carries the line protocol over
// websockets. Every connected client receives the telemetry lines.
type WebLink struct {
	addr string
	src  StatusSource

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	conn *websocket.Conn
	out  chan string
	done chan struct{}
}

func (c *wsClient) send(msg string) {
	select {
	case c.out <- msg:
	default:
	}
}

// NewWebLink serves on addr, e.g. ":8080".
func NewWebLink(addr string, src StatusSource) *WebLink {
	return &WebLink{addr: addr, src: src, clients: map[*wsClient]struct{}{}}
}

func (w *WebLink) broadcast(msg string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for c := range w.clients {
		c.send(msg)
	}
}

func (w *WebLink) Frame(fr telemetry.Frame) { w.broadcast(strings.Join(fr.Lines(), "\n")) }

func (w *WebLink) Battery(b telemetry.Battery) { w.broadcast(b.Line()) }

// Clients returns the number of connected websocket clients.
func (w *WebLink) Clients() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.clients)
}

// Handler returns the HTTP routes. Lines received on /ws are forwarded to
// inbound until ctx is done.
func (w *WebLink) Handler(ctx context.Context, inbound chan<- Inbound) http.Handler {
	mux := http.NewServeMux()

	// JSON API endpoint: latest robot status
	mux.HandleFunc("/api/status", func(rw http.ResponseWriter, r *http.Request) {
		s := w.src.Status()
		if s.Time.IsZero() {
			http.Error(rw, "no data yet", http.StatusServiceUnavailable)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(rw).Encode(s); err != nil {
			log.Printf("web: json encode error: %v", err)
		}
	})

	// JSON API endpoint: the command table
	mux.HandleFunc("/api/commands", func(rw http.ResponseWriter, r *http.Request) {
		type entry struct {
			Header      string `json:"header"`
			Description string `json:"description"`
		}
		var out []entry
		for _, c := range protocol.Commands() {
			out = append(out, entry{Header: string(c.Header), Description: c.Description})
		}
		rw.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(rw).Encode(out); err != nil {
			log.Printf("web: json encode error: %v", err)
		}
	})

	mux.HandleFunc("/ws", func(rw http.ResponseWriter, r *http.Request) {
		w.serveWS(ctx, rw, r, inbound)
	})
	return mux
}

func (w *WebLink) serveWS(ctx context.Context, rw http.ResponseWriter, r *http.Request, inbound chan<- Inbound) {
	conn, err := upgrader.Upgrade(rw, r, nil)
	if err != nil {
		log.Printf("web: websocket upgrade error: %v", err)
		return
	}
	c := &wsClient{conn: conn, out: make(chan string, 64), done: make(chan struct{})}

	w.mu.Lock()
	w.clients[c] = struct{}{}
	w.mu.Unlock()
	log.Printf("web: client %s connected", r.RemoteAddr)

	defer func() {
		w.mu.Lock()
		delete(w.clients, c)
		w.mu.Unlock()
		close(c.done)
		conn.Close()
		log.Printf("web: client %s disconnected", r.RemoteAddr)
	}()

	go func() {
		for {
			select {
			case <-c.done:
				return
			case <-ctx.Done():
				conn.Close()
				return
			case msg := <-c.out:
				conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		for _, line := range protocol.SplitLines(string(data)) {
			select {
			case inbound <- Inbound{Line: line, Source: "websocket", Reply: c.send}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Run serves until ctx is done.
func (w *WebLink) Run(ctx context.Context, inbound chan<- Inbound) error {
	srv := &http.Server{Addr: w.addr, Handler: w.Handler(ctx, inbound)}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("web: shutdown: %v", err)
		}
	}()

	log.Printf("web: server listening on %s", w.addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
