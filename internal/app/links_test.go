// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/diffdrive/internal/telemetry"
)

type staticStatus struct{ s Status }

func (f staticStatus) Status() Status { return f.s }

func recvInbound(t *testing.T, ch <-chan Inbound) Inbound {
	t.Helper()
	select {
	case in := <-ch:
		return in
	case <-time.After(2 * time.Second):
		t.Fatal("no inbound line")
		return Inbound{}
	}
}

func TestSerialLink(t *testing.T) {
	t.Parallel()
	robotEnd, hostEnd := net.Pipe()
	link := NewSerialLink(robotEnd, "pipe")

	ctx, cancel := context.WithCancel(context.Background())
	inbound := make(chan Inbound, 4)
	errc := make(chan error, 1)
	go func() { errc <- link.Run(ctx, inbound) }()

	go func() {
		_, _ = io.WriteString(hostEnd, "c10,20\r\n\nf\n")
	}()
	in := recvInbound(t, inbound)
	assert.Equal(t, "c10,20", in.Line)
	assert.Equal(t, "serial", in.Source)
	assert.Equal(t, "f", recvInbound(t, inbound).Line)

	host := bufio.NewReader(hostEnd)
	in.Reply("fArduino:")
	got, err := host.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "fArduino:\n", got)

	link.Battery(telemetry.Battery{Percent: 50, Voltage: 3})
	got, err = host.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "v50,3.00\n", got)

	cancel()
	require.NoError(t, <-errc)
}

func TestSerialLinkDropsWhenFull(t *testing.T) {
	t.Parallel()
	robotEnd, _ := net.Pipe()
	link := NewSerialLink(robotEnd, "pipe")

	for i := 0; i < 100; i++ {
		link.Frame(telemetry.Frame{})
	}
	assert.Len(t, link.out, cap(link.out))
}

func TestStatusEndpoint(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	empty := NewWebLink(":0", staticStatus{})
	rec := httptest.NewRecorder()
	empty.Handler(ctx, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	live := NewWebLink(":0", staticStatus{Status{Time: t0, Robot: "ESP32", Mode: "normal", LeftPWM: 42}})
	rec = httptest.NewRecorder()
	live.Handler(ctx, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "ESP32", got.Robot)
	assert.Equal(t, int16(42), got.LeftPWM)
}

func TestCommandsEndpoint(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	NewWebLink(":0", staticStatus{}).Handler(context.Background(), nil).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/commands", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got []struct {
		Header string `json:"header"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	var headers []string
	for _, c := range got {
		headers = append(headers, c.Header)
	}
	assert.Equal(t, []string{"c", "f", "h", "m", "p", "s"}, headers)
}

func TestWebSocketLink(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	web := NewWebLink(":0", staticStatus{})
	inbound := make(chan Inbound, 4)
	srv := httptest.NewServer(web.Handler(ctx, inbound))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("c1,2\nh500")))
	in := recvInbound(t, inbound)
	assert.Equal(t, "c1,2", in.Line)
	assert.Equal(t, "websocket", in.Source)
	assert.Equal(t, "h500", recvInbound(t, inbound).Line)
	assert.Equal(t, 1, web.Clients())

	in.Reply("m20.00,4.00,2.00,6.50,6.00,0.75,0.00")
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "m20.00,4.00,2.00,6.50,6.00,0.75,0.00", string(msg))

	web.Frame(telemetry.Frame{LeftPWM: 3, RightPWM: 4})
	_, msg, err = conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(msg), "p3,4")

	conn.Close()
	assert.Eventually(t, func() bool { return web.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

type doneToken struct{ err error }

func (d doneToken) Wait() bool                     { return true }
func (d doneToken) WaitTimeout(time.Duration) bool { return true }
func (d doneToken) Done() <-chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}
func (d doneToken) Error() error { return d.err }

type published struct {
	topic    string
	retained bool
	payload  string
}

// fakeBroker stands in for a connected paho client.
type fakeBroker struct {
	mqtt.Client

	mu         sync.Mutex
	handlers   map[string]mqtt.MessageHandler
	published  []published
	subscribed chan struct{}
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{handlers: map[string]mqtt.MessageHandler{}, subscribed: make(chan struct{}, 1)}
}

func (b *fakeBroker) Subscribe(topic string, qos byte, cb mqtt.MessageHandler) mqtt.Token {
	b.mu.Lock()
	b.handlers[topic] = cb
	b.mu.Unlock()
	b.subscribed <- struct{}{}
	return doneToken{}
}

func (b *fakeBroker) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	var p string
	switch v := payload.(type) {
	case []byte:
		p = string(v)
	case string:
		p = v
	}
	b.mu.Lock()
	b.published = append(b.published, published{topic: topic, retained: retained, payload: p})
	b.mu.Unlock()
	return doneToken{}
}

func (b *fakeBroker) Disconnect(uint) {}

func (b *fakeBroker) deliver(topic, payload string) {
	b.mu.Lock()
	cb := b.handlers[topic]
	b.mu.Unlock()
	cb(b, fakeMessage{topic: topic, payload: []byte(payload)})
}

func (b *fakeBroker) find(topic string) (published, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range b.published {
		if p.topic == topic {
			return p, true
		}
	}
	return published{}, false
}

type fakeMessage struct {
	mqtt.Message
	topic   string
	payload []byte
}

func (m fakeMessage) Topic() string   { return m.topic }
func (m fakeMessage) Payload() []byte { return m.payload }

func TestMQTTLink(t *testing.T) {
	t.Parallel()
	broker := newFakeBroker()
	topics := Topics{Telemetry: "dd/t", Battery: "dd/b", State: "dd/s", Command: "dd/c"}
	src := staticStatus{Status{Time: t0, Robot: "Arduino", Mode: "normal"}}
	link := newMQTTLink(broker, topics, src, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	inbound := make(chan Inbound, 4)
	errc := make(chan error, 1)
	go func() { errc <- link.Run(ctx, inbound) }()
	<-broker.subscribed

	broker.deliver("dd/c", "c5,5\nf")
	in := recvInbound(t, inbound)
	assert.Equal(t, "c5,5", in.Line)
	assert.Equal(t, "mqtt", in.Source)
	assert.Equal(t, "f", recvInbound(t, inbound).Line)

	in.Reply("fArduino:")
	link.Frame(telemetry.Frame{LeftPWM: 7})
	link.Battery(telemetry.Battery{Percent: 80})

	assert.Eventually(t, func() bool {
		_, r := broker.find("dd/c/reply")
		_, f := broker.find("dd/t")
		_, b := broker.find("dd/b")
		_, s := broker.find("dd/s")
		return r && f && b && s
	}, 2*time.Second, 5*time.Millisecond)

	reply, _ := broker.find("dd/c/reply")
	assert.Equal(t, "fArduino:", reply.payload)

	frame, _ := broker.find("dd/t")
	var fr telemetry.Frame
	require.NoError(t, json.Unmarshal([]byte(frame.payload), &fr))
	assert.Equal(t, int16(7), fr.LeftPWM)

	state, _ := broker.find("dd/s")
	assert.True(t, state.retained)
	assert.Contains(t, state.payload, `"robot":"Arduino"`)

	cancel()
	require.NoError(t, <-errc)
}

func TestUniqueClientID(t *testing.T) {
	t.Parallel()
	a, b := uniqueClientID("diffdrive-robot"), uniqueClientID("diffdrive-robot")
	assert.True(t, strings.HasPrefix(a, "diffdrive-robot-"))
	assert.Len(t, a, len("diffdrive-robot-")+8)
	assert.NotEqual(t, a, b)
}
