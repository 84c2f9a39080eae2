package realtime

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

func dial(t *testing.T, f *fixture) (*websocket.Conn, context.Context) {
	t.Helper()
	return dialWith(t, f, nil)
}

func dialWith(t *testing.T, f *fixture, configure func(*Server)) (*websocket.Conn, context.Context) {
	t.Helper()
	srv := NewServer(f.h, "en", nil, zap.NewNop())
	if configure != nil {
		configure(srv)
	}
	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn, ctx
}

func write(t *testing.T, ctx context.Context, conn *websocket.Conn, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatal(err)
	}
	if err := wsjson.Write(ctx, conn, Envelope{Event: event, Data: raw}); err != nil {
		t.Fatalf("write %s: %v", event, err)
	}
}

func read(t *testing.T, ctx context.Context, conn *websocket.Conn) Envelope {
	t.Helper()
	var env Envelope
	if err := wsjson.Read(ctx, conn, &env); err != nil {
		t.Fatalf("read: %v", err)
	}
	return env
}

func TestWebSocketSession(t *testing.T) {
	f := newFixture(t)
	conn, ctx := dial(t, f)

	write(t, ctx, conn, EventIdentify, IdentifyPayload{UserID: "ws-user"})
	env := read(t, ctx, conn)
	var bal BalancePayload
	if err := json.Unmarshal(env.Data, &bal); err != nil || env.Event != EventBalanceUpdate || bal.Credits != 100 {
		t.Fatalf("identify reply = %s %s", env.Event, env.Data)
	}

	write(t, ctx, conn, EventDesignRequest, map[string]any{"style": "The Martian Dome", "capacity": "4", "budget": "Low"})
	if env := read(t, ctx, conn); env.Event != EventBalanceUpdate {
		t.Fatalf("got %s, want balance_update", env.Event)
	}
	if env := read(t, ctx, conn); env.Event != EventDesignResult {
		t.Fatalf("got %s, want design_result", env.Event)
	}
}

func TestWebSocketMalformedFrame(t *testing.T) {
	f := newFixture(t)
	conn, ctx := dial(t, f)

	if err := conn.Write(ctx, websocket.MessageText, []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	if env := read(t, ctx, conn); env.Event != EventError {
		t.Fatalf("got %s, want error", env.Event)
	}

	// The session survives a bad frame.
	write(t, ctx, conn, EventGetTemplates, nil)
	if env := read(t, ctx, conn); env.Event != EventTemplates {
		t.Fatalf("got %s, want templates", env.Event)
	}
}

func TestWebSocketInflightLimit(t *testing.T) {
	f := newFixture(t)
	f.gen.release = make(chan struct{})
	conn, ctx := dialWith(t, f, func(s *Server) { s.maxInflight = 2 })

	write(t, ctx, conn, EventIdentify, IdentifyPayload{UserID: "ws-user"})
	if env := read(t, ctx, conn); env.Event != EventBalanceUpdate {
		t.Fatalf("identify reply = %s", env.Event)
	}

	// Two designs fill both slots: one blocks in the generator, the other
	// waits for the user lock. The third design and the templates request
	// must stay unread until the generator is released.
	req := map[string]any{"style": "The Martian Dome", "capacity": "4", "budget": "Low"}
	for i := 0; i < 3; i++ {
		write(t, ctx, conn, EventDesignRequest, req)
	}
	write(t, ctx, conn, EventGetTemplates, nil)

	var released atomic.Bool
	go func() {
		time.Sleep(200 * time.Millisecond)
		released.Store(true)
		close(f.gen.release)
	}()

	for {
		env := read(t, ctx, conn)
		if env.Event != EventTemplates {
			continue
		}
		if !released.Load() {
			t.Fatal("templates answered while the session was at its in-flight limit")
		}
		return
	}
}
