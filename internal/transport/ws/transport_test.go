package ws

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/wirechat-client/internal/chat"
	"github.com/vovakirdan/wirechat-client/internal/config"
	"github.com/vovakirdan/wirechat-client/internal/proto"
	"github.com/vovakirdan/wirechat-client/internal/relay"
	"github.com/vovakirdan/wirechat-client/internal/roomapi"
	"github.com/vovakirdan/wirechat-client/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/wirechat-client/internal/transport/http"
)

func startRelay(t *testing.T, rooms ...string) *httptest.Server {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	for _, name := range rooms {
		if _, err := st.CreateRoom(context.Background(), name); err != nil {
			t.Fatalf("create room %s: %v", name, err)
		}
	}

	hub := relay.NewHub(st, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	server := transporthttp.NewServer(hub, st, config.Relay{}, nil, nil, nil)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(func() {
		ts.Close()
		cancel()
	})
	return ts
}

func wsURL(ts *httptest.Server) string {
	return strings.Replace(ts.URL, "http", "ws", 1) + "/chat"
}

func TestSubscribePublishEcho(t *testing.T) {
	ts := startRelay(t, "general")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := New("alice", nil).Connect(ctx, wsURL(ts))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer conn.Close()

	received := make(chan []byte, 1)
	sub, err := conn.Subscribe(ctx, proto.RoomTopic("general"), func(b []byte) { received <- b })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	body, _ := proto.EncodeChatMessage("alice", "hello", "general")
	if err := conn.Publish(ctx, proto.SendDestination("general"), body); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case raw := <-received:
		msg, err := proto.DecodeChatMessage(raw)
		if err != nil {
			t.Fatalf("decode echo: %v", err)
		}
		if msg.Sender != "alice" || msg.Content != "hello" {
			t.Fatalf("unexpected echo: %+v", msg)
		}
	case <-ctx.Done():
		t.Fatal("echo not received")
	}

	if err := sub.Unsubscribe(ctx); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
}

func TestPublishRejected(t *testing.T) {
	ts := startRelay(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := New("alice", nil).Connect(ctx, wsURL(ts))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer conn.Close()

	body, _ := proto.EncodeChatMessage("alice", "hello", "ghost")
	err = conn.Publish(ctx, proto.SendDestination("ghost"), body)

	var protoErr *proto.Error
	if !errors.As(err, &protoErr) || protoErr.Code != relay.ErrCodeRoomNotFound {
		t.Fatalf("expected room_not_found, got %v", err)
	}
}

func TestSubscribeRejected(t *testing.T) {
	ts := startRelay(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := New("alice", nil).Connect(ctx, wsURL(ts))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Subscribe(ctx, "/queue/nope", func([]byte) {}); err == nil {
		t.Fatal("expected subscribe error")
	}
}

func TestCloseIsNotALoss(t *testing.T) {
	ts := startRelay(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := New("alice", nil).Connect(ctx, wsURL(ts))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	if err := conn.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	select {
	case <-conn.Done():
	case <-ctx.Done():
		t.Fatal("done not closed")
	}
	if err := conn.Err(); err != nil {
		t.Fatalf("expected nil Err after Close, got %v", err)
	}
	if err := conn.Publish(ctx, proto.SendDestination("general"), []byte(`{}`)); !errors.Is(err, ErrConnClosed) {
		t.Fatalf("expected ErrConnClosed, got %v", err)
	}
}

func TestServerDropReportsLoss(t *testing.T) {
	drop := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		var hello proto.Frame
		if err := wsjson.Read(r.Context(), c, &hello); err != nil {
			return
		}
		ack, _ := proto.NewFrame(proto.TypeConnected, proto.ConnectedData{Session: "s1", Protocol: proto.ProtocolVersion})
		_ = wsjson.Write(r.Context(), c, ack)
		<-drop
		c.CloseNow()
	}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := New("alice", nil).Connect(ctx, strings.Replace(ts.URL, "http", "ws", 1))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer conn.Close()

	close(drop)
	select {
	case <-conn.Done():
	case <-ctx.Done():
		t.Fatal("loss not detected")
	}
	if conn.Err() == nil {
		t.Fatal("expected non-nil Err after server drop")
	}
}

func TestHandshakeRejectsProtocol(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.CloseNow()
		var hello proto.Frame
		if err := wsjson.Read(r.Context(), c, &hello); err != nil {
			return
		}
		ack, _ := proto.NewFrame(proto.TypeConnected, proto.ConnectedData{Session: "s1", Protocol: 99})
		_ = wsjson.Write(r.Context(), c, ack)
		_, _, _ = c.Read(r.Context())
	}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := New("alice", nil).Connect(ctx, strings.Replace(ts.URL, "http", "ws", 1)); err == nil {
		t.Fatal("expected protocol mismatch error")
	}
}

func TestSessionAgainstRelay(t *testing.T) {
	ts := startRelay(t, "general")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rooms := roomapi.New(ts.URL, ts.Client(), nil)

	// Seed history through a plain connection.
	seed, err := New("bob", nil).Connect(ctx, wsURL(ts))
	if err != nil {
		t.Fatalf("connect seed: %v", err)
	}
	body, _ := proto.EncodeChatMessage("bob", "earlier", "general")
	if err := seed.Publish(ctx, proto.SendDestination("general"), body); err != nil {
		t.Fatalf("seed publish: %v", err)
	}
	_ = seed.Close()

	session, err := chat.Open("general", "alice", New("alice", nil), rooms, chat.WithEndpoint(wsURL(ts)))
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	defer session.Close()

	waitFor := func(kind chat.EventKind) chat.Event {
		t.Helper()
		for {
			select {
			case ev, ok := <-session.Events():
				if !ok {
					t.Fatalf("events closed while waiting for %v", kind)
				}
				if ev.Kind == kind {
					return ev
				}
			case <-ctx.Done():
				t.Fatalf("timed out waiting for %v", kind)
			}
		}
	}

	history := waitFor(chat.EventHistoryLoaded)
	if len(history.History) != 1 || history.History[0].Content != "earlier" {
		t.Fatalf("unexpected history: %+v", history.History)
	}

	pending, err := session.Send(ctx, "hi all")
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	// The receipt and the echo race, so accept them in either order.
	var echoed, confirmed bool
	for !echoed || !confirmed {
		select {
		case ev, ok := <-session.Events():
			if !ok {
				t.Fatal("events closed before echo")
			}
			switch ev.Kind {
			case chat.EventMessageAppended:
				if ev.Message.Sender != "alice" || ev.Message.Content != "hi all" {
					t.Fatalf("unexpected echo: %+v", ev.Message)
				}
				echoed = true
			case chat.EventSendConfirmed:
				if ev.Pending.ID != pending.ID {
					t.Fatalf("confirmed %s, want %s", ev.Pending.ID, pending.ID)
				}
				confirmed = true
			case chat.EventSendFailed:
				t.Fatalf("send failed: %v", ev.Err)
			}
		case <-ctx.Done():
			t.Fatal("timed out waiting for echo and receipt")
		}
	}

	snap := session.Snapshot()
	if snap.Status != chat.StatusConnected || len(snap.Messages) != 2 || len(snap.PendingSends) != 0 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}
