package http

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/wirechat-client/internal/proto"
	"github.com/vovakirdan/wirechat-client/internal/relay"
)

func dialRelay(t *testing.T, ctx context.Context, ts *testServer, user string) *websocket.Conn {
	t.Helper()

	wsURL := strings.Replace(ts.URL, "http", "ws", 1) + "/chat"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", user, err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })

	writeFrame(t, ctx, conn, proto.TypeHello, proto.HelloData{User: user, Protocol: proto.ProtocolVersion})
	connected := readFrame(t, ctx, conn)
	if connected.Type != proto.TypeConnected {
		t.Fatalf("expected connected frame, got %+v", connected)
	}
	var data proto.ConnectedData
	if err := connected.Decode(&data); err != nil {
		t.Fatalf("decode connected: %v", err)
	}
	if data.Session == "" || data.Protocol != proto.ProtocolVersion {
		t.Fatalf("unexpected connected data: %+v", data)
	}
	return conn
}

func writeFrame(t *testing.T, ctx context.Context, conn *websocket.Conn, typ string, data any) {
	t.Helper()

	frame, err := proto.NewFrame(typ, data)
	if err != nil {
		t.Fatalf("build %s frame: %v", typ, err)
	}
	if err := wsjson.Write(ctx, conn, frame); err != nil {
		t.Fatalf("write %s frame: %v", typ, err)
	}
}

func readFrame(t *testing.T, ctx context.Context, conn *websocket.Conn) proto.Frame {
	t.Helper()

	var frame proto.Frame
	if err := wsjson.Read(ctx, conn, &frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return frame
}

func expectReceipt(t *testing.T, ctx context.Context, conn *websocket.Conn, id string) {
	t.Helper()

	frame := readFrame(t, ctx, conn)
	var receipt proto.ReceiptData
	if frame.Type != proto.TypeReceipt || frame.Decode(&receipt) != nil || receipt.ID != id {
		t.Fatalf("expected receipt %s, got %+v", id, frame)
	}
}

func TestHealthEndpoint(t *testing.T) {
	ts := startTestServer(t, 0)

	resp, err := ts.Client().Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := startTestServer(t, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	dialRelay(t, ctx, ts, "alice")

	if body := scrape(t, ts); !strings.Contains(body, "wirechat_relay_connections 1") {
		t.Fatalf("open connection not reported:\n%s", body)
	}
}

func scrape(t *testing.T, ts *testServer) string {
	t.Helper()

	resp := get(t, ts, "/metrics")
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	return string(body)
}

func TestWebSocketSubscribeAndPublish(t *testing.T) {
	ts := startTestServer(t, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connA := dialRelay(t, ctx, ts, "alice")
	connB := dialRelay(t, ctx, ts, "bob")

	writeFrame(t, ctx, connB, proto.TypeSubscribe, proto.SubscribeData{ID: "sub-b", Topic: proto.RoomTopic("general")})
	expectReceipt(t, ctx, connB, "sub-b")

	body, err := proto.EncodeChatMessage("alice", "hi there", "general")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	writeFrame(t, ctx, connA, proto.TypeSend, proto.SendData{
		Destination: proto.SendDestination("general"),
		Body:        body,
		Receipt:     "r1",
	})
	expectReceipt(t, ctx, connA, "r1")

	frame := readFrame(t, ctx, connB)
	if frame.Type != proto.TypeMessage {
		t.Fatalf("unexpected frame type: %s", frame.Type)
	}
	var data proto.MessageData
	if err := frame.Decode(&data); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	msg, err := proto.DecodeChatMessage(data.Body)
	if err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if data.Subscription != "sub-b" || msg.Sender != "alice" || msg.Content != "hi there" || msg.RoomID != "general" {
		t.Fatalf("unexpected message: %+v %+v", data, msg)
	}

	stored := get(t, ts, "/api/v1/rooms/general/messages")
	if stored.StatusCode != 200 {
		t.Fatalf("history status %d", stored.StatusCode)
	}
}

func TestWebSocketRejectsUnknownRoom(t *testing.T) {
	ts := startTestServer(t, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialRelay(t, ctx, ts, "alice")
	body, _ := proto.EncodeChatMessage("alice", "hello?", "ghost")
	writeFrame(t, ctx, conn, proto.TypeSend, proto.SendData{
		Destination: proto.SendDestination("ghost"),
		Body:        body,
		Receipt:     "r1",
	})

	frame := readFrame(t, ctx, conn)
	if frame.Type != proto.TypeError || frame.Error == nil {
		t.Fatalf("expected error frame, got %+v", frame)
	}
	if frame.Error.Code != relay.ErrCodeRoomNotFound || frame.Error.Receipt != "r1" {
		t.Fatalf("unexpected error: %+v", frame.Error)
	}
}

func TestWebSocketRequiresHello(t *testing.T) {
	ts := startTestServer(t, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := strings.Replace(ts.URL, "http", "ws", 1) + "/chat"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	writeFrame(t, ctx, conn, proto.TypeSubscribe, proto.SubscribeData{ID: "s", Topic: proto.RoomTopic("general")})

	frame := readFrame(t, ctx, conn)
	if frame.Type != proto.TypeError || frame.Error == nil || frame.Error.Code != relay.ErrCodeBadRequest {
		t.Fatalf("expected bad_request error, got %+v", frame)
	}

	var next proto.Frame
	err = wsjson.Read(ctx, conn, &next)
	if status := websocket.CloseStatus(err); status != websocket.StatusPolicyViolation {
		t.Fatalf("expected policy violation close, got %v (%v)", status, err)
	}
}

func TestWebSocketRateLimit(t *testing.T) {
	ts := startTestServer(t, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialRelay(t, ctx, ts, "alice")
	body, _ := proto.EncodeChatMessage("alice", "spam", "general")
	for _, receipt := range []string{"r1", "r2"} {
		writeFrame(t, ctx, conn, proto.TypeSend, proto.SendData{
			Destination: proto.SendDestination("general"),
			Body:        body,
			Receipt:     receipt,
		})
	}

	// The receipt goes through the hub while the rejection is written
	// directly, so they may arrive in either order.
	var receipt, limited bool
	for range 2 {
		frame := readFrame(t, ctx, conn)
		switch frame.Type {
		case proto.TypeReceipt:
			receipt = true
		case proto.TypeError:
			if frame.Error == nil || frame.Error.Code != relay.ErrCodeRateLimited || frame.Error.Receipt != "r2" {
				t.Fatalf("expected rate_limited error for r2, got %+v", frame.Error)
			}
			limited = true
		}
	}
	if !receipt || !limited {
		t.Fatalf("expected one receipt and one rejection, got receipt=%v limited=%v", receipt, limited)
	}
	if body := scrape(t, ts); !strings.Contains(body, "wirechat_relay_rate_limited_total 1") {
		t.Fatalf("rate limited send not counted:\n%s", body)
	}
}

func TestWSHandlerRejectsPlainRequestWithoutLogger(t *testing.T) {
	ts := httptest.NewServer(NewWSHandler(nil, 0, nil, nil))
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 400 {
		t.Fatalf("expected upgrade failure status, got %d", resp.StatusCode)
	}
}
