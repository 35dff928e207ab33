package http

import (
	"context"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/wirechat-client/internal/proto"
	"github.com/vovakirdan/wirechat-client/internal/relay"
)

func TestProtocolVersionMismatch(t *testing.T) {
	ts := startTestServer(t, 0)

	cctx, closeCtx := context.WithTimeout(context.Background(), 3*time.Second)
	defer closeCtx()

	wsURL := "ws" + ts.URL[len("http"):] + "/chat"
	conn, _, err := websocket.Dial(cctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	writeFrame(t, cctx, conn, proto.TypeHello, proto.HelloData{User: "alice", Protocol: proto.ProtocolVersion + 1})

	var frame proto.Frame
	if err := wsjson.Read(cctx, conn, &frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if frame.Type != proto.TypeError || frame.Error == nil || frame.Error.Code != relay.ErrCodeBadRequest {
		t.Fatalf("expected bad_request error, got %+v", frame)
	}
}
