package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/wirechat-client/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/chat", "WebSocket address")
	user := flag.String("user", "tester", "username to announce with hello")
	room := flag.String("room", "general", "room id (must already exist on the relay)")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	send := func(typ string, data any) error {
		frame, err := proto.NewFrame(typ, data)
		if err != nil {
			return err
		}
		if err := wsjson.Write(ctx, conn, frame); err != nil {
			return fmt.Errorf("send %s: %w", typ, err)
		}
		return nil
	}

	if err := send(proto.TypeHello, proto.HelloData{User: *user, Protocol: proto.ProtocolVersion}); err != nil {
		return err
	}
	if err := send(proto.TypeSubscribe, proto.SubscribeData{ID: "smoke", Topic: proto.RoomTopic(*room)}); err != nil {
		return err
	}

	body, err := proto.EncodeChatMessage(*user, *text, *room)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if err := send(proto.TypeSend, proto.SendData{
		Destination: proto.SendDestination(*room),
		Body:        body,
		Receipt:     "smoke-send",
	}); err != nil {
		return err
	}

	for {
		var frame proto.Frame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			return fmt.Errorf("read: %w", err)
		}

		fmt.Printf("Received frame: type=%s\n", frame.Type)

		switch frame.Type {
		case proto.TypeConnected:
			var data proto.ConnectedData
			if err := frame.Decode(&data); err == nil {
				fmt.Printf("Connected: session=%s protocol=%d\n", data.Session, data.Protocol)
			}
		case proto.TypeReceipt:
			var data proto.ReceiptData
			if err := frame.Decode(&data); err == nil {
				fmt.Printf("Receipt: id=%s\n", data.ID)
			}
		case proto.TypeError:
			if frame.Error != nil {
				return fmt.Errorf("relay error: %w", frame.Error)
			}
		case proto.TypeMessage:
			var data proto.MessageData
			if err := frame.Decode(&data); err != nil {
				return err
			}
			msg, err := proto.DecodeChatMessage(data.Body)
			if err != nil {
				fmt.Printf("Raw body: %s\n", string(data.Body))
				return fmt.Errorf("decode message: %w", err)
			}
			ts, _ := proto.ParseTimestamp(msg.TimeStamp)
			fmt.Printf("Message: room=%s sender=%s content=%q ts=%s\n", msg.RoomID, msg.Sender, msg.Content, ts.Format(time.RFC3339))
			return nil
		default:
			// keep looping for message
		}
	}
}
