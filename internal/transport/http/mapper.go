package http

import (
	"github.com/vovakirdan/wirechat-client/internal/proto"
	"github.com/vovakirdan/wirechat-client/internal/relay"
)

func inboundToCommand(frame proto.Frame) (*relay.Command, *proto.Error, error) {
	switch frame.Type {
	case proto.TypeSubscribe:
		var sub proto.SubscribeData
		if err := frame.Decode(&sub); err != nil {
			return nil, nil, err
		}
		if sub.ID == "" || sub.Topic == "" {
			return nil, &proto.Error{Code: relay.ErrCodeBadRequest, Msg: "id and topic are required", Receipt: sub.ID}, nil
		}
		return &relay.Command{
			Kind:         relay.CommandSubscribe,
			Subscription: sub.ID,
			Topic:        sub.Topic,
		}, nil, nil
	case proto.TypeUnsubscribe:
		var unsub proto.UnsubscribeData
		if err := frame.Decode(&unsub); err != nil {
			return nil, nil, err
		}
		if unsub.ID == "" {
			return nil, &proto.Error{Code: relay.ErrCodeBadRequest, Msg: "id is required"}, nil
		}
		return &relay.Command{
			Kind:         relay.CommandUnsubscribe,
			Subscription: unsub.ID,
		}, nil, nil
	case proto.TypeSend:
		var send proto.SendData
		if err := frame.Decode(&send); err != nil {
			return nil, nil, err
		}
		if send.Destination == "" {
			return nil, &proto.Error{Code: relay.ErrCodeBadRequest, Msg: "destination is required", Receipt: send.Receipt}, nil
		}
		return &relay.Command{
			Kind:        relay.CommandPublish,
			Destination: send.Destination,
			Body:        send.Body,
			Receipt:     send.Receipt,
		}, nil, nil
	case proto.TypeHello:
		return nil, &proto.Error{Code: relay.ErrCodeBadRequest, Msg: "hello already received"}, nil
	default:
		return nil, &proto.Error{Code: relay.ErrCodeInvalidMessage, Msg: "unknown frame type"}, nil
	}
}

func outboundFromEvent(event *relay.Event) (proto.Frame, error) {
	switch event.Kind {
	case relay.EventMessage:
		return proto.NewFrame(proto.TypeMessage, proto.MessageData{
			Subscription: event.Subscription,
			Topic:        event.Topic,
			Body:         event.Body,
		})
	case relay.EventReceipt:
		return proto.NewFrame(proto.TypeReceipt, proto.ReceiptData{ID: event.Receipt})
	case relay.EventError:
		if event.Error == nil {
			return errorFrame(&proto.Error{Code: "unknown", Msg: "unknown error", Receipt: event.Receipt}), nil
		}
		return errorFrame(&proto.Error{
			Code:    event.Error.Code,
			Msg:     event.Error.Message,
			Receipt: event.Receipt,
		}), nil
	default:
		return errorFrame(&proto.Error{Code: "unknown", Msg: "unknown event"}), nil
	}
}

func errorFrame(err *proto.Error) proto.Frame {
	return proto.Frame{Type: proto.TypeError, Error: err}
}
