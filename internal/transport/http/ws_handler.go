package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	stdhttp "net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/vovakirdan/wirechat-client/internal/metrics"
	"github.com/vovakirdan/wirechat-client/internal/proto"
	"github.com/vovakirdan/wirechat-client/internal/relay"
	"github.com/vovakirdan/wirechat-client/internal/utils"
)

const (
	maxFrameBytes = 1 << 20
	helloTimeout  = 10 * time.Second
)

// WSHandler upgrades HTTP connections and bridges them to relay.Client.
type WSHandler struct {
	hub     *relay.Hub
	log     *zerolog.Logger
	metrics *metrics.Relay
	limit   rate.Limit
	burst   int
}

// NewWSHandler builds a new WebSocket handler. messagesPerSecond <= 0 disables
// the per-connection send limit.
func NewWSHandler(hub *relay.Hub, messagesPerSecond float64, m *metrics.Relay, logger *zerolog.Logger) stdhttp.Handler {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	h := &WSHandler{hub: hub, log: logger, metrics: m, limit: rate.Inf}
	if messagesPerSecond > 0 {
		h.limit = rate.Limit(messagesPerSecond)
		h.burst = max(1, int(messagesPerSecond))
	}
	return h
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")
	conn.SetReadLimit(maxFrameBytes)

	hello, err := h.readHello(ctx, conn)
	if err != nil {
		h.log.Debug().Err(err).Msg("ws hello failed")
		_ = wsjson.Write(ctx, conn, errorFrame(&proto.Error{Code: relay.ErrCodeBadRequest, Msg: err.Error()}))
		conn.Close(websocket.StatusPolicyViolation, "hello required")
		return
	}

	h.metrics.ConnectionOpened()
	defer h.metrics.ConnectionClosed()

	client := relay.NewClient(utils.NewID(), hello.User)
	connected, err := proto.NewFrame(proto.TypeConnected, proto.ConnectedData{
		Session:  client.ID,
		Protocol: proto.ProtocolVersion,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("build connected frame")
		return
	}
	if err := wsjson.Write(ctx, conn, connected); err != nil {
		h.log.Warn().Err(err).Msg("write connected frame")
		return
	}

	logger := h.log.With().Str("client_id", client.ID).Str("user", client.Name).Logger()
	logger.Debug().Msg("ws client connected")

	h.hub.RegisterClient(client)
	defer h.hub.UnregisterClient(client)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client, &logger)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client, &logger)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			logger.Warn().Err(err).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readHello(ctx context.Context, conn *websocket.Conn) (proto.HelloData, error) {
	ctx, cancel := context.WithTimeout(ctx, helloTimeout)
	defer cancel()

	var frame proto.Frame
	if err := wsjson.Read(ctx, conn, &frame); err != nil {
		return proto.HelloData{}, fmt.Errorf("read hello: %w", err)
	}
	if frame.Type != proto.TypeHello {
		return proto.HelloData{}, fmt.Errorf("expected hello, got %q", frame.Type)
	}
	var hello proto.HelloData
	if err := frame.Decode(&hello); err != nil {
		return proto.HelloData{}, err
	}
	hello.User = strings.TrimSpace(hello.User)
	if hello.User == "" {
		return proto.HelloData{}, errors.New("user is required")
	}
	if hello.Protocol != 0 && hello.Protocol != proto.ProtocolVersion {
		return proto.HelloData{}, fmt.Errorf("unsupported protocol %d", hello.Protocol)
	}
	return hello, nil
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *relay.Client, logger *zerolog.Logger) error {
	limiter := rate.NewLimiter(h.limit, h.burst)
	for {
		var frame proto.Frame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			logger.Debug().Err(err).Msg("read ws frame")
			return err
		}

		cmd, protoErr, err := inboundToCommand(frame)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to map inbound")
			return err
		}
		if protoErr == nil && cmd.Kind == relay.CommandPublish && !limiter.Allow() {
			h.metrics.RateLimited()
			protoErr = &proto.Error{Code: relay.ErrCodeRateLimited, Msg: "too many messages", Receipt: cmd.Receipt}
		}
		if protoErr != nil {
			if writeErr := wsjson.Write(ctx, conn, errorFrame(protoErr)); writeErr != nil {
				return writeErr
			}
			continue
		}
		h.hub.Submit(client, cmd)
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *relay.Client, logger *zerolog.Logger) error {
	for {
		select {
		case event, ok := <-client.Events:
			if !ok {
				return nil
			}
			frame, err := outboundFromEvent(event)
			if err != nil {
				logger.Error().Err(err).Msg("encode ws event")
				continue
			}
			if err := wsjson.Write(ctx, conn, frame); err != nil {
				logger.Error().Err(err).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
