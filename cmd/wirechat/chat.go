package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirechat-client/internal/chat"
	"github.com/vovakirdan/wirechat-client/internal/config"
	"github.com/vovakirdan/wirechat-client/internal/display"
	"github.com/vovakirdan/wirechat-client/internal/metrics"
	"github.com/vovakirdan/wirechat-client/internal/roomapi"
	"github.com/vovakirdan/wirechat-client/internal/transport/ws"
)

const leaveCommand = "/leave"

var chatFlags struct {
	room   string
	user   string
	create bool
	server string
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Join or create a room and chat",
	Long: `Join an existing room (or create one with --create) and chat from the terminal.
Type a line to send it, or /leave to leave the room.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().StringVarP(&chatFlags.room, "room", "r", "", "room id")
	chatCmd.Flags().StringVarP(&chatFlags.user, "user", "u", "", "your display name")
	chatCmd.Flags().BoolVar(&chatFlags.create, "create", false, "create the room instead of joining it")
	chatCmd.Flags().StringVar(&chatFlags.server, "server", "", "relay base URL, e.g. http://localhost:8080")
	_ = chatCmd.MarkFlagRequired("room")
	_ = chatCmd.MarkFlagRequired("user")
}

func runChat(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(config.Config{Client: config.Client{ServerURL: chatFlags.server}})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	roomID := strings.TrimSpace(chatFlags.room)
	user := strings.TrimSpace(chatFlags.user)

	rooms := roomapi.New(cfg.Client.ServerURL, &http.Client{Timeout: cfg.Client.ConnectTimeout}, logger)
	rooms.HistorySize = cfg.Client.HistorySize
	if err := enterRoom(ctx, rooms, roomID, chatFlags.create); err != nil {
		return err
	}

	endpoint, err := wsEndpoint(cfg.Client.ServerURL, cfg.Client.WSPath)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	session, err := chat.Open(roomID, user, ws.New(user, logger), rooms,
		chat.WithEndpoint(endpoint),
		chat.WithConnectTimeout(cfg.Client.ConnectTimeout),
		chat.WithPublishTimeout(cfg.Client.PublishTimeout),
		chat.WithReconnect(cfg.Client.ReconnectAttempts, cfg.Client.ReconnectInitialInterval, cfg.Client.ReconnectMaxInterval),
		chat.WithLogger(logger),
		chat.WithMetrics(metrics.NewSession(reg)),
	)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Joined %s as %s. Type %s to leave.\n", roomID, user, leaveCommand)

	failed := make(chan struct{})
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		printEvents(out, session.Events(), user, logger, failed)
	}()

	readCtx, stopReading := context.WithCancel(ctx)
	lines := make(chan string)
	go readLines(readCtx, cmd.InOrStdin(), lines)

	chatLoop(ctx, session, lines, failed, out)
	stopReading()

	_ = session.Close()
	<-printed

	logSessionMetrics(logger, reg)
	if snap := session.Snapshot(); snap.Status == chat.StatusFailed {
		return errors.New("connection to the relay failed")
	}
	return nil
}

func enterRoom(ctx context.Context, rooms *roomapi.Client, roomID string, create bool) error {
	if create {
		if _, err := rooms.CreateRoom(ctx, roomID); err != nil {
			if errors.Is(err, roomapi.ErrRoomExists) {
				return fmt.Errorf("room %s already exists, join it instead", roomID)
			}
			return err
		}
		return nil
	}
	if _, err := rooms.JoinRoom(ctx, roomID); err != nil {
		if errors.Is(err, roomapi.ErrRoomNotFound) {
			return fmt.Errorf("room %s not found", roomID)
		}
		return err
	}
	return nil
}

func chatLoop(ctx context.Context, session *chat.Session, lines <-chan string, failed <-chan struct{}, out io.Writer) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-failed:
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			line = strings.TrimSpace(line)
			switch {
			case line == "":
				continue
			case line == leaveCommand:
				return
			}
			if _, err := session.Send(ctx, line); err != nil {
				fmt.Fprintf(out, "! %v\n", err)
			}
		}
	}
}

// readLines forwards input lines until in is exhausted or ctx is done.
// A Scan blocked on the reader is only released by the reader itself.
func readLines(ctx context.Context, in io.Reader, lines chan<- string) {
	defer close(lines)
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		select {
		case lines <- scanner.Text():
		case <-ctx.Done():
			return
		}
	}
}

func printEvents(out io.Writer, events <-chan chat.Event, user string, logger *zerolog.Logger, failed chan<- struct{}) {
	for ev := range events {
		now := time.Now()
		switch ev.Kind {
		case chat.EventStatusChanged:
			fmt.Fprintln(out, display.Status(ev))
			if ev.Status == chat.StatusFailed {
				close(failed)
			}
		case chat.EventHistoryLoaded:
			for _, m := range ev.History {
				fmt.Fprintln(out, display.Message(m, user, now))
			}
		case chat.EventMessageAppended:
			fmt.Fprintln(out, display.Message(ev.Message, user, now))
		case chat.EventSendFailed:
			fmt.Fprintf(out, "! not delivered: %q (%v)\n", ev.Pending.Content, ev.Err)
		case chat.EventHistoryLoadFailed:
			fmt.Fprintf(out, "! could not load history: %v\n", ev.Err)
		case chat.EventError:
			logger.Debug().Err(ev.Err).Msg("session error")
		}
	}
}

// wsEndpoint derives the relay websocket URL from its HTTP base URL.
func wsEndpoint(serverURL, wsPath string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(wsPath, "/")
	return u.String(), nil
}

func logSessionMetrics(logger *zerolog.Logger, gatherer prometheus.Gatherer) {
	families, err := gatherer.Gather()
	if err != nil {
		logger.Debug().Err(err).Msg("gather session metrics")
		return
	}
	ev := logger.Debug()
	for _, mf := range families {
		var total float64
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
		ev = ev.Float64(mf.GetName(), total)
	}
	ev.Msg("session summary")
}
