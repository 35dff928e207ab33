package http

import (
	"context"
	"database/sql"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-client/internal/config"
	"github.com/vovakirdan/wirechat-client/internal/metrics"
	"github.com/vovakirdan/wirechat-client/internal/relay"
	"github.com/vovakirdan/wirechat-client/internal/store"
	"github.com/vovakirdan/wirechat-client/internal/store/sqlite"
)

// createTestStore creates an in-memory SQLite store with schema applied
// and a "general" room.
func createTestStore(t *testing.T) store.Store {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", func(db *sql.DB) error {
		if _, err := db.Exec(sqlite.Schema); err != nil {
			return err
		}
		_, err := db.Exec(`INSERT INTO rooms (name) VALUES ('general')`)
		return err
	})
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	return st
}

type testServer struct {
	*httptest.Server
	store store.Store
}

func startTestServer(t *testing.T, messagesPerSecond float64) *testServer {
	t.Helper()

	st := createTestStore(t)
	reg := prometheus.NewRegistry()
	m := metrics.NewRelay(reg)
	disabledLogger := zerolog.Nop()

	hub := relay.NewHub(st, &disabledLogger, m)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	cfg := config.Relay{
		Addr:              ":0",
		ReadHeaderTimeout: time.Second,
		ShutdownTimeout:   time.Second,
		MessagesPerSecond: messagesPerSecond,
	}
	server := NewServer(hub, st, cfg, reg, m, &disabledLogger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(func() {
		ts.Close()
		cancel()
	})

	return &testServer{Server: ts, store: st}
}
