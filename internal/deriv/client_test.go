package deriv

import (
	"context"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/agentictrader/marketdata/internal/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

// A dropped connection must take its context watcher down with it, or a
// long-lived subscription leaks one goroutine per reconnect.
func TestStreamWatcherStopsWithConnection(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close()
	}))
	defer srv.Close()

	endpoint := "ws" + strings.TrimPrefix(srv.URL, "http")
	client := NewClient(Config{AppID: "1", Endpoint: endpoint}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ticks := make(chan models.Tick, 1)
	before := runtime.NumGoroutine()
	for i := 0; i < 20; i++ {
		if err := client.streamTicks(ctx, "R_100", ticks); err == nil {
			t.Fatal("Expected the dropped connection to surface an error")
		}
	}

	// Let finished watchers unwind before counting.
	time.Sleep(100 * time.Millisecond)
	after := runtime.NumGoroutine()
	if after > before+2 {
		t.Fatalf("Goroutines grew from %d to %d across reconnects", before, after)
	}
}
