package stream

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/syndilab/hub/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dialBroadcaster(t *testing.T, b *Broadcaster) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(b.HandleUpgrade))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, b *Broadcaster, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for b.ClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("client count = %d, want %d", b.ClientCount(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPublishReachesConnectedClient(t *testing.T) {
	b := NewBroadcaster(testLogger())
	defer b.Close()

	conn := dialBroadcaster(t, b)
	waitForClients(t, b, 1)

	event := domain.SyndicationEvent{
		ID:          7,
		PostID:      42,
		SiteURL:     "https://a.example",
		Aggregator:  domain.AggregatorFeedzy,
		IsDuplicate: true,
		Timestamp:   time.Now().UTC(),
	}
	b.Publish(event)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var got domain.SyndicationEvent
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if got.ID != 7 || got.PostID != 42 || !got.IsDuplicate {
		t.Errorf("published event = %+v", got)
	}
}

func TestPublishSafeForConcurrentCallers(t *testing.T) {
	b := NewBroadcaster(testLogger())
	defer b.Close()

	conn := dialBroadcaster(t, b)
	waitForClients(t, b, 1)

	// Drain so the server-side write buffer never fills.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	var (
		wg       sync.WaitGroup
		panicked atomic.Bool
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			defer func() {
				if recover() != nil {
					panicked.Store(true)
				}
			}()
			b.Publish(domain.SyndicationEvent{ID: id, PostID: 42, SiteURL: "https://a.example"})
		}(int64(i))
	}
	wg.Wait()

	if panicked.Load() {
		t.Fatal("Publish panicked under concurrent callers")
	}
	if b.ClientCount() != 1 {
		t.Errorf("client count = %d, want 1", b.ClientCount())
	}
}

func TestDisconnectedClientIsDropped(t *testing.T) {
	b := NewBroadcaster(testLogger())
	defer b.Close()

	conn := dialBroadcaster(t, b)
	waitForClients(t, b, 1)

	conn.Close()
	waitForClients(t, b, 0)

	// Publishing to an empty set is a no-op.
	b.Publish(domain.SyndicationEvent{ID: 1})
}

func TestCloseDisconnectsAllClients(t *testing.T) {
	b := NewBroadcaster(testLogger())

	dialBroadcaster(t, b)
	dialBroadcaster(t, b)
	waitForClients(t, b, 2)

	b.Close()
	if b.ClientCount() != 0 {
		t.Errorf("client count after close = %d, want 0", b.ClientCount())
	}
}
