package dashboard

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/futurelex/lexsync/internal/cache"
	"github.com/futurelex/lexsync/internal/reconcile"
	"github.com/futurelex/lexsync/internal/remote"
	"github.com/futurelex/lexsync/internal/session"
)

func newSession(t *testing.T) *session.Session {
	t.Helper()
	discard := log.New(io.Discard, "", 0)
	cfg := &session.Config{
		Engine: reconcile.Config{
			Debounce: time.Hour,
			Backoff:  reconcile.Backoff{Base: time.Hour, Max: time.Hour, Multiplier: 2},
			Logger:   discard,
		},
		Logger: discard,
	}
	s, err := session.New("device_dash", cache.NewMemory(), remote.NewMemory(), nil, cfg)
	if err != nil {
		t.Fatalf("session.New() failed: %v", err)
	}
	if err := s.Plans().Hydrate(context.Background()); err != nil {
		t.Fatalf("Hydrate() failed: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func startServer(t *testing.T, s *session.Session) *Server {
	t.Helper()
	server := NewServer(s, &Config{
		Port:   0,
		Logger: log.New(io.Discard, "", 0),
	})
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() { _ = server.Stop() })
	return server
}

func getJSON(t *testing.T, url string, into any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		t.Fatalf("decode %s failed: %v", url, err)
	}
	return resp.StatusCode
}

func readMessage(t *testing.T, ctx context.Context, conn *websocket.Conn) Message {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	return msg
}

func TestServerStartStop(t *testing.T) {
	server := NewServer(newSession(t), &Config{Port: 0, Logger: log.New(io.Discard, "", 0)})

	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	if addr := server.GetAddr(); addr == "" {
		t.Fatal("Server address is empty")
	}
	if err := server.Stop(); err != nil {
		t.Fatalf("Failed to stop server: %v", err)
	}
}

func TestAPI(t *testing.T) {
	s := newSession(t)
	p, err := s.CreatePlan("en", "tr", "")
	if err != nil {
		t.Fatalf("CreatePlan() failed: %v", err)
	}
	server := startServer(t, s)
	base := "http://" + server.GetAddr()

	var status StatusData
	if code := getJSON(t, base+"/api/status", &status); code != http.StatusOK {
		t.Fatalf("/api/status returned %d", code)
	}
	if status.Actor != "device_dash" || status.Pending != 1 || !status.Online {
		t.Errorf("unexpected status: %+v", status)
	}

	var list PlansData
	getJSON(t, base+"/api/plans", &list)
	if len(list.Plans) != 1 || list.ActiveID != p.ID {
		t.Errorf("unexpected plans: %+v", list)
	}

	var errBody map[string]string
	if code := getJSON(t, base+"/api/plans/missing", &errBody); code != http.StatusNotFound {
		t.Errorf("/api/plans/missing returned %d, want 404", code)
	}

	var health map[string]any
	getJSON(t, base+"/health", &health)
	if health["status"] != "ok" {
		t.Errorf("unexpected health: %v", health)
	}

	resp, err := http.Post(base+"/api/sync", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /api/sync failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/api/sync returned %d", resp.StatusCode)
	}
	if n := len(s.Pending()); n != 0 {
		t.Errorf("pending after sync = %d, want 0", n)
	}
}

func TestWebSocket_ReceivesChanges(t *testing.T) {
	s := newSession(t)
	server := startServer(t, s)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws://"+server.GetAddr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	if msg := readMessage(t, ctx, conn); msg.Type != MessageTypeStatus {
		t.Fatalf("first message type = %s, want status", msg.Type)
	}
	if msg := readMessage(t, ctx, conn); msg.Type != MessageTypePlans {
		t.Fatalf("second message type = %s, want plans", msg.Type)
	}

	p, err := s.CreatePlan("en", "de", "")
	if err != nil {
		t.Fatalf("CreatePlan() failed: %v", err)
	}

	for {
		msg := readMessage(t, ctx, conn)
		if msg.Type != MessageTypePlans {
			continue
		}
		var list PlansData
		if err := json.Unmarshal(msg.Data, &list); err != nil {
			t.Fatalf("bad plans payload: %v", err)
		}
		if len(list.Plans) == 1 && list.ActiveID == p.ID {
			break
		}
	}

	if count := server.ClientCount(); count != 1 {
		t.Errorf("Expected 1 client, got %d", count)
	}
}
