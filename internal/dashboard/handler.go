package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/futurelex/lexsync/internal/plans"
	"github.com/futurelex/lexsync/internal/reconcile"
)

// MessageType defines the type of dashboard message
type MessageType string

const (
	// MessageTypeStatus carries the session's sync status.
	MessageTypeStatus MessageType = "status"

	// MessageTypePlans carries the plan list.
	MessageTypePlans MessageType = "plans"

	// MessageTypeSyncComplete reports the result of a manual sync.
	MessageTypeSyncComplete MessageType = "sync_complete"
)

// Message represents a dashboard broadcast message
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// StatusData summarizes the session's sync state.
type StatusData struct {
	Actor     string           `json:"actor"`
	Status    reconcile.Status `json:"status"`
	Online    bool             `json:"online"`
	Pending   int              `json:"pending"`
	Exhausted int              `json:"exhausted"`
	LastError string           `json:"last_error,omitempty"`
}

// PlansData is the plan list as shown to users.
type PlansData struct {
	Plans    []plans.Plan `json:"plans"`
	ActiveID string       `json:"active_id,omitempty"`
}

// SyncCompleteData reports a manual sync.
type SyncCompleteData struct {
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Handler turns session changes into dashboard messages and serves the
// JSON API. Unchanged state is not rebroadcast.
type Handler struct {
	server *Server
	source Source
	logger *log.Logger

	mu          sync.Mutex
	unsubscribe func()
	lastStatus  []byte
	lastPlans   []byte
}

// NewHandler creates a handler connected to a dashboard server.
func NewHandler(server *Server, source Source, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{
		server: server,
		source: source,
		logger: logger,
	}
}

// Attach subscribes to session changes.
func (h *Handler) Attach() {
	unsubscribe := h.source.Subscribe(h.OnChange)
	h.mu.Lock()
	h.unsubscribe = unsubscribe
	h.mu.Unlock()
}

// Detach stops listening to session changes.
func (h *Handler) Detach() {
	h.mu.Lock()
	unsubscribe := h.unsubscribe
	h.unsubscribe = nil
	h.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

// OnChange broadcasts the status and plan list when they changed since
// the last broadcast.
func (h *Handler) OnChange() {
	status, err := json.Marshal(h.status())
	if err != nil {
		h.logger.Printf("Failed to marshal status: %v", err)
		return
	}
	planList, err := json.Marshal(h.plans())
	if err != nil {
		h.logger.Printf("Failed to marshal plans: %v", err)
		return
	}

	h.mu.Lock()
	statusChanged := !bytes.Equal(status, h.lastStatus)
	plansChanged := !bytes.Equal(planList, h.lastPlans)
	h.lastStatus, h.lastPlans = status, planList
	h.mu.Unlock()

	if statusChanged {
		h.server.Broadcast(Message{Type: MessageTypeStatus, Data: status})
	}
	if plansChanged {
		h.server.Broadcast(Message{Type: MessageTypePlans, Data: planList})
	}
}

// Snapshot returns the messages a newly connected client starts from.
func (h *Handler) Snapshot() []Message {
	now := time.Now()
	var out []Message
	if data, err := json.Marshal(h.status()); err == nil {
		out = append(out, Message{Type: MessageTypeStatus, Timestamp: now, Data: data})
	}
	if data, err := json.Marshal(h.plans()); err == nil {
		out = append(out, Message{Type: MessageTypePlans, Timestamp: now, Data: data})
	}
	return out
}

func (h *Handler) status() StatusData {
	d := StatusData{
		Actor:  h.source.Actor(),
		Status: h.source.Status(),
		Online: h.source.Online(),
	}
	for _, p := range h.source.Pending() {
		d.Pending++
		if p.Exhausted {
			d.Exhausted++
		}
	}
	if err := h.source.LastError(); err != nil {
		d.LastError = err.Error()
	}
	return d
}

func (h *Handler) plans() PlansData {
	d := PlansData{Plans: h.source.Plans().Snapshot()}
	if d.Plans == nil {
		d.Plans = []plans.Plan{}
	}
	if active, ok := h.source.Plans().Active(); ok {
		d.ActiveID = active.ID
	}
	return d
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.status())
}

func (h *Handler) handlePlans(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.plans())
}

func (h *Handler) handlePlan(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	p, ok := h.source.Plans().Get(vars["id"])
	if !ok {
		writeError(w, http.StatusNotFound, plans.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) handlePending(w http.ResponseWriter, r *http.Request) {
	pending := h.source.Pending()
	if pending == nil {
		pending = []reconcile.PendingInfo{}
	}
	writeJSON(w, http.StatusOK, pending)
}

// handleSync runs a flush and refresh of every open scope.
func (h *Handler) handleSync(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	start := time.Now()
	err := h.source.Sync(ctx)
	result := SyncCompleteData{Duration: time.Since(start)}
	if err != nil {
		result.Error = err.Error()
	}

	if data, merr := json.Marshal(result); merr == nil {
		h.server.Broadcast(Message{Type: MessageTypeSyncComplete, Data: data})
	}

	code := http.StatusOK
	if err != nil {
		code = http.StatusBadGateway
		if errors.Is(err, context.DeadlineExceeded) {
			code = http.StatusGatewayTimeout
		}
	}
	writeJSON(w, code, result)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
