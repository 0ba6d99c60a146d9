package dashboard

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/fanscout/scout/internal/ledger"
	scoutsync "github.com/fanscout/scout/internal/sync"
)

// SyncStatusData carries an in-flight or idle sync state.
type SyncStatusData struct {
	State    string  `json:"state"`
	Progress float64 `json:"progress"`
}

// SyncCompleteData carries the completion time of a sync.
type SyncCompleteData struct {
	Date time.Time `json:"date"`
}

// SyncFailedData carries the reason a sync stopped.
type SyncFailedData struct {
	Error string `json:"error"`
}

// StatsData holds running totals since the dashboard started.
type StatsData struct {
	SyncsCompleted int            `json:"syncs_completed"`
	SyncsFailed    int            `json:"syncs_failed"`
	PointsEvents   int            `json:"points_events"`
	LastSync       *time.Time     `json:"last_sync,omitempty"`
	Balances       map[string]int `json:"balances"`
}

// Handler turns sync status changes and ledger events into dashboard
// messages. It implements ledger.Notifier.
type Handler struct {
	server *Server
	logger *log.Logger

	mu    sync.Mutex
	stats StatsData
}

var _ ledger.Notifier = (*Handler)(nil)

// NewHandler creates a new event handler connected to a dashboard server.
// New clients are greeted with the current stats.
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}

	h := &Handler{
		server: server,
		logger: logger,
		stats:  StatsData{Balances: make(map[string]int)},
	}
	server.SetWelcome(h.statsMessage)
	return h
}

// Run forwards the syncer's status stream until ctx is cancelled.
func (h *Handler) Run(ctx context.Context, syncer scoutsync.Syncer) {
	updates, unsubscribe := syncer.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-updates:
			if !ok {
				return
			}
			h.OnSyncStatus(st)
		}
	}
}

// OnSyncStatus handles one sync state transition.
func (h *Handler) OnSyncStatus(st scoutsync.Status) {
	switch st.State {
	case scoutsync.StateCompleted:
		h.logger.Printf("Sync complete at %s", st.Date.Format(time.RFC3339))
		h.mu.Lock()
		h.stats.SyncsCompleted++
		date := st.Date
		h.stats.LastSync = &date
		h.mu.Unlock()
		h.send(MessageTypeSyncComplete, SyncCompleteData{Date: st.Date})
		h.broadcastStats()

	case scoutsync.StateFailed:
		msg := "unknown error"
		if st.Err != nil {
			msg = st.Err.Error()
		}
		h.logger.Printf("Sync failed: %s", msg)
		h.mu.Lock()
		h.stats.SyncsFailed++
		h.mu.Unlock()
		h.send(MessageTypeSyncFailed, SyncFailedData{Error: msg})
		h.broadcastStats()

	default:
		h.send(MessageTypeSyncStatus, SyncStatusData{State: st.State.String(), Progress: st.Progress})
	}
}

// PointsChanged implements ledger.Notifier.
func (h *Handler) PointsChanged(ev ledger.Event) {
	h.logger.Printf("Points %+d for %s (balance %d)", ev.Delta, ev.UserID, ev.Balance)

	h.mu.Lock()
	h.stats.PointsEvents++
	h.stats.Balances[ev.UserID] = ev.Balance
	h.mu.Unlock()

	h.send(MessageTypePointsUpdate, ev)
}

// GetStats returns a copy of the current statistics.
func (h *Handler) GetStats() StatsData {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapshot()
}

func (h *Handler) snapshot() StatsData {
	out := h.stats
	out.Balances = make(map[string]int, len(h.stats.Balances))
	for k, v := range h.stats.Balances {
		out.Balances[k] = v
	}
	return out
}

func (h *Handler) statsMessage() Message {
	data, err := json.Marshal(h.GetStats())
	if err != nil {
		h.logger.Printf("Failed to marshal stats: %v", err)
		return Message{Type: MessageTypeStats}
	}
	return Message{Type: MessageTypeStats, Timestamp: time.Now(), Data: data}
}

func (h *Handler) broadcastStats() {
	h.server.Broadcast(h.statsMessage())
}

func (h *Handler) send(typ MessageType, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Printf("Failed to marshal %s data: %v", typ, err)
		return
	}
	h.server.Broadcast(Message{Type: typ, Timestamp: time.Now(), Data: data})
}
