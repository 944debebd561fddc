package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/brojonat/cashback/service/db"
	"github.com/brojonat/cashback/service/metrics"
	natspkg "github.com/brojonat/cashback/service/nats"
)

const (
	streamRealtime    = "realtime"
	streamEligibility = "eligibility"
	keepaliveInterval = 10 * time.Second
)

// realtimeEvent is one frame of the realtime stream.
type realtimeEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type userUpdate struct {
	db.UserStats
	Live bool `json:"live"`
}

type dashboardUpdate struct {
	db.DashboardStats
	Timestamp time.Time `json:"timestamp"`
	Live      bool      `json:"live"`
}

// startSSE sets the stream headers, lifts the server write deadline and flushes.
func startSSE(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Streams outlive the server's WriteTimeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})
	flush(w)
}

func flush(w http.ResponseWriter) {
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}

// handleRealtime streams user or dashboard figures on a fixed interval.
// GET /api/v1/realtime?wallet={address}
func handleRealtime(store Store, interval time.Duration, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wallet := r.URL.Query().Get("wallet")

		startSSE(w)
		m.RecordSSEConnectionChange(streamRealtime, 1)
		defer m.RecordSSEConnectionChange(streamRealtime, -1)

		logger.DebugContext(r.Context(), "realtime client connected",
			"wallet", wallet,
			"remote_addr", r.RemoteAddr,
		)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				event, ok := realtimeSnapshot(r.Context(), store, wallet, logger)
				if !ok {
					continue
				}
				data, err := json.Marshal(event)
				if err != nil {
					logger.WarnContext(r.Context(), "failed to marshal realtime event", "error", err)
					continue
				}
				fmt.Fprintf(w, "data: %s\n\n", data)
				flush(w)
				m.RecordSSEEventSent(streamRealtime, event.Type)

			case <-r.Context().Done():
				logger.DebugContext(r.Context(), "realtime client disconnected",
					"wallet", wallet,
					"remote_addr", r.RemoteAddr,
				)
				return
			}
		}
	})
}

// realtimeSnapshot builds the next frame. A registered wallet gets its own
// figures, an unregistered one gets nothing, and no wallet gets the dashboard.
// Without a reachable store the frame holds synthetic values marked not live.
func realtimeSnapshot(ctx context.Context, store Store, wallet string, logger *slog.Logger) (realtimeEvent, bool) {
	if wallet != "" {
		if store != nil {
			stats, err := store.UserStats(ctx, wallet)
			switch {
			case err == nil:
				return realtimeEvent{Type: "user_update", Data: userUpdate{UserStats: stats, Live: true}}, true
			case errors.Is(err, db.ErrNotFound):
				return realtimeEvent{}, false
			case ctx.Err() != nil:
				return realtimeEvent{}, false
			}
			logger.Warn("realtime user stats unavailable, sending synthetic values", "wallet", wallet, "error", err)
		}
		return realtimeEvent{Type: "user_update", Data: syntheticUserUpdate()}, true
	}

	if store != nil {
		stats, err := store.DashboardStats(ctx)
		if err == nil {
			return realtimeEvent{Type: "dashboard_update", Data: dashboardUpdate{
				DashboardStats: stats,
				Timestamp:      time.Now().UTC(),
				Live:           true,
			}}, true
		}
		if ctx.Err() != nil {
			return realtimeEvent{}, false
		}
		logger.Warn("realtime dashboard stats unavailable, sending synthetic values", "error", err)
	}
	return realtimeEvent{Type: "dashboard_update", Data: syntheticDashboardUpdate()}, true
}

func syntheticUserUpdate() userUpdate {
	last := time.Now().UTC().Add(-time.Duration(rand.Int64N(int64(7 * 24 * time.Hour))))
	return userUpdate{
		UserStats: db.UserStats{
			TotalVolume:      float64(rand.IntN(50000) + 1000),
			CashbackAmount:   float64(rand.IntN(1000) + 100),
			TransactionCount: rand.IntN(100) + 5,
			LastTransaction:  &last,
			Status:           db.UserStatusActive,
			IsEligible:       rand.Float64() > 0.3,
		},
	}
}

func syntheticDashboardUpdate() dashboardUpdate {
	return dashboardUpdate{
		DashboardStats: db.DashboardStats{
			TotalUsers:    rand.IntN(100) + 50,
			ActiveUsers:   rand.IntN(50) + 25,
			TotalVolume:   float64(rand.IntN(1000000) + 500000),
			TotalCashback: float64(rand.IntN(50000) + 10000),
		},
		Timestamp: time.Now().UTC(),
	}
}

// handleStreamEligibility streams eligibility events as they are published.
// GET /api/v1/stream/eligibility?wallet={address}
func handleStreamEligibility(events EventStream, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wallet := r.URL.Query().Get("wallet")
		walletDesc := wallet
		if wallet == "" {
			walletDesc = "all wallets"
		} else if err := validateAddress(wallet); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		startSSE(w)
		m.RecordSSEConnectionChange(streamEligibility, 1)
		defer m.RecordSSEConnectionChange(streamEligibility, -1)

		logger.DebugContext(r.Context(), "eligibility stream client connected",
			"wallet", walletDesc,
			"remote_addr", r.RemoteAddr,
		)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		eventChan := make(chan *natspkg.EligibilityEvent, 10)
		doneChan := make(chan error, 1)
		go func() {
			doneChan <- events.Subscribe(ctx, wallet, func(event *natspkg.EligibilityEvent) {
				select {
				case eventChan <- event:
				case <-ctx.Done():
				}
			})
		}()

		fmt.Fprintf(w, "event: connected\ndata: {\"wallet\":%q}\n\n", walletDesc)
		flush(w)

		keepalive := time.NewTicker(keepaliveInterval)
		defer keepalive.Stop()

		for {
			select {
			case <-keepalive.C:
				fmt.Fprintf(w, ": keepalive\n\n")
				flush(w)

			case event := <-eventChan:
				data, err := json.Marshal(event)
				if err != nil {
					logger.WarnContext(ctx, "failed to marshal eligibility event", "error", err)
					continue
				}
				fmt.Fprintf(w, "event: eligibility\ndata: %s\n\n", data)
				flush(w)
				m.RecordSSEEventSent(streamEligibility, "eligibility")

			case err := <-doneChan:
				if err != nil {
					logger.ErrorContext(ctx, "eligibility subscription failed", "wallet", walletDesc, "error", err)
					fmt.Fprintf(w, "event: error\ndata: {\"error\": \"failed to subscribe\"}\n\n")
					flush(w)
				}
				return

			case <-r.Context().Done():
				logger.DebugContext(r.Context(), "eligibility stream client disconnected",
					"wallet", walletDesc,
					"remote_addr", r.RemoteAddr,
				)
				return
			}
		}
	})
}
