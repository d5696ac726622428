// Package notification implements the notification service: it pretends to
// deliver messages and remembers the most recent deliveries.
package notification

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/faidon-laboratory/lab-services/pkg/httputil"
	"github.com/faidon-laboratory/lab-services/pkg/observability"
	"github.com/faidon-laboratory/lab-services/pkg/simulate"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// DefaultHistorySize bounds the deliveries kept for GET /notifications.
	DefaultHistorySize = 256

	defaultListLimit = 20
	previewLength    = 50
	timestampLayout  = "2006-01-02T15:04:05Z"
)

var errSimulatedFailure = errors.New("simulated notification failure")

// SendRequest is the body of POST /notifications/send.
type SendRequest struct {
	UserID   string `json:"user_id"`
	Message  string `json:"message"`
	Channel  string `json:"channel"`
	Priority string `json:"priority"`
}

// Notification is one recorded delivery.
type Notification struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	Message  string `json:"message"`
	Channel  string `json:"channel"`
	Priority string `json:"priority"`
	SentAt   string `json:"sent_at"`
}

// Service serves the notification endpoints.
type Service struct {
	tel     *observability.Telemetry
	sim     *simulate.Simulator
	history *lru.Cache[string, Notification]
	now     func() time.Time
}

// New creates the notification service remembering up to historySize sends.
func New(tel *observability.Telemetry, sim *simulate.Simulator, historySize int) (*Service, error) {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	history, err := lru.New[string, Notification](historySize)
	if err != nil {
		return nil, fmt.Errorf("failed to create notification history: %w", err)
	}
	return &Service{
		tel:     tel,
		sim:     sim,
		history: history,
		now:     time.Now,
	}, nil
}

// RegisterRoutes mounts the service endpoints on router.
func (s *Service) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/notifications/send", s.tel.InstrumentHandler("send_notification", "/notifications/send", s.send)).Methods(http.MethodPost)
	router.HandleFunc("/notifications", s.tel.InstrumentHandler("list_notifications", "/notifications", s.list)).Methods(http.MethodGet)
}

func (s *Service) send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req SendRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		s.tel.Error(ctx, "Failed to parse notification request", err, observability.Fields{
			"method":   r.Method,
			"endpoint": "/notifications/send",
		})
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	s.tel.Info(ctx, "Processing notification request", observability.Fields{
		"user_id":  req.UserID,
		"channel":  req.Channel,
		"priority": req.Priority,
	})
	s.tel.AddSpanAttribute(ctx, "notification.channel", req.Channel)

	latency, err := s.sim.Sleep(ctx, 100*time.Millisecond, 300*time.Millisecond)
	if err != nil {
		httputil.WriteServiceUnavailable(w, "Request cancelled")
		return
	}

	fields := observability.Fields{
		"user_id":                req.UserID,
		"channel":                req.Channel,
		"priority":               req.Priority,
		"processing_duration_ms": latency.Milliseconds(),
	}

	if s.sim.ShouldFail() {
		s.tel.Error(ctx, "Notification sending failed", errSimulatedFailure, fields)
		httputil.WriteInternalError(w, "Failed to send notification")
		return
	}

	n := Notification{
		ID:       uuid.NewString(),
		UserID:   req.UserID,
		Message:  req.Message,
		Channel:  req.Channel,
		Priority: req.Priority,
		SentAt:   s.now().UTC().Format(timestampLayout),
	}
	s.history.Add(n.ID, n)

	fields["notification_id"] = n.ID
	fields["message_preview"] = truncate(req.Message, previewLength)
	s.tel.AddSpanEvent(ctx, "notification_sent", observability.Fields{"notification_id": n.ID})
	s.tel.Info(ctx, "Notification sent successfully", fields)

	_ = httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"ok":              true,
		"message":         "Notification sent successfully",
		"notification_id": n.ID,
		"user_id":         n.UserID,
		"channel":         n.Channel,
		"priority":        n.Priority,
		"sent_at":         n.SentAt,
	})
}

func (s *Service) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit, err := httputil.ParseQueryInt(r, "limit", defaultListLimit)
	if err != nil || limit < 0 {
		httputil.WriteBadRequest(w, "limit must be a non-negative integer")
		return
	}

	latency, err := s.sim.Sleep(ctx, 20*time.Millisecond, 80*time.Millisecond)
	if err != nil {
		httputil.WriteServiceUnavailable(w, "Request cancelled")
		return
	}

	if s.sim.ShouldFail() {
		s.tel.Error(ctx, "Notification listing failed", errors.New("simulated notification listing failure"), observability.Fields{
			"processing_duration_ms": latency.Milliseconds(),
		})
		httputil.WriteInternalError(w, "Failed to list notifications")
		return
	}

	recent := s.Recent(limit)
	s.tel.Info(ctx, "Notifications listed", observability.Fields{
		"count":                  len(recent),
		"processing_duration_ms": latency.Milliseconds(),
	})

	_ = httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"ok":            true,
		"count":         len(recent),
		"notifications": recent,
	})
}

// Recent returns up to limit stored notifications, newest first.
func (s *Service) Recent(limit int) []Notification {
	keys := s.history.Keys()
	out := make([]Notification, 0, min(limit, len(keys)))
	for i := len(keys) - 1; i >= 0 && len(out) < limit; i-- {
		if n, ok := s.history.Peek(keys[i]); ok {
			out = append(out, n)
		}
	}
	return out
}

// truncate keeps at most maxLen runes of s.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
