// Package gateway implements the API gateway that fans requests out to the
// user and notification services.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/faidon-laboratory/lab-services/pkg/httputil"
	"github.com/faidon-laboratory/lab-services/pkg/observability"
	"github.com/faidon-laboratory/lab-services/pkg/simulate"
	"github.com/gorilla/mux"
)

const timestampLayout = "2006-01-02T15:04:05Z"

// Config holds the downstream addresses.
type Config struct {
	UserServiceURL         string
	NotificationServiceURL string
}

// Service serves the gateway endpoints.
type Service struct {
	tel           *observability.Telemetry
	sim           *simulate.Simulator
	users         *upstream
	notifications *upstream
	now           func() time.Time
}

// New creates the gateway. client is used for every downstream call; build
// it with NewHTTPClient so trace context propagates.
func New(tel *observability.Telemetry, sim *simulate.Simulator, client *http.Client, cfg Config) *Service {
	return &Service{
		tel:           tel,
		sim:           sim,
		users:         newUpstream(tel, client, "user_service", cfg.UserServiceURL),
		notifications: newUpstream(tel, client, "notification_service", cfg.NotificationServiceURL),
		now:           time.Now,
	}
}

// RegisterRoutes mounts the gateway endpoints on router.
func (s *Service) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/process-user", s.tel.InstrumentHandler("process_user_request", "/process-user", s.processUser)).Methods(http.MethodPost)
	router.HandleFunc("/api/users/{id}", s.tel.InstrumentHandler("get_user", "/api/users/{id}", s.getUser)).Methods(http.MethodGet)
	router.HandleFunc("/api/users", s.tel.InstrumentHandler("create_user", "/api/users", s.createUser)).Methods(http.MethodPost)
	router.HandleFunc("/api/notifications", s.tel.InstrumentHandler("get_notifications", "/api/notifications", s.getNotifications)).Methods(http.MethodGet)
	router.HandleFunc("/api/process", s.tel.InstrumentHandler("process_workflow", "/api/process", s.processWorkflow)).Methods(http.MethodPost)
}

type processUserRequest struct {
	UserID  string `json:"user_id"`
	Action  string `json:"action"`
	Message string `json:"message"`
}

type notificationRequest struct {
	UserID   string `json:"user_id"`
	Message  string `json:"message"`
	Channel  string `json:"channel"`
	Priority string `json:"priority"`
}

func (s *Service) processUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	var req processUserRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		s.tel.Error(ctx, "Failed to parse user request", err, observability.Fields{
			"method":   r.Method,
			"endpoint": "/process-user",
		})
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	fields := observability.Fields{"user_id": req.UserID, "action": req.Action}
	s.tel.Info(ctx, "Processing user request", fields)

	userResult, err := s.expectOK(s.users.call(ctx, http.MethodGet, "/work", nil))
	if err != nil {
		s.tel.Error(ctx, "User service call failed", err, fields)
		httputil.WriteInternalError(w, "User service unavailable")
		return
	}

	notificationResult, err := s.expectOK(s.notifications.call(ctx, http.MethodPost, "/notifications/send", notificationRequest{
		UserID:   req.UserID,
		Message:  req.Message + " (User service result: " + string(userResult) + ")",
		Channel:  "email",
		Priority: "normal",
	}))
	if err != nil {
		s.tel.Error(ctx, "Notification service call failed", err, fields)
		httputil.WriteInternalError(w, "Notification service unavailable")
		return
	}

	fields["total_duration_ms"] = time.Since(start).Milliseconds()
	s.tel.Info(ctx, "User request processed successfully", fields)

	_ = httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"ok":                  true,
		"message":             "User request processed successfully",
		"user_id":             req.UserID,
		"action":              req.Action,
		"user_service_result": rawOrString(userResult),
		"notification_result": rawOrString(notificationResult),
		"processed_at":        s.now().UTC().Format(timestampLayout),
	})
}

// expectOK turns a non-200 upstream reply into an error.
func (s *Service) expectOK(resp *upstreamResponse, err error) ([]byte, error) {
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upstream returned status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// rawOrString embeds valid JSON as-is and anything else as a string.
func rawOrString(body []byte) interface{} {
	if json.Valid(body) {
		return json.RawMessage(body)
	}
	return string(body)
}

func (s *Service) getUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	id, err := httputil.ParsePathString(r, "id")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	s.tel.AddSpanAttribute(ctx, "user.id", id)
	s.tel.Info(ctx, "Getting user", observability.Fields{"user_id": id, "method": r.Method})

	resp, err := s.users.call(ctx, http.MethodGet, "/users/"+url.PathEscape(id), nil)
	if err != nil {
		s.tel.Error(ctx, "User service request failed", err, observability.Fields{"user_id": id})
		httputil.WriteServiceUnavailable(w, "User service unavailable")
		return
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		httputil.WriteNotFound(w, "User not found")
		return
	default:
		s.tel.Warn(ctx, "User service returned an error", observability.Fields{"user_id": id, "status_code": resp.StatusCode})
		httputil.WriteInternalError(w, "User service error")
		return
	}

	httputil.WriteRawJSON(w, http.StatusOK, resp.Body)
	s.tel.Info(ctx, "User retrieved successfully", observability.Fields{
		"user_id":     id,
		"duration_ms": time.Since(start).Milliseconds(),
	})
}

type createUserRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (s *Service) createUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	var req createUserRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		s.tel.Error(ctx, "Failed to parse create user request", err)
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	s.tel.Info(ctx, "Creating user", observability.Fields{"name": req.Name, "email": req.Email})

	resp, err := s.users.call(ctx, http.MethodPost, "/users", req)
	if err != nil {
		s.tel.Error(ctx, "User service request failed", err)
		httputil.WriteServiceUnavailable(w, "User service unavailable")
		return
	}

	switch resp.StatusCode {
	case http.StatusCreated, http.StatusOK:
	case http.StatusBadRequest:
		httputil.WriteRawJSON(w, http.StatusBadRequest, resp.Body)
		return
	default:
		s.tel.Warn(ctx, "User creation failed upstream", observability.Fields{"status_code": resp.StatusCode})
		httputil.WriteInternalError(w, "User creation failed")
		return
	}

	httputil.WriteRawJSON(w, http.StatusCreated, resp.Body)
	s.tel.Info(ctx, "User created successfully", observability.Fields{
		"name":        req.Name,
		"email":       req.Email,
		"duration_ms": time.Since(start).Milliseconds(),
	})
}

func (s *Service) getNotifications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	s.tel.Info(ctx, "Getting notifications", observability.Fields{"method": r.Method})

	path := "/notifications"
	if r.URL.RawQuery != "" {
		path += "?" + r.URL.RawQuery
	}

	resp, err := s.notifications.call(ctx, http.MethodGet, path, nil)
	if err != nil {
		s.tel.Error(ctx, "Notification service request failed", err)
		httputil.WriteServiceUnavailable(w, "Notification service unavailable")
		return
	}
	if resp.StatusCode != http.StatusOK {
		s.tel.Warn(ctx, "Notification service returned an error", observability.Fields{"status_code": resp.StatusCode})
		httputil.WriteInternalError(w, "Notification service error")
		return
	}

	httputil.WriteRawJSON(w, http.StatusOK, resp.Body)
	s.tel.Info(ctx, "Notifications retrieved successfully", observability.Fields{
		"duration_ms": time.Since(start).Milliseconds(),
	})
}

type workflowRequest struct {
	WorkflowID string `json:"workflow_id"`
	Data       string `json:"data"`
}

var errWorkflowFailed = errors.New("simulated workflow failure")

func (s *Service) processWorkflow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	var req workflowRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		s.tel.Error(ctx, "Failed to parse workflow request", err)
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	s.tel.Info(ctx, "Processing workflow", observability.Fields{"workflow_id": req.WorkflowID})

	if s.sim.ShouldFail() {
		s.tel.Error(ctx, "Workflow processing failed", errWorkflowFailed, observability.Fields{"workflow_id": req.WorkflowID})
		httputil.WriteInternalError(w, "Workflow processing failed")
		return
	}

	var processing time.Duration
	err := s.tel.Trace(ctx, "run_workflow", func(ctx context.Context) error {
		var err error
		processing, err = s.sim.Sleep(ctx, 50*time.Millisecond, 150*time.Millisecond)
		return err
	})
	if err != nil {
		httputil.WriteServiceUnavailable(w, "Request cancelled")
		return
	}

	_ = httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"ok":           true,
		"workflow_id":  req.WorkflowID,
		"status":       "completed",
		"processed_at": s.now().UTC().Format(timestampLayout),
		"duration_ms":  time.Since(start).Milliseconds(),
	})

	s.tel.Info(ctx, "Workflow processed successfully", observability.Fields{
		"workflow_id":   req.WorkflowID,
		"duration_ms":   time.Since(start).Milliseconds(),
		"processing_ms": processing.Milliseconds(),
	})
}
