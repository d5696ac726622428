// Package user implements the user service: a synthetic work endpoint and a
// small user directory kept in memory.
package user

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/faidon-laboratory/lab-services/pkg/httputil"
	"github.com/faidon-laboratory/lab-services/pkg/observability"
	"github.com/faidon-laboratory/lab-services/pkg/simulate"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultStoreSize bounds the number of created users kept in memory.
const DefaultStoreSize = 1024

// createdIDPrefix marks IDs handed out by POST /users.
const createdIDPrefix = "user_"

const timestampLayout = "2006-01-02T15:04:05Z"

// User is the record returned by the directory endpoints.
type User struct {
	UserID    string  `json:"user_id"`
	Name      string  `json:"name"`
	Email     string  `json:"email"`
	Status    string  `json:"status"`
	CreatedAt string  `json:"created_at,omitempty"`
	LastLogin *string `json:"last_login"`
}

// Profile extends User with presentation data.
type Profile struct {
	User
	Profile ProfileDetails `json:"profile"`
}

// ProfileDetails is the extended part of a Profile.
type ProfileDetails struct {
	Bio         string            `json:"bio"`
	Location    string            `json:"location"`
	Website     string            `json:"website"`
	Preferences map[string]string `json:"preferences"`
	Stats       ProfileStats      `json:"stats"`
}

// ProfileStats holds synthetic activity counters.
type ProfileStats struct {
	Posts     int `json:"posts"`
	Followers int `json:"followers"`
	Following int `json:"following"`
}

type createRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Service serves the user endpoints.
type Service struct {
	tel      *observability.Telemetry
	sim      *simulate.Simulator
	greeting string
	users    *lru.Cache[string, User]
	now      func() time.Time
}

// New creates the user service with a store holding at most storeSize users.
func New(tel *observability.Telemetry, sim *simulate.Simulator, greeting string, storeSize int) (*Service, error) {
	if storeSize <= 0 {
		storeSize = DefaultStoreSize
	}
	users, err := lru.New[string, User](storeSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create user store: %w", err)
	}
	return &Service{
		tel:      tel,
		sim:      sim,
		greeting: greeting,
		users:    users,
		now:      time.Now,
	}, nil
}

// RegisterRoutes mounts the service endpoints on router.
func (s *Service) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/work", s.tel.InstrumentHandler("work", "/work", s.work)).Methods(http.MethodGet)
	router.HandleFunc("/users", s.tel.InstrumentHandler("create_user", "/users", s.createUser)).Methods(http.MethodPost)
	router.HandleFunc("/users/{id}", s.tel.InstrumentHandler("get_user", "/users/{id}", s.getUser)).Methods(http.MethodGet)
	router.HandleFunc("/users/{id}/profile", s.tel.InstrumentHandler("get_user_profile", "/users/{id}/profile", s.getProfile)).Methods(http.MethodGet)
}

func (s *Service) timestamp() string {
	return s.now().UTC().Format(timestampLayout)
}

func requestFields(r *http.Request, endpoint string, latency time.Duration) observability.Fields {
	return observability.Fields{
		"method":                 r.Method,
		"endpoint":               endpoint,
		"user_agent":             r.UserAgent(),
		"processing_duration_ms": latency.Milliseconds(),
	}
}

func (s *Service) work(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	latency, err := s.sim.Sleep(ctx, 50*time.Millisecond, 200*time.Millisecond)
	if err != nil {
		httputil.WriteServiceUnavailable(w, "Request cancelled")
		return
	}

	if s.sim.ShouldFail() {
		s.tel.Error(ctx, "User processing failed", fmt.Errorf("simulated user service failure"), requestFields(r, "/work", latency))
		httputil.WriteInternalError(w, "simulated user service failure")
		return
	}

	lastLogin := s.timestamp()
	n := 1000 + s.sim.IntN(9000)
	data := User{
		UserID:    fmt.Sprintf("%s%d", createdIDPrefix, n),
		Name:      fmt.Sprintf("User %d", 1+s.sim.IntN(100)),
		Email:     fmt.Sprintf("user%d@example.com", 1+s.sim.IntN(100)),
		Status:    "active",
		LastLogin: &lastLogin,
	}

	fields := requestFields(r, "/work", latency)
	fields["user_id"] = data.UserID
	fields["greeting"] = s.greeting
	s.tel.Info(ctx, "User processing completed successfully", fields)

	_ = httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"ok":        true,
		"greeting":  s.greeting,
		"user_data": data,
	})
}

func (s *Service) getUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := httputil.ParsePathString(r, "id")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	s.tel.AddSpanAttribute(ctx, "user.id", id)

	latency, err := s.sim.Sleep(ctx, 30*time.Millisecond, 150*time.Millisecond)
	if err != nil {
		httputil.WriteServiceUnavailable(w, "Request cancelled")
		return
	}

	fields := requestFields(r, "/users/{id}", latency)
	fields["user_id"] = id

	if s.sim.ShouldFail() {
		s.tel.Error(ctx, "User lookup failed", fmt.Errorf("simulated user lookup failure"), fields)
		httputil.WriteInternalError(w, "User lookup failed")
		return
	}

	u, found := s.lookup(id)
	if !found {
		s.tel.Warn(ctx, "User not found", fields)
		httputil.WriteNotFound(w, "User not found")
		return
	}

	s.tel.Info(ctx, "User lookup completed successfully", fields)
	_ = httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "user": u})
}

func (s *Service) createUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createRequest
	if err := httputil.ParseJSON(r, &req); err != nil || req.Name == "" || req.Email == "" {
		s.tel.Warn(ctx, "Invalid user creation request", observability.Fields{
			"method":     r.Method,
			"endpoint":   "/users",
			"user_agent": r.UserAgent(),
		})
		httputil.WriteBadRequest(w, "Name and email are required")
		return
	}

	latency, err := s.sim.Sleep(ctx, 100*time.Millisecond, 300*time.Millisecond)
	if err != nil {
		httputil.WriteServiceUnavailable(w, "Request cancelled")
		return
	}

	fields := requestFields(r, "/users", latency)
	fields["name"] = req.Name
	fields["email"] = req.Email

	if s.sim.ShouldFail() {
		s.tel.Error(ctx, "User creation failed", fmt.Errorf("simulated user creation failure"), fields)
		httputil.WriteInternalError(w, "User creation failed")
		return
	}

	u := User{
		UserID:    createdIDPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:8],
		Name:      req.Name,
		Email:     req.Email,
		Status:    "active",
		CreatedAt: s.timestamp(),
	}
	s.users.Add(u.UserID, u)

	s.tel.AddSpanAttribute(ctx, "user.id", u.UserID)
	s.tel.AddSpanEvent(ctx, "user_created", observability.Fields{"user_id": u.UserID})
	fields["user_id"] = u.UserID
	s.tel.Info(ctx, "User created successfully", fields)

	_ = httputil.WriteJSON(w, http.StatusCreated, map[string]interface{}{"ok": true, "user": u})
}

func (s *Service) getProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := httputil.ParsePathString(r, "id")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	s.tel.AddSpanAttribute(ctx, "user.id", id)

	latency, err := s.sim.Sleep(ctx, 50*time.Millisecond, 150*time.Millisecond)
	if err != nil {
		httputil.WriteServiceUnavailable(w, "Request cancelled")
		return
	}

	fields := requestFields(r, "/users/{id}/profile", latency)
	fields["user_id"] = id

	if s.sim.ShouldFail() {
		s.tel.Error(ctx, "User profile lookup failed", fmt.Errorf("simulated profile lookup failure"), fields)
		httputil.WriteInternalError(w, "Profile lookup failed")
		return
	}

	u, found := s.lookup(id)
	if !found {
		s.tel.Warn(ctx, "User not found", fields)
		httputil.WriteNotFound(w, "User not found")
		return
	}

	profile := Profile{
		User: u,
		Profile: ProfileDetails{
			Bio:      "This is the profile for user " + id,
			Location: "San Francisco, CA",
			Website:  "https://example.com/users/" + id,
			Preferences: map[string]string{
				"theme":         "dark",
				"notifications": "enabled",
				"language":      "en",
			},
			Stats: ProfileStats{
				Posts:     10 + s.sim.IntN(91),
				Followers: 50 + s.sim.IntN(451),
				Following: 20 + s.sim.IntN(181),
			},
		},
	}

	s.tel.Info(ctx, "User profile retrieved successfully", fields)
	_ = httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "profile": profile})
}

// lookup returns a stored user. IDs in the format handed out by createUser
// must exist in the store; any other ID resolves to a synthetic record.
func (s *Service) lookup(id string) (User, bool) {
	if u, ok := s.users.Get(id); ok {
		return u, true
	}
	if strings.HasPrefix(id, createdIDPrefix) && len(id) == len(createdIDPrefix)+8 {
		return User{}, false
	}

	lastLogin := s.timestamp()
	return User{
		UserID:    id,
		Name:      "User " + id,
		Email:     "user" + id + "@example.com",
		Status:    "active",
		CreatedAt: "2024-01-01T00:00:00Z",
		LastLogin: &lastLogin,
	}, true
}

// Len reports how many created users are currently stored.
func (s *Service) Len() int {
	return s.users.Len()
}
