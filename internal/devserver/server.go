// Package devserver is an in-memory stand-in for the transport-schedule REST
// backend, used for local development and by tests of the client.
package devserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"

	"github.com/aquarius1905/care-support/pkg/models"
)

// Schedule is one stored pickup
type Schedule struct {
	ID          int64
	UserName    string
	ScheduledAt time.Time
}

type scheduleJSON struct {
	ID                         int64  `json:"id"`
	UserName                   string `json:"user_name"`
	ScheduledTransportDatetime string `json:"scheduled_transport_datetime"`
}

// Server holds users, issued tokens and schedules in memory
type Server struct {
	mu        sync.RWMutex
	users     map[string][]byte
	tokens    map[string]string
	schedules map[int64]Schedule
	nextID    int64

	cost     int
	location *time.Location
	log      *slog.Logger
}

// Option configures a Server
type Option func(*Server)

// WithBcryptCost sets the password hashing cost
func WithBcryptCost(cost int) Option {
	return func(s *Server) { s.cost = cost }
}

// WithLocation sets the serving timezone used for emitted timestamps
func WithLocation(loc *time.Location) Option {
	return func(s *Server) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// New creates an empty backend
func New(opts ...Option) *Server {
	s := &Server{
		users:     make(map[string][]byte),
		tokens:    make(map[string]string),
		schedules: make(map[int64]Schedule),
		cost:      bcrypt.DefaultCost,
		location:  time.Local,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddUser registers a staff account
func (s *Server) AddUser(username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[username] = hash
	return nil
}

// AddSchedule stores a pickup and returns its id
func (s *Server) AddSchedule(userName string, at time.Time) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.schedules[s.nextID] = Schedule{ID: s.nextID, UserName: userName, ScheduledAt: at.In(s.location)}
	return s.nextID
}

// Schedule returns a stored pickup
func (s *Server) Schedule(id int64) (Schedule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.schedules[id]
	return sc, ok
}

// IssueToken creates a token for username without checking a password
func (s *Server) IssueToken(username string) string {
	token := uuid.New().String()
	s.mu.Lock()
	s.tokens[token] = username
	s.mu.Unlock()
	return token
}

// RevokeTokens invalidates every issued token
func (s *Server) RevokeTokens() {
	s.mu.Lock()
	s.tokens = make(map[string]string)
	s.mu.Unlock()
}

// Seed adds a demo account and a handful of pickups on day
func (s *Server) Seed(day time.Time, username, password string) error {
	if err := s.AddUser(username, password); err != nil {
		return err
	}
	base := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, s.location)
	demo := []struct {
		name string
		at   time.Duration
	}{
		{"Sato Hanako", 8*time.Hour + 30*time.Minute},
		{"Suzuki Ichiro", 8*time.Hour + 50*time.Minute},
		{"Takahashi Yumi", 9*time.Hour + 10*time.Minute},
		{"Tanaka Kenji", 16 * time.Hour},
	}
	for _, d := range demo {
		s.AddSchedule(d.name, base.Add(d.at))
	}
	return nil
}

// Handler returns the routed API under /api
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/token/", s.handleToken).Methods(http.MethodPost)

	schedules := api.PathPrefix("/transport-schedules").Subrouter()
	schedules.Use(s.requireToken)
	schedules.HandleFunc("/", s.handleList).Methods(http.MethodGet)
	schedules.HandleFunc("/{id:[0-9]+}/", s.handleGet).Methods(http.MethodGet)
	schedules.HandleFunc("/{id:[0-9]+}/", s.handlePatch).Methods(http.MethodPatch)
	schedules.HandleFunc("/{id:[0-9]+}/", s.handleDelete).Methods(http.MethodDelete)

	r.Use(s.logRequests)
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("devserver request",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", r.Header.Get("X-Request-Id"),
			"duration", time.Since(start))
	})
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			writeDetail(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
			return
		}
		s.mu.RLock()
		_, valid := s.tokens[token]
		s.mu.RUnlock()
		if !valid {
			writeDetail(w, http.StatusUnauthorized, "Given token not valid for any token type")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.mu.RLock()
	hash, ok := s.users[req.Username]
	s.mu.RUnlock()
	if !ok || bcrypt.CompareHashAndPassword(hash, []byte(req.Password)) != nil {
		writeDetail(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"access": s.IssueToken(req.Username)})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	day, err := time.ParseInLocation("2006-01-02", date, s.location)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	s.mu.RLock()
	results := make([]scheduleJSON, 0)
	for _, sc := range s.schedules {
		y, m, d := sc.ScheduledAt.Date()
		if y == day.Year() && m == day.Month() && d == day.Day() {
			results = append(results, s.toJSON(sc))
		}
	}
	s.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
	writeJSON(w, http.StatusOK, map[string]any{"count": len(results), "results": results})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	sc, err := s.lookup(r)
	if err != nil {
		writeDetail(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.toJSON(sc))
}

func (s *Server) handlePatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Time string `json:"time"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ct, err := models.ParseClockTime(req.Time)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeDetail(w, http.StatusNotFound, "not found")
		return
	}

	s.mu.Lock()
	sc, ok := s.schedules[id]
	if ok {
		y, m, d := sc.ScheduledAt.Date()
		sc.ScheduledAt = time.Date(y, m, d, ct.Hour, ct.Minute, 0, 0, s.location)
		s.schedules[id] = sc
	}
	s.mu.Unlock()

	if !ok {
		writeDetail(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, s.toJSON(sc))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	sc, err := s.lookup(r)
	if err != nil {
		writeDetail(w, http.StatusNotFound, err.Error())
		return
	}
	s.mu.Lock()
	delete(s.schedules, sc.ID)
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) lookup(r *http.Request) (Schedule, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		return Schedule{}, errors.New("not found")
	}
	sc, ok := s.Schedule(id)
	if !ok {
		return Schedule{}, errors.New("not found")
	}
	return sc, nil
}

func (s *Server) toJSON(sc Schedule) scheduleJSON {
	return scheduleJSON{
		ID:                         sc.ID,
		UserName:                   sc.UserName,
		ScheduledTransportDatetime: sc.ScheduledAt.In(s.location).Format(time.RFC3339),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
