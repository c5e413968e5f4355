// Package stubapi is an in-memory stand-in for the cafespot REST backend.
// It serves the same routes and error shapes, records what it receives and
// can be told to fail specific routes.
package stubapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/codr1/cafespot/internal/apiclient"
)

// StoryLifetime is how long a live update stays active.
const StoryLifetime = 24 * time.Hour

// Request is one request the stub received.
type Request struct {
	Method string
	Route  string
	Path   string
	Query  string
	Header http.Header
	Body   []byte
}

// JSON decodes the recorded body into out.
func (r Request) JSON(out any) error {
	return json.Unmarshal(r.Body, out)
}

type failure struct {
	status int
	detail string
}

type checkIn struct {
	cafeID string
	day    string
}

type Option func(*Server)

// WithClock replaces the time source used for check-in days, story expiry
// and timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithLatency delays every response, for exercising in-flight behaviour.
func WithLatency(d time.Duration) Option {
	return func(s *Server) { s.latency = d }
}

type Server struct {
	now     func() time.Time
	latency time.Duration
	handler http.Handler

	mu           sync.Mutex
	cafes        map[string]map[string]any
	cafeOrder    []string
	users        map[string]map[string]any
	reservations []apiclient.Reservation
	stories      []apiclient.Story
	reviews      []apiclient.Review
	checkins     map[string][]checkIn
	history      map[string][]apiclient.OccupancyPoint
	snapshots    []apiclient.OccupancySnapshot
	objects      map[string][]byte
	failures     map[string][]failure
	requests     []Request
}

func New(opts ...Option) *Server {
	s := &Server{
		now:      time.Now,
		cafes:    make(map[string]map[string]any),
		users:    make(map[string]map[string]any),
		checkins: make(map[string][]checkIn),
		history:  make(map[string][]apiclient.OccupancyPoint),
		objects:  make(map[string][]byte),
		failures: make(map[string][]failure),
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)
	s.handler = ChainMiddleware(
		mux,
		WithLogging,
		WithRecovery,
		WithRequestID,
	)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// FailNext makes the next request to method and route fail with status and
// a {"detail": detail} body. Calls queue up. Routes use the client's
// labels, e.g. "/cafes/{cafeId}".
func (s *Server) FailNext(method, route string, status int, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := method + " " + route
	s.failures[key] = append(s.failures[key], failure{status: status, detail: detail})
}

// Requests returns every recorded request, oldest first.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// RequestsTo returns the recorded requests for one method and route.
func (s *Server) RequestsTo(method, route string) []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Request
	for _, r := range s.requests {
		if r.Method == method && r.Route == route {
			out = append(out, r)
		}
	}
	return out
}

// PutCafe stores a cafe record as given. The id is taken from fields or
// generated. Any table_config shape is kept verbatim.
func (s *Server) PutCafe(fields map[string]any) string {
	cafe := cloneMap(fields)
	id, _ := cafe["id"].(string)
	if id == "" {
		id = uuid.NewString()
		cafe["id"] = id
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.cafes[id]; !exists {
		s.cafeOrder = append(s.cafeOrder, id)
	}
	s.cafes[id] = cafe
	return id
}

// Cafe returns a copy of the stored cafe record.
func (s *Server) Cafe(id string) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cafe, ok := s.cafes[id]
	if !ok {
		return nil, false
	}
	return cloneMap(cafe), true
}

// PutUser stores a user record keyed by its cognito_sub.
func (s *Server) PutUser(fields map[string]any) string {
	user := cloneMap(fields)
	sub, _ := user["cognito_sub"].(string)
	if sub == "" {
		sub = uuid.NewString()
		user["cognito_sub"] = sub
	}
	if _, ok := user["id"]; !ok {
		user["id"] = uuid.NewString()
	}
	if _, ok := user["saved_cafes"]; !ok {
		user["saved_cafes"] = []any{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[sub] = user
	return sub
}

func (s *Server) User(sub string) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[sub]
	if !ok {
		return nil, false
	}
	return cloneMap(user), true
}

// PutReservation stores a reservation as given, filling in an id.
func (s *Server) PutReservation(r apiclient.Reservation) string {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reservations = append(s.reservations, r)
	return r.ID
}

func (s *Server) Reservations() []apiclient.Reservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]apiclient.Reservation(nil), s.reservations...)
}

// Snapshots returns the occupancy snapshots posted so far.
func (s *Server) Snapshots() []apiclient.OccupancySnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]apiclient.OccupancySnapshot(nil), s.snapshots...)
}

// CheckIn records a check-in for today without a request.
func (s *Server) CheckIn(sub, cafeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkins[sub] = append(s.checkins[sub], checkIn{cafeID: cafeID, day: s.today()})
}

// Object returns an uploaded object by key.
func (s *Server) Object(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	body, ok := s.objects[key]
	return body, ok
}

func (s *Server) today() string {
	return s.now().Format(time.DateOnly)
}

// route registers h under pattern. Every request is recorded and checked
// against queued failures before h runs.
func (s *Server) route(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	method, path, _ := strings.Cut(pattern, " ")
	label := strings.TrimSuffix(path, "{$}")
	key := method + " " + label

	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		var body []byte
		if r.Body != nil {
			raw, err := io.ReadAll(r.Body)
			if err != nil {
				writeDetail(w, http.StatusBadRequest, "unreadable body")
				return
			}
			body = raw
			r.Body = io.NopCloser(bytes.NewReader(raw))
		}

		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Method: r.Method,
			Route:  label,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Header: r.Header.Clone(),
			Body:   body,
		})
		var injected *failure
		if queue := s.failures[key]; len(queue) > 0 {
			f := queue[0]
			injected = &f
			s.failures[key] = queue[1:]
		}
		s.mu.Unlock()

		if s.latency > 0 {
			select {
			case <-time.After(s.latency):
			case <-r.Context().Done():
				return
			}
		}

		if injected != nil {
			log.Ctx(r.Context()).Debug().
				Str("route", key).
				Int("status", injected.status).
				Msg("Injected failure")
			writeDetail(w, injected.status, injected.detail)
			return
		}
		h(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		log.Error().Err(err).Msg("Failed to encode stub response")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// writeDetail writes a FastAPI-style {"detail": "..."} error.
func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// writeValidation writes a FastAPI-style 422 body for one field.
func writeValidation(w http.ResponseWriter, field, msg string) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
		"detail": []map[string]any{{
			"loc":  []string{"body", field},
			"msg":  msg,
			"type": "value_error",
		}},
	})
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}

// cloneMap deep-copies a JSON-shaped record.
func cloneMap(in map[string]any) map[string]any {
	raw, err := json.Marshal(in)
	if err != nil {
		out := make(map[string]any, len(in))
		for k, v := range in {
			out[k] = v
		}
		return out
	}
	out := make(map[string]any, len(in))
	_ = json.Unmarshal(raw, &out)
	return out
}
