package fakeapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
)

// User is an account known to the fake API.
type User struct {
	ID       int
	Username string
	Password string
	Role     string
}

// Entry is one ledger row.
type Entry struct {
	ID        int     `json:"id"`
	Project   string  `json:"project_name"`
	Amount    float64 `json:"amount"`
	CreatedBy int     `json:"created_by"`
}

// DefaultUsers returns one administrator and one regular user.
func DefaultUsers() []User {
	return []User{
		{ID: 1, Username: "admin", Password: "admin123", Role: "admin"},
		{ID: 2, Username: "alice", Password: "alice123", Role: "user"},
	}
}

// Server is the fake ledger API. Mount Handler under any base URL; all routes
// live below /api.
type Server struct {
	issuer *Issuer
	router *mux.Router

	mu      sync.Mutex
	users   map[string]User
	entries map[int]Entry
	nextID  int

	quotaExceeded atomic.Bool
	hits          atomic.Int64
	authHits      atomic.Int64
	barrier       atomic.Pointer[barrier]
}

type barrier struct {
	n       int32
	arrived atomic.Int32
	release chan struct{}
}

// New creates a Server with the given users.
func New(users []User) *Server {
	s := &Server{
		issuer:  NewIssuer([]byte("fakeapi-signing-key"), time.Hour),
		users:   make(map[string]User, len(users)),
		entries: make(map[int]Entry),
		nextID:  1,
	}
	for _, u := range users {
		s.users[u.Username] = u
	}

	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.count)
	api.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)

	authed := api.NewRoute().Subrouter()
	authed.Use(s.countAuthed, s.hold, requireAuth(s.issuer))
	authed.HandleFunc("/me", s.handleMe).Methods(http.MethodGet)
	authed.HandleFunc("/ledger", s.handleListEntries).Methods(http.MethodGet)
	authed.HandleFunc("/ledger", s.handleCreateEntry).Methods(http.MethodPost)
	authed.HandleFunc("/ledger/{id:[0-9]+}", s.handleGetEntry).Methods(http.MethodGet)
	authed.HandleFunc("/ledger/{id:[0-9]+}", s.handleDeleteEntry).Methods(http.MethodDelete)

	admin := authed.PathPrefix("/admin").Subrouter()
	admin.Use(requireRole("admin"))
	admin.HandleFunc("/users", s.handleListUsers).Methods(http.MethodGet)
	admin.HandleFunc("/logs", s.handleLogs).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": "Resource not found"})
	})
	s.router = r
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Issuer exposes the token issuer, e.g. to mint tokens directly in tests.
func (s *Server) Issuer() *Issuer {
	return s.issuer
}

// ExpireSessions revokes every issued token; the next authenticated call
// gets 401.
func (s *Server) ExpireSessions() {
	s.issuer.RevokeAll()
}

// SetQuotaExceeded makes ledger writes answer 200 with success=false.
func (s *Server) SetQuotaExceeded(v bool) {
	s.quotaExceeded.Store(v)
}

// HoldAuthenticated makes authenticated requests wait until n of them have
// arrived, then releases them together. It lets tests force concurrent
// responses.
func (s *Server) HoldAuthenticated(n int) {
	if n <= 0 {
		s.barrier.Store(nil)
		return
	}
	s.barrier.Store(&barrier{n: int32(n), release: make(chan struct{})})
}

// Hits returns the total number of /api requests served.
func (s *Server) Hits() int64 {
	return s.hits.Load()
}

// AuthenticatedHits returns the number of requests that reached the
// authenticated routes, whether or not their token was accepted.
func (s *Server) AuthenticatedHits() int64 {
	return s.authHits.Load()
}

func (s *Server) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) countAuthed(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.authHits.Add(1)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) hold(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if b := s.barrier.Load(); b != nil {
			if b.arrived.Add(1) == b.n {
				close(b.release)
			}
			select {
			case <-b.release:
			case <-r.Context().Done():
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Invalid JSON body"})
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Password = strings.TrimSpace(req.Password)
	if req.Username == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Username and password are required"})
		return
	}

	s.mu.Lock()
	u, ok := s.users[req.Username]
	s.mu.Unlock()
	if !ok || u.Password != req.Password {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Invalid username or password"})
		return
	}

	token, err := s.issuer.Issue(u)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "message": "Login failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"message":      "Login successful",
		"access_token": token,
		"user_id":      u.ID,
		"username":     u.Username,
		"role":         u.Role,
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data": map[string]any{
			"id":       claims.Subject,
			"username": claims.Username,
			"role":     claims.Role,
		},
	})
}

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	items := make([]Entry, 0, len(s.entries))
	for id := 1; id < s.nextID; id++ {
		if e, ok := s.entries[id]; ok {
			items = append(items, e)
		}
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"code":    0,
		"message": "success",
		"data": map[string]any{
			"items": items,
			"total": len(items),
		},
	})
}

func (s *Server) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	if s.quotaExceeded.Load() {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": "quota exceeded"})
		return
	}
	var e Entry
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Invalid JSON body"})
		return
	}
	if strings.TrimSpace(e.Project) == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"success": false, "message": "project_name is required"})
		return
	}
	claims, _ := ClaimsFromContext(r.Context())
	e.CreatedBy, _ = strconv.Atoi(claims.Subject)

	s.mu.Lock()
	e.ID = s.nextID
	s.nextID++
	s.entries[e.ID] = e
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "message": "Entry created", "data": e})
}

func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(mux.Vars(r)["id"])
	s.mu.Lock()
	e, ok := s.entries[id]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": "Entry not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": e})
}

func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(mux.Vars(r)["id"])
	s.mu.Lock()
	_, ok := s.entries[id]
	delete(s.entries, id)
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": "Entry not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Entry deleted"})
}

func (s *Server) handleListUsers(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	out := make([]map[string]any, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, map[string]any{"id": u.ID, "username": u.Username, "role": u.Role})
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": out})
}

func (s *Server) handleLogs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": []any{}})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
