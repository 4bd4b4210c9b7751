// Package clienttest provides an in-process fake of the shortening service.
package clienttest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/serroba/shortify/internal/client"
)

const cookieName = "user_id"

type failure struct {
	status int
	body   string
}

// Server mimics the HTTP contract of the shortening service. Records are
// scoped to the user_id cookie the server issues, newest first.
type Server struct {
	*httptest.Server

	mu           sync.Mutex
	records      map[string][]client.URLRecord
	aliases      map[string]bool
	nextCode     int
	omitURL      bool
	shortenFail  *failure
	urlsFail     *failure
	shortenCalls int
	urlsCalls    int
	lastRequest  client.ShortenRequest
	hold         *Hold
}

// Hold parks api requests until Release is called.
type Hold struct {
	entered chan string
	release chan struct{}
	once    sync.Once
}

// Entered yields the path of every request that got parked.
func (h *Hold) Entered() <-chan string {
	return h.entered
}

// Release lets parked and future requests through.
func (h *Hold) Release() {
	h.once.Do(func() { close(h.release) })
}

// NewServer starts a fake service that is closed when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		records: make(map[string][]client.URLRecord),
		aliases: make(map[string]bool),
	}

	r := chi.NewRouter()
	r.Post("/api/shorten", s.handleShorten)
	r.Get("/api/urls", s.handleURLs)
	r.Get("/api/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)

	return s
}

// OmitURL makes shorten responses carry only the code.
func (s *Server) OmitURL() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.omitURL = true
}

// FailShorten makes every shorten call answer status with the raw body.
func (s *Server) FailShorten(status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.shortenFail = &failure{status: status, body: body}
}

// FailURLs makes every list call answer status with the raw body.
func (s *Server) FailURLs(status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.urlsFail = &failure{status: status, body: body}
}

// Recover clears configured failures.
func (s *Server) Recover() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.shortenFail = nil
	s.urlsFail = nil
}

// Hold parks every api request until the returned Hold is released.
// The hold is released when the test ends.
func (s *Server) Hold(t testing.TB) *Hold {
	t.Helper()

	h := &Hold{entered: make(chan string, 16), release: make(chan struct{})}
	t.Cleanup(h.Release)

	s.mu.Lock()
	s.hold = h
	s.mu.Unlock()

	return h
}

// Seed stores a record for userID as if it had been created earlier.
func (s *Server) Seed(userID, code, originalURL string) client.URLRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.save(userID, code, originalURL)
}

// ShortenCalls returns how many shorten requests reached the server.
func (s *Server) ShortenCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.shortenCalls
}

// URLsCalls returns how many list requests reached the server.
func (s *Server) URLsCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.urlsCalls
}

// LastRequest returns the body of the most recent shorten request.
func (s *Server) LastRequest() client.ShortenRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastRequest
}

// Users returns the ids of every session the server has issued.
func (s *Server) Users() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := make([]string, 0, len(s.records))
	for id := range s.records {
		users = append(users, id)
	}

	return users
}

func (s *Server) handleShorten(w http.ResponseWriter, r *http.Request) {
	s.park(r)

	userID := s.userID(w, r)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.shortenCalls++

	if s.shortenFail != nil {
		writeRaw(w, s.shortenFail.status, s.shortenFail.body)

		return
	}

	var req client.ShortenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "URL is required"})

		return
	}

	s.lastRequest = req

	code := req.Alias
	if code == "" {
		s.nextCode++
		code = fmt.Sprintf("c%05d", s.nextCode)
	} else if s.aliases[code] {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "Custom alias is already in use"})

		return
	}

	record := s.save(userID, code, req.URL)

	resp := client.ShortenResponse{Code: code}
	if !s.omitURL {
		resp.URL = record.ShortURL
	}

	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleURLs(w http.ResponseWriter, r *http.Request) {
	s.park(r)

	userID := s.userID(w, r)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.urlsCalls++

	if s.urlsFail != nil {
		writeRaw(w, s.urlsFail.status, s.urlsFail.body)

		return
	}

	records := s.records[userID]
	if records == nil {
		records = []client.URLRecord{}
	}

	writeJSON(w, http.StatusOK, records)
}

func (s *Server) park(r *http.Request) {
	s.mu.Lock()
	h := s.hold
	s.mu.Unlock()

	if h == nil {
		return
	}

	select {
	case h.entered <- r.URL.Path:
	default:
	}

	select {
	case <-h.release:
	case <-r.Context().Done():
	}
}

func (s *Server) userID(w http.ResponseWriter, r *http.Request) string {
	if cookie, err := r.Cookie(cookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		MaxAge:   86400 * 365,
	})

	s.mu.Lock()
	if _, ok := s.records[id]; !ok {
		s.records[id] = nil
	}
	s.mu.Unlock()

	return id
}

// save must be called with mu held.
func (s *Server) save(userID, code, originalURL string) client.URLRecord {
	record := client.URLRecord{
		Code:        code,
		ShortURL:    fmt.Sprintf("%s/r/%s", s.URL, code),
		OriginalURL: originalURL,
		CreatedAt:   time.Now().UTC(),
	}

	s.aliases[code] = true
	s.records[userID] = append([]client.URLRecord{record}, s.records[userID]...)

	return record
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRaw(w http.ResponseWriter, status int, body string) {
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
