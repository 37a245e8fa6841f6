// Package clienttest provides an in-memory ad generation API for tests.
package clienttest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonathan/ad-dashboard/internal/progress"
	"github.com/jonathan/ad-dashboard/internal/session"
	"github.com/jonathan/ad-dashboard/internal/types"
)

// Secret signs the tokens the backend issues.
const Secret = "clienttest-secret"

type account struct {
	password string
	user     types.User
}

type failure struct {
	remaining int
	status    int
}

// Backend is a fake of the ad generation API backed by maps. All methods are
// safe for concurrent use.
type Backend struct {
	Server *httptest.Server

	mu        sync.Mutex
	accounts  map[string]*account
	ads       map[string]*types.Ad
	owners    map[string]string
	crew      map[string][]*progress.Record
	updates   map[string][]types.UpdateAdRequest
	hits      map[string]int
	failures  map[string]*failure
	revoked   map[string]bool
	accessTTL time.Duration
	statusLag time.Duration
}

// NewBackend starts a backend that is closed when the test ends.
func NewBackend(t testing.TB) *Backend {
	t.Helper()
	b := &Backend{
		accounts:  make(map[string]*account),
		ads:       make(map[string]*types.Ad),
		owners:    make(map[string]string),
		crew:      make(map[string][]*progress.Record),
		updates:   make(map[string][]types.UpdateAdRequest),
		hits:      make(map[string]int),
		failures:  make(map[string]*failure),
		revoked:   make(map[string]bool),
		accessTTL: 30 * time.Minute,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/register", b.handleRegister)
	mux.HandleFunc("POST /auth/login", b.handleLogin)
	mux.HandleFunc("POST /auth/refresh", b.handleRefresh)
	mux.HandleFunc("GET /auth/me", b.authed(b.handleMe))
	mux.HandleFunc("POST /ads", b.authed(b.handleCreate))
	mux.HandleFunc("GET /ads", b.authed(b.handleList))
	mux.HandleFunc("GET /ads/{run_id}", b.authed(b.handleGet))
	mux.HandleFunc("PUT /ads/{run_id}", b.authed(b.handleUpdate))
	mux.HandleFunc("GET /ads/{run_id}/status", b.authed(b.handleStatus))
	mux.HandleFunc("GET /ads/{run_id}/video-url", b.authed(b.handleVideoURL))

	b.Server = httptest.NewServer(b.count(mux))
	t.Cleanup(b.Server.Close)
	return b
}

// URL returns the backend's base URL.
func (b *Backend) URL() string {
	return b.Server.URL
}

// SetAccessTTL changes the lifetime of access tokens issued from now on.
func (b *Backend) SetAccessTTL(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.accessTTL = d
}

// SetStatusLatency delays every status response.
func (b *Backend) SetStatusLatency(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.statusLag = d
}

// AddUser registers an account directly.
func (b *Backend) AddUser(email, password, fullName string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now().UTC()
	b.accounts[email] = &account{
		password: password,
		user:     types.User{Email: email, FullName: fullName, Role: types.DefaultRole, CreatedAt: now, UpdatedAt: now},
	}
}

// IssueTokens returns a fresh token pair for email.
func (b *Backend) IssueTokens(email string) (access, refresh string) {
	b.mu.Lock()
	ttl := b.accessTTL
	b.mu.Unlock()
	return sign(email, "access", ttl), sign(email, "refresh", 7*24*time.Hour)
}

// Revoke makes the backend reject token.
func (b *Backend) Revoke(token string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.revoked[token] = true
}

// AddAd stores an ad owned by owner. A missing run ID gets a new UUID, missing
// timestamps get the current time.
func (b *Backend) AddAd(owner string, ad types.Ad) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ad.RunID == "" {
		ad.RunID = uuid.NewString()
	}
	if ad.Status == "" {
		ad.Status = types.AdStatusInProgress
	}
	if ad.CreatedAt.IsZero() {
		ad.CreatedAt = time.Now().UTC()
	}
	if ad.UpdatedAt.IsZero() {
		ad.UpdatedAt = ad.CreatedAt
	}
	b.ads[ad.RunID] = &ad
	b.owners[ad.RunID] = owner
	return ad.RunID
}

// Ad returns a copy of a stored ad.
func (b *Backend) Ad(runID string) (types.Ad, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ad, ok := b.ads[runID]
	if !ok {
		return types.Ad{}, false
	}
	return *ad, true
}

// QueueCrewStatus queues crew status records for a run. Each status request
// consumes one record; the last one is repeated. A nil record is reported as
// crew_status null.
func (b *Backend) QueueCrewStatus(runID string, recs ...*progress.Record) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.crew[runID] = append(b.crew[runID], recs...)
}

// Updates returns the updates received for a run.
func (b *Backend) Updates(runID string) []types.UpdateAdRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]types.UpdateAdRequest(nil), b.updates[runID]...)
}

// Hits returns how many requests matched "METHOD /path".
func (b *Backend) Hits(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits[route]
}

// FailNext makes the next n requests to route ("METHOD /path", with a
// concrete run ID) answer with status.
func (b *Backend) FailNext(route string, n, status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[route] = &failure{remaining: n, status: status}
}

func sign(email, kind string, ttl time.Duration) string {
	claims := session.Claims{
		Type: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(Secret))
	if err != nil {
		panic(err)
	}
	return token
}

func (b *Backend) verify(token, kind string) (string, bool) {
	claims := &session.Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(Secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid || claims.Type != kind {
		return "", false
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.revoked[token] {
		return "", false
	}
	if _, ok := b.accounts[claims.Subject]; !ok {
		return "", false
	}
	return claims.Subject, true
}

func (b *Backend) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.Method + " " + r.URL.Path
		b.mu.Lock()
		b.hits[route]++
		f := b.failures[route]
		fail := f != nil && f.remaining > 0
		if fail {
			f.remaining--
		}
		b.mu.Unlock()

		if fail {
			writeDetail(w, f.status, "injected failure")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type authedHandler func(w http.ResponseWriter, r *http.Request, email string)

func (b *Backend) authed(h authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok {
			writeDetail(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		email, ok := b.verify(token, "access")
		if !ok {
			writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
		h(w, r, email)
	}
}

func (b *Backend) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req types.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	b.mu.Lock()
	_, exists := b.accounts[req.Email]
	b.mu.Unlock()
	if exists {
		writeDetail(w, http.StatusBadRequest, "Email already registered")
		return
	}

	b.AddUser(req.Email, req.Password, req.FullName)
	b.mu.Lock()
	user := b.accounts[req.Email].user
	if req.Role != "" {
		user.Role = req.Role
		b.accounts[req.Email].user = user
	}
	b.mu.Unlock()
	writeJSON(w, http.StatusCreated, user)
}

func (b *Backend) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req types.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	b.mu.Lock()
	acct, ok := b.accounts[req.Email]
	b.mu.Unlock()
	if !ok || acct.password != req.Password {
		writeDetail(w, http.StatusUnauthorized, "Incorrect email or password")
		return
	}

	access, refresh := b.IssueTokens(req.Email)
	writeJSON(w, http.StatusOK, types.TokenPair{AccessToken: access, RefreshToken: refresh, TokenType: "bearer"})
}

func (b *Backend) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req types.RefreshTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	email, ok := b.verify(req.RefreshToken, "refresh")
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}

	access, refresh := b.IssueTokens(email)
	writeJSON(w, http.StatusOK, types.TokenPair{AccessToken: access, RefreshToken: refresh, TokenType: "bearer"})
}

func (b *Backend) handleMe(w http.ResponseWriter, _ *http.Request, email string) {
	b.mu.Lock()
	user := b.accounts[email].user
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, user)
}

func (b *Backend) handleCreate(w http.ResponseWriter, r *http.Request, email string) {
	var req types.CreateAdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if len(strings.TrimSpace(req.Desc)) < types.MinDescriptionLength {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"detail": []map[string]any{{"loc": []any{"body", "desc"}, "msg": "String should have at least 10 characters"}},
		})
		return
	}

	runID := b.AddAd(email, types.Ad{Name: req.Name, Desc: req.Desc})
	writeJSON(w, http.StatusCreated, types.CreateAdResponse{RunID: runID, Status: types.AdStatusInProgress})
}

func (b *Backend) handleList(w http.ResponseWriter, r *http.Request, email string) {
	filter := r.URL.Query().Get("status")

	b.mu.Lock()
	ads := make([]types.Ad, 0, len(b.ads))
	for id, ad := range b.ads {
		if b.owners[id] != email {
			continue
		}
		if filter != "" && string(ad.Status) != filter {
			continue
		}
		ads = append(ads, *ad)
	}
	b.mu.Unlock()

	sort.Slice(ads, func(i, j int) bool { return ads[i].RunID < ads[j].RunID })
	writeJSON(w, http.StatusOK, ads)
}

func (b *Backend) lookup(w http.ResponseWriter, r *http.Request, email string) (*types.Ad, bool) {
	runID := r.PathValue("run_id")
	ad, ok := b.ads[runID]
	if !ok || b.owners[runID] != email {
		writeDetail(w, http.StatusNotFound, "Advertisement not found")
		return nil, false
	}
	return ad, true
}

func (b *Backend) handleGet(w http.ResponseWriter, r *http.Request, email string) {
	b.mu.Lock()
	ad, ok := b.lookup(w, r, email)
	var out types.Ad
	if ok {
		out = *ad
	}
	b.mu.Unlock()
	if ok {
		writeJSON(w, http.StatusOK, out)
	}
}

func (b *Backend) handleUpdate(w http.ResponseWriter, r *http.Request, email string) {
	var req types.UpdateAdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	b.mu.Lock()
	ad, ok := b.lookup(w, r, email)
	if !ok {
		b.mu.Unlock()
		return
	}
	b.updates[ad.RunID] = append(b.updates[ad.RunID], req)
	if req.Status != nil {
		ad.Status = *req.Status
	}
	if req.FinalVideoURI != nil {
		uri := *req.FinalVideoURI
		ad.FinalVideoURI = &uri
	}
	ad.UpdatedAt = time.Now().UTC()
	out := *ad
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) handleStatus(w http.ResponseWriter, r *http.Request, email string) {
	b.mu.Lock()
	lag := b.statusLag
	ad, ok := b.lookup(w, r, email)
	if !ok {
		b.mu.Unlock()
		return
	}
	var rec *progress.Record
	if queue := b.crew[ad.RunID]; len(queue) > 0 {
		rec = queue[0]
		if len(queue) > 1 {
			b.crew[ad.RunID] = queue[1:]
		}
	}
	resp := types.AdStatusResponse{RunID: ad.RunID, Status: ad.Status, CrewStatus: rec}
	b.mu.Unlock()

	if lag > 0 {
		select {
		case <-time.After(lag):
		case <-r.Context().Done():
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (b *Backend) handleVideoURL(w http.ResponseWriter, r *http.Request, email string) {
	b.mu.Lock()
	ad, ok := b.lookup(w, r, email)
	var uri string
	if ok {
		uri = ad.VideoURI()
	}
	b.mu.Unlock()
	if !ok {
		return
	}
	if uri == "" {
		writeDetail(w, http.StatusNotFound, "Video not found")
		return
	}
	writeJSON(w, http.StatusOK, types.VideoURLResponse{VideoURL: uri + "?X-Amz-Expires=900"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
