package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"triviaa-companion/internal/backend"
	"triviaa-companion/internal/config"
	"triviaa-companion/internal/models"
	"triviaa-companion/internal/session"
	"triviaa-companion/internal/store"
)

type fixture struct {
	srv    *Server
	store  *store.Store
	handle *session.Handle
	poller *session.RetryPoller
}

func newFixture(t *testing.T, backendHandler http.Handler) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	be := httptest.NewServer(backendHandler)
	t.Cleanup(be.Close)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := store.Open(log, filepath.Join(t.TempDir(), "companion.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	client := backend.NewClient(log, be.URL, nil)
	client.SetRetryConfig(backend.RetryConfig{
		MaxRetries:     1,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
		Multiplier:     1,
	})

	handle := session.NewHandle(log, st)
	auth := session.AuthFunc(func(ctx context.Context) error { return nil })
	bs := session.NewBootstrap(log, st, handle, client, auth)
	poller := session.NewRetryPoller(log, session.PollConfig{
		Interval:    5 * time.Millisecond,
		MaxInterval: 10 * time.Millisecond,
		Multiplier:  1,
		MaxAttempts: 2,
	})
	t.Cleanup(poller.Cancel)

	cfg := config.Config{
		CORSOrigins:           []string{"http://localhost:3000"},
		DefaultProfilePicture: "https://cdn.example.com/default.png",
	}

	return &fixture{
		srv:    NewServer(log, cfg, st, handle, client, bs, poller),
		store:  st,
		handle: handle,
		poller: poller,
	}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return body
}

func envelope(code int, message, response string) string {
	return fmt.Sprintf(`{"header":{"responseCode":%d,"responseMessage":%q},"response":%s}`, code, message, response)
}

// signInUser seeds the local store and the handle with an established session.
func (f *fixture) signInUser(t *testing.T) models.UserProfile {
	t.Helper()
	user := models.UserProfile{UserID: "u-1", Username: "ada42", PhoneNumber: "+15551234567", UserKey: "k"}
	if _, err := f.store.SaveUser(context.Background(), user); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	f.handle.Set(&user)
	return user
}

func TestSignIn_ExistingUser(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/users/check-phone", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, envelope(200, "OK", `{"exists":true}`))
	})
	mux.HandleFunc("/api/users/auth/phone", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, envelope(200, "OK", `{"user_id":"u-1","username":"ada42","phone_number":"+15551234567"}`))
	})
	f := newFixture(t, mux)

	w := f.do(t, http.MethodPost, "/api/v1/session/signin", gin.H{
		"phone_number": "+15551234567",
		"user_key":     "k",
		"device_token": "fcm-1",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)
	user, _ := body["user"].(map[string]any)
	if user == nil || user["user_id"] != "u-1" {
		t.Errorf("unexpected body: %v", body)
	}

	ctx := context.Background()
	if !f.store.HasUser(ctx) {
		t.Error("expected profile persisted locally")
	}
	if tok := f.store.DeviceToken(ctx); tok != "fcm-1" {
		t.Errorf("expected device token saved, got %q", tok)
	}
	if cur := f.handle.Current(); cur == nil || cur.UserID != "u-1" {
		t.Error("expected handle populated")
	}
}

func TestSignIn_RegistrationRequired(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/users/check-phone", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, envelope(200, "OK", `{"exists":false}`))
	})
	f := newFixture(t, mux)

	w := f.do(t, http.MethodPost, "/api/v1/session/signin", gin.H{
		"phone_number": "+15551234567",
		"user_key":     "k",
		"device_token": "fcm-1",
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)
	reg, _ := body["registration"].(map[string]any)
	if reg == nil || reg["phone_number"] != "+15551234567" || reg["device_token"] != "fcm-1" {
		t.Errorf("expected registration passthrough, got %v", body)
	}
	if f.store.HasUser(context.Background()) {
		t.Error("no profile should be persisted")
	}
}

func TestSignIn_BackendDown(t *testing.T) {
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	w := f.do(t, http.MethodPost, "/api/v1/session/signin", gin.H{
		"phone_number": "+15551234567",
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", w.Code, w.Body.String())
	}
	if f.handle.Current() != nil {
		t.Error("handle must stay empty after a failed sign-in")
	}
}

func TestGetSession(t *testing.T) {
	f := newFixture(t, http.NewServeMux())

	w := f.do(t, http.MethodGet, "/api/v1/session", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 with no session, got %d", w.Code)
	}

	f.signInUser(t)
	w = f.do(t, http.MethodGet, "/api/v1/session", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	user, _ := body["user"].(map[string]any)
	if user == nil || user["username"] != "ada42" {
		t.Errorf("unexpected session body: %v", body)
	}
}

func TestRegister_RejectsBadInput(t *testing.T) {
	f := newFixture(t, http.NewServeMux())

	cases := []struct {
		name string
		body gin.H
		code string
	}{
		{"missing name", gin.H{"username": "ada42", "age": 30}, "invalid_name"},
		{"bad username", gin.H{"name": "Ada", "username": "ada 42", "age": 30}, "invalid_username"},
		{"underage", gin.H{"name": "Ada", "username": "ada42", "age": 9}, "invalid_age"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := f.do(t, http.MethodPost, "/api/v1/session/register", tc.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
			body := decodeBody(t, w)
			errObj, _ := body["error"].(map[string]any)
			if errObj == nil || errObj["code"] != tc.code {
				t.Errorf("expected error code %q, got %v", tc.code, body)
			}
		})
	}
}

func TestRegister_UsernameTaken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/users/check-username/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, envelope(200, "OK", `{"exists":true}`))
	})
	f := newFixture(t, mux)

	w := f.do(t, http.MethodPost, "/api/v1/session/register", gin.H{
		"name": "Ada", "username": "ada42", "age": 30, "phone_number": "+15551234567",
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
}

func TestRegister_Success(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/users/check-username/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, envelope(200, "OK", `{"exists":false}`))
	})
	mux.HandleFunc("/api/users/auth/phone", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, envelope(201, "Created", `{"user_id":"u-new","username":"ada42"}`))
	})
	f := newFixture(t, mux)

	w := f.do(t, http.MethodPost, "/api/v1/session/register", gin.H{
		"name": "Ada", "username": "ada42", "age": 30, "phone_number": "+15551234567",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if !f.store.HasUser(context.Background()) {
		t.Error("expected new profile persisted")
	}
	if cur := f.handle.Current(); cur == nil || cur.UserID != "u-new" {
		t.Error("expected handle populated after registration")
	}
}

func TestSignOut(t *testing.T) {
	f := newFixture(t, http.NewServeMux())
	f.signInUser(t)

	w := f.do(t, http.MethodPost, "/api/v1/session/signout", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", w.Code, w.Body.String())
	}
	if f.store.HasUser(context.Background()) {
		t.Error("expected profile cleared")
	}
	if f.handle.Current() != nil {
		t.Error("expected handle emptied")
	}
}

func TestGetProfile_FailureEngagesRetry(t *testing.T) {
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	f.signInUser(t)

	w := f.do(t, http.MethodGet, "/api/v1/profile", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d: %s", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)
	retry, _ := body["retry"].(map[string]any)
	if retry == nil || retry["state"] != "polling" {
		t.Errorf("expected retry state polling, got %v", body)
	}

	// the ceiling is 2 attempts in this fixture; the poller lands in gave_up
	deadline := time.Now().Add(2 * time.Second)
	for f.poller.State() != session.PollGaveUp && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if f.poller.State() != session.PollGaveUp {
		t.Fatalf("poller never gave up, state %v", f.poller.State())
	}

	w = f.do(t, http.MethodGet, "/api/v1/profile/retry", nil)
	status := decodeBody(t, w)
	if status["state"] != "gave_up" {
		t.Errorf("expected gave_up status, got %v", status)
	}
}

func TestGetProfile_SuccessDismissesRetry(t *testing.T) {
	healthy := false
	mux := http.NewServeMux()
	mux.HandleFunc("/api/users/profile/", func(w http.ResponseWriter, r *http.Request) {
		if !healthy {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, envelope(200, "OK", `{"user_id":"u-1","user_name":"Ada","total_points":120}`))
	})
	f := newFixture(t, mux)
	f.signInUser(t)

	if w := f.do(t, http.MethodGet, "/api/v1/profile", nil); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 while down, got %d", w.Code)
	}

	healthy = true
	w := f.do(t, http.MethodGet, "/api/v1/profile", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 once healthy, got %d: %s", w.Code, w.Body.String())
	}
	if f.poller.State() != session.PollIdle {
		t.Errorf("a successful natural fetch should dismiss the retry cycle, state %v", f.poller.State())
	}
}

func TestCancelRetry(t *testing.T) {
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	f.signInUser(t)

	if w := f.do(t, http.MethodGet, "/api/v1/profile", nil); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}

	w := f.do(t, http.MethodPost, "/api/v1/profile/retry/cancel", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if f.poller.State() != session.PollIdle {
		t.Errorf("expected idle after cancel, got %v", f.poller.State())
	}
}

func TestGetCoins_FallsBackToLocalCache(t *testing.T) {
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	f.signInUser(t)
	if err := f.store.SetCoins(context.Background(), 50); err != nil {
		t.Fatalf("seed coins: %v", err)
	}

	w := f.do(t, http.MethodGet, "/api/v1/coins", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("secondary data must degrade, not error: got %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["stale"] != true {
		t.Errorf("expected stale flag, got %v", body)
	}
	balance, _ := body["balance"].(map[string]any)
	if balance == nil || balance["coin_balance"] != float64(50) {
		t.Errorf("expected last-known balance 50, got %v", body)
	}
}

func TestGetCoins_WritesBackCache(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/coins/balance/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, envelope(200, "OK", `{"user_id":"u-1","coin_balance":75}`))
	})
	f := newFixture(t, mux)
	f.signInUser(t)

	w := f.do(t, http.MethodGet, "/api/v1/coins", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := f.store.Coins(context.Background()); got != 75 {
		t.Errorf("expected balance written back to the quick cache, got %d", got)
	}
}

func TestGetLeaderboard_SplitsPodium(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/points/leaderboard", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, envelope(200, "OK",
			`[{"user_id":"a","rank":1},{"user_id":"b","rank":2},{"user_id":"c","rank":3},{"user_id":"d","rank":4},{"user_id":"e","rank":5}]`))
	})
	f := newFixture(t, mux)

	w := f.do(t, http.MethodGet, "/api/v1/leaderboard", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	top, _ := body["top_players"].([]any)
	rest, _ := body["other_players"].([]any)
	if len(top) != 3 || len(rest) != 2 {
		t.Errorf("expected 3 podium and 2 others, got %d and %d", len(top), len(rest))
	}
}

func TestGetLeaderboard_DegradesEmpty(t *testing.T) {
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	w := f.do(t, http.MethodGet, "/api/v1/leaderboard", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["stale"] != true {
		t.Errorf("expected stale flag, got %v", body)
	}
}

func TestUsernameAvailable(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/users/check-username/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, envelope(200, "OK", `{"exists":false}`))
	})
	f := newFixture(t, mux)

	w := f.do(t, http.MethodGet, "/api/v1/username-available/ada42", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["available"] != true {
		t.Errorf("expected available, got %v", body)
	}

	w = f.do(t, http.MethodGet, "/api/v1/username-available/bad%20name", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for an invalid username, got %d", w.Code)
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t, http.NewServeMux())

	w := f.do(t, http.MethodGet, "/api/v1/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["ok"] != true || body["has_user"] != false {
		t.Errorf("unexpected health body: %v", body)
	}
}
