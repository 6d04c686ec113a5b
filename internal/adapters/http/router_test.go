package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dkeye/Huddle/internal/adapters/crypto"
	"github.com/dkeye/Huddle/internal/adapters/signal"
	"github.com/dkeye/Huddle/internal/adapters/store/memory"
	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/app/orch"
	"github.com/dkeye/Huddle/internal/config"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/gin-gonic/gin"
)

type tokenMap map[string]domain.UserID

func (m tokenMap) Verify(token string) (domain.UserID, error) {
	if u, ok := m[token]; ok {
		return u, nil
	}
	return "", errors.New("unknown token")
}

type fixture struct {
	engine *gin.Engine
	store  *memory.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := memory.New()
	memory.SeedDemo(store)
	o := orch.New(orch.Stores{
		Identity: store,
		Channels: store,
		Messages: store,
		Reads:    store,
		Cipher:   crypto.Plaintext{},
		Notify:   &memory.Sink{},
		Presence: store,
	}, app.SimplePolicy{})
	tokens := tokenMap{"alice": "u-alice", "bob": "u-bob"}
	cfg := &config.Config{Mode: "test", Secret: "test-secret", Auth: config.AuthConfig{ServiceKey: "svc"}}
	ctl := signal.NewSignalWSController(o, tokens, signal.NewMessageRateLimiter(10, time.Minute), signal.Options{})
	return &fixture{
		engine: SetupRouter(context.Background(), cfg, Deps{Orch: o, Signal: ctl, Tokens: tokens}),
		store:  store,
	}
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func TestBearerRequired(t *testing.T) {
	f := newFixture(t)
	if w := f.do(t, http.MethodGet, "/api/channels/general/messages", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("no token = %d", w.Code)
	}
	if w := f.do(t, http.MethodGet, "/api/channels/general/messages", "forged", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("bad token = %d", w.Code)
	}
}

func TestPostAndHistory(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/api/channels/general/messages", "alice", postRequest{Content: "hello"})
	if w.Code != http.StatusCreated {
		t.Fatalf("post = %d %s", w.Code, w.Body)
	}
	msg := decode[domain.Message](t, w)
	if msg.Sender.ID != "u-alice" || msg.Content != "hello" {
		t.Fatalf("msg = %+v", msg)
	}

	w = f.do(t, http.MethodGet, "/api/channels/general/messages?limit=10", "bob", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("history = %d", w.Code)
	}
	page := decode[struct{ Messages []domain.Message }](t, w)
	if len(page.Messages) != 1 || page.Messages[0].ID != msg.ID {
		t.Fatalf("history = %+v", page.Messages)
	}

	if w := f.do(t, http.MethodGet, "/api/channels/general/messages?limit=x", "bob", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad limit = %d", w.Code)
	}
}

func TestPermissionStatuses(t *testing.T) {
	f := newFixture(t)
	if w := f.do(t, http.MethodPost, "/api/channels/announcements/messages", "bob", postRequest{Content: "hi"}); w.Code != http.StatusForbidden {
		t.Fatalf("admin-only post = %d", w.Code)
	}
	if w := f.do(t, http.MethodGet, "/api/channels/staff/messages", "bob", nil); w.Code != http.StatusForbidden {
		t.Fatalf("private history = %d", w.Code)
	}
	if w := f.do(t, http.MethodGet, "/api/channels/nope/messages", "bob", nil); w.Code != http.StatusNotFound {
		t.Fatalf("unknown channel = %d", w.Code)
	}
	if w := f.do(t, http.MethodPost, "/api/channels/staff/read", "bob", nil); w.Code != http.StatusForbidden {
		t.Fatalf("private mark read = %d", w.Code)
	}
	if w := f.do(t, http.MethodPost, "/api/channels/nope/read", "bob", nil); w.Code != http.StatusNotFound {
		t.Fatalf("unknown channel mark read = %d", w.Code)
	}
	w := f.do(t, http.MethodPost, "/api/channels/general/messages", "alice", postRequest{Content: "mine"})
	msg := decode[domain.Message](t, w)
	if w := f.do(t, http.MethodPatch, "/api/messages/"+string(msg.ID), "bob", editRequest{Content: "x"}); w.Code != http.StatusForbidden {
		t.Fatalf("foreign edit = %d", w.Code)
	}
}

func TestEditReactDelete(t *testing.T) {
	f := newFixture(t)
	msg := decode[domain.Message](t, f.do(t, http.MethodPost, "/api/channels/general/messages", "bob", postRequest{Content: "draft"}))
	path := "/api/messages/" + string(msg.ID)

	w := f.do(t, http.MethodPatch, path, "bob", editRequest{Content: "final"})
	if w.Code != http.StatusOK || decode[domain.Message](t, w).Content != "final" {
		t.Fatalf("edit = %d %s", w.Code, w.Body)
	}
	w = f.do(t, http.MethodPost, path+"/reactions", "alice", reactRequest{Emoji: "👍"})
	if got := decode[domain.Message](t, w); len(got.Reactions) != 1 {
		t.Fatalf("react = %+v", got.Reactions)
	}
	if w := f.do(t, http.MethodDelete, path, "alice", nil); w.Code != http.StatusNoContent {
		t.Fatalf("owner delete = %d", w.Code)
	}
	got := decode[domain.Message](t, f.do(t, http.MethodGet, path, "bob", nil))
	if !got.IsDeleted || got.Content != domain.DeletedPlaceholder {
		t.Fatalf("deleted = %+v", got)
	}
}

func TestUnreadAndMarkRead(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/api/channels/general/messages", "alice", postRequest{Content: "hey @bob"})

	type unread struct {
		Count     int
		Mentioned bool
	}
	u := decode[unread](t, f.do(t, http.MethodGet, "/api/channels/general/unread", "bob", nil))
	if u.Count != 1 || !u.Mentioned {
		t.Fatalf("unread = %+v", u)
	}
	if w := f.do(t, http.MethodPost, "/api/channels/general/read", "bob", nil); w.Code != http.StatusOK {
		t.Fatalf("mark read = %d %s", w.Code, w.Body)
	}
	u = decode[unread](t, f.do(t, http.MethodGet, "/api/channels/general/unread", "bob", nil))
	if u.Count != 0 || u.Mentioned {
		t.Fatalf("after read = %+v", u)
	}
}

func TestCallParticipantsEmpty(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/api/channels/general/call", "bob", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("call = %d", w.Code)
	}
	got := decode[struct {
		Active       bool
		Participants []any
	}](t, w)
	if got.Active || got.Participants == nil || len(got.Participants) != 0 {
		t.Fatalf("call = %+v", got)
	}
}

func TestInternalSystemPost(t *testing.T) {
	f := newFixture(t)
	if w := f.do(t, http.MethodPost, "/api/internal/channels/general/messages", "", postRequest{Content: "maintenance"}); w.Code != http.StatusForbidden {
		t.Fatalf("no service key = %d", w.Code)
	}
	var buf bytes.Buffer
	_ = json.NewEncoder(&buf).Encode(postRequest{Content: "maintenance"})
	req := httptest.NewRequest(http.MethodPost, "/api/internal/channels/announcements/messages", &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Service-Key", "svc")
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("system post = %d %s", w.Code, w.Body)
	}
	if msg := decode[domain.Message](t, w); msg.Sender.Name != "System" || msg.Sender.ID != "" {
		t.Fatalf("sender = %+v", msg.Sender)
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/api/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("health = %d", w.Code)
	}
	if st := decode[orch.Stats](t, w); st.Connections != 0 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{core.ErrNotFound, http.StatusNotFound},
		{core.BadRequest("x"), http.StatusBadRequest},
		{core.Transient("db", errors.New("down")), http.StatusServiceUnavailable},
		{core.ErrRateLimited, http.StatusTooManyRequests},
		{errors.New("x"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := statusFor(c.err); got != c.want {
			t.Errorf("statusFor(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}
