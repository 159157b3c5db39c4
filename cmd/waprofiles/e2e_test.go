package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"waprofiles/internal/auth"
	"waprofiles/internal/database"
	"waprofiles/internal/models"
	"waprofiles/internal/security"
	"waprofiles/internal/service"
	"waprofiles/internal/session"
	"waprofiles/pkg/whatsapp"
	"waprofiles/pkg/whatsapp/types"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubWAHA answers the WAHA endpoints a single profile needs.
type stubWAHA struct {
	mu     sync.Mutex
	status map[string]string
	sent   []types.SendMessageRequest
}

func (s *stubWAHA) handler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/api/sessions", func(w http.ResponseWriter, r *http.Request) {
		var req types.CreateSessionRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		s.mu.Lock()
		s.status[req.Name] = types.WAHAStatusScanQRCode
		s.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(types.Session{Name: req.Name, Status: types.WAHAStatusStarting})
	}).Methods(http.MethodPost)
	router.HandleFunc("/api/sessions/{name}", func(w http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["name"]
		s.mu.Lock()
		status, ok := s.status[name]
		s.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(types.Session{Name: name, Status: status})
	}).Methods(http.MethodGet)
	router.HandleFunc("/api/sessions/{name}/{action}", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.status[mux.Vars(r)["name"]] = types.WAHAStatusStopped
		s.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	}).Methods(http.MethodPost)
	router.HandleFunc("/api/{session}/auth/qr", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(types.QRValue{Value: "2@E2E"})
	}).Methods(http.MethodGet)
	router.HandleFunc("/api/{session}/chats", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id": "1203630@g.us", "name": "Team", "groupMetadata": {"participants": [{"id": "a@c.us"}, {"id": "b@c.us"}]}}]`))
	}).Methods(http.MethodGet)
	router.HandleFunc("/api/sendText", func(w http.ResponseWriter, r *http.Request) {
		var req types.SendMessageRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		s.mu.Lock()
		s.sent = append(s.sent, req)
		s.mu.Unlock()
		_, _ = w.Write([]byte(`{"id": {"fromMe": true, "remote": "15551234567@c.us", "id": "3EB0E2E", "_serialized": "true_15551234567@c.us_3EB0E2E"}, "timestamp": 1700000000}`))
	}).Methods(http.MethodPost)
	return router
}

type e2eFixture struct {
	server   *Server
	waha     *stubWAHA
	received chan models.RelayEnvelope
	hookURL  string
}

func newE2EFixture(t *testing.T) *e2eFixture {
	t.Helper()
	t.Chdir(t.TempDir())
	ctx := context.Background()

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	waha := &stubWAHA{status: make(map[string]string)}
	wahaServer := httptest.NewServer(waha.handler())
	t.Cleanup(wahaServer.Close)

	received := make(chan models.RelayEnvelope, 4)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var env models.RelayEnvelope
		if err := json.NewDecoder(r.Body).Decode(&env); err == nil {
			received <- env
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(hook.Close)

	db, err := database.New(ctx, "e2e.db")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := &models.Config{}
	cfg.Session.QRRequestTimeoutMs = 2000

	provider := whatsapp.NewProvider(types.ClientConfig{
		BaseURL: wahaServer.URL,
		APIKey:  "e2e-key",
		Timeout: 2 * time.Second,
	}, logger)
	relay := session.NewRelay(service.NewWebhookSender(cfg.Webhook, logger), logger, time.Second)
	manager := session.NewManager(provider, session.NewRegistry(), relay, session.Config{
		InitTimeout:  2 * time.Second,
		PollInterval: 20 * time.Millisecond,
		PollAttempts: 10,
	}, logger)
	t.Cleanup(func() { _ = manager.Shutdown(context.Background()) })

	issuer, err := auth.NewTokenIssuer("e2e-secret-that-is-long-enough-to-sign", "waprofiles", time.Hour)
	require.NoError(t, err)

	server := NewServer(cfg, ServerDeps{
		Profiles:  service.NewProfileService(db, manager, issuer, provider, logger),
		Messages:  service.NewMessageService(manager, logger),
		Directory: service.NewDirectoryService(manager, time.Second, logger),
		Ingress:   provider,
		Database:  db,
		Verifier:  &security.WebhookVerifier{},
	}, logger)

	return &e2eFixture{server: server, waha: waha, received: received, hookURL: hook.URL}
}

func (f *e2eFixture) call(t *testing.T, method, target, token string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(method, target, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.server.router.ServeHTTP(rec, req)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec.Code, out
}

func (f *e2eFixture) event(t *testing.T, name, sessionName string, payload interface{}) int {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	body, err := json.Marshal(types.WebhookEvent{Event: name, Session: sessionName, Payload: raw})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/webhook/waha", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.server.router.ServeHTTP(rec, req)
	return rec.Code
}

func TestEndToEnd_ProfileLifecycle(t *testing.T) {
	f := newE2EFixture(t)

	code, body := f.call(t, http.MethodPost, "/api/profiles", "", map[string]interface{}{
		"name":          "Sales",
		"webhookUrl":    f.hookURL,
		"enableWebhook": true,
	})
	require.Equal(t, http.StatusCreated, code, body)
	created := body["data"].(map[string]interface{})
	token := created["token"].(string)
	require.NotEmpty(t, token)
	id := strconv.FormatInt(int64(created["id"].(float64)), 10)
	sessionName := "profile_" + id

	code, body = f.call(t, http.MethodGet, "/api/profiles/"+id+"/qrcode", token, nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "2@E2E", body["data"].(map[string]interface{})["qrCode"])

	code, body = f.call(t, http.MethodPost, "/api/message/send", token, map[string]interface{}{
		"profileId": id, "phone": "15551234567", "message": "too early",
	})
	assert.Equal(t, http.StatusConflict, code, body)

	require.Equal(t, http.StatusOK, f.event(t, types.WAHAEventSessionStatus, sessionName,
		types.SessionStatusPayload{Name: sessionName, Status: types.WAHAStatusWorking}))

	assert.Eventually(t, func() bool {
		_, body := f.call(t, http.MethodGet, "/api/profiles/"+id, token, nil)
		data, _ := body["data"].(map[string]interface{})
		return data["authenticated"] == true
	}, 2*time.Second, 20*time.Millisecond)

	code, body = f.call(t, http.MethodGet, "/api/profiles/"+id+"/qrcode", token, nil)
	assert.Equal(t, http.StatusBadRequest, code, body)

	code, body = f.call(t, http.MethodPost, "/api/message/send", token, map[string]interface{}{
		"profileId": id, "phone": "15551234567", "message": "hello",
	})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "Message sent successfully", body["message"])
	f.waha.mu.Lock()
	require.Len(t, f.waha.sent, 1)
	assert.Equal(t, "15551234567@c.us", f.waha.sent[0].ChatID)
	assert.Equal(t, sessionName, f.waha.sent[0].Session)
	f.waha.mu.Unlock()

	code, body = f.call(t, http.MethodGet, "/api/groups?profileId="+id, token, nil)
	require.Equal(t, http.StatusOK, code, body)
	groups := body["data"].([]interface{})
	require.Len(t, groups, 1)
	assert.Equal(t, "Team", groups[0].(map[string]interface{})["name"])

	require.Equal(t, http.StatusOK, f.event(t, types.WAHAEventMessage, sessionName, types.MessagePayload{
		ID: "in-1", From: "15557654321@c.us", To: "15551234567@c.us", Body: "hi there", Timestamp: 1700000000,
	}))
	select {
	case env := <-f.received:
		assert.Equal(t, id, env.ProfileID)
		assert.Equal(t, "15557654321@c.us", env.From)
		assert.Equal(t, "hi there", env.Message)
		received, err := time.Parse(models.RelayTimestampLayout, env.Timestamp)
		require.NoError(t, err)
		assert.WithinDuration(t, time.Now(), received, time.Minute)
	case <-time.After(2 * time.Second):
		t.Fatal("relay envelope was not delivered")
	}

	code, body = f.call(t, http.MethodDelete, "/api/profiles/"+id, token, nil)
	require.Equal(t, http.StatusOK, code, body)

	code, _ = f.call(t, http.MethodGet, "/api/profiles", token, nil)
	assert.Equal(t, http.StatusForbidden, code)

	assert.Equal(t, http.StatusOK, f.event(t, types.WAHAEventMessage, sessionName, types.MessagePayload{
		ID: "in-2", From: "15557654321@c.us", Body: "anyone?",
	}))
}
