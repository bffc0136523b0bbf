package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/megabot/resolution-core/internal/api"
	"github.com/megabot/resolution-core/internal/api/handlers"
	"github.com/megabot/resolution-core/internal/config"
	"github.com/megabot/resolution-core/internal/contextualizer"
	"github.com/megabot/resolution-core/internal/directory"
	"github.com/megabot/resolution-core/internal/flowengine"
	"github.com/megabot/resolution-core/internal/processor"
	"github.com/megabot/resolution-core/internal/store"
	"github.com/megabot/resolution-core/pkg/models"
)

// newTestServer wires the full stack on the in-memory store, no external
// directory, no API keys.
func newTestServer(t *testing.T) (http.Handler, *store.MemoryStore) {
	t.Helper()
	t.Setenv("MEGABOT_DATA_DIR", t.TempDir())
	t.Setenv("MEGABOT_API_KEYS", "")

	s := store.NewMemoryStore()
	t.Cleanup(func() { s.Close() })

	flows := flowengine.NewRouter(time.Second, 0)
	proc := processor.New(s, flows)
	personalizer := contextualizer.New(time.Second)
	networks := directory.NewStoreNetworkService(s)

	h := handlers.New(s, proc, personalizer, networks, nil, nil)
	return api.NewRouter(config.Load(), h), s
}

func seedNetwork(t *testing.T, s *store.MemoryStore, id string) {
	t.Helper()
	n := &models.Network{
		NetworkID: id,
		Config:    models.NetworkConfig{ConfidenceThreshold: 0.7},
	}
	if err := s.CreateNetwork(context.Background(), n); err != nil {
		t.Fatalf("CreateNetwork: %v", err)
	}
}

func doJSON(t *testing.T, h http.Handler, method, path string, headers map[string]string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	h, _ := newTestServer(t)
	w := doJSON(t, h, http.MethodGet, "/health", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestResolveEndToEnd(t *testing.T) {
	h, s := newTestServer(t)
	ctx := context.Background()
	seedNetwork(t, s, "default")

	tpl := &models.Template{
		ID:        "greeting",
		NetworkID: "default",
		Platforms: []models.Platform{models.PlatformLINE},
		Messages:  models.MessageList{models.TextMessage{ID: "m1", Text: "Hi {{firstName}}"}},
	}
	if err := s.CreateTemplate(ctx, tpl); err != nil {
		t.Fatalf("CreateTemplate: %v", err)
	}

	body := map[string]any{
		"action":  map[string]any{"action": "greeting"},
		"user":    map[string]any{"userId": "user-1", "info": map[string]any{"firstName": "Ada"}},
		"channel": map[string]any{"channelId": "chan-1", "platform": "line"},
	}
	w := doJSON(t, h, http.MethodPost, "/api/v1/resolve", nil, body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp struct {
		TransactionID       string `json:"transactionId"`
		ShouldContextualize bool   `json:"shouldContextualize"`
		OutgoingMessage     struct {
			UserID   string `json:"userId"`
			Messages []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"messages"`
		} `json:"outgoingMessage"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.TransactionID == "" {
		t.Error("transactionId missing")
	}
	if resp.ShouldContextualize {
		t.Error("shouldContextualize = true after personalization")
	}
	if len(resp.OutgoingMessage.Messages) != 1 || resp.OutgoingMessage.Messages[0].Text != "Hi Ada" {
		t.Errorf("messages = %+v", resp.OutgoingMessage.Messages)
	}
}

func TestResolveUnresolved(t *testing.T) {
	h, s := newTestServer(t)
	seedNetwork(t, s, "default")

	body := map[string]any{
		"action":  map[string]any{"action": "nope"},
		"channel": map[string]any{"channelId": "chan-1", "platform": "line"},
	}
	w := doJSON(t, h, http.MethodPost, "/api/v1/resolve", nil, body)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", w.Code)
	}
}

func TestResolveUnknownNetwork(t *testing.T) {
	h, _ := newTestServer(t)
	body := map[string]any{
		"action":  map[string]any{"action": "greeting"},
		"channel": map[string]any{"channelId": "chan-1", "platform": "line"},
	}
	w := doJSON(t, h, http.MethodPost, "/api/v1/resolve", map[string]string{"X-Network-Id": "missing"}, body)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestTemplateCRUDNetworkScoped(t *testing.T) {
	h, _ := newTestServer(t)
	net1 := map[string]string{"X-Network-Id": "net-1"}
	net2 := map[string]string{"X-Network-Id": "net-2"}

	tpl := map[string]any{
		"id":        "greeting",
		"platforms": []string{"line"},
		"messages": []map[string]any{
			{"type": "text", "id": "m1", "text": "hello"},
		},
	}
	w := doJSON(t, h, http.MethodPost, "/api/v1/templates", net1, tpl)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", w.Code, w.Body.String())
	}

	w = doJSON(t, h, http.MethodGet, "/api/v1/templates/greeting", net1, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}

	// Other networks cannot see it.
	w = doJSON(t, h, http.MethodGet, "/api/v1/templates/greeting", net2, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("cross-network get status = %d, want 404", w.Code)
	}

	var listed []models.Template
	w = doJSON(t, h, http.MethodGet, "/api/v1/templates", net1, nil)
	if err := json.Unmarshal(w.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed) != 1 {
		t.Errorf("listed %d templates, want 1", len(listed))
	}

	w = doJSON(t, h, http.MethodDelete, "/api/v1/templates/greeting", net1, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}
}

func TestCreateTemplateRejectsInvalid(t *testing.T) {
	h, _ := newTestServer(t)
	tpl := map[string]any{
		"id":        "broken",
		"platforms": []string{"telegram"},
	}
	w := doJSON(t, h, http.MethodPost, "/api/v1/templates", nil, tpl)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestCreateGlobalActionValidatesCondition(t *testing.T) {
	h, _ := newTestServer(t)

	ok := map[string]any{
		"payload":   "MENU",
		"action":    map[string]any{"action": "show-menu"},
		"condition": `intentName == "menu"`,
	}
	w := doJSON(t, h, http.MethodPost, "/api/v1/global-actions", nil, ok)
	if w.Code != http.StatusCreated {
		t.Fatalf("valid condition status = %d, body %s", w.Code, w.Body.String())
	}

	bad := map[string]any{
		"payload":   "MENU",
		"action":    map[string]any{"action": "show-menu"},
		"condition": `intentName ==`,
	}
	w = doJSON(t, h, http.MethodPost, "/api/v1/global-actions", nil, bad)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("broken condition status = %d, want 400", w.Code)
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	h, _ := newTestServer(t)

	body := map[string]any{
		"platform": "facebook",
		"action":   map[string]any{"type": "postback", "title": "Buy", "payload": "BUY"},
	}
	w := doJSON(t, h, http.MethodPost, "/api/v1/actions/normalize", nil, body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp struct {
		Action struct {
			Type  string `json:"type"`
			Label string `json:"label"`
			Data  string `json:"data"`
		} `json:"action"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Action.Type != "postback" || resp.Action.Label != "Buy" || resp.Action.Data != "BUY" {
		t.Errorf("action = %+v", resp.Action)
	}
}

func TestDenormalizeEndpointUnsupported(t *testing.T) {
	h, _ := newTestServer(t)

	body := map[string]any{
		"platform": "line",
		"action":   map[string]any{"type": "call_action", "label": "Call", "phoneNo": "+15550100"},
	}
	w := doJSON(t, h, http.MethodPost, "/api/v1/actions/denormalize", nil, body)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422, body %s", w.Code, w.Body.String())
	}
}
