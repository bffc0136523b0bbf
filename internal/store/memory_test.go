package store

import (
	"context"
	"testing"
	"time"

	"github.com/megabot/resolution-core/pkg/models"
)

func newTestStore(t *testing.T) *MemoryStore {
	t.Helper()
	t.Setenv("MEGABOT_DATA_DIR", t.TempDir())
	s := NewMemoryStore()
	t.Cleanup(func() { s.Close() })
	return s
}

func TestTemplateCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tpl := &models.Template{
		ID:        "greeting",
		NetworkID: "net-1",
		Name:      "Greeting",
		Platforms: []models.Platform{models.PlatformLINE},
		Messages:  models.MessageList{models.TextMessage{ID: "m1", Text: "hello"}},
	}
	if err := s.CreateTemplate(ctx, tpl); err != nil {
		t.Fatalf("CreateTemplate: %v", err)
	}

	got, err := s.GetTemplate(ctx, "net-1", "greeting")
	if err != nil {
		t.Fatalf("GetTemplate: %v", err)
	}
	if got.Name != "Greeting" || len(got.Messages) != 1 {
		t.Errorf("got %+v", got)
	}

	// Same id, different network: scoped apart.
	if _, err := s.GetTemplate(ctx, "net-2", "greeting"); !IsNotFound(err) {
		t.Errorf("cross-network get: err = %v, want not-found", err)
	}

	tpl2 := *tpl
	tpl2.Name = "Greeting v2"
	if err := s.UpdateTemplate(ctx, &tpl2); err != nil {
		t.Fatalf("UpdateTemplate: %v", err)
	}
	got, _ = s.GetTemplate(ctx, "net-1", "greeting")
	if got.Name != "Greeting v2" {
		t.Errorf("name = %q after update", got.Name)
	}

	list, err := s.ListTemplates(ctx, "net-1")
	if err != nil || len(list) != 1 {
		t.Errorf("ListTemplates = %v, %v", list, err)
	}

	if err := s.DeleteTemplate(ctx, "net-1", "greeting"); err != nil {
		t.Fatalf("DeleteTemplate: %v", err)
	}
	if _, err := s.GetTemplate(ctx, "net-1", "greeting"); !IsNotFound(err) {
		t.Errorf("after delete: err = %v, want not-found", err)
	}
	if err := s.DeleteTemplate(ctx, "net-1", "greeting"); !IsNotFound(err) {
		t.Errorf("double delete: err = %v, want not-found", err)
	}
}

func TestUpdateMissingTemplate(t *testing.T) {
	s := newTestStore(t)
	err := s.UpdateTemplate(context.Background(), &models.Template{ID: "nope", NetworkID: "net-1"})
	if !IsNotFound(err) {
		t.Errorf("err = %v, want not-found", err)
	}
}

func TestGetGlobalActionsByPayloadOrdered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now()
	entries := []*models.GlobalAction{
		{ID: "ga-2", NetworkID: "net-1", Payload: "MENU", Action: models.ContextAction{Action: "b"}, CreatedAt: base.Add(time.Second)},
		{ID: "ga-1", NetworkID: "net-1", Payload: "MENU", Action: models.ContextAction{Action: "a"}, CreatedAt: base},
		{ID: "ga-3", NetworkID: "net-1", Payload: "OTHER", Action: models.ContextAction{Action: "c"}, CreatedAt: base},
		{ID: "ga-4", NetworkID: "net-2", Payload: "MENU", Action: models.ContextAction{Action: "d"}, CreatedAt: base},
	}
	for _, ga := range entries {
		if err := s.CreateGlobalAction(ctx, ga); err != nil {
			t.Fatalf("CreateGlobalAction: %v", err)
		}
	}

	got, err := s.GetGlobalActionsByPayload(ctx, "net-1", "MENU")
	if err != nil {
		t.Fatalf("GetGlobalActionsByPayload: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
	// Creation order, not insertion order.
	if got[0].ID != "ga-1" || got[1].ID != "ga-2" {
		t.Errorf("order = [%s %s], want [ga-1 ga-2]", got[0].ID, got[1].ID)
	}

	got, err = s.GetGlobalActionsByPayload(ctx, "net-1", "NOPE")
	if err != nil || len(got) != 0 {
		t.Errorf("unmatched payload = %v, %v; want empty, nil", got, err)
	}
}

func TestNetworkCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	n := &models.Network{
		NetworkID: "net-1",
		Config: models.NetworkConfig{
			ConfidenceThreshold: 0.7,
			FlowEngines: []models.FlowEngine{
				{FlowEngineID: "order-flow", FlowEngineEndpoint: "http://flows/order"},
			},
		},
	}
	if err := s.CreateNetwork(ctx, n); err != nil {
		t.Fatalf("CreateNetwork: %v", err)
	}

	got, err := s.GetNetwork(ctx, "net-1")
	if err != nil {
		t.Fatalf("GetNetwork: %v", err)
	}
	if got.Config.ConfidenceThreshold != 0.7 {
		t.Errorf("threshold = %v", got.Config.ConfidenceThreshold)
	}

	list, err := s.ListNetworks(ctx)
	if err != nil || len(list) != 1 {
		t.Errorf("ListNetworks = %v, %v", list, err)
	}

	if err := s.DeleteNetwork(ctx, "net-1"); err != nil {
		t.Fatalf("DeleteNetwork: %v", err)
	}
	if _, err := s.GetNetwork(ctx, "net-1"); !IsNotFound(err) {
		t.Errorf("after delete: err = %v, want not-found", err)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.CreateTemplate(ctx, &models.Template{ID: "t1", NetworkID: "net-1", Name: "original"})

	got, _ := s.GetTemplate(ctx, "net-1", "t1")
	got.Name = "mutated"

	fresh, _ := s.GetTemplate(ctx, "net-1", "t1")
	if fresh.Name != "original" {
		t.Errorf("store copy mutated through returned pointer")
	}
}

func TestSnapshotPersistence(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("MEGABOT_DATA_DIR", dir)
	ctx := context.Background()

	s := NewMemoryStore()
	s.CreateTemplate(ctx, &models.Template{ID: "t1", NetworkID: "net-1", Name: "persisted"})
	s.CreateNetwork(ctx, &models.Network{NetworkID: "net-1"})
	// Close flushes the snapshot synchronously.
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened := NewMemoryStore()
	defer reopened.Close()

	got, err := reopened.GetTemplate(ctx, "net-1", "t1")
	if err != nil {
		t.Fatalf("GetTemplate after reopen: %v", err)
	}
	if got.Name != "persisted" {
		t.Errorf("name = %q", got.Name)
	}
	if _, err := reopened.GetNetwork(ctx, "net-1"); err != nil {
		t.Errorf("GetNetwork after reopen: %v", err)
	}
}

func TestCloseIdempotent(t *testing.T) {
	s := newTestStore(t)
	if err := s.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
