// Package store — in-memory Store implementation.
// Used as a fallback when PostgreSQL is not available (local dev, tests).
// Supports file-based snapshot persistence so data survives restarts.
package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/megabot/resolution-core/pkg/models"
)

// snapshot is the JSON-serializable shape written to disk.
type snapshot struct {
	Templates     map[string]*models.Template     `json:"templates"`      // key: network:id
	GlobalActions map[string]*models.GlobalAction `json:"global_actions"` // key: network:id
	Networks      map[string]*models.Network      `json:"networks"`       // key: network id
}

// MemoryStore implements Store with in-memory maps.
type MemoryStore struct {
	mu            sync.RWMutex
	templates     map[string]*models.Template     // key: network:id
	globalActions map[string]*models.GlobalAction // key: network:id
	networks      map[string]*models.Network      // key: network id

	// Persistence
	snapshotPath string        // empty = no persistence
	saveMu       sync.Mutex    // guards file writes
	saveCh       chan struct{} // debounce channel
	doneCh       chan struct{} // signals the save goroutine to stop
}

// NewMemoryStore creates a new in-memory store.
// If MEGABOT_DATA_DIR is set, data is persisted to a JSON file in that
// directory. Otherwise defaults to ~/.megabot/data.json.
func NewMemoryStore() *MemoryStore {
	m := &MemoryStore{
		templates:     make(map[string]*models.Template),
		globalActions: make(map[string]*models.GlobalAction),
		networks:      make(map[string]*models.Network),
		saveCh:        make(chan struct{}, 1),
		doneCh:        make(chan struct{}),
	}

	dataDir := os.Getenv("MEGABOT_DATA_DIR")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			dataDir = filepath.Join(home, ".megabot")
		}
	}
	if dataDir != "" {
		m.snapshotPath = filepath.Join(dataDir, "data.json")
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			log.Warn().Err(err).Str("dir", dataDir).Msg("Cannot create data dir, persistence disabled")
			m.snapshotPath = ""
		}
	}

	if m.snapshotPath != "" {
		m.loadSnapshot()
		go m.saveLoop()
	}

	log.Info().Str("snapshot", m.snapshotPath).Msg("Memory store configured")
	return m
}

// requestSave signals the background goroutine to persist data.
// Non-blocking: coalesces multiple rapid writes into one disk flush.
func (m *MemoryStore) requestSave() {
	if m.snapshotPath == "" {
		return
	}
	select {
	case m.saveCh <- struct{}{}:
	default:
		// Already pending
	}
}

// saveLoop runs in a goroutine, debouncing save requests (max 1 write per 500ms).
func (m *MemoryStore) saveLoop() {
	for {
		select {
		case <-m.doneCh:
			return
		case <-m.saveCh:
			time.Sleep(500 * time.Millisecond) // debounce
			m.saveSnapshot()
		}
	}
}

// saveSnapshot persists all data to disk as JSON.
func (m *MemoryStore) saveSnapshot() {
	m.mu.RLock()
	snap := snapshot{
		Templates:     m.templates,
		GlobalActions: m.globalActions,
		Networks:      m.networks,
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	m.mu.RUnlock()

	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal snapshot")
		return
	}

	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	// Write to temp file then rename for atomicity
	tmp := m.snapshotPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		log.Error().Err(err).Str("path", tmp).Msg("Failed to write snapshot tmp")
		return
	}
	if err := os.Rename(tmp, m.snapshotPath); err != nil {
		log.Error().Err(err).Str("path", m.snapshotPath).Msg("Failed to rename snapshot")
		return
	}

	log.Debug().Str("path", m.snapshotPath).Msg("Snapshot saved")
}

// loadSnapshot reads data from disk on startup.
func (m *MemoryStore) loadSnapshot() {
	data, err := os.ReadFile(m.snapshotPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", m.snapshotPath).Msg("No snapshot file found, starting fresh")
			return
		}
		log.Warn().Err(err).Str("path", m.snapshotPath).Msg("Failed to read snapshot")
		return
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Warn().Err(err).Str("path", m.snapshotPath).Msg("Corrupt snapshot, starting fresh")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if snap.Templates != nil {
		m.templates = snap.Templates
	}
	if snap.GlobalActions != nil {
		m.globalActions = snap.GlobalActions
	}
	if snap.Networks != nil {
		m.networks = snap.Networks
	}

	log.Info().
		Int("templates", len(m.templates)).
		Int("global_actions", len(m.globalActions)).
		Int("networks", len(m.networks)).
		Msg("Snapshot loaded")
}

func scopedKey(networkID, id string) string { return networkID + ":" + id }

// ── Template Store ──────────────────────────────────────────

func (m *MemoryStore) ListTemplates(ctx context.Context, networkID string) ([]models.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Template
	for _, t := range m.templates {
		if t.NetworkID == networkID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) GetTemplate(ctx context.Context, networkID, id string) (*models.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.templates[scopedKey(networkID, id)]
	if !ok {
		return nil, &ErrNotFound{Entity: "template", Key: id}
	}
	cp := *t
	return &cp, nil
}

func (m *MemoryStore) CreateTemplate(ctx context.Context, tpl *models.Template) error {
	m.mu.Lock()
	m.templates[scopedKey(tpl.NetworkID, tpl.ID)] = tpl
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) UpdateTemplate(ctx context.Context, tpl *models.Template) error {
	key := scopedKey(tpl.NetworkID, tpl.ID)

	m.mu.Lock()
	if _, ok := m.templates[key]; !ok {
		m.mu.Unlock()
		return &ErrNotFound{Entity: "template", Key: tpl.ID}
	}
	m.templates[key] = tpl
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) DeleteTemplate(ctx context.Context, networkID, id string) error {
	key := scopedKey(networkID, id)

	m.mu.Lock()
	if _, ok := m.templates[key]; !ok {
		m.mu.Unlock()
		return &ErrNotFound{Entity: "template", Key: id}
	}
	delete(m.templates, key)
	m.mu.Unlock()
	m.requestSave()
	return nil
}

// ── Global Action Store ─────────────────────────────────────

func (m *MemoryStore) ListGlobalActions(ctx context.Context, networkID string) ([]models.GlobalAction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.GlobalAction
	for _, ga := range m.globalActions {
		if ga.NetworkID == networkID {
			out = append(out, *ga)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) GetGlobalActionsByPayload(ctx context.Context, networkID, payload string) ([]models.GlobalAction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.GlobalAction
	for _, ga := range m.globalActions {
		if ga.NetworkID == networkID && ga.Payload == payload {
			out = append(out, *ga)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) CreateGlobalAction(ctx context.Context, ga *models.GlobalAction) error {
	m.mu.Lock()
	m.globalActions[scopedKey(ga.NetworkID, ga.ID)] = ga
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) UpdateGlobalAction(ctx context.Context, ga *models.GlobalAction) error {
	key := scopedKey(ga.NetworkID, ga.ID)

	m.mu.Lock()
	if _, ok := m.globalActions[key]; !ok {
		m.mu.Unlock()
		return &ErrNotFound{Entity: "global action", Key: ga.ID}
	}
	m.globalActions[key] = ga
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) DeleteGlobalAction(ctx context.Context, networkID, id string) error {
	key := scopedKey(networkID, id)

	m.mu.Lock()
	if _, ok := m.globalActions[key]; !ok {
		m.mu.Unlock()
		return &ErrNotFound{Entity: "global action", Key: id}
	}
	delete(m.globalActions, key)
	m.mu.Unlock()
	m.requestSave()
	return nil
}

// ── Network Store ───────────────────────────────────────────

func (m *MemoryStore) ListNetworks(ctx context.Context) ([]models.Network, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Network
	for _, n := range m.networks {
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NetworkID < out[j].NetworkID })
	return out, nil
}

func (m *MemoryStore) GetNetwork(ctx context.Context, networkID string) (*models.Network, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n, ok := m.networks[networkID]
	if !ok {
		return nil, &ErrNotFound{Entity: "network", Key: networkID}
	}
	cp := *n
	return &cp, nil
}

func (m *MemoryStore) CreateNetwork(ctx context.Context, n *models.Network) error {
	m.mu.Lock()
	m.networks[n.NetworkID] = n
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) UpdateNetwork(ctx context.Context, n *models.Network) error {
	m.mu.Lock()
	if _, ok := m.networks[n.NetworkID]; !ok {
		m.mu.Unlock()
		return &ErrNotFound{Entity: "network", Key: n.NetworkID}
	}
	m.networks[n.NetworkID] = n
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) DeleteNetwork(ctx context.Context, networkID string) error {
	m.mu.Lock()
	if _, ok := m.networks[networkID]; !ok {
		m.mu.Unlock()
		return &ErrNotFound{Entity: "network", Key: networkID}
	}
	delete(m.networks, networkID)
	m.mu.Unlock()
	m.requestSave()
	return nil
}

// ── Lifecycle ───────────────────────────────────────────────

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

func (m *MemoryStore) Close() error {
	select {
	case <-m.doneCh:
		// already closed
	default:
		close(m.doneCh)
	}
	if m.snapshotPath != "" {
		m.saveSnapshot()
	}
	return nil
}
