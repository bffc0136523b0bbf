package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/megabot/resolution-core/pkg/models"
)

// PostgresStore implements Store on PostgreSQL via pgxpool. Templates and
// global actions are stored as JSONB documents keyed by (network_id, id),
// which keeps the union-typed message payloads schemaless while the
// lookup columns stay indexed.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to PostgreSQL and runs migrations.
func NewPostgresStore(ctx context.Context, connURL string, maxConns int) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(connURL)
	if err != nil {
		return nil, fmt.Errorf("postgres config: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}

	log.Info().Msg("Postgres store initialized")
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	ddl := `
		CREATE TABLE IF NOT EXISTS mb_templates (
			id         TEXT NOT NULL,
			network_id TEXT NOT NULL,
			doc        JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (network_id, id)
		);

		CREATE TABLE IF NOT EXISTS mb_global_actions (
			id         TEXT NOT NULL,
			network_id TEXT NOT NULL,
			payload    TEXT NOT NULL,
			doc        JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (network_id, id)
		);

		CREATE INDEX IF NOT EXISTS idx_mb_global_actions_payload
			ON mb_global_actions (network_id, payload);

		CREATE TABLE IF NOT EXISTS mb_networks (
			network_id TEXT PRIMARY KEY,
			doc        JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`
	_, err := s.pool.Exec(ctx, ddl)
	return err
}

// ── Template Store ──────────────────────────────────────────

func (s *PostgresStore) ListTemplates(ctx context.Context, networkID string) ([]models.Template, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT doc FROM mb_templates WHERE network_id = $1 ORDER BY id`, networkID)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var out []models.Template
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		var t models.Template
		if err := json.Unmarshal(doc, &t); err != nil {
			return nil, fmt.Errorf("decode template doc: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetTemplate(ctx context.Context, networkID, id string) (*models.Template, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx,
		`SELECT doc FROM mb_templates WHERE network_id = $1 AND id = $2`, networkID, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "template", Key: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	var t models.Template
	if err := json.Unmarshal(doc, &t); err != nil {
		return nil, fmt.Errorf("decode template doc: %w", err)
	}
	return &t, nil
}

func (s *PostgresStore) CreateTemplate(ctx context.Context, tpl *models.Template) error {
	doc, err := json.Marshal(tpl)
	if err != nil {
		return fmt.Errorf("encode template doc: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO mb_templates (id, network_id, doc, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (network_id, id) DO UPDATE SET doc = EXCLUDED.doc, updated_at = EXCLUDED.updated_at`,
		tpl.ID, tpl.NetworkID, doc, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("create template: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateTemplate(ctx context.Context, tpl *models.Template) error {
	doc, err := json.Marshal(tpl)
	if err != nil {
		return fmt.Errorf("encode template doc: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE mb_templates SET doc = $3, updated_at = $4
		WHERE network_id = $1 AND id = $2`,
		tpl.NetworkID, tpl.ID, doc, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "template", Key: tpl.ID}
	}
	return nil
}

func (s *PostgresStore) DeleteTemplate(ctx context.Context, networkID, id string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM mb_templates WHERE network_id = $1 AND id = $2`, networkID, id)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "template", Key: id}
	}
	return nil
}

// ── Global Action Store ─────────────────────────────────────

func (s *PostgresStore) ListGlobalActions(ctx context.Context, networkID string) ([]models.GlobalAction, error) {
	return s.queryGlobalActions(ctx,
		`SELECT doc FROM mb_global_actions WHERE network_id = $1 ORDER BY created_at`, networkID)
}

func (s *PostgresStore) GetGlobalActionsByPayload(ctx context.Context, networkID, payload string) ([]models.GlobalAction, error) {
	return s.queryGlobalActions(ctx,
		`SELECT doc FROM mb_global_actions WHERE network_id = $1 AND payload = $2 ORDER BY created_at`,
		networkID, payload)
}

func (s *PostgresStore) queryGlobalActions(ctx context.Context, sql string, args ...any) ([]models.GlobalAction, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query global actions: %w", err)
	}
	defer rows.Close()

	var out []models.GlobalAction
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan global action: %w", err)
		}
		var ga models.GlobalAction
		if err := json.Unmarshal(doc, &ga); err != nil {
			return nil, fmt.Errorf("decode global action doc: %w", err)
		}
		out = append(out, ga)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateGlobalAction(ctx context.Context, ga *models.GlobalAction) error {
	doc, err := json.Marshal(ga)
	if err != nil {
		return fmt.Errorf("encode global action doc: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO mb_global_actions (id, network_id, payload, doc, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (network_id, id) DO UPDATE SET
			payload = EXCLUDED.payload, doc = EXCLUDED.doc, updated_at = EXCLUDED.updated_at`,
		ga.ID, ga.NetworkID, ga.Payload, doc, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("create global action: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateGlobalAction(ctx context.Context, ga *models.GlobalAction) error {
	doc, err := json.Marshal(ga)
	if err != nil {
		return fmt.Errorf("encode global action doc: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE mb_global_actions SET payload = $3, doc = $4, updated_at = $5
		WHERE network_id = $1 AND id = $2`,
		ga.NetworkID, ga.ID, ga.Payload, doc, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update global action: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "global action", Key: ga.ID}
	}
	return nil
}

func (s *PostgresStore) DeleteGlobalAction(ctx context.Context, networkID, id string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM mb_global_actions WHERE network_id = $1 AND id = $2`, networkID, id)
	if err != nil {
		return fmt.Errorf("delete global action: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "global action", Key: id}
	}
	return nil
}

// ── Network Store ───────────────────────────────────────────

func (s *PostgresStore) ListNetworks(ctx context.Context) ([]models.Network, error) {
	rows, err := s.pool.Query(ctx, `SELECT doc FROM mb_networks ORDER BY network_id`)
	if err != nil {
		return nil, fmt.Errorf("list networks: %w", err)
	}
	defer rows.Close()

	var out []models.Network
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan network: %w", err)
		}
		var n models.Network
		if err := json.Unmarshal(doc, &n); err != nil {
			return nil, fmt.Errorf("decode network doc: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetNetwork(ctx context.Context, networkID string) (*models.Network, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx,
		`SELECT doc FROM mb_networks WHERE network_id = $1`, networkID).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "network", Key: networkID}
	}
	if err != nil {
		return nil, fmt.Errorf("get network: %w", err)
	}
	var n models.Network
	if err := json.Unmarshal(doc, &n); err != nil {
		return nil, fmt.Errorf("decode network doc: %w", err)
	}
	return &n, nil
}

func (s *PostgresStore) CreateNetwork(ctx context.Context, n *models.Network) error {
	doc, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode network doc: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO mb_networks (network_id, doc, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (network_id) DO UPDATE SET doc = EXCLUDED.doc, updated_at = EXCLUDED.updated_at`,
		n.NetworkID, doc, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("create network: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateNetwork(ctx context.Context, n *models.Network) error {
	doc, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode network doc: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE mb_networks SET doc = $2, updated_at = $3 WHERE network_id = $1`,
		n.NetworkID, doc, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update network: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "network", Key: n.NetworkID}
	}
	return nil
}

func (s *PostgresStore) DeleteNetwork(ctx context.Context, networkID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM mb_networks WHERE network_id = $1`, networkID)
	if err != nil {
		return fmt.Errorf("delete network: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "network", Key: networkID}
	}
	return nil
}

// ── Lifecycle ───────────────────────────────────────────────

func (s *PostgresStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
