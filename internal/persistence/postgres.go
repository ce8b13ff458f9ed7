package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/smilemakc/mbflow/internal/domain"
)

// checkpointRow is the bun model backing the checkpoints table. The
// serialized state is stored as JSONB via Codec, keeping the schema
// stable across CheckpointState shape changes.
type checkpointRow struct {
	bun.BaseModel `bun:"table:workflow_checkpoints,alias:c"`

	CheckpointID string    `bun:",pk"`
	WorkflowID   string    `bun:",notnull"`
	InstanceID   string    `bun:",notnull"`
	SavedAt      time.Time `bun:",notnull"`
	Data         []byte    `bun:"data,type:jsonb,notnull"`
}

// PostgresStore is a Postgres-backed checkpoint store using bun over
// database/sql, matching the connection-pool conventions the teacher
// lineage used for its own storage layer.
type PostgresStore struct {
	db    *bun.DB
	codec Codec
}

// PostgresConfig tunes the underlying connection pool.
type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultPostgresConfig returns sensible pool defaults.
func DefaultPostgresConfig(dsn string) PostgresConfig {
	return PostgresConfig{
		DSN:             dsn,
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	}
}

// NewPostgresStore opens a connection pool and ensures the checkpoints
// table exists.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig, codec Codec) (*PostgresStore, error) {
	if codec == nil {
		codec = JSONCodec{}
	}

	connector := pgdriver.NewConnector(
		pgdriver.WithDSN(cfg.DSN),
		pgdriver.WithTimeout(30*time.Second),
	)
	sqldb := sql.OpenDB(connector)
	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	db := bun.NewDB(sqldb, pgdialect.New())

	store := &PostgresStore{db: db, codec: codec}
	if _, err := db.NewCreateTable().Model((*checkpointRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		return nil, fmt.Errorf("persistence: create checkpoints table: %w", err)
	}
	return store, nil
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Save implements Store, upserting on checkpoint id.
func (s *PostgresStore) Save(ctx context.Context, checkpointID string, state domain.CheckpointState) error {
	data, err := s.codec.Encode(state)
	if err != nil {
		return fmt.Errorf("persistence: encode checkpoint: %w", err)
	}

	row := &checkpointRow{
		CheckpointID: checkpointID,
		WorkflowID:   state.WorkflowID,
		InstanceID:   state.InstanceID,
		SavedAt:      state.SavedAt,
		Data:         data,
	}
	_, err = s.db.NewInsert().Model(row).
		On("CONFLICT (checkpoint_id) DO UPDATE").
		Set("workflow_id = EXCLUDED.workflow_id").
		Set("instance_id = EXCLUDED.instance_id").
		Set("saved_at = EXCLUDED.saved_at").
		Set("data = EXCLUDED.data").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("persistence: save checkpoint: %w", err)
	}
	return nil
}

// Load implements Store.
func (s *PostgresStore) Load(ctx context.Context, checkpointID string) (*domain.CheckpointState, error) {
	var row checkpointRow
	err := s.db.NewSelect().Model(&row).Where("checkpoint_id = ?", checkpointID).Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("persistence: load checkpoint: %w", err)
	}
	state, err := s.codec.Decode(row.Data)
	if err != nil {
		return nil, fmt.Errorf("persistence: decode checkpoint: %w", err)
	}
	return &state, nil
}

// List implements Store, ordered by saved_at descending.
func (s *PostgresStore) List(ctx context.Context, instanceID string) ([]CheckpointMeta, error) {
	var rows []checkpointRow
	err := s.db.NewSelect().Model(&rows).
		Where("instance_id = ?", instanceID).
		OrderExpr("saved_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("persistence: list checkpoints: %w", err)
	}

	metas := make([]CheckpointMeta, 0, len(rows))
	for _, row := range rows {
		state, err := s.codec.Decode(row.Data)
		if err != nil {
			continue
		}
		metas = append(metas, metaFromState(row.CheckpointID, state, len(row.Data)))
	}
	return metas, nil
}

// Delete implements Store.
func (s *PostgresStore) Delete(ctx context.Context, checkpointID string) error {
	_, err := s.db.NewDelete().Model((*checkpointRow)(nil)).Where("checkpoint_id = ?", checkpointID).Exec(ctx)
	if err != nil {
		return fmt.Errorf("persistence: delete checkpoint: %w", err)
	}
	return nil
}

// DeleteAll implements Store.
func (s *PostgresStore) DeleteAll(ctx context.Context, instanceID string) error {
	_, err := s.db.NewDelete().Model((*checkpointRow)(nil)).Where("instance_id = ?", instanceID).Exec(ctx)
	if err != nil {
		return fmt.Errorf("persistence: delete checkpoints: %w", err)
	}
	return nil
}
