package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store using a PostgreSQL backend.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore initializes a new PostgresStore with a connection pool.
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, err
	}

	config.MaxConns = 50
	config.MinConns = 5
	config.MaxConnLifetime = time.Hour
	config.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// EnsureSchema creates the processed_agent_data table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS processed_agent_data (
			id BIGSERIAL PRIMARY KEY,
			road_state TEXT NOT NULL,
			user_id BIGINT NOT NULL,
			x DOUBLE PRECISION NOT NULL,
			y DOUBLE PRECISION NOT NULL,
			z DOUBLE PRECISION NOT NULL,
			longitude DOUBLE PRECISION NOT NULL,
			latitude DOUBLE PRECISION NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL
		)
	`
	_, err := s.pool.Exec(ctx, query)
	return err
}

// CreateRecords inserts the whole batch inside one transaction, so a
// failure persists nothing. Assigned ids are written back into records.
func (s *PostgresStore) CreateRecords(ctx context.Context, records []*ProcessedRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO processed_agent_data (road_state, user_id, x, y, z, longitude, latitude, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	for _, rec := range records {
		err := tx.QueryRow(ctx, query,
			rec.RoadState, rec.UserID, rec.X, rec.Y, rec.Z,
			rec.Longitude, rec.Latitude, rec.Timestamp,
		).Scan(&rec.ID)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) GetRecord(ctx context.Context, id int64) (*ProcessedRecord, error) {
	query := `
		SELECT id, road_state, user_id, x, y, z, longitude, latitude, timestamp
		FROM processed_agent_data WHERE id = $1
	`
	var rec ProcessedRecord
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&rec.ID, &rec.RoadState, &rec.UserID, &rec.X, &rec.Y, &rec.Z,
		&rec.Longitude, &rec.Latitude, &rec.Timestamp,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *PostgresStore) ListRecords(ctx context.Context) ([]*ProcessedRecord, error) {
	query := `
		SELECT id, road_state, user_id, x, y, z, longitude, latitude, timestamp
		FROM processed_agent_data ORDER BY id
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*ProcessedRecord
	for rows.Next() {
		var rec ProcessedRecord
		if err := rows.Scan(
			&rec.ID, &rec.RoadState, &rec.UserID, &rec.X, &rec.Y, &rec.Z,
			&rec.Longitude, &rec.Latitude, &rec.Timestamp,
		); err != nil {
			return nil, err
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

func (s *PostgresStore) UpdateRecord(ctx context.Context, id int64, rec *ProcessedRecord) (*ProcessedRecord, error) {
	query := `
		UPDATE processed_agent_data
		SET road_state = $2, user_id = $3, x = $4, y = $5, z = $6, longitude = $7, latitude = $8, timestamp = $9
		WHERE id = $1
		RETURNING id, road_state, user_id, x, y, z, longitude, latitude, timestamp
	`
	var updated ProcessedRecord
	err := s.pool.QueryRow(ctx, query, id,
		rec.RoadState, rec.UserID, rec.X, rec.Y, rec.Z,
		rec.Longitude, rec.Latitude, rec.Timestamp,
	).Scan(
		&updated.ID, &updated.RoadState, &updated.UserID, &updated.X, &updated.Y, &updated.Z,
		&updated.Longitude, &updated.Latitude, &updated.Timestamp,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *PostgresStore) DeleteRecord(ctx context.Context, id int64) (*ProcessedRecord, error) {
	query := `
		DELETE FROM processed_agent_data WHERE id = $1
		RETURNING id, road_state, user_id, x, y, z, longitude, latitude, timestamp
	`
	var rec ProcessedRecord
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&rec.ID, &rec.RoadState, &rec.UserID, &rec.X, &rec.Y, &rec.Z,
		&rec.Longitude, &rec.Latitude, &rec.Timestamp,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
