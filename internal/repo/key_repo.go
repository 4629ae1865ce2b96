package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/keygen/internal/domain"
)

// uniqueViolation — SQLSTATE нарушения уникальности.
const uniqueViolation = "23505"

const schema = `
	CREATE TABLE IF NOT EXISTS generated_keys (
		key          TEXT PRIMARY KEY,
		request_id   TEXT,
		generated_at TIMESTAMPTZ NOT NULL,
		recorded_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)
`

// KeyRepo — журнал выданных ключей.
//
// Журнал не участвует в обработке сообщений: это аудит того,
// какой ключ был выдан на какой запрос.
type KeyRepo struct {
	pool *pgxpool.Pool
}

// NewKeyRepo создаёт новый KeyRepo.
func NewKeyRepo(pool *pgxpool.Pool) *KeyRepo {
	return &KeyRepo{pool: pool}
}

// EnsureSchema создаёт таблицу, если её нет.
func (r *KeyRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create generated_keys: %w", err)
	}
	return nil
}

// Record сохраняет выданный ключ.
func (r *KeyRepo) Record(ctx context.Context, key *domain.GeneratedKey) error {
	query := `
		INSERT INTO generated_keys (key, request_id, generated_at)
		VALUES ($1, $2, $3)
	`

	var requestID *string
	if id := key.RequestIDString(); id != "" {
		requestID = &id
	}

	_, err := r.pool.Exec(ctx, query, key.Key, requestID, key.GeneratedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: key %s", ErrAlreadyExists, key.Key)
		}
		return fmt.Errorf("insert generated key: %w", err)
	}
	return nil
}

// KeyRecord — строка журнала.
type KeyRecord struct {
	Key         string    `json:"key"`
	RequestID   string    `json:"requestId,omitempty"`
	GeneratedAt time.Time `json:"generatedAt"`
	RecordedAt  time.Time `json:"recordedAt"`
}

// GetByKey возвращает запись журнала по ключу.
func (r *KeyRepo) GetByKey(ctx context.Context, key string) (*KeyRecord, error) {
	query := `
		SELECT key, request_id, generated_at, recorded_at
		FROM generated_keys
		WHERE key = $1
	`

	var rec KeyRecord
	var requestID *string
	err := r.pool.QueryRow(ctx, query, key).Scan(&rec.Key, &requestID, &rec.GeneratedAt, &rec.RecordedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get generated key: %w", err)
	}
	if requestID != nil {
		rec.RequestID = *requestID
	}
	return &rec, nil
}

// ListByRequestID возвращает ключи, выданные на запрос.
// Из-за at-least-once доставки на один запрос может быть несколько ключей.
func (r *KeyRepo) ListByRequestID(ctx context.Context, requestID string, limit int) ([]KeyRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT key, request_id, generated_at, recorded_at
		FROM generated_keys
		WHERE request_id = $1
		ORDER BY generated_at ASC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, requestID, limit)
	if err != nil {
		return nil, fmt.Errorf("list generated keys: %w", err)
	}
	defer rows.Close()

	var records []KeyRecord
	for rows.Next() {
		var rec KeyRecord
		var rid *string
		if err := rows.Scan(&rec.Key, &rid, &rec.GeneratedAt, &rec.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan generated key: %w", err)
		}
		if rid != nil {
			rec.RequestID = *rid
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate generated keys: %w", err)
	}

	return records, nil
}
