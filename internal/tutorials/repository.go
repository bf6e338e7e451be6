package tutorials

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/shopsync/internal/ledger"
	"github.com/odyssey-erp/shopsync/internal/platform/db"
)

// Repository owns tutoriales.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Get(ctx context.Context, id int64) (*Tutorial, error)
	GetByRemoteID(ctx context.Context, remoteID string) (*Tutorial, error)
	GetBySlug(ctx context.Context, slug string) (*Tutorial, error)
	Create(ctx context.Context, t Tutorial) (int64, error)
	Update(ctx context.Context, id int64, t Tutorial) error
	List(ctx context.Context) ([]Tutorial, error)
	ListUnlinked(ctx context.Context) ([]Tutorial, error)
	LinkRemote(ctx context.Context, id int64, remoteID string) error
	MarkSynced(ctx context.Context, id int64, at time.Time) error
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewRepository constructs a pgx-backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	if _, inTx := r.db.(pgx.Tx); inTx {
		return fn(ctx, r)
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

const tutorialColumns = `id, remote_id, titulo, slug, resumen, contenido, dificultad, tiempo_estimado, publicado, created_at, updated_at, last_synced_at`

func scanTutorial(row pgx.Row) (*Tutorial, error) {
	var t Tutorial
	if err := row.Scan(&t.ID, &t.RemoteID, &t.Title, &t.Slug, &t.Summary, &t.Content, &t.Difficulty,
		&t.EstimatedTime, &t.Published, &t.CreatedAt, &t.UpdatedAt, &t.LastSyncedAt); err != nil {
		return nil, ledger.ClassifyPG(err)
	}
	return &t, nil
}

func (r *repository) Get(ctx context.Context, id int64) (*Tutorial, error) {
	return scanTutorial(r.db.QueryRow(ctx, `SELECT `+tutorialColumns+` FROM tutoriales WHERE id = $1`, id))
}

func (r *repository) GetByRemoteID(ctx context.Context, remoteID string) (*Tutorial, error) {
	return scanTutorial(r.db.QueryRow(ctx, `SELECT `+tutorialColumns+` FROM tutoriales WHERE remote_id = $1`, remoteID))
}

func (r *repository) GetBySlug(ctx context.Context, slug string) (*Tutorial, error) {
	return scanTutorial(r.db.QueryRow(ctx, `SELECT `+tutorialColumns+` FROM tutoriales WHERE slug = $1`, slug))
}

func (r *repository) Create(ctx context.Context, t Tutorial) (int64, error) {
	if t.Difficulty == "" {
		t.Difficulty = DefaultDifficulty
	}
	if t.EstimatedTime <= 0 {
		t.EstimatedTime = DefaultEstimatedTime
	}
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO tutoriales (remote_id, titulo, slug, resumen, contenido, dificultad, tiempo_estimado, publicado)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		t.RemoteID, t.Title, t.Slug, t.Summary, t.Content, t.Difficulty, t.EstimatedTime, t.Published,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create tutorial: %w", ledger.ClassifyPG(err))
	}
	return id, nil
}

func (r *repository) Update(ctx context.Context, id int64, t Tutorial) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE tutoriales SET titulo = $2, slug = $3, resumen = $4, contenido = $5, dificultad = $6,
			tiempo_estimado = $7, publicado = $8, updated_at = NOW()
		WHERE id = $1`,
		id, t.Title, t.Slug, t.Summary, t.Content, t.Difficulty, t.EstimatedTime, t.Published)
	if err != nil {
		return fmt.Errorf("update tutorial %d: %w", id, ledger.ClassifyPG(err))
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func (r *repository) List(ctx context.Context) ([]Tutorial, error) {
	return r.list(ctx, `SELECT `+tutorialColumns+` FROM tutoriales ORDER BY id`)
}

func (r *repository) ListUnlinked(ctx context.Context) ([]Tutorial, error) {
	return r.list(ctx, `SELECT `+tutorialColumns+` FROM tutoriales WHERE remote_id IS NULL ORDER BY id`)
}

func (r *repository) list(ctx context.Context, query string) ([]Tutorial, error) {
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Tutorial
	for rows.Next() {
		t, err := scanTutorial(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (r *repository) LinkRemote(ctx context.Context, id int64, remoteID string) error {
	return ledger.LinkRemote(ctx, r.db, ledger.KindTutorial, id, remoteID)
}

func (r *repository) MarkSynced(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE tutoriales SET last_synced_at = $2 WHERE id = $1`, id, at)
	return err
}
