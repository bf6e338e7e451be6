package promotions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/shopsync/internal/ledger"
	"github.com/odyssey-erp/shopsync/internal/platform/db"
)

// Repository owns promociones.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Get(ctx context.Context, id int64) (*Promotion, error)
	GetByRemoteID(ctx context.Context, remoteID string) (*Promotion, error)
	GetByCode(ctx context.Context, code string) (*Promotion, error)
	Create(ctx context.Context, p Promotion) (int64, error)
	Update(ctx context.Context, id int64, p Promotion) error
	Delete(ctx context.Context, id int64) error
	Search(ctx context.Context, filter SearchFilter) ([]Promotion, int, error)
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

const promotionColumns = `id, remote_id, titulo, codigo, tipo, estado, valor::float8, es_porcentaje, inicia_en, termina_en,
	limite_uso, usos, created_at, updated_at, last_synced_at`

func scanPromotion(row pgx.Row) (*Promotion, error) {
	var p Promotion
	if err := row.Scan(&p.ID, &p.RemoteID, &p.Title, &p.Code, &p.Type, &p.Status, &p.Value, &p.IsPercentage,
		&p.StartsAt, &p.EndsAt, &p.UsageLimit, &p.UsageCount, &p.CreatedAt, &p.UpdatedAt, &p.LastSyncedAt); err != nil {
		return nil, ledger.ClassifyPG(err)
	}
	return &p, nil
}

func (r *repository) Get(ctx context.Context, id int64) (*Promotion, error) {
	return scanPromotion(r.db.QueryRow(ctx, `SELECT `+promotionColumns+` FROM promociones WHERE id = $1`, id))
}

func (r *repository) GetByRemoteID(ctx context.Context, remoteID string) (*Promotion, error) {
	return scanPromotion(r.db.QueryRow(ctx, `SELECT `+promotionColumns+` FROM promociones WHERE remote_id = $1`, remoteID))
}

func (r *repository) GetByCode(ctx context.Context, code string) (*Promotion, error) {
	return scanPromotion(r.db.QueryRow(ctx, `SELECT `+promotionColumns+` FROM promociones WHERE codigo = $1`, code))
}

func (r *repository) Create(ctx context.Context, p Promotion) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO promociones (remote_id, titulo, codigo, tipo, estado, valor, es_porcentaje, inicia_en, termina_en, limite_uso, usos)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`,
		p.RemoteID, p.Title, p.Code, p.Type, p.Status, p.Value, p.IsPercentage, p.StartsAt, p.EndsAt, p.UsageLimit, p.UsageCount,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create promotion: %w", ledger.ClassifyPG(err))
	}
	return id, nil
}

func (r *repository) Update(ctx context.Context, id int64, p Promotion) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE promociones SET titulo = $2, codigo = $3, tipo = $4, estado = $5, valor = $6, es_porcentaje = $7,
			inicia_en = $8, termina_en = $9, limite_uso = $10, usos = $11, updated_at = NOW()
		WHERE id = $1`,
		id, p.Title, p.Code, p.Type, p.Status, p.Value, p.IsPercentage, p.StartsAt, p.EndsAt, p.UsageLimit, p.UsageCount)
	if err != nil {
		return fmt.Errorf("update promotion %d: %w", id, ledger.ClassifyPG(err))
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM promociones WHERE id = $1`, id)
	if err != nil {
		return ledger.ClassifyPG(err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func (r *repository) Search(ctx context.Context, filter SearchFilter) ([]Promotion, int, error) {
	var (
		conds []string
		args  []interface{}
	)
	if q := strings.TrimSpace(filter.Query); q != "" {
		args = append(args, "%"+q+"%")
		conds = append(conds, fmt.Sprintf("(titulo ILIKE $%d OR codigo ILIKE $%d)", len(args), len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("estado = $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM promociones`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)
	rows, err := r.db.Query(ctx, fmt.Sprintf(`SELECT %s FROM promociones%s ORDER BY inicia_en DESC NULLS LAST, id DESC LIMIT $%d OFFSET $%d`,
		promotionColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []Promotion
	for rows.Next() {
		p, err := scanPromotion(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, *p)
	}
	return items, total, rows.Err()
}

func (r *repository) LinkRemote(ctx context.Context, id int64, remoteID string) error {
	return ledger.LinkRemote(ctx, r.db, ledger.KindPromotion, id, remoteID)
}

func (r *repository) MarkSynced(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE promociones SET last_synced_at = $2 WHERE id = $1`, id, at)
	return err
}
