package collections

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

// Repository owns colecciones and productos_colecciones.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Get(ctx context.Context, id int64) (*Collection, error)
	GetByRemoteID(ctx context.Context, remoteID string) (*Collection, error)
	GetByHandle(ctx context.Context, handle string) (*Collection, error)
	Create(ctx context.Context, c Collection) (int64, error)
	Update(ctx context.Context, id int64, c Collection) error
	Delete(ctx context.Context, id int64) error
	Search(ctx context.Context, filter SearchFilter) ([]Collection, int, error)
	LinkRemote(ctx context.Context, id int64, remoteID string) error
	MarkSynced(ctx context.Context, id int64, at time.Time) error
	ListMembers(ctx context.Context, collectionID int64) ([]Member, error)
	Members() ledger.ChildStore[Member]
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

const collectionColumns = `id, remote_id, titulo, handle, descripcion, orden, created_at, updated_at, last_synced_at`

func scanCollection(row pgx.Row) (*Collection, error) {
	var c Collection
	if err := row.Scan(&c.ID, &c.RemoteID, &c.Title, &c.Handle, &c.Description, &c.SortOrder,
		&c.CreatedAt, &c.UpdatedAt, &c.LastSyncedAt); err != nil {
		return nil, ledger.ClassifyPG(err)
	}
	return &c, nil
}

func (r *repository) Get(ctx context.Context, id int64) (*Collection, error) {
	return scanCollection(r.db.QueryRow(ctx, `SELECT `+collectionColumns+` FROM colecciones WHERE id = $1`, id))
}

func (r *repository) GetByRemoteID(ctx context.Context, remoteID string) (*Collection, error) {
	return scanCollection(r.db.QueryRow(ctx, `SELECT `+collectionColumns+` FROM colecciones WHERE remote_id = $1`, remoteID))
}

func (r *repository) GetByHandle(ctx context.Context, handle string) (*Collection, error) {
	return scanCollection(r.db.QueryRow(ctx, `SELECT `+collectionColumns+` FROM colecciones WHERE handle = $1`, handle))
}

func (r *repository) Create(ctx context.Context, c Collection) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO colecciones (remote_id, titulo, handle, descripcion, orden)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		c.RemoteID, c.Title, c.Handle, c.Description, c.SortOrder,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create collection: %w", ledger.ClassifyPG(err))
	}
	return id, nil
}

func (r *repository) Update(ctx context.Context, id int64, c Collection) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE colecciones SET titulo = $2, handle = $3, descripcion = $4, orden = $5, updated_at = NOW()
		WHERE id = $1`, id, c.Title, c.Handle, c.Description, c.SortOrder)
	if err != nil {
		return fmt.Errorf("update collection %d: %w", id, ledger.ClassifyPG(err))
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM colecciones WHERE id = $1`, id)
	if err != nil {
		return ledger.ClassifyPG(err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func (r *repository) Search(ctx context.Context, filter SearchFilter) ([]Collection, int, error) {
	where := ""
	var args []interface{}
	if q := strings.TrimSpace(filter.Query); q != "" {
		args = append(args, "%"+q+"%")
		where = " WHERE titulo ILIKE $1 OR handle ILIKE $1"
	}
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM colecciones`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)
	rows, err := r.db.Query(ctx, fmt.Sprintf(`SELECT %s FROM colecciones%s ORDER BY titulo, id LIMIT $%d OFFSET $%d`,
		collectionColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []Collection
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, *c)
	}
	return items, total, rows.Err()
}

func (r *repository) LinkRemote(ctx context.Context, id int64, remoteID string) error {
	return ledger.LinkRemote(ctx, r.db, ledger.KindCollection, id, remoteID)
}

func (r *repository) MarkSynced(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE colecciones SET last_synced_at = $2 WHERE id = $1`, id, at)
	return err
}

func (r *repository) ListMembers(ctx context.Context, collectionID int64) ([]Member, error) {
	rows, err := r.db.Query(ctx, `
		SELECT pc.producto_id, COALESCE(p.remote_id, ''), pc.posicion
		FROM productos_colecciones pc JOIN productos p ON p.id = pc.producto_id
		WHERE pc.coleccion_id = $1 ORDER BY pc.posicion`, collectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var members []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.ProductID, &m.ProductRemoteID, &m.Position); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (r *repository) Members() ledger.ChildStore[Member] {
	return memberStore{db: r.db}
}

type memberStore struct {
	db dbtx
}

// DeleteMissing only considers memberships of products that are linked to the
// remote platform; local-only products stay in the collection.
func (s memberStore) DeleteMissing(ctx context.Context, collectionID int64, keep []string) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM productos_colecciones pc USING productos p
		WHERE pc.producto_id = p.id AND pc.coleccion_id = $1
		  AND p.remote_id IS NOT NULL AND NOT (p.remote_id = ANY($2))`, collectionID, keep)
	if err != nil {
		return 0, ledger.ClassifyPG(err)
	}
	return tag.RowsAffected(), nil
}

func (s memberStore) Upsert(ctx context.Context, collectionID int64, position int, m Member) (bool, error) {
	var inserted bool
	err := s.db.QueryRow(ctx, `
		INSERT INTO productos_colecciones (coleccion_id, producto_id, posicion)
		SELECT $1, p.id, $3 FROM productos p WHERE p.remote_id = $2
		ON CONFLICT (coleccion_id, producto_id) DO UPDATE SET posicion = EXCLUDED.posicion
		RETURNING (xmax = 0)`, collectionID, m.ProductRemoteID, position).Scan(&inserted)
	if err != nil {
		return false, ledger.ClassifyPG(err)
	}
	return inserted, nil
}
