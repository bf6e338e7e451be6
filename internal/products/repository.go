package products

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

// Repository is the only writer of productos and its child tables.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Get(ctx context.Context, id int64) (*Product, error)
	GetByRemoteID(ctx context.Context, remoteID string) (*Product, error)
	GetByHandle(ctx context.Context, handle string) (*Product, error)
	Create(ctx context.Context, p Product) (int64, error)
	Update(ctx context.Context, id int64, p Product) error
	Delete(ctx context.Context, id int64) error
	Search(ctx context.Context, filter SearchFilter) ([]Product, int, error)
	LinkRemote(ctx context.Context, id int64, remoteID string) error
	MarkSynced(ctx context.Context, id int64, at time.Time) error
	ListVariants(ctx context.Context, productID int64) ([]Variant, error)
	Variants() ledger.ChildStore[Variant]
	Images() ledger.ChildStore[Image]
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

const productColumns = `id, remote_id, titulo, descripcion, handle, proveedor, tipo_producto, estado, etiquetas, created_at, updated_at, last_synced_at`

func scanProduct(row pgx.Row) (*Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.RemoteID, &p.Title, &p.Description, &p.Handle, &p.Vendor,
		&p.ProductType, &p.Status, &p.Tags, &p.CreatedAt, &p.UpdatedAt, &p.LastSyncedAt)
	if err != nil {
		return nil, ledger.ClassifyPG(err)
	}
	return &p, nil
}

func (r *repository) Get(ctx context.Context, id int64) (*Product, error) {
	return scanProduct(r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM productos WHERE id = $1`, id))
}

func (r *repository) GetByRemoteID(ctx context.Context, remoteID string) (*Product, error) {
	return scanProduct(r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM productos WHERE remote_id = $1`, remoteID))
}

func (r *repository) GetByHandle(ctx context.Context, handle string) (*Product, error) {
	return scanProduct(r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM productos WHERE handle = $1`, handle))
}

func (r *repository) Create(ctx context.Context, p Product) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO productos (remote_id, titulo, descripcion, handle, proveedor, tipo_producto, estado, etiquetas, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING id`,
		p.RemoteID, p.Title, p.Description, p.Handle, p.Vendor, p.ProductType, p.Status, tagsOrEmpty(p.Tags),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create product: %w", ledger.ClassifyPG(err))
	}
	return id, nil
}

func (r *repository) Update(ctx context.Context, id int64, p Product) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE productos SET titulo = $2, descripcion = $3, handle = $4, proveedor = $5,
			tipo_producto = $6, estado = $7, etiquetas = $8, updated_at = NOW()
		WHERE id = $1`,
		id, p.Title, p.Description, p.Handle, p.Vendor, p.ProductType, p.Status, tagsOrEmpty(p.Tags))
	if err != nil {
		return fmt.Errorf("update product %d: %w", id, ledger.ClassifyPG(err))
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM productos WHERE id = $1`, id)
	if err != nil {
		return ledger.ClassifyPG(err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func (r *repository) Search(ctx context.Context, filter SearchFilter) ([]Product, int, error) {
	var conditions []string
	var args []interface{}
	if q := strings.TrimSpace(filter.Query); q != "" {
		args = append(args, "%"+q+"%")
		conditions = append(conditions, fmt.Sprintf("(titulo ILIKE $%d OR handle ILIKE $%d)", len(args), len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("estado = $%d", len(args)))
	}
	if filter.Linked != nil {
		if *filter.Linked {
			conditions = append(conditions, "remote_id IS NOT NULL")
		} else {
			conditions = append(conditions, "remote_id IS NULL")
		}
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM productos`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)
	rows, err := r.db.Query(ctx, fmt.Sprintf(`SELECT %s FROM productos%s ORDER BY titulo, id LIMIT $%d OFFSET $%d`,
		productColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, *p)
	}
	return items, total, rows.Err()
}

func (r *repository) LinkRemote(ctx context.Context, id int64, remoteID string) error {
	return ledger.LinkRemote(ctx, r.db, ledger.KindProduct, id, remoteID)
}

func (r *repository) MarkSynced(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE productos SET last_synced_at = $2 WHERE id = $1`, id, at)
	return err
}

func (r *repository) ListVariants(ctx context.Context, productID int64) ([]Variant, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, producto_id, remote_id, titulo, sku, precio, precio_comparacion, inventario, posicion
		FROM producto_variantes WHERE producto_id = $1 ORDER BY posicion`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var variants []Variant
	for rows.Next() {
		var v Variant
		if err := rows.Scan(&v.ID, &v.ProductID, &v.RemoteID, &v.Title, &v.SKU, &v.Price, &v.CompareAtPrice, &v.Inventory, &v.Position); err != nil {
			return nil, err
		}
		variants = append(variants, v)
	}
	return variants, rows.Err()
}

func (r *repository) Variants() ledger.ChildStore[Variant] {
	return variantStore{db: r.db}
}

func (r *repository) Images() ledger.ChildStore[Image] {
	return imageStore{db: r.db}
}

type variantStore struct {
	db dbtx
}

func (s variantStore) DeleteMissing(ctx context.Context, productID int64, keep []string) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM producto_variantes WHERE producto_id = $1 AND NOT (remote_id = ANY($2))`, productID, keep)
	if err != nil {
		return 0, ledger.ClassifyPG(err)
	}
	return tag.RowsAffected(), nil
}

func (s variantStore) Upsert(ctx context.Context, productID int64, position int, v Variant) (bool, error) {
	var inserted bool
	err := s.db.QueryRow(ctx, `
		INSERT INTO producto_variantes (producto_id, remote_id, titulo, sku, precio, precio_comparacion, inventario, posicion)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (remote_id) DO UPDATE SET
			producto_id = EXCLUDED.producto_id, titulo = EXCLUDED.titulo, sku = EXCLUDED.sku,
			precio = EXCLUDED.precio, precio_comparacion = EXCLUDED.precio_comparacion,
			inventario = EXCLUDED.inventario, posicion = EXCLUDED.posicion, updated_at = NOW()
		RETURNING (xmax = 0)`,
		productID, v.RemoteID, v.Title, v.SKU, v.Price, v.CompareAtPrice, v.Inventory, position,
	).Scan(&inserted)
	if err != nil {
		return false, ledger.ClassifyPG(err)
	}
	return inserted, nil
}

type imageStore struct {
	db dbtx
}

func (s imageStore) DeleteMissing(ctx context.Context, productID int64, keep []string) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM imagenes_producto WHERE producto_id = $1 AND NOT (remote_id = ANY($2))`, productID, keep)
	if err != nil {
		return 0, ledger.ClassifyPG(err)
	}
	return tag.RowsAffected(), nil
}

// Upsert links the image to its variant by remote id; variants are
// reconciled first so the lookup sees the current set.
func (s imageStore) Upsert(ctx context.Context, productID int64, position int, img Image) (bool, error) {
	var inserted bool
	err := s.db.QueryRow(ctx, `
		INSERT INTO imagenes_producto (producto_id, variante_id, remote_id, url, texto_alt, posicion)
		VALUES ($1, (SELECT id FROM producto_variantes WHERE remote_id = NULLIF($2, '') AND producto_id = $1), $3, $4, $5, $6)
		ON CONFLICT (remote_id) DO UPDATE SET
			producto_id = EXCLUDED.producto_id, variante_id = EXCLUDED.variante_id, url = EXCLUDED.url,
			texto_alt = EXCLUDED.texto_alt, posicion = EXCLUDED.posicion, updated_at = NOW()
		RETURNING (xmax = 0)`,
		productID, img.VariantRemoteID, img.RemoteID, img.URL, img.AltText, position,
	).Scan(&inserted)
	if err != nil {
		return false, ledger.ClassifyPG(err)
	}
	return inserted, nil
}

func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
