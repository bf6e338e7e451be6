package orders

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

// Repository owns pedidos and its line, transaction and shipment tables.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Get(ctx context.Context, id int64) (*Order, error)
	GetByRemoteID(ctx context.Context, remoteID string) (*Order, error)
	Create(ctx context.Context, o Order) (int64, error)
	Update(ctx context.Context, id int64, o Order) error
	Delete(ctx context.Context, id int64) error
	Search(ctx context.Context, filter SearchFilter) ([]Order, int, error)
	LinkRemote(ctx context.Context, id int64, remoteID string) error
	MarkSynced(ctx context.Context, id int64, at time.Time) error
	ListLineItems(ctx context.Context, orderID int64) ([]LineItem, error)
	LineItems() ledger.ChildStore[LineItem]
	Transactions() ledger.ChildStore[Transaction]
	Fulfillments() ledger.ChildStore[Fulfillment]
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

const orderColumns = `id, remote_id, numero, cliente_id, email, estado_financiero, estado_envio, moneda,
	subtotal::float8, impuestos::float8, total::float8, procesado_en, cancelado_en, created_at, updated_at, last_synced_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	if err := row.Scan(&o.ID, &o.RemoteID, &o.Number, &o.CustomerID, &o.Email, &o.FinancialStatus, &o.FulfillmentStatus,
		&o.Currency, &o.Subtotal, &o.Tax, &o.Total, &o.ProcessedAt, &o.CancelledAt, &o.CreatedAt, &o.UpdatedAt, &o.LastSyncedAt); err != nil {
		return nil, ledger.ClassifyPG(err)
	}
	return &o, nil
}

func (r *repository) Get(ctx context.Context, id int64) (*Order, error) {
	return scanOrder(r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM pedidos WHERE id = $1`, id))
}

func (r *repository) GetByRemoteID(ctx context.Context, remoteID string) (*Order, error) {
	return scanOrder(r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM pedidos WHERE remote_id = $1`, remoteID))
}

func (r *repository) Create(ctx context.Context, o Order) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO pedidos (remote_id, numero, cliente_id, email, estado_financiero, estado_envio, moneda,
			subtotal, impuestos, total, procesado_en, cancelado_en)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) RETURNING id`,
		o.RemoteID, o.Number, o.CustomerID, o.Email, o.FinancialStatus, o.FulfillmentStatus, o.Currency,
		o.Subtotal, o.Tax, o.Total, o.ProcessedAt, o.CancelledAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create order: %w", ledger.ClassifyPG(err))
	}
	return id, nil
}

func (r *repository) Update(ctx context.Context, id int64, o Order) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE pedidos SET numero = $2, cliente_id = $3, email = $4, estado_financiero = $5, estado_envio = $6,
			moneda = $7, subtotal = $8, impuestos = $9, total = $10, procesado_en = $11, cancelado_en = $12, updated_at = NOW()
		WHERE id = $1`,
		id, o.Number, o.CustomerID, o.Email, o.FinancialStatus, o.FulfillmentStatus, o.Currency,
		o.Subtotal, o.Tax, o.Total, o.ProcessedAt, o.CancelledAt)
	if err != nil {
		return fmt.Errorf("update order %d: %w", id, ledger.ClassifyPG(err))
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM pedidos WHERE id = $1`, id)
	if err != nil {
		return ledger.ClassifyPG(err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func (r *repository) Search(ctx context.Context, filter SearchFilter) ([]Order, int, error) {
	var (
		conds []string
		args  []interface{}
	)
	if q := strings.TrimSpace(filter.Query); q != "" {
		args = append(args, "%"+q+"%")
		conds = append(conds, fmt.Sprintf("(numero ILIKE $%d OR email ILIKE $%d)", len(args), len(args)))
	}
	if filter.CustomerID != nil {
		args = append(args, *filter.CustomerID)
		conds = append(conds, fmt.Sprintf("cliente_id = $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM pedidos`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)
	rows, err := r.db.Query(ctx, fmt.Sprintf(`SELECT %s FROM pedidos%s ORDER BY procesado_en DESC NULLS LAST, id DESC LIMIT $%d OFFSET $%d`,
		orderColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, *o)
	}
	return items, total, rows.Err()
}

func (r *repository) LinkRemote(ctx context.Context, id int64, remoteID string) error {
	return ledger.LinkRemote(ctx, r.db, ledger.KindOrder, id, remoteID)
}

func (r *repository) MarkSynced(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE pedidos SET last_synced_at = $2 WHERE id = $1`, id, at)
	return err
}

func (r *repository) ListLineItems(ctx context.Context, orderID int64) ([]LineItem, error) {
	rows, err := r.db.Query(ctx, `
		SELECT l.remote_id, l.producto_id, COALESCE(v.remote_id, ''), l.titulo, l.sku, l.cantidad, l.precio_unitario::float8, l.posicion
		FROM lineas_pedido l LEFT JOIN producto_variantes v ON v.id = l.variante_id
		WHERE l.pedido_id = $1 ORDER BY l.posicion`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LineItem
	for rows.Next() {
		var l LineItem
		if err := rows.Scan(&l.RemoteID, &l.ProductID, &l.VariantRemoteID, &l.Title, &l.SKU, &l.Quantity, &l.UnitPrice, &l.Position); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *repository) LineItems() ledger.ChildStore[LineItem] { return lineItemStore{db: r.db} }

func (r *repository) Transactions() ledger.ChildStore[Transaction] { return transactionStore{db: r.db} }

func (r *repository) Fulfillments() ledger.ChildStore[Fulfillment] { return fulfillmentStore{db: r.db} }

type lineItemStore struct{ db dbtx }

func (s lineItemStore) DeleteMissing(ctx context.Context, orderID int64, keep []string) (int64, error) {
	return deleteMissing(ctx, s.db, "lineas_pedido", orderID, keep)
}

func (s lineItemStore) Upsert(ctx context.Context, orderID int64, position int, l LineItem) (bool, error) {
	var inserted bool
	err := s.db.QueryRow(ctx, `
		INSERT INTO lineas_pedido (pedido_id, remote_id, producto_id, variante_id, titulo, sku, cantidad, precio_unitario, posicion)
		VALUES ($1, $2, $3, (SELECT id FROM producto_variantes WHERE remote_id = NULLIF($4, '')), $5, $6, $7, $8, $9)
		ON CONFLICT (remote_id) DO UPDATE SET
			pedido_id = EXCLUDED.pedido_id, producto_id = EXCLUDED.producto_id, variante_id = EXCLUDED.variante_id,
			titulo = EXCLUDED.titulo, sku = EXCLUDED.sku, cantidad = EXCLUDED.cantidad,
			precio_unitario = EXCLUDED.precio_unitario, posicion = EXCLUDED.posicion, updated_at = NOW()
		RETURNING (xmax = 0)`,
		orderID, l.RemoteID, l.ProductID, l.VariantRemoteID, l.Title, l.SKU, l.Quantity, l.UnitPrice, position,
	).Scan(&inserted)
	if err != nil {
		return false, ledger.ClassifyPG(err)
	}
	return inserted, nil
}

type transactionStore struct{ db dbtx }

func (s transactionStore) DeleteMissing(ctx context.Context, orderID int64, keep []string) (int64, error) {
	return deleteMissing(ctx, s.db, "transacciones", orderID, keep)
}

func (s transactionStore) Upsert(ctx context.Context, orderID int64, position int, t Transaction) (bool, error) {
	var inserted bool
	err := s.db.QueryRow(ctx, `
		INSERT INTO transacciones (pedido_id, remote_id, tipo, estado, monto, moneda, pasarela, procesada_en, posicion)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (remote_id) DO UPDATE SET
			pedido_id = EXCLUDED.pedido_id, tipo = EXCLUDED.tipo, estado = EXCLUDED.estado, monto = EXCLUDED.monto,
			moneda = EXCLUDED.moneda, pasarela = EXCLUDED.pasarela, procesada_en = EXCLUDED.procesada_en,
			posicion = EXCLUDED.posicion, updated_at = NOW()
		RETURNING (xmax = 0)`,
		orderID, t.RemoteID, t.Kind, t.Status, t.Amount, t.Currency, t.Gateway, t.ProcessedAt, position,
	).Scan(&inserted)
	if err != nil {
		return false, ledger.ClassifyPG(err)
	}
	return inserted, nil
}

type fulfillmentStore struct{ db dbtx }

func (s fulfillmentStore) DeleteMissing(ctx context.Context, orderID int64, keep []string) (int64, error) {
	return deleteMissing(ctx, s.db, "envios", orderID, keep)
}

func (s fulfillmentStore) Upsert(ctx context.Context, orderID int64, position int, f Fulfillment) (bool, error) {
	var inserted bool
	err := s.db.QueryRow(ctx, `
		INSERT INTO envios (pedido_id, remote_id, estado, empresa, numero_seguimiento, url_seguimiento, posicion)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (remote_id) DO UPDATE SET
			pedido_id = EXCLUDED.pedido_id, estado = EXCLUDED.estado, empresa = EXCLUDED.empresa,
			numero_seguimiento = EXCLUDED.numero_seguimiento, url_seguimiento = EXCLUDED.url_seguimiento,
			posicion = EXCLUDED.posicion, updated_at = NOW()
		RETURNING (xmax = 0)`,
		orderID, f.RemoteID, f.Status, f.Company, f.TrackingNumber, f.TrackingURL, position,
	).Scan(&inserted)
	if err != nil {
		return false, ledger.ClassifyPG(err)
	}
	return inserted, nil
}

// deleteMissing serves the three order child tables, all keyed on pedido_id.
func deleteMissing(ctx context.Context, db dbtx, table string, orderID int64, keep []string) (int64, error) {
	tag, err := db.Exec(ctx, `DELETE FROM `+table+` WHERE pedido_id = $1 AND NOT (remote_id = ANY($2))`, orderID, keep)
	if err != nil {
		return 0, ledger.ClassifyPG(err)
	}
	return tag.RowsAffected(), nil
}
