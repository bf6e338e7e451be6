package customers

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

// Repository owns clientes and direcciones_cliente.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Get(ctx context.Context, id int64) (*Customer, error)
	GetByRemoteID(ctx context.Context, remoteID string) (*Customer, error)
	GetByEmail(ctx context.Context, email string) (*Customer, error)
	Create(ctx context.Context, c Customer) (int64, error)
	Update(ctx context.Context, id int64, c Customer) error
	Delete(ctx context.Context, id int64) error
	Search(ctx context.Context, filter SearchFilter) ([]Customer, int, error)
	LinkRemote(ctx context.Context, id int64, remoteID string) error
	MarkSynced(ctx context.Context, id int64, at time.Time) error
	ListAddresses(ctx context.Context, customerID int64) ([]Address, error)
	Addresses() ledger.ChildStore[Address]
	// SetDefaultAddress makes remoteID the only default address of the
	// customer. An empty remoteID clears the default.
	SetDefaultAddress(ctx context.Context, customerID int64, remoteID string) error
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

const customerColumns = `id, remote_id, email, nombre, apellido, telefono, estado, acepta_marketing, etiquetas, nota, created_at, updated_at, last_synced_at`

func scanCustomer(row pgx.Row) (*Customer, error) {
	var c Customer
	if err := row.Scan(&c.ID, &c.RemoteID, &c.Email, &c.FirstName, &c.LastName, &c.Phone, &c.State,
		&c.AcceptsMarketing, &c.Tags, &c.Note, &c.CreatedAt, &c.UpdatedAt, &c.LastSyncedAt); err != nil {
		return nil, ledger.ClassifyPG(err)
	}
	return &c, nil
}

func (r *repository) Get(ctx context.Context, id int64) (*Customer, error) {
	return scanCustomer(r.db.QueryRow(ctx, `SELECT `+customerColumns+` FROM clientes WHERE id = $1`, id))
}

func (r *repository) GetByRemoteID(ctx context.Context, remoteID string) (*Customer, error) {
	return scanCustomer(r.db.QueryRow(ctx, `SELECT `+customerColumns+` FROM clientes WHERE remote_id = $1`, remoteID))
}

func (r *repository) GetByEmail(ctx context.Context, email string) (*Customer, error) {
	return scanCustomer(r.db.QueryRow(ctx, `SELECT `+customerColumns+` FROM clientes WHERE lower(email) = lower($1)`, email))
}

func (r *repository) Create(ctx context.Context, c Customer) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO clientes (remote_id, email, nombre, apellido, telefono, estado, acepta_marketing, etiquetas, nota)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		c.RemoteID, c.Email, c.FirstName, c.LastName, c.Phone, stateOrDefault(c.State), c.AcceptsMarketing, tagsOrEmpty(c.Tags), c.Note,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create customer: %w", ledger.ClassifyPG(err))
	}
	return id, nil
}

func (r *repository) Update(ctx context.Context, id int64, c Customer) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE clientes SET email = $2, nombre = $3, apellido = $4, telefono = $5, estado = $6,
			acepta_marketing = $7, etiquetas = $8, nota = $9, updated_at = NOW()
		WHERE id = $1`,
		id, c.Email, c.FirstName, c.LastName, c.Phone, stateOrDefault(c.State), c.AcceptsMarketing, tagsOrEmpty(c.Tags), c.Note)
	if err != nil {
		return fmt.Errorf("update customer %d: %w", id, ledger.ClassifyPG(err))
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM clientes WHERE id = $1`, id)
	if err != nil {
		return ledger.ClassifyPG(err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func (r *repository) Search(ctx context.Context, filter SearchFilter) ([]Customer, int, error) {
	where := ""
	var args []interface{}
	if q := strings.TrimSpace(filter.Query); q != "" {
		args = append(args, "%"+q+"%")
		where = " WHERE email ILIKE $1 OR nombre ILIKE $1 OR apellido ILIKE $1"
	}
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM clientes`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)
	rows, err := r.db.Query(ctx, fmt.Sprintf(`SELECT %s FROM clientes%s ORDER BY apellido, nombre, id LIMIT $%d OFFSET $%d`,
		customerColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, *c)
	}
	return items, total, rows.Err()
}

func (r *repository) LinkRemote(ctx context.Context, id int64, remoteID string) error {
	return ledger.LinkRemote(ctx, r.db, ledger.KindCustomer, id, remoteID)
}

func (r *repository) MarkSynced(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE clientes SET last_synced_at = $2 WHERE id = $1`, id, at)
	return err
}

func (r *repository) ListAddresses(ctx context.Context, customerID int64) ([]Address, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, cliente_id, remote_id, direccion1, direccion2, ciudad, provincia, codigo_postal, pais, telefono, es_predeterminada, posicion
		FROM direcciones_cliente WHERE cliente_id = $1 ORDER BY posicion`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Address
	for rows.Next() {
		var a Address
		if err := rows.Scan(&a.ID, &a.CustomerID, &a.RemoteID, &a.Address1, &a.Address2, &a.City, &a.Province,
			&a.Zip, &a.Country, &a.Phone, &a.IsDefault, &a.Position); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *repository) Addresses() ledger.ChildStore[Address] {
	return addressStore{db: r.db}
}

func (r *repository) SetDefaultAddress(ctx context.Context, customerID int64, remoteID string) error {
	if _, err := r.db.Exec(ctx, `
		UPDATE direcciones_cliente SET es_predeterminada = FALSE, updated_at = NOW()
		WHERE cliente_id = $1 AND es_predeterminada AND remote_id <> $2`, customerID, remoteID); err != nil {
		return ledger.ClassifyPG(err)
	}
	if remoteID == "" {
		return nil
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE direcciones_cliente SET es_predeterminada = TRUE, updated_at = NOW()
		WHERE cliente_id = $1 AND remote_id = $2`, customerID, remoteID)
	if err != nil {
		return ledger.ClassifyPG(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("default address %s: %w", remoteID, ledger.ErrNotFound)
	}
	return nil
}

type addressStore struct {
	db dbtx
}

func (s addressStore) DeleteMissing(ctx context.Context, customerID int64, keep []string) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM direcciones_cliente WHERE cliente_id = $1 AND NOT (remote_id = ANY($2))`, customerID, keep)
	if err != nil {
		return 0, ledger.ClassifyPG(err)
	}
	return tag.RowsAffected(), nil
}

// Upsert never writes es_predeterminada; SetDefaultAddress owns that flag so
// the partial unique index is never violated mid-reconcile.
func (s addressStore) Upsert(ctx context.Context, customerID int64, position int, a Address) (bool, error) {
	var inserted bool
	err := s.db.QueryRow(ctx, `
		INSERT INTO direcciones_cliente (cliente_id, remote_id, direccion1, direccion2, ciudad, provincia, codigo_postal, pais, telefono, posicion)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (remote_id) DO UPDATE SET
			cliente_id = EXCLUDED.cliente_id, direccion1 = EXCLUDED.direccion1, direccion2 = EXCLUDED.direccion2,
			ciudad = EXCLUDED.ciudad, provincia = EXCLUDED.provincia, codigo_postal = EXCLUDED.codigo_postal,
			pais = EXCLUDED.pais, telefono = EXCLUDED.telefono, posicion = EXCLUDED.posicion, updated_at = NOW()
		RETURNING (xmax = 0)`,
		customerID, a.RemoteID, a.Address1, a.Address2, a.City, a.Province, a.Zip, a.Country, a.Phone, position,
	).Scan(&inserted)
	if err != nil {
		return false, ledger.ClassifyPG(err)
	}
	return inserted, nil
}

func stateOrDefault(state string) string {
	if state == "" {
		return "ENABLED"
	}
	return state
}

func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
