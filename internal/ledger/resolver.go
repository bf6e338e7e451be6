package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/odyssey-erp/shopsync/internal/gid"
)

// Lookup finds rows by remote or local id for a kind.
type Lookup interface {
	LocalID(ctx context.Context, kind Kind, remoteID string) (int64, error)
	RemoteID(ctx context.Context, kind Kind, localID int64) (string, error)
}

// Resolver maps remote identifiers to local primary keys and back.
type Resolver struct {
	lookup Lookup
}

// NewResolver constructs a Resolver over lookup.
func NewResolver(lookup Lookup) *Resolver {
	return &Resolver{lookup: lookup}
}

// ExpectKind parses remoteID and checks it belongs to kind.
func ExpectKind(kind Kind, remoteID string) (gid.ID, error) {
	if !kind.Valid() {
		return gid.ID{}, fmt.Errorf("ledger: invalid kind %s", kind)
	}
	id, err := gid.Parse(remoteID)
	if err != nil {
		return gid.ID{}, err
	}
	if !kind.Accepts(id.Type) {
		return gid.ID{}, fmt.Errorf("%w: %s is not a %s", ErrKindMismatch, remoteID, kind)
	}
	return id, nil
}

// ToLocal returns the local id linked to remoteID, or ErrNotFound.
func (r *Resolver) ToLocal(ctx context.Context, kind Kind, remoteID string) (int64, error) {
	id, err := ExpectKind(kind, remoteID)
	if err != nil {
		return 0, err
	}
	return r.lookup.LocalID(ctx, kind, id.String())
}

// ToRemote returns the remote id linked to a local row, or ErrNotFound when
// the row does not exist or was never published.
func (r *Resolver) ToRemote(ctx context.Context, kind Kind, localID int64) (string, error) {
	remoteID, err := r.lookup.RemoteID(ctx, kind, localID)
	if err != nil {
		return "", err
	}
	if _, err := ExpectKind(kind, remoteID); err != nil {
		return "", err
	}
	return remoteID, nil
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// PGLookup resolves ids against the entity tables.
type PGLookup struct {
	db dbtx
}

// NewPGLookup constructs a lookup over a pool or transaction.
func NewPGLookup(db dbtx) *PGLookup {
	return &PGLookup{db: db}
}

// LocalID implements Lookup.
func (l *PGLookup) LocalID(ctx context.Context, kind Kind, remoteID string) (int64, error) {
	var id int64
	err := l.db.QueryRow(ctx, "SELECT id FROM "+kind.Table()+" WHERE remote_id = $1", remoteID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return id, nil
}

// RemoteID implements Lookup.
func (l *PGLookup) RemoteID(ctx context.Context, kind Kind, localID int64) (string, error) {
	var remoteID *string
	err := l.db.QueryRow(ctx, "SELECT remote_id FROM "+kind.Table()+" WHERE id = $1", localID).Scan(&remoteID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	if remoteID == nil {
		return "", ErrNotFound
	}
	return *remoteID, nil
}
