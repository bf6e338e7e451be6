package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound indicates no local row matched.
	ErrNotFound = errors.New("ledger: not found")
	// ErrRemoteIDConflict indicates an attempt to reassign a row's remote id.
	ErrRemoteIDConflict = errors.New("ledger: remote id already linked to another row")
	// ErrKindMismatch indicates a remote id whose type does not belong to the expected kind.
	ErrKindMismatch = errors.New("ledger: remote id type does not match entity kind")
	// ErrConflict wraps unique constraint violations.
	ErrConflict = errors.New("ledger: unique constraint violation")
	// ErrForeignKey wraps foreign key violations.
	ErrForeignKey = errors.New("ledger: foreign key violation")
	// ErrInvalidRecord marks remote records that could not be mapped.
	ErrInvalidRecord = errors.New("ledger: invalid record")
)

// ClassifyPG maps driver errors onto ledger sentinels, keeping the original
// error in the chain.
func ClassifyPG(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w (%s): %w", ErrConflict, pgErr.ConstraintName, err)
		case "23503":
			return fmt.Errorf("%w (%s): %w", ErrForeignKey, pgErr.ConstraintName, err)
		}
	}
	return err
}

// Execer is the write half of a pgx pool or transaction.
type Execer interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
}

// LinkRemote sets the remote id of a row exactly once. Re-linking the same id
// is a no-op; any other reassignment is ErrRemoteIDConflict.
func LinkRemote(ctx context.Context, db Execer, kind Kind, id int64, remoteID string) error {
	if _, err := ExpectKind(kind, remoteID); err != nil {
		return err
	}
	tag, err := db.Exec(ctx, `UPDATE `+kind.Table()+` SET remote_id = $2, updated_at = NOW() WHERE id = $1 AND (remote_id IS NULL OR remote_id = $2)`, id, remoteID)
	if err != nil {
		if errors.Is(ClassifyPG(err), ErrConflict) {
			return fmt.Errorf("%w: %s is linked to another %s", ErrRemoteIDConflict, remoteID, kind)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s %d is missing or already linked", ErrRemoteIDConflict, kind, id)
	}
	return nil
}
