package ledger

import (
	"context"
	"errors"
	"fmt"
)

// Keyed is implemented by child records; Key returns the remote id.
type Keyed interface {
	Key() string
}

// ChildStore persists one owned child collection. Implementations run on the
// parent's transaction so delete and reinsert commit together.
type ChildStore[C Keyed] interface {
	// DeleteMissing removes children of parentID whose key is not in keep and
	// returns how many rows went away.
	DeleteMissing(ctx context.Context, parentID int64, keep []string) (int64, error)
	// Upsert writes child at the given 1-based position, reporting whether a
	// row was inserted.
	Upsert(ctx context.Context, parentID int64, position int, child C) (bool, error)
}

// Policy selects how absent children are treated.
type Policy int

const (
	// PolicyReplaceAll deletes children missing from the incoming set.
	PolicyReplaceAll Policy = iota
	// PolicyMerge only upserts; used when the incoming set is known to be partial.
	PolicyMerge
)

func (p Policy) String() string {
	if p == PolicyMerge {
		return "merge"
	}
	return "replace-all"
}

var (
	// ErrMissingChildKey marks an incoming child without a remote id.
	ErrMissingChildKey = errors.New("ledger: child without remote id")
	// ErrDuplicateChild marks an incoming set repeating a remote id.
	ErrDuplicateChild = errors.New("ledger: duplicate child remote id")
)

// ChildResult summarises one reconciliation.
type ChildResult struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Deleted  int `json:"deleted"`
}

// ReconcileChildren makes the children of parentID match incoming, preserving
// list order in the position column.
func ReconcileChildren[C Keyed](ctx context.Context, store ChildStore[C], parentID int64, incoming []C, policy Policy) (ChildResult, error) {
	var result ChildResult
	keep := make([]string, 0, len(incoming))
	seen := make(map[string]struct{}, len(incoming))
	for i, child := range incoming {
		key := child.Key()
		if key == "" {
			return result, fmt.Errorf("%w at index %d", ErrMissingChildKey, i)
		}
		if _, dup := seen[key]; dup {
			return result, fmt.Errorf("%w: %s", ErrDuplicateChild, key)
		}
		seen[key] = struct{}{}
		keep = append(keep, key)
	}

	if policy == PolicyReplaceAll {
		deleted, err := store.DeleteMissing(ctx, parentID, keep)
		if err != nil {
			return result, fmt.Errorf("delete stale children: %w", err)
		}
		result.Deleted = int(deleted)
	}

	for i, child := range incoming {
		inserted, err := store.Upsert(ctx, parentID, i+1, child)
		if err != nil {
			return result, fmt.Errorf("upsert child %s: %w", child.Key(), err)
		}
		if inserted {
			result.Inserted++
		} else {
			result.Updated++
		}
	}
	return result, nil
}
