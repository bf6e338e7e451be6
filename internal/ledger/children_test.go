package ledger

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

type testChild struct {
	RemoteID string
	Title    string
}

func (c testChild) Key() string { return c.RemoteID }

type storedChild struct {
	testChild
	Position int
}

type memoryChildStore struct {
	rows      map[int64]map[string]storedChild
	failKey   string
	deleteErr error
}

func newMemoryChildStore() *memoryChildStore {
	return &memoryChildStore{rows: make(map[int64]map[string]storedChild)}
}

func (m *memoryChildStore) DeleteMissing(ctx context.Context, parentID int64, keep []string) (int64, error) {
	if m.deleteErr != nil {
		return 0, m.deleteErr
	}
	keepSet := make(map[string]bool, len(keep))
	for _, k := range keep {
		keepSet[k] = true
	}
	var deleted int64
	for key := range m.rows[parentID] {
		if !keepSet[key] {
			delete(m.rows[parentID], key)
			deleted++
		}
	}
	return deleted, nil
}

func (m *memoryChildStore) Upsert(ctx context.Context, parentID int64, position int, child testChild) (bool, error) {
	if child.RemoteID == m.failKey {
		return false, errors.New("constraint violation")
	}
	if m.rows[parentID] == nil {
		m.rows[parentID] = make(map[string]storedChild)
	}
	_, existed := m.rows[parentID][child.RemoteID]
	m.rows[parentID][child.RemoteID] = storedChild{testChild: child, Position: position}
	return !existed, nil
}

func (m *memoryChildStore) ordered(parentID int64) []string {
	list := make([]storedChild, 0, len(m.rows[parentID]))
	for _, row := range m.rows[parentID] {
		list = append(list, row)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Position < list[j].Position })
	keys := make([]string, 0, len(list))
	for _, row := range list {
		keys = append(keys, row.RemoteID)
	}
	return keys
}

func children(keys ...string) []testChild {
	out := make([]testChild, 0, len(keys))
	for _, k := range keys {
		out = append(out, testChild{RemoteID: k, Title: "child " + k})
	}
	return out
}

func TestReconcileChildrenReplaceAll(t *testing.T) {
	store := newMemoryChildStore()
	ctx := context.Background()

	_, err := ReconcileChildren[testChild](ctx, store, 1, children("A", "B", "C"), PolicyReplaceAll)
	require.NoError(t, err)
	_, err = ReconcileChildren[testChild](ctx, store, 2, children("Z"), PolicyReplaceAll)
	require.NoError(t, err)

	result, err := ReconcileChildren[testChild](ctx, store, 1, children("C", "B", "D"), PolicyReplaceAll)
	require.NoError(t, err)
	require.Equal(t, ChildResult{Inserted: 1, Updated: 2, Deleted: 1}, result)
	require.Equal(t, []string{"C", "B", "D"}, store.ordered(1))
	require.Equal(t, 1, store.rows[1]["C"].Position)
	require.Equal(t, 3, store.rows[1]["D"].Position)
	require.Equal(t, []string{"Z"}, store.ordered(2), "siblings of other parents are untouched")
}

func TestReconcileChildrenEmptySetClearsParent(t *testing.T) {
	store := newMemoryChildStore()
	ctx := context.Background()
	_, err := ReconcileChildren[testChild](ctx, store, 1, children("A", "B"), PolicyReplaceAll)
	require.NoError(t, err)

	result, err := ReconcileChildren[testChild](ctx, store, 1, nil, PolicyReplaceAll)
	require.NoError(t, err)
	require.Equal(t, 2, result.Deleted)
	require.Empty(t, store.ordered(1))
}

func TestReconcileChildrenMergeKeepsUnseen(t *testing.T) {
	store := newMemoryChildStore()
	ctx := context.Background()
	_, err := ReconcileChildren[testChild](ctx, store, 1, children("A", "B", "C"), PolicyReplaceAll)
	require.NoError(t, err)

	result, err := ReconcileChildren[testChild](ctx, store, 1, children("B", "D"), PolicyMerge)
	require.NoError(t, err)
	require.Equal(t, ChildResult{Inserted: 1, Updated: 1}, result)
	require.Len(t, store.rows[1], 4)
}

func TestReconcileChildrenRejectsBadKeys(t *testing.T) {
	store := newMemoryChildStore()
	ctx := context.Background()
	_, err := ReconcileChildren[testChild](ctx, store, 1, children("A", "B"), PolicyReplaceAll)
	require.NoError(t, err)

	_, err = ReconcileChildren[testChild](ctx, store, 1, children("A", ""), PolicyReplaceAll)
	require.ErrorIs(t, err, ErrMissingChildKey)

	_, err = ReconcileChildren[testChild](ctx, store, 1, children("A", "A"), PolicyReplaceAll)
	require.ErrorIs(t, err, ErrDuplicateChild)

	require.Equal(t, []string{"A", "B"}, store.ordered(1), "rejected sets must not delete anything")
}

func TestReconcileChildrenPropagatesStoreErrors(t *testing.T) {
	store := newMemoryChildStore()
	store.failKey = "B"
	_, err := ReconcileChildren[testChild](context.Background(), store, 1, children("A", "B"), PolicyReplaceAll)
	require.ErrorContains(t, err, "upsert child B")

	store = newMemoryChildStore()
	store.deleteErr = errors.New("boom")
	_, err = ReconcileChildren[testChild](context.Background(), store, 1, children("A"), PolicyReplaceAll)
	require.ErrorContains(t, err, "delete stale children")
}
