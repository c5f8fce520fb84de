package dimension

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tidemark-io/tidemark/internal/shared"
)

type memoryRepo struct {
	records  map[Kind]map[int64]*Record
	inactive map[Kind][]int64
	writes   int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		records: map[Kind]map[int64]*Record{
			KindCustomer: {},
			KindProduct:  {},
		},
		inactive: map[Kind][]int64{},
	}
}

func (r *memoryRepo) add(kind Kind, id int64, name string, master *int64) {
	r.records[kind][id] = &Record{ID: id, Name: name, MasterID: master}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error {
	return fn(ctx, r)
}

func (r *memoryRepo) GetRecord(ctx context.Context, kind Kind, id int64) (Record, error) {
	rec, ok := r.records[kind][id]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s %d", shared.ErrNotFound, kind, id)
	}
	return *rec, nil
}

func (r *memoryRepo) LockRecords(ctx context.Context, kind Kind, ids []int64) error {
	for _, id := range ids {
		if _, ok := r.records[kind][id]; !ok {
			return fmt.Errorf("%w: %s %d", shared.ErrNotFound, kind, id)
		}
	}
	return nil
}

func (r *memoryRepo) SetMaster(ctx context.Context, kind Kind, id int64, master *int64) error {
	rec, ok := r.records[kind][id]
	if !ok {
		return fmt.Errorf("%w: %s %d", shared.ErrNotFound, kind, id)
	}
	r.writes++
	if master == nil {
		rec.MasterID = nil
		return nil
	}
	v := *master
	rec.MasterID = &v
	return nil
}

func (r *memoryRepo) ChildrenOf(ctx context.Context, kind Kind, parents []int64) ([]int64, error) {
	parentSet := map[int64]struct{}{}
	for _, p := range parents {
		parentSet[p] = struct{}{}
	}
	var out []int64
	for id, rec := range r.records[kind] {
		if rec.MasterID == nil {
			continue
		}
		if _, ok := parentSet[*rec.MasterID]; ok {
			out = append(out, id)
		}
	}
	return out, nil
}

func (r *memoryRepo) SetArchived(ctx context.Context, kind Kind, ids []int64, archived bool) error {
	for _, id := range ids {
		rec, ok := r.records[kind][id]
		if !ok {
			return fmt.Errorf("%w: %s %d", shared.ErrNotFound, kind, id)
		}
		r.writes++
		rec.Archived = archived
	}
	return nil
}

func (r *memoryRepo) ListMatchCandidates(ctx context.Context, kind Kind) ([]Record, error) {
	var out []Record
	for _, rec := range r.records[kind] {
		if rec.MasterID == nil && !rec.Archived {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListInactive(ctx context.Context, kind Kind, since time.Time) ([]int64, error) {
	return r.inactive[kind], nil
}

func newTestService(repo Repository) *Service {
	return NewService(repo, nil, nil, nil)
}

func TestResolveRootIsIdempotent(t *testing.T) {
	repo := newMemoryRepo()
	master := int64(1)
	repo.add(KindCustomer, 1, "Farmlands", nil)
	repo.add(KindCustomer, 2, "Farmlands Kamo", &master)

	svc := newTestService(repo)
	ctx := context.Background()

	root, err := svc.ResolveRoot(ctx, KindCustomer, 2)
	require.NoError(t, err)
	require.Equal(t, int64(1), root)

	again, err := svc.ResolveRoot(ctx, KindCustomer, root)
	require.NoError(t, err)
	require.Equal(t, root, again)
}

func TestResolveRootFailsClosedOnCycle(t *testing.T) {
	repo := newMemoryRepo()
	a, b := int64(1), int64(2)
	repo.add(KindCustomer, 1, "A", &b)
	repo.add(KindCustomer, 2, "B", &a)

	svc := newTestService(repo)
	_, err := svc.ResolveRoot(context.Background(), KindCustomer, 1)
	require.ErrorIs(t, err, shared.ErrResolution)
}

func TestMergeFlattensGrandchildren(t *testing.T) {
	repo := newMemoryRepo()
	repo.add(KindCustomer, 1, "M", nil)
	repo.add(KindCustomer, 2, "A", nil)
	repo.add(KindCustomer, 3, "B", nil)
	repo.add(KindCustomer, 4, "C", nil)

	svc := newTestService(repo)
	ctx := context.Background()

	require.NoError(t, svc.Merge(ctx, KindCustomer, 1, []int64{2, 3}))
	require.NoError(t, svc.Merge(ctx, KindCustomer, 4, []int64{1}))

	// A, B, and M all resolve directly to C: no chain deeper than one hop.
	for _, id := range []int64{1, 2, 3} {
		root, err := svc.ResolveRoot(ctx, KindCustomer, id)
		require.NoError(t, err)
		require.Equal(t, int64(4), root)

		rec, err := repo.GetRecord(ctx, KindCustomer, id)
		require.NoError(t, err)
		require.NotNil(t, rec.MasterID)
		require.Equal(t, int64(4), *rec.MasterID, "entity %d should point directly at the root", id)
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	repo := newMemoryRepo()
	repo.add(KindProduct, 10, "Crate 12pk", nil)
	repo.add(KindProduct, 11, "Crate 12-pk", nil)

	svc := newTestService(repo)
	ctx := context.Background()

	require.NoError(t, svc.Merge(ctx, KindProduct, 10, []int64{11}))
	written := repo.writes

	require.NoError(t, svc.Merge(ctx, KindProduct, 10, []int64{11}))
	require.Equal(t, written, repo.writes, "second identical merge must not write")
}

func TestMergeRejectsSelfAndDescendant(t *testing.T) {
	repo := newMemoryRepo()
	repo.add(KindCustomer, 1, "A", nil)
	repo.add(KindCustomer, 2, "B", nil)

	svc := newTestService(repo)
	ctx := context.Background()

	err := svc.Merge(ctx, KindCustomer, 1, []int64{1})
	require.ErrorIs(t, err, shared.ErrValidation)

	require.NoError(t, svc.Merge(ctx, KindCustomer, 1, []int64{2}))
	// Merging A under B would make A a child of its own descendant.
	err = svc.Merge(ctx, KindCustomer, 2, []int64{1})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestMergeRejectsUnknownEntities(t *testing.T) {
	repo := newMemoryRepo()
	repo.add(KindCustomer, 1, "A", nil)

	svc := newTestService(repo)
	err := svc.Merge(context.Background(), KindCustomer, 1, []int64{99})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestUnmergeRestoresRootWithoutUnflattening(t *testing.T) {
	repo := newMemoryRepo()
	repo.add(KindCustomer, 1, "M", nil)
	repo.add(KindCustomer, 2, "A", nil)
	repo.add(KindCustomer, 3, "B", nil)

	svc := newTestService(repo)
	ctx := context.Background()

	require.NoError(t, svc.Merge(ctx, KindCustomer, 1, []int64{2}))
	require.NoError(t, svc.Merge(ctx, KindCustomer, 3, []int64{1}))
	require.NoError(t, svc.Unmerge(ctx, KindCustomer, 1))

	root, err := svc.ResolveRoot(ctx, KindCustomer, 1)
	require.NoError(t, err)
	require.Equal(t, int64(1), root)

	// A was re-parented onto B by the flatten; unmerge does not undo that.
	root, err = svc.ResolveRoot(ctx, KindCustomer, 2)
	require.NoError(t, err)
	require.Equal(t, int64(3), root)
}

func TestArchiveValidation(t *testing.T) {
	repo := newMemoryRepo()
	repo.add(KindProduct, 1, "P", nil)

	svc := newTestService(repo)
	ctx := context.Background()

	require.ErrorIs(t, svc.Archive(ctx, KindProduct, nil), shared.ErrValidation)
	require.ErrorIs(t, svc.Archive(ctx, "widget", []int64{1}), shared.ErrValidation)

	require.NoError(t, svc.Archive(ctx, KindProduct, []int64{1}))
	rec, err := repo.GetRecord(ctx, KindProduct, 1)
	require.NoError(t, err)
	require.True(t, rec.Archived)

	require.NoError(t, svc.Unarchive(ctx, KindProduct, 1))
	rec, err = repo.GetRecord(ctx, KindProduct, 1)
	require.NoError(t, err)
	require.False(t, rec.Archived)
}

func TestArchiveInactive(t *testing.T) {
	repo := newMemoryRepo()
	repo.add(KindCustomer, 1, "Dormant", nil)
	repo.add(KindCustomer, 2, "Active", nil)
	repo.inactive[KindCustomer] = []int64{1}

	svc := newTestService(repo)
	count, err := svc.ArchiveInactive(context.Background(), KindCustomer, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, 1, count)

	rec, err := repo.GetRecord(context.Background(), KindCustomer, 1)
	require.NoError(t, err)
	require.True(t, rec.Archived)

	rec, err = repo.GetRecord(context.Background(), KindCustomer, 2)
	require.NoError(t, err)
	require.False(t, rec.Archived)
}
