package dimension

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/tidemark-io/tidemark/internal/shared"
)

// Observer receives domain metric events. Satisfied by observability.Metrics.
type Observer interface {
	MergeApplied(kind string)
	ResolutionFailed()
}

// Invalidator drops derived report caches after a dimension mutation. Reads
// must see the mutation immediately, so the bump happens before the write
// call returns.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Warmer schedules a background report recompute after a mutation, so the
// next read hits a fresh cache entry instead of paying the cold-load cost.
type Warmer interface {
	EnqueueWarmup(ctx context.Context) error
}

// Service owns dimension mutations and canonical resolution.
type Service struct {
	repo        Repository
	logger      *slog.Logger
	observer    Observer
	invalidator Invalidator
	warmer      Warmer
}

// NewService builds a Service instance.
func NewService(repo Repository, logger *slog.Logger, observer Observer, invalidator Invalidator) *Service {
	return &Service{repo: repo, logger: logger, observer: observer, invalidator: invalidator}
}

// SetWarmer attaches an optional background warmup queue.
func (s *Service) SetWarmer(w Warmer) { s.warmer = w }

func (s *Service) lookup(ctx context.Context, repo Repository, kind Kind) MasterLookup {
	return func(id int64) (*int64, bool, error) {
		rec, err := repo.GetRecord(ctx, kind, id)
		if errors.Is(err, shared.ErrNotFound) {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, err
		}
		return rec.MasterID, true, nil
	}
}

// ResolveRoot returns the canonical root of an entity.
func (s *Service) ResolveRoot(ctx context.Context, kind Kind, id int64) (int64, error) {
	if !kind.Valid() {
		return 0, shared.Validationf("unknown dimension kind %q", kind)
	}
	root, err := ResolveChain(id, s.lookup(ctx, s.repo, kind))
	if err != nil {
		s.observeResolutionFailure(err)
		return 0, err
	}
	return root, nil
}

// Merge points each child at the canonical root of masterID and re-parents
// any entity currently pointing at a child, keeping every chain at depth one.
// Applied as a single transaction; calling it again with the same arguments
// is a no-op.
func (s *Service) Merge(ctx context.Context, kind Kind, masterID int64, childIDs []int64) error {
	if !kind.Valid() {
		return shared.Validationf("unknown dimension kind %q", kind)
	}
	if len(childIDs) == 0 {
		return shared.Validationf("merge requires at least one child")
	}
	childSet := map[int64]struct{}{}
	for _, id := range childIDs {
		if id == masterID {
			return shared.Validationf("entity %d cannot be merged into itself", id)
		}
		childSet[id] = struct{}{}
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		lockIDs := append([]int64{masterID}, childIDs...)
		if err := repo.LockRecords(ctx, kind, lockIDs); err != nil {
			return err
		}

		root, err := ResolveChain(masterID, s.lookup(ctx, repo, kind))
		if err != nil {
			s.observeResolutionFailure(err)
			return err
		}
		if _, isChild := childSet[root]; isChild {
			return shared.Validationf("entity %d cannot be merged into its own descendant %d", root, masterID)
		}

		for _, child := range childIDs {
			rec, err := repo.GetRecord(ctx, kind, child)
			if err != nil {
				return err
			}
			if rec.MasterID != nil && *rec.MasterID == root {
				continue // already merged, keep the call idempotent
			}
			if err := repo.SetMaster(ctx, kind, child, &root); err != nil {
				return err
			}
		}

		// Flatten on write: anything pointing at a child would now be two
		// hops from the root, so re-parent it in the same transaction.
		grandchildren, err := repo.ChildrenOf(ctx, kind, childIDs)
		if err != nil {
			return err
		}
		for _, gc := range grandchildren {
			if gc == root {
				continue
			}
			if err := repo.SetMaster(ctx, kind, gc, &root); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.observer != nil {
		s.observer.MergeApplied(string(kind))
	}
	s.bump(ctx)
	if s.logger != nil {
		s.logger.Info("dimension merge applied",
			slog.String("kind", string(kind)),
			slog.Int64("master_id", masterID),
			slog.Int("children", len(childIDs)))
	}
	return nil
}

// Unmerge clears the master pointer, restoring the entity to root status.
// Previously re-parented grandchildren stay where the flatten left them.
func (s *Service) Unmerge(ctx context.Context, kind Kind, id int64) error {
	if !kind.Valid() {
		return shared.Validationf("unknown dimension kind %q", kind)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if err := repo.LockRecords(ctx, kind, []int64{id}); err != nil {
			return err
		}
		return repo.SetMaster(ctx, kind, id, nil)
	})
	if err != nil {
		return err
	}
	s.bump(ctx)
	return nil
}

// Archive marks the given entities archived. Facts referencing them keep
// flowing into reports only through an active master.
func (s *Service) Archive(ctx context.Context, kind Kind, ids []int64) error {
	if !kind.Valid() {
		return shared.Validationf("unknown dimension kind %q", kind)
	}
	if len(ids) == 0 {
		return shared.Validationf("archive requires at least one id")
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if err := repo.LockRecords(ctx, kind, ids); err != nil {
			return err
		}
		return repo.SetArchived(ctx, kind, ids, true)
	})
	if err != nil {
		return err
	}
	s.bump(ctx)
	return nil
}

// Unarchive restores a single archived entity.
func (s *Service) Unarchive(ctx context.Context, kind Kind, id int64) error {
	if !kind.Valid() {
		return shared.Validationf("unknown dimension kind %q", kind)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if err := repo.LockRecords(ctx, kind, []int64{id}); err != nil {
			return err
		}
		return repo.SetArchived(ctx, kind, []int64{id}, false)
	})
	if err != nil {
		return err
	}
	s.bump(ctx)
	return nil
}

// ArchiveInactive archives entities with no fact activity since the date and
// returns how many were archived.
func (s *Service) ArchiveInactive(ctx context.Context, kind Kind, since time.Time) (int, error) {
	if !kind.Valid() {
		return 0, shared.Validationf("unknown dimension kind %q", kind)
	}
	if since.IsZero() {
		return 0, shared.Validationf("archive cutoff date required")
	}
	var count int
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		ids, err := repo.ListInactive(ctx, kind, since)
		if err != nil {
			return err
		}
		count = len(ids)
		if count == 0 {
			return nil
		}
		return repo.SetArchived(ctx, kind, ids, true)
	})
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.bump(ctx)
	}
	return count, nil
}

func (s *Service) bump(ctx context.Context) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Bump(ctx); err != nil && s.logger != nil {
		s.logger.Warn("report cache bump", slog.Any("error", err))
	}
	if s.warmer != nil {
		if err := s.warmer.EnqueueWarmup(ctx); err != nil && s.logger != nil {
			s.logger.Warn("report warmup enqueue", slog.Any("error", err))
		}
	}
}

func (s *Service) observeResolutionFailure(err error) {
	if s.observer == nil {
		return
	}
	if errors.Is(err, shared.ErrResolution) {
		s.observer.ResolutionFailed()
	}
}
