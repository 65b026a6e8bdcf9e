// Package syncer keeps the cached read model in step with the ledger.
package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/smartdevs17/content-rewards/internal/cache"
	"github.com/smartdevs17/content-rewards/internal/metrics"
	"github.com/smartdevs17/content-rewards/internal/models"
	"github.com/smartdevs17/content-rewards/pkg/utils"
)

// Source is the authoritative read side of the ledger
type Source interface {
	ListContests(ctx context.Context) ([]*models.Contest, error)
	GetContest(ctx context.Context, contestID uint64) (*models.Contest, error)
	ListSubmissions(ctx context.Context, contestID uint64) ([]*models.Submission, error)
	ListWinners(ctx context.Context, contestID uint64) ([]common.Address, error)
	GetUserSubmission(ctx context.Context, contestID uint64, account common.Address) (*models.UserSubmission, error)
}

// ContestDetail bundles the views shown for one contest
type ContestDetail struct {
	Contest     models.ContestView   `json:"contest"`
	Submissions []*models.Submission `json:"submissions"`
	Winners     []common.Address     `json:"winners"`
}

// DefaultLoadTimeout bounds a shared ledger load once no caller is left to cancel it
const DefaultLoadTimeout = 60 * time.Second

// Synchronizer serves reads through the cache and invalidates after writes
type Synchronizer struct {
	source      Source
	backend     cache.Backend
	staleTime   time.Duration
	loadTimeout time.Duration
	group       singleflight.Group
	metrics     *metrics.Manager
	logger      *logrus.Entry
	now         func() time.Time

	// generations guards against a load that began before an invalidation
	// writing its result back afterwards. epoch covers Refocus.
	genMu       sync.Mutex
	generations map[string]uint64
	epoch       uint64
}

// New creates a synchronizer. staleTime is how long a cached view is served
// before the ledger is asked again; zero disables caching.
func New(source Source, backend cache.Backend, staleTime time.Duration, metricsManager *metrics.Manager) *Synchronizer {
	return &Synchronizer{
		source:      source,
		backend:     backend,
		staleTime:   staleTime,
		loadTimeout: DefaultLoadTimeout,
		metrics:     metricsManager,
		logger:      utils.ComponentLogger("syncer"),
		now:         time.Now,
		generations: make(map[string]uint64),
	}
}

// SetLoadTimeout bounds each ledger load shared between callers
func (s *Synchronizer) SetLoadTimeout(d time.Duration) {
	if d > 0 {
		s.loadTimeout = d
	}
}

// Contests returns every contest
func (s *Synchronizer) Contests(ctx context.Context) ([]*models.Contest, error) {
	var out []*models.Contest
	err := s.cached(ctx, cache.ContestsKey(), &out, func(ctx context.Context) (interface{}, error) {
		return s.source.ListContests(ctx)
	})
	return out, err
}

// Contest returns one contest
func (s *Synchronizer) Contest(ctx context.Context, contestID uint64) (*models.Contest, error) {
	var out *models.Contest
	err := s.cached(ctx, cache.ContestKey(contestID), &out, func(ctx context.Context) (interface{}, error) {
		return s.source.GetContest(ctx, contestID)
	})
	return out, err
}

// Submissions returns a contest's submissions in ledger order
func (s *Synchronizer) Submissions(ctx context.Context, contestID uint64) ([]*models.Submission, error) {
	var out []*models.Submission
	err := s.cached(ctx, cache.SubmissionsKey(contestID), &out, func(ctx context.Context) (interface{}, error) {
		return s.source.ListSubmissions(ctx, contestID)
	})
	return out, err
}

// Winners returns a contest's winners in acceptance order
func (s *Synchronizer) Winners(ctx context.Context, contestID uint64) ([]common.Address, error) {
	var out []common.Address
	err := s.cached(ctx, cache.WinnersKey(contestID), &out, func(ctx context.Context) (interface{}, error) {
		return s.source.ListWinners(ctx, contestID)
	})
	return out, err
}

// UserSubmission returns one wallet's projection for a contest
func (s *Synchronizer) UserSubmission(ctx context.Context, contestID uint64, account common.Address) (*models.UserSubmission, error) {
	var out *models.UserSubmission
	err := s.cached(ctx, cache.UserSubmissionKey(contestID, account), &out, func(ctx context.Context) (interface{}, error) {
		return s.source.GetUserSubmission(ctx, contestID, account)
	})
	return out, err
}

// Detail loads a contest together with its submissions and winners
func (s *Synchronizer) Detail(ctx context.Context, contestID uint64) (*ContestDetail, error) {
	var (
		contest     *models.Contest
		submissions []*models.Submission
		winners     []common.Address
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		contest, err = s.Contest(gctx, contestID)
		return err
	})
	g.Go(func() error {
		var err error
		submissions, err = s.Submissions(gctx, contestID)
		return err
	})
	g.Go(func() error {
		var err error
		winners, err = s.Winners(gctx, contestID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &ContestDetail{
		Contest:     contest.View(s.now()),
		Submissions: submissions,
		Winners:     winners,
	}, nil
}

// Invalidate drops exactly the views a completed write can affect
func (s *Synchronizer) Invalidate(ctx context.Context, write Write) error {
	keys := write.Keys()
	if len(keys) == 0 {
		return nil
	}

	s.genMu.Lock()
	for _, key := range keys {
		s.generations[key]++
	}
	s.genMu.Unlock()

	for _, key := range keys {
		s.group.Forget(key)
		s.recordInvalidation(cache.ViewOf(key))
	}

	if err := s.backend.Delete(ctx, keys...); err != nil {
		s.logger.WithFields(logrus.Fields{"action": write.Action, "error": err}).Error("Failed to invalidate views")
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"action":     write.Action,
		"contest_id": write.ContestID,
		"keys":       keys,
	}).Debug("Invalidated views")
	return nil
}

// Refocus treats every cached view as stale and reloads the contest list,
// as a consumer regaining focus would
func (s *Synchronizer) Refocus(ctx context.Context) ([]*models.Contest, error) {
	s.genMu.Lock()
	s.epoch++
	s.genMu.Unlock()
	s.group.Forget(cache.ContestsKey())

	if err := s.backend.Clear(ctx); err != nil {
		return nil, err
	}
	s.recordInvalidation("all")
	return s.Contests(ctx)
}

// cached serves key from the cache or loads it from the ledger. Concurrent
// misses share one load, which runs detached from any single caller so one
// cancellation does not fail the others. Failed loads leave the cache untouched.
func (s *Synchronizer) cached(ctx context.Context, key string, dest interface{}, load func(context.Context) (interface{}, error)) error {
	view := cache.ViewOf(key)

	found, err := s.backend.Get(ctx, key, dest)
	if err != nil {
		s.logger.WithFields(logrus.Fields{"key": key, "error": err}).Warn("Cache read failed, loading from ledger")
	}
	if found {
		s.recordCache(view, "hit")
		return nil
	}
	s.recordCache(view, "miss")

	flight := s.group.DoChan(key, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.loadTimeout)
		defer cancel()

		generation := s.generation(key)
		value, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		s.store(loadCtx, key, generation, value)
		return value, nil
	})

	select {
	case <-ctx.Done():
		return utils.WrapAppError(utils.ErrCodeCancelled, "Read abandoned", ctx.Err())
	case res := <-flight:
		if res.Err != nil {
			return res.Err
		}
		return assign(dest, res.Val)
	}
}

func (s *Synchronizer) generation(key string) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.epoch + s.generations[key]
}

// store caches a loaded value unless the key was invalidated while it loaded.
// The check and the write happen under genMu so an invalidation either
// precedes the check or deletes what was written.
func (s *Synchronizer) store(ctx context.Context, key string, generation uint64, value interface{}) {
	if s.staleTime <= 0 {
		return
	}

	s.genMu.Lock()
	defer s.genMu.Unlock()

	if s.epoch+s.generations[key] != generation {
		s.logger.WithField("key", key).Debug("View invalidated during load, not caching")
		return
	}
	if err := s.backend.Set(ctx, key, value, s.staleTime); err != nil {
		s.logger.WithFields(logrus.Fields{"key": key, "error": err}).Warn("Cache write failed")
	}
}

// assign copies a loaded value into dest, which points at a variable of the same type
func assign(dest interface{}, value interface{}) error {
	switch d := dest.(type) {
	case *[]*models.Contest:
		*d = value.([]*models.Contest)
	case **models.Contest:
		*d = value.(*models.Contest)
	case *[]*models.Submission:
		*d = value.([]*models.Submission)
	case *[]common.Address:
		*d = value.([]common.Address)
	case **models.UserSubmission:
		*d = value.(*models.UserSubmission)
	default:
		return utils.NewAppError(utils.ErrCodeInternal, "Unsupported cached view", fmt.Sprintf("%T", dest))
	}
	return nil
}

func (s *Synchronizer) recordCache(view, result string) {
	if s.metrics == nil {
		return
	}
	s.metrics.GetPrometheusMetrics().RecordCacheRequest(view, result)
}

func (s *Synchronizer) recordInvalidation(view string) {
	if s.metrics == nil {
		return
	}
	s.metrics.GetPrometheusMetrics().RecordCacheInvalidation(view)
}
