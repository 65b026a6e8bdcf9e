package syncer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/content-rewards/internal/cache"
	"github.com/smartdevs17/content-rewards/internal/metrics"
	"github.com/smartdevs17/content-rewards/internal/models"
	"github.com/smartdevs17/content-rewards/pkg/utils"
)

// countingSource serves fixed data and counts ledger reads per view
type countingSource struct {
	mu       sync.Mutex
	reads    map[string]int
	contests []*models.Contest
	fail     error
}

func newCountingSource() *countingSource {
	return &countingSource{
		reads: make(map[string]int),
		contests: []*models.Contest{
			{ID: 0, RequiredTopic: "go", MaxWinners: 2, IsActive: true},
			{ID: 1, RequiredTopic: "rust", MaxWinners: 1, AcceptedCount: 1},
		},
	}
}

func (s *countingSource) hit(view string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads[view]++
	return s.fail
}

func (s *countingSource) count(view string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads[view]
}

func (s *countingSource) ListContests(ctx context.Context) ([]*models.Contest, error) {
	if err := s.hit(cache.ViewContests); err != nil {
		return nil, err
	}
	return s.contests, nil
}

func (s *countingSource) GetContest(ctx context.Context, id uint64) (*models.Contest, error) {
	if err := s.hit(cache.ViewContest); err != nil {
		return nil, err
	}
	c := *s.contests[id]
	return &c, nil
}

func (s *countingSource) ListSubmissions(ctx context.Context, id uint64) ([]*models.Submission, error) {
	if err := s.hit(cache.ViewSubmissions); err != nil {
		return nil, err
	}
	return []*models.Submission{{ContestID: id, Submitter: common.HexToAddress("0x01"), ContentURL: "https://a.b/c", Status: models.StatusAccepted}}, nil
}

func (s *countingSource) ListWinners(ctx context.Context, id uint64) ([]common.Address, error) {
	if err := s.hit(cache.ViewWinners); err != nil {
		return nil, err
	}
	return []common.Address{common.HexToAddress("0x01")}, nil
}

func (s *countingSource) GetUserSubmission(ctx context.Context, id uint64, account common.Address) (*models.UserSubmission, error) {
	if err := s.hit(cache.ViewUserSubmission); err != nil {
		return nil, err
	}
	return &models.UserSubmission{ContestID: id, Wallet: account}, nil
}

func TestWriteKeys(t *testing.T) {
	wallet := common.HexToAddress("0xabc")

	tests := []struct {
		name  string
		write Write
		keys  []string
	}{
		{
			name:  "create",
			write: Write{Action: ActionCreateContest},
			keys:  []string{"contests"},
		},
		{
			name:  "submit",
			write: Write{Action: ActionSubmitContent, ContestID: 4, Wallet: wallet},
			keys: []string{
				"submissions:4",
				"contest:4",
				"contests",
				"winners:4",
				"userSubmission:4:0x0000000000000000000000000000000000000abc",
			},
		},
		{
			name:  "close",
			write: Write{Action: ActionCloseContest, ContestID: 4},
			keys:  []string{"contests", "contest:4"},
		},
		{
			name:  "unknown",
			write: Write{Action: "transfer"},
			keys:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ElementsMatch(t, tt.keys, tt.write.Keys())
		})
	}
}

func TestSynchronizerCaching(t *testing.T) {
	source := newCountingSource()
	metricsManager := metrics.NewManager()
	s := New(source, cache.NewMemory(), time.Minute, metricsManager)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		contests, err := s.Contests(ctx)
		require.NoError(t, err)
		require.Len(t, contests, 2)
	}
	assert.Equal(t, 1, source.count(cache.ViewContests))

	hits := metricsManager.GetPrometheusMetrics().CacheRequestsTotal.WithLabelValues(cache.ViewContests, "hit")
	assert.Equal(t, float64(2), testutil.ToFloat64(hits))

	contest, err := s.Contest(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), contest.SpotsRemaining())
	assert.False(t, contest.IsOpen(time.Now()))
}

func TestSynchronizerStaleTime(t *testing.T) {
	source := newCountingSource()
	current := time.Now()
	memory := cache.NewMemory()
	memory.SetClock(func() time.Time { return current })

	s := New(source, memory, 2*time.Second, nil)
	ctx := context.Background()

	_, err := s.Winners(ctx, 0)
	require.NoError(t, err)
	current = current.Add(time.Second)
	_, err = s.Winners(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, source.count(cache.ViewWinners))

	current = current.Add(time.Second)
	_, err = s.Winners(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, source.count(cache.ViewWinners))
}

func TestSynchronizerInvalidateSubmit(t *testing.T) {
	source := newCountingSource()
	s := New(source, cache.NewMemory(), time.Minute, nil)
	ctx := context.Background()

	mine := common.HexToAddress("0xaaa")
	theirs := common.HexToAddress("0xbbb")

	load := func() {
		_, err := s.Contests(ctx)
		require.NoError(t, err)
		_, err = s.Detail(ctx, 0)
		require.NoError(t, err)
		_, err = s.Contest(ctx, 1)
		require.NoError(t, err)
		_, err = s.UserSubmission(ctx, 0, mine)
		require.NoError(t, err)
		_, err = s.UserSubmission(ctx, 0, theirs)
		require.NoError(t, err)
	}

	load()
	load()
	assert.Equal(t, 1, source.count(cache.ViewContests))
	assert.Equal(t, 2, source.count(cache.ViewContest))
	assert.Equal(t, 2, source.count(cache.ViewUserSubmission))

	require.NoError(t, s.Invalidate(ctx, Write{Action: ActionSubmitContent, ContestID: 0, Wallet: mine}))
	load()

	assert.Equal(t, 2, source.count(cache.ViewContests))
	assert.Equal(t, 3, source.count(cache.ViewContest), "only contest 0 is reloaded")
	assert.Equal(t, 2, source.count(cache.ViewSubmissions))
	assert.Equal(t, 2, source.count(cache.ViewWinners))
	assert.Equal(t, 3, source.count(cache.ViewUserSubmission), "other wallets keep their projection")
}

func TestSynchronizerInvalidateCreateAndClose(t *testing.T) {
	source := newCountingSource()
	s := New(source, cache.NewMemory(), time.Minute, nil)
	ctx := context.Background()

	_, err := s.Contests(ctx)
	require.NoError(t, err)
	_, err = s.Detail(ctx, 0)
	require.NoError(t, err)

	require.NoError(t, s.Invalidate(ctx, Write{Action: ActionCreateContest}))
	_, err = s.Contests(ctx)
	require.NoError(t, err)
	_, err = s.Detail(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, source.count(cache.ViewContests))
	assert.Equal(t, 1, source.count(cache.ViewContest))

	require.NoError(t, s.Invalidate(ctx, Write{Action: ActionCloseContest, ContestID: 0}))
	_, err = s.Detail(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, source.count(cache.ViewContest))
	assert.Equal(t, 1, source.count(cache.ViewSubmissions))
}

func TestSynchronizerFailedLoadKeepsCache(t *testing.T) {
	source := newCountingSource()
	s := New(source, cache.NewMemory(), time.Minute, nil)
	ctx := context.Background()

	source.fail = errors.New("ledger unreachable")
	_, err := s.Contests(ctx)
	require.Error(t, err)

	source.fail = nil
	contests, err := s.Contests(ctx)
	require.NoError(t, err)
	assert.Len(t, contests, 2)
	assert.Equal(t, 2, source.count(cache.ViewContests))
}

func TestSynchronizerRefocus(t *testing.T) {
	source := newCountingSource()
	s := New(source, cache.NewMemory(), time.Minute, nil)
	ctx := context.Background()

	_, err := s.Detail(ctx, 0)
	require.NoError(t, err)

	contests, err := s.Refocus(ctx)
	require.NoError(t, err)
	assert.Len(t, contests, 2)
	assert.Equal(t, 1, source.count(cache.ViewContests))

	_, err = s.Detail(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, source.count(cache.ViewContest))
}

func TestDetailDerivesView(t *testing.T) {
	s := New(newCountingSource(), cache.NewMemory(), time.Minute, nil)

	detail, err := s.Detail(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), detail.Contest.SpotsRemaining)
	assert.True(t, detail.Contest.IsOpen)
	assert.Len(t, detail.Submissions, 1)
	assert.Len(t, detail.Winners, 1)
}

// gatedSource holds user submission reads until released. The answer is
// taken when the read starts, like a ledger snapshot.
type gatedSource struct {
	*countingSource
	mu        sync.Mutex
	submitted bool
	started   chan struct{}
	release   chan struct{}
}

func newGatedSource() *gatedSource {
	return &gatedSource{
		countingSource: newCountingSource(),
		started:        make(chan struct{}, 8),
		release:        make(chan struct{}),
	}
}

func (g *gatedSource) setSubmitted(v bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.submitted = v
}

func (g *gatedSource) GetUserSubmission(ctx context.Context, id uint64, account common.Address) (*models.UserSubmission, error) {
	g.mu.Lock()
	submitted := g.submitted
	g.mu.Unlock()

	g.hit(cache.ViewUserSubmission)
	g.started <- struct{}{}
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &models.UserSubmission{ContestID: id, Wallet: account, HasSubmitted: submitted}, nil
}

func TestLoadOverlappingInvalidationIsNotCached(t *testing.T) {
	src := newGatedSource()
	s := New(src, cache.NewMemory(), time.Hour, nil)
	ctx := context.Background()
	account := common.HexToAddress("0xabc")

	type result struct {
		view *models.UserSubmission
		err  error
	}
	done := make(chan result, 1)
	go func() {
		view, err := s.UserSubmission(ctx, 0, account)
		done <- result{view, err}
	}()
	<-src.started

	// The submit lands while the read is still out.
	src.setSubmitted(true)
	require.NoError(t, s.Invalidate(ctx, Write{Action: ActionSubmitContent, ContestID: 0, Wallet: account}))
	close(src.release)

	first := <-done
	require.NoError(t, first.err)
	assert.False(t, first.view.HasSubmitted)

	view, err := s.UserSubmission(ctx, 0, account)
	require.NoError(t, err)
	assert.True(t, view.HasSubmitted)
	assert.Equal(t, 2, src.count(cache.ViewUserSubmission))
}

func TestSharedLoadSurvivesOneCallerCancelling(t *testing.T) {
	src := newGatedSource()
	s := New(src, cache.NewMemory(), time.Hour, nil)
	account := common.HexToAddress("0xabc")

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := s.UserSubmission(ctxA, 0, account)
		errA <- err
	}()
	<-src.started

	errB := make(chan error, 1)
	go func() {
		_, err := s.UserSubmission(context.Background(), 0, account)
		errB <- err
	}()
	// let B join the flight
	time.Sleep(20 * time.Millisecond)

	cancelA()
	err := <-errA
	assert.True(t, utils.IsCode(err, utils.ErrCodeCancelled))

	close(src.release)
	assert.NoError(t, <-errB)
	assert.Equal(t, 1, src.count(cache.ViewUserSubmission))
}

func TestZeroStaleTimeDisablesCaching(t *testing.T) {
	src := newCountingSource()
	s := New(src, cache.NewMemory(), 0, nil)
	ctx := context.Background()

	_, err := s.Contests(ctx)
	require.NoError(t, err)

	src.mu.Lock()
	src.contests[0].AcceptedCount = 1
	src.mu.Unlock()

	contests, err := s.Contests(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), contests[0].AcceptedCount)
	assert.Equal(t, 2, src.count(cache.ViewContests))
}
