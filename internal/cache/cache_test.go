package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/content-rewards/internal/config"
	"github.com/smartdevs17/content-rewards/internal/models"
	"github.com/smartdevs17/content-rewards/pkg/utils"
)

func TestKeys(t *testing.T) {
	account := common.HexToAddress("0x2c7536E3605D9C16a7a3D7b1898e529396a65c23")

	assert.Equal(t, "contests", ContestsKey())
	assert.Equal(t, "contest:7", ContestKey(7))
	assert.Equal(t, "submissions:7", SubmissionsKey(7))
	assert.Equal(t, "winners:7", WinnersKey(7))
	assert.Equal(t, "userSubmission:7:0x2c7536e3605d9c16a7a3d7b1898e529396a65c23", UserSubmissionKey(7, account))

	assert.Equal(t, ViewUserSubmission, ViewOf(UserSubmissionKey(7, account)))
	assert.Equal(t, ViewContests, ViewOf(ContestsKey()))
}

// backendContract runs the behaviour every backend must share
func backendContract(t *testing.T, backend Backend) {
	ctx := context.Background()

	var contest models.Contest
	found, err := backend.Get(ctx, ContestKey(1), &contest)
	require.NoError(t, err)
	assert.False(t, found)

	stored := models.Contest{ID: 1, RequiredTopic: "go", MaxWinners: 3, AcceptedCount: 1, IsActive: true}
	require.NoError(t, backend.Set(ctx, ContestKey(1), stored, time.Minute))
	require.NoError(t, backend.Set(ctx, ContestsKey(), []models.Contest{stored}, time.Minute))

	found, err = backend.Get(ctx, ContestKey(1), &contest)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, stored, contest)

	require.NoError(t, backend.Delete(ctx, ContestKey(1), "missing"))
	found, err = backend.Get(ctx, ContestKey(1), &contest)
	require.NoError(t, err)
	assert.False(t, found)

	var contests []models.Contest
	found, err = backend.Get(ctx, ContestsKey(), &contests)
	require.NoError(t, err)
	assert.True(t, found)

	require.NoError(t, backend.Clear(ctx))
	found, err = backend.Get(ctx, ContestsKey(), &contests)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemory(t *testing.T) {
	t.Run("contract", func(t *testing.T) {
		backendContract(t, NewMemory())
	})

	t.Run("expiry", func(t *testing.T) {
		current := time.Now()
		memory := NewMemory()
		memory.SetClock(func() time.Time { return current })

		ctx := context.Background()
		require.NoError(t, memory.Set(ctx, WinnersKey(1), []string{"0x01"}, 2*time.Second))

		var winners []string
		found, err := memory.Get(ctx, WinnersKey(1), &winners)
		require.NoError(t, err)
		assert.True(t, found)

		current = current.Add(2 * time.Second)
		found, err = memory.Get(ctx, WinnersKey(1), &winners)
		require.NoError(t, err)
		assert.False(t, found)
	})
}

func TestRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	backend := NewRedisWithClient(client, "content-rewards")
	defer backend.Close()

	t.Run("contract", func(t *testing.T) {
		backendContract(t, backend)
	})

	t.Run("prefix and expiry", func(t *testing.T) {
		ctx := context.Background()
		require.NoError(t, backend.Set(ctx, SubmissionsKey(3), []string{}, 2*time.Second))
		assert.True(t, mr.Exists("content-rewards:submissions:3"))

		mr.FastForward(3 * time.Second)

		var out []string
		found, err := backend.Get(ctx, SubmissionsKey(3), &out)
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("clear leaves foreign keys", func(t *testing.T) {
		ctx := context.Background()
		require.NoError(t, mr.Set("other-app:key", "v"))
		require.NoError(t, backend.Set(ctx, ContestsKey(), []int{}, time.Minute))

		require.NoError(t, backend.Clear(ctx))
		assert.True(t, mr.Exists("other-app:key"))
		assert.False(t, mr.Exists("content-rewards:contests"))
	})

	t.Run("corrupt entry", func(t *testing.T) {
		require.NoError(t, mr.Set("content-rewards:contest:9", "{not json"))
		var contest models.Contest
		_, err := backend.Get(context.Background(), ContestKey(9), &contest)
		assert.Equal(t, utils.ErrCodeDecode, utils.CodeOf(err))
	})
}

func TestNew(t *testing.T) {
	backend, err := New(config.CacheConfig{Backend: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, backend)

	mr := miniredis.RunT(t)
	backend, err = New(config.CacheConfig{Backend: "redis", RedisAddr: mr.Addr(), KeyPrefix: "x"})
	require.NoError(t, err)
	assert.IsType(t, &Redis{}, backend)
	require.NoError(t, backend.Close())

	_, err = New(config.CacheConfig{Backend: "redis", RedisAddr: mr.Addr()})
	assert.Equal(t, utils.ErrCodeConfiguration, utils.CodeOf(err))

	_, err = New(config.CacheConfig{Backend: "memcached"})
	assert.Equal(t, utils.ErrCodeConfiguration, utils.CodeOf(err))
}

func TestRedisClearWithoutPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	backend := NewRedisWithClient(client, "")
	defer backend.Close()

	require.NoError(t, mr.Set("other-app:key", "v"))

	err := backend.Clear(context.Background())
	assert.Equal(t, utils.ErrCodeConfiguration, utils.CodeOf(err))
	assert.True(t, mr.Exists("other-app:key"))
}
