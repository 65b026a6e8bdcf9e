// Package cache stores serialised read-model views with a freshness window.
package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smartdevs17/content-rewards/internal/config"
	"github.com/smartdevs17/content-rewards/pkg/utils"
)

// Backend stores JSON encoded views
type Backend interface {
	// Get decodes the value at key into dest and reports whether it was present and fresh
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// Clear drops every key managed by the backend
	Clear(ctx context.Context) error
	Close() error
}

// View keys
const (
	ViewContests       = "contests"
	ViewContest        = "contest"
	ViewSubmissions    = "submissions"
	ViewWinners        = "winners"
	ViewUserSubmission = "userSubmission"
)

// ContestsKey is the key of the global contest list
func ContestsKey() string {
	return ViewContests
}

// ContestKey is the key of one contest summary
func ContestKey(contestID uint64) string {
	return fmt.Sprintf("%s:%d", ViewContest, contestID)
}

// SubmissionsKey is the key of a contest's submission list
func SubmissionsKey(contestID uint64) string {
	return fmt.Sprintf("%s:%d", ViewSubmissions, contestID)
}

// WinnersKey is the key of a contest's winner list
func WinnersKey(contestID uint64) string {
	return fmt.Sprintf("%s:%d", ViewWinners, contestID)
}

// UserSubmissionKey is the key of one wallet's projection for a contest
func UserSubmissionKey(contestID uint64, account common.Address) string {
	return fmt.Sprintf("%s:%d:%s", ViewUserSubmission, contestID, strings.ToLower(account.Hex()))
}

// ViewOf returns the view name a key belongs to
func ViewOf(key string) string {
	if i := strings.IndexByte(key, ':'); i >= 0 {
		return key[:i]
	}
	return key
}

// New creates the configured backend
func New(cfg config.CacheConfig) (Backend, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "memory":
		return NewMemory(), nil
	case "redis":
		backend, err := NewRedis(cfg)
		if err != nil {
			return nil, err
		}
		return backend, nil
	default:
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Unsupported cache backend", cfg.Backend)
	}
}
