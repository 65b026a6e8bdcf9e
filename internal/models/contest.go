package models

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// PatternAny is the platform pattern that matches every URL
const PatternAny = "*"

// Contest represents a content reward contest as mirrored from the ledger
type Contest struct {
	ID                uint64         `json:"contest_id" mapstructure:"contest_id"`
	Creator           common.Address `json:"creator" mapstructure:"creator"`
	PlatformPattern   string         `json:"platform_pattern" mapstructure:"platform_pattern"`
	RequiredTopic     string         `json:"required_topic" mapstructure:"required_topic"`
	RewardDescription string         `json:"reward_description" mapstructure:"reward_description"`
	MaxWinners        uint64         `json:"max_winners" mapstructure:"max_winners"`
	Deadline          int64          `json:"deadline" mapstructure:"deadline"` // unix seconds, 0 = none
	AcceptedCount     uint64         `json:"accepted_count" mapstructure:"accepted_count"`
	IsActive          bool           `json:"is_active" mapstructure:"is_active"`
}

// SpotsRemaining returns the free winner slots, never negative
func (c *Contest) SpotsRemaining() uint64 {
	if c.AcceptedCount >= c.MaxWinners {
		return 0
	}
	return c.MaxWinners - c.AcceptedCount
}

// HasDeadline reports whether the contest carries a deadline
func (c *Contest) HasDeadline() bool {
	return c.Deadline != 0
}

// DeadlineTime returns the deadline as a time, zero when there is none
func (c *Contest) DeadlineTime() time.Time {
	if !c.HasDeadline() {
		return time.Time{}
	}
	return time.Unix(c.Deadline, 0)
}

// IsExpired reports whether the deadline has been reached at now
func (c *Contest) IsExpired(now time.Time) bool {
	return c.HasDeadline() && !now.Before(c.DeadlineTime())
}

// IsFull reports whether every winner slot is taken
func (c *Contest) IsFull() bool {
	return c.SpotsRemaining() == 0
}

// IsOpen reports whether the contest accepts submissions at now.
// All gates are derived from current state on every call.
func (c *Contest) IsOpen(now time.Time) bool {
	return c.IsActive && !c.IsFull() && !c.IsExpired(now)
}

// MatchesAnyPlatform reports whether the contest accepts URLs from any platform
func (c *Contest) MatchesAnyPlatform() bool {
	return c.PlatformPattern == PatternAny
}

// ContestView is the JSON projection served to consumers, including derived fields
type ContestView struct {
	Contest
	SpotsRemaining uint64 `json:"spots_remaining"`
	IsOpen         bool   `json:"is_open"`
	IsExpired      bool   `json:"is_expired"`
}

// View derives the consumer projection at now
func (c *Contest) View(now time.Time) ContestView {
	return ContestView{
		Contest:        *c,
		SpotsRemaining: c.SpotsRemaining(),
		IsOpen:         c.IsOpen(now),
		IsExpired:      c.IsExpired(now),
	}
}

// CreateContestParams holds the arguments of a create contest write
type CreateContestParams struct {
	PlatformPattern   string    `json:"platform_pattern"`
	RequiredTopic     string    `json:"required_topic"`
	RewardDescription string    `json:"reward_description"`
	MaxWinners        int64     `json:"max_winners"`
	Deadline          time.Time `json:"deadline"` // zero = none
}

// DeadlineEpoch returns the deadline in unix seconds, 0 when unset
func (p CreateContestParams) DeadlineEpoch() int64 {
	if p.Deadline.IsZero() {
		return 0
	}
	return p.Deadline.Unix()
}
