package syncer

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/smartdevs17/content-rewards/internal/cache"
)

// Action names a user-initiated write
type Action string

const (
	ActionCreateContest Action = "create_contest"
	ActionSubmitContent Action = "submit_content"
	ActionCloseContest  Action = "close_contest"
)

// Write describes a completed write for invalidation purposes
type Write struct {
	Action    Action
	ContestID uint64
	Wallet    common.Address
}

// Keys returns the cached views the write can have changed
func (w Write) Keys() []string {
	switch w.Action {
	case ActionCreateContest:
		return []string{cache.ContestsKey()}
	case ActionSubmitContent:
		return []string{
			cache.SubmissionsKey(w.ContestID),
			cache.ContestKey(w.ContestID),
			cache.ContestsKey(),
			cache.WinnersKey(w.ContestID),
			cache.UserSubmissionKey(w.ContestID, w.Wallet),
		}
	case ActionCloseContest:
		return []string{cache.ContestsKey(), cache.ContestKey(w.ContestID)}
	}
	return nil
}
