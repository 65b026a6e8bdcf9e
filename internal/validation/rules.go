// Package validation pre-checks actions against the rules the contract
// enforces, so doomed writes are refused before they reach the ledger.
// The ledger stays authoritative: passing here never guarantees acceptance.
package validation

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smartdevs17/content-rewards/internal/models"
	"github.com/smartdevs17/content-rewards/pkg/utils"
)

// Rule identifies the violated constraint
type Rule string

const (
	RuleInvalidURL        Rule = "invalid_url"
	RulePlatformMismatch  Rule = "platform_mismatch"
	RuleAlreadySubmitted  Rule = "already_submitted"
	RuleContestInactive   Rule = "contest_inactive"
	RuleContestFull       Rule = "contest_full"
	RuleContestExpired    Rule = "contest_expired"
	RuleTopicRequired     Rule = "topic_required"
	RuleRewardRequired    Rule = "reward_required"
	RuleMaxWinners        Rule = "max_winners"
	RuleDeadlineInPast    Rule = "deadline_in_past"
	RuleNotCreator        Rule = "not_creator"
	RuleWalletRequired    Rule = "wallet_required"
	RuleContestIDRequired Rule = "contest_id_required"
)

// ValidationError reports a failed local pre-check
type ValidationError struct {
	Rule    Rule   `json:"rule"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", utils.ErrCodeValidation, e.Message)
}

// ErrorCode returns the validation error code
func (e *ValidationError) ErrorCode() string {
	return utils.ErrCodeValidation
}

func violation(rule Rule, field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Rule: rule, Field: field, Message: fmt.Sprintf(format, args...)}
}

// RuleOf returns the violated rule carried by err
func RuleOf(err error) (Rule, bool) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Rule, true
	}
	return "", false
}

// ValidateContentURL trims raw and checks it is an absolute URL matching the
// platform pattern. The trimmed URL is returned.
func ValidateContentURL(raw, platformPattern string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", violation(RuleInvalidURL, "content_url", "Please enter a content URL")
	}

	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", violation(RuleInvalidURL, "content_url", "Please enter a valid URL")
	}

	if !MatchesPattern(trimmed, platformPattern) {
		return "", violation(RulePlatformMismatch, "content_url",
			"URL must be from %s", platformPattern)
	}
	return trimmed, nil
}

// MatchesPattern reports whether url contains pattern, ignoring case.
// The "*" pattern matches everything.
func MatchesPattern(rawURL, pattern string) bool {
	if pattern == models.PatternAny || pattern == "" {
		return true
	}
	return strings.Contains(strings.ToLower(rawURL), strings.ToLower(pattern))
}

// CheckContestOpen verifies the three open gates in the order the contract does
func CheckContestOpen(contest *models.Contest, now time.Time) error {
	switch {
	case !contest.IsActive:
		return violation(RuleContestInactive, "", "Contest is no longer active")
	case contest.IsExpired(now):
		return violation(RuleContestExpired, "", "Contest deadline has passed")
	case contest.IsFull():
		return violation(RuleContestFull, "", "Contest has reached maximum winners")
	}
	return nil
}

// CheckNotSubmitted refuses a wallet that already has a submission
func CheckNotSubmitted(projection *models.UserSubmission) error {
	if projection != nil && projection.HasSubmitted {
		return violation(RuleAlreadySubmitted, "", "You have already submitted to this contest")
	}
	return nil
}

// ValidateSubmission runs every submit pre-check and returns the URL to send
func ValidateSubmission(contest *models.Contest, projection *models.UserSubmission, rawURL string, now time.Time) (string, error) {
	contentURL, err := ValidateContentURL(rawURL, contest.PlatformPattern)
	if err != nil {
		return "", err
	}
	if err := CheckNotSubmitted(projection); err != nil {
		return "", err
	}
	if err := CheckContestOpen(contest, now); err != nil {
		return "", err
	}
	return contentURL, nil
}

// ValidateCreateContest checks create parameters and returns them normalised
func ValidateCreateContest(params models.CreateContestParams, now time.Time) (models.CreateContestParams, error) {
	params.PlatformPattern = strings.TrimSpace(params.PlatformPattern)
	params.RequiredTopic = strings.TrimSpace(params.RequiredTopic)
	params.RewardDescription = strings.TrimSpace(params.RewardDescription)

	if params.PlatformPattern == "" {
		params.PlatformPattern = models.PatternAny
	}

	if params.RequiredTopic == "" {
		return params, violation(RuleTopicRequired, "required_topic", "Please enter a required topic")
	}
	if params.RewardDescription == "" {
		return params, violation(RuleRewardRequired, "reward_description", "Please enter a reward description")
	}
	if params.MaxWinners < 1 {
		return params, violation(RuleMaxWinners, "max_winners", "Max winners must be at least 1")
	}
	if !params.Deadline.IsZero() && !params.Deadline.After(now) {
		return params, violation(RuleDeadlineInPast, "deadline", "Deadline must be in the future")
	}
	return params, nil
}

// CanClose reports whether account may be offered the close action
func CanClose(contest *models.Contest, account common.Address) bool {
	return contest.IsActive && contest.Creator == account
}

// ValidateClose refuses closing a contest the wallet did not create or that is already closed
func ValidateClose(contest *models.Contest, account common.Address) error {
	if contest.Creator != account {
		return violation(RuleNotCreator, "", "Only contest creator can close the contest")
	}
	if !contest.IsActive {
		return violation(RuleContestInactive, "", "Contest is no longer active")
	}
	return nil
}
