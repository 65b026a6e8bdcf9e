package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// SubmissionStatus is the validation state of a submission.
// Consumers switch over every value and treat anything else as an error.
type SubmissionStatus int

const (
	StatusPending SubmissionStatus = iota + 1
	StatusAccepted
	StatusRejected
	StatusVoided
)

// ParseSubmissionStatus parses the wire representation of a status
func ParseSubmissionStatus(s string) (SubmissionStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending":
		return StatusPending, nil
	case "accepted":
		return StatusAccepted, nil
	case "rejected":
		return StatusRejected, nil
	case "voided":
		return StatusVoided, nil
	default:
		return 0, fmt.Errorf("unknown submission status %q", s)
	}
}

func (s SubmissionStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusAccepted:
		return "accepted"
	case StatusRejected:
		return "rejected"
	case StatusVoided:
		return "voided"
	default:
		return fmt.Sprintf("SubmissionStatus(%d)", int(s))
	}
}

// Valid reports whether s is one of the known statuses
func (s SubmissionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusRejected, StatusVoided:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transition can happen
func (s SubmissionStatus) IsTerminal() bool {
	switch s {
	case StatusAccepted, StatusRejected, StatusVoided:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether the state machine allows s -> next.
// Only pending moves, and only into a terminal state.
func (s SubmissionStatus) CanTransitionTo(next SubmissionStatus) bool {
	return s == StatusPending && next.IsTerminal()
}

// IsWinner reports whether the status makes the submitter a winner
func (s SubmissionStatus) IsWinner() bool {
	return s == StatusAccepted
}

func (s SubmissionStatus) MarshalJSON() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("cannot marshal %s", s)
	}
	return json.Marshal(s.String())
}

func (s *SubmissionStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseSubmissionStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Submission is one wallet's entry in one contest
type Submission struct {
	ContestID       uint64           `json:"contest_id" mapstructure:"contest_id"`
	Submitter       common.Address   `json:"submitter" mapstructure:"submitter"`
	ContentURL      string           `json:"content_url" mapstructure:"content_url"`
	Status          SubmissionStatus `json:"status" mapstructure:"status"`
	RejectionReason string           `json:"rejection_reason,omitempty" mapstructure:"rejection_reason"`
}

// UserSubmission is the per-(contest, wallet) projection used to gate submit
type UserSubmission struct {
	ContestID       uint64           `json:"contest_id" mapstructure:"contest_id"`
	Wallet          common.Address   `json:"wallet" mapstructure:"wallet"`
	HasSubmitted    bool             `json:"has_submitted" mapstructure:"has_submitted"`
	ContentURL      string           `json:"content_url,omitempty" mapstructure:"content_url"`
	Status          SubmissionStatus `json:"status,omitempty" mapstructure:"status"`
	RejectionReason string           `json:"rejection_reason,omitempty" mapstructure:"rejection_reason"`
}

// Submission returns the full record when the wallet has submitted
func (u *UserSubmission) Submission() (*Submission, bool) {
	if !u.HasSubmitted {
		return nil, false
	}
	return &Submission{
		ContestID:       u.ContestID,
		Submitter:       u.Wallet,
		ContentURL:      u.ContentURL,
		Status:          u.Status,
		RejectionReason: u.RejectionReason,
	}, true
}

// SubmitResult is the validator decision carried by a submit receipt
type SubmitResult struct {
	Status SubmissionStatus `json:"status" mapstructure:"status"`
	Reason string           `json:"reason" mapstructure:"reason"`
}

// Winners derives the winner sequence from submissions in ledger order
func Winners(submissions []*Submission) []common.Address {
	winners := make([]common.Address, 0)
	for _, s := range submissions {
		if s.Status.IsWinner() {
			winners = append(winners, s.Submitter)
		}
	}
	return winners
}
