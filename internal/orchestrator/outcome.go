package orchestrator

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/smartdevs17/content-rewards/internal/ledger"
	"github.com/smartdevs17/content-rewards/internal/models"
	"github.com/smartdevs17/content-rewards/internal/notification"
	"github.com/smartdevs17/content-rewards/internal/syncer"
	"github.com/smartdevs17/content-rewards/pkg/utils"
)

// Status is the business result of a finished action
type Status string

const (
	StatusCreated  Status = "created"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
	StatusVoided   Status = "voided"
	StatusClosed   Status = "closed"
)

// Outcome is what a finalized write meant. Rejected and voided submissions
// are outcomes, not errors.
type Outcome struct {
	Action    syncer.Action  `json:"action"`
	Status    Status         `json:"status"`
	ContestID *uint64        `json:"contest_id,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	TxHash    common.Hash    `json:"tx_hash"`
	Wallet    common.Address `json:"wallet"`
}

// IsBusinessRejection reports whether the validator turned the submission down
func (o *Outcome) IsBusinessRejection() bool {
	return o.Status == StatusRejected || o.Status == StatusVoided
}

func (o *Outcome) kind() notification.Kind {
	return notification.Kind(o.Status)
}

// interpret reads the business outcome out of a successful receipt
func interpret(action syncer.Action, contestID *uint64, receipt *models.Receipt) (*Outcome, error) {
	out := &Outcome{Action: action, ContestID: contestID, TxHash: receipt.Hash}

	switch action {
	case syncer.ActionCreateContest:
		out.Status = StatusCreated
		if id, ok := ledger.DecodeContestID(receipt.Result); ok {
			out.ContestID = &id
		}

	case syncer.ActionSubmitContent:
		result, err := ledger.DecodeSubmitResult(receipt.Result)
		if err != nil {
			return nil, err
		}
		switch result.Status {
		case models.StatusAccepted:
			out.Status = StatusAccepted
		case models.StatusRejected:
			out.Status = StatusRejected
		case models.StatusVoided:
			out.Status = StatusVoided
		case models.StatusPending:
			return nil, utils.NewAppError(utils.ErrCodeDecode, "Submission still pending after finalization")
		default:
			return nil, utils.NewAppError(utils.ErrCodeDecode, "Unknown submission status", result.Status.String())
		}
		out.Reason = result.Reason

	case syncer.ActionCloseContest:
		out.Status = StatusClosed

	default:
		return nil, utils.NewAppError(utils.ErrCodeInternal, "Unknown action", string(action))
	}

	return out, nil
}
