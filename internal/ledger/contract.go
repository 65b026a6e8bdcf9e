package ledger

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"

	"github.com/smartdevs17/content-rewards/internal/models"
	"github.com/smartdevs17/content-rewards/internal/wallet"
	"github.com/smartdevs17/content-rewards/pkg/utils"
)

// Contract method names
const (
	MethodGetAllContests    = "get_all_contests"
	MethodGetContest        = "get_contest"
	MethodGetSubmissions    = "get_submissions"
	MethodGetWinners        = "get_winners"
	MethodGetUserSubmission = "get_user_submission"
	MethodCreateContest     = "create_contest"
	MethodSubmitContent     = "submit_content"
	MethodCloseContest      = "close_contest"
)

// ContentRewards is a typed binding over the contest contract
type ContentRewards struct {
	client Client
	logger *logrus.Entry
}

// NewContentRewards creates a contract binding
func NewContentRewards(client Client) *ContentRewards {
	return &ContentRewards{
		client: client,
		logger: utils.ComponentLogger("contract"),
	}
}

// ListContests returns every contest in creation order
func (c *ContentRewards) ListContests(ctx context.Context) ([]*models.Contest, error) {
	value, err := c.client.Read(ctx, MethodGetAllContests)
	if err != nil {
		return nil, err
	}

	rows, err := asList(value)
	if err != nil {
		return nil, err
	}

	contests := make([]*models.Contest, 0, len(rows))
	for _, row := range rows {
		var contest models.Contest
		if err := Decode(row, &contest); err != nil {
			return nil, err
		}
		contests = append(contests, &contest)
	}
	return contests, nil
}

// GetContest returns one contest
func (c *ContentRewards) GetContest(ctx context.Context, contestID uint64) (*models.Contest, error) {
	value, err := c.client.Read(ctx, MethodGetContest, contestID)
	if err != nil {
		return nil, err
	}
	if value == nil {
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "Contest does not exist", fmt.Sprint(contestID))
	}

	var contest models.Contest
	if err := Decode(value, &contest); err != nil {
		return nil, err
	}
	contest.ID = contestID
	return &contest, nil
}

// ListSubmissions returns a contest's submissions in ledger order
func (c *ContentRewards) ListSubmissions(ctx context.Context, contestID uint64) ([]*models.Submission, error) {
	value, err := c.client.Read(ctx, MethodGetSubmissions, contestID)
	if err != nil {
		return nil, err
	}

	rows, err := asList(value)
	if err != nil {
		return nil, err
	}

	submissions := make([]*models.Submission, 0, len(rows))
	for _, row := range rows {
		var submission models.Submission
		if err := Decode(row, &submission); err != nil {
			return nil, err
		}
		submission.ContestID = contestID
		submissions = append(submissions, &submission)
	}
	return submissions, nil
}

// ListWinners returns accepted wallets in acceptance order
func (c *ContentRewards) ListWinners(ctx context.Context, contestID uint64) ([]common.Address, error) {
	value, err := c.client.Read(ctx, MethodGetWinners, contestID)
	if err != nil {
		return nil, err
	}

	rows, err := asList(value)
	if err != nil {
		return nil, err
	}

	winners := make([]common.Address, 0, len(rows))
	if err := Decode(rows, &winners); err != nil {
		return nil, err
	}
	return winners, nil
}

// GetUserSubmission returns the wallet's submission projection for a contest
func (c *ContentRewards) GetUserSubmission(ctx context.Context, contestID uint64, account common.Address) (*models.UserSubmission, error) {
	value, err := c.client.Read(ctx, MethodGetUserSubmission, contestID, account.Hex())
	if err != nil {
		return nil, err
	}

	var projection models.UserSubmission
	if value != nil {
		if err := Decode(value, &projection); err != nil {
			return nil, err
		}
	}
	projection.ContestID = contestID
	projection.Wallet = account
	return &projection, nil
}

// CreateContest issues a create contest write
func (c *ContentRewards) CreateContest(ctx context.Context, signer wallet.Signer, params models.CreateContestParams) (models.TxHandle, error) {
	return c.client.Write(ctx, signer, MethodCreateContest,
		params.PlatformPattern,
		params.RequiredTopic,
		params.RewardDescription,
		params.MaxWinners,
		params.DeadlineEpoch(),
	)
}

// SubmitContent issues a submit content write
func (c *ContentRewards) SubmitContent(ctx context.Context, signer wallet.Signer, contestID uint64, contentURL string) (models.TxHandle, error) {
	return c.client.Write(ctx, signer, MethodSubmitContent, contestID, contentURL)
}

// CloseContest issues a close contest write
func (c *ContentRewards) CloseContest(ctx context.Context, signer wallet.Signer, contestID uint64) (models.TxHandle, error) {
	return c.client.Write(ctx, signer, MethodCloseContest, contestID)
}

// Receipt fetches a write's receipt through the bound client
func (c *ContentRewards) Receipt(ctx context.Context, hash common.Hash) (*models.Receipt, error) {
	return c.client.Receipt(ctx, hash)
}

// DecodeContestID extracts the created contest id from a create receipt result
func DecodeContestID(result interface{}) (uint64, bool) {
	switch v := Normalize(result).(type) {
	case nil:
		return 0, false
	case map[string]interface{}:
		for _, key := range []string{"contest_id", "id", "result"} {
			if inner, ok := v[key]; ok {
				return DecodeContestID(inner)
			}
		}
		return 0, false
	default:
		id, err := cast.ToUint64E(v)
		if err != nil {
			return 0, false
		}
		return id, true
	}
}

// DecodeSubmitResult extracts the validator decision from a submit receipt result
func DecodeSubmitResult(result interface{}) (*models.SubmitResult, error) {
	value := Normalize(result)
	if value == nil {
		return nil, utils.NewAppError(utils.ErrCodeDecode, "Submit receipt carries no result")
	}

	var out models.SubmitResult
	if err := Decode(value, &out); err != nil {
		return nil, err
	}
	if !out.Status.IsTerminal() {
		return nil, utils.NewAppError(utils.ErrCodeDecode, "Submit result has no terminal status", out.Status.String())
	}
	return &out, nil
}

func asList(value interface{}) ([]interface{}, error) {
	switch v := value.(type) {
	case nil:
		return []interface{}{}, nil
	case []interface{}:
		return v, nil
	default:
		return nil, utils.NewAppError(utils.ErrCodeDecode, "Expected a list result", fmt.Sprintf("%T", value))
	}
}
