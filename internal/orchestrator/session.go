package orchestrator

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smartdevs17/content-rewards/internal/config"
	"github.com/smartdevs17/content-rewards/internal/models"
	"github.com/smartdevs17/content-rewards/internal/syncer"
	"github.com/smartdevs17/content-rewards/internal/wallet"
)

// Contract is the ledger binding an action runs against
type Contract interface {
	syncer.Source

	CreateContest(ctx context.Context, signer wallet.Signer, params models.CreateContestParams) (models.TxHandle, error)
	SubmitContent(ctx context.Context, signer wallet.Signer, contestID uint64, contentURL string) (models.TxHandle, error)
	CloseContest(ctx context.Context, signer wallet.Signer, contestID uint64) (models.TxHandle, error)
	Receipt(ctx context.Context, hash common.Hash) (*models.Receipt, error)
}

// Session is the context every action is issued in: which ledger, which
// contract and which wallet. It is immutable; a wallet change produces a new
// session.
type Session struct {
	endpoint        string
	contractAddress string
	contract        Contract
	signer          wallet.Signer
}

// NewSession creates a session. contract is nil when no contract address is
// configured and signer is nil when no wallet is connected.
func NewSession(cfg *config.LedgerConfig, contract Contract, signer wallet.Signer) *Session {
	s := &Session{contract: contract, signer: signer}
	if cfg != nil {
		s.endpoint = cfg.Endpoint
		s.contractAddress = cfg.ContractAddress
	}
	return s
}

// WithWallet returns a copy of the session acting as signer
func (s *Session) WithWallet(signer wallet.Signer) *Session {
	next := *s
	next.signer = signer
	return &next
}

// Configured reports whether a contract is available
func (s *Session) Configured() bool {
	return s != nil && s.contractAddress != "" && s.contract != nil
}

// Wallet returns the acting wallet address, if one is connected
func (s *Session) Wallet() (common.Address, bool) {
	if s == nil || s.signer == nil {
		return common.Address{}, false
	}
	return s.signer.Address(), true
}

// Signer returns the acting wallet's signer, or nil
func (s *Session) Signer() wallet.Signer {
	if s == nil {
		return nil
	}
	return s.signer
}

func (s *Session) Endpoint() string        { return s.endpoint }
func (s *Session) ContractAddress() string { return s.contractAddress }
func (s *Session) Contract() Contract      { return s.contract }
