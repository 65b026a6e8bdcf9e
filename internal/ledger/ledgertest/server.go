package ledgertest

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/smartdevs17/content-rewards/internal/config"
	"github.com/smartdevs17/content-rewards/internal/ledger"
	"github.com/smartdevs17/content-rewards/internal/metrics"
)

// ChainID reported by the simulated node
const ChainID = 61999

type genService struct {
	contract *Contract
}

func (s *genService) Call(ctx context.Context, req ledger.CallRequest) (interface{}, error) {
	return s.contract.read(req)
}

func (s *genService) SendTransaction(ctx context.Context, req ledger.SendRequest) (common.Hash, error) {
	return s.contract.send(req)
}

func (s *genService) GetTransactionReceipt(ctx context.Context, hash common.Hash) (interface{}, error) {
	return s.contract.receipt(hash), nil
}

type ethService struct{}

func (ethService) ChainId() hexutil.Uint64 {
	return hexutil.Uint64(ChainID)
}

// Server returns a JSON-RPC server exposing the contract
func (c *Contract) Server() (*rpc.Server, error) {
	server := rpc.NewServer()
	if err := server.RegisterName("gen", &genService{contract: c}); err != nil {
		return nil, err
	}
	if err := server.RegisterName("eth", ethService{}); err != nil {
		return nil, err
	}
	return server, nil
}

// LedgerConfig returns a ledger configuration pointing at the simulated contract
func LedgerConfig() *config.LedgerConfig {
	return &config.LedgerConfig{
		Endpoint:        "inproc://ledgertest",
		ContractAddress: Address.Hex(),
		RequestTimeout:  5 * time.Second,
		RetryAttempts:   3,
		RetryDelay:      time.Millisecond,
		CallMethod:      "gen_call",
		SendMethod:      "gen_sendTransaction",
		ReceiptMethod:   "gen_getTransactionReceipt",
	}
}

// Dial connects a ledger client to the contract over an in-process RPC connection
func (c *Contract) Dial(metricsManager *metrics.Manager) (*ledger.RPCClient, *ledger.ConnectionManager, error) {
	server, err := c.Server()
	if err != nil {
		return nil, nil, err
	}

	cfg := LedgerConfig()
	manager := ledger.NewConnectionManagerWithClient(cfg, rpc.DialInProc(server), metricsManager)
	client, err := ledger.NewRPCClient(manager, cfg)
	if err != nil {
		return nil, nil, err
	}
	return client, manager, nil
}
