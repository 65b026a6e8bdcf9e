package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/content-rewards/internal/config"
	"github.com/smartdevs17/content-rewards/internal/models"
	"github.com/smartdevs17/content-rewards/internal/wallet"
	"github.com/smartdevs17/content-rewards/pkg/utils"
)

// Reader performs side-effect-free contract reads
type Reader interface {
	Read(ctx context.Context, method string, args ...interface{}) (interface{}, error)
}

// Writer submits state-changing contract calls
type Writer interface {
	Write(ctx context.Context, signer wallet.Signer, method string, args ...interface{}) (models.TxHandle, error)
}

// ReceiptFetcher reads transaction receipts. A nil receipt with a nil error
// means the ledger does not know the transaction yet.
type ReceiptFetcher interface {
	Receipt(ctx context.Context, hash common.Hash) (*models.Receipt, error)
}

// Client is the full ledger client surface
type Client interface {
	Reader
	Writer
	ReceiptFetcher
}

// CallRequest is the parameter object of a contract read
type CallRequest struct {
	To     string        `json:"to"`
	From   string        `json:"from,omitempty"`
	Method string        `json:"method"`
	Args   []interface{} `json:"args"`
}

// CallPayload is the signed body of a contract write
type CallPayload struct {
	Method string        `json:"method"`
	Args   []interface{} `json:"args"`
	Nonce  uint64        `json:"nonce"`
}

// SendRequest is the parameter object of a contract write
type SendRequest struct {
	To        string `json:"to"`
	From      string `json:"from"`
	Data      string `json:"data"`
	Signature string `json:"signature"`
}

// RPCClient talks to the contract through a connection manager
type RPCClient struct {
	manager  Manager
	config   *config.LedgerConfig
	contract common.Address
	nonce    atomic.Uint64
	logger   *logrus.Entry
}

// NewRPCClient creates a client bound to the configured contract address
func NewRPCClient(manager Manager, cfg *config.LedgerConfig) (*RPCClient, error) {
	if strings.TrimSpace(cfg.ContractAddress) == "" {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Contract address is not configured")
	}
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Invalid contract address", cfg.ContractAddress)
	}

	c := &RPCClient{
		manager:  manager,
		config:   cfg,
		contract: common.HexToAddress(cfg.ContractAddress),
		logger:   utils.ComponentLogger("ledger_client"),
	}
	c.nonce.Store(uint64(time.Now().UnixNano()))
	return c, nil
}

// Contract returns the bound contract address
func (c *RPCClient) Contract() common.Address {
	return c.contract
}

// Read calls a view method. Transport failures are retried; JSON-RPC errors are not.
func (c *RPCClient) Read(ctx context.Context, method string, args ...interface{}) (interface{}, error) {
	req := CallRequest{
		To:     c.contract.Hex(),
		Method: method,
		Args:   wireArgs(args),
	}

	attempts := c.config.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		var raw json.RawMessage
		err := c.manager.Call(ctx, &raw, "read", c.config.CallMethod, req)
		if err == nil {
			value, decodeErr := decodeJSON(raw)
			if decodeErr != nil {
				return nil, utils.WrapAppError(utils.ErrCodeDecode, "Malformed read result", decodeErr)
			}
			return value, nil
		}

		lastErr = err
		if !retryable(ctx, err) {
			break
		}

		c.logger.WithFields(logrus.Fields{
			"method":  method,
			"attempt": attempt,
			"error":   err,
		}).Warn("Read failed, retrying")

		if attempt < attempts {
			select {
			case <-ctx.Done():
				return nil, classify(ctx, ctx.Err(), "Read cancelled")
			case <-time.After(c.config.RetryDelay):
			}
		}
	}

	return nil, classify(ctx, lastErr, "Read "+method+" failed")
}

// Write signs and submits a state-changing call exactly once
func (c *RPCClient) Write(ctx context.Context, signer wallet.Signer, method string, args ...interface{}) (models.TxHandle, error) {
	if signer == nil {
		return models.TxHandle{}, utils.NewAppError(utils.ErrCodeConfiguration, "No wallet connected")
	}

	payload, err := json.Marshal(CallPayload{
		Method: method,
		Args:   wireArgs(args),
		Nonce:  c.nonce.Add(1),
	})
	if err != nil {
		return models.TxHandle{}, utils.WrapAppError(utils.ErrCodeInternal, "Failed to encode call payload", err)
	}

	signature, err := signer.Sign(ctx, utils.PayloadHash(payload))
	if err != nil {
		if utils.CodeOf(err) != "" {
			return models.TxHandle{}, err
		}
		return models.TxHandle{}, classify(ctx, err, "Failed to sign "+method)
	}

	from := signer.Address()
	req := SendRequest{
		To:        c.contract.Hex(),
		From:      from.Hex(),
		Data:      hexutil.Encode(payload),
		Signature: hexutil.Encode(signature),
	}

	var hash common.Hash
	if err := c.manager.Call(ctx, &hash, "write", c.config.SendMethod, req); err != nil {
		return models.TxHandle{}, classify(ctx, err, "Write "+method+" failed")
	}

	handle := models.TxHandle{
		Hash:      hash,
		Method:    method,
		From:      from.Hex(),
		Submitted: time.Now(),
	}

	c.logger.WithFields(logrus.Fields{
		"method":  method,
		"from":    handle.From,
		"tx_hash": hash.Hex(),
	}).Info("Write submitted")

	return handle, nil
}

// Receipt fetches the current receipt for a transaction
func (c *RPCClient) Receipt(ctx context.Context, hash common.Hash) (*models.Receipt, error) {
	var raw json.RawMessage
	if err := c.manager.Call(ctx, &raw, "receipt", c.config.ReceiptMethod, hash); err != nil {
		return nil, classify(ctx, err, "Receipt lookup failed")
	}

	value, err := decodeJSON(raw)
	if err != nil {
		return nil, utils.WrapAppError(utils.ErrCodeDecode, "Malformed receipt", err)
	}
	if value == nil {
		return nil, nil
	}

	var receipt models.Receipt
	if err := Decode(value, &receipt); err != nil {
		return nil, err
	}
	receipt.Status = models.NormalizeTxStatus(string(receipt.Status))
	if receipt.Hash == (common.Hash{}) {
		receipt.Hash = hash
	}
	return &receipt, nil
}

// wireArgs never returns nil so the wire always carries an args list
func wireArgs(args []interface{}) []interface{} {
	if args == nil {
		return []interface{}{}
	}
	return args
}

// retryable reports whether a read may be attempted again
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return false
	}
	if code := utils.CodeOf(err); code != "" && code != utils.ErrCodeTransport {
		return false
	}
	return true
}

// classify maps a transport-level failure onto the error taxonomy
func classify(ctx context.Context, err error, message string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return utils.WrapAppError(utils.ErrCodeCancelled, message, err)
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		msg := strings.ToLower(rpcErr.Error())
		switch {
		case strings.Contains(msg, "already known"):
			return utils.WrapAppError(utils.ErrCodeDuplicateTx, message, err)
		case strings.Contains(msg, "does not exist"):
			return utils.WrapAppError(utils.ErrCodeNotFound, message, err)
		}
		return utils.WrapAppError(utils.ErrCodeTransport, message, err)
	}

	if code := utils.CodeOf(err); code != "" {
		return err
	}
	return utils.WrapAppError(utils.ErrCodeTransport, message, err)
}
