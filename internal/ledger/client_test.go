package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/content-rewards/internal/config"
	"github.com/smartdevs17/content-rewards/internal/wallet"
	"github.com/smartdevs17/content-rewards/pkg/utils"
)

type jsonRPCError struct {
	message string
}

func (e *jsonRPCError) Error() string  { return e.message }
func (e *jsonRPCError) ErrorCode() int { return -32000 }

// scriptedManager answers calls from a per-method script
type scriptedManager struct {
	mu      sync.Mutex
	calls   map[string]int
	lastArg map[string]interface{}
	respond func(method string, attempt int) (string, error)
}

func newScriptedManager(respond func(method string, attempt int) (string, error)) *scriptedManager {
	return &scriptedManager{
		calls:   make(map[string]int),
		lastArg: make(map[string]interface{}),
		respond: respond,
	}
}

func (m *scriptedManager) Call(ctx context.Context, result interface{}, kind, method string, args ...interface{}) error {
	m.mu.Lock()
	m.calls[method]++
	attempt := m.calls[method]
	if len(args) > 0 {
		m.lastArg[method] = args[0]
	}
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := m.respond(method, attempt)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(payload), result)
}

func (m *scriptedManager) HealthCheck(ctx context.Context) error { return nil }
func (m *scriptedManager) IsConnected() bool                     { return true }
func (m *scriptedManager) Close() error                          { return nil }
func (m *scriptedManager) Stats() ConnectionStats                { return ConnectionStats{} }

func (m *scriptedManager) count(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

func testConfig() *config.LedgerConfig {
	return &config.LedgerConfig{
		Endpoint:        "http://ledger.invalid",
		ContractAddress: "0x000000000000000000000000000000000000c0de",
		RetryAttempts:   3,
		RetryDelay:      time.Millisecond,
		CallMethod:      "gen_call",
		SendMethod:      "gen_sendTransaction",
		ReceiptMethod:   "gen_getTransactionReceipt",
	}
}

func TestNewRPCClient(t *testing.T) {
	t.Run("missing contract address is a configuration error", func(t *testing.T) {
		cfg := testConfig()
		cfg.ContractAddress = ""
		_, err := NewRPCClient(newScriptedManager(nil), cfg)
		require.Error(t, err)
		assert.Equal(t, utils.ErrCodeConfiguration, utils.CodeOf(err))
	})

	t.Run("malformed contract address", func(t *testing.T) {
		cfg := testConfig()
		cfg.ContractAddress = "0x123"
		_, err := NewRPCClient(newScriptedManager(nil), cfg)
		assert.True(t, utils.IsCode(err, utils.ErrCodeConfiguration))
	})
}

func TestRPCClientRead(t *testing.T) {
	t.Run("retries transport failures", func(t *testing.T) {
		manager := newScriptedManager(func(method string, attempt int) (string, error) {
			if attempt < 3 {
				return "", errors.New("connection reset by peer")
			}
			return `[{"contest_id": 0}]`, nil
		})
		client, err := NewRPCClient(manager, testConfig())
		require.NoError(t, err)

		value, err := client.Read(context.Background(), MethodGetAllContests)
		require.NoError(t, err)
		assert.Equal(t, []interface{}{map[string]interface{}{"contest_id": int64(0)}}, value)
		assert.Equal(t, 3, manager.count("gen_call"))

		req, ok := manager.lastArg["gen_call"].(CallRequest)
		require.True(t, ok)
		assert.Equal(t, MethodGetAllContests, req.Method)
		assert.NotNil(t, req.Args)
	})

	t.Run("gives up with a transport error", func(t *testing.T) {
		manager := newScriptedManager(func(method string, attempt int) (string, error) {
			return "", errors.New("dial tcp: connection refused")
		})
		client, err := NewRPCClient(manager, testConfig())
		require.NoError(t, err)

		_, err = client.Read(context.Background(), MethodGetAllContests)
		require.Error(t, err)
		assert.Equal(t, utils.ErrCodeTransport, utils.CodeOf(err))
		assert.Equal(t, 3, manager.count("gen_call"))
	})

	t.Run("does not retry contract errors", func(t *testing.T) {
		manager := newScriptedManager(func(method string, attempt int) (string, error) {
			return "", &jsonRPCError{message: "Contest does not exist"}
		})
		client, err := NewRPCClient(manager, testConfig())
		require.NoError(t, err)

		_, err = client.Read(context.Background(), MethodGetContest, uint64(9))
		require.Error(t, err)
		assert.Equal(t, utils.ErrCodeNotFound, utils.CodeOf(err))
		assert.Equal(t, 1, manager.count("gen_call"))
	})

	t.Run("cancelled context", func(t *testing.T) {
		manager := newScriptedManager(func(method string, attempt int) (string, error) {
			return "null", nil
		})
		client, err := NewRPCClient(manager, testConfig())
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = client.Read(ctx, MethodGetAllContests)
		require.Error(t, err)
		assert.Equal(t, utils.ErrCodeCancelled, utils.CodeOf(err))
		assert.Equal(t, 1, manager.count("gen_call"))
	})
}

func TestRPCClientWrite(t *testing.T) {
	signer, err := wallet.GenerateKeySigner()
	require.NoError(t, err)

	hash := common.HexToHash("0xabc")

	t.Run("signs and submits once", func(t *testing.T) {
		manager := newScriptedManager(func(method string, attempt int) (string, error) {
			return `"` + hash.Hex() + `"`, nil
		})
		client, err := NewRPCClient(manager, testConfig())
		require.NoError(t, err)

		handle, err := client.Write(context.Background(), signer, MethodSubmitContent, uint64(1), "https://medium.com/@x/post")
		require.NoError(t, err)
		assert.Equal(t, hash, handle.Hash)
		assert.Equal(t, MethodSubmitContent, handle.Method)
		assert.Equal(t, signer.Address().Hex(), handle.From)

		req, ok := manager.lastArg["gen_sendTransaction"].(SendRequest)
		require.True(t, ok)
		assert.Equal(t, signer.Address().Hex(), req.From)
		assert.NotEmpty(t, req.Signature)
	})

	t.Run("never retries transport failures", func(t *testing.T) {
		manager := newScriptedManager(func(method string, attempt int) (string, error) {
			return "", errors.New("connection reset by peer")
		})
		client, err := NewRPCClient(manager, testConfig())
		require.NoError(t, err)

		_, err = client.Write(context.Background(), signer, MethodCloseContest, uint64(1))
		require.Error(t, err)
		assert.Equal(t, utils.ErrCodeTransport, utils.CodeOf(err))
		assert.Equal(t, 1, manager.count("gen_sendTransaction"))
	})

	t.Run("duplicate is its own failure class", func(t *testing.T) {
		manager := newScriptedManager(func(method string, attempt int) (string, error) {
			return "", &jsonRPCError{message: "transaction already known"}
		})
		client, err := NewRPCClient(manager, testConfig())
		require.NoError(t, err)

		_, err = client.Write(context.Background(), signer, MethodCloseContest, uint64(1))
		assert.Equal(t, utils.ErrCodeDuplicateTx, utils.CodeOf(err))
		assert.Equal(t, 1, manager.count("gen_sendTransaction"))
	})

	t.Run("requires a wallet", func(t *testing.T) {
		client, err := NewRPCClient(newScriptedManager(nil), testConfig())
		require.NoError(t, err)

		_, err = client.Write(context.Background(), nil, MethodCloseContest, uint64(1))
		assert.Equal(t, utils.ErrCodeConfiguration, utils.CodeOf(err))
	})
}

func TestRPCClientReceipt(t *testing.T) {
	hash := common.HexToHash("0x01")

	t.Run("unknown transaction", func(t *testing.T) {
		manager := newScriptedManager(func(method string, attempt int) (string, error) {
			return "null", nil
		})
		client, err := NewRPCClient(manager, testConfig())
		require.NoError(t, err)

		receipt, err := client.Receipt(context.Background(), hash)
		require.NoError(t, err)
		assert.Nil(t, receipt)
	})

	t.Run("decodes a finalized receipt", func(t *testing.T) {
		manager := newScriptedManager(func(method string, attempt int) (string, error) {
			return `{"status": "finalized", "result": {"$map": [["status", "accepted"], ["reason", "Content accepted"]]}}`, nil
		})
		client, err := NewRPCClient(manager, testConfig())
		require.NoError(t, err)

		receipt, err := client.Receipt(context.Background(), hash)
		require.NoError(t, err)
		require.NotNil(t, receipt)
		assert.Equal(t, hash, receipt.Hash)
		assert.True(t, receipt.Status.IsSuccess())
		assert.False(t, receipt.Reverted())
		assert.Equal(t, map[string]interface{}{"status": "accepted", "reason": "Content accepted"}, receipt.Result)
	})
}
