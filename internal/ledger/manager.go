package ledger

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/content-rewards/internal/config"
	"github.com/smartdevs17/content-rewards/internal/metrics"
	"github.com/smartdevs17/content-rewards/pkg/utils"
)

// Manager defines the ledger connection manager interface
type Manager interface {
	Call(ctx context.Context, result interface{}, kind, method string, args ...interface{}) error
	HealthCheck(ctx context.Context) error
	IsConnected() bool
	Close() error
	Stats() ConnectionStats
}

// DialFunc opens a JSON-RPC client for an endpoint
type DialFunc func(ctx context.Context, endpoint string) (*rpc.Client, error)

// ConnectionManager implements the Manager interface with endpoint failover
type ConnectionManager struct {
	config         *config.LedgerConfig
	endpoints      []string
	currentIndex   int
	client         *rpc.Client
	dial           DialFunc
	mu             sync.RWMutex
	logger         *logrus.Entry
	stats          ConnectionStats
	isHealthy      bool
	metricsManager *metrics.Manager
}

// ConnectionStats holds connection statistics
type ConnectionStats struct {
	TotalRequests   uint64    `json:"total_requests"`
	FailedRequests  uint64    `json:"failed_requests"`
	Reconnects      uint64    `json:"reconnects"`
	CurrentURL      string    `json:"current_url"`
	LastConnectedAt time.Time `json:"last_connected_at"`
	LastHealthCheck time.Time `json:"last_health_check"`
	IsHealthy       bool      `json:"is_healthy"`
}

// NewConnectionManager creates a new connection manager
func NewConnectionManager(cfg *config.LedgerConfig, metricsManager *metrics.Manager) *ConnectionManager {
	endpoints := []string{cfg.Endpoint}
	endpoints = append(endpoints, cfg.BackupEndpoints...)

	return &ConnectionManager{
		config:         cfg,
		endpoints:      endpoints,
		dial:           rpc.DialContext,
		logger:         utils.ComponentLogger("ledger"),
		metricsManager: metricsManager,
		stats: ConnectionStats{
			CurrentURL: cfg.Endpoint,
		},
	}
}

// NewConnectionManagerWithClient wraps an already connected client, as used by
// in-process servers
func NewConnectionManagerWithClient(cfg *config.LedgerConfig, client *rpc.Client, metricsManager *metrics.Manager) *ConnectionManager {
	cm := NewConnectionManager(cfg, metricsManager)
	cm.client = client
	cm.isHealthy = true
	cm.stats.LastConnectedAt = time.Now()
	cm.stats.IsHealthy = true
	cm.dial = func(ctx context.Context, endpoint string) (*rpc.Client, error) {
		return client, nil
	}
	return cm
}

// SetDialFunc overrides how endpoints are dialed
func (cm *ConnectionManager) SetDialFunc(dial DialFunc) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.dial = dial
}

// getClient returns the current client, connecting if necessary
func (cm *ConnectionManager) getClient(ctx context.Context) (*rpc.Client, string, error) {
	cm.mu.RLock()
	client := cm.client
	url := cm.stats.CurrentURL
	cm.mu.RUnlock()

	if client != nil {
		return client, url, nil
	}
	return cm.connect(ctx)
}

// connect establishes a new connection, trying every endpoint per attempt
func (cm *ConnectionManager) connect(ctx context.Context) (*rpc.Client, string, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.client != nil {
		return cm.client, cm.stats.CurrentURL, nil
	}

	attempts := cm.config.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	urls := cm.rotatedEndpoints()

	for attempt := 0; attempt < attempts; attempt++ {
		for _, url := range urls {
			cm.logger.WithFields(logrus.Fields{"url": url, "attempt": attempt + 1}).Info("Attempting connection")

			client, err := cm.dialWithTimeout(ctx, url)
			if err != nil {
				cm.logger.WithFields(logrus.Fields{"url": url, "error": err}).Warn("Connection failed")
				cm.stats.FailedRequests++
				cm.recordConnectionError(url, "dial_failed")
				continue
			}

			cm.client = client
			cm.currentIndex = cm.indexOf(url)
			cm.stats.CurrentURL = url
			cm.stats.LastConnectedAt = time.Now()
			cm.stats.IsHealthy = true
			cm.isHealthy = true

			cm.logger.WithField("url", url).Info("Connected to ledger endpoint")
			return client, url, nil
		}

		if attempt < attempts-1 {
			select {
			case <-ctx.Done():
				return nil, "", ctx.Err()
			case <-time.After(cm.config.RetryDelay):
			}
		}
	}

	return nil, "", utils.NewAppError(utils.ErrCodeTransport, "Failed to connect to any ledger endpoint",
		"All connection attempts exhausted")
}

// dialWithTimeout creates a connection with timeout
func (cm *ConnectionManager) dialWithTimeout(ctx context.Context, url string) (*rpc.Client, error) {
	dialCtx := ctx
	if cm.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, cm.config.RequestTimeout)
		defer cancel()
	}
	return cm.dial(dialCtx, url)
}

// markUnhealthy drops the current client so the next call fails over
func (cm *ConnectionManager) markUnhealthy(client *rpc.Client) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.client != client || cm.client == nil {
		return
	}
	cm.client.Close()
	cm.client = nil
	cm.isHealthy = false
	cm.stats.IsHealthy = false
	cm.stats.Reconnects++
	if len(cm.endpoints) > 1 {
		cm.currentIndex = (cm.currentIndex + 1) % len(cm.endpoints)
	}
}

// Call invokes a JSON-RPC method and records metrics. kind labels the call
// as read, write or receipt.
func (cm *ConnectionManager) Call(ctx context.Context, result interface{}, kind, method string, args ...interface{}) error {
	start := time.Now()

	client, endpoint, err := cm.getClient(ctx)
	if err != nil {
		cm.recordRequest(endpoint, kind, method, "error", start)
		return err
	}

	callCtx := ctx
	if cm.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, cm.config.RequestTimeout)
		defer cancel()
	}

	callErr := client.CallContext(callCtx, result, method, args...)

	cm.mu.Lock()
	cm.stats.TotalRequests++
	if callErr != nil {
		cm.stats.FailedRequests++
	}
	cm.mu.Unlock()

	if callErr != nil {
		cm.recordRequest(endpoint, kind, method, "error", start)
		// A JSON-RPC error means the endpoint answered; anything else means the link is suspect.
		var rpcErr rpc.Error
		if !errors.As(callErr, &rpcErr) && ctx.Err() == nil {
			cm.recordConnectionError(endpoint, "rpc_call_failed")
			cm.markUnhealthy(client)
		}
		return callErr
	}

	cm.recordRequest(endpoint, kind, method, "success", start)
	return nil
}

// HealthCheck verifies that the current endpoint answers
func (cm *ConnectionManager) HealthCheck(ctx context.Context) error {
	var chainID string
	if err := cm.Call(ctx, &chainID, "health", "eth_chainId"); err != nil {
		cm.mu.Lock()
		cm.isHealthy = false
		cm.stats.IsHealthy = false
		cm.stats.LastHealthCheck = time.Now()
		cm.mu.Unlock()
		return utils.WrapAppError(utils.ErrCodeTransport, "Ledger health check failed", err)
	}

	cm.mu.Lock()
	cm.isHealthy = true
	cm.stats.IsHealthy = true
	cm.stats.LastHealthCheck = time.Now()
	url := cm.stats.CurrentURL
	cm.mu.Unlock()

	cm.logger.WithFields(logrus.Fields{"url": url, "chain_id": chainID}).Debug("Health check passed")
	return nil
}

// IsConnected returns whether the manager is connected
func (cm *ConnectionManager) IsConnected() bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.client != nil && cm.isHealthy
}

// Close closes the connection
func (cm *ConnectionManager) Close() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.client != nil {
		cm.client.Close()
		cm.client = nil
	}

	cm.isHealthy = false
	cm.stats.IsHealthy = false
	cm.logger.Info("Connection manager closed")
	return nil
}

// Stats returns connection statistics
func (cm *ConnectionManager) Stats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.stats
}

// rotatedEndpoints returns all endpoints starting from the current index
func (cm *ConnectionManager) rotatedEndpoints() []string {
	urls := cm.endpoints
	if cm.currentIndex > 0 && cm.currentIndex < len(urls) {
		rotated := make([]string, len(urls))
		copy(rotated, urls[cm.currentIndex:])
		copy(rotated[len(urls)-cm.currentIndex:], urls[:cm.currentIndex])
		return rotated
	}
	return urls
}

func (cm *ConnectionManager) indexOf(url string) int {
	for i, u := range cm.endpoints {
		if u == url {
			return i
		}
	}
	return 0
}

func (cm *ConnectionManager) recordRequest(endpoint, kind, method, status string, start time.Time) {
	if cm.metricsManager == nil {
		return
	}
	cm.metricsManager.GetPrometheusMetrics().RecordLedgerRequest(method, kind, status, time.Since(start))
}

func (cm *ConnectionManager) recordConnectionError(endpoint, errorType string) {
	if cm.metricsManager == nil {
		return
	}
	cm.metricsManager.GetPrometheusMetrics().RecordConnectionError(endpoint, errorType)
}
