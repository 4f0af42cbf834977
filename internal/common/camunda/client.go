// internal/common/camunda/client.go
package camunda

import (
	"context"
	"fmt"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"

	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/common/config"
)

// Client wraps the Zeebe gRPC client. Construction fails fast: the
// broker topology is fetched once so a bad gateway address surfaces at
// startup instead of on the first job poll.
type Client struct {
	client         zbc.Client
	gatewayAddress string
	connectTimeout time.Duration
}

// NewClientFromConfig connects using the camunda section of the
// application config. Timeout fields are milliseconds.
func NewClientFromConfig(cfg config.CamundaConfig) (*Client, error) {
	connectTimeout := time.Duration(cfg.Timeout) * time.Millisecond
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}

	zeebeClient, err := zbc.NewClient(&zbc.ClientConfig{
		GatewayAddress:         cfg.BrokerAddress,
		UsePlaintextConnection: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Zeebe client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if _, err := zeebeClient.NewTopologyCommand().Send(ctx); err != nil {
		zeebeClient.Close()
		return nil, fmt.Errorf("failed to connect to Zeebe broker at %s: %w", cfg.BrokerAddress, err)
	}

	return &Client{
		client:         zeebeClient,
		gatewayAddress: cfg.BrokerAddress,
		connectTimeout: connectTimeout,
	}, nil
}

// GetClient returns the raw Zeebe client for worker registration.
func (c *Client) GetClient() zbc.Client {
	return c.client
}

func (c *Client) Close() error {
	return c.client.Close()
}

// HealthCheck fetches the broker topology; used by readiness probes.
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.connectTimeout)
	defer cancel()

	if _, err := c.client.NewTopologyCommand().Send(ctx); err != nil {
		return fmt.Errorf("zeebe health check failed for %s: %w", c.gatewayAddress, err)
	}
	return nil
}
