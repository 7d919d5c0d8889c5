package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// EOSClient talks to the external optimizer service over HTTP, with a
// circuit breaker around every call. After
// consecutiveFailures in a row the breaker opens; calls made while open
// fail fast with gobreaker.ErrOpenState instead of hitting the network.
type EOSClient struct {
	httpClient *http.Client
	baseURL    string
	breaker    *gobreaker.CircuitBreaker
	logger     *zap.Logger
}

// NewEOSClient builds an EOSClient. openTimeout is how long the breaker
// stays open before allowing a probe request through.
func NewEOSClient(baseURL string, timeout time.Duration, consecutiveFailures uint32, openTimeout time.Duration, logger *zap.Logger) *EOSClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "eos-client",
		Timeout: openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= consecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("eos circuit breaker state change", zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	return &EOSClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		breaker:    breaker,
		logger:     logger.With(zap.String("component", "eos_client")),
	}
}

// Optimize posts payload to the optimizer and returns the decoded solution.
func (c *EOSClient) Optimize(ctx context.Context, payload map[string]any) (map[string]any, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		return c.postJSON(ctx, "/optimize", payload)
	})
	if err != nil {
		return nil, err
	}
	return result.(map[string]any), nil
}

// Predict requests a prediction series for scope.
func (c *EOSClient) Predict(ctx context.Context, scope PredictionScope) (map[string]any, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		return c.getJSON(ctx, fmt.Sprintf("/prediction?scope=%s", scope))
	})
	if err != nil {
		return nil, err
	}
	return result.(map[string]any), nil
}

// GetConfig fetches the optimizer's current configuration document.
func (c *EOSClient) GetConfig(ctx context.Context) (map[string]any, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		return c.getJSON(ctx, "/config")
	})
	if err != nil {
		return nil, err
	}
	return result.(map[string]any), nil
}

// PutConfigPath writes a single dotted config path.
func (c *EOSClient) PutConfigPath(ctx context.Context, path string, value any) error {
	_, err := c.breaker.Execute(func() (any, error) {
		return c.postJSON(ctx, "/config/"+path, value)
	})
	return err
}

func (c *EOSClient) postJSON(ctx context.Context, path string, body any) (map[string]any, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *EOSClient) getJSON(ctx context.Context, path string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *EOSClient) do(req *http.Request) (map[string]any, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("eos request failed: status=%d body=%s", resp.StatusCode, raw)
	}

	var decoded map[string]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return nil, err
		}
	}
	return decoded, nil
}
