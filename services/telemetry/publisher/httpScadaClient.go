package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/iulianpascalau/gpu-rack-telemetry/services/telemetry/core"
)

type httpScadaClient struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTPScadaClient creates a client that pushes abnormality events to the SCADA HTTP endpoint.
// The timeout bounds every single send attempt.
func NewHTTPScadaClient(endpoint string, apiKey string, timeout time.Duration) *httpScadaClient {
	return &httpScadaClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Send delivers one abnormality event and returns nil once SCADA acknowledged it
func (c *httpScadaClient) Send(ctx context.Context, event core.AbnormalityEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create send request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("network error sending event: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("SCADA rejected event with status code: %d", resp.StatusCode)
	}

	return nil
}

// IsInterfaceNil returns true if the value under the interface is nil
func (c *httpScadaClient) IsInterfaceNil() bool {
	return c == nil
}
