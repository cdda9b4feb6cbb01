package fulfillment

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	id "subport/pkg/domain"
)

// HTTPClient calls the warehouse service's cancellation endpoint.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *HTTPClient) CancelLineWork(ctx context.Context, orderID id.OrderID, lineID id.LineID) error {
	url := fmt.Sprintf("%s/orders/%s/lines/%s/cancel", c.baseURL, orderID, lineID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return fmt.Errorf("build cancellation request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("cancel line work: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("cancel line work: unexpected status %d", resp.StatusCode)
	}
	return nil
}
