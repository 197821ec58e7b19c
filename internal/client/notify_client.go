package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"tracking-service/internal/config"
	"tracking-service/internal/service"
)

// NotifyClient delivers arrival events to the notification service (SMS /
// push collaborator). The tracking core only defines the event contract;
// delivery to the customer is the collaborator's problem.
type NotifyClient struct {
	baseURL       string
	internalToken string
	httpClient    *http.Client
}

func NewNotifyClient(cfg *config.Config) *NotifyClient {
	return &NotifyClient{
		baseURL:       cfg.ExternalServices.NotifyServiceURL,
		internalToken: cfg.ExternalServices.NotifyServiceToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *NotifyClient) NotifyArrival(ctx context.Context, event service.ArrivalEvent) error {
	if c.baseURL == "" {
		return fmt.Errorf("notify service URL is not configured")
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode arrival event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/internal/notifications/arrival", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.internalToken != "" {
		req.Header.Set("X-Internal-Token", c.internalToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notify service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("notify service returned %d: %s", resp.StatusCode, string(payload))
	}
	return nil
}
