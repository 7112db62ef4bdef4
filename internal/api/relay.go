package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// HTTPRelaySender is a minimal TextSender that forwards a send to the
// named backend instance over HTTP, using urlTemplate as a template with "%s"
// substituted for the instance name. The actual messaging protocol to
// backend instances is out of scope; this relay exists only so
// BalancedSender has a concrete collaborator to wire against.
type HTTPRelaySender struct {
	client      *http.Client
	urlTemplate string
}

func NewHTTPRelaySender(client *http.Client, urlTemplate string) *HTTPRelaySender {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPRelaySender{client: client, urlTemplate: urlTemplate}
}

type relaySendRequest struct {
	Contact string `json:"contact"`
	Body    string `json:"body"`
}

func (s *HTTPRelaySender) SendText(ctx context.Context, instance, contact, body string) (SendResult, error) {
	url := fmt.Sprintf(s.urlTemplate, instance)

	payload, err := json.Marshal(relaySendRequest{Contact: contact, Body: body})
	if err != nil {
		return SendResult{}, fmt.Errorf("marshal relay payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return SendResult{}, fmt.Errorf("build relay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return SendResult{}, fmt.Errorf("relay to %s: %w", instance, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return SendResult{}, fmt.Errorf("relay to %s: status %d", instance, resp.StatusCode)
	}

	var result SendResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return SendResult{}, fmt.Errorf("decode relay response: %w", err)
	}
	result.Instance = instance
	return result, nil
}
