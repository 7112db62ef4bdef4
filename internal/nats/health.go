package nats

import (
	"context"
	"fmt"
)

// StreamStats holds basic stats for a single stream.
type StreamStats struct {
	Name     string `json:"name"`
	Messages uint64 `json:"messages"`
	Bytes    uint64 `json:"bytes"`
	Subjects uint64 `json:"subjects"`
}

// HealthStatus represents the NATS connection health.
type HealthStatus struct {
	Connected bool        `json:"connected"`
	URL       string      `json:"url"`
	Stream    StreamStats `json:"stream"`
	Error     string      `json:"error,omitempty"`
}

// HealthCheck returns the current health of the NATS client.
func (c *Client) HealthCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		URL: c.cfg.URL,
	}

	if c.conn == nil || !c.conn.IsConnected() {
		status.Error = "not connected"
		return status
	}

	status.Connected = true

	stats, err := c.StreamInfo(ctx, c.cfg.StreamName)
	if err != nil {
		status.Error = fmt.Sprintf("stream stats: %v", err)
		return status
	}
	status.Stream = *stats

	return status
}

// StreamInfo returns info for a specific stream.
func (c *Client) StreamInfo(ctx context.Context, streamName string) (*StreamStats, error) {
	if c.js == nil {
		return nil, ErrNotConnected
	}

	stream, err := c.js.Stream(ctx, streamName)
	if err != nil {
		return nil, fmt.Errorf("get stream %s: %w", streamName, err)
	}

	info, err := stream.Info(ctx)
	if err != nil {
		return nil, fmt.Errorf("stream info %s: %w", streamName, err)
	}

	return &StreamStats{
		Name:     streamName,
		Messages: info.State.Msgs,
		Bytes:    info.State.Bytes,
		Subjects: info.State.NumSubjects,
	}, nil
}

// UpdateStreamMetrics updates Prometheus gauges with current stream state.
func (c *Client) UpdateStreamMetrics(ctx context.Context) {
	if c.metrics == nil || c.js == nil {
		return
	}

	stream, err := c.js.Stream(ctx, c.cfg.StreamName)
	if err != nil {
		return
	}

	info, err := stream.Info(ctx)
	if err != nil {
		return
	}

	c.metrics.StreamMessages.WithLabelValues(c.cfg.StreamName).Set(float64(info.State.Msgs))
	c.metrics.StreamBytes.WithLabelValues(c.cfg.StreamName).Set(float64(info.State.Bytes))
}
