// Package crm forwards follow-up leads to an external CRM webhook. The
// sink is best-effort by contract: a failure is logged and reported to the
// caller as a warning, and must never change a computed result or block
// the user-visible outcome.
package crm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/knhealth/knscreen/pkg/session"
)

// Client posts leads to a configured webhook URL. A client with an empty
// URL is valid and silently drops every lead (CRM forwarding is optional).
type Client struct {
	url  string
	http *retryablehttp.Client
	log  *zap.Logger
}

// New builds a client for the given webhook URL ("" disables forwarding).
func New(url string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	hc := retryablehttp.NewClient()
	hc.RetryMax = 2
	hc.RetryWaitMin = 500 * time.Millisecond
	hc.HTTPClient.Timeout = 10 * time.Second
	hc.Logger = nil
	return &Client{url: url, http: hc, log: logger}
}

// Enabled reports whether a webhook URL is configured.
func (c *Client) Enabled() bool { return c.url != "" }

// Forward posts the lead. Returns nil when forwarding is disabled.
func (c *Client) Forward(lead session.Lead) error {
	if !c.Enabled() {
		c.log.Debug("crm disabled, lead dropped", zap.String("code", lead.PriorityCode))
		return nil
	}

	payload, err := json.Marshal(map[string]string{
		"name":          lead.Name,
		"phone":         lead.Phone,
		"zone":          lead.Zone.String(),
		"priority_code": lead.PriorityCode,
		"location_code": lead.LocationCode,
		"source":        lead.Source,
	})
	if err != nil {
		return fmt.Errorf("crm: marshal lead: %w", err)
	}

	req, err := retryablehttp.NewRequest(http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("crm: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("crm forward failed", zap.String("code", lead.PriorityCode), zap.Error(err))
		return fmt.Errorf("crm: forward: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		c.log.Warn("crm rejected lead",
			zap.String("code", lead.PriorityCode),
			zap.Int("status", resp.StatusCode),
		)
		return fmt.Errorf("crm: webhook returned %d", resp.StatusCode)
	}
	c.log.Info("lead forwarded", zap.String("code", lead.PriorityCode))
	return nil
}
