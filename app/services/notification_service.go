package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/trafficlab/traffic-api/config"
	"github.com/trafficlab/traffic-api/models"
)

// ImportNotification summarizes one insights import for downstream consumers
type ImportNotification struct {
	IntegrationID uint            `json:"integration_id"`
	Platform      models.Platform `json:"platform"`
	Imported      int             `json:"imported"`
	WindowSince   string          `json:"window_since"`
	WindowUntil   string          `json:"window_until"`
}

// NotificationService pushes import summaries to an external sink so the
// dashboard can tell clients fresh breakdown data arrived
type NotificationService interface {
	NotifyInsightsImported(ctx context.Context, notification ImportNotification) error
}

// WebhookNotificationService posts notifications to a configured webhook
type WebhookNotificationService struct {
	cfg    config.NotificationConfig
	client *http.Client
}

// NewWebhookNotificationService creates a webhook-backed notification service
func NewWebhookNotificationService(cfg config.NotificationConfig) NotificationService {
	return &WebhookNotificationService{
		cfg:    cfg,
		client: newPlatformHTTPClient(cfg.Timeout),
	}
}

// NotifyInsightsImported posts the import summary to the webhook
func (s *WebhookNotificationService) NotifyInsightsImported(ctx context.Context, notification ImportNotification) error {
	if !s.cfg.Enabled {
		return nil
	}

	payload, err := json.Marshal(notification)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification webhook http status: %d", resp.StatusCode)
	}

	return nil
}

// MockNotificationService records notifications for tests
type MockNotificationService struct {
	Sent []ImportNotification
}

func NewMockNotificationService() *MockNotificationService {
	return &MockNotificationService{}
}

func (s *MockNotificationService) NotifyInsightsImported(ctx context.Context, notification ImportNotification) error {
	s.Sent = append(s.Sent, notification)
	log.Printf("insights import notification for integration %d: %d rows", notification.IntegrationID, notification.Imported)
	return nil
}
