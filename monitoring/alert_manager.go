package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"heartify/db"
)

// AlertLevel grades how far a reading is outside its limits.
type AlertLevel string

const (
	Warning  AlertLevel = "warning"
	Critical AlertLevel = "critical"
)

const HeartRateAlert MessageType = "heartRateAlert"

// criticalMargin is how far past a limit a reading turns critical.
const criticalMargin = 20

// Alert is raised when a reading crosses a configured bound.
type Alert struct {
	ID         string     `json:"id"`
	Level      AlertLevel `json:"level"`
	Title      string     `json:"title"`
	HeartifyID string     `json:"heartifyID,omitempty"`
	Value      float64    `json:"value"`
	Threshold  float64    `json:"threshold"`
	Timestamp  time.Time  `json:"timestamp"`
}

// AlertConfig sets the bounds. A zero bound is disabled.
type AlertConfig struct {
	HighBPM  float64
	LowBPM   float64
	Cooldown time.Duration
	Webhook  string
}

// AlertManager checks each stored reading against the bounds and
// notifies websocket clients and an optional webhook. Each device is
// alerted at most once per cooldown.
type AlertManager struct {
	cfg        AlertConfig
	hub        *WebSocketHub
	httpClient *http.Client
	logger     *zap.Logger

	mu       sync.Mutex
	lastSent map[string]time.Time
	wg       sync.WaitGroup
}

func NewAlertManager(cfg AlertConfig, hub *WebSocketHub, logger *zap.Logger) *AlertManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AlertManager{
		cfg:        cfg,
		hub:        hub,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		lastSent:   make(map[string]time.Time),
	}
}

// Enabled reports whether any bound is set.
func (a *AlertManager) Enabled() bool {
	return a != nil && (a.cfg.HighBPM > 0 || a.cfg.LowBPM > 0)
}

// Check raises at most one alert for r and returns it.
func (a *AlertManager) Check(r db.Reading) *Alert {
	if !a.Enabled() {
		return nil
	}
	alert := a.evaluate(r)
	if alert == nil || !a.allow(r.HeartifyID, r.CreatedAt) {
		return nil
	}

	a.logger.Warn("heart-rate alert",
		zap.String("level", string(alert.Level)),
		zap.String("heartify_id", alert.HeartifyID),
		zap.Float64("value", alert.Value),
		zap.Float64("threshold", alert.Threshold),
	)
	if a.hub != nil {
		if err := a.hub.Publish(Message{Type: HeartRateAlert, Data: alert}); err != nil {
			a.logger.Warn("alert broadcast failed", zap.Error(err))
		}
	}
	if a.cfg.Webhook != "" {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := a.sendWebhookRequest(context.Background(), alert); err != nil {
				a.logger.Warn("alert webhook failed", zap.String("url", a.cfg.Webhook), zap.Error(err))
			}
		}()
	}
	return alert
}

// Wait blocks until pending webhook deliveries finish.
func (a *AlertManager) Wait() {
	if a != nil {
		a.wg.Wait()
	}
}

func (a *AlertManager) evaluate(r db.Reading) *Alert {
	alert := &Alert{HeartifyID: r.HeartifyID, Timestamp: r.CreatedAt}
	switch {
	case a.cfg.HighBPM > 0 && r.MaxBPM > a.cfg.HighBPM:
		alert.Title = "heart rate above limit"
		alert.Value, alert.Threshold = r.MaxBPM, a.cfg.HighBPM
		alert.Level = Warning
		if r.MaxBPM >= a.cfg.HighBPM+criticalMargin {
			alert.Level = Critical
		}
	case a.cfg.LowBPM > 0 && r.MinBPM < a.cfg.LowBPM:
		alert.Title = "heart rate below limit"
		alert.Value, alert.Threshold = r.MinBPM, a.cfg.LowBPM
		alert.Level = Warning
		if r.MinBPM <= a.cfg.LowBPM-criticalMargin {
			alert.Level = Critical
		}
	default:
		return nil
	}
	alert.ID = uuid.NewString()
	return alert
}

func (a *AlertManager) allow(heartifyID string, at time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if last, ok := a.lastSent[heartifyID]; ok && at.Sub(last) < a.cfg.Cooldown {
		return false
	}
	a.lastSent[heartifyID] = at
	return true
}

func (a *AlertManager) sendWebhookRequest(ctx context.Context, alert *Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.Webhook, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return nil
}
