package simd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/GoSim-25-26J-441/coverage-core/pkg/config"
	"github.com/GoSim-25-26J-441/coverage-core/pkg/logger"
	"github.com/GoSim-25-26J-441/coverage-core/pkg/models"
	"github.com/GoSim-25-26J-441/coverage-core/pkg/utils"
)

var (
	ErrInvalidURL       = errors.New("invalid callback url")
	ErrMetadataEndpoint = errors.New("callback url targets a metadata endpoint")
	ErrInternalHost     = errors.New("callback url targets an internal address")
)

// NotificationPayload is the JSON body posted to a callback URL
type NotificationPayload struct {
	EventID   string           `json:"event_id"`
	RunID     string           `json:"run_id"`
	Status    models.RunStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
	StartedAt time.Time        `json:"started_at,omitempty"`
	EndedAt   time.Time        `json:"ended_at,omitempty"`
	Error     string           `json:"error,omitempty"`
	Winner    string           `json:"winner,omitempty"`
	BestArea  int              `json:"best_area,omitempty"`
	// Improvement is the relative gain of the winner in percent
	Improvement float64 `json:"improvement_percent,omitempty"`
	Timestamp   int64   `json:"timestamp"` // when the notification was sent
}

// Notifier posts run completion notifications with retries
type Notifier struct {
	httpClient *http.Client
	maxRetries int
	backoff    utils.BackoffStrategy
	// validate rejects unsafe callback URLs; tests may relax it
	validate func(string) error

	wg sync.WaitGroup
}

func NewNotifier() *Notifier {
	return &Notifier{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		maxRetries: 3,
		backoff:    utils.NewBackoff("exponential", time.Second, 30*time.Second),
		validate:   validateCallbackURL,
	}
}

// NewNotifierFromSettings builds a notifier from daemon settings
func NewNotifierFromSettings(s config.NotifySettings) *Notifier {
	n := NewNotifier()
	n.maxRetries = s.MaxRetries
	if s.Timeout > 0 {
		n.httpClient.Timeout = s.Timeout
	}
	if s.BaseDelay > 0 {
		n.backoff = utils.NewBackoff(s.Backoff, s.BaseDelay, 30*time.Second)
	}
	return n
}

// Notify posts the state of rec to target asynchronously. It returns
// immediately; Wait blocks until pending notifications are done.
func (n *Notifier) Notify(target *config.CallbackTarget, rec *RunRecord) {
	if target == nil || target.URL == "" {
		return
	}
	if rec == nil {
		logger.Warn("cannot notify: invalid run record", "callback_url", target.URL)
		return
	}

	finalURL := strings.ReplaceAll(target.URL, "{run_id}", rec.Run.ID)
	if err := n.validate(finalURL); err != nil {
		logger.Warn("callback url rejected", "run_id", rec.Run.ID, "callback_url", finalURL, "error", err)
		return
	}

	payload := NotificationPayload{
		EventID:   utils.GenerateEventID(),
		RunID:     rec.Run.ID,
		Status:    rec.Run.Status,
		CreatedAt: rec.Run.CreatedAt,
		StartedAt: rec.Run.StartedAt,
		EndedAt:   rec.Run.EndedAt,
		Error:     rec.Run.Error,
		Timestamp: time.Now().UTC().UnixMilli(),
	}
	if rec.Report != nil && rec.Report.Winner != nil {
		payload.Winner = rec.Report.Winner.Algorithm
		payload.BestArea = rec.Report.Winner.Area
		payload.Improvement = rec.Report.Improvement
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.send(context.Background(), finalURL, target.Secret, payload)
	}()
}

// Wait blocks until every pending notification finished or gave up
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) send(ctx context.Context, callbackURL, secret string, payload NotificationPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		logger.Error("failed to marshal notification payload", "run_id", payload.RunID, "error", err)
		return err
	}

	var lastErr error
	for attempt := 0; attempt <= n.maxRetries; attempt++ {
		if attempt > 0 {
			delay := n.backoff.NextDelay(attempt - 1)
			logger.Debug("retrying notification",
				"callback_url", callbackURL,
				"run_id", payload.RunID,
				"attempt", attempt,
				"delay", delay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		lastErr = n.post(ctx, callbackURL, secret, body)
		if lastErr == nil {
			logger.Info("notification sent", "run_id", payload.RunID, "status", payload.Status)
			return nil
		}
		logger.Warn("notification attempt failed",
			"callback_url", callbackURL,
			"run_id", payload.RunID,
			"attempt", attempt+1,
			"error", lastErr)
	}

	logger.Error("failed to send notification after retries",
		"callback_url", callbackURL,
		"run_id", payload.RunID,
		"max_retries", n.maxRetries,
		"last_error", lastErr)
	return lastErr
}

func (n *Notifier) post(ctx context.Context, callbackURL, secret string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, callbackURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "coverage-core/1.0")
	if secret != "" {
		req.Header.Set("X-Coverage-Callback-Secret", secret)
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
	return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(respBody))
}

// validateCallbackURL rejects non-http schemes and literal addresses that
// point into private networks or cloud metadata services. Host names other
// than metadata services are accepted.
func validateCallbackURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	if host == "169.254.169.254" || host == "metadata.google.internal" || host == "fd00:ec2::254" {
		return fmt.Errorf("%w: %s", ErrMetadataEndpoint, host)
	}
	if ip := net.ParseIP(host); ip != nil {
		if ip.IsUnspecified() || isPrivateIP(ip) {
			return fmt.Errorf("%w: %s", ErrInternalHost, host)
		}
	}
	return nil
}

func isPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast()
}
