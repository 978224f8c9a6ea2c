package workflows

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

var ErrSlackNotConfigured = errors.New("SLACK_WEBHOOK_URL is not set")

type SlackPayload struct {
	Text string `json:"text"`
}

// SlackNotifier posts run failures to the alerts channel webhook.
type SlackNotifier struct {
	webhookURL string
	httpClient *http.Client
}

func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// ReportError posts an error message. It returns ErrSlackNotConfigured when
// no webhook is set.
func (n *SlackNotifier) ReportError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if n == nil || n.webhookURL == "" {
		return ErrSlackNotConfigured
	}

	message := fmt.Sprintf(
		":rotating_light: *PRIA Run Error*\n"+
			"*Time:* %s\n"+
			"*Error:* ```%s```",
		time.Now().UTC().Format(time.RFC3339),
		err.Error(),
	)

	body, err := json.Marshal(SlackPayload{Text: message})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// ReportRunFailure reports a failed run with its context.
func (n *SlackNotifier) ReportRunFailure(ctx context.Context, runID uuid.UUID, brandName, stage string, err error) error {
	if err == nil {
		return nil
	}
	if brandName == "" {
		brandName = "unknown"
	}
	if stage == "" {
		stage = "unknown"
	}

	return n.ReportError(ctx, fmt.Errorf(
		"run failed: stage=%s run_id=%s brand=%s error=%v",
		stage,
		runID,
		brandName,
		err,
	))
}

// notify reports a failure and only logs when the alert itself fails.
func (n *SlackNotifier) notify(ctx context.Context, runID uuid.UUID, brandName, stage string, err error) {
	if alertErr := n.ReportRunFailure(ctx, runID, brandName, stage, err); alertErr != nil {
		if errors.Is(alertErr, ErrSlackNotConfigured) {
			return
		}
		fmt.Printf("[SlackAlerts] Warning: failed to report run %s failure: %v\n", runID, alertErr)
	}
}
