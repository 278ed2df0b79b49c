// Package notify delivers submission receipts through the messenger gateway.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// Failure is a delivery that exhausted its attempts.
type Failure struct {
	Target    string
	Email     string
	CycleName string
	Err       error
	Attempts  int
	At        time.Time
}

// FailureRecorder keeps failed deliveries for a later retry.
type FailureRecorder interface {
	RecordFailure(ctx context.Context, f Failure) error
}

type MessengerNotifier struct {
	endpoint    string
	destination string
	httpClient  *http.Client
	logger      *log.Logger
	failures    FailureRecorder
	attempts    int
	delay       time.Duration
	now         func() time.Time
}

// NewMessengerNotifier posts to <endpoint>/messages. failures may be nil.
func NewMessengerNotifier(endpoint, destination string, timeout time.Duration, failures FailureRecorder, logger *log.Logger) *MessengerNotifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}
	return &MessengerNotifier{
		endpoint:    strings.TrimRight(strings.TrimSpace(endpoint), "/"),
		destination: strings.TrimSpace(destination),
		httpClient:  &http.Client{Timeout: timeout},
		logger:      logger,
		failures:    failures,
		attempts:    3,
		delay:       200 * time.Millisecond,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func buildReceiptMessage(cycleName string) string {
	var b strings.Builder
	b.WriteString("Thank you for applying!\n")
	if name := strings.TrimSpace(cycleName); name != "" {
		fmt.Fprintf(&b, "Your application for %s has been submitted.\n", name)
	} else {
		b.WriteString("Your application has been submitted.\n")
	}
	b.WriteString("We will contact you once reviewers have looked at it.")
	return b.String()
}

// SendSubmissionNotification implements services.SubmissionNotifier.
func (n *MessengerNotifier) SendSubmissionNotification(ctx context.Context, userEmail, cycleName string) error {
	email := strings.TrimSpace(userEmail)
	if email == "" {
		return errors.New("notify: recipient is empty")
	}
	err := n.sendWithRetry(ctx, email, buildReceiptMessage(cycleName))
	if err == nil {
		return nil
	}
	if n.failures != nil {
		f := Failure{Target: "submission_receipt", Email: email, CycleName: cycleName, Err: err, Attempts: n.attempts, At: n.now()}
		if rerr := n.failures.RecordFailure(context.WithoutCancel(ctx), f); rerr != nil {
			n.logger.Printf("notify: record failure: %v", rerr)
		}
	}
	return err
}

func (n *MessengerNotifier) sendWithRetry(ctx context.Context, userID, text string) error {
	attempts := n.attempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if lastErr = n.send(ctx, userID, text); lastErr == nil {
			return nil
		}
		if i < attempts-1 && n.delay > 0 {
			select {
			case <-ctx.Done():
				return lastErr
			case <-time.After(n.delay):
			}
		}
	}
	return lastErr
}

func (n *MessengerNotifier) send(ctx context.Context, userID, text string) error {
	payload := map[string]any{"userId": userID, "text": text}
	if n.destination != "" {
		payload["destination"] = n.destination
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify: encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint+"/messages", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notify: send: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 1<<16))
		return fmt.Errorf("notify: gateway status=%d body=%s", res.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

// LogNotifier only logs. Used when no gateway is configured.
type LogNotifier struct{ Logger *log.Logger }

func (n LogNotifier) SendSubmissionNotification(_ context.Context, userEmail, cycleName string) error {
	logger := n.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger.Printf("notify: submission receipt for %s (cycle %q)", userEmail, cycleName)
	return nil
}
