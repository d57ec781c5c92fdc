package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"
)

// Submitter delivers a finished job's log to the attribution service.
type Submitter interface {
	Submit(ctx context.Context, logPath, user, jobID string) error
}

// ErrSubmissionRejected means the service answered with a 4xx: the
// request is permanently wrong and retrying it is pointless.
type ErrSubmissionRejected struct {
	error
}

func NewErrSubmissionRejected(status int, body string) *ErrSubmissionRejected {
	return &ErrSubmissionRejected{fmt.Errorf("submission rejected with status %d: %s", status, body)}
}

type submitRequest struct {
	LogPath string `json:"log_path"`
	User    string `json:"user"`
	JobID   string `json:"job_id,omitempty"`
}

// HTTPSubmitter posts logs to the attribution service, retrying
// transient failures with backoff inside one submission attempt.
type HTTPSubmitter struct {
	baseURL string
	client  *http.Client
}

func NewHTTPSubmitter(baseURL string) *HTTPSubmitter {
	return &HTTPSubmitter{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *HTTPSubmitter) Submit(ctx context.Context, logPath, user, jobID string) error {
	body, err := json.Marshal(submitRequest{LogPath: logPath, User: user, JobID: jobID})
	if err != nil {
		return err
	}

	return retry.Do(
		func() error {
			return s.post(ctx, body)
		},
		retry.Context(ctx),
		retry.Attempts(4),
		retry.LastErrorOnly(true),
		retry.Delay(2*time.Second),
		retry.OnRetry(func(n uint, err error) {
			zap.S().Named("submitter").Warnf("submission attempt %d for %s failed: %s", n+1, logPath, err)
		}),
	)
}

func (s *HTTPSubmitter) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/logs", bytes.NewReader(body))
	if err != nil {
		return retry.Unrecoverable(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return retry.Unrecoverable(NewErrSubmissionRejected(resp.StatusCode, string(msg)))
	default:
		return fmt.Errorf("submission failed with status %d", resp.StatusCode)
	}
}
