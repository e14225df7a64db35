package anchor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/yungbote/tessera-backend/internal/platform/ctxutil"
	"github.com/yungbote/tessera-backend/internal/platform/envutil"
	"github.com/yungbote/tessera-backend/internal/platform/logger"
)

type HTTPSinkConfig struct {
	Endpoint   string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
}

func HTTPSinkConfigFromEnv() HTTPSinkConfig {
	timeoutSec := envutil.Int("ANCHOR_TIMEOUT_SECONDS", 30)
	return HTTPSinkConfig{
		Endpoint:   strings.TrimSpace(os.Getenv("ANCHOR_ENDPOINT")),
		APIKey:     strings.TrimSpace(os.Getenv("ANCHOR_API_KEY")),
		Timeout:    time.Duration(timeoutSec) * time.Second,
		MaxRetries: envutil.Int("ANCHOR_MAX_RETRIES", 2),
	}
}

// HTTPSink posts transactions to an anchoring gateway. The gateway
// answers with the forward and external transaction identifiers it
// assigned.
type HTTPSink struct {
	log        *logger.Logger
	cfg        HTTPSinkConfig
	httpClient *http.Client
}

func NewHTTPSink(baseLog *logger.Logger, cfg HTTPSinkConfig) (*HTTPSink, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("missing ANCHOR_ENDPOINT")
	}
	cfg.Endpoint = strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &HTTPSink{
		log:        baseLog.With("sink", "HTTPSink"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (s *HTTPSink) Name() string { return "http" }

type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	msg := strings.TrimSpace(e.Body)
	if msg == "" {
		msg = "<empty body>"
	}
	if len(msg) > 2000 {
		msg = msg[:2000] + "..."
	}
	return fmt.Sprintf("anchor http %d: %s", e.StatusCode, msg)
}

func (s *HTTPSink) Submit(ctx context.Context, tx *Transaction) (*Receipt, error) {
	backoff := 1 * time.Second

	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		receipt, err := s.submitOnce(ctx, tx)
		if err == nil {
			return receipt, nil
		}

		if !retryable(err) || attempt == s.cfg.MaxRetries {
			return nil, err
		}

		s.log.Warn("anchor submit retrying",
			"transaction_id", tx.TransactionID,
			"attempt", attempt+1,
			"max_retries", s.cfg.MaxRetries,
			"sleep", backoff.String(),
			"error", err.Error(),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return nil, errors.New("unreachable retry loop")
}

func (s *HTTPSink) submitOnce(ctx context.Context, tx *Transaction) (*Receipt, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(tx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint+"/v1/transactions", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}
	if td := ctxutil.GetTraceData(ctx); td != nil {
		if td.TraceID != "" {
			req.Header.Set("X-Trace-Id", td.TraceID)
		}
		if td.RequestID != "" {
			req.Header.Set("X-Request-Id", td.RequestID)
		}
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, readErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var receipt Receipt
	if err := json.Unmarshal(raw, &receipt); err != nil {
		return nil, fmt.Errorf("decode anchor receipt: %w", err)
	}
	if receipt.ForwardTxID == "" {
		receipt.ForwardTxID = tx.TransactionID
	}
	return &receipt, nil
}

func retryable(err error) bool {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode == http.StatusTooManyRequests || he.StatusCode >= 500
	}
	// Transport-level failures (refused, reset, timeout) are worth a
	// retry; context cancellation is not.
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
