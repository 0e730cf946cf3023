package submit

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/apply-cli/internal/resilience"
)

// WebformOptions configures the HTTP application endpoint.
type WebformOptions struct {
	Endpoint  string
	APIKey    string
	UserAgent string
	Timeout   time.Duration
}

// WebformChannel POSTs applications to a board's application endpoint.
// The idempotency key travels in a header so the receiver can drop
// replays of the same attempt.
type WebformChannel struct {
	opts   WebformOptions
	client *http.Client
}

// NewWebform creates the channel.
func NewWebform(opts WebformOptions) (*WebformChannel, error) {
	if opts.Endpoint == "" {
		return nil, eris.New("webform channel requires an endpoint")
	}
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "apply-cli/1.0"
	}
	return &WebformChannel{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
	}, nil
}

func (c *WebformChannel) Name() string { return "webform" }

type webformPayload struct {
	Fingerprint string `json:"fingerprint"`
	Title       string `json:"title"`
	Company     string `json:"company"`
	ListingURL  string `json:"listing_url"`
	ResumeRef   string `json:"resume_ref"`
	LetterRef   string `json:"letter_ref"`
}

type webformResult struct {
	ConfirmationID string `json:"confirmation_id"`
	Duplicate      bool   `json:"duplicate"`
}

// Submit delivers one package. 409 means the receiver already has this
// idempotency key, which counts as success.
func (c *WebformChannel) Submit(ctx context.Context, pkg Package) (Receipt, error) {
	op := pkg.Opportunity
	body, err := json.Marshal(webformPayload{
		Fingerprint: op.Fingerprint,
		Title:       op.Title,
		Company:     op.Company,
		ListingURL:  op.URL,
		ResumeRef:   pkg.ResumeRef,
		LetterRef:   pkg.LetterRef,
	})
	if err != nil {
		return Receipt{}, eris.Wrap(err, "marshal application payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.Endpoint, bytes.NewReader(body))
	if err != nil {
		return Receipt{}, eris.Wrap(err, "build application request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.opts.UserAgent)
	req.Header.Set("Idempotency-Key", pkg.IdempotencyKey)
	if c.opts.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Receipt{}, resilience.NewTransientError(eris.Wrap(err, "submit application"), 0)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusConflict:
		// Receiver saw this key already. The application landed.
		zap.L().Info("submission deduplicated by receiver",
			zap.String("fingerprint", op.Fingerprint),
			zap.String("idempotency_key", pkg.IdempotencyKey),
		)
		return Receipt{ConfirmationID: pkg.IdempotencyKey, Duplicate: true}, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return Receipt{}, resilience.NewRateLimitError(eris.New("application endpoint rate limited"))
	case resp.StatusCode >= 500:
		return Receipt{}, resilience.NewTransientError(eris.Errorf("application endpoint returned %d", resp.StatusCode), resp.StatusCode)
	case resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated:
		return Receipt{}, resilience.NewPermanentError(eris.Errorf("application endpoint returned %d", resp.StatusCode))
	}

	var result webformResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Receipt{}, resilience.NewTransientError(eris.Wrap(err, "decode application response"), 0)
	}
	if result.ConfirmationID == "" {
		result.ConfirmationID = pkg.IdempotencyKey
	}
	return Receipt{ConfirmationID: result.ConfirmationID, Duplicate: result.Duplicate}, nil
}
