package source

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/apply-cli/internal/model"
	"github.com/sells-group/apply-cli/internal/resilience"
)

// BoardOptions configures a JSON job board client.
type BoardOptions struct {
	Name      string
	BaseURL   string
	APIKey    string
	UserAgent string
	Timeout   time.Duration
}

// BoardSource fetches listings from a JSON search API.
type BoardSource struct {
	opts   BoardOptions
	client *http.Client
}

// NewBoard creates a board client with sane HTTP defaults.
func NewBoard(opts BoardOptions) (*BoardSource, error) {
	if opts.Name == "" {
		return nil, eris.New("board source requires a name")
	}
	if opts.BaseURL == "" {
		return nil, eris.Errorf("board source %s requires a base URL", opts.Name)
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "apply-cli/1.0"
	}
	transport := &http.Transport{
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     90 * time.Second,
	}
	return &BoardSource{
		opts: opts,
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
	}, nil
}

// Name returns the board identifier used for rate limiting and audit rows.
func (b *BoardSource) Name() string { return b.opts.Name }

// boardListing is the wire shape most JSON boards share.
type boardListing struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Company      string   `json:"company"`
	Location     string   `json:"location"`
	Description  string   `json:"description"`
	URL          string   `json:"url"`
	PostedAt     string   `json:"posted_at"`
	Salary       string   `json:"salary"`
	Requirements []string `json:"requirements"`
	Benefits     []string `json:"benefits"`
}

type boardResponse struct {
	Results []boardListing `json:"results"`
}

// Fetch runs one search against the board and maps the results. HTTP
// failures are classified so callers can decide between retry and abandon:
// 429 is a rate limit, 5xx is transient, anything else non-200 is permanent.
func (b *BoardSource) Fetch(ctx context.Context, q Query) ([]model.RawListing, error) {
	searchURL, err := b.searchURL(q)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "build request for %s", b.opts.Name)
	}
	req.Header.Set("User-Agent", b.opts.UserAgent)
	req.Header.Set("Accept", "application/json")
	if b.opts.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.opts.APIKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrapf(err, "fetch %s", b.opts.Name), 0)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, resilience.NewRateLimitError(eris.Errorf("http 429 from %s", b.opts.Name))
	case resp.StatusCode >= 500:
		return nil, resilience.NewTransientError(eris.Errorf("http %d from %s", resp.StatusCode, b.opts.Name), resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, resilience.NewPermanentError(eris.Errorf("http %d from %s", resp.StatusCode, b.opts.Name))
	}

	var body boardResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, resilience.NewPermanentError(eris.Wrapf(err, "decode %s response", b.opts.Name))
	}

	listings := make([]model.RawListing, 0, len(body.Results))
	for _, raw := range body.Results {
		listing, err := b.mapListing(raw)
		if err != nil {
			zap.L().Warn("skipping malformed listing",
				zap.String("source", b.opts.Name),
				zap.String("source_id", raw.ID),
				zap.Error(err),
			)
			continue
		}
		listings = append(listings, listing)
	}

	zap.L().Debug("board fetch complete",
		zap.String("source", b.opts.Name),
		zap.Int("listings", len(listings)),
	)
	return listings, nil
}

func (b *BoardSource) searchURL(q Query) (string, error) {
	u, err := url.Parse(b.opts.BaseURL)
	if err != nil {
		return "", eris.Wrapf(err, "parse base URL for %s", b.opts.Name)
	}
	params := u.Query()
	if len(q.Keywords) > 0 {
		params.Set("q", strings.Join(q.Keywords, " "))
	}
	if q.Location != "" {
		params.Set("location", q.Location)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	u.RawQuery = params.Encode()
	return u.String(), nil
}

func (b *BoardSource) mapListing(raw boardListing) (model.RawListing, error) {
	if raw.ID == "" {
		return model.RawListing{}, eris.New("listing missing id")
	}
	if raw.Title == "" || raw.Company == "" {
		return model.RawListing{}, eris.Errorf("listing %s missing title or company", raw.ID)
	}
	listing := model.RawListing{
		SourceID:     raw.ID,
		Source:       b.opts.Name,
		Title:        raw.Title,
		Company:      raw.Company,
		Location:     raw.Location,
		Description:  raw.Description,
		URL:          raw.URL,
		Salary:       raw.Salary,
		Requirements: raw.Requirements,
		Benefits:     raw.Benefits,
	}
	if raw.PostedAt != "" {
		posted, err := parsePostedDate(raw.PostedAt)
		if err != nil {
			zap.L().Debug("unparseable posted date",
				zap.String("source_id", raw.ID),
				zap.String("posted_at", raw.PostedAt),
			)
		} else {
			listing.PostedDate = posted
		}
	}
	return listing, nil
}

var postedDateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006-01-02 15:04:05",
}

func parsePostedDate(s string) (time.Time, error) {
	for _, layout := range postedDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, eris.Errorf("unrecognized date format %q", s)
}
