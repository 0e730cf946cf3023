package source

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/apply-cli/internal/resilience"
)

func boardServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestBoardFetchMapsListings(t *testing.T) {
	var gotQuery string
	srv := boardServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(boardResponse{Results: []boardListing{
			{
				ID:           "gh-101",
				Title:        "Backend Engineer",
				Company:      "Acme",
				Location:     "Remote",
				URL:          "https://boards.example.com/gh-101",
				PostedAt:     "2026-08-20",
				Salary:       "$150k-$180k",
				Requirements: []string{"Go", "Postgres"},
			},
			{ID: "gh-102", Title: "", Company: "Acme"}, // malformed, skipped
		}})
	})

	board, err := NewBoard(BoardOptions{Name: "greenhouse", BaseURL: srv.URL, APIKey: "test-key"})
	require.NoError(t, err)

	listings, err := board.Fetch(t.Context(), Query{
		Keywords: []string{"backend", "go"},
		Location: "Remote",
		Limit:    50,
	})
	require.NoError(t, err)
	require.Len(t, listings, 1)

	got := listings[0]
	assert.Equal(t, "gh-101", got.SourceID)
	assert.Equal(t, "greenhouse", got.Source)
	assert.Equal(t, "Backend Engineer", got.Title)
	assert.Equal(t, []string{"Go", "Postgres"}, got.Requirements)
	assert.Equal(t, time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC), got.PostedDate)

	assert.Contains(t, gotQuery, "q=backend+go")
	assert.Contains(t, gotQuery, "location=Remote")
	assert.Contains(t, gotQuery, "limit=50")
}

func TestBoardFetchClassifiesErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		want   resilience.Class
	}{
		{"rate limited", http.StatusTooManyRequests, resilience.ClassRateLimited},
		{"server error", http.StatusBadGateway, resilience.ClassTransient},
		{"client error", http.StatusUnauthorized, resilience.ClassPermanent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := boardServer(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
			})
			board, err := NewBoard(BoardOptions{Name: "board", BaseURL: srv.URL})
			require.NoError(t, err)

			_, err = board.Fetch(t.Context(), Query{})
			require.Error(t, err)
			assert.Equal(t, tc.want, resilience.Classify(err))
		})
	}
}

func TestBoardFetchRejectsBadPayload(t *testing.T) {
	srv := boardServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>not json</html>"))
	})
	board, err := NewBoard(BoardOptions{Name: "board", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = board.Fetch(t.Context(), Query{})
	require.Error(t, err)
	assert.Equal(t, resilience.ClassPermanent, resilience.Classify(err))
}

func TestNewBoardValidates(t *testing.T) {
	_, err := NewBoard(BoardOptions{BaseURL: "https://example.com"})
	assert.Error(t, err)

	_, err = NewBoard(BoardOptions{Name: "board"})
	assert.Error(t, err)
}
