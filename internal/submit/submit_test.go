package submit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/apply-cli/internal/model"
	"github.com/sells-group/apply-cli/internal/resilience"
)

func testPackage(key string) Package {
	return Package{
		Opportunity: &model.Opportunity{
			Fingerprint: "fp-1",
			Title:       "Backend Engineer",
			Company:     "Acme",
			URL:         "https://boards.example.com/gh-101",
		},
		ResumeRef:      "/artifacts/fp-1/tailoring-v1.md",
		LetterRef:      "/artifacts/fp-1/letter_drafting-v1.md",
		IdempotencyKey: key,
	}
}

func TestIdempotencyKey(t *testing.T) {
	assert.Equal(t, "fp-1:0", IdempotencyKey("fp-1", 0))
	// Same attempt means same key, a new attempt means a new one.
	assert.Equal(t, IdempotencyKey("fp-1", 2), IdempotencyKey("fp-1", 2))
	assert.NotEqual(t, IdempotencyKey("fp-1", 2), IdempotencyKey("fp-1", 3))
}

func TestWebformSubmit(t *testing.T) {
	var gotKey string
	var gotPayload webformPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("Idempotency-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		_ = json.NewEncoder(w).Encode(webformResult{ConfirmationID: "conf-9"})
	}))
	t.Cleanup(srv.Close)

	ch, err := NewWebform(WebformOptions{Endpoint: srv.URL})
	require.NoError(t, err)

	receipt, err := ch.Submit(t.Context(), testPackage("fp-1:2"))
	require.NoError(t, err)
	assert.Equal(t, "conf-9", receipt.ConfirmationID)
	assert.False(t, receipt.Duplicate)
	assert.Equal(t, "fp-1:2", gotKey)
	assert.Equal(t, "Acme", gotPayload.Company)
}

func TestWebformConflictIsDuplicateSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	t.Cleanup(srv.Close)

	ch, err := NewWebform(WebformOptions{Endpoint: srv.URL})
	require.NoError(t, err)

	receipt, err := ch.Submit(t.Context(), testPackage("fp-1:2"))
	require.NoError(t, err)
	assert.True(t, receipt.Duplicate)
	assert.Equal(t, "fp-1:2", receipt.ConfirmationID)
}

func TestWebformClassifiesErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		want   resilience.Class
	}{
		{"rate limited", http.StatusTooManyRequests, resilience.ClassRateLimited},
		{"server error", http.StatusInternalServerError, resilience.ClassTransient},
		{"rejected", http.StatusUnprocessableEntity, resilience.ClassPermanent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
			}))
			t.Cleanup(srv.Close)

			ch, err := NewWebform(WebformOptions{Endpoint: srv.URL})
			require.NoError(t, err)

			_, err = ch.Submit(t.Context(), testPackage("fp-1:0"))
			require.Error(t, err)
			assert.Equal(t, tc.want, resilience.Classify(err))
		})
	}
}

func TestRecorderDeduplicates(t *testing.T) {
	rec := NewRecorder()

	first, err := rec.Submit(t.Context(), testPackage("fp-1:0"))
	require.NoError(t, err)
	assert.False(t, first.Duplicate)

	replay, err := rec.Submit(t.Context(), testPackage("fp-1:0"))
	require.NoError(t, err)
	assert.True(t, replay.Duplicate)

	fresh, err := rec.Submit(t.Context(), testPackage("fp-1:1"))
	require.NoError(t, err)
	assert.False(t, fresh.Duplicate)

	assert.Len(t, rec.Submissions(), 2)
}
