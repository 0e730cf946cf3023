package fingerprint

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/apply-cli/internal/model"
)

func TestIdentify_SameJobAcrossSources(t *testing.T) {
	a := model.RawListing{
		Title:       "Engineer",
		Company:     "Acme",
		Location:    "Remote",
		Source:      "LinkedIn",
		Description: "We are hiring an engineer.",
		PostedDate:  time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
	}
	b := model.RawListing{
		Title:       "engineer",
		Company:     "ACME",
		Location:    "remote",
		Source:      "Indeed",
		Description: "We are hiring an engineer. Reposted.",
		PostedDate:  time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC),
	}

	assert.Equal(t, Identify(a), Identify(b))
}

func TestIdentify_DescriptionDriftDoesNotForkIdentity(t *testing.T) {
	a := model.RawListing{Title: "Data Scientist", Company: "Globex", Location: "NYC", Description: "original text"}
	b := model.RawListing{Title: "Data Scientist", Company: "Globex", Location: "NYC", Description: "completely rewritten text after repost"}

	assert.Equal(t, Identify(a), Identify(b))
}

func TestIdentify_DifferentJobsDiffer(t *testing.T) {
	a := model.RawListing{Title: "Engineer", Company: "Acme", Location: "Remote"}
	b := model.RawListing{Title: "Engineer", Company: "Acme", Location: "Berlin"}
	c := model.RawListing{Title: "Senior Engineer", Company: "Acme", Location: "Remote"}

	assert.NotEqual(t, Identify(a), Identify(b))
	assert.NotEqual(t, Identify(a), Identify(c))
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"  Software   Engineer ", "software engineer"},
		{"Sr. Engineer (Backend)", "sr engineer backend"},
		{"ACME, Inc.", "acme inc"},
		{"Café — Remote", "café remote"},
		{"", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Normalize(tc.in), "input %q", tc.in)
	}
}

func TestDescriptionPrefix_Truncates(t *testing.T) {
	long := ""
	for i := 0; i < 100; i++ {
		long += "lorem ipsum "
	}
	p := DescriptionPrefix(long)
	assert.LessOrEqual(t, len(p), descPrefixLen)
	assert.NotEmpty(t, p)
}

func TestMerge_UnionSourcesKeepEarliestPostedDate(t *testing.T) {
	early := time.Date(2025, 4, 28, 0, 0, 0, 0, time.UTC)
	late := time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC)

	existing := model.Opportunity{
		Fingerprint: "fp",
		Sources:     []string{"LinkedIn"},
		PostedDate:  late,
		Title:       "Engineer",
	}
	merged := Merge(existing, model.RawListing{Source: "Indeed", PostedDate: early})

	require.ElementsMatch(t, []string{"LinkedIn", "Indeed"}, merged.Sources)
	assert.Equal(t, early, merged.PostedDate)
	assert.Equal(t, "Engineer", merged.Title)
}

func TestMerge_SameSourceIsNoop(t *testing.T) {
	existing := model.Opportunity{Sources: []string{"LinkedIn"}}
	merged := Merge(existing, model.RawListing{Source: "LinkedIn"})
	assert.Equal(t, []string{"LinkedIn"}, merged.Sources)
}
