package filter

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sells-group/apply-cli/internal/model"
)

// Decision is the screening outcome for one opportunity.
type Decision struct {
	Accepted        bool                `json:"accepted"`
	Score           float64             `json:"score"`
	Reason          string              `json:"reason,omitempty"`
	ComponentScores map[string]float64  `json:"component_scores,omitempty"`
	MatchedKeywords map[string][]string `json:"matched_keywords,omitempty"`
}

// Filter evaluates opportunities against a rule set.
type Filter struct {
	rules Rules
	now   func() time.Time
}

// New creates a Filter. Zero-weight rule sets are rejected by Validate
// upstream; New trusts its input.
func New(rules Rules) *Filter {
	return &Filter{rules: rules, now: time.Now}
}

// Evaluate screens one opportunity. Hard rules short-circuit with a reject
// reason; otherwise the weighted score decides.
func (f *Filter) Evaluate(op model.Opportunity) Decision {
	text := strings.ToLower(op.Title + " " + op.Description)

	for _, kw := range f.rules.ExcludeKeywords {
		if kw != "" && strings.Contains(text, strings.ToLower(kw)) {
			return Decision{Reason: fmt.Sprintf("excluded keyword %q", kw)}
		}
	}

	if len(f.rules.Locations) > 0 && !f.locationAllowed(op.Location) {
		return Decision{Reason: fmt.Sprintf("location %q not in allowed list", op.Location)}
	}

	if f.rules.MaxAgeDays > 0 && !op.PostedDate.IsZero() {
		age := f.now().Sub(op.PostedDate)
		if age > time.Duration(f.rules.MaxAgeDays)*24*time.Hour {
			return Decision{Reason: fmt.Sprintf("posted %d days ago", int(age.Hours()/24))}
		}
	}

	if f.rules.MinSalary > 0 {
		if top, ok := topSalary(op.Salary); ok && top < f.rules.MinSalary {
			return Decision{Reason: fmt.Sprintf("salary below %d", f.rules.MinSalary)}
		}
	}

	components := make(map[string]float64)
	matched := make(map[string][]string)

	title := strings.ToLower(op.Title)
	components["title"] = keywordScore(title, f.rules.TitleKeywords, &matched, "title") * f.rules.TitleWeight

	components["skills"] = keywordScore(text, f.rules.SkillKeywords, &matched, "skills") * f.rules.SkillWeight

	company := strings.ToLower(op.Company)
	components["company"] = keywordScore(company, f.rules.PreferredCompanies, &matched, "company") * f.rules.CompanyWeight

	if isRemote(op.Location) {
		components["remote"] = f.rules.RemoteWeight
	}

	components["freshness"] = f.freshness(op.PostedDate) * f.rules.FreshnessWeight

	var score float64
	for _, c := range components {
		score += c
	}

	d := Decision{
		Score:           score,
		ComponentScores: components,
		MatchedKeywords: matched,
	}
	if score >= f.rules.MinScore {
		d.Accepted = true
	} else {
		d.Reason = fmt.Sprintf("score %.1f below threshold %.1f", score, f.rules.MinScore)
	}
	return d
}

func (f *Filter) locationAllowed(location string) bool {
	loc := strings.ToLower(location)
	for _, allowed := range f.rules.Locations {
		if strings.Contains(loc, strings.ToLower(allowed)) {
			return true
		}
	}
	return false
}

// freshness decays from 1 to 0 with the configured half-life.
func (f *Filter) freshness(posted time.Time) float64 {
	if posted.IsZero() || f.rules.FreshnessHalfLife <= 0 {
		return 0.5
	}
	days := f.now().Sub(posted).Hours() / 24
	if days < 0 {
		days = 0
	}
	return math.Pow(0.5, days/float64(f.rules.FreshnessHalfLife))
}

// keywordScore returns the fraction of keywords present in text.
func keywordScore(text string, keywords []string, matched *map[string][]string, component string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	var hits int
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(text, strings.ToLower(kw)) {
			hits++
			(*matched)[component] = append((*matched)[component], kw)
		}
	}
	return float64(hits) / float64(len(keywords))
}

func isRemote(location string) bool {
	return strings.Contains(strings.ToLower(location), "remote")
}

var salaryNumberRe = regexp.MustCompile(`\d[\d,]*`)

// topSalary extracts the largest number from a free-form salary string.
// "120k" style suffixes are expanded.
func topSalary(salary string) (int, bool) {
	if salary == "" {
		return 0, false
	}
	s := strings.ToLower(salary)
	nums := salaryNumberRe.FindAllStringIndex(s, -1)
	var top int
	for _, span := range nums {
		raw := strings.ReplaceAll(s[span[0]:span[1]], ",", "")
		n, err := strconv.Atoi(raw)
		if err != nil {
			continue
		}
		if span[1] < len(s) && s[span[1]] == 'k' {
			n *= 1000
		}
		if n > top {
			top = n
		}
	}
	return top, top > 0
}
