// Package filter decides which discovered opportunities are worth pursuing.
package filter

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Rules holds the screening criteria. Hard rules reject outright; weighted
// keyword scores rank the remainder against MinScore.
type Rules struct {
	// Hard rules.
	ExcludeKeywords []string `yaml:"exclude_keywords" mapstructure:"exclude_keywords"`
	Locations       []string `yaml:"locations" mapstructure:"locations"`
	MaxAgeDays      int      `yaml:"max_age_days" mapstructure:"max_age_days"`
	MinSalary       int      `yaml:"min_salary" mapstructure:"min_salary"`

	// Weighted scoring (weights sum to 100).
	TitleKeywords      []string `yaml:"title_keywords" mapstructure:"title_keywords"`
	TitleWeight        float64  `yaml:"title_weight" mapstructure:"title_weight"`
	SkillKeywords      []string `yaml:"skill_keywords" mapstructure:"skill_keywords"`
	SkillWeight        float64  `yaml:"skill_weight" mapstructure:"skill_weight"`
	PreferredCompanies []string `yaml:"preferred_companies" mapstructure:"preferred_companies"`
	CompanyWeight      float64  `yaml:"company_weight" mapstructure:"company_weight"`
	RemoteWeight       float64  `yaml:"remote_weight" mapstructure:"remote_weight"`
	FreshnessWeight    float64  `yaml:"freshness_weight" mapstructure:"freshness_weight"`
	FreshnessHalfLife  int      `yaml:"freshness_half_life_days" mapstructure:"freshness_half_life_days"`

	MinScore float64 `yaml:"min_score" mapstructure:"min_score"`
}

// DefaultRules returns a Rules with sensible defaults. Weights sum to 100.
func DefaultRules() Rules {
	return Rules{
		ExcludeKeywords: []string{
			"unpaid", "commission only", "mlm", "door to door",
		},
		MaxAgeDays: 30,

		TitleKeywords: []string{
			"software engineer", "backend", "platform", "infrastructure",
		},
		TitleWeight: 35,
		SkillKeywords: []string{
			"go", "golang", "postgres", "kubernetes", "distributed",
		},
		SkillWeight:       30,
		CompanyWeight:     10,
		RemoteWeight:      15,
		FreshnessWeight:   10,
		FreshnessHalfLife: 7,

		MinScore: 40,
	}
}

// LoadRules reads rules from a YAML file, filling defaults for zero fields.
func LoadRules(path string) (Rules, error) {
	r := DefaultRules()
	data, err := os.ReadFile(path)
	if err != nil {
		return r, eris.Wrapf(err, "filter: read rules %s", path)
	}
	if err := yaml.Unmarshal(data, &r); err != nil {
		return r, eris.Wrapf(err, "filter: parse rules %s", path)
	}
	if err := Validate(r); err != nil {
		return r, err
	}
	return r, nil
}

// WeightSum returns the sum of all component weights.
func WeightSum(r Rules) float64 {
	return r.TitleWeight + r.SkillWeight + r.CompanyWeight +
		r.RemoteWeight + r.FreshnessWeight
}

// Validate checks that a Rules is internally consistent.
func Validate(r Rules) error {
	var errs []string

	weights := map[string]float64{
		"title_weight":     r.TitleWeight,
		"skill_weight":     r.SkillWeight,
		"company_weight":   r.CompanyWeight,
		"remote_weight":    r.RemoteWeight,
		"freshness_weight": r.FreshnessWeight,
	}
	for name, w := range weights {
		if w < 0 {
			errs = append(errs, fmt.Sprintf("%s must be >= 0", name))
		}
	}

	sum := WeightSum(r)
	if sum <= 0 {
		errs = append(errs, "weight sum must be > 0")
	}
	if math.Abs(sum-100) > 1 {
		errs = append(errs, fmt.Sprintf("weights should sum to 100, got %.1f", sum))
	}

	if r.MinScore < 0 || r.MinScore > 100 {
		errs = append(errs, "min_score must be between 0 and 100")
	}
	if r.MaxAgeDays < 0 {
		errs = append(errs, "max_age_days must be >= 0")
	}
	if r.MinSalary < 0 {
		errs = append(errs, "min_salary must be >= 0")
	}

	if len(errs) > 0 {
		return eris.Errorf("filter: rules validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
