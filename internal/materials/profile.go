// Package materials generates tailored application documents and keeps
// their versioned files on disk.
package materials

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Profile is the candidate's static application material.
type Profile struct {
	Name       string   `yaml:"name"`
	Email      string   `yaml:"email"`
	Phone      string   `yaml:"phone"`
	Location   string   `yaml:"location"`
	BaseResume string   `yaml:"base_resume"`
	Highlights []string `yaml:"highlights"`
}

// LoadProfile reads the candidate profile from a YAML file.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read profile %s", path)
	}
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, eris.Wrapf(err, "parse profile %s", path)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks that the fields every generated document needs are set.
func (p *Profile) Validate() error {
	if p.Name == "" {
		return eris.New("profile missing name")
	}
	if p.Email == "" {
		return eris.New("profile missing email")
	}
	if p.BaseResume == "" {
		return eris.New("profile missing base_resume")
	}
	return nil
}
