package source

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/apply-cli/internal/model"
)

// FileSource reads listings from a JSON file. Used for offline imports
// and dry runs against saved board responses.
type FileSource struct {
	name string
	path string
}

// NewFile creates a file-backed source named after the file stem.
func NewFile(path string) *FileSource {
	base := path
	if idx := strings.LastIndexByte(base, '/'); idx >= 0 {
		base = base[idx+1:]
	}
	base = strings.TrimSuffix(base, ".json")
	return &FileSource{name: "file:" + base, path: path}
}

func (f *FileSource) Name() string { return f.name }

// Fetch loads every listing in the file and applies the query's keyword
// and limit constraints client-side.
func (f *FileSource) Fetch(ctx context.Context, q Query) ([]model.RawListing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, eris.Wrapf(err, "read listings file %s", f.path)
	}
	var listings []model.RawListing
	if err := json.Unmarshal(data, &listings); err != nil {
		return nil, eris.Wrapf(err, "parse listings file %s", f.path)
	}

	out := make([]model.RawListing, 0, len(listings))
	for _, l := range listings {
		if l.Source == "" {
			l.Source = f.name
		}
		if !matchesKeywords(l, q.Keywords) {
			continue
		}
		out = append(out, l)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out, nil
}

func matchesKeywords(l model.RawListing, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	haystack := strings.ToLower(l.Title + " " + l.Description)
	for _, kw := range keywords {
		if strings.Contains(haystack, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
