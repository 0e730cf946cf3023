package submit

import (
	"context"
	"sync"
)

// Recorder is an in-memory channel for tests and dry runs. It
// deduplicates on the idempotency key the way a real receiver would.
type Recorder struct {
	mu   sync.Mutex
	seen map[string]Package
	// FailNext makes the next Submit return this error once.
	FailNext error
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{seen: make(map[string]Package)}
}

func (r *Recorder) Name() string { return "recorder" }

// Submit records the package, returning Duplicate for a replayed key.
func (r *Recorder) Submit(_ context.Context, pkg Package) (Receipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.FailNext; err != nil {
		r.FailNext = nil
		return Receipt{}, err
	}
	if _, ok := r.seen[pkg.IdempotencyKey]; ok {
		return Receipt{ConfirmationID: pkg.IdempotencyKey, Duplicate: true}, nil
	}
	r.seen[pkg.IdempotencyKey] = pkg
	return Receipt{ConfirmationID: pkg.IdempotencyKey}, nil
}

// Submissions returns the distinct packages delivered so far.
func (r *Recorder) Submissions() []Package {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Package, 0, len(r.seen))
	for _, pkg := range r.seen {
		out = append(out, pkg)
	}
	return out
}
