package materials

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/apply-cli/internal/model"
	"github.com/sells-group/apply-cli/internal/resilience"
	"github.com/sells-group/apply-cli/pkg/anthropic"
)

const tailorSystemPrompt = `You are a resume editor. You will be given a candidate's base resume and one job listing. Rewrite the resume to emphasize the experience most relevant to the listing. Never invent employers, titles, dates, or credentials that are not in the base resume. Output the full resume as Markdown, nothing else.

Candidate base resume:
%s`

const tailorUserPrompt = `Job listing:
Title: %s
Company: %s
Location: %s
Requirements: %s

Description:
%s

Rewrite the resume for this listing.`

// maxDescriptionChars bounds how much listing text goes into a prompt.
const maxDescriptionChars = 4000

// GenConfig selects the model used for document generation.
type GenConfig struct {
	Model     string
	MaxTokens int64
}

// ResumeTailor rewrites the base resume for one listing.
type ResumeTailor struct {
	client anthropic.Client
	cfg    GenConfig
}

// NewResumeTailor creates a tailor with default generation limits.
func NewResumeTailor(client anthropic.Client, cfg GenConfig) *ResumeTailor {
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4096
	}
	return &ResumeTailor{client: client, cfg: cfg}
}

// Tailor produces a resume targeted at the opportunity. The base resume
// rides in a cached system block so repeated calls share the prefix.
func (t *ResumeTailor) Tailor(ctx context.Context, profile *Profile, op *model.Opportunity) (string, error) {
	system := anthropic.BuildCachedSystemBlocks(fmt.Sprintf(tailorSystemPrompt, profile.BaseResume))
	prompt := fmt.Sprintf(tailorUserPrompt,
		op.Title,
		op.Company,
		op.Location,
		strings.Join(op.Requirements, ", "),
		truncate(op.Description, maxDescriptionChars),
	)

	resp, err := t.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     t.cfg.Model,
		MaxTokens: t.cfg.MaxTokens,
		System:    system,
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", eris.Wrapf(err, "tailor resume for %s", op.Fingerprint)
	}
	resp.Usage.LogCost(t.cfg.Model, "tailor")

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", resilience.NewTransientError(eris.Errorf("empty resume for %s", op.Fingerprint), 0)
	}
	zap.L().Debug("resume tailored",
		zap.String("fingerprint", op.Fingerprint),
		zap.Int("chars", len(text)),
	)
	return text, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
