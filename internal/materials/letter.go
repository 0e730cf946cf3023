package materials

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/apply-cli/internal/model"
	"github.com/sells-group/apply-cli/internal/resilience"
	"github.com/sells-group/apply-cli/pkg/anthropic"
)

const letterSystemPrompt = `You write short cover letters. You will be given the candidate's background and one job listing. Write a specific, three-paragraph letter that connects the candidate's actual experience to the listing. No filler phrases. Respond with a valid JSON object: {"subject": "<email subject line>", "body": "<letter body as plain text>"}

Candidate: %s (%s)
Background:
%s

Highlights:
%s`

const letterUserPrompt = `Job listing:
Title: %s
Company: %s

Description:
%s

Write the cover letter.`

// CoverLetter is the parsed generation result.
type CoverLetter struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Render formats the letter as a single Markdown document for the
// artifact file.
func (l CoverLetter) Render() string {
	return fmt.Sprintf("# %s\n\n%s\n", l.Subject, l.Body)
}

// LetterWriter drafts cover letters for one listing at a time.
type LetterWriter struct {
	client anthropic.Client
	cfg    GenConfig
}

// NewLetterWriter creates a writer with default generation limits.
func NewLetterWriter(client anthropic.Client, cfg GenConfig) *LetterWriter {
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 2048
	}
	return &LetterWriter{client: client, cfg: cfg}
}

// Draft writes a cover letter for the opportunity.
func (w *LetterWriter) Draft(ctx context.Context, profile *Profile, op *model.Opportunity) (CoverLetter, error) {
	system := anthropic.BuildCachedSystemBlocks(fmt.Sprintf(letterSystemPrompt,
		profile.Name,
		profile.Email,
		profile.BaseResume,
		strings.Join(profile.Highlights, "\n"),
	))
	prompt := fmt.Sprintf(letterUserPrompt,
		op.Title,
		op.Company,
		truncate(op.Description, maxDescriptionChars),
	)

	resp, err := w.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     w.cfg.Model,
		MaxTokens: w.cfg.MaxTokens,
		System:    system,
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return CoverLetter{}, eris.Wrapf(err, "draft letter for %s", op.Fingerprint)
	}
	resp.Usage.LogCost(w.cfg.Model, "letter")

	letter, err := parseLetter(resp.Text())
	if err != nil {
		// A malformed generation is worth one more attempt.
		return CoverLetter{}, resilience.NewTransientError(eris.Wrapf(err, "parse letter for %s", op.Fingerprint), 0)
	}
	return letter, nil
}

func parseLetter(text string) (CoverLetter, error) {
	text = cleanJSON(text)
	var letter CoverLetter
	if err := json.Unmarshal([]byte(text), &letter); err != nil {
		return CoverLetter{}, eris.Wrap(err, "unmarshal letter")
	}
	if letter.Subject == "" || letter.Body == "" {
		return CoverLetter{}, eris.New("letter missing subject or body")
	}
	return letter, nil
}

// cleanJSON extracts a JSON object from text that may carry markdown
// code fences or surrounding prose.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
