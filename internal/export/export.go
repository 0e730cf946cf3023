// Package export writes the tracked pipeline to an xlsx workbook.
package export

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/apply-cli/internal/model"
	"github.com/sells-group/apply-cli/internal/store"
)

// Options controls the workbook contents.
type Options struct {
	// StatsDays is how many days of daily counters to include.
	StatsDays int
	// Limit caps exported opportunities. Zero means a large default;
	// exports are point-in-time reports, not dumps.
	Limit int
}

// Write builds the workbook and saves it to path.
func Write(ctx context.Context, st store.Store, path string, opts Options) error {
	if opts.StatsDays <= 0 {
		opts.StatsDays = 30
	}
	if opts.Limit <= 0 {
		opts.Limit = 10000
	}

	f := xlsx.NewFile()
	ops, err := addOpportunitiesSheet(ctx, f, st, opts.Limit)
	if err != nil {
		return err
	}
	if err := addHistorySheet(ctx, f, st, ops); err != nil {
		return err
	}
	if err := addStatsSheet(ctx, f, st, opts.StatsDays); err != nil {
		return err
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "save workbook %s", path)
	}
	zap.L().Info("workbook exported",
		zap.String("path", path),
		zap.Int("opportunities", len(ops)),
	)
	return nil
}

var opportunityHeader = []string{
	"Fingerprint", "Title", "Company", "Location", "Stage",
	"Sources", "URL", "Discovered", "Updated", "Last Error",
}

func addOpportunitiesSheet(ctx context.Context, f *xlsx.File, st store.Store, limit int) ([]model.Opportunity, error) {
	sheet, err := f.AddSheet("Opportunities")
	if err != nil {
		return nil, eris.Wrap(err, "add opportunities sheet")
	}
	writeRow(sheet, opportunityHeader...)

	ops, err := st.ListAll(ctx, limit)
	if err != nil {
		return nil, eris.Wrap(err, "list opportunities for export")
	}
	for _, op := range ops {
		writeRow(sheet,
			op.Fingerprint,
			op.Title,
			op.Company,
			op.Location,
			string(op.Stage),
			strings.Join(op.Sources, ", "),
			op.URL,
			op.DiscoveredAt.Format(time.RFC3339),
			op.UpdatedAt.Format(time.RFC3339),
			op.LastError,
		)
	}
	return ops, nil
}

func addHistorySheet(ctx context.Context, f *xlsx.File, st store.Store, ops []model.Opportunity) error {
	sheet, err := f.AddSheet("History")
	if err != nil {
		return eris.Wrap(err, "add history sheet")
	}
	writeRow(sheet, "Fingerprint", "From", "To", "Outcome", "At")

	for _, op := range ops {
		entries, err := st.History(ctx, op.Fingerprint)
		if err != nil {
			return eris.Wrapf(err, "history for %s", op.Fingerprint)
		}
		for _, e := range entries {
			writeRow(sheet,
				e.Fingerprint,
				string(e.FromStage),
				string(e.ToStage),
				e.Outcome,
				e.OccurredAt.Format(time.RFC3339),
			)
		}
	}
	return nil
}

func addStatsSheet(ctx context.Context, f *xlsx.File, st store.Store, days int) error {
	sheet, err := f.AddSheet("Statistics")
	if err != nil {
		return eris.Wrap(err, "add statistics sheet")
	}
	writeRow(sheet, "Date", "Discovered", "Submitted", "Follow-ups Fired")

	stats, err := st.Stats(ctx, days)
	if err != nil {
		return eris.Wrap(err, "load statistics")
	}
	for _, day := range stats {
		writeRow(sheet,
			day.Date,
			strconv.Itoa(day.Discovered),
			strconv.Itoa(day.Submitted),
			strconv.Itoa(day.FollowUpsFired),
		)
	}
	return nil
}

func writeRow(sheet *xlsx.Sheet, values ...string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}
