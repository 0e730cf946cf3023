//go:build !integration

package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/apply-cli/internal/model"
)

func TestFormatStageCounts_Empty(t *testing.T) {
	var buf bytes.Buffer
	formatStageCounts(&buf, nil)

	output := buf.String()
	assert.Contains(t, output, "STAGE")
	assert.Contains(t, output, "discovered")
	assert.Contains(t, output, "total")
}

func TestFormatStageCounts_Counts(t *testing.T) {
	counts := map[model.Stage]int{
		model.StageDiscovered: 12,
		model.StageSubmitted:  3,
		model.StageFailed:     1,
	}

	var buf bytes.Buffer
	formatStageCounts(&buf, counts)

	output := buf.String()
	assert.Contains(t, output, "12")
	assert.Regexp(t, `total\s+16`, output)
}

func TestFormatDailyStats(t *testing.T) {
	stats := []model.DailyStats{
		{Date: "2026-08-30", Discovered: 8, Submitted: 2, FollowUpsFired: 1},
		{Date: "2026-08-31", Discovered: 5, Submitted: 0, FollowUpsFired: 0},
	}

	var buf bytes.Buffer
	formatDailyStats(&buf, stats)

	output := buf.String()
	assert.Contains(t, output, "DATE")
	assert.Contains(t, output, "2026-08-30")
	assert.Contains(t, output, "2026-08-31")
	assert.Contains(t, output, "8")
}
