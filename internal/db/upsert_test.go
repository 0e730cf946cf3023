package db

import (
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(nil, nil, UpsertConfig{
		Table:        "raw_listings",
		Columns:      []string{"source", "source_id"},
		ConflictKeys: []string{"source", "source_id"},
	}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_NoColumns(t *testing.T) {
	_, err := BulkUpsert(nil, nil, UpsertConfig{
		Table:        "raw_listings",
		ConflictKeys: []string{"source"},
	}, [][]any{{"linkedin", "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")
}

func TestBulkUpsert_NoConflictKeys(t *testing.T) {
	_, err := BulkUpsert(nil, nil, UpsertConfig{
		Table:   "raw_listings",
		Columns: []string{"source", "source_id"},
	}, [][]any{{"linkedin", "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestBulkUpsert_CopiesThroughTempTable(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_raw_listings"}, []string{"source", "source_id", "payload"}).
		WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "raw_listings"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := BulkUpsert(t.Context(), mock, UpsertConfig{
		Table:        "raw_listings",
		Columns:      []string{"source", "source_id", "payload"},
		ConflictKeys: []string{"source", "source_id"},
	}, [][]any{
		{"linkedin", "a", "{}"},
		{"linkedin", "b", "{}"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuoteAndJoin(t *testing.T) {
	result := quoteAndJoin([]string{"source", "source_id", "payload"})
	assert.Equal(t, `"source", "source_id", "payload"`, result)
}
