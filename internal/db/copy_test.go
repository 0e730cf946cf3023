package db

import (
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFrom_EmptyRows(t *testing.T) {
	n, err := CopyFrom(nil, nil, "raw_listings", []string{"source", "source_id"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyFrom_InsertsRows(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	mock.ExpectCopyFrom(pgx.Identifier{"raw_listings"}, []string{"source", "source_id"}).
		WillReturnResult(2)

	n, err := CopyFrom(t.Context(), mock, "raw_listings", []string{"source", "source_id"}, [][]any{
		{"linkedin", "a"},
		{"indeed", "b"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
