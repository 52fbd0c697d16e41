package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var trialCols = []string{"fit_id", "idx", "r1", "d1", "r2", "d2", "choice"}

func TestCopyFrom_EmptyRows(t *testing.T) {
	n, err := CopyFrom(context.TODO(), nil, "fit_trials", trialCols, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyFrom_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"fit_trials"}, trialCols).WillReturnResult(2)

	rows := [][]any{
		{"fit-1", 0, 20.0, 0.0, 40.0, 60.0, 1},
		{"fit-1", 1, 20.0, 15.0, 40.0, 30.0, 0},
	}
	n, err := CopyFrom(context.Background(), mock, "fit_trials", trialCols, rows)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"fit_trials"}, trialCols).WillReturnError(fmt.Errorf("copy failed"))

	rows := [][]any{{"fit-1", 0, 20.0, 0.0, 40.0, 60.0, 1}}
	_, err = CopyFrom(context.Background(), mock, "fit_trials", trialCols, rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO fit_trials")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_InTransaction(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectCopyFrom(pgx.Identifier{"fit_trials"}, trialCols).WillReturnResult(1)
	mock.ExpectCommit()

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)
	n, err := CopyFrom(context.Background(), tx, "fit_trials", trialCols, [][]any{{"fit-1", 0, 20.0, 0.0, 40.0, 60.0, 1}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	require.NoError(t, tx.Commit(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
