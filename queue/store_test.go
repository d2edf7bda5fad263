package queue

import (
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandlens/brandlens/errors"
)

// Failure paths use sqlmock; the happy paths run against a real database
// in queue_test.go.

func TestStore_CreateJobError(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	mock.ExpectExec("INSERT INTO monitoring_jobs").WillReturnError(errors.New("disk I/O error"))

	store := NewStore(mockDB)
	job := mustJob(t)
	err = store.CreateJob(job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create job")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GetJobNoRows(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	mock.ExpectQuery("SELECT (.+) FROM monitoring_jobs WHERE id").
		WithArgs("j1").
		WillReturnError(sql.ErrNoRows)

	store := NewStore(mockDB)
	_, err = store.GetJob("j1")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_DeleteJobMissing(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	mock.ExpectExec("DELETE FROM monitoring_jobs WHERE id").
		WithArgs("j1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	store := NewStore(mockDB)
	err = store.DeleteJob("j1")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CleanupOldJobsCount(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	mock.ExpectExec("DELETE FROM monitoring_jobs").
		WillReturnResult(sqlmock.NewResult(0, 3))

	store := NewStore(mockDB)
	pruned, err := store.CleanupOldJobs(0)
	require.NoError(t, err)
	assert.Equal(t, 3, pruned)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ListJobsQueryError(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	mock.ExpectQuery("SELECT (.+) FROM monitoring_jobs").
		WillReturnError(errors.New("table locked"))

	store := NewStore(mockDB)
	_, err = store.ListJobs(nil, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list jobs")
	assert.NoError(t, mock.ExpectationsWereMet())
}
