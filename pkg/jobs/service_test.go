package jobs

import (
	"context"
	"database/sql"
	"testing"

	"github.com/hondanahq/hondana/pkg/migrations"
	"github.com/hondanahq/hondana/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	models.RegisterJoinModels(db)

	_, err = migrations.BringUpToDate(context.Background(), db)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func TestCreateAndRetrieveJob(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	job := &models.Job{
		Type:   models.JobTypeMetadataRefresh,
		Status: models.JobStatusPending,
		DataParsed: &models.JobMetadataRefreshData{
			BookIDs: []int{1, 2, 3},
		},
	}
	require.NoError(t, svc.CreateJob(ctx, job))
	require.NotZero(t, job.ID)

	stored, err := svc.RetrieveJob(ctx, RetrieveJobOptions{ID: &job.ID})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, stored.Status)

	data, ok := stored.DataParsed.(*models.JobMetadataRefreshData)
	require.True(t, ok)
	assert.Equal(t, []int{1, 2, 3}, data.BookIDs)
}

func TestListJobs(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	for _, status := range []string{models.JobStatusPending, models.JobStatusCompleted, models.JobStatusError} {
		job := &models.Job{
			Type:       models.JobTypeMetadataRefresh,
			Status:     status,
			DataParsed: &models.JobMetadataRefreshData{},
		}
		require.NoError(t, svc.CreateJob(ctx, job))
	}

	jobs, total, err := svc.ListJobsWithTotal(ctx, ListJobsOptions{
		Statuses: []string{models.JobStatusPending, models.JobStatusError},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, jobs, 2)
}

func TestHasActiveJobByType(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	active, err := svc.HasActiveJobByType(ctx, models.JobTypeMetadataRefresh)
	require.NoError(t, err)
	assert.False(t, active)

	job := &models.Job{
		Type:       models.JobTypeMetadataRefresh,
		Status:     models.JobStatusInProgress,
		DataParsed: &models.JobMetadataRefreshData{},
	}
	require.NoError(t, svc.CreateJob(ctx, job))

	active, err = svc.HasActiveJobByType(ctx, models.JobTypeMetadataRefresh)
	require.NoError(t, err)
	assert.True(t, active)
}

func TestCancelRegistry(t *testing.T) {
	t.Parallel()
	registry := NewCancelRegistry()

	assert.False(t, registry.Cancelled(7))

	registry.Request(7)
	assert.True(t, registry.Cancelled(7))
	assert.False(t, registry.Cancelled(8))

	registry.Clear(7)
	assert.False(t, registry.Cancelled(7))
}
