package repo

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spritegen/internal/domain"
	"spritegen/internal/sqlinline"
)

func TestJobStoreUpdateProgress(t *testing.T) {
	tests := []struct {
		name      string
		status    string
		current   int
		progress  int
		wantErr   error
		wantWrite bool
	}{
		{name: "first transition", status: "queued", current: 0, progress: 10, wantWrite: true},
		{name: "same value allowed", status: "processing", current: 40, progress: 40, wantWrite: true},
		{name: "regression rejected", status: "processing", current: 40, progress: 30, wantErr: domain.ErrProgressRegression},
		{name: "terminal rejected", status: "cancelled", current: 40, progress: 50, wantErr: domain.ErrJobTerminal},
		{name: "out of range", status: "processing", current: 0, progress: 120, wantErr: domain.ErrProgressOutOfRange},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			db := newStubDB()
			db.rows[sqlinline.QLockJobProgress] = values(tc.status, tc.current)

			err := NewJobStore(db).UpdateProgress(context.Background(), "job-1", tc.progress, "step")
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tc.wantWrite, db.called(sqlinline.QUpdateJobProgress))
		})
	}
}

func TestJobStoreUpdateProgressMissingJob(t *testing.T) {
	db := newStubDB()
	db.rows[sqlinline.QLockJobProgress] = noRows()
	err := NewJobStore(db).UpdateProgress(context.Background(), "missing", 10, "step")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestJobStoreCancel(t *testing.T) {
	t.Run("applied", func(t *testing.T) {
		db := newStubDB()
		db.execs[sqlinline.QCancelJob] = tag(1)
		outcome, err := NewJobStore(db).Cancel(context.Background(), "job-1")
		require.NoError(t, err)
		assert.Equal(t, domain.CancelApplied, outcome)
		assert.Equal(t, domain.CancelledMessage, db.args[sqlinline.QCancelJob][1])
	})
	t.Run("already terminal", func(t *testing.T) {
		db := newStubDB()
		db.execs[sqlinline.QCancelJob] = tag(0)
		db.rows[sqlinline.QJobExists] = values(true)
		outcome, err := NewJobStore(db).Cancel(context.Background(), "job-1")
		require.NoError(t, err)
		assert.Equal(t, domain.CancelAlreadyDone, outcome)
	})
	t.Run("missing", func(t *testing.T) {
		db := newStubDB()
		db.execs[sqlinline.QCancelJob] = tag(0)
		db.rows[sqlinline.QJobExists] = values(false)
		_, err := NewJobStore(db).Cancel(context.Background(), "job-1")
		assert.ErrorIs(t, err, domain.ErrJobNotFound)
	})
}

func TestJobStoreFailAndCompleteOnTerminalJob(t *testing.T) {
	db := newStubDB()
	db.execs[sqlinline.QFailJob] = tag(0)
	db.execs[sqlinline.QCompleteJob] = tag(0)
	db.rows[sqlinline.QJobExists] = values(true)
	store := NewJobStore(db)

	assert.ErrorIs(t, store.Fail(context.Background(), "job-1", "boom"), domain.ErrJobTerminal)
	assert.NoError(t, store.Complete(context.Background(), "job-1", json.RawMessage(`{}`)))
}

func TestJobStoreGetStatusMissing(t *testing.T) {
	db := newStubDB()
	db.rows[sqlinline.QJobStatus] = noRows()
	snap, err := NewJobStore(db).GetStatus(context.Background(), "missing")
	require.NoError(t, err)
	assert.Equal(t, domain.MissingJobSnapshot(), snap)
}

func TestJobStoreGetJob(t *testing.T) {
	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	started := created.Add(time.Second)
	db := newStubDB()
	db.rows[sqlinline.QGetJob] = values(
		"job-1", "u1", "parallax-generation", "processing", 36, "layer-1",
		[]byte(`{"sceneId":"s1","layerCount":5}`), nil, "", 5, "s1", created, &started, nil,
	)

	job, err := NewJobStore(db).GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobTypeParallax, job.Type)
	assert.Equal(t, domain.JobStatusProcessing, job.Status)
	assert.Equal(t, 36, job.Progress)
	assert.Nil(t, job.Result)
	require.NotNil(t, job.StartedAt)
	assert.Equal(t, started, *job.StartedAt)
	assert.Nil(t, job.CompletedAt)
}

func TestJobStoreReconcilePrediction(t *testing.T) {
	created := time.Now()
	db := newStubDB()
	db.rows[sqlinline.QLockStepByPrediction] = values(
		"step-1", "job-1", "sprite-generation", "sprite-walk-left", 3, "processing",
		[]byte(`{"predictionId":"p-9"}`), "", "p-9", int64(0), created,
	)

	step, err := NewJobStore(db).ReconcilePrediction(context.Background(), "p-9", domain.PredictionUpdate{
		Status: domain.PredictionSucceeded,
		Output: []string{"https://cdn.example.com/sheet.png"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StepCompleted, step.Status)
	assert.JSONEq(t, `{"predictionId":"p-9","result":["https://cdn.example.com/sheet.png"]}`, string(step.Output))

	args := db.args[sqlinline.QUpdateStepFromPrediction]
	require.Len(t, args, 4)
	assert.Equal(t, "step-1", args[0])
	assert.Equal(t, "completed", args[1])
}

func TestJobStoreReconcileUnknownPrediction(t *testing.T) {
	db := newStubDB()
	db.rows[sqlinline.QLockStepByPrediction] = noRows()
	_, err := NewJobStore(db).ReconcilePrediction(context.Background(), "p-x", domain.PredictionUpdate{Status: "succeeded"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
