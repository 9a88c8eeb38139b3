package jobstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "nested", "jobs.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func queuedJob(id, dataset string, created time.Time) *RenderJob {
	return &RenderJob{
		ID:        id,
		DatasetID: dataset,
		Status:    JobStatusQueued,
		Format:    "png",
		Params:    json.RawMessage(`{"element_width":4}`),
		CreatedAt: created,
	}
}

func TestCreateAndGetJob(t *testing.T) {
	s := newTestStore(t)
	created := time.Now().Truncate(time.Second)
	if err := s.CreateJob(queuedJob("a", "demo", created)); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	job, err := s.GetJob("a")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job == nil {
		t.Fatal("expected job")
	}
	if job.DatasetID != "demo" || job.Status != JobStatusQueued || job.Format != "png" {
		t.Fatalf("unexpected job: %+v", job)
	}
	if string(job.Params) != `{"element_width":4}` {
		t.Fatalf("params = %s", job.Params)
	}
	if !job.CreatedAt.Equal(created) {
		t.Fatalf("created_at = %v, want %v", job.CreatedAt, created)
	}
	if job.StartedAt != nil || job.FinishedAt != nil {
		t.Fatalf("expected no start/finish times: %+v", job)
	}

	missing, err := s.GetJob("nope")
	if err != nil || missing != nil {
		t.Fatalf("GetJob(missing) = %v, %v", missing, err)
	}
}

func TestJobLifecycle(t *testing.T) {
	s := newTestStore(t)
	if err := s.CreateJob(queuedJob("a", "demo", time.Now())); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	ok, err := s.UpdateJobStarted("a")
	if err != nil || !ok {
		t.Fatalf("UpdateJobStarted = %v, %v", ok, err)
	}
	// A running job cannot be started twice.
	if ok, _ := s.UpdateJobStarted("a"); ok {
		t.Fatal("expected second start to be refused")
	}

	if err := s.UpdateJobProgress("a", "encode", 1, 2); err != nil {
		t.Fatalf("UpdateJobProgress: %v", err)
	}
	img := []byte{0x89, 'P', 'N', 'G'}
	if err := s.SaveResult("a", "image/png", img, 30, 20); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}
	if err := s.UpdateJobStatus("a", JobStatusCompleted, ""); err != nil {
		t.Fatalf("UpdateJobStatus: %v", err)
	}

	job, _ := s.GetJob("a")
	if job.Status != JobStatusCompleted || job.StartedAt == nil || job.FinishedAt == nil {
		t.Fatalf("unexpected job: %+v", job)
	}
	if job.Width != 30 || job.Height != 20 {
		t.Fatalf("size = %dx%d", job.Width, job.Height)
	}
	if job.Progress != (JobProgress{Phase: "encode", Done: 1, Total: 2}) {
		t.Fatalf("progress = %+v", job.Progress)
	}

	res, err := s.GetResult("a")
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if res.ContentType != "image/png" || !bytes.Equal(res.Data, img) {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestGetResultMissing(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetResult("nope"); !errors.Is(err, ErrNoResult) {
		t.Fatalf("expected ErrNoResult, got %v", err)
	}
}

func TestCancelledJobIsNotStarted(t *testing.T) {
	s := newTestStore(t)
	s.CreateJob(queuedJob("a", "demo", time.Now()))
	if err := s.UpdateJobStatus("a", JobStatusCancelled, "cancelled before start"); err != nil {
		t.Fatalf("UpdateJobStatus: %v", err)
	}
	ok, err := s.UpdateJobStarted("a")
	if err != nil || ok {
		t.Fatalf("UpdateJobStarted = %v, %v; want false", ok, err)
	}
}

func TestListQueuedAndRecovery(t *testing.T) {
	s := newTestStore(t)
	base := time.Now().Add(-time.Hour)
	s.CreateJob(queuedJob("second", "demo", base.Add(2*time.Minute)))
	s.CreateJob(queuedJob("first", "demo", base))
	s.CreateJob(queuedJob("running", "other", base.Add(time.Minute)))
	s.UpdateJobStarted("running")

	queued, err := s.ListQueuedJobs()
	if err != nil {
		t.Fatalf("ListQueuedJobs: %v", err)
	}
	if len(queued) != 2 || queued[0].ID != "first" || queued[1].ID != "second" {
		t.Fatalf("unexpected queue: %v", jobIDs(queued))
	}

	if err := s.MarkRunningAsFailed("server restarted"); err != nil {
		t.Fatalf("MarkRunningAsFailed: %v", err)
	}
	job, _ := s.GetJob("running")
	if job.Status != JobStatusFailed || job.Error != "server restarted" || job.FinishedAt == nil {
		t.Fatalf("unexpected job: %+v", job)
	}

	byDataset, err := s.ListJobsByDataset("demo")
	if err != nil {
		t.Fatalf("ListJobsByDataset: %v", err)
	}
	if len(byDataset) != 2 || byDataset[0].ID != "second" {
		t.Fatalf("unexpected jobs: %v", jobIDs(byDataset))
	}
}

func TestDeleteExpiredJobs(t *testing.T) {
	s := newTestStore(t)
	s.CreateJob(queuedJob("done", "demo", time.Now()))
	s.CreateJob(queuedJob("waiting", "demo", time.Now()))
	s.SaveResult("done", "image/png", []byte{1}, 1, 1)
	s.UpdateJobStatus("done", JobStatusCompleted, "")

	n, err := s.DeleteExpiredJobs(time.Hour)
	if err != nil || n != 0 {
		t.Fatalf("DeleteExpiredJobs(1h) = %d, %v", n, err)
	}

	// A negative retention puts the cutoff in the future.
	n, err = s.DeleteExpiredJobs(-time.Hour)
	if err != nil || n != 1 {
		t.Fatalf("DeleteExpiredJobs(-1h) = %d, %v", n, err)
	}
	if job, _ := s.GetJob("done"); job != nil {
		t.Fatal("expected expired job to be deleted")
	}
	if _, err := s.GetResult("done"); !errors.Is(err, ErrNoResult) {
		t.Fatalf("expected result to be deleted, got %v", err)
	}
	if job, _ := s.GetJob("waiting"); job == nil {
		t.Fatal("unfinished job must survive")
	}
}

func TestDeleteJob(t *testing.T) {
	s := newTestStore(t)
	s.CreateJob(queuedJob("a", "demo", time.Now()))
	s.SaveResult("a", "image/png", []byte{1}, 1, 1)
	if err := s.DeleteJob("a"); err != nil {
		t.Fatalf("DeleteJob: %v", err)
	}
	if job, _ := s.GetJob("a"); job != nil {
		t.Fatal("expected job to be deleted")
	}
	if _, err := s.GetResult("a"); !errors.Is(err, ErrNoResult) {
		t.Fatalf("expected ErrNoResult, got %v", err)
	}
}

func jobIDs(jobs []*RenderJob) []string {
	out := make([]string, len(jobs))
	for i, j := range jobs {
		out[i] = j.ID
	}
	return out
}

func TestRequeueJob(t *testing.T) {
	store := newTestStore(t)
	if err := store.CreateJob(&RenderJob{ID: "j", DatasetID: "demo", Status: JobStatusQueued, Format: "png", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if ok, _ := store.RequeueJob("j"); ok {
		t.Fatal("a queued job is not re-queued")
	}
	store.UpdateJobStarted("j")
	store.UpdateJobProgress("j", "render", 1, 2)
	if ok, err := store.RequeueJob("j"); !ok || err != nil {
		t.Fatalf("RequeueJob = %v, %v", ok, err)
	}
	job, _ := store.GetJob("j")
	if job.Status != JobStatusQueued || job.StartedAt != nil || job.Progress.Phase != "" {
		t.Fatalf("unexpected job: %+v", job)
	}
}
