package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/kezsmith/clipforge/internal/ffmpeg"
	"github.com/kezsmith/clipforge/internal/store"
)

func newTestCoordinator() *Coordinator {
	return NewCoordinator(zerolog.Nop(), store.NewMemoryStore())
}

func TestCreateAndGetJob(t *testing.T) {
	c := newTestCoordinator()

	job, err := c.CreateJob("project-a", "default")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if job.ID == "" {
		t.Fatal("job has no id")
	}
	if job.Status != StatusPending {
		t.Errorf("status = %s, want pending", job.Status)
	}

	loaded, err := c.GetJob(job.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if loaded.ProjectID != "project-a" || loaded.ProfileID != "default" {
		t.Errorf("loaded job = %+v", loaded)
	}
}

func TestListJobsFiltersByProject(t *testing.T) {
	c := newTestCoordinator()

	for i := 0; i < 3; i++ {
		if _, err := c.CreateJob("project-a", "default"); err != nil {
			t.Fatalf("create failed: %v", err)
		}
	}
	if _, err := c.CreateJob("project-b", "default"); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	list, err := c.ListJobs("project-a")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(list) != 3 {
		t.Errorf("got %d jobs, want 3", len(list))
	}
}

func TestUpdateProgressClamps(t *testing.T) {
	c := newTestCoordinator()
	job, _ := c.CreateJob("project-a", "default")

	if err := c.UpdateProgress(job.ID, 150, "over"); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	loaded, _ := c.GetJob(job.ID)
	if loaded.Progress != 100 {
		t.Errorf("progress = %d, want clamped to 100", loaded.Progress)
	}

	if err := c.UpdateProgress(job.ID, -5, "under"); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	loaded, _ = c.GetJob(job.ID)
	if loaded.Progress != 0 {
		t.Errorf("progress = %d, want clamped to 0", loaded.Progress)
	}
}

func TestTerminalJobRejectsMutation(t *testing.T) {
	c := newTestCoordinator()
	job, _ := c.CreateJob("project-a", "default")

	if err := c.RunUnderJob(context.Background(), job, func(ctx context.Context) error {
		return nil
	}); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	err := c.UpdateProgress(job.ID, 50, "stale update")
	var terminalErr *JobAlreadyTerminalError
	if !errors.As(err, &terminalErr) {
		t.Fatalf("expected JobAlreadyTerminalError, got %v", err)
	}
	if terminalErr.Status != StatusCompleted {
		t.Errorf("terminal status = %s", terminalErr.Status)
	}
}

func TestRunUnderJobSuccess(t *testing.T) {
	c := newTestCoordinator()
	job, _ := c.CreateJob("project-a", "default")

	err := c.RunUnderJob(context.Background(), job, func(ctx context.Context) error {
		return c.UpdateProgress(job.ID, 40, "halfway")
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	loaded, _ := c.GetJob(job.ID)
	if loaded.Status != StatusCompleted {
		t.Errorf("status = %s, want completed", loaded.Status)
	}
	if loaded.Progress != 100 {
		t.Errorf("progress = %d, want 100", loaded.Progress)
	}
}

func TestRunUnderJobFailureClassifiesCause(t *testing.T) {
	c := newTestCoordinator()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"decode error", fmt.Errorf("analysis: %w", &ffmpeg.DecodeError{Path: "x.mp4", Detail: "moov atom not found"}), CauseInput},
		{"empty video", &ffmpeg.EmptyVideoError{Path: "x.mp4"}, CauseInput},
		{"plain error", errors.New("provider exploded"), CauseExternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job, _ := c.CreateJob("project-causes", "default")

			err := c.RunUnderJob(context.Background(), job, func(ctx context.Context) error {
				return tt.err
			})
			if err == nil {
				t.Fatal("expected error")
			}

			loaded, _ := c.GetJob(job.ID)
			if loaded.Status != StatusFailed {
				t.Errorf("status = %s, want failed", loaded.Status)
			}
			if loaded.ErrorCause != tt.want {
				t.Errorf("cause = %s, want %s", loaded.ErrorCause, tt.want)
			}
		})
	}
}

func TestRunUnderJobRecoversPanic(t *testing.T) {
	c := newTestCoordinator()
	job, _ := c.CreateJob("project-a", "default")

	err := c.RunUnderJob(context.Background(), job, func(ctx context.Context) error {
		panic("index out of range")
	})
	if err == nil {
		t.Fatal("expected error from panicking work")
	}

	loaded, _ := c.GetJob(job.ID)
	if loaded.Status != StatusFailed {
		t.Errorf("status = %s, want failed", loaded.Status)
	}

	// lock must have been released despite the panic
	release, err := c.AcquireProjectLock(context.Background(), "project-a")
	if err != nil {
		t.Fatalf("lock still held after panic: %v", err)
	}
	release()
}

func TestRunUnderJobTimeout(t *testing.T) {
	c := newTestCoordinator()
	job, _ := c.CreateJob("project-a", "default")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := c.RunUnderJob(ctx, job, func(ctx context.Context) error {
		time.Sleep(50 * time.Millisecond)
		return nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}

	loaded, _ := c.GetJob(job.ID)
	if loaded.ErrorCause != CauseTimeout {
		t.Errorf("cause = %s, want timeout", loaded.ErrorCause)
	}
}

func TestProjectLockSerializesJobs(t *testing.T) {
	c := newTestCoordinator()

	var active, maxActive int64
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		job, err := c.CreateJob("contended", "default")
		if err != nil {
			t.Fatalf("create failed: %v", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.RunUnderJob(context.Background(), job, func(ctx context.Context) error {
				n := atomic.AddInt64(&active, 1)
				for {
					seen := atomic.LoadInt64(&maxActive)
					if n <= seen || atomic.CompareAndSwapInt64(&maxActive, seen, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt64(&active, -1)
				return nil
			})
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt64(&maxActive); got != 1 {
		t.Errorf("max concurrent jobs on one project = %d, want 1", got)
	}
}

func TestDifferentProjectsRunConcurrently(t *testing.T) {
	c := newTestCoordinator()

	releaseA, err := c.AcquireProjectLock(context.Background(), "project-a")
	if err != nil {
		t.Fatalf("lock a failed: %v", err)
	}
	defer releaseA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	releaseB, err := c.AcquireProjectLock(ctx, "project-b")
	if err != nil {
		t.Fatalf("unrelated project blocked: %v", err)
	}
	releaseB()
}

func TestAcquireLockHonoursContext(t *testing.T) {
	c := newTestCoordinator()

	release, err := c.AcquireProjectLock(context.Background(), "project-a")
	if err != nil {
		t.Fatalf("lock failed: %v", err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := c.AcquireProjectLock(ctx, "project-a"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error, got %v", err)
	}
}

// recordingStore counts which store operations the coordinator performs.
type recordingStore struct {
	store.Store
	puts      int
	setFields int
}

func (r *recordingStore) Put(key string, value []byte) error {
	r.puts++
	return r.Store.Put(key, value)
}

func (r *recordingStore) SetField(key, path string, value interface{}) error {
	r.setFields++
	return r.Store.SetField(key, path, value)
}

func TestJobMutationsUseFieldWrites(t *testing.T) {
	rec := &recordingStore{Store: store.NewMemoryStore()}
	c := NewCoordinator(zerolog.Nop(), rec)

	job, err := c.CreateJob("project-a", "default")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	putsAfterCreate := rec.puts

	if err := c.UpdateProgress(job.ID, 30, "scoring"); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if err := c.SetJobData(job.ID, "warnings", []string{"partial_result"}); err != nil {
		t.Fatalf("set data failed: %v", err)
	}

	if rec.puts != putsAfterCreate {
		t.Errorf("mutations rewrote the whole document: %d puts after create", rec.puts-putsAfterCreate)
	}
	if rec.setFields == 0 {
		t.Error("no field-level writes recorded")
	}

	loaded, _ := c.GetJob(job.ID)
	if loaded.Progress != 30 || loaded.Message != "scoring" {
		t.Errorf("job = %+v, want progress 30 message scoring", loaded)
	}
	if !loaded.UpdatedAt.After(loaded.CreatedAt) {
		t.Error("updated_at not advanced by field writes")
	}
}

func TestSetJobData(t *testing.T) {
	c := newTestCoordinator()
	job, _ := c.CreateJob("project-a", "default")

	if err := c.SetJobData(job.ID, "warnings", []string{"partial_result: only 1 of 3"}); err != nil {
		t.Fatalf("set data failed: %v", err)
	}

	loaded, _ := c.GetJob(job.ID)
	warnings, ok := loaded.Data["warnings"].([]interface{})
	if !ok || len(warnings) != 1 {
		t.Errorf("data = %v", loaded.Data)
	}
}
