package cron

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeLock struct {
	locked   bool
	acquires int
	releases int
	err      error
}

func (f *fakeLock) Acquire(_ context.Context) (bool, error) {
	f.acquires++
	if f.err != nil {
		return false, f.err
	}
	if f.locked {
		return false, nil
	}
	f.locked = true
	return true, nil
}

func (f *fakeLock) Release(_ context.Context) error {
	f.releases++
	f.locked = false
	return nil
}

type recordingJob struct {
	name string
	runs int
	err  error
}

func (j *recordingJob) Name() string { return j.name }

func (j *recordingJob) Run(_ context.Context) error {
	j.runs++
	return j.err
}

func TestRegistryKeepsOrderAndSkipsNil(t *testing.T) {
	a := &recordingJob{name: "a"}
	b := &recordingJob{name: "b"}
	registry := NewRegistry(a, nil, b)
	registry.Register(nil)

	jobs := registry.Jobs()
	if len(jobs) != 2 || jobs[0].Name() != "a" || jobs[1].Name() != "b" {
		t.Fatalf("unexpected registry contents: %v", jobs)
	}
}

func TestRunCycleRunsAllJobs(t *testing.T) {
	lock := &fakeLock{}
	good := &recordingJob{name: "good"}
	bad := &recordingJob{name: "bad", err: errors.New("boom")}
	after := &recordingJob{name: "after"}

	svc, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: NewRegistry(good, bad, after),
		Lock:     lock,
		Interval: time.Hour,
	})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	if err := svc.runCycle(context.Background()); err != nil {
		t.Fatalf("runCycle failed: %v", err)
	}
	if good.runs != 1 || after.runs != 1 {
		t.Fatal("a failing job must not stop the cycle")
	}
	if lock.releases != 1 {
		t.Fatalf("expected lock released once, got %d", lock.releases)
	}
}

func TestRunCycleSkipsWhenLockHeld(t *testing.T) {
	lock := &fakeLock{locked: true}
	job := &recordingJob{name: "job"}

	svc, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: NewRegistry(job),
		Lock:     lock,
		Interval: time.Hour,
	})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	if err := svc.runCycle(context.Background()); err != nil {
		t.Fatalf("runCycle failed: %v", err)
	}
	if job.runs != 0 {
		t.Fatal("jobs must not run without the lock")
	}
	if lock.releases != 0 {
		t.Fatal("a lock we never held must not be released")
	}
}
