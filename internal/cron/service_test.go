package cron

import (
	"testing"
	"time"
)

func TestServiceRunsEveryJob(t *testing.T) {
	s := NewService()
	fired := make(chan struct{}, 1)
	if err := s.AddJob("tick", "@every 1s", func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	}); err != nil {
		t.Fatalf("AddJob: %v", err)
	}

	s.Start()
	defer s.Stop()

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("job never fired")
	}
}

func TestServiceAddJobValidation(t *testing.T) {
	s := NewService()
	if err := s.AddJob("empty", "", func() {}); err == nil {
		t.Error("expected error for empty schedule")
	}
	if err := s.AddJob("bad", "not a schedule", func() {}); err == nil {
		t.Error("expected error for invalid schedule")
	}
	if err := s.AddJob("ok", "@every 5m", func() {}); err != nil {
		t.Fatalf("AddJob: %v", err)
	}
	if err := s.AddJob("ok", "@every 10m", func() {}); err != nil {
		t.Fatalf("re-adding: %v", err)
	}
	if got := s.Jobs(); len(got) != 1 || got[0] != "ok" {
		t.Errorf("Jobs() = %v", got)
	}
	s.RemoveJob("ok")
	if len(s.Jobs()) != 0 {
		t.Error("job not removed")
	}
}

func TestServiceSetJob(t *testing.T) {
	s := NewService()
	if err := s.SetJob("status", "@every 10m", func() {}); err != nil {
		t.Fatalf("SetJob: %v", err)
	}
	if err := s.SetJob("flush", "@every 5m", func() {}); err != nil {
		t.Fatalf("SetJob: %v", err)
	}
	if got := s.Jobs(); len(got) != 2 || got[0] != "flush" || got[1] != "status" {
		t.Errorf("Jobs() = %v", got)
	}

	// an empty schedule turns the job off
	if err := s.SetJob("status", "", func() {}); err != nil {
		t.Fatalf("SetJob(empty): %v", err)
	}
	if got := s.Jobs(); len(got) != 1 || got[0] != "flush" {
		t.Errorf("Jobs() after disable = %v", got)
	}
	if err := s.SetJob("status", "bogus", func() {}); err == nil {
		t.Error("invalid schedule accepted")
	}
}
