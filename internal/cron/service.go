// Package cron schedules background work: periodic jobs on a cron spec and
// keyed one-shot timers used for provider recovery.
package cron

import (
	"fmt"
	"sort"
	"sync"

	cronlib "github.com/robfig/cron/v3"

	. "github.com/roelfdiedericks/relaybot/internal/logging"
)

// Service runs named periodic jobs
type Service struct {
	mu      sync.Mutex
	c       *cronlib.Cron
	jobs    map[string]cronlib.EntryID
	running bool
}

// cronLogger adapts the package logger to cronlib.Logger
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	L_trace("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	L_error("cron: "+msg, append(keysAndValues, "error", err)...)
}

// NewService creates a stopped service
func NewService() *Service {
	logger := cronLogger{}
	return &Service{
		c: cronlib.New(
			cronlib.WithLogger(logger),
			cronlib.WithChain(cronlib.Recover(logger), cronlib.SkipIfStillRunning(logger)),
		),
		jobs: make(map[string]cronlib.EntryID),
	}
}

// AddJob registers fn under name on a standard cron spec or a descriptor
// such as "@every 5m". Re-adding a name replaces the previous job.
func (s *Service) AddJob(name, spec string, fn func()) error {
	if spec == "" {
		return fmt.Errorf("job %s: empty schedule", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.jobs[name]; ok {
		s.c.Remove(id)
		delete(s.jobs, name)
	}
	id, err := s.c.AddFunc(spec, fn)
	if err != nil {
		return fmt.Errorf("job %s: invalid schedule %q: %w", name, spec, err)
	}
	s.jobs[name] = id
	L_info("cron: job added", "name", name, "schedule", spec)
	return nil
}

// RemoveJob unregisters a job; unknown names are ignored
func (s *Service) RemoveJob(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.jobs[name]; ok {
		s.c.Remove(id)
		delete(s.jobs, name)
	}
}

// SetJob adds or replaces the job, or removes it when spec is empty
func (s *Service) SetJob(name, spec string, fn func()) error {
	if spec == "" {
		s.RemoveJob(name)
		return nil
	}
	return s.AddJob(name, spec, fn)
}

// Jobs returns the registered job names, sorted
func (s *Service) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.c.Start()
	L_debug("cron: started", "jobs", len(s.jobs))
}

// Stop halts the scheduler and waits for running jobs to finish
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	<-s.c.Stop().Done()
	L_debug("cron: stopped")
}
