// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package scheduler drives time-based signal delivery for one agent:
// one-shot timers and cron jobs that post signals into the owning agent's
// inbox. Cron expressions are parsed once at registration; each tick
// computes the next fire time in the job's timezone and arms a one-shot
// for it. Overlapping ticks simply enqueue — the agent's FIFO ordering
// absorbs them.
package scheduler

import (
	"fmt"
	"sync"
	"time"

	// Embed the timezone database so cron timezones resolve on hosts
	// without system zoneinfo.
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/teradata-labs/jido/pkg/jid"
	"github.com/teradata-labs/jido/pkg/jidoerr"
	"github.com/teradata-labs/jido/pkg/signal"
)

// Sink receives the signals the scheduler fires, typically an agent
// server's inbox.
type Sink interface {
	Post(sig *signal.Signal)
}

// Scheduler owns the timers and cron jobs of a single agent.
type Scheduler struct {
	sink   Sink
	logger *zap.Logger

	mu      sync.Mutex
	timers  map[string]*time.Timer
	crons   map[string]*cronJob
	stopped bool
	wg      sync.WaitGroup
}

type cronJob struct {
	id       string
	schedule cron.Schedule
	location *time.Location
	message  *signal.Signal
	stopCh   chan struct{}
}

// New creates a scheduler posting into sink.
func New(sink Sink, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		sink:   sink,
		logger: logger,
		timers: make(map[string]*time.Timer),
		crons:  make(map[string]*cronJob),
	}
}

// ScheduleOnce posts message into the sink after delay and returns an
// opaque handle for cancellation. A stopped scheduler returns "".
func (s *Scheduler) ScheduleOnce(delay time.Duration, message *signal.Signal) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ""
	}

	handle := uuid.New().String()
	s.timers[handle] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		_, live := s.timers[handle]
		delete(s.timers, handle)
		stopped := s.stopped
		s.mu.Unlock()
		if !live || stopped {
			return
		}
		s.sink.Post(freshCopy(message))
	})
	return handle
}

// CancelTimer cancels a pending one-shot by handle. Unknown handles are
// ignored.
func (s *Scheduler) CancelTimer(handle string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timer, ok := s.timers[handle]; ok {
		timer.Stop()
		delete(s.timers, handle)
	}
}

// RegisterCron registers a recurring post of message driven by a standard
// 5-field cron expression evaluated in timezone (UTC when empty).
// Registering an existing job id replaces the job.
func (s *Scheduler) RegisterCron(jobID, spec, timezone string, message *signal.Signal) error {
	if jobID == "" {
		return jidoerr.Validation("invalid_cron", "cron job requires an id")
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return jidoerr.Wrap(jidoerr.KindValidation, "invalid_cron",
			fmt.Sprintf("invalid cron expression %q", spec), err)
	}
	location := time.UTC
	if timezone != "" {
		location, err = time.LoadLocation(timezone)
		if err != nil {
			return jidoerr.Wrap(jidoerr.KindValidation, "invalid_timezone",
				fmt.Sprintf("unknown timezone %q", timezone), err)
		}
	}

	job := &cronJob{
		id:       jobID,
		schedule: schedule,
		location: location,
		message:  message,
		stopCh:   make(chan struct{}),
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return jidoerr.Lifecycle("scheduler_stopped", "scheduler has been stopped")
	}
	if prev, ok := s.crons[jobID]; ok {
		close(prev.stopCh)
	}
	s.crons[jobID] = job
	s.wg.Add(1)
	s.mu.Unlock()

	go s.runCron(job)

	s.logger.Debug("registered cron job",
		zap.String("job_id", jobID),
		zap.String("spec", spec),
		zap.String("timezone", location.String()))
	return nil
}

// CancelCron cancels the named cron job, reporting whether it existed.
func (s *Scheduler) CancelCron(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.crons[jobID]
	if !ok {
		return false
	}
	close(job.stopCh)
	delete(s.crons, jobID)
	return true
}

// CronJobs returns the ids of the registered cron jobs.
func (s *Scheduler) CronJobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.crons))
	for id := range s.crons {
		ids = append(ids, id)
	}
	return ids
}

// StopAll cancels every timer and cron job and waits for cron loops to
// exit. The scheduler accepts no further work afterward.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	for handle, timer := range s.timers {
		timer.Stop()
		delete(s.timers, handle)
	}
	for id, job := range s.crons {
		close(job.stopCh)
		delete(s.crons, id)
	}
	s.mu.Unlock()

	s.wg.Wait()
}

// runCron arms a one-shot for each successive fire time until cancelled.
func (s *Scheduler) runCron(job *cronJob) {
	defer s.wg.Done()

	for {
		next := job.schedule.Next(time.Now().In(job.location))
		timer := time.NewTimer(time.Until(next))

		select {
		case <-timer.C:
			s.sink.Post(freshCopy(job.message))
		case <-job.stopCh:
			timer.Stop()
			return
		}
	}
}

// freshCopy re-identifies the template message so every firing enters the
// inbox as a distinct signal.
func freshCopy(message *signal.Signal) *signal.Signal {
	dup := message.Clone()
	id, ts := jid.Generate()
	dup.ID = id
	dup.Time = time.UnixMilli(ts).UTC()
	return dup
}
