package mailer

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/suPer8Hu/subspace-chat/internal/common"
	"github.com/suPer8Hu/subspace-chat/internal/email"
)

const DefaultMaxAttempts = 3

type Mail struct {
	Kind    Kind
	To      string
	Subject string
	Body    string
	// optional; repeated enqueues with the same key send once
	IdempotencyKey string
}

// Queue hands a job id to the worker.
type Queue interface {
	PublishJob(ctx context.Context, jobID string) error
}

type Sender interface {
	Send(to, subject, body string) error
}

// SMTPSender delivers through email.SendText. Without a relay it only logs.
type SMTPSender struct {
	Cfg email.SMTPConfig
}

func (s SMTPSender) Send(to, subject, body string) error {
	if !s.Cfg.Enabled() {
		log.Printf("[Mailer] smtp disabled, mail to=%s subject=%q\n%s", to, subject, body)
		return nil
	}
	return email.SendText(s.Cfg, to, subject, body)
}

type Service struct {
	repo        *Repo
	queue       Queue
	sender      Sender
	MaxAttempts int
	now         func() time.Time
}

// NewService wires the mail pipeline. A nil queue delivers inline, which is
// how a server without RabbitMQ still sends its codes.
func NewService(repo *Repo, queue Queue, sender Sender) *Service {
	return &Service{repo: repo, queue: queue, sender: sender, MaxAttempts: DefaultMaxAttempts, now: time.Now}
}

func (s *Service) Enqueue(ctx context.Context, m Mail) (*Job, error) {
	id, err := common.NewULID()
	if err != nil {
		return nil, err
	}
	job := &Job{
		ID:      id,
		Kind:    m.Kind,
		To:      m.To,
		Subject: m.Subject,
		Body:    m.Body,
		Status:  JobQueued,
	}
	if m.IdempotencyKey != "" {
		key := m.IdempotencyKey
		job.IdempotencyKey = &key
	}

	job, created, err := s.repo.CreateJobOrGetExisting(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("creating mail job: %w", err)
	}
	if !created {
		return job, nil
	}

	if s.queue == nil {
		if _, err := s.Handle(ctx, job.ID); err != nil {
			log.Printf("[Mailer] inline delivery job=%s failed: %v", job.ID, err)
		}
		return job, nil
	}
	if err := s.queue.PublishJob(ctx, job.ID); err != nil {
		_ = s.repo.MarkJobFailed(ctx, job.ID, "publish: "+err.Error())
		return nil, fmt.Errorf("publishing mail job: %w", err)
	}
	return job, nil
}

// Handle delivers one job. retry reports whether a failed job has attempts left.
func (s *Service) Handle(ctx context.Context, jobID string) (retry bool, err error) {
	jobStart := time.Now()

	claimed, err := s.repo.UpdateJobStatusRunning(ctx, jobID)
	if err != nil {
		return true, err
	}
	if !claimed {
		// redelivery of a job that already ran
		return false, nil
	}

	j, err := s.repo.GetJobByID(ctx, jobID)
	if err != nil {
		return false, err
	}

	t0 := time.Now()
	sendErr := s.sender.Send(j.To, j.Subject, j.Body)
	sendCost := time.Since(t0)

	if sendErr != nil {
		_ = s.repo.MarkJobFailed(ctx, jobID, sendErr.Error())
		log.Printf("mail_job_failed job=%s kind=%s attempt=%d send=%s total=%s err=%v",
			jobID, j.Kind, j.Attempts, sendCost, time.Since(jobStart), sendErr,
		)
		return j.Attempts < s.MaxAttempts, sendErr
	}

	if err := s.repo.MarkJobSucceeded(ctx, jobID, s.now()); err != nil {
		return false, err
	}
	if total := time.Since(jobStart); total > 2*time.Second {
		log.Printf("mail_job_timing job=%s kind=%s send=%s total=%s", jobID, j.Kind, sendCost, total)
	}
	return false, nil
}

// Purge removes finished jobs older than retention.
func (s *Service) Purge(ctx context.Context, retention time.Duration) (int64, error) {
	return s.repo.PurgeFinished(ctx, s.now().Add(-retention))
}
