package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/cppla/vibemusic/metrics"
	"github.com/cppla/vibemusic/services"
)

const jobTimeout = 2 * time.Minute

// PendingCounter reports the moderation backlog per content kind.
type PendingCounter interface {
	PendingCounts(ctx context.Context) (map[services.ContentKind]int64, error)
}

// Config selects schedules and digest recipients.
type Config struct {
	DigestSpec         string
	RecommendFlushSpec string
	AdminEmails        []string
}

// Scheduler runs the periodic maintenance jobs.
type Scheduler struct {
	cron    *cron.Cron
	cfg     Config
	pending PendingCounter
	cache   services.CacheInvalidator
	mailer  services.Mailer
	log     *zap.Logger
}

func New(cfg Config, pending PendingCounter, cache services.CacheInvalidator, mailer services.Mailer, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.Recover(cronLogger{log.Sugar()}))),
		cfg:     cfg,
		pending: pending,
		cache:   cache,
		mailer:  mailer,
		log:     log,
	}
}

// Start registers the jobs and starts the cron loop.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.DigestSpec, s.wrap("moderation_digest", s.SendDigest)); err != nil {
		return fmt.Errorf("schedule digest %q: %w", s.cfg.DigestSpec, err)
	}
	if _, err := s.cron.AddFunc(s.cfg.RecommendFlushSpec, s.wrap("recommend_flush", s.FlushRecommendations)); err != nil {
		return fmt.Errorf("schedule recommend flush %q: %w", s.cfg.RecommendFlushSpec, err)
	}
	s.cron.Start()
	s.log.Info("scheduler started", zap.String("digest", s.cfg.DigestSpec), zap.String("recommend_flush", s.cfg.RecommendFlushSpec))
	return nil
}

// Stop waits for running jobs or until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

func (s *Scheduler) wrap(name string, job func(context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		start := time.Now()
		err := job(ctx)
		metrics.RecordJobRun(name, err == nil)
		if err != nil {
			s.log.Error("job failed", zap.String("job", name), zap.Error(err))
			return
		}
		s.log.Info("job finished", zap.String("job", name), zap.Duration("took", time.Since(start)))
	}
}

// SendDigest mails the pending moderation counts to the admin addresses. Nothing is sent
// when the queue is empty or no recipient is configured.
func (s *Scheduler) SendDigest(ctx context.Context) error {
	if len(s.cfg.AdminEmails) == 0 || s.mailer == nil {
		return nil
	}
	counts, err := s.pending.PendingCounts(ctx)
	if err != nil {
		return fmt.Errorf("count pending: %w", err)
	}
	body, total := digestBody(counts)
	if total == 0 {
		return nil
	}
	subject := fmt.Sprintf("Vibe Music: %d items awaiting moderation", total)
	var errs []error
	for _, to := range s.cfg.AdminEmails {
		if err := s.mailer.Send(to, subject, body); err != nil {
			errs = append(errs, fmt.Errorf("mail %s: %w", to, err))
		}
	}
	return errors.Join(errs...)
}

func digestBody(counts map[services.ContentKind]int64) (string, int64) {
	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)

	var b strings.Builder
	var total int64
	b.WriteString("Pending moderation:\n")
	for _, k := range kinds {
		n := counts[services.ContentKind(k)]
		total += n
		fmt.Fprintf(&b, "  %-8s %d\n", k, n)
	}
	return b.String(), total
}

// FlushRecommendations drops every cached recommendation list so new songs get picked up.
func (s *Scheduler) FlushRecommendations(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.InvalidateTag(ctx, services.TagRecommend)
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
