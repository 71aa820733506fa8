package langindex

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/MimeLyc/yaml-translator/internal/apperr"
	"github.com/MimeLyc/yaml-translator/pkg/icron"
	"github.com/MimeLyc/yaml-translator/pkg/log"
)

// Scheduler runs Refresh on a cron expression that can be changed at runtime.
type Scheduler struct {
	cron      *cron.Cron
	refresher *Refresher

	mu    sync.Mutex
	expr  string
	entry cron.EntryID
}

func NewScheduler(c *cron.Cron, r *Refresher) *Scheduler {
	return &Scheduler{cron: c, refresher: r}
}

// Apply replaces the current schedule. An empty expression disables it.
func (s *Scheduler) Apply(ctx context.Context, expr string) error {
	expr = strings.TrimSpace(expr)
	if expr != "" {
		if _, err := icron.Parse(expr); err != nil {
			return apperr.NewWithCause(apperr.ErrValidation, "invalid refresh schedule", err).WithContext("cron", expr)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if expr == s.expr && (s.entry != 0 || expr == "") {
		return nil
	}
	if s.entry != 0 {
		s.cron.Remove(s.entry)
		s.entry = 0
	}
	s.expr = expr
	if expr == "" {
		log.Info("Language refresh schedule disabled")
		return nil
	}

	id, err := s.cron.AddFunc(expr, func() {
		if _, err := s.refresher.Refresh(ctx); err != nil {
			log.Error("Scheduled language refresh failed: %v", err)
		}
	})
	if err != nil {
		return apperr.NewWithCause(apperr.ErrValidation, "invalid refresh schedule", err).WithContext("cron", expr)
	}
	s.entry = id
	log.Info("Language refresh scheduled with %q", expr)
	return nil
}

func (s *Scheduler) Expression() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expr
}

// Info describes the schedule around now; nil when disabled.
func (s *Scheduler) Info(now time.Time) *icron.TriggerInfo {
	expr := s.Expression()
	if expr == "" {
		return nil
	}
	info, err := icron.GetTriggerInfo(expr, now)
	if err != nil {
		return nil
	}
	return info
}
