// Package schedule runs recurring tool invocations from cron expressions.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/AndurilCode/mcp-apps-kit-sub001/invoke"
)

var standardCronParser = cron.NewParser(
	cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow,
)

// ParseExpression validates a five-field UTC cron expression. Timezone
// prefixes are rejected so stored schedules stay portable across hosts.
func ParseExpression(expr string) (cron.Schedule, error) {
	clean := strings.TrimSpace(expr)
	if clean == "" {
		return nil, errors.New("cron expression is required")
	}

	upper := strings.ToUpper(clean)
	if strings.Contains(upper, "CRON_TZ=") || strings.Contains(upper, "TZ=") {
		return nil, errors.New("cron expression must be UTC-only (timezone prefixes are not allowed)")
	}

	schedule, err := standardCronParser.Parse(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}
	return schedule, nil
}

// NextRunUTC returns the next fire time for expr after now, in UTC.
func NextRunUTC(expr string, now time.Time) (time.Time, error) {
	schedule, err := ParseExpression(expr)
	if err != nil {
		return time.Time{}, err
	}
	return schedule.Next(now.UTC()), nil
}

// Invoker executes one tool call on behalf of the scheduler. The application
// handle satisfies this interface.
type Invoker interface {
	CallTool(ctx context.Context, name string, input map[string]any, meta invoke.Metadata) (map[string]any, error)
}

// Entry declares one recurring invocation.
type Entry struct {
	Cron  string
	Tool  string
	Input map[string]any
}

// Scheduler fires tool invocations on cron schedules. Failures are logged
// and do not stop the schedule.
type Scheduler struct {
	invoker Invoker
	logger  *slog.Logger

	mu      sync.Mutex
	runner  *cron.Cron
	entries []Entry
	started bool
}

// New creates a scheduler that invokes tools through invoker.
func New(invoker Invoker, logger *slog.Logger) (*Scheduler, error) {
	if invoker == nil {
		return nil, errors.New("schedule: invoker is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		invoker: invoker,
		logger:  logger,
		runner:  cron.New(cron.WithParser(standardCronParser), cron.WithLocation(time.UTC)),
	}, nil
}

// Add registers an entry. Entries may be added before or after Start.
func (s *Scheduler) Add(e Entry) error {
	if strings.TrimSpace(e.Tool) == "" {
		return errors.New("schedule: tool is required")
	}
	if _, err := ParseExpression(e.Cron); err != nil {
		return fmt.Errorf("schedule: tool %q: %w", e.Tool, err)
	}

	entry := e
	_, err := s.runner.AddFunc(strings.TrimSpace(e.Cron), func() {
		s.fire(entry)
	})
	if err != nil {
		return fmt.Errorf("schedule: tool %q: %w", e.Tool, err)
	}

	s.mu.Lock()
	s.entries = append(s.entries, entry)
	s.mu.Unlock()
	return nil
}

// Entries returns the registered entries in registration order.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Start begins firing schedules. Idempotent.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.runner.Start()
}

// Stop halts scheduling and waits for in-flight invocations to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.mu.Unlock()

	done := s.runner.Stop().Done()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) fire(e Entry) {
	ctx := context.Background()
	meta := invoke.Metadata{Transport: "schedule"}

	if _, err := s.invoker.CallTool(ctx, e.Tool, e.Input, meta); err != nil {
		s.logger.ErrorContext(ctx, "scheduled tool call failed",
			"tool", e.Tool,
			"cron", e.Cron,
			"error", err,
		)
		return
	}
	s.logger.DebugContext(ctx, "scheduled tool call completed",
		"tool", e.Tool,
		"cron", e.Cron,
	)
}
