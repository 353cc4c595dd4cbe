package audit

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/fedus/safe-crossing-cf/internal/domain/tracing"
	"github.com/fedus/safe-crossing-cf/internal/domain/voting"
)

// Scheduler periodically runs the invariant audit and logs its outcome
type Scheduler struct {
	cron *cron.Cron

	votingService voting.Service

	tracer tracing.Tracer

	entryId *cron.EntryID

	mu sync.Mutex
}

// Returns a Scheduler that delegates to the standard robfig/cron
func NewScheduler(votingService voting.Service, tracer tracing.Tracer) *Scheduler {
	return &Scheduler{
		cron:          cron.New(cron.WithLocation(time.UTC)),
		votingService: votingService,
		tracer:        tracer,
	}
}

// Schedule (re)schedules the audit with a standard cron expression
func (s *Scheduler) Schedule(expression string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := cron.ParseStandard(expression); err != nil {
		return InvalidSchedule{Expression: expression, Underlying: err}
	}

	log.Info().
		Str("expression", expression).
		Msg("Scheduling audit to Cron")

	if s.entryId != nil {
		s.cron.Remove(*s.entryId)
		s.entryId = nil
	}

	job := cron.NewChain(
		cron.Recover(zeroLogCronLogger{}),
		cron.SkipIfStillRunning(zeroLogCronLogger{}),
	).Then(cron.FuncJob(s.runAudit))

	entryId, err := s.cron.AddJob(expression, job)
	if err != nil {
		return InvalidSchedule{Expression: expression, Underlying: err}
	}
	s.entryId = &entryId
	return nil
}

func (s *Scheduler) runAudit() {
	tx := s.tracer.BackgroundTx("crossings-audit")
	defer tx.End()

	report, err := s.votingService.Audit(tx.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to run audit")
		return
	}
	if !report.Ok() {
		log.Error().
			Interface("total_mismatches", report.TotalMismatches).
			Interface("stored_meta", report.StoredMeta).
			Interface("expected_meta", report.ExpectedMeta).
			Msg("Audit found invariant violations")
	}
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cron.Start()
}

// Stop stops the scheduler and waits for a running audit to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	<-s.cron.Stop().Done()
}

type zeroLogCronLogger struct {
}

func (z zeroLogCronLogger) Info(msg string, keysAndValues ...interface{}) {
	if log.Debug().Enabled() {
		formatted := formatTimeValues(keysAndValues)
		log.Debug().Fields(formatted).Msg(msg)
	}
}

func (z zeroLogCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	if log.Error().Enabled() {
		formatted := formatTimeValues(keysAndValues)
		log.Error().Err(err).Fields(formatted).Msg(msg)
	}
}

// formatTimeValues formats any time.Time values as RFC3339 *and*
// returns the even-odd idx key-value pair slice as a map
func formatTimeValues(keysAndValues []interface{}) map[string]interface{} {
	formattedArgs := make(map[string]interface{}, len(keysAndValues)/2)
	for idx := 0; idx < len(keysAndValues); idx += 2 {
		var key string
		if s, ok := keysAndValues[idx].(string); ok {
			key = s
		} else {
			key = fmt.Sprint(keysAndValues[idx])
		}
		valueIdx := idx + 1
		if len(keysAndValues) > valueIdx {
			value := keysAndValues[valueIdx]
			if t, ok := value.(time.Time); ok {
				value = t.Format(time.RFC3339)
			}
			formattedArgs[key] = value
		}
	}
	return formattedArgs
}

// <-- Errors

type InvalidSchedule struct {
	Expression string
	Underlying error
}

func (e InvalidSchedule) Error() string {
	return fmt.Sprintf("Invalid audit schedule [%s]: %v", e.Expression, e.Underlying)
}

func (e InvalidSchedule) Unwrap() error {
	return e.Underlying
}

//     Errors -->
