package voting

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/fedus/safe-crossing-cf/internal/domain/crossing"
	"github.com/fedus/safe-crossing-cf/internal/domain/meta"
)

// AuditReport is the outcome of checking the stored data against its invariants
type AuditReport struct {
	CrossingsScanned uint `json:"crossingsScanned"`
	// TotalMismatches are the crossings whose votes total differs from the sum of their tallies
	TotalMismatches []crossing.Key `json:"totalMismatches"`
	StoredMeta      meta.Aggregate `json:"storedMeta"`
	// ExpectedMeta is recomputed over every decided crossing
	ExpectedMeta meta.Aggregate `json:"expectedMeta"`
	// MetaViolation is set when the stored meta counters do not sum up
	MetaViolation *string `json:"metaViolation,omitempty"`
}

func (r *AuditReport) Ok() bool {
	return len(r.TotalMismatches) == 0 && r.MetaViolation == nil && r.StoredMeta == r.ExpectedMeta
}

func (s *serviceImpl) Audit(ctx context.Context) (*AuditReport, error) {
	ctx, span := s.tracer.StartSpan(ctx, "voting.Audit", spanType)
	defer span.End()

	report := AuditReport{
		TotalMismatches: []crossing.Key{},
	}
	var recompute meta.Recompute
	var stored *meta.Aggregate
	// Crossings and meta must come from the same point in time, or in-flight votes show up as mismatches
	err := s.store.ReadSnapshot(ctx, func(ctx context.Context, snapshot crossing.Snapshot) error {
		err := snapshot.Scan(ctx, s.settings.ScanPageSize, func(crossings []crossing.Crossing) error {
			for _, c := range crossings {
				report.CrossingsScanned++
				if c.VotesTotal != c.Tallies.Total() {
					report.TotalMismatches = append(report.TotalMismatches, c.Key)
				}
				recompute.Add(c.VotesTotal, c.CurrentResult)
			}
			return nil
		})
		if err != nil {
			return err
		}
		stored, err = snapshot.GetMeta(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	report.StoredMeta = *stored
	report.ExpectedMeta = recompute.Aggregate()
	if violation := stored.Check(); violation != nil {
		msg := violation.Error()
		report.MetaViolation = &msg
	}

	event := log.Info()
	if !report.Ok() {
		event = log.Warn()
	}
	event.
		Uint("crossings_scanned", report.CrossingsScanned).
		Int("total_mismatches", len(report.TotalMismatches)).
		Bool("meta_matches", report.StoredMeta == report.ExpectedMeta).
		Msg("Audit complete")
	return &report, nil
}
