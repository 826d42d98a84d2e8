package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rhyrak/go-registrar/internal/csvio"
	"github.com/rhyrak/go-registrar/internal/result"
	"github.com/rhyrak/go-registrar/internal/rules"
	"github.com/rhyrak/go-registrar/internal/scheduler"
	"github.com/rhyrak/go-registrar/internal/solver"
)

func prepare(ctx context.Context, s *session) (*scheduler.Plan, error) {
	cfg := s.cfg
	delim := []rune(cfg.Delimiter)[0]

	start := time.Now()
	r, err := rules.Load(cfg.RulesFile)
	if err != nil {
		return nil, err
	}
	records, err := csvio.LoadCatalog(ctx, cfg.ClassesFile, delim)
	if err != nil {
		return nil, err
	}
	students, err := csvio.LoadStudents(ctx, cfg.StudentsFile, delim)
	if err != nil {
		return nil, err
	}
	s.metrics.Phase("load", start)

	return scheduler.Prepare(ctx, cfg, r, records, students, s.metrics)
}

func runCheck(ctx context.Context, s *session, out io.Writer) error {
	plan, err := prepare(ctx, s)
	if err != nil {
		return err
	}
	d := plan.Diagnostics()
	fmt.Fprintf(out, "%d sections, %d students with priorities, %d without\n",
		plan.Catalog.Len(), len(plan.Preferences), len(plan.NoPriorities))
	fmt.Fprintf(out, "%d unresolved requests, %d unresolved placements\n", d.UnresolvedRequests, d.UnresolvedPlacements)
	for _, id := range plan.Catalog.NoMeetings() {
		fmt.Fprintf(out, "no meeting time: %s\n", id)
	}
	for student, ms := range d.Miscalibrated {
		for _, m := range ms {
			fmt.Fprintf(out, "possible miscalibration: %s %s (choice %d, %s)\n", student, m.Placement, m.Choice, m.Request)
		}
	}
	return s.metrics.WriteTextfile(s.cfg.MetricsFile)
}

func runSolve(ctx context.Context, s *session, out io.Writer) (err error) {
	cfg := s.cfg
	defer func() {
		if merr := s.metrics.WriteTextfile(cfg.MetricsFile); merr != nil && err == nil {
			err = merr
		}
	}()

	plan, err := prepare(ctx, s)
	if err != nil {
		return err
	}
	m, err := plan.Build(ctx)
	if err != nil {
		return err
	}
	if cfg.LPFile != "" {
		if err := csvio.ExportText(cfg.LPFile, func(w io.Writer) error {
			return solver.WriteLP(w, m.Problem)
		}); err != nil {
			return err
		}
		s.logger.Info("model written", "file", cfg.LPFile)
	}

	outcome, err := plan.Solve(ctx, m, scheduler.NewSolver(cfg))
	if err != nil {
		return err
	}

	delim := []rune(cfg.Delimiter)[0]
	rows := outcome.Reporter.AssignmentRows(plan.Preferences, outcome.Summaries, result.Export{Term: cfg.Term, RunID: s.runID})
	if err := csvio.ExportAssignments(cfg.ExportFile, rows, delim); err != nil {
		return err
	}
	if err := csvio.ExportSeats(cfg.SeatsFile, result.SeatRows(plan.Catalog, outcome.Assignment), delim); err != nil {
		return err
	}
	if cfg.ReportFile != "" {
		if err := csvio.ExportText(cfg.ReportFile, func(w io.Writer) error {
			return result.WriteReport(w, outcome.Stats, plan.NoPriorities)
		}); err != nil {
			return err
		}
	}
	s.logger.Info("exports written", "assignments", cfg.ExportFile, "rows", len(rows), "seats", cfg.SeatsFile, "report", cfg.ReportFile)

	fmt.Fprint(out, outcome.Validation.String())
	if !outcome.Validation.Valid() {
		return fmt.Errorf("assignment failed %d validation checks", outcome.Validation.Failed())
	}
	return nil
}
