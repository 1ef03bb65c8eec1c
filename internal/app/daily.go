package app

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/roach88/parceltrack/internal/clock"
	"github.com/roach88/parceltrack/internal/importer"
	"github.com/roach88/parceltrack/internal/sheet"
	"github.com/roach88/parceltrack/internal/worker"
)

// Run log step outcomes.
const (
	StepOK   = "OK"
	StepFail = "FAIL"
)

// RunLogHeader is the header of the Run_All_Log table.
var RunLogHeader = []string{"Step", "Status", "Message", "Rows/Info", "Duration (s)"}

// Daily flow step names, in run order.
const (
	StepImport     = "Import latest report"
	StepPending    = "Build Pending"
	StepRefresh    = "Refresh Pending"
	StepDuplicates = "Archive duplicates"
)

// DailyStep is one line of the run log.
type DailyStep struct {
	Name     string        `json:"name"`
	Status   string        `json:"status"`
	Message  string        `json:"message,omitempty"`
	Info     string        `json:"info"`
	Duration time.Duration `json:"duration"`
}

// DailyReport is the outcome of one daily flow.
type DailyReport struct {
	Source string      `json:"source,omitempty"`
	Steps  []DailyStep `json:"steps"`
}

// Failed reports whether any step failed.
func (r DailyReport) Failed() bool {
	for _, st := range r.Steps {
		if st.Status == StepFail {
			return true
		}
	}
	return false
}

type dailyStep struct {
	name string
	run  func(ctx context.Context) (string, error)
}

// RunDailyFlow imports the newest report from the import directory,
// reconciles Packages, rebuilds Pending, refreshes it dropping delivered
// rows and checks the archive for duplicates. A failing step is recorded
// and the flow moves on. Every step is written to Run_All_Log. The
// returned error only reports a failure to write that log.
func (s *Service) RunDailyFlow(ctx context.Context) (DailyReport, error) {
	var report DailyReport
	steps := []dailyStep{
		{StepImport, func(ctx context.Context) (string, error) {
			path, err := importer.FindLatest(s.settings.Import.Dir)
			if err != nil {
				return "", err
			}
			report.Source = path
			m, _, err := s.importer.ImportFile(ctx, path)
			if err != nil {
				return "", err
			}
			if _, err := s.reconcile.Rebuild(ctx, m); err != nil {
				return "", err
			}
			return "", nil
		}},
		{StepPending, func(ctx context.Context) (string, error) {
			r, err := s.pending.Build(ctx)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Rows:%d", r.Rows), nil
		}},
		{StepRefresh, func(ctx context.Context) (string, error) {
			r, err := s.worker.RefreshNow(ctx, sheet.TablePending, worker.RefreshOptions{RemoveDelivered: true})
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Polled:%d Removed:%d", r.Polled, r.Removed), nil
		}},
		{StepDuplicates, func(ctx context.Context) (string, error) {
			dups, err := s.reconcile.CheckArchiveDuplicates(ctx)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Duplicates:%d", len(dups)), nil
		}},
	}

	for _, st := range steps {
		start := s.clock.Now()
		info, err := st.run(ctx)
		line := DailyStep{Name: st.name, Status: StepOK, Info: info}
		if err != nil {
			line.Status = StepFail
			line.Message = err.Error()
		}
		if st.name == StepImport {
			line.Info = s.canonicalCounts(ctx)
		}
		line.Duration = clock.Since(s.clock, start)
		report.Steps = append(report.Steps, line)

		if err != nil {
			s.logger.Warn("daily.step.failed", "step", st.name, "error", err)
		} else {
			s.logger.Info("daily.step.ok", "step", st.name, "info", line.Info)
		}
	}

	if err := s.tables.WriteTable(ctx, sheet.TableRunLog, runLog(report)); err != nil {
		return report, fmt.Errorf("write run log: %w", err)
	}
	return report, nil
}

func (s *Service) canonicalCounts(ctx context.Context) string {
	return fmt.Sprintf("Packages:%d Archive:%d",
		s.dataRows(ctx, sheet.TablePackages), s.dataRows(ctx, sheet.TableArchive))
}

func (s *Service) dataRows(ctx context.Context, table string) int {
	m, err := s.tables.ReadTable(ctx, table)
	if err != nil {
		return 0
	}
	return max(0, len(m)-1)
}

func runLog(r DailyReport) [][]string {
	out := [][]string{RunLogHeader}
	for _, st := range r.Steps {
		out = append(out, []string{
			st.Name,
			st.Status,
			st.Message,
			st.Info,
			strconv.FormatFloat(st.Duration.Seconds(), 'f', 2, 64),
		})
	}
	return out
}
