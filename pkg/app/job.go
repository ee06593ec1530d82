package app

import (
	"context"
	"fmt"

	"github.com/platinummonkey/puzzlelog/pkg/analytics"
	"github.com/platinummonkey/puzzlelog/pkg/observability"
)

// ReportJobResult describes one scheduled report run
type ReportJobResult struct {
	Report     *analytics.Report
	ArchiveKey string
}

// RunReportJob builds a fresh unfiltered report, stores it in the cache so
// the next dashboard request is served warm, and archives it when an archive
// is configured
func (a *App) RunReportJob(ctx context.Context) (ReportJobResult, error) {
	ctx, span := observability.Tracer().Start(ctx, "app.RunReportJob")
	defer span.End()

	filter := analytics.EventFilter{}
	var gen analytics.Generation
	if a.Cache != nil {
		gen = a.Cache.Generation(ctx)
	}
	report, err := a.Service.BuildReport(ctx, filter)
	if err != nil {
		return ReportJobResult{}, fmt.Errorf("failed to build report: %w", err)
	}

	if a.Cache != nil {
		a.Cache.Set(ctx, filter.Key(), report, gen)
	}

	result := ReportJobResult{Report: report}
	if a.Archiver != nil {
		if result.ArchiveKey, err = a.Archiver.Archive(ctx, report); err != nil {
			return result, err
		}
	}

	a.Logger.WithFields(map[string]interface{}{
		"events":      report.EventCount,
		"sessions":    report.Overall.TotalSessions,
		"archive_key": result.ArchiveKey,
	}).Info("Report job completed")
	return result, nil
}
