package pipeline

import (
	"context"
	"fmt"

	"github.com/nao1215/piiscrub/internal/model"
)

// ReportSaver persists finished reports.
type ReportSaver interface {
	SaveReport(ctx context.Context, report *model.ScrubReport) error
}

// ReportRecorder observes finished reports.
type ReportRecorder interface {
	RecordReport(report *model.ScrubReport)
}

// AuditStep saves the finished report to an audit store. It is intended to
// run as a finalizer.
type AuditStep struct {
	saver ReportSaver
}

// NewAuditStep creates an audit step.
func NewAuditStep(saver ReportSaver) *AuditStep {
	return &AuditStep{saver: saver}
}

// Name returns the step name.
func (s *AuditStep) Name() string {
	return "audit"
}

// Do executes the audit step.
func (s *AuditStep) Do(ctx context.Context, report *model.ScrubReport) error {
	if err := s.saver.SaveReport(ctx, report); err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	return nil
}

// MetricsStep passes the finished report to a metrics recorder. It is
// intended to run as a finalizer.
type MetricsStep struct {
	recorder ReportRecorder
}

// NewMetricsStep creates a metrics step.
func NewMetricsStep(recorder ReportRecorder) *MetricsStep {
	return &MetricsStep{recorder: recorder}
}

// Name returns the step name.
func (s *MetricsStep) Name() string {
	return "metrics"
}

// Do executes the metrics step.
func (s *MetricsStep) Do(_ context.Context, report *model.ScrubReport) error {
	s.recorder.RecordReport(report)
	return nil
}
