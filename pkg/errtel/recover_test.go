package errtel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
)

// mockReporter captures records for verification in recover tests.
type mockReporter struct {
	mu        sync.Mutex
	records   []ErrorRecord
	reportErr error
}

func (r *mockReporter) Report(ctx context.Context, rec ErrorRecord) (ErrorRecord, error) {
	if r.reportErr != nil {
		return ErrorRecord{}, r.reportErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return rec, nil
}

func (r *mockReporter) getRecords() []ErrorRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ErrorRecord(nil), r.records...)
}

func TestRecover_CapturesPanic(t *testing.T) {
	reporter := &mockReporter{}

	func() {
		defer Recover(context.Background(), reporter)
		panic("test panic")
	}()

	records := reporter.getRecords()
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}
	rec := records[0]
	if rec.Severity != SeverityCritical {
		t.Errorf("Severity = %v, want %v", rec.Severity, SeverityCritical)
	}
	if rec.FailureType() != "panic" {
		t.Errorf("FailureType = %q, want panic", rec.FailureType())
	}
	if rec.Message != "test panic" {
		t.Errorf("Message = %q, want %q", rec.Message, "test panic")
	}
	if !strings.Contains(rec.StackTrace, "goroutine") {
		t.Errorf("StackTrace should be captured, got %q", rec.StackTrace)
	}
}

func TestRecover_ErrorValueKeepsChain(t *testing.T) {
	reporter := &mockReporter{}

	func() {
		defer Recover(context.Background(), reporter)
		panic(context.DeadlineExceeded)
	}()

	rec := reporter.getRecords()[0]
	if rec.Failure.Kind != KindTimeout {
		t.Errorf("Kind = %q, want %q", rec.Failure.Kind, KindTimeout)
	}
	if rec.Failure.Cause == nil {
		t.Error("error panics should carry the error as the cause")
	}
	if rec.Category != CategoryNetwork {
		t.Errorf("Category = %q, want %q", rec.Category, CategoryNetwork)
	}
}

func TestReportPanic_RecoveredInClosure(t *testing.T) {
	reporter := &mockReporter{}
	var err error

	func() {
		defer func() {
			if r := recover(); r != nil {
				ReportPanic(context.Background(), reporter, r)
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		panic(42)
	}()

	if err == nil || err.Error() != "panic: 42" {
		t.Errorf("err = %v, want panic: 42", err)
	}
	records := reporter.getRecords()
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}
	if records[0].Message != "42" || records[0].Severity != SeverityCritical {
		t.Errorf("record = %q/%v, want 42/critical", records[0].Message, records[0].Severity)
	}
}

func TestReportPanic_NilValue(t *testing.T) {
	reporter := &mockReporter{}

	ReportPanic(context.Background(), reporter, nil)

	if n := len(reporter.getRecords()); n != 0 {
		t.Errorf("Expected no records for a nil value, got %d", n)
	}
}

func TestRecover_NoPanic(t *testing.T) {
	reporter := &mockReporter{}

	func() {
		defer Recover(context.Background(), reporter)
	}()

	if n := len(reporter.getRecords()); n != 0 {
		t.Errorf("Expected no records without a panic, got %d", n)
	}
}

func TestRecover_ReporterErrorIgnored(t *testing.T) {
	reporter := &mockReporter{reportErr: errors.New("store unavailable")}

	func() {
		defer Recover(context.Background(), reporter)
		panic("still recovered")
	}()
}

func TestRecover_WithEngine(t *testing.T) {
	e := New()

	func() {
		defer Recover(context.Background(), e)
		panic("engine panic")
	}()

	if e.Len() != 1 {
		t.Fatalf("engine stored %d records, want 1", e.Len())
	}
	rec := e.RecentErrors(1)[0]
	if rec.ErrorHash == "" || rec.ID == "" {
		t.Errorf("stored panic record missing hash or id: %+v", rec)
	}
}
