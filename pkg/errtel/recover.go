// recover.go provides the Recover and ReportPanic helpers for reporting
// recovered panics.

package errtel

import (
	"context"
	"fmt"
	"runtime/debug"
)

// Reporter ingests error records. *Engine satisfies it.
type Reporter interface {
	Report(ctx context.Context, rec ErrorRecord) (ErrorRecord, error)
}

// Recover captures a panic, reports it as a Critical record, and returns the
// recovered value. It does not re-panic. It must be deferred directly:
//
//	func handler(ctx context.Context) {
//	    defer errtel.Recover(ctx, engine)
//	    // code that might panic
//	}
//
// recover only stops a panic when called by the deferred function itself, so
// a deferred closure that needs the value recovers it and hands it to
// ReportPanic:
//
//	func handler(ctx context.Context) (err error) {
//	    defer func() {
//	        if r := recover(); r != nil {
//	            errtel.ReportPanic(ctx, engine, r)
//	            err = fmt.Errorf("panic: %v", r)
//	        }
//	    }()
//	    // code that might panic
//	}
func Recover(ctx context.Context, reporter Reporter) any {
	r := recover()
	if r == nil {
		return nil
	}
	ReportPanic(ctx, reporter, r)
	return r
}

// ReportPanic reports an already recovered panic value as a Critical record
// with the current goroutine's stack. Reporter errors are ignored.
func ReportPanic(ctx context.Context, reporter Reporter, r any) {
	if r == nil {
		return
	}
	stack := string(debug.Stack())
	message := formatRecovered(r)
	failure := &FailureInfo{
		Type:       "panic",
		Kind:       KindNone,
		Message:    message,
		StackTrace: stack,
	}
	if err, ok := r.(error); ok {
		failure.Kind = KindOf(err)
		failure.Cause = failureChain(err, 1)
	}
	if frames := normalizeStackTrace(stack); len(frames) > 0 {
		failure.Source = frames[0]
	}

	rec := ErrorRecord{
		Message:    message,
		Details:    failure.String(),
		StackTrace: stack,
		Failure:    failure,
		Severity:   SeverityCritical,
		Category:   Classify(failure).Category,
	}

	// Reporting must not affect the caller.
	_, _ = reporter.Report(ctx, rec)
}

// formatRecovered formats a recovered panic value as a string.
func formatRecovered(recovered any) string {
	if err, ok := recovered.(error); ok {
		return err.Error()
	}
	return fmt.Sprintf("%v", recovered)
}
