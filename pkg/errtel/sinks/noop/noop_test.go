package noop

import (
	"context"
	"testing"

	"github.com/strongdm/errtel/pkg/errtel"
)

func TestNoopSink_AllMethodsReturnNil(t *testing.T) {
	sink := NewNoopSink()
	ctx := context.Background()

	if err := sink.Write(ctx, errtel.ErrorRecord{Message: "boom"}); err != nil {
		t.Errorf("Write() = %v, want nil", err)
	}
	if err := sink.Flush(ctx); err != nil {
		t.Errorf("Flush() = %v, want nil", err)
	}
	if err := sink.Close(); err != nil {
		t.Errorf("Close() = %v, want nil", err)
	}
}

func TestNoopSink_UsableAsEngineSink(t *testing.T) {
	engine := errtel.New(errtel.WithSink(NewNoopSink()))
	if _, err := engine.ReportMessage(context.Background(), "discarded downstream"); err != nil {
		t.Fatalf("ReportMessage() error = %v", err)
	}
	if engine.Len() != 1 {
		t.Errorf("Len() = %d, want 1", engine.Len())
	}
}
