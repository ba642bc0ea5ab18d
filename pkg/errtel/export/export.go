// Package export writes error records to self-contained JSON, CSV, or XML
// documents.
//
// Output is written to "<path>.partial" and renamed to path only once the
// document is complete. A cancelled export leaves the ".partial" file in
// place so it is never mistaken for a complete one; any other failure
// removes it.
package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/strongdm/errtel/pkg/errtel"
)

var tracer = otel.Tracer("github.com/strongdm/errtel/pkg/errtel/export")

// PartialSuffix marks an export that did not complete.
const PartialSuffix = ".partial"

// Format is an export document format.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatXML  Format = "xml"
)

// Formats lists the supported formats.
var Formats = []Format{FormatJSON, FormatCSV, FormatXML}

// ParseFormat parses a format name, case-insensitively.
func ParseFormat(name string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := encoders[f]; !ok {
		return "", errtel.NewError(errtel.ReasonUnsupportedFormat, "export", fmt.Sprintf("unsupported format %q", name), nil)
	}
	return f, nil
}

// encoder writes a complete document, checking ctx between records.
type encoder func(ctx context.Context, w io.Writer, records []errtel.ErrorRecord) error

var encoders = map[Format]encoder{
	FormatJSON: writeJSON,
	FormatCSV:  writeCSV,
	FormatXML:  writeXML,
}

// Export writes records to path in the given format.
//
// Errors are *errtel.Error values: ReasonUnsupportedFormat before any file is
// touched, ReasonCancelled when ctx ends mid-write, and ReasonExportIO for
// filesystem failures.
func Export(ctx context.Context, records []errtel.ErrorRecord, format Format, path string) (err error) {
	const op = "export"

	ctx, span := tracer.Start(ctx, "export.Export",
		trace.WithAttributes(
			attribute.String("export.format", string(format)),
			attribute.Int("export.records", len(records)),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	enc, ok := encoders[format]
	if !ok {
		return errtel.NewError(errtel.ReasonUnsupportedFormat, op, fmt.Sprintf("unsupported format %q", format), nil)
	}
	if path == "" {
		return errtel.NewError(errtel.ReasonInvalidArgument, op, "path is required", nil)
	}
	if err := ctx.Err(); err != nil {
		return errtel.NewError(errtel.ReasonCancelled, op, "export cancelled", err)
	}

	partial := path + PartialSuffix
	f, err := os.OpenFile(partial, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return errtel.NewError(errtel.ReasonExportIO, op, "create output file", err)
	}

	if err := enc(ctx, f, records); err != nil {
		_ = f.Close()
		if ctx.Err() != nil {
			// Keep the flagged partial file for inspection.
			return errtel.NewError(errtel.ReasonCancelled, op, fmt.Sprintf("export cancelled; incomplete output left at %s", partial), ctx.Err())
		}
		_ = os.Remove(partial)
		return errtel.NewError(errtel.ReasonExportIO, op, "write output", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(partial)
		return errtel.NewError(errtel.ReasonExportIO, op, "sync output", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(partial)
		return errtel.NewError(errtel.ReasonExportIO, op, "close output", err)
	}
	if err := os.Rename(partial, path); err != nil {
		_ = os.Remove(partial)
		return errtel.NewError(errtel.ReasonExportIO, op, "finalize output", err)
	}
	return nil
}

// checkEvery is how many records are written between cancellation checks.
const checkEvery = 64

func cancelled(ctx context.Context, i int) error {
	if i%checkEvery != 0 {
		return nil
	}
	return ctx.Err()
}
