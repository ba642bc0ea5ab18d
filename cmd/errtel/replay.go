// replay.go reads JSON-lines failure reports and ingests them.

package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/strongdm/errtel/pkg/errtel"
)

// maxLineSize bounds a single input line; stack traces can be long.
const maxLineSize = 4 << 20

// inputRecord is one line of replay input.
type inputRecord struct {
	Timestamp  time.Time           `json:"timestamp"`
	Severity   string              `json:"severity"`
	Category   string              `json:"category"`
	Component  string              `json:"component"`
	Message    string              `json:"message"`
	Details    string              `json:"details"`
	StackTrace string              `json:"stackTrace"`
	Context    map[string]any      `json:"context"`
	Failure    *errtel.FailureInfo `json:"failureInfo"`
}

// record converts the line to an ErrorRecord. Severity defaults to error;
// an empty category is left for the engine to derive.
func (in inputRecord) record() (errtel.ErrorRecord, error) {
	rec := errtel.ErrorRecord{
		Timestamp:  in.Timestamp,
		Severity:   errtel.SeverityError,
		Component:  in.Component,
		Message:    in.Message,
		Details:    in.Details,
		StackTrace: in.StackTrace,
		Context:    in.Context,
		Failure:    in.Failure,
	}
	if in.Severity != "" {
		s, err := errtel.ParseSeverity(in.Severity)
		if err != nil {
			return rec, err
		}
		rec.Severity = s
	}
	if in.Category != "" {
		c, err := errtel.ParseCategory(in.Category)
		if err != nil {
			return rec, err
		}
		rec.Category = c
	}
	return rec, nil
}

type reporter interface {
	ReportError(ctx context.Context, rec errtel.ErrorRecord) (errtel.ErrorRecord, error)
}

type replayResult struct {
	Lines    int `json:"lines"`
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
}

// replay ingests every report in in. Reports the engine rejects are logged
// and counted; malformed JSON stops the replay.
func replay(ctx context.Context, r reporter, in io.Reader, log *slog.Logger) (replayResult, error) {
	var res replayResult
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 || raw[0] == '#' {
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Lines++

		var ir inputRecord
		if err := json.Unmarshal(raw, &ir); err != nil {
			return res, fmt.Errorf("line %d: %w", line, err)
		}
		rec, err := ir.record()
		if err == nil {
			_, err = r.ReportError(ctx, rec)
		}
		if err != nil {
			if !errors.Is(err, errtel.ErrInvalidArgument) {
				return res, fmt.Errorf("line %d: %w", line, err)
			}
			res.Rejected++
			log.WarnContext(ctx, "report rejected", "line", line, "error", err)
			continue
		}
		res.Accepted++
	}
	if err := sc.Err(); err != nil {
		return res, err
	}
	return res, nil
}
