// encode.go implements the per-format document writers.

package export

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/strongdm/errtel/pkg/errtel"
)

// Document is the JSON export layout.
type Document struct {
	Count   int                  `json:"count"`
	Records []errtel.ErrorRecord `json:"records"`
}

func writeJSON(ctx context.Context, w io.Writer, records []errtel.ErrorRecord) error {
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintf(bw, "{\"count\":%d,\"records\":[", len(records)); err != nil {
		return err
	}
	for i := range records {
		if err := cancelled(ctx, i); err != nil {
			return err
		}
		r := records[i]
		r.Context = errtel.NormalizeContext(r.Context)
		raw, err := json.Marshal(&r)
		if err != nil {
			return fmt.Errorf("encode record %s: %w", records[i].ID, err)
		}
		if i > 0 {
			if err := bw.WriteByte(','); err != nil {
				return err
			}
		}
		if _, err := bw.WriteString("\n"); err != nil {
			return err
		}
		if _, err := bw.Write(raw); err != nil {
			return err
		}
	}
	if _, err := bw.WriteString("\n]}\n"); err != nil {
		return err
	}
	return bw.Flush()
}

// CSVHeader is the CSV column order.
var CSVHeader = []string{
	"id", "timestamp", "severity", "category", "component", "errorHash",
	"message", "failureType", "details", "stackTrace", "isResolved", "context",
}

func writeCSV(ctx context.Context, w io.Writer, records []errtel.ErrorRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for i, r := range records {
		if err := cancelled(ctx, i); err != nil {
			return err
		}
		contextJSON := ""
		if len(r.Context) > 0 {
			raw, err := json.Marshal(errtel.NormalizeContext(r.Context))
			if err != nil {
				return fmt.Errorf("encode context of %s: %w", r.ID, err)
			}
			contextJSON = string(raw)
		}
		row := []string{
			r.ID,
			r.Timestamp.Format(time.RFC3339Nano),
			r.Severity.String(),
			string(r.Category),
			r.Component,
			r.ErrorHash,
			r.Message,
			r.FailureType(),
			r.Details,
			r.StackTrace,
			strconv.FormatBool(r.IsResolved),
			contextJSON,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// xmlRecord is the XML form of a record; maps are flattened to entries.
type xmlRecord struct {
	XMLName    xml.Name              `xml:"errorReport"`
	ID         string                `xml:"id,attr"`
	Timestamp  time.Time             `xml:"timestamp"`
	Severity   string                `xml:"severity"`
	Category   string                `xml:"category"`
	Component  string                `xml:"component,omitempty"`
	ErrorHash  string                `xml:"errorHash"`
	Message    string                `xml:"message"`
	Details    string                `xml:"details,omitempty"`
	StackTrace string                `xml:"stackTrace,omitempty"`
	Failure    *errtel.FailureInfo   `xml:"failureInfo,omitempty"`
	System     *errtel.SystemContext `xml:"systemContext,omitempty"`
	Context    []xmlEntry            `xml:"context>entry,omitempty"`
	IsResolved bool                  `xml:"isResolved"`
}

type xmlEntry struct {
	Key   string `xml:"key,attr"`
	Value string `xml:",chardata"`
}

func toXML(r errtel.ErrorRecord) xmlRecord {
	x := xmlRecord{
		ID:         r.ID,
		Timestamp:  r.Timestamp,
		Severity:   r.Severity.String(),
		Category:   string(r.Category),
		Component:  r.Component,
		ErrorHash:  r.ErrorHash,
		Message:    r.Message,
		Details:    r.Details,
		StackTrace: r.StackTrace,
		Failure:    r.Failure,
		System:     r.System,
		IsResolved: r.IsResolved,
	}
	keys := make([]string, 0, len(r.Context))
	for k := range r.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		x.Context = append(x.Context, xmlEntry{Key: k, Value: fmt.Sprint(r.Context[k])})
	}
	return x
}

func writeXML(ctx context.Context, w io.Writer, records []errtel.ErrorRecord) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(bw)
	enc.Indent("", "  ")
	root := xml.StartElement{
		Name: xml.Name{Local: "errorReports"},
		Attr: []xml.Attr{{Name: xml.Name{Local: "count"}, Value: strconv.Itoa(len(records))}},
	}
	if err := enc.EncodeToken(root); err != nil {
		return err
	}
	for i, r := range records {
		if err := cancelled(ctx, i); err != nil {
			return err
		}
		if err := enc.Encode(toXML(r)); err != nil {
			return fmt.Errorf("encode record %s: %w", r.ID, err)
		}
	}
	if err := enc.EncodeToken(root.End()); err != nil {
		return err
	}
	if err := enc.Flush(); err != nil {
		return err
	}
	if _, err := bw.WriteString("\n"); err != nil {
		return err
	}
	return bw.Flush()
}
