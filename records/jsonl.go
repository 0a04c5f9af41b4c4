package records

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"
)

// MaxLineSize is the longest JSONL line accepted by the readers.
const MaxLineSize = 64 << 20

type rawSpan struct {
	Start      *int     `json:"start"`
	End        *int     `json:"end"`
	Label      *string  `json:"label"`
	Confidence *float64 `json:"confidence"`
}

type rawRecord struct {
	ID       string     `json:"id"`
	Text     *string    `json:"text"`
	Spans    *[]rawSpan `json:"spans"`
	Entities *[]rawSpan `json:"entities"`
}

// ParseLine parses one JSONL line. The "entities" key is accepted as an alias of "spans".
//
// If requireSpans is false, a record without spans is accepted (text-only corpora), otherwise it
// is a *ParseError.
func ParseLine(line []byte, lineNum int, requireSpans bool) (Record, error) {
	var raw rawRecord
	if err := json.Unmarshal(line, &raw); err != nil {
		return Record{}, &ParseError{Line: lineNum, Reason: "invalid JSON", Err: err}
	}
	if raw.Text == nil {
		return Record{}, &ParseError{Line: lineNum, Reason: `missing required field "text"`}
	}
	list := raw.Spans
	if list == nil {
		list = raw.Entities
	}
	if list == nil && requireSpans {
		return Record{}, &ParseError{Line: lineNum, Reason: `missing required field "spans"`}
	}
	r := Record{ID: raw.ID, Text: *raw.Text, Line: lineNum}
	if list == nil {
		return r, nil
	}
	r.Spans = make([]SpanRecord, 0, len(*list))
	for i, rs := range *list {
		switch {
		case rs.Start == nil:
			return Record{}, &ParseError{Line: lineNum, Reason: fmt.Sprintf(`span %d is missing "start"`, i)}
		case rs.End == nil:
			return Record{}, &ParseError{Line: lineNum, Reason: fmt.Sprintf(`span %d is missing "end"`, i)}
		case rs.Label == nil:
			return Record{}, &ParseError{Line: lineNum, Reason: fmt.Sprintf(`span %d is missing "label"`, i)}
		}
		r.Spans = append(r.Spans, SpanRecord{Start: *rs.Start, End: *rs.End, Label: *rs.Label, Confidence: rs.Confidence})
	}
	return r, nil
}

// Read parses every non-blank line of r. It stops at the first *ParseError.
func Read(r io.Reader, requireSpans bool) ([]Record, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineSize)
	var list []Record
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		record, err := ParseLine(line, lineNum, requireSpans)
		if err != nil {
			return nil, err
		}
		list = append(list, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "reading line %d", lineNum+1)
	}
	return list, nil
}

// ReadFile memory-maps the JSONL file and parses it with Read.
func ReadFile(filePath string, requireSpans bool) ([]Record, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %q", filePath)
	}
	defer func() { _ = f.Close() }()
	info, err := f.Stat()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to stat %q", filePath)
	}
	if info.Size() == 0 {
		// Empty files cannot be mapped.
		return nil, nil
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to memory-map %q", filePath)
	}
	defer func() { _ = m.Unmap() }()
	list, err := Read(bytes.NewReader(m), requireSpans)
	if err != nil {
		return nil, errors.WithMessagef(err, "in %q", filePath)
	}
	return list, nil
}

type textOnlyRecord struct {
	ID   string `json:"id,omitempty"`
	Text string `json:"text"`
}

// Write writes one JSON object per line. If textOnly, the spans are omitted.
func Write(w io.Writer, list []Record, textOnly bool) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for i := range list {
		var err error
		if textOnly {
			err = enc.Encode(textOnlyRecord{ID: list[i].ID, Text: list[i].Text})
		} else {
			r := list[i]
			if r.Spans == nil {
				r.Spans = []SpanRecord{}
			}
			err = enc.Encode(r)
		}
		if err != nil {
			return errors.Wrapf(err, "writing record %s", list[i].Name())
		}
	}
	return nil
}
