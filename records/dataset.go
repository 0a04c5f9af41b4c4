package records

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/gomlx/piispans/schema"
	"github.com/gomlx/piispans/spans"
)

// Format of exported corpora.
type Format string

const (
	FormatJSONL   Format = "jsonl"
	FormatParquet Format = "parquet"
)

// ParseFormat validates a format name.
func ParseFormat(name string) (Format, error) {
	switch f := Format(name); f {
	case FormatJSONL, FormatParquet:
		return f, nil
	}
	return "", errors.Errorf("unknown corpus format %q, valid formats are %q and %q", name, FormatJSONL, FormatParquet)
}

// ParquetSpan is the Parquet row layout of a span, with character offsets.
type ParquetSpan struct {
	Start int64  `parquet:"start"`
	End   int64  `parquet:"end"`
	Label string `parquet:"label"`
}

// ParquetRecord is the Parquet row layout of a Record.
type ParquetRecord struct {
	ID    string        `parquet:"id"`
	Text  string        `parquet:"text"`
	Spans []ParquetSpan `parquet:"spans,list"`
}

// TextOnlyMetadataKey marks, in the key/value metadata of a Parquet file, a corpus written
// without spans. Parquet can't tell a missing span list from an empty one.
const TextOnlyMetadataKey = "piispans.text_only"

// WriteParquetFile writes the records as a Parquet file. If textOnly the spans are left empty and
// the file is marked with TextOnlyMetadataKey.
func WriteParquetFile(ctx context.Context, filePath string, list []Record, textOnly bool) error {
	rows := make([]ParquetRecord, len(list))
	for i, r := range list {
		rows[i] = ParquetRecord{ID: r.ID, Text: r.Text}
		if textOnly {
			continue
		}
		for _, sr := range r.Spans {
			rows[i].Spans = append(rows[i].Spans, ParquetSpan{Start: int64(sr.Start), End: int64(sr.End), Label: sr.Label})
		}
	}
	return WriteFileAtomic(ctx, filePath, func(w *bufio.Writer) error {
		var options []parquet.WriterOption
		if textOnly {
			options = append(options, parquet.KeyValueMetadata(TextOnlyMetadataKey, "true"))
		}
		return parquet.Write(w, rows, options...)
	})
}

// ReadParquetFile reads records written by WriteParquetFile. If requireSpans, a text-only file is
// a *ParseError for its first record.
func ReadParquetFile(filePath string, requireSpans bool) ([]Record, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open parquet file %q", filePath)
	}
	defer func() { _ = f.Close() }()
	info, err := f.Stat()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to stat parquet file %q", filePath)
	}
	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return nil, errors.Wrapf(err, "reading parquet file %q", filePath)
	}
	if value, found := pf.Lookup(TextOnlyMetadataKey); found && value == "true" && requireSpans && pf.NumRows() > 0 {
		return nil, errors.WithMessagef(&ParseError{Line: 1, Reason: `missing required field "spans"`},
			"text-only parquet file %q", filePath)
	}
	rows, err := parquet.Read[ParquetRecord](f, info.Size())
	if err != nil {
		return nil, errors.Wrapf(err, "reading parquet file %q", filePath)
	}
	list := make([]Record, len(rows))
	for i, row := range rows {
		list[i] = Record{ID: row.ID, Text: row.Text, Spans: make([]SpanRecord, 0, len(row.Spans)), Line: i + 1}
		for _, ps := range row.Spans {
			list[i].Spans = append(list[i].Spans, SpanRecord{Start: int(ps.Start), End: int(ps.End), Label: ps.Label})
		}
	}
	return list, nil
}

// ReadCorpusFile reads a JSONL or Parquet corpus, chosen by the file extension.
func ReadCorpusFile(filePath string, requireSpans bool) ([]Record, error) {
	if filepath.Ext(filePath) == ".parquet" {
		return ReadParquetFile(filePath, requireSpans)
	}
	return ReadFile(filePath, requireSpans)
}

// WriteJSONLFile atomically writes the records as a JSONL file.
func WriteJSONLFile(ctx context.Context, filePath string, list []Record, textOnly bool) error {
	return WriteFileAtomic(ctx, filePath, func(w *bufio.Writer) error {
		return Write(w, list, textOnly)
	})
}

// LabeledRecord is one tokenized training example: its tokens with character offsets and BIO tag
// ids. Special tokens have offsets (-1, -1) and tag id -100.
type LabeledRecord struct {
	ID      string       `json:"id,omitempty"`
	Text    string       `json:"text"`
	Offsets [][2]int     `json:"offsets"`
	TagIDs  []int        `json:"tag_ids"`
	Lossy   bool         `json:"lossy,omitempty"`
	Dropped []SpanRecord `json:"dropped,omitempty"`
}

// NewLabeledRecord converts byte-offset tokens and the spans dropped by truncation into a
// LabeledRecord with character offsets.
func NewLabeledRecord(ex spans.Example, tokens []spans.Token, tagIDs []int, lossy bool, dropped []spans.Span) LabeledRecord {
	table := offsetTable(ex.Text)
	lr := LabeledRecord{ID: ex.ID, Text: ex.Text, Offsets: make([][2]int, len(tokens)), TagIDs: tagIDs, Lossy: lossy}
	for i, token := range tokens {
		if token.IsSpecial() {
			lr.Offsets[i] = [2]int{-1, -1}
			continue
		}
		lr.Offsets[i] = [2]int{byteToChar(table, token.Start), byteToChar(table, token.End)}
	}
	if len(dropped) > 0 {
		lr.Dropped = FromExample(spans.Example{Text: ex.Text, Spans: dropped}, nil).Spans
	}
	return lr
}

// WriteLabeledFile atomically writes labeled records as JSONL.
func WriteLabeledFile(ctx context.Context, filePath string, list []LabeledRecord) error {
	return WriteFileAtomic(ctx, filePath, func(w *bufio.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		for i := range list {
			if err := enc.Encode(&list[i]); err != nil {
				return errors.Wrapf(err, "writing labeled record %q", list[i].ID)
			}
		}
		return nil
	})
}

// SplitExport is one split to be written by WriteDataset.
type SplitExport struct {
	Name     string
	TextOnly bool
	Examples []spans.Example
}

// SplitManifest describes one exported split.
type SplitManifest struct {
	Name     string `json:"name"`
	File     string `json:"file"`
	Size     int    `json:"size"`
	TextOnly bool   `json:"text_only,omitempty"`
}

// Manifest describes an exported dataset: it is written as manifest.json next to the split files.
type Manifest struct {
	RunID     uuid.UUID       `json:"run_id"`
	CreatedAt time.Time       `json:"created_at"`
	Seed      uint64          `json:"seed"`
	Format    Format          `json:"format"`
	Tags      []string        `json:"tags"`
	Splits    []SplitManifest `json:"splits"`
}

// ManifestFileName is the name of the manifest file in a dataset directory.
const ManifestFileName = "manifest.json"

// WriteDataset writes each split as "<dir>/<name>.<format>" plus the manifest.
func WriteDataset(ctx context.Context, dir string, s *schema.Schema, seed uint64, format Format, splits []SplitExport) (*Manifest, error) {
	manifest := &Manifest{
		RunID:     uuid.New(),
		CreatedAt: time.Now().UTC(),
		Seed:      seed,
		Format:    format,
		Tags:      s.Tags(),
	}
	for _, split := range splits {
		list := make([]Record, len(split.Examples))
		for i, ex := range split.Examples {
			list[i] = FromExample(ex, nil)
		}
		fileName := fmt.Sprintf("%s.%s", split.Name, format)
		filePath := filepath.Join(dir, fileName)
		var err error
		switch format {
		case FormatParquet:
			err = WriteParquetFile(ctx, filePath, list, split.TextOnly)
		default:
			err = WriteJSONLFile(ctx, filePath, list, split.TextOnly)
		}
		if err != nil {
			return nil, err
		}
		klog.V(1).Infof("wrote %d %s examples to %q", len(list), split.Name, filePath)
		manifest.Splits = append(manifest.Splits, SplitManifest{
			Name: split.Name, File: fileName, Size: len(list), TextOnly: split.TextOnly,
		})
	}
	manifestPath := filepath.Join(dir, ManifestFileName)
	err := WriteFileAtomic(ctx, manifestPath, func(w *bufio.Writer) error {
		content, err := json.MarshalIndent(manifest, "", "  ")
		if err != nil {
			return err
		}
		_, err = w.Write(append(content, '\n'))
		return err
	})
	if err != nil {
		return nil, err
	}
	return manifest, nil
}

// ReadManifest reads the manifest of a dataset directory.
func ReadManifest(dir string) (*Manifest, error) {
	content, err := os.ReadFile(filepath.Join(dir, ManifestFileName))
	if err != nil {
		return nil, errors.Wrapf(err, "reading manifest of %q", dir)
	}
	var manifest Manifest
	dec := json.NewDecoder(bytes.NewReader(content))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&manifest); err != nil {
		return nil, errors.Wrapf(err, "parsing manifest of %q", dir)
	}
	return &manifest, nil
}
