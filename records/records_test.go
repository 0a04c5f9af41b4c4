package records

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomlx/piispans/schema"
	"github.com/gomlx/piispans/spans"
)

func TestParseLine(t *testing.T) {
	r, err := ParseLine([]byte(`{"id":"a","text":"mail j@x.io","spans":[{"start":5,"end":11,"label":"EMAIL","confidence":0.5}]}`), 3, true)
	require.NoError(t, err)
	assert.Equal(t, "a", r.ID)
	assert.Equal(t, 3, r.Line)
	require.Len(t, r.Spans, 1)
	assert.Equal(t, "EMAIL", r.Spans[0].Label)
	assert.Equal(t, 11, r.Spans[0].End)
	require.NotNil(t, r.Spans[0].Confidence)
	assert.Equal(t, 0.5, *r.Spans[0].Confidence)

	// "entities" is an alias of "spans".
	r, err = ParseLine([]byte(`{"text":"call 555","entities":[{"start":5,"end":8,"label":"PHONE"}]}`), 1, true)
	require.NoError(t, err)
	assert.Equal(t, []SpanRecord{{Start: 5, End: 8, Label: "PHONE"}}, r.Spans)

	// Text-only records.
	r, err = ParseLine([]byte(`{"id":"t","text":"hello"}`), 1, false)
	require.NoError(t, err)
	assert.Nil(t, r.Spans)

	// An empty span list is not a missing one.
	r, err = ParseLine([]byte(`{"text":"hello","spans":[]}`), 1, true)
	require.NoError(t, err)
	assert.Empty(t, r.Spans)
}

func TestParseLineErrors(t *testing.T) {
	tests := []struct {
		name string
		line string
		want string
	}{
		{"invalid json", `{"text": "a"`, "invalid JSON"},
		{"missing text", `{"spans": []}`, `missing required field "text"`},
		{"missing spans", `{"text": "a"}`, `missing required field "spans"`},
		{"null spans", `{"text": "a", "spans": null}`, `missing required field "spans"`},
		{"missing start", `{"text": "a", "spans": [{"end": 1, "label": "EMAIL"}]}`, `span 0 is missing "start"`},
		{"missing end", `{"text": "a", "spans": [{"start": 0, "label": "EMAIL"}]}`, `span 0 is missing "end"`},
		{"missing label", `{"text": "a", "spans": [{"start": 0, "end": 1}]}`, `span 0 is missing "label"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseLine([]byte(tt.line), 7, true)
			var parseErr *ParseError
			require.True(t, errors.As(err, &parseErr), "expected *ParseError, got %v", err)
			assert.Equal(t, 7, parseErr.Line)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestToExampleCharacterOffsets(t *testing.T) {
	// "é" takes two bytes: character offsets past it are one less than byte offsets.
	r := Record{ID: "x", Text: "josé: j@x.io", Spans: []SpanRecord{
		{Start: 6, End: 12, Label: "EMAIL"},
		{Start: 0, End: 4, Label: "PERSON_NAME"},
	}}
	ex, confidences, err := r.ToExample(schema.Default())
	require.NoError(t, err)
	want := []spans.Span{
		{Start: 0, End: 5, Type: schema.PersonName},
		{Start: 7, End: 13, Type: schema.Email},
	}
	assert.Equal(t, want, ex.Spans, "spans must be converted to bytes and sorted")
	assert.Equal(t, "josé", ex.Text[ex.Spans[0].Start:ex.Spans[0].End])
	assert.Equal(t, "j@x.io", ex.Text[ex.Spans[1].Start:ex.Spans[1].End])
	assert.Equal(t, []float64{-1, -1}, confidences)

	back := FromExample(ex, nil)
	assert.Equal(t, []SpanRecord{
		{Start: 0, End: 4, Label: "PERSON_NAME"},
		{Start: 6, End: 12, Label: "EMAIL"},
	}, back.Spans)
}

func TestToExampleMalformed(t *testing.T) {
	s := schema.Default()
	tests := []struct {
		name  string
		spans []SpanRecord
	}{
		{"out of bounds", []SpanRecord{{Start: 0, End: 20, Label: "EMAIL"}}},
		{"negative", []SpanRecord{{Start: -1, End: 2, Label: "EMAIL"}}},
		{"empty", []SpanRecord{{Start: 2, End: 2, Label: "EMAIL"}}},
		{"unknown label", []SpanRecord{{Start: 0, End: 2, Label: "SSN"}}},
		{"overlap", []SpanRecord{{Start: 0, End: 4, Label: "EMAIL"}, {Start: 3, End: 6, Label: "PHONE"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Record{ID: "bad", Text: "hello world", Spans: tt.spans}
			_, _, err := r.ToExample(s)
			var malformed *spans.MalformedError
			require.True(t, errors.As(err, &malformed), "expected *spans.MalformedError, got %v", err)
			assert.Equal(t, `"bad"`, malformed.Record)
		})
	}
}

func TestReadWrite(t *testing.T) {
	confidence := 0.9
	list := []Record{
		{ID: "a", Text: "mail j@x.io", Spans: []SpanRecord{{Start: 5, End: 11, Label: "EMAIL", Confidence: &confidence}}},
		{ID: "b", Text: "nothing <here> & there"},
	}
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, list, false))
	assert.Contains(t, buf.String(), `"spans":[]`, "gold records without spans must still carry the field")
	assert.Contains(t, buf.String(), "<here> &", "HTML characters must not be escaped")

	// Blank lines are ignored.
	got, err := Read(strings.NewReader(buf.String()+"\n\n"), true)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, 1, got[0].Line)
	assert.Equal(t, list[0].Spans, got[0].Spans)
	assert.Empty(t, got[1].Spans)

	buf.Reset()
	require.NoError(t, Write(&buf, list, true))
	assert.NotContains(t, buf.String(), "spans")
	_, err = Read(&buf, true)
	var parseErr *ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Equal(t, 1, parseErr.Line)
}

func TestFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	list := []Record{
		{ID: "a", Text: "josé: j@x.io", Spans: []SpanRecord{{Start: 6, End: 12, Label: "EMAIL"}}},
		{ID: "b", Text: "no pii", Spans: []SpanRecord{}},
	}

	jsonlPath := filepath.Join(dir, "sub", "gold.jsonl")
	require.NoError(t, WriteJSONLFile(ctx, jsonlPath, list, false))
	assert.NoFileExists(t, jsonlPath+".tmp")
	assert.NoFileExists(t, jsonlPath+".lock")
	got, err := ReadCorpusFile(jsonlPath, true)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, list[0].Spans, got[0].Spans)

	parquetPath := filepath.Join(dir, "gold.parquet")
	require.NoError(t, WriteParquetFile(ctx, parquetPath, list, false))
	got, err = ReadCorpusFile(parquetPath, true)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "josé: j@x.io", got[0].Text)
	assert.Equal(t, list[0].Spans, got[0].Spans)
	assert.Empty(t, got[1].Spans)

	// Text-only parquet files have no spans to score against.
	textOnlyPath := filepath.Join(dir, "test.parquet")
	require.NoError(t, WriteParquetFile(ctx, textOnlyPath, list, true))
	got, err = ReadCorpusFile(textOnlyPath, false)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Empty(t, got[0].Spans)
	_, err = ReadCorpusFile(textOnlyPath, true)
	var parseErr *ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Contains(t, parseErr.Reason, `"spans"`)

	// Empty files can't be memory-mapped, but are valid empty corpora.
	emptyPath := filepath.Join(dir, "empty.jsonl")
	require.NoError(t, os.WriteFile(emptyPath, nil, 0644))
	got, err = ReadFile(emptyPath, true)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = ReadFile(filepath.Join(dir, "missing.jsonl"), true)
	require.Error(t, err)
}

func TestWriteFileAtomicFailure(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "out.jsonl")
	require.NoError(t, os.WriteFile(filePath, []byte("previous\n"), 0644))
	err := WriteFileAtomic(context.Background(), filePath, func(w *bufio.Writer) error {
		_, _ = w.WriteString("partial")
		return errors.New("boom")
	})
	require.Error(t, err)
	content, err := os.ReadFile(filePath)
	require.NoError(t, err)
	assert.Equal(t, "previous\n", string(content), "a failed write must leave the previous file untouched")
	assert.NoFileExists(t, filePath+".tmp")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, WriteJSONLFile(ctx, filePath, nil, false), context.Canceled)
}

func TestNewLabeledRecord(t *testing.T) {
	ex := spans.Example{ID: "x", Text: "josé: j@x.io"}
	tokens := []spans.Token{spans.NoOffset, {Start: 0, End: 5}, {Start: 5, End: 6}, {Start: 7, End: 13}, spans.NoOffset}
	dropped := []spans.Span{{Start: 7, End: 13, Type: schema.Email}}
	lr := NewLabeledRecord(ex, tokens, []int{spans.IgnoreTag, 1, 0, 3, spans.IgnoreTag}, true, dropped)
	assert.Equal(t, [][2]int{{-1, -1}, {0, 4}, {4, 5}, {6, 12}, {-1, -1}}, lr.Offsets)
	assert.True(t, lr.Lossy)
	assert.Equal(t, []SpanRecord{{Start: 6, End: 12, Label: "EMAIL"}}, lr.Dropped)
}

func TestWriteDataset(t *testing.T) {
	dir := t.TempDir()
	s := schema.Default()
	splits := []SplitExport{
		{Name: "train", Examples: []spans.Example{{ID: "train_00001", Text: "call 555", Spans: []spans.Span{{Start: 5, End: 8, Type: schema.Phone}}}}},
		{Name: "test", TextOnly: true, Examples: []spans.Example{{ID: "test_00001", Text: "mail j@x.io", Spans: []spans.Span{{Start: 5, End: 11, Type: schema.Email}}}}},
	}
	for _, format := range []Format{FormatJSONL, FormatParquet} {
		t.Run(string(format), func(t *testing.T) {
			outDir := filepath.Join(dir, string(format))
			manifest, err := WriteDataset(context.Background(), outDir, s, 42, format, splits)
			require.NoError(t, err)
			require.Len(t, manifest.Splits, 2)
			assert.Equal(t, s.Tags(), manifest.Tags)

			read, err := ReadManifest(outDir)
			require.NoError(t, err)
			assert.Equal(t, manifest.RunID, read.RunID)
			assert.Equal(t, uint64(42), read.Seed)
			assert.Equal(t, "train."+string(format), read.Splits[0].File)

			train, err := ReadCorpusFile(filepath.Join(outDir, read.Splits[0].File), true)
			require.NoError(t, err)
			require.Len(t, train, 1)
			assert.Equal(t, []SpanRecord{{Start: 5, End: 8, Label: "PHONE"}}, train[0].Spans)

			test, err := ReadCorpusFile(filepath.Join(outDir, read.Splits[1].File), false)
			require.NoError(t, err)
			require.Len(t, test, 1)
			assert.Empty(t, test[0].Spans, "text-only splits must not leak gold spans")
		})
	}

	_, err := ParseFormat("csv")
	require.Error(t, err)
	f, err := ParseFormat("parquet")
	require.NoError(t, err)
	assert.Equal(t, FormatParquet, f)
}
