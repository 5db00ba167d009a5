package task

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hkzhang08/gradcafe-ingest/internal/domain"
)

type recordingIngestor struct {
	records []domain.RawRecord
	since   *string
	result  int
}

func (r *recordingIngestor) IngestRecords(_ context.Context, records []domain.RawRecord, since *string) (int, error) {
	r.records = records
	r.since = since
	return r.result, nil
}

func TestHandleInlineRecords(t *testing.T) {
	ingestor := &recordingIngestor{result: 2}
	d := NewDispatcher(ingestor, "", zap.NewNop())

	body := []byte(`{
		"kind": "scrape_new_data",
		"payload": {
			"since": "1000",
			"records": [
				{"program": "CS, State U", "url": "https://x.test/result/1001"},
				{"program": "EE, State U", "url": "https://x.test/result/1002"}
			]
		}
	}`)

	inserted, err := d.Handle(context.Background(), body)
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)
	require.Len(t, ingestor.records, 2)
	assert.Equal(t, "CS, State U", ingestor.records[0].Program)
	require.NotNil(t, ingestor.since)
	assert.Equal(t, "1000", *ingestor.since)
}

func TestHandleReadsDataFile(t *testing.T) {
	dir := t.TempDir()
	dataFile := filepath.Join(dir, "rows.jsonl")
	require.NoError(t, os.WriteFile(dataFile, []byte(
		`{"program": "CS, State U", "url": "https://x.test/result/1"}

{"program": "EE, State U", "url": "https://x.test/result/2"}
`), 0o600))

	ingestor := &recordingIngestor{}
	d := NewDispatcher(ingestor, dataFile, zap.NewNop())

	_, err := d.Handle(context.Background(), []byte(`{"kind": "scrape_new_data", "payload": {}}`))
	require.NoError(t, err)
	require.Len(t, ingestor.records, 2)
	assert.Nil(t, ingestor.since)
}

func TestHandlePayloadDataFileOverridesDefault(t *testing.T) {
	dir := t.TempDir()
	dataFile := filepath.Join(dir, "rows.json")
	require.NoError(t, os.WriteFile(dataFile, []byte(
		`[{"program": "CS, State U", "url": "https://x.test/result/1"}]`), 0o600))

	ingestor := &recordingIngestor{}
	d := NewDispatcher(ingestor, filepath.Join(dir, "missing-default.json"), zap.NewNop())

	body := []byte(`{"kind": "scrape_new_data", "payload": {"data_file": "` + dataFile + `"}}`)
	_, err := d.Handle(context.Background(), body)
	require.NoError(t, err)
	require.Len(t, ingestor.records, 1)
}

func TestHandleRejectsBadMessages(t *testing.T) {
	d := NewDispatcher(&recordingIngestor{}, "", zap.NewNop())

	_, err := d.Handle(context.Background(), []byte(`not json`))
	require.Error(t, err)

	_, err = d.Handle(context.Background(), []byte(`{"payload": {}}`))
	require.Error(t, err)

	_, err = d.Handle(context.Background(), []byte(`{"kind": "recompute_analytics"}`))
	require.ErrorIs(t, err, ErrUnsupportedKind)
}

func TestLoadRecordsFileJSONArray(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rows.json")
	require.NoError(t, os.WriteFile(path, []byte(`
	[
		{"program": "CS, State U", "gpa": "GPA 3.9"},
		{"program": "EE, State U"}
	]`), 0o600))

	records, err := LoadRecordsFile(path)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "GPA 3.9", records[0].GPA)
}

func TestLoadRecordsFileHyphenatedEnrichmentKeys(t *testing.T) {
	// The LLM standardizer writes hyphenated enrichment keys into its output
	// files; they must decode into the same fields as the underscore variant.
	dir := t.TempDir()
	path := filepath.Join(dir, "llm_new_applicant.json")
	require.NoError(t, os.WriteFile(path, []byte(`
	[
		{
			"program": "CS, State U",
			"url": "https://x.test/result/1",
			"llm-generated-program": "Computer Science",
			"llm-generated-university": "State University"
		},
		{
			"program": "EE, State U",
			"llm_generated_program": "Electrical Engineering"
		}
	]`), 0o600))

	records, err := LoadRecordsFile(path)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Computer Science", records[0].LLMProgram)
	assert.Equal(t, "State University", records[0].LLMUniversity)
	assert.Equal(t, "Electrical Engineering", records[1].LLMProgram)
}

func TestLoadRecordsFileMissing(t *testing.T) {
	_, err := LoadRecordsFile(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
}

func TestLoadRecordsFileEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(path, []byte("  \n"), 0o600))

	records, err := LoadRecordsFile(path)
	require.NoError(t, err)
	assert.Empty(t, records)
}
