package domain

import (
	"encoding/json"
	"time"
)

// Degree levels stored in the applicants "degree" column. Records that cannot
// be classified carry a nil degree.
const (
	DegreeMasters = 1.0
	DegreePhD     = 2.0
)

// RawRecord is one scraped listing entry before normalization. Field values
// are the raw page fragments ("GPA 3.85", "Fall 2026", ...); the clean package
// turns them into typed values. The JSON tags match the scraper's file output
// so the same shape round-trips through task payloads and data files.
type RawRecord struct {
	ProgramName     string `json:"program_name,omitempty"`
	University      string `json:"university,omitempty"`
	Program         string `json:"program,omitempty"`
	MastersOrPhD    string `json:"masters_or_phd,omitempty"`
	Comments        string `json:"comments,omitempty"`
	DateAdded       string `json:"date_added,omitempty"`
	URL             string `json:"url,omitempty"`
	ApplicantStatus string `json:"applicant_status,omitempty"`
	DecisionDate    string `json:"decision_date,omitempty"`
	SemesterStart   string `json:"semester_year_start,omitempty"`
	Citizenship     string `json:"citizenship,omitempty"`
	GPA             string `json:"gpa,omitempty"`
	GRE             string `json:"gre,omitempty"`
	GREVerbal       string `json:"gre_v,omitempty"`
	GREWriting      string `json:"gre_aw,omitempty"`
	LLMProgram      string `json:"llm_generated_program,omitempty"`
	LLMUniversity   string `json:"llm_generated_university,omitempty"`
	LastSeen        string `json:"last_seen,omitempty"`
	LastProcessedAt string `json:"last_processed_at,omitempty"`
}

// UnmarshalJSON accepts both spellings of the enrichment keys. The LLM
// standardizer writes hyphenated keys into its output files while task
// payloads use underscores; the hyphen variant wins when both are present.
func (r *RawRecord) UnmarshalJSON(data []byte) error {
	type rawRecord RawRecord
	aux := struct {
		*rawRecord
		LLMProgramHyphen    string `json:"llm-generated-program"`
		LLMUniversityHyphen string `json:"llm-generated-university"`
	}{rawRecord: (*rawRecord)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.LLMProgramHyphen != "" {
		r.LLMProgram = aux.LLMProgramHyphen
	}
	if aux.LLMUniversityHyphen != "" {
		r.LLMUniversity = aux.LLMUniversityHyphen
	}
	return nil
}

// ApplicantRecord is the canonical normalized unit flowing through the
// planner and loader. Nullable columns are pointers; nil means SQL NULL.
type ApplicantRecord struct {
	Program       string
	DegreeLevel   *float64
	Comments      *string
	DateAdded     *time.Time
	URL           *string
	Status        *string
	DecisionDate  *string
	Term          *string
	Citizenship   *string
	GPA           *float64
	GRE           *float64
	GREVerbal     *float64
	GREWriting    *float64
	LLMProgram    *string
	LLMUniversity *string

	// LastSeen is an explicit ordering key carried by queue payload records.
	// Most scraped records derive their key from the result URL instead.
	LastSeen *string
}

// IngestionBatch is the unit of work handed to the insert planner: the
// normalized records of one run plus the watermark in effect when it started.
type IngestionBatch struct {
	Records []ApplicantRecord
	Since   *string
}

// InsertPlan is the planner's output: the records to insert and the watermark
// value to persist alongside them. NextWatermark is nil when no record in the
// batch carried a usable ordering key.
type InsertPlan struct {
	Inserts       []ApplicantRecord
	NextWatermark *string
}

// Standardized is the LLM standardizer's answer for one program string.
type Standardized struct {
	Program    string
	University string
}

// RunState tracks the single-run lifecycle of the ingestion pipeline.
type RunState string

const (
	RunIdle    RunState = "idle"
	RunRunning RunState = "running"
	RunDone    RunState = "done"
	RunError   RunState = "error"
)

// RunStatus is the externally visible snapshot of the pipeline state.
type RunStatus struct {
	State    RunState `json:"state"`
	Inserted int      `json:"inserted"`
	Message  string   `json:"message,omitempty"`
}
