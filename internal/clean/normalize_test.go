package clean

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hkzhang08/gradcafe-ingest/internal/domain"
)

func TestNormalizeFullRecord(t *testing.T) {
	raw := domain.RawRecord{
		ProgramName:     "Computer Science",
		University:      "State University",
		MastersOrPhD:    "PhD",
		Comments:        "Great program!",
		DateAdded:       "March 1, 2026",
		URL:             "https://www.thegradcafe.com/result/1001",
		ApplicantStatus: "Accepted",
		DecisionDate:    "1 Mar",
		SemesterStart:   "Fall 2026",
		Citizenship:     "International",
		GPA:             "GPA 3.85",
		GRE:             "GRE 325",
		GREVerbal:       "GRE V 160",
		GREWriting:      "GRE AW 4.5",
	}

	rec, ok := Normalize(raw)
	require.True(t, ok)

	assert.Equal(t, "Computer Science, State University", rec.Program)
	require.NotNil(t, rec.DegreeLevel)
	assert.Equal(t, domain.DegreePhD, *rec.DegreeLevel)
	require.NotNil(t, rec.DateAdded)
	assert.Equal(t, time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC), *rec.DateAdded)
	require.NotNil(t, rec.GPA)
	assert.Equal(t, 3.85, *rec.GPA)
	require.NotNil(t, rec.GRE)
	assert.Equal(t, 325.0, *rec.GRE)
	require.NotNil(t, rec.GREVerbal)
	assert.Equal(t, 160.0, *rec.GREVerbal)
	require.NotNil(t, rec.GREWriting)
	assert.Equal(t, 4.5, *rec.GREWriting)
	require.NotNil(t, rec.Citizenship)
	assert.Equal(t, "International", *rec.Citizenship)
	require.NotNil(t, rec.Term)
	assert.Equal(t, "Fall 2026", *rec.Term)
}

func TestNormalizeMalformedFieldsNullOut(t *testing.T) {
	raw := domain.RawRecord{
		ProgramName:  "History",
		University:   "State University",
		MastersOrPhD: "",
		DateAdded:    "not a date",
		GPA:          "ABC",
	}

	rec, ok := Normalize(raw)
	require.True(t, ok)
	assert.Nil(t, rec.GPA)
	assert.Nil(t, rec.DateAdded)
	assert.Nil(t, rec.DegreeLevel)
}

func TestNormalizeExcludesMissingProgramOrUniversity(t *testing.T) {
	cases := []struct {
		name string
		raw  domain.RawRecord
	}{
		{"sentinel program", domain.RawRecord{ProgramName: "n/a", University: "State University"}},
		{"empty university", domain.RawRecord{ProgramName: "Physics", University: "  "}},
		{"null sentinel", domain.RawRecord{ProgramName: "Physics", University: "NULL"}},
		{"both missing", domain.RawRecord{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, ok := Normalize(tc.raw)
			assert.False(t, ok)
		})
	}
}

func TestNormalizeAcceptsPreJoinedProgram(t *testing.T) {
	rec, ok := Normalize(domain.RawRecord{Program: "Computer Science, State University"})
	require.True(t, ok)
	assert.Equal(t, "Computer Science, State University", rec.Program)
}

func TestNormalizeCarriesExplicitLastSeen(t *testing.T) {
	rec, ok := Normalize(domain.RawRecord{
		Program:  "CS, State U",
		LastSeen: "1234",
	})
	require.True(t, ok)
	require.NotNil(t, rec.LastSeen)
	assert.Equal(t, "1234", *rec.LastSeen)

	rec, ok = Normalize(domain.RawRecord{
		Program:         "CS, State U",
		LastProcessedAt: "2026-01-15",
	})
	require.True(t, ok)
	require.NotNil(t, rec.LastSeen)
	assert.Equal(t, "2026-01-15", *rec.LastSeen)
}

func TestDegreePrecedence(t *testing.T) {
	cases := []struct {
		in   string
		want *float64
	}{
		{"PhD", ptr(domain.DegreePhD)},
		{"Doctor of Philosophy", ptr(domain.DegreePhD)},
		{"Masters", ptr(domain.DegreeMasters)},
		{"MS", ptr(domain.DegreeMasters)},
		{"mba", ptr(domain.DegreeMasters)},
		{"PhD/Masters dual", ptr(domain.DegreePhD)},
		{"Certificate", nil},
		{"", nil},
	}
	for _, tc := range cases {
		got := Degree(tc.in)
		if tc.want == nil {
			assert.Nil(t, got, "degree %q", tc.in)
		} else {
			require.NotNil(t, got, "degree %q", tc.in)
			assert.Equal(t, *tc.want, *got, "degree %q", tc.in)
		}
	}
}

func TestNumExtractsFirstNumber(t *testing.T) {
	cases := []struct {
		in   string
		want *float64
	}{
		{"GPA 3.85", ptr(3.85)},
		{"GRE 325", ptr(325.0)},
		{"-2.5 adjusted", ptr(-2.5)},
		{"score: .5", ptr(0.5)},
		{"no numbers here", nil},
		{"", nil},
	}
	for _, tc := range cases {
		got := Num(tc.in)
		if tc.want == nil {
			assert.Nil(t, got, "num %q", tc.in)
		} else {
			require.NotNil(t, got, "num %q", tc.in)
			assert.Equal(t, *tc.want, *got, "num %q", tc.in)
		}
	}
}

func TestDateFormats(t *testing.T) {
	require.NotNil(t, Date("March 1, 2026"))
	require.NotNil(t, Date("Mar 1, 2026"))
	require.NotNil(t, Date("2026-03-01"))
	assert.Nil(t, Date("03/01/2026"))
	assert.Nil(t, Date(""))
}

func TestIsMissingSentinels(t *testing.T) {
	for _, v := range []string{"", "  ", "n/a", "NA", "None", "null", "NaN"} {
		assert.True(t, IsMissing(v), "sentinel %q", v)
	}
	assert.False(t, IsMissing("State University"))
}

func TestTextStripsNULBytes(t *testing.T) {
	got := Text("bad\x00value")
	require.NotNil(t, got)
	assert.Equal(t, "badvalue", *got)
	assert.Nil(t, Text(""))
}

func ptr(f float64) *float64 { return &f }
