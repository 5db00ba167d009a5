package scrape

import (
	"io"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/hkzhang08/gradcafe-ingest/internal/domain"
)

// Detail-row token shapes. Anything that matches none of these is ignored.
var (
	semesterRe   = regexp.MustCompile(`^(Fall|Spring|Summer|Winter)\s+\d{4}$`)
	gpaRe        = regexp.MustCompile(`^GPA\s+[\d.]+$`)
	greAWRe      = regexp.MustCompile(`^GRE\s+AW\s+[\d.]+$`)
	greVerbalRe  = regexp.MustCompile(`^GRE\s+V\s+\d+$`)
	greRe        = regexp.MustCompile(`^GRE\s+\d+$`)
	decisionRe   = regexp.MustCompile(`(?is)^(.+?)(?:\s+on\s+(.+))?$`)
	resultHrefRe = regexp.MustCompile(`^/result/`)
)

// Parser extracts applicant records from one listing page. A row with at
// least four cells starts a new record; the shorter rows that follow it carry
// supplementary attributes for that same record.
type Parser struct {
	baseURL string
}

func NewParser(baseURL string) *Parser {
	return &Parser{baseURL: strings.TrimRight(baseURL, "/")}
}

// Parse walks the listing table top to bottom and returns the raw records it
// finds. Malformed header rows still yield a record with empty fields;
// parsing degrades field by field and never aborts partway through a page.
func (p *Parser) Parse(r io.Reader) ([]domain.RawRecord, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}

	var records []domain.RawRecord

	rows := doc.Find("table").First().Find("tbody").First().Find("tr")
	idx := 0
	for idx < rows.Length() {
		record, ok := p.parseHeaderRow(rows.Eq(idx))
		if !ok {
			idx++
			continue
		}

		idx = fillDetailRows(rows, idx+1, &record)
		records = append(records, record)
	}

	return records, nil
}

// parseHeaderRow reads one main row. Returns false for rows with fewer than
// four cells, which belong to the preceding record.
func (p *Parser) parseHeaderRow(row *goquery.Selection) (domain.RawRecord, bool) {
	tds := row.Find("td")
	if tds.Length() < 4 {
		return domain.RawRecord{}, false
	}

	var record domain.RawRecord
	record.University = strings.TrimSpace(tds.Eq(0).Text())

	spans := tds.Eq(1).Find("span")
	if spans.Length() > 0 {
		record.ProgramName = strings.TrimSpace(spans.Eq(0).Text())
	}
	if spans.Length() >= 2 {
		record.MastersOrPhD = strings.TrimSpace(spans.Eq(1).Text())
	}

	record.DateAdded = strings.TrimSpace(tds.Eq(2).Text())

	status, decisionDate := splitDecision(collapseText(tds.Eq(3).Text()))
	record.ApplicantStatus = status
	record.DecisionDate = decisionDate

	row.Find("a[href]").EachWithBreak(func(_ int, link *goquery.Selection) bool {
		href, _ := link.Attr("href")
		if resultHrefRe.MatchString(href) {
			record.URL = p.baseURL + href
			return false
		}
		return true
	})

	return record, true
}

// fillDetailRows consumes detail rows following a header row and returns the
// index of the next header row (or the end of the table).
func fillDetailRows(rows *goquery.Selection, start int, record *domain.RawRecord) int {
	idx := start
	for idx < rows.Length() {
		row := rows.Eq(idx)
		if row.Find("td").Length() >= 4 {
			break
		}

		row.Find("div").Each(func(_ int, div *goquery.Selection) {
			if text := collapseText(div.Text()); text != "" {
				applyDetailText(record, text)
			}
		})

		// Only the first non-empty paragraph becomes the comment.
		if record.Comments == "" {
			if text := collapseText(row.Find("p").First().Text()); text != "" {
				record.Comments = text
			}
		}

		idx++
	}
	return idx
}

// applyDetailText classifies one detail fragment and stores it on the record.
func applyDetailText(record *domain.RawRecord, text string) {
	switch {
	case semesterRe.MatchString(text):
		record.SemesterStart = text
	case text == "American" || text == "International":
		record.Citizenship = text
	case gpaRe.MatchString(text):
		record.GPA = text
	case greAWRe.MatchString(text):
		record.GREWriting = text
	case greVerbalRe.MatchString(text):
		record.GREVerbal = text
	case greRe.MatchString(text):
		record.GRE = text
	}
}

// splitDecision splits "Accepted on 1 Mar" into status and decision date.
func splitDecision(text string) (string, string) {
	if text == "" {
		return "", ""
	}
	match := decisionRe.FindStringSubmatch(text)
	if match == nil {
		return "", ""
	}
	return strings.TrimSpace(match[1]), strings.TrimSpace(match[2])
}

// collapseText squashes all whitespace runs down to single spaces.
func collapseText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
