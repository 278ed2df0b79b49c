package services

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"strings"
)

type LongRow struct {
	ApplicationID string
	Email         string
	QuestionID    string
	Value         string
	UpdatedAt     string // RFC3339
}

// ExportLongCSV renders one row per answer.
func ExportLongCSV(rows []LongRow) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	_ = w.Write([]string{"application_id", "email", "question_id", "value", "updated_at"})
	for _, r := range rows {
		if err := w.Write([]string{r.ApplicationID, r.Email, r.QuestionID, r.Value, r.UpdatedAt}); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// WideRow is one application with its answers keyed by column header.
type WideRow struct {
	ApplicationID string
	Email         string
	Phase         string
	Submitted     bool
	SubmittedAt   string
	Answers       map[string]string
}

// ExportWideCSV renders one row per application and one column per header,
// in the order given.
func ExportWideCSV(headers []string, rows []WideRow) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	header := append([]string{"application_id", "email", "phase", "submitted", "submitted_at"}, headers...)
	_ = w.Write(header)
	for _, r := range rows {
		rec := make([]string, 0, len(header))
		rec = append(rec, r.ApplicationID, r.Email, r.Phase, strconv.FormatBool(r.Submitted), r.SubmittedAt)
		for _, h := range headers {
			rec = append(rec, r.Answers[h])
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// ExportQuestionsCSV renders the questionnaire definition in display order.
func ExportQuestionsCSV(questions []*Question) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	_ = w.Write([]string{"question_id", "position", "type", "required", "display_name", "options", "min_length", "max_length"})
	for _, q := range questions {
		rec := []string{
			q.ID,
			strconv.Itoa(q.Order),
			string(q.Type),
			strconv.FormatBool(q.Required),
			q.DisplayName,
			strings.Join(q.Options, " | "),
			optInt(q.MinLength),
			optInt(q.MaxLength),
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func optInt(p *int) string {
	if p == nil {
		return ""
	}
	return strconv.Itoa(*p)
}

// displayValue renders a stored answer for a spreadsheet cell.
func displayValue(q *Question, v string) string {
	if q.Type != TypeCheckbox || v == "" {
		return v
	}
	sel, err := DecodeSelection(v)
	if err != nil {
		return v
	}
	return strings.Join(sel, "; ")
}
