// Package export renders finished interviews as an Excel workbook.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/aura-hire/backend/internal/ai"
	"github.com/aura-hire/backend/internal/models"
	"github.com/aura-hire/backend/internal/session"
)

const (
	SheetInterviews  = "Interviews"
	SheetTranscripts = "Transcripts"

	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	timeLayout  = "2006-01-02 15:04:05"
)

var (
	interviewHeaders  = []string{"Interview ID", "Candidate", "Email", "Job Title", "Language", "Status", "Completed At", "Answered", "Overall Score", "Recommendation", "Decision", "Feedback"}
	transcriptHeaders = []string{"Interview ID", "Candidate", "#", "Question", "Answer"}
)

// WriteInterviews writes one summary row per interview and one transcript
// row per question to w.
func WriteInterviews(w io.Writer, interviews []models.Interview) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetInterviews); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(SheetTranscripts); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	wrapStyle, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
	})
	if err != nil {
		return fmt.Errorf("create wrap style: %w", err)
	}

	for sheet, headers := range map[string][]string{SheetInterviews: interviewHeaders, SheetTranscripts: transcriptHeaders} {
		if err := writeRow(f, sheet, 1, toAny(headers)); err != nil {
			return err
		}
		last, _ := excelize.CoordinatesToCellName(len(headers), 1)
		if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
			return fmt.Errorf("style header: %w", err)
		}
		if err := f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
			return fmt.Errorf("freeze header: %w", err)
		}
	}
	_ = f.SetColWidth(SheetInterviews, "A", "A", 38)
	_ = f.SetColWidth(SheetInterviews, "B", "D", 25)
	_ = f.SetColWidth(SheetInterviews, "J", "L", 40)
	_ = f.SetColWidth(SheetTranscripts, "A", "B", 25)
	_ = f.SetColWidth(SheetTranscripts, "D", "E", 60)

	summaryRow, transcriptRow := 2, 2
	for _, iv := range interviews {
		notes, _ := models.ParseNotes(iv.Notes)
		questions := session.NormalizeQuestions(notes.Questions, iv.Language)
		candidate := notes.CandidateName

		if err := writeRow(f, SheetInterviews, summaryRow, summaryValues(iv, notes)); err != nil {
			return err
		}
		summaryRow++

		for q, text := range questions {
			answer := notes.Transcripts[q]
			if err := writeRow(f, SheetTranscripts, transcriptRow, []any{iv.ID.String(), candidate, q + 1, text, answer}); err != nil {
				return err
			}
			if err := f.SetCellStyle(SheetTranscripts, cell(4, transcriptRow), cell(5, transcriptRow), wrapStyle); err != nil {
				return fmt.Errorf("style transcript: %w", err)
			}
			transcriptRow++
		}
	}
	if summaryRow > 2 {
		ref := fmt.Sprintf("A1:%s", cell(len(interviewHeaders), summaryRow-1))
		if err := f.AutoFilter(SheetInterviews, ref, nil); err != nil {
			return fmt.Errorf("auto filter: %w", err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func summaryValues(iv models.Interview, notes models.InterviewNotes) []any {
	completed := ""
	if iv.CompletedAt != nil {
		completed = iv.CompletedAt.UTC().Format(timeLayout)
	} else if notes.CompletedAt != nil {
		completed = notes.CompletedAt.UTC().Format(timeLayout)
	}

	var score any = ""
	recommendation := ""
	if len(notes.Analysis) > 0 {
		if a, err := ai.ParseAnalysis(notes.Analysis); err == nil {
			score = a.OverallAssessment.OverallScore
			recommendation = a.OverallAssessment.Recommendation
		}
	}

	decision, feedback := "", ""
	if notes.Decision != nil {
		decision = string(notes.Decision.Status)
		feedback = notes.Decision.Feedback
	}

	return []any{
		iv.ID.String(),
		notes.CandidateName,
		notes.CandidateEmail,
		iv.JobTitle,
		iv.Language,
		string(iv.Status),
		completed,
		answered(notes.Transcripts),
		score,
		recommendation,
		decision,
		feedback,
	}
}

func answered(transcripts map[int]string) int {
	n := 0
	for _, t := range transcripts {
		if t != "" {
			n++
		}
	}
	return n
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	if err := f.SetSheetRow(sheet, cell(1, row), &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}

func toAny(s []string) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}

// Filename is the download name for an export generated at t.
func Filename(t time.Time) string {
	return "interviews-" + t.UTC().Format("20060102-150405") + ".xlsx"
}
