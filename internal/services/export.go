package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/soaringjerry/evibench/internal/models"
)

// ExportStore lists every stored response document.
type ExportStore interface {
	ListResponses(ctx context.Context) ([]models.AnnotationResponse, error)
}

type ExportResult struct {
	Filename    string
	ContentType string
	Data        []byte
}

type ExportService struct {
	store   ExportStore
	timeout time.Duration
}

func NewExportService(store ExportStore, timeout time.Duration) *ExportService {
	return &ExportService{store: store, timeout: timeout}
}

// ExportCSV renders stored responses. "long" is one row per answer
// evaluation, "wide" one row per response document.
func (s *ExportService) ExportCSV(ctx context.Context, format string) (*ExportResult, error) {
	if format == "" {
		format = "long"
	}
	if format != "long" && format != "wide" {
		return nil, NewInvalidError(MsgExportFormatInvalid)
	}
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	docs, err := s.store.ListResponses(ctx)
	if err != nil {
		return nil, NewUnavailableError(fmt.Errorf("list responses: %w", err))
	}
	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].Email != docs[j].Email {
			return docs[i].Email < docs[j].Email
		}
		if docs[i].QID != docs[j].QID {
			return docs[i].QID < docs[j].QID
		}
		return docs[i].Timestamp.Before(docs[j].Timestamp)
	})

	var data []byte
	if format == "long" {
		data, err = ExportLongCSV(docs)
	} else {
		data, err = ExportWideCSV(docs)
	}
	if err != nil {
		return nil, err
	}
	return &ExportResult{Filename: format + ".csv", ContentType: "text/csv", Data: data}, nil
}

// safeCell keeps spreadsheet applications from evaluating stored text as a
// formula.
func safeCell(v string) string {
	if v == "" {
		return v
	}
	switch v[0] {
	case '=', '+', '-', '@', '\t', '\r':
		return "'" + v
	}
	return v
}

// ExportLongCSV renders one row per answer evaluation.
func ExportLongCSV(docs []models.AnnotationResponse) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	_ = w.Write([]string{
		"email", "qid", "answer", "accuracy", "accuracy_explanation", "comprehension",
		"novelty", "analysis_category", "analysis_details", "others_explanation",
		"feedback", "time_spent_sec", "timestamp",
	})
	for _, d := range docs {
		for i := 1; i <= answerCount; i++ {
			ev, ok := d.Responses.Answers[AnswerKey(i)]
			if !ok {
				continue
			}
			rec := []string{
				safeCell(d.Email),
				strconv.Itoa(d.QID),
				AnswerKey(i),
				safeCell(ev.Accuracy.Rating),
				safeCell(ev.Accuracy.Explanation),
				strconv.Itoa(ev.Comprehension),
				safeCell(ev.Novelty),
				safeCell(ev.Analysis.Category),
				safeCell(strings.Join(ev.Analysis.Details, "; ")),
				safeCell(ev.Analysis.OthersExplanation),
				safeCell(ev.Feedback),
				strconv.FormatFloat(ev.TimeSpentSeconds, 'f', 2, 64),
				d.Timestamp.UTC().Format(time.RFC3339),
			}
			if err := w.Write(rec); err != nil {
				return nil, err
			}
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// ExportWideCSV renders one row per response document.
func ExportWideCSV(docs []models.AnnotationResponse) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	header := []string{"email", "qid", "variant", "preferred_reference", "best_answers"}
	for i := 1; i <= answerCount; i++ {
		header = append(header, fmt.Sprintf("reference%d_rating", i), fmt.Sprintf("reference%d_comment", i))
	}
	header = append(header, "timestamp")
	_ = w.Write(header)
	for _, d := range docs {
		row := []string{safeCell(d.Email), strconv.Itoa(d.QID), safeCell(d.Variant), safeCell(d.PreferredReference), safeCell(strings.Join(d.BestAnswers, "; "))}
		for i := 1; i <= answerCount; i++ {
			r := d.Responses.References[ReferenceLabel(i)]
			row = append(row, safeCell(r.Rating), safeCell(r.Comment))
		}
		row = append(row, d.Timestamp.UTC().Format(time.RFC3339))
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
