package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/charmap"

	"github.com/soaringjerry/evibench/internal/logger"
	"github.com/soaringjerry/evibench/internal/models"
)

// LoadMode picks between the two loader operations.
type LoadMode string

const (
	// LoadReseed clears the dataset before inserting.
	LoadReseed LoadMode = "reseed"
	// LoadAppend inserts next to the existing records.
	LoadAppend LoadMode = "append"
)

func ParseLoadMode(s string) (LoadMode, error) {
	switch LoadMode(strings.ToLower(strings.TrimSpace(s))) {
	case LoadReseed:
		return LoadReseed, nil
	case LoadAppend:
		return LoadAppend, nil
	}
	return "", NewInvalidError(MsgDatasetModeInvalid)
}

// DatasetWriter is the seeding side of the dataset store.
type DatasetWriter interface {
	DatasetReader
	ReplaceQuestions(ctx context.Context, recs []models.QuestionRecord) error
	AppendQuestions(ctx context.Context, recs []models.QuestionRecord) error
}

// LoaderService seeds the evibench collection from a delimited data file.
type LoaderService struct {
	store   DatasetWriter
	timeout time.Duration
	log     *logger.Logger
}

func NewLoaderService(store DatasetWriter, timeout time.Duration, log *logger.Logger) *LoaderService {
	if log == nil {
		log = logger.Nop()
	}
	return &LoaderService{store: store, timeout: timeout, log: log}
}

// Load writes recs with the given mode. Append refuses QIDs that already
// exist so the collection never ends up partially loaded.
func (s *LoaderService) Load(ctx context.Context, mode LoadMode, recs []models.QuestionRecord) (int, error) {
	if len(recs) == 0 {
		return 0, NewInvalidError(MsgDatasetInvalid)
	}
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	var err error
	switch mode {
	case LoadReseed:
		err = s.store.ReplaceQuestions(ctx, recs)
	case LoadAppend:
		existing, lerr := s.store.ListQuestions(ctx)
		if lerr != nil {
			return 0, NewUnavailableError(fmt.Errorf("list questions: %w", lerr))
		}
		taken := make(map[int]bool, len(existing))
		for _, r := range existing {
			taken[r.QID] = true
		}
		for _, r := range recs {
			if taken[r.QID] {
				return 0, &ServiceError{Code: ErrorConflict, Message: MsgDatasetInvalid, Err: fmt.Errorf("qid %d already loaded", r.QID)}
			}
		}
		err = s.store.AppendQuestions(ctx, recs)
	default:
		return 0, NewInvalidError(MsgDatasetModeInvalid)
	}
	if errors.Is(err, ErrDuplicate) {
		return 0, &ServiceError{Code: ErrorConflict, Message: MsgDatasetInvalid, Err: err}
	}
	if err != nil {
		s.log.Error("dataset load failed", "mode", string(mode), "error", err)
		return 0, NewUnavailableError(fmt.Errorf("%s questions: %w", mode, err))
	}
	s.log.Info("dataset loaded", "mode", string(mode), "records", len(recs))
	return len(recs), nil
}

var questionColumns = []string{
	"QID", "Email", "Qtopic", "Question",
	"Answer1", "Answer2", "Answer3", "Answer4",
	"Reference1", "Reference2", "Reference3", "Reference4",
}

// ParseQuestionsCSV reads a header-led delimited file. latin1 decodes the
// bytes as ISO-8859-1 first. Any bad row rejects the whole file.
func ParseQuestionsCSV(r io.Reader, latin1 bool) ([]models.QuestionRecord, error) {
	if latin1 {
		r = charmap.ISO8859_1.NewDecoder().Reader(r)
	}
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, invalidDataset(fmt.Errorf("read header: %w", err))
	}
	col := map[string]int{}
	for i, h := range header {
		col[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, name := range questionColumns {
		if _, ok := col[name]; !ok {
			return nil, invalidDataset(fmt.Errorf("missing column %q", name))
		}
	}

	var out []models.QuestionRecord
	seen := map[int]int{}
	line := 1
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, invalidDataset(fmt.Errorf("row %d: %w", line, err))
		}
		get := func(name string) string {
			i := col[name]
			if i >= len(row) {
				return ""
			}
			return row[i]
		}
		qid, err := parseQID(get("QID"))
		if err != nil {
			return nil, invalidDataset(fmt.Errorf("row %d: %w", line, err))
		}
		if prev, dup := seen[qid]; dup {
			return nil, invalidDataset(fmt.Errorf("row %d: qid %d already on row %d", line, qid, prev))
		}
		seen[qid] = line
		rec := models.QuestionRecord{
			QID:      qid,
			Email:    strings.TrimSpace(get("Email")),
			Topic:    get("Qtopic"),
			Question: get("Question"),
		}
		if rec.Email == "" {
			return nil, invalidDataset(fmt.Errorf("row %d: email is empty", line))
		}
		for i := 0; i < answerCount; i++ {
			rec.Answers[i] = get(fmt.Sprintf("Answer%d", i+1))
			rec.References[i] = get(fmt.Sprintf("Reference%d", i+1))
			if blank(rec.Answers[i]) || blank(rec.References[i]) {
				return nil, invalidDataset(fmt.Errorf("row %d: answer/reference %d is empty", line, i+1))
			}
		}
		out = append(out, rec)
	}
	if len(out) == 0 {
		return nil, invalidDataset(errors.New("no rows"))
	}
	return out, nil
}

// parseQID accepts "101" as well as the "101.0" that spreadsheet exports
// produce.
func parseQID(s string) (int, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int(f)) {
		return 0, fmt.Errorf("qid %q is not an integer", s)
	}
	return int(f), nil
}

func invalidDataset(err error) error {
	return &ServiceError{Code: ErrorInvalid, Message: MsgDatasetInvalid, Err: err}
}
