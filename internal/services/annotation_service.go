package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/soaringjerry/evibench/internal/logger"
	"github.com/soaringjerry/evibench/internal/models"
)

// ResponseStore reads completed work and appends finished documents.
type ResponseStore interface {
	ListCompletedQIDs(ctx context.Context, email string) ([]int, error)
	InsertResponse(ctx context.Context, doc *models.AnnotationResponse) error
}

// Progress is the completed/total pair shown above the wizard.
type Progress struct {
	Completed int     `json:"completed"`
	Total     int     `json:"total"`
	Fraction  float64 `json:"fraction"`
}

// Workload is the participant's remaining work. Current is nil once every
// assigned question has a response. Discarded is set when the session held
// progress for a question that is no longer current.
type Workload struct {
	Progress    Progress
	Current     *models.QuestionRecord
	Uncompleted []int
	Discarded   bool
}

// ApplyResult reports what an accepted event did.
type ApplyResult struct {
	Submitted bool
	Duplicate bool
	QID       int
}

// AnnotationService drives the wizard for one session at a time against the
// shared stores.
type AnnotationService struct {
	store   ResponseStore
	data    DatasetSource
	variant Variant
	timeout time.Duration
	now     func() time.Time
	idGen   func() string
	log     *logger.Logger
}

func NewAnnotationService(store ResponseStore, data DatasetSource, variant Variant, timeout time.Duration, log *logger.Logger) *AnnotationService {
	if log == nil {
		log = logger.Nop()
	}
	return &AnnotationService{
		store:   store,
		data:    data,
		variant: variant,
		timeout: timeout,
		now:     func() time.Time { return time.Now().UTC() },
		idGen:   func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") },
		log:     log,
	}
}

func (s *AnnotationService) Variant() Variant { return s.variant }

// Workload computes progress and the next question: the assigned records
// minus those with a stored response, first by ascending QID. It also binds
// sess to that question, dropping anything collected for another one.
func (s *AnnotationService) Workload(ctx context.Context, sess *Session) (*Workload, error) {
	if sess == nil || !sess.LoggedIn {
		return nil, NewUnauthorizedError(MsgLoginRequired)
	}
	assigned := s.data.Dataset().Assigned(sess.Email)

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	qids, err := s.store.ListCompletedQIDs(ctx, sess.Email)
	if err != nil {
		s.log.Error("list completed failed", "email", sess.Email, "error", err)
		return nil, NewUnavailableError(fmt.Errorf("list completed: %w", err))
	}
	done := make(map[int]bool, len(qids))
	for _, q := range qids {
		done[q] = true
	}

	wl := &Workload{Uncompleted: []int{}}
	for i := range assigned {
		rec := assigned[i]
		if done[rec.QID] {
			wl.Progress.Completed++
			continue
		}
		wl.Uncompleted = append(wl.Uncompleted, rec.QID)
		if wl.Current == nil {
			wl.Current = &rec
		}
	}
	wl.Progress.Total = len(assigned)
	if wl.Progress.Total > 0 {
		wl.Progress.Fraction = float64(wl.Progress.Completed) / float64(wl.Progress.Total)
	}
	stale := sess.QID
	if wl.bind(sess, s.now()) {
		s.log.Warn("discarded progress on stale question", "email", sess.Email, "qid", stale, "current_qid", wl.currentQID())
	}
	return wl, nil
}

func (wl *Workload) currentQID() int {
	if wl.Current == nil {
		return 0
	}
	return wl.Current.QID
}

// bind points sess at the current question. Progress bound to a different
// question, finished elsewhere or removed by a dataset load, is reset.
func (wl *Workload) bind(sess *Session, now time.Time) bool {
	qid := wl.currentQID()
	if sess.QID == qid {
		return false
	}
	if sess.QID != 0 {
		sess.ResetProgress(now)
		wl.Discarded = true
	}
	sess.QID = qid
	return wl.Discarded
}

// Apply runs ev through the wizard for the session's current question. When
// the event completes the question the response document is inserted first;
// sess is only advanced after the insert succeeded, so a storage failure
// leaves everything in place for a retry. A rejected step still records its
// draft on sess.
func (s *AnnotationService) Apply(ctx context.Context, sess *Session, ev Event) (*ApplyResult, error) {
	wl, err := s.Workload(ctx, sess)
	if err != nil {
		return nil, err
	}
	if wl.Discarded {
		return nil, NewConflictError(MsgQuestionChanged)
	}
	if wl.Current == nil {
		return nil, NewConflictError(MsgNoQuestionsRemaining)
	}

	qid := sess.QID
	tr, err := Dispatch(s.variant, sess, ev, s.now())
	if err != nil {
		if _, ok := AsValidationError(err); ok && tr.State != nil {
			*sess = *tr.State
		}
		return nil, err
	}

	res := &ApplyResult{QID: qid}
	if tr.Finalize != nil {
		doc := &models.AnnotationResponse{
			ID:                 s.idGen(),
			Email:              sess.Email,
			QID:                qid,
			Variant:            string(s.variant),
			Responses:          *tr.Finalize,
			PreferredReference: tr.Finalize.PreferredReference,
			BestAnswers:        tr.Finalize.BestAnswers,
			Timestamp:          s.now(),
		}
		ictx, cancel := withTimeout(ctx, s.timeout)
		err := s.store.InsertResponse(ictx, doc)
		cancel()
		switch {
		case errors.Is(err, ErrDuplicate):
			s.log.Warn("duplicate response ignored", "email", sess.Email, "qid", doc.QID)
			res.Duplicate = true
		case err != nil:
			s.log.Error("insert response failed", "email", sess.Email, "qid", doc.QID, "error", err)
			return nil, NewUnavailableError(fmt.Errorf("insert response: %w", err))
		default:
			s.log.Info("response submitted", "email", sess.Email, "qid", doc.QID, "variant", doc.Variant)
		}
		res.Submitted = true
	}
	*sess = *tr.State
	return res, nil
}
