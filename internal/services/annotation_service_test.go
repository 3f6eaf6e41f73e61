package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/soaringjerry/evibench/internal/models"
)

type responseStubStore struct {
	completed map[string][]int
	docs      []models.AnnotationResponse
	insertErr error
	listErr   error
}

func newResponseStubStore() *responseStubStore {
	return &responseStubStore{completed: map[string][]int{}}
}

func (s *responseStubStore) ListCompletedQIDs(_ context.Context, email string) ([]int, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return append([]int(nil), s.completed[email]...), nil
}

func (s *responseStubStore) InsertResponse(_ context.Context, doc *models.AnnotationResponse) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	for _, q := range s.completed[doc.Email] {
		if q == doc.QID {
			return ErrDuplicate
		}
	}
	s.docs = append(s.docs, *doc)
	s.completed[doc.Email] = append(s.completed[doc.Email], doc.QID)
	return nil
}

func newTestAnnotationService(store ResponseStore, variant Variant) *AnnotationService {
	svc := NewAnnotationService(store, testDataset(), variant, time.Second, nil)
	svc.now = func() time.Time { return t0 }
	svc.idGen = func() string { return "resp1" }
	return svc
}

func finishQuestion(t *testing.T, svc *AnnotationService, sess *Session) *ApplyResult {
	t.Helper()
	ctx := context.Background()
	for step := StepAnswer1; step <= StepAnswer4; step++ {
		if _, err := svc.Apply(ctx, sess, SubmitAnswer{Step: step, Input: AnswerInput{Accuracy: "High"}}); err != nil {
			t.Fatalf("answer %d: %v", step, err)
		}
	}
	if _, err := svc.Apply(ctx, sess, SubmitReferences{Input: ReferenceInput{Ratings: allGood(), Preferred: "Reference 2"}}); err != nil {
		t.Fatalf("references: %v", err)
	}
	res, err := svc.Apply(ctx, sess, SubmitBestAnswers{Selections: []string{"Answer 1", "Answer 3"}})
	if err != nil {
		t.Fatalf("best answers: %v", err)
	}
	return res
}

func TestWorkloadProgress(t *testing.T) {
	store := newResponseStubStore()
	store.completed["a@x.org"] = []int{102, 999}
	svc := newTestAnnotationService(store, VariantExtended)
	wl, err := svc.Workload(context.Background(), loggedInSession())
	if err != nil {
		t.Fatalf("workload: %v", err)
	}
	if wl.Progress.Completed != 1 || wl.Progress.Total != 3 {
		t.Fatalf("unexpected progress %+v", wl.Progress)
	}
	if wl.Progress.Completed+len(wl.Uncompleted) != wl.Progress.Total {
		t.Fatalf("completed + uncompleted must equal total: %+v", wl)
	}
	if wl.Current == nil || wl.Current.QID != 101 {
		t.Fatalf("expected QID 101 first, got %+v", wl.Current)
	}
	if len(wl.Uncompleted) != 2 || wl.Uncompleted[1] != 103 {
		t.Fatalf("unexpected uncompleted %v", wl.Uncompleted)
	}
}

func TestWorkloadNothingAssigned(t *testing.T) {
	svc := newTestAnnotationService(newResponseStubStore(), VariantExtended)
	sess := loggedInSession()
	sess.Email = "nobody@x.org"
	wl, err := svc.Workload(context.Background(), sess)
	if err != nil {
		t.Fatalf("workload: %v", err)
	}
	if wl.Progress.Total != 0 || wl.Progress.Fraction != 0 || wl.Current != nil {
		t.Fatalf("unexpected workload %+v", wl)
	}
	if _, err := svc.Apply(context.Background(), sess, Back{}); codeOf(err) != ErrorConflict {
		t.Fatalf("apply without questions must conflict, got %v", err)
	}
}

func TestWorkloadRequiresLogin(t *testing.T) {
	svc := newTestAnnotationService(newResponseStubStore(), VariantExtended)
	if _, err := svc.Workload(context.Background(), NewSession("s", t0)); codeOf(err) != ErrorUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestApplyFullQuestionInsertsOneDocument(t *testing.T) {
	store := newResponseStubStore()
	svc := newTestAnnotationService(store, VariantExtended)
	sess := loggedInSession()

	res := finishQuestion(t, svc, sess)
	if !res.Submitted || res.Duplicate || res.QID != 101 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(store.docs) != 1 {
		t.Fatalf("expected one document, got %d", len(store.docs))
	}
	doc := store.docs[0]
	if doc.ID != "resp1" || doc.Email != "a@x.org" || doc.QID != 101 || doc.Variant != "extended" {
		t.Fatalf("unexpected document %+v", doc)
	}
	if doc.PreferredReference != "Reference 2" || len(doc.BestAnswers) != 2 || len(doc.Responses.Answers) != 4 {
		t.Fatalf("bundle not persisted: %+v", doc)
	}
	if sess.Step != StepAnswer1 || !sess.Responses.Empty() {
		t.Fatalf("session not reset: %+v", sess)
	}

	wl, err := svc.Workload(context.Background(), sess)
	if err != nil {
		t.Fatalf("workload: %v", err)
	}
	if wl.Current == nil || wl.Current.QID != 102 || wl.Progress.Completed != 1 {
		t.Fatalf("next question should be 102: %+v", wl)
	}
}

func TestApplyBasicVariant(t *testing.T) {
	store := newResponseStubStore()
	svc := newTestAnnotationService(store, VariantBasic)
	sess := loggedInSession()
	for step := StepAnswer1; step <= StepAnswer4; step++ {
		if _, err := svc.Apply(context.Background(), sess, SubmitAnswer{Step: step, Input: AnswerInput{}}); err != nil {
			t.Fatalf("answer %d: %v", step, err)
		}
	}
	res, err := svc.Apply(context.Background(), sess, SubmitReferences{Input: ReferenceInput{Preferred: "Reference 1"}})
	if err != nil || !res.Submitted {
		t.Fatalf("basic variant finalizes on references: %+v %v", res, err)
	}
	if store.docs[0].Variant != "basic" || store.docs[0].BestAnswers != nil {
		t.Fatalf("unexpected basic document %+v", store.docs[0])
	}
}

func TestApplyStoreFailureKeepsState(t *testing.T) {
	store := newResponseStubStore()
	svc := newTestAnnotationService(store, VariantExtended)
	sess := loggedInSession()
	ctx := context.Background()
	for step := StepAnswer1; step <= StepAnswer4; step++ {
		if _, err := svc.Apply(ctx, sess, SubmitAnswer{Step: step, Input: AnswerInput{Accuracy: "High"}}); err != nil {
			t.Fatalf("answer %d: %v", step, err)
		}
	}
	if _, err := svc.Apply(ctx, sess, SubmitReferences{Input: ReferenceInput{Ratings: allGood(), Preferred: "Reference 2"}}); err != nil {
		t.Fatalf("references: %v", err)
	}

	store.insertErr = errors.New("write timeout")
	_, err := svc.Apply(ctx, sess, SubmitBestAnswers{Selections: []string{"Answer 2"}})
	if codeOf(err) != ErrorUnavailable {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if sess.Step != StepBestAnswerSelect || len(sess.Responses.Answers) != 4 || sess.Responses.PreferredReference != "Reference 2" {
		t.Fatalf("state must be kept for retry: %+v", sess)
	}

	store.insertErr = nil
	res, err := svc.Apply(ctx, sess, SubmitBestAnswers{Selections: []string{"Answer 2"}})
	if err != nil || !res.Submitted || len(store.docs) != 1 {
		t.Fatalf("retry should succeed: %+v %v", res, err)
	}
}

func TestApplyDuplicateIsNoop(t *testing.T) {
	store := newResponseStubStore()
	store.insertErr = ErrDuplicate
	svc := newTestAnnotationService(store, VariantExtended)
	sess := loggedInSession()

	res := finishQuestion(t, svc, sess)
	if !res.Submitted || !res.Duplicate {
		t.Fatalf("duplicate insert should be reported, got %+v", res)
	}
	if len(store.docs) != 0 {
		t.Fatalf("no document may be added")
	}
	if sess.Step != StepAnswer1 || !sess.Responses.Empty() {
		t.Fatalf("session should move on after a duplicate: %+v", sess)
	}
}

func TestApplyValidationErrorKeepsDraft(t *testing.T) {
	svc := newTestAnnotationService(newResponseStubStore(), VariantExtended)
	sess := loggedInSession()
	_, err := svc.Apply(context.Background(), sess, SubmitAnswer{Step: StepAnswer1, Input: AnswerInput{Accuracy: "Low"}})
	if _, ok := AsValidationError(err); !ok {
		t.Fatalf("expected validation error, got %v", err)
	}
	if sess.Step != StepAnswer1 || sess.Draft == nil || sess.Draft.Answer.Accuracy != "Low" {
		t.Fatalf("draft not recorded: %+v", sess)
	}
}

func TestApplySecondSessionDiscardsStaleBundle(t *testing.T) {
	store := newResponseStubStore()
	svc := newTestAnnotationService(store, VariantExtended)
	ctx := context.Background()
	a := loggedInSession()
	b := loggedInSession()
	b.ID = "s2"

	for step := StepAnswer1; step <= StepAnswer4; step++ {
		in := AnswerInput{Accuracy: "Low", AccuracyExplanation: "judged answers of 101"}
		if _, err := svc.Apply(ctx, b, SubmitAnswer{Step: step, Input: in}); err != nil {
			t.Fatalf("answer %d: %v", step, err)
		}
	}
	if b.QID != 101 {
		t.Fatalf("bundle should be bound to 101, got %d", b.QID)
	}

	if res := finishQuestion(t, svc, a); res.QID != 101 {
		t.Fatalf("first session should finish 101, got %+v", res)
	}

	_, err := svc.Apply(ctx, b, SubmitReferences{Input: ReferenceInput{Ratings: allGood(), Preferred: "Reference 1"}})
	if codeOf(err) != ErrorConflict {
		t.Fatalf("expected conflict for a stale bundle, got %v", err)
	}
	if b.QID != 102 || b.Step != StepAnswer1 || !b.Responses.Empty() {
		t.Fatalf("stale progress must be reset onto 102: %+v", b)
	}
	if len(store.docs) != 1 || store.docs[0].QID != 101 {
		t.Fatalf("only the first session's response may be stored: %+v", store.docs)
	}

	res := finishQuestion(t, svc, b)
	if res.QID != 102 {
		t.Fatalf("second session should now finish 102, got %+v", res)
	}
	doc := store.docs[1]
	if doc.QID != 102 || doc.Responses.Answers["Answer1"].Accuracy.Rating != "High" {
		t.Fatalf("102 must carry evaluations collected on 102: %+v", doc)
	}
}

func TestWorkloadRebindsAfterDatasetChange(t *testing.T) {
	store := newResponseStubStore()
	data := testDataset()
	svc := NewAnnotationService(store, data, VariantExtended, time.Second, nil)
	svc.now = func() time.Time { return t0 }
	ctx := context.Background()
	sess := loggedInSession()

	if _, err := svc.Apply(ctx, sess, SubmitAnswer{Step: StepAnswer1, Input: AnswerInput{Accuracy: "High"}}); err != nil {
		t.Fatalf("answer: %v", err)
	}
	data.Set(NewDataset([]models.QuestionRecord{record(102, "a@x.org")}))

	wl, err := svc.Workload(ctx, sess)
	if err != nil {
		t.Fatalf("workload: %v", err)
	}
	if !wl.Discarded || sess.QID != 102 || sess.Step != StepAnswer1 || !sess.Responses.Empty() {
		t.Fatalf("session should be rebound to 102: %+v %+v", wl, sess)
	}
	again, err := svc.Workload(ctx, sess)
	if err != nil || again.Discarded {
		t.Fatalf("second read must not discard again: %+v %v", again, err)
	}
}
