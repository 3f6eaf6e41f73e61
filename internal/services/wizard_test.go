package services

import (
	"testing"
	"time"

	"github.com/soaringjerry/evibench/internal/models"
)

var t0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func loggedInSession() *Session {
	s := NewSession("s1", t0)
	s.LoggedIn = true
	s.Email = "a@x.org"
	return s
}

func codeOf(err error) ErrorCode {
	if se, ok := AsServiceError(err); ok {
		return se.Code
	}
	return ""
}

func problemFields(t *testing.T, err error) map[string]string {
	t.Helper()
	ve, ok := AsValidationError(err)
	if !ok {
		t.Fatalf("expected validation error, got %v", err)
	}
	out := map[string]string{}
	for _, p := range ve.Problems {
		out[p.Field] = p.Key
	}
	return out
}

func answerAt(t *testing.T, s *Session, step Step) *Session {
	t.Helper()
	tr, err := Dispatch(VariantExtended, s, SubmitAnswer{Step: step, Input: AnswerInput{Accuracy: "High"}}, t0)
	if err != nil {
		t.Fatalf("answer step %d: %v", step, err)
	}
	return tr.State
}

func TestDispatchAnswerAdvancesAndRecordsTime(t *testing.T) {
	s := loggedInSession()
	tr, err := Dispatch(VariantExtended, s, SubmitAnswer{Step: StepAnswer1, Input: AnswerInput{Accuracy: "High"}}, t0.Add(12500*time.Millisecond))
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if tr.Finalize != nil {
		t.Fatalf("answer step must not finalize")
	}
	next := tr.State
	if next.Step != 1 {
		t.Fatalf("expected step 1, got %d", next.Step)
	}
	ev, ok := next.Responses.Answers["Answer1"]
	if !ok {
		t.Fatalf("Answer1 not recorded: %+v", next.Responses)
	}
	if ev.Accuracy.Rating != AccuracyHigh || ev.Accuracy.Explanation != "" {
		t.Fatalf("unexpected accuracy %+v", ev.Accuracy)
	}
	if ev.Comprehension != 3 {
		t.Fatalf("comprehension should default to 3, got %d", ev.Comprehension)
	}
	if ev.TimeSpentSeconds != 12.5 {
		t.Fatalf("expected 12.5s, got %v", ev.TimeSpentSeconds)
	}
	if !next.StepStartedAt.Equal(t0.Add(12500 * time.Millisecond)) {
		t.Fatalf("step timer not restarted")
	}
	if s.Step != 0 || len(s.Responses.Answers) != 0 {
		t.Fatalf("input state was mutated: %+v", s)
	}
}

func TestDispatchModerateWithoutExplanationStays(t *testing.T) {
	s := loggedInSession()
	tr, err := Dispatch(VariantExtended, s, SubmitAnswer{Step: StepAnswer1, Input: AnswerInput{Accuracy: "Moderate", AccuracyExplanation: "  "}}, t0)
	fields := problemFields(t, err)
	if fields["accuracy_explanation"] != MsgAccuracyExplanation {
		t.Fatalf("unexpected problems %v", fields)
	}
	if tr.State == nil || tr.State.Step != 0 || !tr.State.Responses.Empty() {
		t.Fatalf("state must not advance: %+v", tr.State)
	}
	if tr.State.Draft == nil || tr.State.Draft.Answer == nil || tr.State.Draft.Answer.Accuracy != "Moderate" {
		t.Fatalf("draft not kept: %+v", tr.State.Draft)
	}
}

func TestDispatchOthersNeedsExplanation(t *testing.T) {
	s := loggedInSession()
	in := AnswerInput{Accuracy: "High", AnalysisCategory: "Good", AnalysisDetails: []string{DetailOthers}}
	_, err := Dispatch(VariantExtended, s, SubmitAnswer{Step: StepAnswer1, Input: in}, t0)
	if problemFields(t, err)["others_explanation"] != MsgOthersExplanation {
		t.Fatalf("expected others explanation problem, got %v", err)
	}

	in.OthersExplanation = "cites a retracted paper"
	tr, err := Dispatch(VariantExtended, s, SubmitAnswer{Step: StepAnswer1, Input: in}, t0)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	got := tr.State.Responses.Answers["Answer1"].Analysis
	if got.Category != "Good" || got.OthersExplanation != "cites a retracted paper" {
		t.Fatalf("unexpected analysis %+v", got)
	}
}

func TestValidateAnswerCollectsAllProblems(t *testing.T) {
	_, err := ValidateAnswer(AnswerInput{
		Accuracy:         "Low",
		Comprehension:    9,
		Novelty:          "Perhaps",
		AnalysisCategory: "Bad",
		AnalysisDetails:  []string{"Good explanation of biological concepts", DetailOthers},
	})
	fields := problemFields(t, err)
	for _, f := range []string{"accuracy_explanation", "comprehension", "novelty", "analysis_details", "others_explanation"} {
		if _, ok := fields[f]; !ok {
			t.Fatalf("missing problem for %s in %v", f, fields)
		}
	}
}

func TestValidateAnswerRules(t *testing.T) {
	ev, err := ValidateAnswer(AnswerInput{Accuracy: "Low Accuracy", AccuracyExplanation: "wrong pathway", Comprehension: 5})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if ev.Accuracy.Rating != AccuracyLow || ev.Accuracy.Explanation != "wrong pathway" {
		t.Fatalf("alias not normalized: %+v", ev.Accuracy)
	}
	if _, err := ValidateAnswer(AnswerInput{Accuracy: "Perfect"}); problemFields(t, err)["accuracy"] != MsgInvalidChoice {
		t.Fatalf("unknown accuracy must be rejected")
	}
	if _, err := ValidateAnswer(AnswerInput{AnalysisDetails: []string{"Straightforward analysis of the question"}}); problemFields(t, err)["analysis_details"] != MsgDetailsNeedCategory {
		t.Fatalf("details without category must be rejected")
	}
	ev, err = ValidateAnswer(AnswerInput{Accuracy: "High", AccuracyExplanation: "ignored", Feedback: "fine"})
	if err != nil || ev.Accuracy.Explanation != "" || ev.Feedback != "fine" {
		t.Fatalf("explanation only kept for Moderate/Low: %+v %v", ev, err)
	}
}

func TestDispatchFourthAnswerMovesToReferences(t *testing.T) {
	s := loggedInSession()
	for step := StepAnswer1; step <= StepAnswer4; step++ {
		s = answerAt(t, s, step)
	}
	if s.Step != StepReferenceReview {
		t.Fatalf("expected reference review, got %d", s.Step)
	}
	if len(s.Responses.Answers) != 4 {
		t.Fatalf("expected 4 answers, got %d", len(s.Responses.Answers))
	}
	for i := 1; i <= 4; i++ {
		if _, ok := s.Responses.Answers[AnswerKey(i)]; !ok {
			t.Fatalf("missing %s", AnswerKey(i))
		}
	}
}

func allGood() map[string]models.ReferenceRating {
	return map[string]models.ReferenceRating{
		"Reference 1": {Rating: "Good"},
		"Reference 2": {Rating: "Good"},
		"Reference 3": {Rating: "Average", Comment: "partly relevant"},
		"Reference 4": {Rating: "Good"},
	}
}

func TestDispatchExtendedFinalSubmit(t *testing.T) {
	s := loggedInSession()
	for step := StepAnswer1; step <= StepAnswer4; step++ {
		s = answerAt(t, s, step)
	}
	tr, err := Dispatch(VariantExtended, s, SubmitReferences{Input: ReferenceInput{Ratings: allGood(), Preferred: "Reference 2"}}, t0)
	if err != nil {
		t.Fatalf("references: %v", err)
	}
	if tr.Finalize != nil || tr.State.Step != StepBestAnswerSelect {
		t.Fatalf("extended variant must continue to best answers: %+v", tr)
	}
	if tr.State.Responses.References["Reference 3"].Comment != "partly relevant" {
		t.Fatalf("reference ratings not stored: %+v", tr.State.Responses.References)
	}

	tr, err = Dispatch(VariantExtended, tr.State, SubmitBestAnswers{Selections: []string{"Answer 1", "Answer 3"}}, t0.Add(time.Minute))
	if err != nil {
		t.Fatalf("best answers: %v", err)
	}
	if tr.Finalize == nil {
		t.Fatalf("expected finalize")
	}
	if tr.Finalize.PreferredReference != "Reference 2" || len(tr.Finalize.BestAnswers) != 2 || len(tr.Finalize.Answers) != 4 {
		t.Fatalf("unexpected bundle %+v", tr.Finalize)
	}
	if tr.State.Step != StepAnswer1 || !tr.State.Responses.Empty() || !tr.State.LoggedIn {
		t.Fatalf("state not reset for next question: %+v", tr.State)
	}
	if !tr.State.StepStartedAt.Equal(t0.Add(time.Minute)) {
		t.Fatalf("timer not restarted after finalize")
	}
}

func TestDispatchBasicFinalizesOnReferences(t *testing.T) {
	s := loggedInSession()
	s.Step = StepReferenceReview
	tr, err := Dispatch(VariantBasic, s, SubmitReferences{Input: ReferenceInput{}}, t0)
	if problemFields(t, err)["preferred_reference"] != MsgPreferredRequired {
		t.Fatalf("preferred reference is required: %v", err)
	}
	tr, err = Dispatch(VariantBasic, s, SubmitReferences{Input: ReferenceInput{Preferred: "Reference 4"}}, t0)
	if err != nil {
		t.Fatalf("references: %v", err)
	}
	if tr.Finalize == nil || tr.Finalize.PreferredReference != "Reference 4" || tr.Finalize.References != nil {
		t.Fatalf("unexpected finalize %+v", tr.Finalize)
	}
	if _, err := Dispatch(VariantBasic, s, SubmitBestAnswers{Selections: []string{"Answer 1"}}, t0); codeOf(err) != ErrorConflict {
		t.Fatalf("basic variant has no best answer step, got %v", err)
	}
}

func TestValidateReferencesExtended(t *testing.T) {
	in := ReferenceInput{Ratings: allGood(), Preferred: "Reference 9"}
	delete(in.Ratings, "Reference 1")
	in.Ratings["Reference 2"] = models.ReferenceRating{Rating: "Bad"}
	_, _, err := ValidateReferences(VariantExtended, in)
	fields := problemFields(t, err)
	if fields["Reference 1"] != MsgReferenceRating || fields["Reference 2"] != MsgReferenceComment || fields["preferred_reference"] != MsgInvalidChoice {
		t.Fatalf("unexpected problems %v", fields)
	}
}

func TestValidateBestAnswers(t *testing.T) {
	got, err := ValidateBestAnswers([]string{"Answer 3", "Answer 1", "Answer 3"})
	if err != nil || len(got) != 2 || got[0] != "Answer 3" || got[1] != "Answer 1" {
		t.Fatalf("dedupe failed: %v %v", got, err)
	}
	if _, err := ValidateBestAnswers(nil); problemFields(t, err)["best_answers"] != MsgBestAnswersRequired {
		t.Fatalf("empty selection must fail")
	}
	if _, err := ValidateBestAnswers([]string{"Answer 7"}); problemFields(t, err)["best_answers"] != MsgInvalidChoice {
		t.Fatalf("unknown label must fail")
	}
}

func TestDispatchBack(t *testing.T) {
	s := loggedInSession()
	if _, err := Dispatch(VariantExtended, s, Back{}, t0); codeOf(err) != ErrorConflict {
		t.Fatalf("back on first step must fail, got %v", err)
	}
	s = answerAt(t, s, StepAnswer1)
	s = answerAt(t, s, 1)
	if _, err := Dispatch(VariantBasic, s, Back{}, t0); codeOf(err) != ErrorConflict {
		t.Fatalf("basic variant has no back, got %v", err)
	}
	tr, err := Dispatch(VariantExtended, s, Back{}, t0.Add(time.Second))
	if err != nil {
		t.Fatalf("back: %v", err)
	}
	if tr.State.Step != 1 || len(tr.State.Responses.Answers) != 2 {
		t.Fatalf("back must keep collected answers: %+v", tr.State)
	}
	if !tr.State.StepStartedAt.Equal(t0.Add(time.Second)) {
		t.Fatalf("timer not restarted on back")
	}
}

func TestDispatchGuards(t *testing.T) {
	s := NewSession("s1", t0)
	if _, err := Dispatch(VariantExtended, s, SubmitAnswer{}, t0); codeOf(err) != ErrorUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	s = loggedInSession()
	if _, err := Dispatch(VariantExtended, s, SubmitAnswer{Step: 2, Input: AnswerInput{Accuracy: "High"}}, t0); codeOf(err) != ErrorConflict {
		t.Fatalf("stale step must conflict, got %v", err)
	}
	if _, err := Dispatch(VariantExtended, s, SubmitReferences{}, t0); codeOf(err) != ErrorConflict {
		t.Fatalf("references before answers must conflict, got %v", err)
	}
}
