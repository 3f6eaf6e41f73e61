package services

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/soaringjerry/evibench/internal/models"
)

// Variant selects which wizard shape runs.
//
// basic:    Answer 1..4 -> reference preference (terminal)
// extended: Answer 1..4 -> reference ratings + preference -> best answers (terminal)
type Variant string

const (
	VariantBasic    Variant = "basic"
	VariantExtended Variant = "extended"
)

func ParseVariant(s string) (Variant, error) {
	switch Variant(strings.ToLower(strings.TrimSpace(s))) {
	case VariantBasic:
		return VariantBasic, nil
	case VariantExtended, "":
		return VariantExtended, nil
	}
	return "", fmt.Errorf("unknown wizard variant %q", s)
}

// Step is the wizard position. 0..3 are the answer steps.
type Step int

const (
	StepAnswer1          Step = 0
	StepAnswer4          Step = 3
	StepReferenceReview  Step = 4
	StepBestAnswerSelect Step = 5
)

func (s Step) IsAnswer() bool { return s >= StepAnswer1 && s <= StepAnswer4 }

// Name is the state name exposed to clients.
func (s Step) Name() string {
	switch {
	case s.IsAnswer():
		return "answer"
	case s == StepReferenceReview:
		return "reference_review"
	case s == StepBestAnswerSelect:
		return "best_answer_select"
	}
	return "unknown"
}

// AnswerInput is what a participant enters on one answer step.
type AnswerInput struct {
	Accuracy            string   `json:"accuracy"`
	AccuracyExplanation string   `json:"accuracy_explanation,omitempty"`
	Comprehension       int      `json:"comprehension,omitempty"`
	Novelty             string   `json:"novelty"`
	AnalysisCategory    string   `json:"analysis_category"`
	AnalysisDetails     []string `json:"analysis_details,omitempty"`
	OthersExplanation   string   `json:"others_explanation,omitempty"`
	Feedback            string   `json:"feedback,omitempty"`
}

// ReferenceInput is what a participant enters on the reference step.
// Ratings are keyed by reference label ("Reference 1") and only read by the
// extended variant.
type ReferenceInput struct {
	Ratings   map[string]models.ReferenceRating `json:"ratings,omitempty"`
	Preferred string                            `json:"preferred_reference"`
}

// Draft keeps rejected input so it can be shown again for correction.
type Draft struct {
	Answer      *AnswerInput    `json:"answer,omitempty"`
	References  *ReferenceInput `json:"references,omitempty"`
	BestAnswers []string        `json:"best_answers,omitempty"`
}

// Session is the state owned by one participant session.
type Session struct {
	ID            string
	LoggedIn      bool
	Email         string
	QID           int // question the Responses bundle belongs to; 0 when unbound
	Step          Step
	Responses     models.ResponseBundle
	StepStartedAt time.Time
	Draft         *Draft
	LastSeen      time.Time
}

func NewSession(id string, now time.Time) *Session {
	return &Session{ID: id, StepStartedAt: now, LastSeen: now}
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Responses = s.Responses.Clone()
	if s.Draft != nil {
		d := *s.Draft
		if d.Answer != nil {
			a := *d.Answer
			a.AnalysisDetails = append([]string(nil), a.AnalysisDetails...)
			d.Answer = &a
		}
		if d.References != nil {
			r := *d.References
			if r.Ratings != nil {
				r.Ratings = make(map[string]models.ReferenceRating, len(d.References.Ratings))
				for k, v := range d.References.Ratings {
					r.Ratings[k] = v
				}
			}
			d.References = &r
		}
		d.BestAnswers = append([]string(nil), d.BestAnswers...)
		cp.Draft = &d
	}
	return &cp
}

// ResetProgress clears the in-progress question and restarts the step timer.
func (s *Session) ResetProgress(now time.Time) {
	s.QID = 0
	s.Step = StepAnswer1
	s.Responses = models.ResponseBundle{}
	s.Draft = nil
	s.StepStartedAt = now
}

// Logout drops authentication and everything collected so far.
func (s *Session) Logout(now time.Time) {
	s.LoggedIn = false
	s.Email = ""
	s.ResetProgress(now)
}

// Event is an input to Dispatch.
type Event interface{ eventName() string }

type SubmitAnswer struct {
	Step  Step
	Input AnswerInput
}

type SubmitReferences struct {
	Input ReferenceInput
}

type SubmitBestAnswers struct {
	Selections []string
}

type Back struct{}

func (SubmitAnswer) eventName() string      { return "submit_answer" }
func (SubmitReferences) eventName() string  { return "submit_references" }
func (SubmitBestAnswers) eventName() string { return "submit_best_answers" }
func (Back) eventName() string              { return "back" }

// Transition is the outcome of one Dispatch. Finalize is set when the
// question is complete and its bundle has to be persisted; State is then
// already reset for the next question.
type Transition struct {
	State    *Session
	Finalize *models.ResponseBundle
}

// Dispatch applies ev to state without touching it and returns the next
// state. On a *ValidationError the returned state only differs from the input
// by its Draft.
func Dispatch(variant Variant, state *Session, ev Event, now time.Time) (Transition, error) {
	if state == nil || !state.LoggedIn {
		return Transition{}, NewUnauthorizedError(MsgLoginRequired)
	}
	next := state.Clone()
	switch e := ev.(type) {
	case SubmitAnswer:
		return dispatchAnswer(next, e, now)
	case SubmitReferences:
		return dispatchReferences(variant, next, e, now)
	case SubmitBestAnswers:
		return dispatchBestAnswers(variant, next, e, now)
	case Back:
		if variant != VariantExtended {
			return Transition{}, NewConflictError(MsgBackUnavailable)
		}
		if next.Step <= StepAnswer1 {
			return Transition{}, NewConflictError(MsgBackUnavailable)
		}
		next.Step--
		next.Draft = nil
		next.StepStartedAt = now
		return Transition{State: next}, nil
	}
	return Transition{}, fmt.Errorf("unsupported wizard event %T", ev)
}

func dispatchAnswer(next *Session, e SubmitAnswer, now time.Time) (Transition, error) {
	if !next.Step.IsAnswer() || e.Step != next.Step {
		return Transition{}, NewConflictError(MsgWrongStep)
	}
	eval, err := ValidateAnswer(e.Input)
	if err != nil {
		in := e.Input
		next.Draft = &Draft{Answer: &in}
		return Transition{State: next}, err
	}
	eval.TimeSpentSeconds = elapsed(next.StepStartedAt, now)
	if next.Responses.Answers == nil {
		next.Responses.Answers = map[string]models.AnswerEvaluation{}
	}
	next.Responses.Answers[AnswerKey(int(next.Step)+1)] = eval
	if next.Step < StepAnswer4 {
		next.Step++
	} else {
		next.Step = StepReferenceReview
	}
	next.Draft = nil
	next.StepStartedAt = now
	return Transition{State: next}, nil
}

func dispatchReferences(variant Variant, next *Session, e SubmitReferences, now time.Time) (Transition, error) {
	if next.Step != StepReferenceReview {
		return Transition{}, NewConflictError(MsgWrongStep)
	}
	ratings, preferred, err := ValidateReferences(variant, e.Input)
	if err != nil {
		in := e.Input
		next.Draft = &Draft{References: &in}
		return Transition{State: next}, err
	}
	next.Responses.PreferredReference = preferred
	if variant == VariantExtended {
		next.Responses.References = ratings
		next.Step = StepBestAnswerSelect
		next.Draft = nil
		next.StepStartedAt = now
		return Transition{State: next}, nil
	}
	return finalize(next, now), nil
}

func dispatchBestAnswers(variant Variant, next *Session, e SubmitBestAnswers, now time.Time) (Transition, error) {
	if variant != VariantExtended || next.Step != StepBestAnswerSelect {
		return Transition{}, NewConflictError(MsgWrongStep)
	}
	best, err := ValidateBestAnswers(e.Selections)
	if err != nil {
		next.Draft = &Draft{BestAnswers: append([]string(nil), e.Selections...)}
		return Transition{State: next}, err
	}
	next.Responses.BestAnswers = best
	return finalize(next, now), nil
}

func finalize(next *Session, now time.Time) Transition {
	bundle := next.Responses.Clone()
	next.ResetProgress(now)
	return Transition{State: next, Finalize: &bundle}
}

func elapsed(start, now time.Time) float64 {
	if start.IsZero() || now.Before(start) {
		return 0
	}
	return math.Round(now.Sub(start).Seconds()*100) / 100
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }

// ValidateAnswer checks every rule of an answer step and returns the
// evaluation to store. All failures are reported together.
func ValidateAnswer(in AnswerInput) (models.AnswerEvaluation, error) {
	verr := &ValidationError{}
	accuracy := normalizeAccuracy(strings.TrimSpace(in.Accuracy))
	if accuracy != "" && !contains(accuracyOptions, accuracy) {
		verr.add("accuracy", MsgInvalidChoice)
	}
	needsExplanation := accuracy == AccuracyModerate || accuracy == AccuracyLow
	if needsExplanation && blank(in.AccuracyExplanation) {
		verr.add("accuracy_explanation", MsgAccuracyExplanation)
	}

	comp := in.Comprehension
	if comp == 0 {
		comp = defaultComprehension
	}
	if comp < 1 || comp > 5 {
		verr.add("comprehension", MsgComprehensionRange)
	}

	novelty := strings.TrimSpace(in.Novelty)
	if novelty != "" && !contains(noveltyOptions, novelty) {
		verr.add("novelty", MsgInvalidChoice)
	}

	category := strings.TrimSpace(in.AnalysisCategory)
	details := in.AnalysisDetails
	allowed, known := analysisDetails[category]
	switch {
	case category != "" && !known:
		verr.add("analysis_category", MsgInvalidChoice)
	case category == "" && len(details) > 0:
		verr.add("analysis_details", MsgDetailsNeedCategory)
	case known:
		for _, d := range details {
			if !contains(allowed, d) {
				verr.add("analysis_details", MsgInvalidChoice)
				break
			}
		}
	}
	hasOthers := contains(details, DetailOthers)
	if hasOthers && blank(in.OthersExplanation) {
		verr.add("others_explanation", MsgOthersExplanation)
	}
	if err := verr.orNil(); err != nil {
		return models.AnswerEvaluation{}, err
	}

	eval := models.AnswerEvaluation{
		Accuracy:      models.Accuracy{Rating: accuracy},
		Comprehension: comp,
		Novelty:       novelty,
		Analysis: models.Analysis{
			Category: category,
			Details:  append([]string{}, details...),
		},
		Feedback: in.Feedback,
	}
	if needsExplanation {
		eval.Accuracy.Explanation = strings.TrimSpace(in.AccuracyExplanation)
	}
	if hasOthers {
		eval.Analysis.OthersExplanation = strings.TrimSpace(in.OthersExplanation)
	}
	return eval, nil
}

// ValidateReferences checks the reference step. The basic variant only needs
// a preferred reference; the extended one also needs a rating per reference
// and a comment for every rating other than Good.
func ValidateReferences(variant Variant, in ReferenceInput) (map[string]models.ReferenceRating, string, error) {
	verr := &ValidationError{}
	var ratings map[string]models.ReferenceRating
	if variant == VariantExtended {
		ratings = make(map[string]models.ReferenceRating, answerCount)
		for i := 1; i <= answerCount; i++ {
			label := ReferenceLabel(i)
			r := in.Ratings[label]
			rating := strings.TrimSpace(r.Rating)
			switch {
			case rating == "":
				verr.add(label, MsgReferenceRating)
				continue
			case !contains(ratingOptions, rating):
				verr.add(label, MsgInvalidChoice)
				continue
			case rating != RatingGood && blank(r.Comment):
				verr.add(label, MsgReferenceComment)
				continue
			}
			out := models.ReferenceRating{Rating: rating}
			if rating != RatingGood {
				out.Comment = strings.TrimSpace(r.Comment)
			}
			ratings[label] = out
		}
	}
	preferred := strings.TrimSpace(in.Preferred)
	switch {
	case preferred == "":
		verr.add("preferred_reference", MsgPreferredRequired)
	case !contains(labels(ReferenceLabel), preferred):
		verr.add("preferred_reference", MsgInvalidChoice)
	}
	if err := verr.orNil(); err != nil {
		return nil, "", err
	}
	return ratings, preferred, nil
}

// ValidateBestAnswers requires at least one known answer label. Duplicates
// are dropped, first occurrence wins.
func ValidateBestAnswers(selections []string) ([]string, error) {
	verr := &ValidationError{}
	valid := labels(AnswerLabel)
	seen := map[string]bool{}
	out := make([]string, 0, len(selections))
	for _, s := range selections {
		s = strings.TrimSpace(s)
		if !contains(valid, s) {
			verr.add("best_answers", MsgInvalidChoice)
			break
		}
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	if len(selections) == 0 {
		verr.add("best_answers", MsgBestAnswersRequired)
	}
	if err := verr.orNil(); err != nil {
		return nil, err
	}
	return out, nil
}
