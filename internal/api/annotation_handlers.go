package api

import (
	"net/http"

	"github.com/soaringjerry/evibench/internal/middleware"
	"github.com/soaringjerry/evibench/internal/models"
	"github.com/soaringjerry/evibench/internal/services"
)

type questionView struct {
	QID          int      `json:"qid"`
	Topic        string   `json:"topic"`
	Question     string   `json:"question"`
	AnswerNumber int      `json:"answer_number,omitempty"`
	Answer       string   `json:"answer,omitempty"`
	Reference    string   `json:"reference,omitempty"`
	Answers      []string `json:"answers,omitempty"`
	References   []string `json:"references,omitempty"`
}

type annotationView struct {
	Email        string                `json:"email"`
	Variant      string                `json:"variant"`
	Progress     services.Progress     `json:"progress"`
	State        string                `json:"state"`
	Step         int                   `json:"step"`
	StepFraction float64               `json:"step_fraction"`
	CanGoBack    bool                  `json:"can_go_back"`
	Question     *questionView         `json:"question,omitempty"`
	Responses    models.ResponseBundle `json:"responses"`
	Draft        *services.Draft       `json:"draft,omitempty"`
	Catalog      *services.Catalog     `json:"catalog,omitempty"`
	Message      string                `json:"message,omitempty"`
	Submitted    bool                  `json:"submitted,omitempty"`
	Duplicate    bool                  `json:"duplicate,omitempty"`
}

func (rt *Router) buildView(r *http.Request, sess *services.Session) (*annotationView, error) {
	wl, err := rt.annotation.Workload(r.Context(), sess)
	if err != nil {
		return nil, err
	}
	variant := rt.annotation.Variant()
	v := &annotationView{
		Email:    sess.Email,
		Variant:  string(variant),
		Progress: wl.Progress,
	}
	if wl.Discarded {
		v.Message = middleware.Translate(r.Context(), services.MsgQuestionChanged)
	}
	if wl.Current == nil {
		v.State = "complete"
		if v.Message == "" {
			v.Message = middleware.Translate(r.Context(), services.MsgNoQuestionsRemaining)
		}
		return v, nil
	}

	totalSteps := 5
	if variant == services.VariantExtended {
		totalSteps = 6
	}
	rec := wl.Current
	v.State = sess.Step.Name()
	v.Step = int(sess.Step)
	v.StepFraction = float64(sess.Step+1) / float64(totalSteps)
	v.CanGoBack = variant == services.VariantExtended && sess.Step > services.StepAnswer1
	v.Responses = sess.Responses
	v.Draft = sess.Draft
	catalog := services.DefaultCatalog()
	v.Catalog = &catalog

	q := &questionView{QID: rec.QID, Topic: rec.Topic, Question: rec.Question}
	switch {
	case sess.Step.IsAnswer():
		i := int(sess.Step)
		q.AnswerNumber = i + 1
		q.Answer = rec.Answers[i]
		q.Reference = rec.References[i]
	case sess.Step == services.StepReferenceReview:
		q.References = append([]string(nil), rec.References[:]...)
	case sess.Step == services.StepBestAnswerSelect:
		q.Answers = append([]string(nil), rec.Answers[:]...)
	}
	v.Question = q
	return v, nil
}

func (rt *Router) handleAnnotation(w http.ResponseWriter, r *http.Request, sess *services.Session) {
	v, err := rt.buildView(r, sess)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// apply runs one wizard event and answers with the refreshed view.
func (rt *Router) apply(w http.ResponseWriter, r *http.Request, sess *services.Session, ev services.Event) {
	res, err := rt.annotation.Apply(r.Context(), sess, ev)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	v, err := rt.buildView(r, sess)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if res.Submitted {
		v.Submitted = true
		v.Duplicate = res.Duplicate
		if v.Message == "" {
			v.Message = middleware.Translate(r.Context(), "wizard.submitted")
		}
	}
	writeJSON(w, http.StatusOK, v)
}

func (rt *Router) handleAnswer(w http.ResponseWriter, r *http.Request, sess *services.Session) {
	var body struct {
		Step int `json:"step"`
		services.AnswerInput
	}
	if err := decodeJSON(r, &body); err != nil {
		rt.writeError(w, r, err)
		return
	}
	rt.apply(w, r, sess, services.SubmitAnswer{Step: services.Step(body.Step), Input: body.AnswerInput})
}

func (rt *Router) handleReferences(w http.ResponseWriter, r *http.Request, sess *services.Session) {
	var body services.ReferenceInput
	if err := decodeJSON(r, &body); err != nil {
		rt.writeError(w, r, err)
		return
	}
	rt.apply(w, r, sess, services.SubmitReferences{Input: body})
}

func (rt *Router) handleBestAnswers(w http.ResponseWriter, r *http.Request, sess *services.Session) {
	var body struct {
		BestAnswers []string `json:"best_answers"`
	}
	if err := decodeJSON(r, &body); err != nil {
		rt.writeError(w, r, err)
		return
	}
	rt.apply(w, r, sess, services.SubmitBestAnswers{Selections: body.BestAnswers})
}

func (rt *Router) handleBack(w http.ResponseWriter, r *http.Request, sess *services.Session) {
	rt.apply(w, r, sess, services.Back{})
}
