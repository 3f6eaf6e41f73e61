package models

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

// QuestionRecord is one seeded row of the evibench dataset. It is never
// mutated by the application.
type QuestionRecord struct {
	QID        int       `bson:"QID" json:"qid"`
	Email      string    `bson:"Email" json:"email"`
	Topic      string    `bson:"Qtopic" json:"topic"`
	Question   string    `bson:"Question" json:"question"`
	Answers    [4]string `bson:"-" json:"answers"`
	References [4]string `bson:"-" json:"references"`
}

// LoginRecord marks the first successful login of an approved email.
type LoginRecord struct {
	Email     string    `bson:"email" json:"email"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// Accuracy is the accuracy rating with its explanation.
type Accuracy struct {
	Rating      string `bson:"rating" json:"rating"`
	Explanation string `bson:"explanation,omitempty" json:"explanation,omitempty"`
}

// Analysis is the analysis-quality category, the detail tags chosen for it
// and the free text required when "Others" is among them.
type Analysis struct {
	Category          string   `bson:"category" json:"category"`
	Details           []string `bson:"details" json:"details"`
	OthersExplanation string   `bson:"others_explanation,omitempty" json:"others_explanation,omitempty"`
}

// AnswerEvaluation is the bundle collected on one answer step.
type AnswerEvaluation struct {
	Accuracy         Accuracy `bson:"accuracy" json:"accuracy"`
	Comprehension    int      `bson:"comprehension" json:"comprehension"`
	Novelty          string   `bson:"novelty" json:"novelty"`
	Analysis         Analysis `bson:"analysis_logic" json:"analysis_logic"`
	Feedback         string   `bson:"feedback" json:"feedback"`
	TimeSpentSeconds float64  `bson:"time_spent_sec" json:"time_spent_sec"`
}

// ReferenceRating is the per-reference judgement of the extended wizard.
type ReferenceRating struct {
	Rating  string `bson:"rating" json:"rating"`
	Comment string `bson:"comment,omitempty" json:"comment,omitempty"`
}

// ResponseBundle accumulates everything entered for one question. In BSON
// each evaluation sits under its own "Answer{i}" key, next to the reference
// ratings.
type ResponseBundle struct {
	Answers            map[string]AnswerEvaluation `json:"answers"`
	References         map[string]ReferenceRating  `json:"references,omitempty"`
	PreferredReference string                      `json:"preferred_reference,omitempty"`
	BestAnswers        []string                    `json:"best_answers,omitempty"`
}

const answerKeyPrefix = "Answer"

func (b ResponseBundle) MarshalBSON() ([]byte, error) {
	keys := make([]string, 0, len(b.Answers))
	for k := range b.Answers {
		if !strings.HasPrefix(k, answerKeyPrefix) {
			return nil, fmt.Errorf("answer key %q lacks %q prefix", k, answerKeyPrefix)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	doc := make(bson.D, 0, len(keys)+3)
	for _, k := range keys {
		doc = append(doc, bson.E{Key: k, Value: b.Answers[k]})
	}
	if len(b.References) > 0 {
		doc = append(doc, bson.E{Key: "references", Value: b.References})
	}
	if b.PreferredReference != "" {
		doc = append(doc, bson.E{Key: "preferred_reference", Value: b.PreferredReference})
	}
	if len(b.BestAnswers) > 0 {
		doc = append(doc, bson.E{Key: "best_answers", Value: b.BestAnswers})
	}
	return bson.Marshal(doc)
}

func (b *ResponseBundle) UnmarshalBSON(data []byte) error {
	elems, err := bson.Raw(data).Elements()
	if err != nil {
		return err
	}
	*b = ResponseBundle{}
	for _, el := range elems {
		key, val := el.Key(), el.Value()
		switch {
		case key == "references":
			if err := val.Unmarshal(&b.References); err != nil {
				return fmt.Errorf("references: %w", err)
			}
		case key == "preferred_reference":
			b.PreferredReference, _ = val.StringValueOK()
		case key == "best_answers":
			if err := val.Unmarshal(&b.BestAnswers); err != nil {
				return fmt.Errorf("best_answers: %w", err)
			}
		case strings.HasPrefix(key, answerKeyPrefix):
			var ev AnswerEvaluation
			if err := val.Unmarshal(&ev); err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			if b.Answers == nil {
				b.Answers = map[string]AnswerEvaluation{}
			}
			b.Answers[key] = ev
		}
	}
	return nil
}

// Empty reports whether nothing has been collected yet.
func (b ResponseBundle) Empty() bool {
	return len(b.Answers) == 0 && len(b.References) == 0 && b.PreferredReference == "" && len(b.BestAnswers) == 0
}

// Clone returns a deep copy so callers can mutate without aliasing.
func (b ResponseBundle) Clone() ResponseBundle {
	out := ResponseBundle{PreferredReference: b.PreferredReference}
	if b.Answers != nil {
		out.Answers = make(map[string]AnswerEvaluation, len(b.Answers))
		for k, v := range b.Answers {
			v.Analysis.Details = append([]string(nil), v.Analysis.Details...)
			out.Answers[k] = v
		}
	}
	if b.References != nil {
		out.References = make(map[string]ReferenceRating, len(b.References))
		for k, v := range b.References {
			out.References[k] = v
		}
	}
	if b.BestAnswers != nil {
		out.BestAnswers = append([]string(nil), b.BestAnswers...)
	}
	return out
}

// AnnotationResponse is the single document written when a question is
// finished. Store adapters map ID onto their own primary key.
type AnnotationResponse struct {
	ID                 string         `bson:"-" json:"id"`
	Email              string         `bson:"email" json:"email"`
	QID                int            `bson:"qid" json:"qid"`
	Variant            string         `bson:"variant" json:"variant"`
	Responses          ResponseBundle `bson:"responses" json:"responses"`
	PreferredReference string         `bson:"preferred_reference,omitempty" json:"preferred_reference,omitempty"`
	BestAnswers        []string       `bson:"best_answers,omitempty" json:"best_answers,omitempty"`
	Timestamp          time.Time      `bson:"timestamp" json:"timestamp"`
}
