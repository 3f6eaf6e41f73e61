package models

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

func TestAnnotationResponseReadsLegacyDocument(t *testing.T) {
	legacy := bson.M{
		"email": "a@x.org",
		"qid":   101,
		"responses": bson.M{
			"Answer1": bson.M{
				"accuracy":      bson.M{"rating": "High", "explanation": ""},
				"comprehension": 4,
				"novelty":       nil,
				"analysis_logic": bson.M{
					"category":           "Poor",
					"details":            bson.A{"Others"},
					"others_explanation": "too vague",
				},
				"feedback":       "",
				"time_spent_sec": 12.5,
			},
			"Answer2": bson.M{"accuracy": bson.M{"rating": "Low", "explanation": "wrong dose"}, "comprehension": 2},
		},
		"preferred_reference": "Reference 3",
		"timestamp":           time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
	}
	raw, err := bson.Marshal(legacy)
	if err != nil {
		t.Fatalf("marshal legacy: %v", err)
	}

	var doc AnnotationResponse
	if err := bson.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unmarshal legacy: %v", err)
	}
	if doc.QID != 101 || doc.PreferredReference != "Reference 3" {
		t.Fatalf("unexpected header fields: %+v", doc)
	}
	a1, ok := doc.Responses.Answers["Answer1"]
	if !ok || a1.Accuracy.Rating != "High" || a1.Comprehension != 4 || a1.TimeSpentSeconds != 12.5 {
		t.Fatalf("Answer1 not decoded: %+v", doc.Responses.Answers)
	}
	if a1.Analysis.OthersExplanation != "too vague" || len(a1.Analysis.Details) != 1 {
		t.Fatalf("analysis not decoded: %+v", a1.Analysis)
	}
	if doc.Responses.Answers["Answer2"].Accuracy.Explanation != "wrong dose" {
		t.Fatalf("Answer2 not decoded: %+v", doc.Responses.Answers)
	}
}

func TestResponseBundleWritesFlatAnswerKeys(t *testing.T) {
	in := AnnotationResponse{
		Email: "a@x.org",
		QID:   102,
		Responses: ResponseBundle{
			Answers: map[string]AnswerEvaluation{
				"Answer1": {Accuracy: Accuracy{Rating: "High"}, Comprehension: 3},
				"Answer4": {Accuracy: Accuracy{Rating: "Moderate", Explanation: "partial"}, Comprehension: 5},
			},
			References:         map[string]ReferenceRating{"Reference 1": {Rating: "Good"}},
			PreferredReference: "Reference 1",
			BestAnswers:        []string{"Answer 4"},
		},
		PreferredReference: "Reference 1",
		BestAnswers:        []string{"Answer 4"},
		Timestamp:          time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	raw, err := bson.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	responses, ok := bson.Raw(raw).Lookup("responses").DocumentOK()
	if !ok {
		t.Fatalf("responses is not a sub-document")
	}
	if _, err := responses.LookupErr("answers"); err == nil {
		t.Fatalf("answers must not be nested under an extra key")
	}
	if v, err := responses.LookupErr("Answer4", "accuracy", "rating"); err != nil || v.StringValue() != "Moderate" {
		t.Fatalf("Answer4 not stored flat: %v", err)
	}
	if _, err := responses.LookupErr("references", "Reference 1"); err != nil {
		t.Fatalf("references missing: %v", err)
	}

	var out AnnotationResponse
	if err := bson.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out.Responses.Answers) != 2 || out.Responses.Answers["Answer4"].Comprehension != 5 {
		t.Fatalf("answers lost: %+v", out.Responses)
	}
	if out.Responses.References["Reference 1"].Rating != "Good" || out.Responses.BestAnswers[0] != "Answer 4" {
		t.Fatalf("extended fields lost: %+v", out.Responses)
	}
}

func TestResponseBundleRejectsForeignAnswerKey(t *testing.T) {
	b := ResponseBundle{Answers: map[string]AnswerEvaluation{"references": {}}}
	if _, err := bson.Marshal(AnnotationResponse{Responses: b}); err == nil {
		t.Fatalf("expected marshal to refuse a key that collides with the bundle layout")
	}
}
