package services

import "fmt"

const (
	AccuracyHigh     = "High"
	AccuracyModerate = "Moderate"
	AccuracyLow      = "Low"

	RatingGood    = "Good"
	RatingAverage = "Average"
	RatingBad     = "Bad"

	DetailOthers = "Others"

	answerCount          = 4
	defaultComprehension = 3
)

var (
	accuracyOptions = []string{AccuracyHigh, AccuracyModerate, AccuracyLow}
	noveltyOptions  = []string{"Yes", "No", "Maybe"}
	ratingOptions   = []string{RatingGood, RatingAverage, RatingBad}

	analysisDetails = map[string][]string{
		RatingGood: {
			"Good explanation of biological concepts",
			"Insightful analysis of different aspects of the question",
			"Strong evidence supporting the core conclusion",
			"Profound summarization of the entire analysis",
			DetailOthers,
		},
		RatingAverage: {
			"Broad explanation of biological concepts",
			"Straightforward analysis of the question",
			"Relevant evidence supporting the core conclusion",
			"Reasonable summarization of the analysis",
			DetailOthers,
		},
		RatingBad: {
			"No or poor explanation of biological concepts",
			"Shallow or overly brief analysis of the question",
			"Limited or weak evidence for the core conclusion",
			"Missing or superficial summarization of the analysis",
			DetailOthers,
		},
	}
)

// AnswerKey is the bundle key of answer i (1-based), e.g. "Answer1".
func AnswerKey(i int) string { return fmt.Sprintf("Answer%d", i) }

// AnswerLabel is the display label of answer i, e.g. "Answer 1".
func AnswerLabel(i int) string { return fmt.Sprintf("Answer %d", i) }

// ReferenceLabel is the display label of reference i, e.g. "Reference 2".
func ReferenceLabel(i int) string { return fmt.Sprintf("Reference %d", i) }

func labels(f func(int) string) []string {
	out := make([]string, 0, answerCount)
	for i := 1; i <= answerCount; i++ {
		out = append(out, f(i))
	}
	return out
}

// Catalog lists every choice a participant can pick, for rendering.
type Catalog struct {
	Accuracy        []string            `json:"accuracy"`
	Novelty         []string            `json:"novelty"`
	AnalysisRatings []string            `json:"analysis_categories"`
	AnalysisDetails map[string][]string `json:"analysis_details"`
	ReferenceRating []string            `json:"reference_ratings"`
	References      []string            `json:"references"`
	Answers         []string            `json:"answers"`
	Comprehension   [2]int              `json:"comprehension_range"`
}

func DefaultCatalog() Catalog {
	details := make(map[string][]string, len(analysisDetails))
	for k, v := range analysisDetails {
		details[k] = append([]string(nil), v...)
	}
	return Catalog{
		Accuracy:        append([]string(nil), accuracyOptions...),
		Novelty:         append([]string(nil), noveltyOptions...),
		AnalysisRatings: append([]string(nil), ratingOptions...),
		AnalysisDetails: details,
		ReferenceRating: append([]string(nil), ratingOptions...),
		References:      labels(ReferenceLabel),
		Answers:         labels(AnswerLabel),
		Comprehension:   [2]int{1, 5},
	}
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// normalizeAccuracy maps the legacy "Low Accuracy" wording onto "Low".
func normalizeAccuracy(v string) string {
	if v == "Low Accuracy" {
		return AccuracyLow
	}
	return v
}
