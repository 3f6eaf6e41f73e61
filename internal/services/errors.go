package services

import (
	"errors"
	"fmt"
	"strings"
)

type ErrorCode string

const (
	ErrorInvalid      ErrorCode = "invalid"
	ErrorForbidden    ErrorCode = "forbidden"
	ErrorNotFound     ErrorCode = "not_found"
	ErrorConflict     ErrorCode = "conflict"
	ErrorUnauthorized ErrorCode = "unauthorized"
	ErrorUnavailable  ErrorCode = "unavailable"
)

// ServiceError carries a code for the transport layer and a message key that
// is translated before it reaches the participant.
type ServiceError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error { return e.Err }

func NewInvalidError(msg string) error   { return &ServiceError{Code: ErrorInvalid, Message: msg} }
func NewForbiddenError(msg string) error { return &ServiceError{Code: ErrorForbidden, Message: msg} }
func NewNotFoundError(msg string) error  { return &ServiceError{Code: ErrorNotFound, Message: msg} }
func NewConflictError(msg string) error  { return &ServiceError{Code: ErrorConflict, Message: msg} }
func NewUnauthorizedError(msg string) error {
	return &ServiceError{Code: ErrorUnauthorized, Message: msg}
}

// NewUnavailableError wraps a storage failure. The participant may retry.
func NewUnavailableError(err error) error {
	return &ServiceError{Code: ErrorUnavailable, Message: MsgStoreRetry, Err: err}
}

func AsServiceError(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// ErrDuplicate is returned by stores when a uniqueness constraint rejects an
// insert. Services treat it as a no-op.
var ErrDuplicate = errors.New("duplicate record")

// Problem is one failed validation rule.
type Problem struct {
	Field string `json:"field"`
	Key   string `json:"key"`
}

// ValidationError collects every failed rule of a step so they can be shown
// together.
type ValidationError struct {
	Problems []Problem
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		keys = append(keys, p.Field+": "+p.Key)
	}
	return fmt.Sprintf("validation failed (%s)", strings.Join(keys, "; "))
}

func (e *ValidationError) add(field, key string) {
	e.Problems = append(e.Problems, Problem{Field: field, Key: key})
}

func (e *ValidationError) orNil() error {
	if e == nil || len(e.Problems) == 0 {
		return nil
	}
	return e
}

// AsValidationError unwraps a *ValidationError.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// Message keys shared with utils.T.
const (
	MsgEmailRequired        = "login.email_required"
	MsgEmailNotApproved     = "login.not_approved"
	MsgLoginRequired        = "session.login_required"
	MsgStoreRetry           = "store.retry"
	MsgAccuracyExplanation  = "wizard.accuracy_explanation"
	MsgOthersExplanation    = "wizard.others_explanation"
	MsgInvalidChoice        = "wizard.invalid_choice"
	MsgComprehensionRange   = "wizard.comprehension_range"
	MsgDetailsNeedCategory  = "wizard.details_need_category"
	MsgReferenceRating      = "wizard.reference_rating_required"
	MsgReferenceComment     = "wizard.reference_comment_required"
	MsgPreferredRequired    = "wizard.preferred_required"
	MsgBestAnswersRequired  = "wizard.best_answers_required"
	MsgWrongStep            = "wizard.wrong_step"
	MsgBackUnavailable      = "wizard.back_unavailable"
	MsgNoQuestionsRemaining = "wizard.complete"
	MsgQuestionChanged      = "wizard.question_changed"
	MsgDatasetInvalid       = "dataset.invalid"
	MsgDatasetModeInvalid   = "dataset.mode_invalid"
	MsgExportFormatInvalid  = "export.format_invalid"
	MsgInvalidJSON          = "request.invalid_json"
)
