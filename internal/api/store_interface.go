package api

import (
	"context"

	"github.com/soaringjerry/evibench/internal/models"
	"github.com/soaringjerry/evibench/internal/services"
)

// Store is the persistence contract shared by every backend. Inserts return
// services.ErrDuplicate when the (email) login or (email, qid) response
// uniqueness constraint rejects them.
type Store interface {
	ListQuestions(ctx context.Context) ([]models.QuestionRecord, error)
	ReplaceQuestions(ctx context.Context, recs []models.QuestionRecord) error
	AppendQuestions(ctx context.Context, recs []models.QuestionRecord) error

	FindLogin(ctx context.Context, email string) (*models.LoginRecord, error)
	InsertLogin(ctx context.Context, rec *models.LoginRecord) error

	ListCompletedQIDs(ctx context.Context, email string) ([]int, error)
	InsertResponse(ctx context.Context, doc *models.AnnotationResponse) error
	ListResponses(ctx context.Context) ([]models.AnnotationResponse, error)

	Close(ctx context.Context) error
}

var (
	_ Store                  = (*memoryStore)(nil)
	_ services.DatasetWriter = Store(nil)
	_ services.LoginStore    = Store(nil)
	_ services.ResponseStore = Store(nil)
	_ services.ExportStore   = Store(nil)
)
