package api

import (
	"context"
	"sort"
	"sync"

	"github.com/soaringjerry/evibench/internal/models"
	"github.com/soaringjerry/evibench/internal/services"
)

type responseKey struct {
	email string
	qid   int
}

// memoryStore keeps all three collections in process memory. It backs the
// "memory" backend and the tests.
type memoryStore struct {
	mu        sync.RWMutex
	questions []models.QuestionRecord
	logins    map[string]models.LoginRecord
	responses []models.AnnotationResponse
	answered  map[responseKey]bool
}

// NewMemoryStore returns an empty in-memory Store.
func NewMemoryStore() Store {
	return newMemoryStore()
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		logins:   map[string]models.LoginRecord{},
		answered: map[responseKey]bool{},
	}
}

func (s *memoryStore) ListQuestions(ctx context.Context) ([]models.QuestionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.QuestionRecord(nil), s.questions...), nil
}

func (s *memoryStore) ReplaceQuestions(ctx context.Context, recs []models.QuestionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := uniqueQIDs(nil, recs); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.questions = append([]models.QuestionRecord(nil), recs...)
	return nil
}

func (s *memoryStore) AppendQuestions(ctx context.Context, recs []models.QuestionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := uniqueQIDs(s.questions, recs); err != nil {
		return err
	}
	s.questions = append(s.questions, recs...)
	return nil
}

func uniqueQIDs(existing, recs []models.QuestionRecord) error {
	seen := make(map[int]bool, len(existing)+len(recs))
	for _, r := range existing {
		seen[r.QID] = true
	}
	for _, r := range recs {
		if seen[r.QID] {
			return services.ErrDuplicate
		}
		seen[r.QID] = true
	}
	return nil
}

func (s *memoryStore) FindLogin(ctx context.Context, email string) (*models.LoginRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.logins[email]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *memoryStore) InsertLogin(ctx context.Context, rec *models.LoginRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.logins[rec.Email]; ok {
		return services.ErrDuplicate
	}
	s.logins[rec.Email] = *rec
	return nil
}

func (s *memoryStore) ListCompletedQIDs(ctx context.Context, email string) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []int{}
	for k := range s.answered {
		if k.email == email {
			out = append(out, k.qid)
		}
	}
	sort.Ints(out)
	return out, nil
}

func (s *memoryStore) InsertResponse(ctx context.Context, doc *models.AnnotationResponse) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := responseKey{email: doc.Email, qid: doc.QID}
	if s.answered[key] {
		return services.ErrDuplicate
	}
	cp := *doc
	cp.Responses = doc.Responses.Clone()
	s.responses = append(s.responses, cp)
	s.answered[key] = true
	return nil
}

func (s *memoryStore) ListResponses(ctx context.Context) ([]models.AnnotationResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.AnnotationResponse, 0, len(s.responses))
	for _, r := range s.responses {
		r.Responses = r.Responses.Clone()
		out = append(out, r)
	}
	return out, nil
}

func (s *memoryStore) Close(context.Context) error { return nil }
