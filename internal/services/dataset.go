package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/soaringjerry/evibench/internal/models"
)

// DatasetReader lists every seeded question record.
type DatasetReader interface {
	ListQuestions(ctx context.Context) ([]models.QuestionRecord, error)
}

// DatasetSource hands out the current read-only dataset snapshot.
type DatasetSource interface {
	Dataset() *Dataset
}

// Dataset is an immutable, QID-ordered view of the seeded questions with an
// index by assigned email. The allow-list is the set of indexed emails.
type Dataset struct {
	records []models.QuestionRecord
	byEmail map[string][]int
}

// NormalizeEmail trims and lowercases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func NewDataset(records []models.QuestionRecord) *Dataset {
	sorted := append([]models.QuestionRecord(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].QID < sorted[j].QID })
	d := &Dataset{records: sorted, byEmail: map[string][]int{}}
	for i, rec := range sorted {
		key := NormalizeEmail(rec.Email)
		if key == "" {
			continue
		}
		d.byEmail[key] = append(d.byEmail[key], i)
	}
	return d
}

// Approved reports whether email appears (case-insensitively) in the dataset.
func (d *Dataset) Approved(email string) bool {
	if d == nil {
		return false
	}
	_, ok := d.byEmail[NormalizeEmail(email)]
	return ok
}

// Assigned returns the records assigned to email in ascending QID order.
func (d *Dataset) Assigned(email string) []models.QuestionRecord {
	if d == nil {
		return nil
	}
	idx := d.byEmail[NormalizeEmail(email)]
	out := make([]models.QuestionRecord, 0, len(idx))
	for _, i := range idx {
		out = append(out, d.records[i])
	}
	return out
}

func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.records)
}

// Emails returns the allow-list in sorted order.
func (d *Dataset) Emails() []string {
	if d == nil {
		return nil
	}
	out := make([]string, 0, len(d.byEmail))
	for e := range d.byEmail {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

// DatasetHolder keeps the process-wide snapshot. Refresh swaps it as a whole.
type DatasetHolder struct {
	current atomic.Pointer[Dataset]
}

func NewDatasetHolder(d *Dataset) *DatasetHolder {
	h := &DatasetHolder{}
	if d == nil {
		d = NewDataset(nil)
	}
	h.current.Store(d)
	return h
}

func (h *DatasetHolder) Dataset() *Dataset { return h.current.Load() }

func (h *DatasetHolder) Set(d *Dataset) { h.current.Store(d) }

// Refresh reloads the snapshot from the store.
func (h *DatasetHolder) Refresh(ctx context.Context, store DatasetReader, timeout time.Duration) (*Dataset, error) {
	d, err := LoadDataset(ctx, store, timeout)
	if err != nil {
		return nil, err
	}
	h.Set(d)
	return d, nil
}

// LoadDataset reads the whole question collection once.
func LoadDataset(ctx context.Context, store DatasetReader, timeout time.Duration) (*Dataset, error) {
	if store == nil {
		return nil, fmt.Errorf("dataset store is nil")
	}
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()
	recs, err := store.ListQuestions(ctx)
	if err != nil {
		return nil, NewUnavailableError(fmt.Errorf("list questions: %w", err))
	}
	return NewDataset(recs), nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
