package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/soaringjerry/evibench/internal/api"
	"github.com/soaringjerry/evibench/internal/models"
	"github.com/soaringjerry/evibench/internal/services"
)

type SQLiteStore struct {
	db *sql.DB
}

var _ api.Store = (*SQLiteStore)(nil)

func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("apply sqlite pragma %q: %w", stmt, err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// OpenSQLite opens the database file at path and applies migrations.
func OpenSQLite(path, migrationsDir string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := RunMigrations(db, migrationsDir); err != nil {
		_ = db.Close()
		return nil, err
	}
	s, err := NewSQLiteStore(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

func mapWriteErr(err error) error {
	if isUniqueViolation(err) {
		return services.ErrDuplicate
	}
	return err
}

const questionColumns = `qid, email, topic, question,
	answer1, answer2, answer3, answer4,
	reference1, reference2, reference3, reference4`

func (s *SQLiteStore) ListQuestions(ctx context.Context) ([]models.QuestionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+questionColumns+` FROM questions ORDER BY qid`)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()
	var out []models.QuestionRecord
	for rows.Next() {
		var q models.QuestionRecord
		if err := rows.Scan(&q.QID, &q.Email, &q.Topic, &q.Question,
			&q.Answers[0], &q.Answers[1], &q.Answers[2], &q.Answers[3],
			&q.References[0], &q.References[1], &q.References[2], &q.References[3]); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func insertQuestions(ctx context.Context, tx *sql.Tx, recs []models.QuestionRecord) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO questions (`+questionColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, q := range recs {
		if _, err := stmt.ExecContext(ctx, q.QID, q.Email, q.Topic, q.Question,
			q.Answers[0], q.Answers[1], q.Answers[2], q.Answers[3],
			q.References[0], q.References[1], q.References[2], q.References[3]); err != nil {
			return mapWriteErr(err)
		}
	}
	return nil
}

// ReplaceQuestions swaps the dataset inside one transaction.
func (s *SQLiteStore) ReplaceQuestions(ctx context.Context, recs []models.QuestionRecord) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM questions`); err != nil {
			return err
		}
		return insertQuestions(ctx, tx, recs)
	})
}

func (s *SQLiteStore) AppendQuestions(ctx context.Context, recs []models.QuestionRecord) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return insertQuestions(ctx, tx, recs)
	})
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) FindLogin(ctx context.Context, email string) (*models.LoginRecord, error) {
	var (
		rec     models.LoginRecord
		created string
	)
	err := s.db.QueryRowContext(ctx, `SELECT email, created_at FROM users WHERE email = ?`, email).Scan(&rec.Email, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find login: %w", err)
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	return &rec, nil
}

func (s *SQLiteStore) InsertLogin(ctx context.Context, rec *models.LoginRecord) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO users (email, created_at) VALUES (?, ?)`,
		rec.Email, rec.CreatedAt.UTC().Format(time.RFC3339Nano))
	return mapWriteErr(err)
}

func (s *SQLiteStore) ListCompletedQIDs(ctx context.Context, email string) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT qid FROM responses WHERE email = ? ORDER BY qid`, email)
	if err != nil {
		return nil, fmt.Errorf("query completed: %w", err)
	}
	defer rows.Close()
	var out []int
	for rows.Next() {
		var qid int
		if err := rows.Scan(&qid); err != nil {
			return nil, err
		}
		out = append(out, qid)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) InsertResponse(ctx context.Context, doc *models.AnnotationResponse) error {
	bundle, err := json.Marshal(doc.Responses)
	if err != nil {
		return fmt.Errorf("encode responses: %w", err)
	}
	var best sql.NullString
	if len(doc.BestAnswers) > 0 {
		raw, err := json.Marshal(doc.BestAnswers)
		if err != nil {
			return fmt.Errorf("encode best answers: %w", err)
		}
		best = sql.NullString{String: string(raw), Valid: true}
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO responses
		(id, email, qid, variant, responses_json, preferred_reference, best_answers_json, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Email, doc.QID, doc.Variant, string(bundle), doc.PreferredReference, best,
		doc.Timestamp.UTC().Format(time.RFC3339Nano))
	return mapWriteErr(err)
}

func (s *SQLiteStore) ListResponses(ctx context.Context) ([]models.AnnotationResponse, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, email, qid, variant, responses_json,
		preferred_reference, best_answers_json, submitted_at FROM responses ORDER BY submitted_at`)
	if err != nil {
		return nil, fmt.Errorf("query responses: %w", err)
	}
	defer rows.Close()
	var out []models.AnnotationResponse
	for rows.Next() {
		var (
			doc       models.AnnotationResponse
			bundle    string
			best      sql.NullString
			submitted string
		)
		if err := rows.Scan(&doc.ID, &doc.Email, &doc.QID, &doc.Variant, &bundle,
			&doc.PreferredReference, &best, &submitted); err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		if err := json.Unmarshal([]byte(bundle), &doc.Responses); err != nil {
			return nil, fmt.Errorf("decode responses %s: %w", doc.ID, err)
		}
		if best.Valid {
			if err := json.Unmarshal([]byte(best.String), &doc.BestAnswers); err != nil {
				return nil, fmt.Errorf("decode best answers %s: %w", doc.ID, err)
			}
		}
		doc.Timestamp, _ = time.Parse(time.RFC3339Nano, submitted)
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close(context.Context) error {
	return s.db.Close()
}
