package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/mrwolf/her-server/internal/models"
)

const schema = `
-- Append-only conversation log. JSON columns hold emotions, answers and the
-- exact questions asked, in order.
CREATE TABLE IF NOT EXISTS conversations (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT UNIQUE NOT NULL,
    user_id TEXT NOT NULL,
    mood TEXT NOT NULL,
    emotions TEXT NOT NULL DEFAULT '[]',
    answers TEXT NOT NULL DEFAULT '{}',
    message TEXT NOT NULL,
    questions TEXT NOT NULL DEFAULT '[]',
    created_at TEXT NOT NULL
);

-- Scheduler job tracking
CREATE TABLE IF NOT EXISTS scheduler_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    job_type TEXT NOT NULL,
    status TEXT NOT NULL,
    started_at TEXT NOT NULL,
    completed_at TEXT,
    error_message TEXT
);

CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_scheduler_job ON scheduler_runs(job_type);
`

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return db, nil
}

func (db *DB) migrate() error {
	_, err := db.conn.Exec(schema)
	if err != nil {
		return fmt.Errorf("executing migration: %w", err)
	}
	return nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping reports whether the database is reachable
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// AppendConversation stores a conversation. A missing id or timestamp is
// filled in on the record.
func (db *DB) AppendConversation(ctx context.Context, rec *models.ConversationRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	emotions, err := json.Marshal(nonNilStrings(rec.Emotions))
	if err != nil {
		return fmt.Errorf("encoding emotions: %w", err)
	}
	answers, err := json.Marshal(nonNilAnswers(rec.Answers))
	if err != nil {
		return fmt.Errorf("encoding answers: %w", err)
	}
	questions, err := json.Marshal(refs(rec.Questions))
	if err != nil {
		return fmt.Errorf("encoding questions: %w", err)
	}

	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO conversations (id, user_id, mood, emotions, answers, message, questions, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.UserID, rec.Mood, string(emotions), string(answers), rec.Message, string(questions),
		rec.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("inserting conversation: %w", err)
	}
	return nil
}

// RecentConversations returns a page of conversations, most recent first.
// A non-positive limit returns everything from offset on.
func (db *DB) RecentConversations(ctx context.Context, userID string, limit, offset int) ([]models.ConversationRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	if offset < 0 {
		offset = 0
	}
	return db.queryConversations(ctx, `
		SELECT id, user_id, mood, emotions, answers, message, questions, created_at
		FROM conversations
		WHERE user_id = ?
		ORDER BY created_at DESC, seq DESC
		LIMIT ? OFFSET ?
	`, userID, limit, offset)
}

// AllConversations returns every conversation for a user, most recent first
func (db *DB) AllConversations(ctx context.Context, userID string) ([]models.ConversationRecord, error) {
	return db.RecentConversations(ctx, userID, 0, 0)
}

func (db *DB) queryConversations(ctx context.Context, query string, args ...interface{}) ([]models.ConversationRecord, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var out []models.ConversationRecord
	for rows.Next() {
		var rec models.ConversationRecord
		var emotions, answers, questions, createdStr string
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Mood, &emotions, &answers, &rec.Message, &questions, &createdStr); err != nil {
			return nil, err
		}
		// Columns are written by AppendConversation; a bad row degrades to empty fields
		_ = json.Unmarshal([]byte(emotions), &rec.Emotions)
		_ = json.Unmarshal([]byte(answers), &rec.Answers)
		_ = json.Unmarshal([]byte(questions), &rec.Questions)
		rec.CreatedAt, _ = time.Parse(time.RFC3339, createdStr)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CountConversations returns how many conversations a user has saved
func (db *DB) CountConversations(ctx context.Context, userID string) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations WHERE user_id = ?`, userID).Scan(&n)
	return n, err
}

func refs(qs []models.Question) []models.Question {
	out := make([]models.Question, 0, len(qs))
	for _, q := range qs {
		out = append(out, q.Ref())
	}
	return out
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilAnswers(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

// SchedulerRun tracks a scheduler job execution
type SchedulerRun struct {
	ID           int64
	JobType      string
	Status       string
	StartedAt    time.Time
	CompletedAt  *time.Time
	ErrorMessage string
}

// StartSchedulerRun records the start of a scheduler job
func (db *DB) StartSchedulerRun(jobType string) (int64, error) {
	result, err := db.conn.Exec(`
		INSERT INTO scheduler_runs (job_type, status, started_at)
		VALUES (?, 'running', ?)
	`, jobType, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// CompleteSchedulerRun marks a scheduler job as completed
func (db *DB) CompleteSchedulerRun(runID int64, errMsg string) error {
	status := "completed"
	if errMsg != "" {
		status = "failed"
	}
	_, err := db.conn.Exec(`
		UPDATE scheduler_runs
		SET status = ?, completed_at = ?, error_message = ?
		WHERE id = ?
	`, status, time.Now().UTC().Format(time.RFC3339), errMsg, runID)
	return err
}

// GetLastSchedulerRun returns the most recent run of a job type
func (db *DB) GetLastSchedulerRun(jobType string) (*SchedulerRun, error) {
	var run SchedulerRun
	var startedStr string
	var completedStr, errMsg sql.NullString
	err := db.conn.QueryRow(`
		SELECT id, job_type, status, started_at, completed_at, error_message
		FROM scheduler_runs
		WHERE job_type = ?
		ORDER BY id DESC
		LIMIT 1
	`, jobType).Scan(&run.ID, &run.JobType, &run.Status, &startedStr, &completedStr, &errMsg)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	run.StartedAt, _ = time.Parse(time.RFC3339, startedStr)
	if completedStr.Valid {
		t, _ := time.Parse(time.RFC3339, completedStr.String)
		run.CompletedAt = &t
	}
	if errMsg.Valid {
		run.ErrorMessage = errMsg.String
	}
	return &run, nil
}
