// Package postgres persists bots, runners, candidates and verifications in
// PostgreSQL. Stage and disposition changes are single conditional UPDATEs,
// so the compare-and-swap holds across processes.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"

	"stagegate/internal/lifecycle"
	"stagegate/pkg/platform/sentinel"
	txcontext "stagegate/pkg/platform/tx"
)

//go:embed schema.sql
var schema string

// Open connects through the pgx database/sql driver and verifies the
// connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", translate(err))
	}
	return db, nil
}

// Migrate creates the schema if it does not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	return txcontext.Run(ctx, db, func(ctx context.Context) error {
		tx, _ := txcontext.From(ctx)
		if _, err := tx.ExecContext(ctx, schema); err != nil {
			return fmt.Errorf("apply schema: %w", translate(err))
		}
		return nil
	})
}

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// translate maps driver timeouts onto sentinel.ErrTimeout, keeping the cause.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if pgconn.Timeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", sentinel.ErrTimeout, err)
	}
	return err
}

// Bots

func (s *Store) SaveBot(ctx context.Context, bot lifecycle.Bot) error {
	query := `
		INSERT INTO bots (id, stage, stage_updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			stage = EXCLUDED.stage,
			stage_updated_at = EXCLUDED.stage_updated_at
	`
	_, err := s.execer(ctx).ExecContext(ctx, query, bot.ID, string(bot.Stage), nonZero(bot.StageUpdatedAt))
	if err != nil {
		return fmt.Errorf("save bot: %w", translate(err))
	}
	return nil
}

func (s *Store) FindBot(ctx context.Context, id string) (*lifecycle.Bot, error) {
	var (
		bot   lifecycle.Bot
		stage string
	)
	err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT id, stage, stage_updated_at FROM bots WHERE id = $1`, id,
	).Scan(&bot.ID, &stage, &bot.StageUpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find bot: %w", translate(err))
	}
	bot.Stage = lifecycle.Stage(stage)
	return &bot, nil
}

// CompareAndSwapStage updates the stage only while it still equals expected.
func (s *Store) CompareAndSwapStage(ctx context.Context, id string, expected, next lifecycle.Stage, at time.Time) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE bots SET stage = $3, stage_updated_at = $4
		WHERE id = $1 AND stage = $2
	`, id, string(expected), string(next), at)
	if err != nil {
		return fmt.Errorf("update bot stage: %w", translate(err))
	}
	return s.checkSwapped(ctx, res, `SELECT 1 FROM bots WHERE id = $1`, id)
}

// checkSwapped distinguishes a missing row from a failed precondition when
// a conditional update touched nothing.
func (s *Store) checkSwapped(ctx context.Context, res sql.Result, existsQuery, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	var one int
	err = s.execer(ctx).QueryRowContext(ctx, existsQuery, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("reread after swap: %w", translate(err))
	}
	return sentinel.ErrConflict
}

func (s *Store) SaveRunner(ctx context.Context, r lifecycle.Runner) error {
	query := `
		INSERT INTO runners (id, bot_id, stage, active, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			bot_id = EXCLUDED.bot_id,
			stage = EXCLUDED.stage,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at
	`
	_, err := s.execer(ctx).ExecContext(ctx, query, r.ID, r.BotID, string(r.Stage), r.Active, nonZero(r.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save runner: %w", translate(err))
	}
	return nil
}

// ListBotsWithRunners joins bots with IDs after afterID with their primary
// runner: the most recently updated active runner, else the most recently
// updated one.
func (s *Store) ListBotsWithRunners(ctx context.Context, afterID string, limit int) ([]lifecycle.BotRunner, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT b.id, b.stage, b.stage_updated_at,
		       r.id, r.stage, r.active, r.updated_at
		FROM bots b
		LEFT JOIN LATERAL (
			SELECT id, stage, active, updated_at
			FROM runners
			WHERE bot_id = b.id
			ORDER BY active DESC, updated_at DESC
			LIMIT 1
		) r ON true
		WHERE b.id > $1
		ORDER BY b.id
		LIMIT $2
	`, afterID, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list bots with runners: %w", translate(err))
	}
	defer rows.Close()

	var out []lifecycle.BotRunner
	for rows.Next() {
		var (
			br          lifecycle.BotRunner
			botStage    string
			runnerID    sql.NullString
			runnerStage sql.NullString
			active      sql.NullBool
			updatedAt   sql.NullTime
		)
		if err := rows.Scan(&br.Bot.ID, &botStage, &br.Bot.StageUpdatedAt,
			&runnerID, &runnerStage, &active, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan bot runner: %w", err)
		}
		br.Bot.Stage = lifecycle.Stage(botStage)
		if runnerID.Valid {
			br.Runner = &lifecycle.Runner{
				ID:        runnerID.String,
				BotID:     br.Bot.ID,
				Stage:     lifecycle.Stage(runnerStage.String),
				Active:    active.Bool,
				UpdatedAt: updatedAt.Time,
			}
		}
		out = append(out, br)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bot runners: %w", translate(err))
	}
	return out, nil
}

// Candidates

func (s *Store) SaveCandidate(ctx context.Context, c lifecycle.Candidate) error {
	query := `
		INSERT INTO candidates (id, disposition, updated_at, created_bot_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			disposition = EXCLUDED.disposition,
			updated_at = EXCLUDED.updated_at,
			created_bot_id = EXCLUDED.created_bot_id
	`
	_, err := s.execer(ctx).ExecContext(ctx, query, c.ID, string(c.Disposition), nonZero(c.UpdatedAt), c.CreatedBotID)
	if err != nil {
		return fmt.Errorf("save candidate: %w", translate(err))
	}
	return nil
}

func (s *Store) FindCandidate(ctx context.Context, id string) (*lifecycle.Candidate, error) {
	var (
		c           lifecycle.Candidate
		disposition string
	)
	err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT id, disposition, updated_at, created_bot_id FROM candidates WHERE id = $1`, id,
	).Scan(&c.ID, &disposition, &c.UpdatedAt, &c.CreatedBotID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find candidate: %w", translate(err))
	}
	c.Disposition = lifecycle.Disposition(disposition)
	return &c, nil
}

func (s *Store) CompareAndSwapDisposition(ctx context.Context, id string, expected, next lifecycle.Disposition, at time.Time) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE candidates SET disposition = $3, updated_at = $4
		WHERE id = $1 AND disposition = $2
	`, id, string(expected), string(next), at)
	if err != nil {
		return fmt.Errorf("update candidate disposition: %w", translate(err))
	}
	return s.checkSwapped(ctx, res, `SELECT 1 FROM candidates WHERE id = $1`, id)
}

const candidateColumns = `SELECT id, disposition, updated_at, created_bot_id FROM candidates`

// ListCandidatesInDisposition returns candidates in d last updated before
// updatedBefore, oldest first.
func (s *Store) ListCandidatesInDisposition(ctx context.Context, d lifecycle.Disposition, updatedBefore time.Time, limit int) ([]lifecycle.Candidate, error) {
	return s.queryCandidates(ctx, candidateColumns+`
		WHERE disposition = $1 AND updated_at < $2
		ORDER BY updated_at, id
		LIMIT $3
	`, string(d), updatedBefore, sqlLimit(limit))
}

// ListCandidatesInDispositionAfter is ListCandidatesInDisposition resumed
// after the given (updated_at, id) key.
func (s *Store) ListCandidatesInDispositionAfter(ctx context.Context, d lifecycle.Disposition, updatedBefore time.Time, after lifecycle.CandidateKey, limit int) ([]lifecycle.Candidate, error) {
	if after.IsZero() {
		return s.ListCandidatesInDisposition(ctx, d, updatedBefore, limit)
	}
	return s.queryCandidates(ctx, candidateColumns+`
		WHERE disposition = $1 AND updated_at < $2 AND (updated_at, id) > ($3, $4)
		ORDER BY updated_at, id
		LIMIT $5
	`, string(d), updatedBefore, after.UpdatedAt, after.ID, sqlLimit(limit))
}

func (s *Store) ListCandidatesWithoutBot(ctx context.Context, d lifecycle.Disposition, updatedBefore time.Time, limit int) ([]lifecycle.Candidate, error) {
	return s.queryCandidates(ctx, candidateColumns+`
		WHERE disposition = $1 AND updated_at < $2 AND created_bot_id = ''
		ORDER BY updated_at, id
		LIMIT $3
	`, string(d), updatedBefore, sqlLimit(limit))
}

func (s *Store) queryCandidates(ctx context.Context, query string, args ...any) ([]lifecycle.Candidate, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", translate(err))
	}
	defer rows.Close()

	var out []lifecycle.Candidate
	for rows.Next() {
		var (
			c           lifecycle.Candidate
			disposition string
		)
		if err := rows.Scan(&c.ID, &disposition, &c.UpdatedAt, &c.CreatedBotID); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		c.Disposition = lifecycle.Disposition(disposition)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidates: %w", translate(err))
	}
	return out, nil
}

// Verifications

func (s *Store) SaveVerification(ctx context.Context, v lifecycle.Verification) error {
	query := `
		INSERT INTO verifications (id, candidate_id, status, passed, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			candidate_id = EXCLUDED.candidate_id,
			status = EXCLUDED.status,
			passed = EXCLUDED.passed,
			updated_at = EXCLUDED.updated_at
	`
	_, err := s.execer(ctx).ExecContext(ctx, query, v.ID, v.CandidateID, string(v.Status), v.Passed, nonZero(v.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save verification: %w", translate(err))
	}
	return nil
}

func (s *Store) UpdateVerificationStatus(ctx context.Context, id string, status lifecycle.VerificationStatus, passed bool, at time.Time) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE verifications SET status = $2, passed = $3, updated_at = $4
		WHERE id = $1
	`, id, string(status), passed, at)
	if err != nil {
		return fmt.Errorf("update verification: %w", translate(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

const joinColumns = `
	SELECT c.id, c.disposition, c.updated_at, c.created_bot_id,
	       v.id, v.status, v.passed, v.updated_at
	FROM verifications v
	JOIN candidates c ON c.id = v.candidate_id
`

// ListQueuedVerifications returns QUEUED verifications whose candidate is in
// one of dispositions.
func (s *Store) ListQueuedVerifications(ctx context.Context, dispositions []lifecycle.Disposition, limit int) ([]lifecycle.CandidateVerification, error) {
	return s.queryJoined(ctx, joinColumns+`
		WHERE v.status = 'QUEUED' AND c.disposition = ANY($1)
		ORDER BY c.id, v.id
		LIMIT $2
	`, pq.Array(dispositionStrings(dispositions)), sqlLimit(limit))
}

// ListVerifiedNotAdvanced returns passed, completed verifications whose
// candidate is still in one of dispositions and has no created bot.
func (s *Store) ListVerifiedNotAdvanced(ctx context.Context, dispositions []lifecycle.Disposition, limit int) ([]lifecycle.CandidateVerification, error) {
	return s.queryJoined(ctx, joinColumns+`
		WHERE v.status = 'COMPLETED' AND v.passed
		  AND c.created_bot_id = '' AND c.disposition = ANY($1)
		ORDER BY c.id, v.id
		LIMIT $2
	`, pq.Array(dispositionStrings(dispositions)), sqlLimit(limit))
}

func (s *Store) queryJoined(ctx context.Context, query string, args ...any) ([]lifecycle.CandidateVerification, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list verifications: %w", translate(err))
	}
	defer rows.Close()

	var out []lifecycle.CandidateVerification
	for rows.Next() {
		var (
			cv          lifecycle.CandidateVerification
			disposition string
			status      string
		)
		if err := rows.Scan(
			&cv.Candidate.ID, &disposition, &cv.Candidate.UpdatedAt, &cv.Candidate.CreatedBotID,
			&cv.Verification.ID, &status, &cv.Verification.Passed, &cv.Verification.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan verification: %w", err)
		}
		cv.Candidate.Disposition = lifecycle.Disposition(disposition)
		cv.Verification.CandidateID = cv.Candidate.ID
		cv.Verification.Status = lifecycle.VerificationStatus(status)
		out = append(out, cv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate verifications: %w", translate(err))
	}
	return out, nil
}

func dispositionStrings(ds []lifecycle.Disposition) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = string(d)
	}
	return out
}

// sqlLimit turns a non-positive limit into NULL, which LIMIT treats as
// unbounded.
func sqlLimit(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}

func nonZero(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
