package questions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/proctor-cat/backend/internal/models"
)

// AnswerRecord is everything persisted for one answered question.
// ThetaAtAnswer is the estimate in force before the answer was scored.
type AnswerRecord struct {
	SessionID     string
	UserID        string
	QuestionID    string
	IsCorrect     bool
	ThetaAtAnswer float64
	ResponseTime  float64
	Updated       models.AbilityEstimate
	Decision      models.TerminationDecision
}

// Repository is the persistence the service needs. Store implements it on
// Postgres.
type Repository interface {
	ListItems(ctx context.Context) ([]models.Item, error)
	GetItem(ctx context.Context, id string) (*models.Item, error)
	RecordAnswer(ctx context.Context, rec AnswerRecord) error
	SaveFraudAssessment(ctx context.Context, a models.FraudAssessment) error

	CompletedSessions(ctx context.Context) ([]models.SessionLog, error)
	CalibrationResults(ctx context.Context) (map[string]models.CalibrationResult, error)
	CreateCalibrationRun(ctx context.Context, runID, requestedBy string) error
	MarkCalibrationRunning(ctx context.Context, runID string) error
	CompleteCalibrationRun(ctx context.Context, summary models.CalibrationSummary) error
	FailCalibrationRun(ctx context.Context, runID, message string) error
	GetCalibrationRun(ctx context.Context, runID string) (*models.CalibrationSummary, error)
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// ── Item Bank ───────────────────────────────────────────

const itemColumns = `id, topic, difficulty_level, question_type,
	discrimination, difficulty, guessing, times_served, times_correct,
	sample_size, pseudo_r2, log_likelihood, aic, bic, convergence,
	calibration_method, calibrated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(row rowScanner) (models.Item, error) {
	var (
		it                     models.Item
		a, b, c                sql.NullFloat64
		sampleSize             sql.NullInt64
		pseudoR2, ll, aic, bic sql.NullFloat64
		convergence            sql.NullBool
		method                 sql.NullString
		calibratedAt           sql.NullTime
	)
	err := row.Scan(&it.ID, &it.Topic, &it.DifficultyLevel, &it.QuestionType,
		&a, &b, &c, &it.TimesServed, &it.TimesCorrect,
		&sampleSize, &pseudoR2, &ll, &aic, &bic, &convergence,
		&method, &calibratedAt)
	if err != nil {
		return it, err
	}
	it.Discrimination = nullFloat(a)
	it.Difficulty = nullFloat(b)
	it.Guessing = nullFloat(c)
	if method.Valid {
		it.Calibration = &models.CalibrationMetadata{
			SampleSize:        int(sampleSize.Int64),
			PseudoR2:          pseudoR2.Float64,
			LogLikelihood:     ll.Float64,
			AIC:               aic.Float64,
			BIC:               bic.Float64,
			Convergence:       convergence.Bool,
			CalibrationMethod: models.CalibrationMethod(method.String),
			CalibratedAt:      calibratedAt.Time,
		}
	}
	return it, nil
}

func (s *Store) ListItems(ctx context.Context) ([]models.Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []models.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *Store) GetItem(ctx context.Context, id string) (*models.Item, error) {
	it, err := scanItem(s.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("item %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return &it, nil
}

// ── Sessions ────────────────────────────────────────────

// RecordAnswer stores the answer, bumps the item's served counters and moves
// the session to its new ability state in one transaction. The session row is
// created on its first answer.
func (s *Store) RecordAnswer(ctx context.Context, rec AnswerRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var reason sql.NullString
	var completedAt sql.NullTime
	if rec.Decision.Stop {
		reason = sql.NullString{String: string(rec.Decision.Reason), Valid: true}
		completedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO cat_sessions (id, user_id, theta, standard_error, information_sum,
		                           questions_answered, terminated, termination_reason, completed_at)
		 VALUES ($1, $2, $3, $4, $5, 1, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE
		 SET theta = EXCLUDED.theta, standard_error = EXCLUDED.standard_error,
		     information_sum = EXCLUDED.information_sum,
		     questions_answered = cat_sessions.questions_answered + 1,
		     terminated = EXCLUDED.terminated, termination_reason = EXCLUDED.termination_reason,
		     completed_at = EXCLUDED.completed_at`,
		rec.SessionID, rec.UserID, rec.Updated.Theta, rec.Updated.StandardError, rec.Updated.InformationSum,
		rec.Decision.Stop, reason, completedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO session_answers (session_id, question_id, is_correct, theta_at_answer, response_time_seconds)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (session_id, question_id) DO NOTHING`,
		rec.SessionID, rec.QuestionID, rec.IsCorrect, rec.ThetaAtAnswer, rec.ResponseTime,
	)
	if err != nil {
		return fmt.Errorf("insert answer: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("question %s already answered in session %s: %w", rec.QuestionID, rec.SessionID, ErrDuplicateAnswer)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE items SET times_served = times_served + 1,
		                  times_correct = times_correct + CASE WHEN $2 THEN 1 ELSE 0 END
		 WHERE id = $1`,
		rec.QuestionID, rec.IsCorrect,
	)
	if err != nil {
		return fmt.Errorf("update item counters: %w", err)
	}

	return tx.Commit()
}

func (s *Store) SaveFraudAssessment(ctx context.Context, a models.FraudAssessment) error {
	analysis, err := json.Marshal(a.Analysis)
	if err != nil {
		return fmt.Errorf("marshal analysis: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO fraud_assessments (id, session_id, fraud_score, risk_level, flags, analysis, scanned_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.SessionID, a.FraudScore, a.RiskLevel, pq.Array(a.Flags), analysis, a.ScannedAt,
	)
	if err != nil {
		return fmt.Errorf("save fraud assessment: %w", err)
	}
	return nil
}

// CompletedSessions returns every terminated session in the shape the
// calibration engine reads.
func (s *Store) CompletedSessions(ctx context.Context) ([]models.SessionLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT cs.id, cs.theta, sa.question_id, sa.is_correct, sa.theta_at_answer, sa.response_time_seconds
		 FROM cat_sessions cs
		 JOIN session_answers sa ON sa.session_id = cs.id
		 WHERE cs.terminated
		 ORDER BY cs.id, sa.answered_at`)
	if err != nil {
		return nil, fmt.Errorf("completed sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.SessionLog
	index := map[string]int{}
	for rows.Next() {
		var (
			sessionID, questionID string
			finalTheta            float64
			correct               bool
			thetaAt, rt           sql.NullFloat64
		)
		if err := rows.Scan(&sessionID, &finalTheta, &questionID, &correct, &thetaAt, &rt); err != nil {
			return nil, fmt.Errorf("scan session answer: %w", err)
		}
		i, ok := index[sessionID]
		if !ok {
			score := finalTheta
			sessions = append(sessions, models.SessionLog{
				SessionID:     sessionID,
				AdaptiveScore: &score,
				Answers:       map[string]models.SessionAnswer{},
				TimingData:    map[string]models.SessionTiming{},
			})
			i = len(sessions) - 1
			index[sessionID] = i
		}
		sessions[i].Answers[questionID] = models.SessionAnswer{Correct: correct, ThetaAtAnswer: nullFloat(thetaAt)}
		sessions[i].TimingData[questionID] = models.SessionTiming{TimeTaken: nullFloat(rt)}
	}
	return sessions, rows.Err()
}

// ── Calibration Runs ────────────────────────────────────

func (s *Store) CalibrationResults(ctx context.Context) (map[string]models.CalibrationResult, error) {
	items, err := s.ListItems(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]models.CalibrationResult)
	for _, it := range items {
		if r, ok := calibrationResult(it); ok {
			out[it.ID] = r
		}
	}
	return out, nil
}

func (s *Store) CreateCalibrationRun(ctx context.Context, runID, requestedBy string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO calibration_runs (id, status, requested_by) VALUES ($1, $2, $3)`,
		runID, models.RunQueued, requestedBy,
	)
	if err != nil {
		return fmt.Errorf("create calibration run: %w", err)
	}
	return nil
}

func (s *Store) MarkCalibrationRunning(ctx context.Context, runID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE calibration_runs SET status = $1 WHERE id = $2`, models.RunRunning, runID)
	return err
}

// CompleteCalibrationRun writes the calibrated items and the run summary
// together; a failure leaves the bank untouched. DEFAULT results are kept in
// the summary only, so thin samples never overwrite authored parameters.
func (s *Store) CompleteCalibrationRun(ctx context.Context, summary models.CalibrationSummary) error {
	body, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for id, r := range summary.CalibratedItems {
		if r.CalibrationMethod == models.MethodDefault {
			continue
		}
		p := r.Params.Clamp()
		_, err := tx.ExecContext(ctx,
			`UPDATE items
			 SET discrimination = $1, difficulty = $2, guessing = $3,
			     sample_size = $4, pseudo_r2 = $5, log_likelihood = $6, aic = $7, bic = $8,
			     convergence = $9, calibration_method = $10, calibrated_at = $11
			 WHERE id = $12`,
			p.Discrimination, p.Difficulty, p.Guessing,
			r.SampleSize, r.PseudoR2, r.LogLikelihood, r.AIC, r.BIC,
			r.Convergence, r.CalibrationMethod, r.CalibratedAt, id,
		)
		if err != nil {
			return fmt.Errorf("apply calibration to %s: %w", id, err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE calibration_runs SET status = $1, message = $2, summary = $3, finished_at = $4 WHERE id = $5`,
		summary.Status, summary.Message, body, summary.FinishedAt, summary.RunID,
	)
	if err != nil {
		return fmt.Errorf("complete calibration run: %w", err)
	}
	return tx.Commit()
}

func (s *Store) FailCalibrationRun(ctx context.Context, runID, message string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE calibration_runs SET status = $1, message = $2, finished_at = NOW() WHERE id = $3`,
		models.RunError, message, runID,
	)
	return err
}

func (s *Store) GetCalibrationRun(ctx context.Context, runID string) (*models.CalibrationSummary, error) {
	var (
		status     string
		message    sql.NullString
		body       []byte
		createdAt  time.Time
		finishedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT status, message, summary, created_at, finished_at FROM calibration_runs WHERE id = $1`,
		runID,
	).Scan(&status, &message, &body, &createdAt, &finishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("calibration run %s: %w", runID, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get calibration run: %w", err)
	}

	var summary models.CalibrationSummary
	if len(body) > 0 {
		if err := json.Unmarshal(body, &summary); err != nil {
			return nil, fmt.Errorf("decode calibration summary: %w", err)
		}
	}
	summary.RunID = runID
	summary.Status = models.RunStatus(status)
	summary.Message = message.String
	if summary.StartedAt.IsZero() {
		summary.StartedAt = createdAt
	}
	if finishedAt.Valid {
		summary.FinishedAt = finishedAt.Time
	}
	return &summary, nil
}

// calibrationResult rebuilds the stored calibration of an item.
func calibrationResult(it models.Item) (models.CalibrationResult, bool) {
	if it.Calibration == nil || it.Discrimination == nil || it.Difficulty == nil || it.Guessing == nil {
		return models.CalibrationResult{}, false
	}
	m := it.Calibration
	return models.CalibrationResult{
		ItemID: it.ID,
		Params: models.IRTParams{
			Discrimination: *it.Discrimination,
			Difficulty:     *it.Difficulty,
			Guessing:       *it.Guessing,
		},
		SampleSize:        m.SampleSize,
		PseudoR2:          m.PseudoR2,
		LogLikelihood:     m.LogLikelihood,
		AIC:               m.AIC,
		BIC:               m.BIC,
		Convergence:       m.Convergence,
		CalibrationMethod: m.CalibrationMethod,
		CalibratedAt:      m.CalibratedAt,
	}, true
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
