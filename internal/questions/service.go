package questions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/proctor-cat/backend/internal/adaptive"
	"github.com/proctor-cat/backend/internal/calibration"
	"github.com/proctor-cat/backend/internal/logger"
	"github.com/proctor-cat/backend/internal/metrics"
	"github.com/proctor-cat/backend/internal/models"
	"github.com/proctor-cat/backend/internal/worker"
)

const runStatusTimeout = 5 * time.Second

var (
	ErrDuplicateAnswer = errors.New("answer already recorded")
	ErrNotCalibrated   = errors.New("item has not been calibrated")
)

type Service struct {
	store           Repository
	engine          *adaptive.Engine
	calibrator      *calibration.Engine
	pool            *worker.Pool[models.CalibrationSummary]
	metrics         *metrics.Metrics
	log             *logger.Logger
	misfitThreshold float64
}

func NewService(store Repository, engine *adaptive.Engine, calibrator *calibration.Engine,
	pool *worker.Pool[models.CalibrationSummary], m *metrics.Metrics, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	if m == nil {
		m = metrics.New()
	}
	return &Service{
		store:           store,
		engine:          engine,
		calibrator:      calibrator,
		pool:            pool,
		metrics:         m,
		log:             log.Component("questions"),
		misfitThreshold: calibration.DefaultMisfitThreshold,
	}
}

func (s *Service) SetMisfitThreshold(t float64) {
	s.misfitThreshold = t
}

// ── Answer Submission ───────────────────────────────────

// SubmitAnswer scores one answer: it updates the ability estimate, checks the
// stopping rules and, if the session continues, picks the next item. Degraded engine results are
// reported in the outcome rather than failing the request.
func (s *Service) SubmitAnswer(ctx context.Context, userID string, ev models.AnswerEvent) (*models.AnswerOutcome, error) {
	if err := ev.Validate(); err != nil {
		return nil, fmt.Errorf("invalid answer event: %w", err)
	}

	out := &models.AnswerOutcome{}
	degraded := func(op, reason string) {
		out.Degraded = append(out.Degraded, op+":"+reason)
	}

	upd := s.engine.UpdateAbility(ev.Estimate(), ev.ItemParams, ev.IsCorrect)
	s.metrics.RecordEngineCall("update_ability", upd.Degraded, upd.Reason)
	if upd.Degraded {
		degraded("update_ability", upd.Reason)
	}
	est := upd.Value
	out.NewTheta = est.Theta
	out.NewSE = est.StandardError
	out.NewInfoSum = est.InformationSum

	asked, counts := afterAnswer(ev)

	elapsed := time.Duration(ev.ElapsedSeconds * float64(time.Second))
	term := s.engine.ShouldTerminate(est.StandardError, len(asked), elapsed, ev.TopicRequirements, counts)
	s.metrics.RecordEngineCall("should_terminate", term.Degraded, term.Reason)
	if term.Degraded {
		degraded("should_terminate", term.Reason)
	}
	out.ShouldTerminate = term.Value.Stop
	out.TerminationReason = term.Value.Reason

	if out.ShouldTerminate {
		s.metrics.TerminationsTotal.WithLabelValues(string(term.Value.Reason)).Inc()
	} else {
		items, err := s.store.ListItems(ctx)
		if err != nil {
			return nil, fmt.Errorf("load item bank: %w", err)
		}
		sel := s.engine.SelectNextItem(est.Theta, items, asked, ev.TopicRequirements, counts)
		s.metrics.RecordEngineCall("select_next_item", sel.Degraded, sel.Reason)
		out.NextItem = sel.Value
		if out.NextItem == nil {
			out.NextItem = firstUnasked(items, asked)
			if out.NextItem == nil {
				degraded("select_next_item", sel.Reason)
				s.log.Warn("item bank exhausted for session", "session_id", ev.SessionID, "asked", len(asked))
			}
		}
	}

	err := s.store.RecordAnswer(ctx, AnswerRecord{
		SessionID:     ev.SessionID,
		UserID:        userID,
		QuestionID:    ev.QuestionID,
		IsCorrect:     ev.IsCorrect,
		ThetaAtAnswer: ev.CurrentTheta,
		ResponseTime:  ev.ResponseTimeSeconds,
		Updated:       est,
		Decision:      term.Value,
	})
	if errors.Is(err, ErrDuplicateAnswer) {
		return nil, err
	}
	if err != nil {
		s.log.Warn("failed to record answer", "session_id", ev.SessionID, "question_id", ev.QuestionID, "error", err)
	}

	return out, nil
}

// afterAnswer returns the asked ids and topic counts including the answer
// being scored. A question already listed as asked is not counted twice.
func afterAnswer(ev models.AnswerEvent) ([]string, map[models.Topic]int) {
	asked := make([]string, 0, len(ev.AskedQuestionIDs)+1)
	seen := false
	for _, id := range ev.AskedQuestionIDs {
		if id == ev.QuestionID {
			seen = true
		}
		asked = append(asked, id)
	}
	counts := make(map[models.Topic]int, len(ev.TopicCounts)+1)
	for t, n := range ev.TopicCounts {
		counts[t] = n
	}
	if !seen {
		asked = append(asked, ev.QuestionID)
		if ev.Topic != "" {
			counts[ev.Topic]++
		}
	}
	return asked, counts
}

func firstUnasked(items []models.Item, asked []string) *models.Item {
	done := make(map[string]struct{}, len(asked))
	for _, id := range asked {
		done[id] = struct{}{}
	}
	for i := range items {
		if _, ok := done[items[i].ID]; !ok {
			it := items[i]
			return &it
		}
	}
	return nil
}

// ── Fraud ───────────────────────────────────────────────

func (s *Service) ScanSession(ctx context.Context, req models.FraudScanRequest) (*models.FraudAssessment, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid fraud scan: %w", err)
	}

	res := s.engine.DetectFraud(req.Session, req.ResponseTimes, req.Correctness, req.Difficulties)
	s.metrics.RecordEngineCall("detect_fraud", res.Degraded, res.Reason)
	assessment := res.Value
	assessment.ID = uuid.NewString()
	s.metrics.FraudScansTotal.WithLabelValues(string(assessment.RiskLevel)).Inc()

	if err := s.store.SaveFraudAssessment(ctx, assessment); err != nil {
		return nil, fmt.Errorf("save fraud assessment: %w", err)
	}
	if assessment.RiskLevel == models.RiskHigh {
		s.log.Warn("high fraud risk", "session_id", assessment.SessionID, "score", assessment.FraudScore, "flags", assessment.Flags)
	}
	return &assessment, nil
}

// ── Calibration ─────────────────────────────────────────

// EnqueueCalibration records a queued run and hands it to the worker pool.
func (s *Service) EnqueueCalibration(ctx context.Context, requestedBy string) (string, error) {
	runID := uuid.NewString()
	if err := s.store.CreateCalibrationRun(ctx, runID, requestedBy); err != nil {
		return "", err
	}
	if err := s.pool.Submit(runID, s.calibrationJob(runID)); err != nil {
		if ferr := s.store.FailCalibrationRun(ctx, runID, err.Error()); ferr != nil {
			s.log.Error("failed to mark calibration run failed", "run_id", runID, "error", ferr)
		}
		return "", fmt.Errorf("queue calibration run: %w", err)
	}
	s.log.Info("calibration run queued", "run_id", runID, "requested_by", requestedBy)
	return runID, nil
}

func (s *Service) calibrationJob(runID string) worker.Job[models.CalibrationSummary] {
	return func(ctx context.Context) models.CalibrationSummary {
		start := time.Now()
		log := s.log.With("run_id", runID)

		fail := func(msg string) models.CalibrationSummary {
			// ctx is cancelled on shutdown; the run must still reach a final status.
			wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), runStatusTimeout)
			defer cancel()
			if err := s.store.FailCalibrationRun(wctx, runID, msg); err != nil {
				log.Error("failed to mark calibration run failed", "error", err)
			}
			s.metrics.RecordCalibrationRun(string(models.RunError), time.Since(start))
			return models.CalibrationSummary{RunID: runID, Status: models.RunError, Message: msg}
		}

		if err := s.store.MarkCalibrationRunning(ctx, runID); err != nil {
			log.Warn("failed to mark calibration run running", "error", err)
		}
		sessions, err := s.store.CompletedSessions(ctx)
		if err != nil {
			return fail("load sessions: " + err.Error())
		}

		summary := s.calibrator.CalibrateAll(ctx, sessions)
		summary.RunID = runID
		if summary.Status != models.RunCompleted {
			return fail(summary.Message)
		}
		if err := s.store.CompleteCalibrationRun(ctx, summary); err != nil {
			return fail("persist calibration: " + err.Error())
		}

		for _, r := range summary.CalibratedItems {
			s.metrics.ItemCalibrationsTotal.WithLabelValues(string(r.CalibrationMethod)).Inc()
		}
		s.metrics.RecordCalibrationRun(string(summary.Status), time.Since(start))
		return summary
	}
}

// WatchCalibrations drains finished runs from the pool until it closes.
func (s *Service) WatchCalibrations() {
	for r := range s.pool.Results() {
		s.log.Info("calibration run finished",
			"run_id", r.JobID,
			"status", r.Output.Status,
			"items", r.Output.TotalQuestions,
			"converged", r.Output.SuccessfulCalibrations,
		)
	}
}

func (s *Service) GetCalibrationRun(ctx context.Context, runID string) (*models.CalibrationSummary, error) {
	return s.store.GetCalibrationRun(ctx, runID)
}

// Misfits ranks the stored calibrations that need review. A nil threshold
// uses the configured default.
func (s *Service) Misfits(ctx context.Context, threshold *float64) ([]models.MisfitItem, error) {
	results, err := s.store.CalibrationResults(ctx)
	if err != nil {
		return nil, fmt.Errorf("load calibration results: %w", err)
	}
	t := s.misfitThreshold
	if threshold != nil {
		t = *threshold
	}
	return calibration.DetectMisfittingItems(results, t), nil
}

func (s *Service) ItemQuality(ctx context.Context, itemID string) (*models.QualityReport, error) {
	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	result, ok := calibrationResult(*item)
	if !ok {
		return nil, fmt.Errorf("item %s: %w", itemID, ErrNotCalibrated)
	}
	report := calibration.ValidateItemQuality(itemID, result)
	return &report, nil
}
