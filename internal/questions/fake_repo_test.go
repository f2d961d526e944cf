package questions

import (
	"context"
	"fmt"
	"sync"

	"github.com/proctor-cat/backend/internal/models"
)

type memRepo struct {
	mu          sync.Mutex
	items       []models.Item
	answers     []AnswerRecord
	assessments []models.FraudAssessment
	sessions    []models.SessionLog
	runs        map[string]*models.CalibrationSummary
	failRecord  error
	failList    error
}

func newMemRepo(items ...models.Item) *memRepo {
	return &memRepo{items: items, runs: map[string]*models.CalibrationSummary{}}
}

func (m *memRepo) ListItems(context.Context) ([]models.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failList != nil {
		return nil, m.failList
	}
	return append([]models.Item(nil), m.items...), nil
}

func (m *memRepo) GetItem(_ context.Context, id string) (*models.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range m.items {
		if it.ID == id {
			it := it
			return &it, nil
		}
	}
	return nil, fmt.Errorf("item %s: %w", id, models.ErrNotFound)
}

func (m *memRepo) RecordAnswer(_ context.Context, rec AnswerRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failRecord != nil {
		return m.failRecord
	}
	for _, a := range m.answers {
		if a.SessionID == rec.SessionID && a.QuestionID == rec.QuestionID {
			return fmt.Errorf("question %s: %w", rec.QuestionID, ErrDuplicateAnswer)
		}
	}
	m.answers = append(m.answers, rec)
	return nil
}

func (m *memRepo) SaveFraudAssessment(_ context.Context, a models.FraudAssessment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assessments = append(m.assessments, a)
	return nil
}

func (m *memRepo) CompletedSessions(ctx context.Context) ([]models.SessionLog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions, nil
}

func (m *memRepo) CalibrationResults(context.Context) (map[string]models.CalibrationResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]models.CalibrationResult{}
	for _, it := range m.items {
		if r, ok := calibrationResult(it); ok {
			out[it.ID] = r
		}
	}
	return out, nil
}

func (m *memRepo) CreateCalibrationRun(_ context.Context, runID, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[runID] = &models.CalibrationSummary{RunID: runID, Status: models.RunQueued}
	return nil
}

func (m *memRepo) MarkCalibrationRunning(ctx context.Context, runID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[runID].Status = models.RunRunning
	return nil
}

func (m *memRepo) CompleteCalibrationRun(ctx context.Context, summary models.CalibrationSummary) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.items {
		if r, ok := summary.CalibratedItems[m.items[i].ID]; ok && r.CalibrationMethod != models.MethodDefault {
			m.items[i].ApplyCalibration(r)
		}
	}
	s := summary
	m.runs[summary.RunID] = &s
	return nil
}

func (m *memRepo) FailCalibrationRun(ctx context.Context, runID, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[runID] = &models.CalibrationSummary{RunID: runID, Status: models.RunError, Message: message}
	return nil
}

func (m *memRepo) GetCalibrationRun(_ context.Context, runID string) (*models.CalibrationSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return nil, fmt.Errorf("calibration run %s: %w", runID, models.ErrNotFound)
	}
	out := *run
	return &out, nil
}
