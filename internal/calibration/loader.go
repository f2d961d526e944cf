package calibration

import (
	"math"
	"sort"

	"github.com/proctor-cat/backend/internal/models"
	"gonum.org/v1/gonum/stat"
)

// ResponseRow is a ResponseRecord joined with aggregate statistics of its
// question, used as model features.
type ResponseRow struct {
	models.ResponseRecord

	QuestionSuccessMean float64
	QuestionSuccessStd  float64
	QuestionThetaMean   float64
	QuestionThetaStd    float64
	QuestionTimeMean    float64
	QuestionTimeStd     float64
}

type ResponseTable struct {
	Rows []ResponseRow
}

func (t ResponseTable) Empty() bool {
	return len(t.Rows) == 0
}

// ItemIDs returns the distinct question ids in sorted order.
func (t ResponseTable) ItemIDs() []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, r := range t.Rows {
		if _, ok := seen[r.QuestionID]; !ok {
			seen[r.QuestionID] = struct{}{}
			ids = append(ids, r.QuestionID)
		}
	}
	sort.Strings(ids)
	return ids
}

// ByItem groups the rows per question id, preserving input order.
func (t ResponseTable) ByItem() map[string][]ResponseRow {
	out := make(map[string][]ResponseRow)
	for _, r := range t.Rows {
		out[r.QuestionID] = append(out[r.QuestionID], r)
	}
	return out
}

// LoadHistoricalData flattens session documents into one row per
// (session, question). Theta is the per-answer estimate when the session
// recorded one, otherwise the session's final adaptive score; answers with
// neither are dropped.
func (e *Engine) LoadHistoricalData(sessions []models.SessionLog) ResponseTable {
	if len(sessions) == 0 {
		e.log.Warn("no historical sessions supplied")
		return ResponseTable{}
	}

	var rows []ResponseRow
	dropped := 0
	for _, s := range sessions {
		qids := make([]string, 0, len(s.Answers))
		for qid := range s.Answers {
			qids = append(qids, qid)
		}
		sort.Strings(qids)

		for _, qid := range qids {
			ans := s.Answers[qid]
			theta, ok := answerTheta(s, ans)
			if !ok {
				dropped++
				continue
			}
			rt := e.cfg.MissingResponseTime
			if timing, ok := s.TimingData[qid]; ok && timing.TimeTaken != nil && finite(*timing.TimeTaken) && *timing.TimeTaken > 0 {
				rt = *timing.TimeTaken
			}
			rows = append(rows, ResponseRow{ResponseRecord: models.ResponseRecord{
				SessionID:       s.SessionID,
				QuestionID:      qid,
				CandidateTheta:  theta,
				IsCorrect:       ans.Correct,
				ResponseTime:    rt,
				LogResponseTime: math.Log(math.Max(1.0, rt)),
			}})
		}
	}

	if dropped > 0 {
		e.log.Warn("dropped answers without an ability estimate", "count", dropped)
	}
	if len(rows) == 0 {
		e.log.Warn("historical sessions contained no usable answers", "sessions", len(sessions))
		return ResponseTable{}
	}

	attachQuestionStats(rows)
	e.log.Info("loaded historical responses", "sessions", len(sessions), "rows", len(rows))
	return ResponseTable{Rows: rows}
}

func answerTheta(s models.SessionLog, ans models.SessionAnswer) (float64, bool) {
	if ans.ThetaAtAnswer != nil && finite(*ans.ThetaAtAnswer) {
		return *ans.ThetaAtAnswer, true
	}
	if s.AdaptiveScore != nil && finite(*s.AdaptiveScore) {
		return *s.AdaptiveScore, true
	}
	return 0, false
}

// attachQuestionStats joins per-question mean and sample standard deviation
// of correctness, theta and response time back onto every row. A question
// answered once has a standard deviation of zero.
func attachQuestionStats(rows []ResponseRow) {
	type cols struct{ success, theta, time []float64 }
	byQ := make(map[string]*cols)
	for _, r := range rows {
		c, ok := byQ[r.QuestionID]
		if !ok {
			c = &cols{}
			byQ[r.QuestionID] = c
		}
		c.success = append(c.success, boolFloat(r.IsCorrect))
		c.theta = append(c.theta, r.CandidateTheta)
		c.time = append(c.time, r.ResponseTime)
	}

	type agg struct{ sm, ss, tm, ts, rm, rs float64 }
	stats := make(map[string]agg, len(byQ))
	for q, c := range byQ {
		var a agg
		a.sm, a.ss = meanSampleStd(c.success)
		a.tm, a.ts = meanSampleStd(c.theta)
		a.rm, a.rs = meanSampleStd(c.time)
		stats[q] = a
	}

	for i := range rows {
		a := stats[rows[i].QuestionID]
		rows[i].QuestionSuccessMean = a.sm
		rows[i].QuestionSuccessStd = a.ss
		rows[i].QuestionThetaMean = a.tm
		rows[i].QuestionThetaStd = a.ts
		rows[i].QuestionTimeMean = a.rm
		rows[i].QuestionTimeStd = a.rs
	}
}

func meanSampleStd(x []float64) (float64, float64) {
	if len(x) < 2 {
		return stat.Mean(x, nil), 0
	}
	return stat.MeanStdDev(x, nil)
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
