package adaptive

import (
	"fmt"

	"github.com/proctor-cat/backend/internal/irt"
	"github.com/proctor-cat/backend/internal/models"
	"github.com/proctor-cat/backend/internal/outcome"
)

// ResolveParams returns the item's IRT parameters, filling any that are
// absent from heuristics: discrimination from the observed success rate,
// difficulty from the author-facing level, guessing from the question type.
func ResolveParams(item models.Item) models.IRTParams {
	p := models.IRTParams{
		Discrimination: heuristicDiscrimination(item.SuccessRate()),
		Difficulty:     item.DifficultyLevel.Value(),
	}
	if item.QuestionType == models.QuestionMultipleChoice || item.QuestionType == "" {
		p.Guessing = models.DefaultMultipleChoiceGuessing
	}
	if item.Discrimination != nil {
		p.Discrimination = *item.Discrimination
	}
	if item.Difficulty != nil {
		p.Difficulty = *item.Difficulty
	}
	if item.Guessing != nil {
		p.Guessing = *item.Guessing
	}
	return p.Clamp()
}

// heuristicDiscrimination favours items whose success rate sits in the
// middle band, where responses separate candidates best. A negative rate
// means the item has never been served.
func heuristicDiscrimination(successRate float64) float64 {
	switch {
	case successRate < 0:
		return models.DefaultDiscrimination
	case successRate >= 0.3 && successRate <= 0.7:
		return 1.5
	case successRate >= 0.2 && successRate <= 0.8:
		return 1.2
	default:
		return 0.8
	}
}

// SelectNextItem picks the unasked candidate with maximum Fisher information
// at theta. Items whose topic quota is still open are preferred, and their
// information is boosted by QuotaBoost. Ties keep the first candidate seen.
// A nil value means no candidate is left; the caller then falls back to any
// unasked item.
func (e *Engine) SelectNextItem(theta float64, candidates []models.Item, askedIDs []string, targets, counts map[models.Topic]int) (res outcome.Result[*models.Item]) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("item selection panicked", "panic", fmt.Sprint(r))
			res = outcome.Degraded[*models.Item](nil, outcome.ReasonRecoveredPanic)
		}
	}()

	asked := make(map[string]struct{}, len(askedIDs))
	for _, id := range askedIDs {
		asked[id] = struct{}{}
	}

	var open, closed []int
	for i := range candidates {
		if _, done := asked[candidates[i].ID]; done {
			continue
		}
		if quotaOpen(candidates[i].Topic, targets, counts) {
			open = append(open, i)
		} else {
			closed = append(closed, i)
		}
	}

	pool := open
	if len(pool) == 0 {
		pool = closed
	}
	if len(pool) == 0 {
		return outcome.Degraded[*models.Item](nil, outcome.ReasonNoCandidates)
	}

	if !finite(theta) {
		e.log.Warn("non-finite theta in item selection, selecting at theta=0", "theta", theta)
		theta = 0
	}

	best := -1
	bestScore := -1.0
	for _, idx := range pool {
		score := e.selectionScore(theta, candidates[idx], targets, counts)
		if score > bestScore {
			best, bestScore = idx, score
		}
	}

	item := candidates[best]
	return outcome.Ok(&item)
}

// selectionScore is the boosted information used to rank candidates.
func (e *Engine) selectionScore(theta float64, item models.Item, targets, counts map[models.Topic]int) float64 {
	info := irt.Information(theta, ResolveParams(item))
	if quotaOpen(item.Topic, targets, counts) {
		info *= e.cfg.QuotaBoost
	}
	return info
}

func quotaOpen(topic models.Topic, targets, counts map[models.Topic]int) bool {
	target, ok := targets[topic]
	if !ok {
		return false
	}
	return counts[topic] < target
}

// quotasMet reports whether every topic quota has been reached. An empty set
// of targets is trivially met.
func quotasMet(targets, counts map[models.Topic]int) bool {
	for topic, target := range targets {
		if counts[topic] < target {
			return false
		}
	}
	return true
}
