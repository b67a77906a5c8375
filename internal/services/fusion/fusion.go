// Package fusion blends the AI vote with the integrated rule decision.
package fusion

import (
	"context"

	"github.com/vadiminshakov/fusiontrader/internal/domain"
)

var weightsByRegime = map[domain.Regime]domain.FusionWeights{
	domain.RegimeTrend:   {AI: 0.7, Rule: 0.3},
	domain.RegimeRange:   {AI: 0.3, Rule: 0.7},
	domain.RegimeHighVol: {AI: 0.5, Rule: 0.5},
	domain.RegimeLowVol:  {AI: 0.4, Rule: 0.6},
	domain.RegimeNormal:  {AI: 0.5, Rule: 0.5},
}

// Weights returns the AI/rule split for regime. Unknown regimes split evenly.
func Weights(r domain.Regime) domain.FusionWeights {
	if w, ok := weightsByRegime[r]; ok {
		return w
	}
	return weightsByRegime[domain.RegimeNormal]
}

// Fuse computes the signed blended score. A zero score defers to the AI decision.
func Fuse(ai domain.AIVote, rule domain.IntegratedDecision, r domain.Regime) domain.FusedDecision {
	w := Weights(r)
	score := float64(ai.Decision.Sign())*ai.Confidence*w.AI +
		float64(rule.Decision.Sign())*rule.Confidence*w.Rule

	var decision domain.Decision
	switch {
	case score > 0:
		decision = domain.DecisionBuy
	case score < 0:
		decision = domain.DecisionSell
	case ai.Decision != "":
		decision = ai.Decision
	default:
		decision = domain.DecisionHold
	}

	return domain.FusedDecision{
		Decision: decision,
		Score:    score,
		Weights:  w,
		AI:       ai,
		Rule:     rule,
		Regime:   r,
	}
}

// AISource produces the AI side of fusion.
type AISource interface {
	Vote(ctx context.Context, entry domain.MarketEntry, votes domain.Votes, r domain.Regime) domain.AIVote
}

// StubAI always answers HOLD with confidence 0.5.
type StubAI struct{}

func (StubAI) Vote(context.Context, domain.MarketEntry, domain.Votes, domain.Regime) domain.AIVote {
	return domain.AIVote{Decision: domain.DecisionHold, Confidence: 0.5}
}
