package domain

// StrategyVote is one rule strategy's verdict.
type StrategyVote struct {
	Decision   Decision `json:"decision"`
	Confidence float64  `json:"confidence"`
	Reasons    []string `json:"reasons"`
}

// HoldVote builds a zero-confidence HOLD vote with the given reasons.
func HoldVote(reasons ...string) StrategyVote {
	return StrategyVote{Decision: DecisionHold, Confidence: 0, Reasons: reasons}
}

// Votes groups the three rule strategy votes.
type Votes struct {
	Scalp StrategyVote `json:"scalp"`
	Day   StrategyVote `json:"day"`
	Swing StrategyVote `json:"swing"`
}

// ByStrategy returns the vote registered under name (scalp, day, swing).
func (v Votes) ByStrategy(name string) (StrategyVote, bool) {
	switch name {
	case "scalp":
		return v.Scalp, true
	case "day":
		return v.Day, true
	case "swing":
		return v.Swing, true
	}
	return StrategyVote{}, false
}

// All returns the votes in scalp, day, swing order.
func (v Votes) All() []StrategyVote {
	return []StrategyVote{v.Scalp, v.Day, v.Swing}
}

// IntegratedDecision is the rule-based merge of the three votes.
type IntegratedDecision struct {
	Decision   Decision           `json:"decision"`
	Confidence float64            `json:"confidence"`
	Score      float64            `json:"score"`
	NumEntries int                `json:"num_entries"`
	Threshold  float64            `json:"threshold"`
	Regime     Regime             `json:"regime"`
	Mode       string             `json:"mode"`
	Weights    map[string]float64 `json:"weights"`
}

// AIVote is the model-backed (or stub) directional opinion.
type AIVote struct {
	Decision   Decision `json:"decision"`
	Confidence float64  `json:"confidence"`
}

// FusionWeights splits influence between the AI and the rule decision.
type FusionWeights struct {
	AI   float64 `json:"ai"`
	Rule float64 `json:"rule"`
}

// FusedDecision blends the AI vote and the integrated rule decision.
type FusedDecision struct {
	Decision Decision           `json:"decision"`
	Score    float64            `json:"score"`
	Weights  FusionWeights      `json:"weights"`
	AI       AIVote             `json:"ai"`
	Rule     IntegratedDecision `json:"rule"`
	Regime   Regime             `json:"regime"`
}
