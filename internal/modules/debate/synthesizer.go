package debate

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/portfolio-sentry/internal/domain"
)

// disagreementPenalty is subtracted from the neutral stance's confidence
// when all three stances propose different actions.
const disagreementPenalty = 0.2

// StanceEvaluator produces one stance's argument for a position. All three
// stances receive identical factual inputs; only the framing differs.
type StanceEvaluator interface {
	Evaluate(ctx context.Context, stance domain.Stance, assessment domain.PositionAssessment, market domain.MarketContext) (domain.DebateArgument, error)
}

// Synthesizer runs the three-way stance debate and reconciles the
// arguments into one judged decision. State-free per call.
type Synthesizer struct {
	evaluator StanceEvaluator
	timeout   time.Duration
	log       zerolog.Logger
}

// NewSynthesizer creates a new debate synthesizer.
func NewSynthesizer(evaluator StanceEvaluator, timeout time.Duration, log zerolog.Logger) *Synthesizer {
	return &Synthesizer{
		evaluator: evaluator,
		timeout:   timeout,
		log:       log.With().Str("service", "debate").Logger(),
	}
}

// Debate issues the three stance evaluations concurrently and judges the
// result. If any evaluation fails, the decision degrades to the
// deterministic scorer's action; the debate never blocks a monitoring
// cycle beyond its timeout.
func (s *Synthesizer) Debate(ctx context.Context, assessment domain.PositionAssessment, market domain.MarketContext) domain.JudgedDecision {
	stances := []domain.Stance{domain.StanceAggressive, domain.StanceConservative, domain.StanceNeutral}
	args := make([]domain.DebateArgument, len(stances))
	errs := make([]error, len(stances))

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var wg sync.WaitGroup
	for i, stance := range stances {
		wg.Add(1)
		go func(i int, stance domain.Stance) {
			defer wg.Done()
			args[i], errs[i] = s.evaluator.Evaluate(callCtx, stance, assessment, market)
		}(i, stance)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			s.log.Warn().
				Err(err).
				Str("stance", string(stances[i])).
				Str("symbol", assessment.Symbol).
				Msg("Stance evaluation failed, degrading to deterministic scoring")
			return s.degraded(assessment, err)
		}
	}

	return s.judge(assessment, args)
}

// degraded falls back to the scorer's deterministic action. The three
// arguments are never partially persisted; a degraded decision carries
// none.
func (s *Synthesizer) degraded(assessment domain.PositionAssessment, cause error) domain.JudgedDecision {
	return domain.JudgedDecision{
		Symbol:      assessment.Symbol,
		FinalAction: assessment.Action,
		Confidence:  0.5,
		RiskScore:   baseRiskScore(assessment.RiskLevel),
		Rationale: fmt.Sprintf(
			"Degraded mode (%v): falling back to deterministic risk scoring. %s",
			cause, assessment.Reason,
		),
		Degraded:  true,
		CreatedAt: time.Now(),
	}
}

// judge reconciles the three arguments into a final decision.
//
// Rules: an action backed by more stances wins unconditionally, with
// confidence equal to the mean of the agreeing confidences. Equal vote
// counts fall back to confidence-weighted support, then break toward the
// more conservative action. When all three stances disagree, the neutral
// stance's action wins with its confidence lowered by a fixed penalty.
func (s *Synthesizer) judge(assessment domain.PositionAssessment, args []domain.DebateArgument) domain.JudgedDecision {
	action, confidence, rationale := reconcile(args)

	decision := domain.JudgedDecision{
		Symbol:      assessment.Symbol,
		FinalAction: action,
		Confidence:  round2(confidence),
		RiskScore:   riskScore(assessment, args),
		Rationale:   rationale,
		Arguments:   args,
		CreatedAt:   time.Now(),
	}

	s.log.Debug().
		Str("symbol", assessment.Symbol).
		Str("final_action", string(action)).
		Float64("confidence", decision.Confidence).
		Float64("risk_score", decision.RiskScore).
		Msg("Debate judged")

	return decision
}

func reconcile(args []domain.DebateArgument) (domain.Action, float64, string) {
	byAction := make(map[domain.Action][]domain.DebateArgument)
	for _, arg := range args {
		byAction[arg.Action] = append(byAction[arg.Action], arg)
	}

	// All three disagree: default to the neutral stance, penalized.
	if len(byAction) == len(args) && len(args) == 3 {
		neutral := argumentFor(args, domain.StanceNeutral)
		confidence := math.Max(0, neutral.Confidence-disagreementPenalty)
		rationale := fmt.Sprintf(
			"All three stances disagree (%s); defaulting to the neutral stance with reduced confidence. %s",
			describeVotes(args), neutral.Reasoning,
		)
		return neutral.Action, confidence, rationale
	}

	// Majority rules: the action with the most votes wins no matter how
	// confident the dissenter is. Equal vote counts fall back to
	// confidence-weighted support, then to the more conservative action
	// (capital preservation default).
	type candidate struct {
		action  domain.Action
		support float64
		confs   []float64
	}
	candidates := make([]candidate, 0, len(byAction))
	for action, group := range byAction {
		c := candidate{action: action}
		for _, arg := range group {
			c.support += arg.Confidence
			c.confs = append(c.confs, arg.Confidence)
		}
		candidates = append(candidates, c)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if len(candidates[i].confs) != len(candidates[j].confs) {
			return len(candidates[i].confs) > len(candidates[j].confs)
		}
		if candidates[i].support != candidates[j].support {
			return candidates[i].support > candidates[j].support
		}
		return candidates[i].action.ConservativeRank() > candidates[j].action.ConservativeRank()
	})

	winner := candidates[0]
	confidence := stat.Mean(winner.confs, nil)
	rationale := fmt.Sprintf(
		"%d of %d stances favor %s (%s). %s",
		len(winner.confs), len(args), winner.action, describeVotes(args),
		argumentFor(args, domain.StanceNeutral).Reasoning,
	)
	return winner.action, confidence, rationale
}

// riskScore derives the decision's risk score from the deterministic base
// score, adjusted by the confidence-weighted spread of stance severities
// and clamped to [0,100]. Stances leaning more conservative than the
// scorer push the score up; stances leaning bolder pull it down.
func riskScore(assessment domain.PositionAssessment, args []domain.DebateArgument) float64 {
	base := baseRiskScore(assessment.RiskLevel)

	severities := make([]float64, len(args))
	weights := make([]float64, len(args))
	totalWeight := 0.0
	for i, arg := range args {
		severities[i] = actionSeverity(arg.Action)
		weights[i] = arg.Confidence
		totalWeight += arg.Confidence
	}
	if totalWeight == 0 {
		return base
	}

	weightedMean := stat.Mean(severities, weights)
	spread := math.Sqrt(stat.Variance(severities, weights))

	adjusted := base
	switch {
	case weightedMean > actionSeverity(assessment.Action):
		adjusted += spread / 2
	case weightedMean < actionSeverity(assessment.Action):
		adjusted -= spread / 2
	}

	return round2(math.Max(0, math.Min(100, adjusted)))
}

// baseRiskScore maps a risk level onto the 0-100 scale.
func baseRiskScore(level domain.RiskLevel) float64 {
	switch level {
	case domain.RiskCritical:
		return 90
	case domain.RiskHigh:
		return 70
	case domain.RiskModerate:
		return 45
	default:
		return 20
	}
}

// actionSeverity expresses how defensively an action treats the position.
func actionSeverity(action domain.Action) float64 {
	switch action {
	case domain.ActionExit:
		return 100
	case domain.ActionReduce:
		return 75
	case domain.ActionReallocate:
		return 50
	case domain.ActionHold:
		return 25
	default: // add
		return 0
	}
}

func argumentFor(args []domain.DebateArgument, stance domain.Stance) domain.DebateArgument {
	for _, arg := range args {
		if arg.Stance == stance {
			return arg
		}
	}
	return domain.DebateArgument{}
}

func describeVotes(args []domain.DebateArgument) string {
	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = fmt.Sprintf("%s: %s %.2f", arg.Stance, arg.Action, arg.Confidence)
	}
	return strings.Join(parts, ", ")
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
