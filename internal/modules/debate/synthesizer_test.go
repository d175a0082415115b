package debate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/portfolio-sentry/internal/domain"
	"github.com/aristath/portfolio-sentry/pkg/logger"
)

// fakeEvaluator returns scripted arguments per stance.
type fakeEvaluator struct {
	args map[domain.Stance]domain.DebateArgument
	errs map[domain.Stance]error
}

func (f *fakeEvaluator) Evaluate(ctx context.Context, stance domain.Stance, assessment domain.PositionAssessment, market domain.MarketContext) (domain.DebateArgument, error) {
	if err, ok := f.errs[stance]; ok {
		return domain.DebateArgument{}, err
	}
	return f.args[stance], nil
}

func scripted(aggressive, conservative, neutral domain.Action, confA, confC, confN float64) *fakeEvaluator {
	return &fakeEvaluator{
		args: map[domain.Stance]domain.DebateArgument{
			domain.StanceAggressive:   {Stance: domain.StanceAggressive, Action: aggressive, Confidence: confA, Reasoning: "aggressive case"},
			domain.StanceConservative: {Stance: domain.StanceConservative, Action: conservative, Confidence: confC, Reasoning: "conservative case"},
			domain.StanceNeutral:      {Stance: domain.StanceNeutral, Action: neutral, Confidence: confN, Reasoning: "neutral case"},
		},
	}
}

func newTestSynthesizer(eval StanceEvaluator) *Synthesizer {
	log := logger.New(logger.Config{Level: "error", Pretty: false})
	return NewSynthesizer(eval, 5*time.Second, log)
}

func testAssessment() domain.PositionAssessment {
	return domain.PositionAssessment{
		Symbol:    "AAPL",
		RiskLevel: domain.RiskModerate,
		Action:    domain.ActionHold,
	}
}

func TestDebate_MajorityWinsWithMeanConfidence(t *testing.T) {
	// Two stances at REDUCE (0.6, 0.7) beat one HOLD at 0.9.
	eval := scripted(domain.ActionReduce, domain.ActionReduce, domain.ActionHold, 0.6, 0.7, 0.9)
	s := newTestSynthesizer(eval)

	decision := s.Debate(context.Background(), testAssessment(), domain.MarketContext{})

	assert.Equal(t, domain.ActionReduce, decision.FinalAction)
	assert.InDelta(t, 0.65, decision.Confidence, 0.0001)
	assert.False(t, decision.Degraded)
	require.Len(t, decision.Arguments, 3)
}

func TestDebate_AgreementDominatesLoneDissenter(t *testing.T) {
	// A lone high-confidence dissenter never outvotes two agreeing stances.
	eval := scripted(domain.ActionHold, domain.ActionHold, domain.ActionExit, 0.55, 0.5, 1.0)
	s := newTestSynthesizer(eval)

	decision := s.Debate(context.Background(), testAssessment(), domain.MarketContext{})

	assert.Equal(t, domain.ActionHold, decision.FinalAction)
}

func TestDebate_AllDisagreeDefaultsToNeutralPenalized(t *testing.T) {
	eval := scripted(domain.ActionAdd, domain.ActionExit, domain.ActionHold, 0.9, 0.9, 0.8)
	s := newTestSynthesizer(eval)

	decision := s.Debate(context.Background(), testAssessment(), domain.MarketContext{})

	assert.Equal(t, domain.ActionHold, decision.FinalAction)
	assert.InDelta(t, 0.6, decision.Confidence, 0.0001)
	assert.Contains(t, decision.Rationale, "disagree")
}

func TestDebate_PenaltyNeverGoesNegative(t *testing.T) {
	eval := scripted(domain.ActionAdd, domain.ActionExit, domain.ActionHold, 0.9, 0.9, 0.1)
	s := newTestSynthesizer(eval)

	decision := s.Debate(context.Background(), testAssessment(), domain.MarketContext{})

	assert.GreaterOrEqual(t, decision.Confidence, 0.0)
}

func TestDebate_MajorityOverridesConfidentDissenter(t *testing.T) {
	// Two low-confidence REDUCE votes beat a lone EXIT even when its
	// confidence exceeds their combined support.
	eval := scripted(domain.ActionReduce, domain.ActionReduce, domain.ActionExit, 0.2, 0.2, 0.9)
	s := newTestSynthesizer(eval)

	decision := s.Debate(context.Background(), testAssessment(), domain.MarketContext{})

	assert.Equal(t, domain.ActionReduce, decision.FinalAction)
	assert.InDelta(t, 0.2, decision.Confidence, 0.0001)
}

func TestReconcile_EqualVotesBreakConservative(t *testing.T) {
	// One vote each with identical support: the tie goes to the more
	// conservative action.
	args := []domain.DebateArgument{
		{Stance: domain.StanceAggressive, Action: domain.ActionHold, Confidence: 0.5},
		{Stance: domain.StanceConservative, Action: domain.ActionExit, Confidence: 0.5},
	}

	action, confidence, _ := reconcile(args)

	assert.Equal(t, domain.ActionExit, action)
	assert.InDelta(t, 0.5, confidence, 0.0001)
}

func TestDebate_EvaluatorFailureDegrades(t *testing.T) {
	eval := scripted(domain.ActionReduce, domain.ActionReduce, domain.ActionReduce, 0.8, 0.8, 0.8)
	eval.errs = map[domain.Stance]error{
		domain.StanceConservative: domain.ErrEvaluationFailed,
	}
	s := newTestSynthesizer(eval)

	assessment := testAssessment()
	assessment.Action = domain.ActionReduce
	decision := s.Debate(context.Background(), assessment, domain.MarketContext{})

	// Degraded decisions fall back to the deterministic action and never
	// carry partial arguments.
	assert.True(t, decision.Degraded)
	assert.Equal(t, domain.ActionReduce, decision.FinalAction)
	assert.Equal(t, 0.5, decision.Confidence)
	assert.Empty(t, decision.Arguments)
}

type slowEvaluator struct{}

func (slowEvaluator) Evaluate(ctx context.Context, stance domain.Stance, assessment domain.PositionAssessment, market domain.MarketContext) (domain.DebateArgument, error) {
	select {
	case <-ctx.Done():
		return domain.DebateArgument{}, ctx.Err()
	case <-time.After(10 * time.Second):
		return domain.DebateArgument{Stance: stance, Action: domain.ActionHold, Confidence: 0.5}, nil
	}
}

func TestDebate_TimeoutDegrades(t *testing.T) {
	log := logger.New(logger.Config{Level: "error", Pretty: false})
	s := NewSynthesizer(slowEvaluator{}, 50*time.Millisecond, log)

	start := time.Now()
	decision := s.Debate(context.Background(), testAssessment(), domain.MarketContext{})

	assert.True(t, decision.Degraded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestDebate_RiskScoreStaysInRange(t *testing.T) {
	cases := []struct {
		name  string
		level domain.RiskLevel
		eval  *fakeEvaluator
	}{
		{"all exit on critical", domain.RiskCritical, scripted(domain.ActionExit, domain.ActionExit, domain.ActionExit, 1, 1, 1)},
		{"all add on low", domain.RiskLow, scripted(domain.ActionAdd, domain.ActionAdd, domain.ActionAdd, 1, 1, 1)},
		{"split on moderate", domain.RiskModerate, scripted(domain.ActionAdd, domain.ActionExit, domain.ActionHold, 0.9, 0.9, 0.9)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestSynthesizer(tc.eval)
			assessment := testAssessment()
			assessment.RiskLevel = tc.level

			decision := s.Debate(context.Background(), assessment, domain.MarketContext{})

			assert.GreaterOrEqual(t, decision.RiskScore, 0.0)
			assert.LessOrEqual(t, decision.RiskScore, 100.0)
		})
	}
}
