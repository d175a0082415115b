package advisor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/portfolio-sentry/internal/domain"
)

func TestParseArgument_WellFormed(t *testing.T) {
	content := `ACTION: REDUCE
CONFIDENCE: 0.85
REASONING: The position is overextended relative to its volatility.
KEY_POINTS:
- RSI above 75
- Concentration over the cap
- Momentum fading`

	arg, err := ParseArgument(content, domain.StanceConservative)

	require.NoError(t, err)
	assert.Equal(t, domain.StanceConservative, arg.Stance)
	assert.Equal(t, domain.ActionReduce, arg.Action)
	assert.Equal(t, 0.85, arg.Confidence)
	assert.Equal(t, "The position is overextended relative to its volatility.", arg.Reasoning)
	assert.Equal(t, []string{"RSI above 75", "Concentration over the cap", "Momentum fading"}, arg.KeyPoints)
}

func TestParseArgument_MissingActionIsMalformed(t *testing.T) {
	_, err := ParseArgument("I think the position looks fine overall.", domain.StanceNeutral)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEvaluationFailed)
}

func TestParseArgument_ActionVariants(t *testing.T) {
	cases := []struct {
		text string
		want domain.Action
	}{
		{"ACTION: exit immediately", domain.ActionExit},
		{"ACTION: Reduce the position", domain.ActionReduce},
		{"action: REALLOCATE into index funds", domain.ActionReallocate},
		{"ACTION: add on weakness", domain.ActionAdd},
		{"ACTION: HOLD", domain.ActionHold},
		{"ACTION: something unrecognized", domain.ActionHold},
	}

	for _, tc := range cases {
		arg, err := ParseArgument(tc.text, domain.StanceAggressive)
		require.NoError(t, err, tc.text)
		assert.Equal(t, tc.want, arg.Action, tc.text)
	}
}

func TestParseArgument_ConfidenceOutOfRangeKeepsDefault(t *testing.T) {
	cases := []string{
		"ACTION: hold\nCONFIDENCE: 1.5",
		"ACTION: hold\nCONFIDENCE: -0.2",
		"ACTION: hold\nCONFIDENCE: very sure",
	}

	for _, content := range cases {
		arg, err := ParseArgument(content, domain.StanceNeutral)
		require.NoError(t, err, content)
		assert.Equal(t, 0.7, arg.Confidence, content)
	}
}

func TestParseArgument_KeyPointsCapped(t *testing.T) {
	content := `ACTION: hold
KEY_POINTS:
- one
- two
- three
- four
- five
- six
- seven`

	arg, err := ParseArgument(content, domain.StanceNeutral)

	require.NoError(t, err)
	assert.Len(t, arg.KeyPoints, 5)
	assert.Equal(t, "five", arg.KeyPoints[4])
}

func TestParseArgument_ReasoningFallsBackToWholeContent(t *testing.T) {
	content := "ACTION: hold\nNothing else structured here."

	arg, err := ParseArgument(content, domain.StanceNeutral)

	require.NoError(t, err)
	assert.Equal(t, content, arg.Reasoning)
}

func TestParseArgument_DashLinesOutsideKeyPointsIgnored(t *testing.T) {
	content := `- a stray bullet
ACTION: reduce
REASONING: Concentration risk.`

	arg, err := ParseArgument(content, domain.StanceConservative)

	require.NoError(t, err)
	assert.Empty(t, arg.KeyPoints)
	assert.Equal(t, "Concentration risk.", arg.Reasoning)
}
