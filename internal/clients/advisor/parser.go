package advisor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aristath/portfolio-sentry/internal/domain"
)

const maxKeyPoints = 5

// ParseArgument parses the model's structured-text reply into a
// DebateArgument. A reply without a recognizable ACTION line is treated
// as malformed and surfaces as ErrEvaluationFailed.
func ParseArgument(content string, stance domain.Stance) (domain.DebateArgument, error) {
	arg := domain.DebateArgument{
		Stance:     stance,
		Action:     domain.ActionHold,
		Confidence: 0.7,
		Reasoning:  strings.TrimSpace(content),
	}

	foundAction := false
	inKeyPoints := false

	for _, line := range strings.Split(content, "\n") {
		upper := strings.ToUpper(line)

		switch {
		case strings.Contains(upper, "ACTION:"):
			arg.Action = parseAction(valueAfterColon(line))
			foundAction = true
			inKeyPoints = false

		case strings.Contains(upper, "CONFIDENCE:"):
			if conf, err := strconv.ParseFloat(valueAfterColon(line), 64); err == nil && conf >= 0 && conf <= 1 {
				arg.Confidence = conf
			}
			inKeyPoints = false

		case strings.Contains(upper, "REASONING:"):
			if reasoning := valueAfterColon(line); reasoning != "" {
				arg.Reasoning = reasoning
			}
			inKeyPoints = false

		case strings.Contains(upper, "KEY_POINTS:"):
			inKeyPoints = true

		case inKeyPoints && strings.HasPrefix(strings.TrimSpace(line), "-"):
			if len(arg.KeyPoints) < maxKeyPoints {
				point := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "-"))
				if point != "" {
					arg.KeyPoints = append(arg.KeyPoints, point)
				}
			}
		}
	}

	if !foundAction {
		return domain.DebateArgument{}, fmt.Errorf("%w: no ACTION line in response", domain.ErrEvaluationFailed)
	}

	return arg, nil
}

func valueAfterColon(line string) string {
	parts := strings.SplitN(line, ":", 2)
	if len(parts) != 2 {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func parseAction(text string) domain.Action {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "exit"):
		return domain.ActionExit
	case strings.Contains(lower, "reduce"):
		return domain.ActionReduce
	case strings.Contains(lower, "reallocate"):
		return domain.ActionReallocate
	case strings.Contains(lower, "add"):
		return domain.ActionAdd
	default:
		return domain.ActionHold
	}
}
