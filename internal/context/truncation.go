package context

import (
	"context"
	"errors"
	"sort"

	qmodels "github.com/haasonsaas/quill/pkg/models"
)

// ErrOverflowUnrecoverable signals that the budget cannot be met while
// keeping tool pairs intact. The auto-manager escalates to compression.
var ErrOverflowUnrecoverable = errors.New("token budget unreachable with tool pairs intact")

// DefaultRecentCount is how many trailing messages keep RECENT priority.
const DefaultRecentCount = 3

// TruncateOptions configures sliding-window truncation.
type TruncateOptions struct {
	// RecentCount is how many trailing messages are protected (default 3).
	RecentCount int

	// Counter prices messages; defaults to the heuristic counter.
	Counter TokenCounter

	// Model is passed through to the counter.
	Model string
}

func (o TruncateOptions) withDefaults() TruncateOptions {
	if o.RecentCount <= 0 {
		o.RecentCount = DefaultRecentCount
	}
	if o.Counter == nil {
		o.Counter = HeuristicCounter{}
	}
	return o
}

// TruncateResult reports a truncation pass.
type TruncateResult struct {
	Messages     []qmodels.ContextMessage
	Removed      int
	TokensBefore int
	TokensAfter  int
}

// AssignPriorities returns a copy of messages with truncation priorities set:
// the leading message and system-role messages get SYSTEM, the first user
// message gets ANCHOR, the last N get RECENT, tool-pair members get at least
// TOOL_PAIR, and everything else NORMAL. A message keeps the highest priority
// it qualifies for.
func AssignPriorities(messages []qmodels.ContextMessage, analysis *PairAnalysis, recentCount int) []qmodels.ContextMessage {
	if recentCount <= 0 {
		recentCount = DefaultRecentCount
	}
	out := qmodels.CloneMessages(messages)

	firstUser := -1
	for i := range out {
		if out[i].Role == qmodels.RoleUser {
			firstUser = i
			break
		}
	}

	for i := range out {
		priority := qmodels.PriorityNormal
		if analysis != nil && analysis.Paired(i) {
			priority = qmodels.PriorityToolPair
		}
		if i >= len(out)-recentCount {
			priority = maxPriority(priority, qmodels.PriorityRecent)
		}
		if i == firstUser {
			priority = maxPriority(priority, qmodels.PriorityAnchor)
		}
		if i == 0 || out[i].Role == qmodels.RoleSystem {
			priority = maxPriority(priority, qmodels.PrioritySystem)
		}
		out[i].Priority = priority
	}
	return out
}

func maxPriority(a, b qmodels.Priority) qmodels.Priority {
	if b > a {
		return b
	}
	return a
}

// Truncate drops lowest-priority messages, oldest first within a priority,
// until the sequence fits the budget. Tool pairs are removed atomically:
// before any candidate is dropped its removal set is expanded to its linked
// indices. SYSTEM and ANCHOR messages are never removed. When the budget
// cannot be met, the partial result is returned along with
// ErrOverflowUnrecoverable.
func Truncate(ctx context.Context, messages []qmodels.ContextMessage, budgetTokens int, opts TruncateOptions) (*TruncateResult, error) {
	opts = opts.withDefaults()

	analysis := AnalyzeToolPairs(messages)
	prioritized := AssignPriorities(messages, analysis, opts.RecentCount)

	perMessage := make([]int, len(prioritized))
	total := 0
	for i := range prioritized {
		perMessage[i] = countOne(opts.Counter, opts.Model, prioritized[i])
		total += perMessage[i]
	}

	result := &TruncateResult{
		Messages:     prioritized,
		TokensBefore: total,
		TokensAfter:  total,
	}
	if total <= budgetTokens {
		return result, nil
	}

	// Candidates in ascending (priority, index) order: lowest priority first,
	// oldest first within a tie.
	candidates := make([]int, 0, len(prioritized))
	for i := range prioritized {
		if prioritized[i].Priority >= qmodels.PriorityAnchor {
			continue
		}
		candidates = append(candidates, i)
	}
	sort.SliceStable(candidates, func(a, b int) bool {
		if prioritized[candidates[a]].Priority != prioritized[candidates[b]].Priority {
			return prioritized[candidates[a]].Priority < prioritized[candidates[b]].Priority
		}
		return candidates[a] < candidates[b]
	})

	removed := make(map[int]bool)
	for _, candidate := range candidates {
		if total <= budgetTokens {
			break
		}
		if err := ctx.Err(); err != nil {
			break
		}
		if removed[candidate] {
			continue
		}

		// Expand to the candidate's tool-pair partners.
		set := analysis.LinkedIndices(candidate)
		if len(set) == 0 {
			set = []int{candidate}
		}
		droppable := true
		for _, i := range set {
			if prioritized[i].Priority >= qmodels.PriorityAnchor {
				droppable = false
				break
			}
		}
		if !droppable {
			continue
		}

		for _, i := range set {
			if !removed[i] {
				removed[i] = true
				total -= perMessage[i]
				result.Removed++
			}
		}
	}

	kept := make([]qmodels.ContextMessage, 0, len(prioritized)-len(removed))
	for i := range prioritized {
		if !removed[i] {
			kept = append(kept, prioritized[i])
		}
	}
	result.Messages = kept
	result.TokensAfter = total

	if total > budgetTokens {
		return result, ErrOverflowUnrecoverable
	}
	return result, nil
}

// TruncateAggressive drops everything except SYSTEM, ANCHOR and the last N
// messages, ignoring tool-pair atomicity, until the budget is met. Used only
// under the aggressive_truncation feature flag during overflow.
func TruncateAggressive(messages []qmodels.ContextMessage, budgetTokens int, opts TruncateOptions) *TruncateResult {
	opts = opts.withDefaults()

	analysis := AnalyzeToolPairs(messages)
	prioritized := AssignPriorities(messages, analysis, opts.RecentCount)

	perMessage := make([]int, len(prioritized))
	total := 0
	for i := range prioritized {
		perMessage[i] = countOne(opts.Counter, opts.Model, prioritized[i])
		total += perMessage[i]
	}

	result := &TruncateResult{Messages: prioritized, TokensBefore: total, TokensAfter: total}
	if total <= budgetTokens {
		return result
	}

	removed := make(map[int]bool)
	for i := range prioritized {
		if total <= budgetTokens {
			break
		}
		if prioritized[i].Priority >= qmodels.PriorityRecent {
			continue
		}
		removed[i] = true
		total -= perMessage[i]
		result.Removed++
	}

	kept := make([]qmodels.ContextMessage, 0, len(prioritized)-len(removed))
	for i := range prioritized {
		if !removed[i] {
			kept = append(kept, prioritized[i])
		}
	}
	result.Messages = kept
	result.TokensAfter = total
	return result
}
