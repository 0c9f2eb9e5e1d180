// Package route selects the next node after a stage or step resolved.
package route

import (
	"flowchain/domain"
	"sort"

	"github.com/fundwit/go-commons/types"
)

// Hop is the selected target: the next node id, or a terminal outcome.
type Hop struct {
	TargetID types.ID
	Outcome  domain.TerminalOutcome
}

func (h Hop) IsTerminal() bool {
	return h.Outcome != ""
}

// Context is the condition evaluation input: opaque asset metadata plus
// the resolutions recorded so far.
type Context struct {
	AssetType   string
	Resolutions map[types.ID]domain.Resolution
	StageVisits map[types.ID]int
}

// NextHop evaluates the transitions in declaration order and returns the
// first match. Exactly one transition wins, the resolver never fans out.
// The second return value is false when nothing matched: the caller raises
// the stuck-instance condition, it never guesses a target.
func NextHop(transitions []domain.Transition, resolution domain.Resolution, ctx Context) (Hop, bool) {
	ordered := append([]domain.Transition{}, transitions...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Seq < ordered[j].Seq })

	for _, t := range ordered {
		if conditionMatches(t.Condition, resolution, ctx) {
			return Hop{TargetID: t.TargetID, Outcome: t.TargetOutcome}, true
		}
	}
	return Hop{}, false
}

func conditionMatches(condition string, resolution domain.Resolution, ctx Context) bool {
	switch condition {
	case domain.ConditionAny:
		return true
	case domain.ConditionApproved:
		return resolution == domain.ResolutionApproved
	case domain.ConditionRejected:
		return resolution == domain.ResolutionRejected
	}
	return Matches(condition, ctx)
}
