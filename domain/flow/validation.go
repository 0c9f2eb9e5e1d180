package flow

import (
	"flowchain/domain"
	"flowchain/domain/route"
	"fmt"
)

// ValidateCreation checks every structural invariant of a definition at
// publish time. A definition that passes is executable: the runtime never
// re-validates and a matching transition always exists for plain
// APPROVED/REJECTED stage resolutions.
func ValidateCreation(c *FlowChainCreation) []string {
	var problems []string
	report := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if len(c.Stages) == 0 {
		report("flow chain must have at least one stage")
		return problems
	}

	stageOrders := map[string]int{}
	stepStages := map[string]string{}
	for i, stage := range c.Stages {
		if _, dup := stageOrders[stage.Name]; dup {
			report("duplicated stage name %q", stage.Name)
			continue
		}
		stageOrders[stage.Name] = i + 1
		for _, step := range stage.Steps {
			if _, dup := stepStages[step.Name]; dup {
				report("duplicated step name %q", step.Name)
				continue
			}
			stepStages[step.Name] = stage.Name
		}
	}

	for _, stage := range c.Stages {
		validateStage(&stage, c, stageOrders, stepStages, report)
	}

	if cycle := findDecisionFreeCycle(c, stageOrders); cycle != "" {
		report("stages %s form a loop that can run without any decision", cycle)
	}

	return problems
}

func validateStage(stage *StageCreation, c *FlowChainCreation,
	stageOrders map[string]int, stepStages map[string]string, report func(string, ...interface{})) {

	switch stage.ExecutionMode {
	case domain.ExecutionSequential, domain.ExecutionParallel, domain.ExecutionConditional:
	default:
		report("stage %q: unknown execution mode %q", stage.Name, stage.ExecutionMode)
	}
	if len(stage.Steps) == 0 {
		report("stage %q must have at least one step", stage.Name)
	}

	for _, step := range stage.Steps {
		validateStep(stage, &step, report)
		for _, t := range step.Transitions {
			if stage.ExecutionMode != domain.ExecutionSequential {
				report("step %q: step transitions are only allowed in SEQUENTIAL stages", step.Name)
				break
			}
			validateTransition(fmt.Sprintf("step %q", step.Name), stage, &t, c, stageOrders, stepStages, report)
		}
	}

	coversApproved, coversRejected := false, false
	for _, t := range stage.Transitions {
		validateTransition(fmt.Sprintf("stage %q", stage.Name), stage, &t, c, stageOrders, stepStages, report)
		if t.TargetStep != "" {
			report("stage %q: stage transitions must target a stage or a terminal outcome", stage.Name)
		}
		switch t.Condition {
		case domain.ConditionAny:
			coversApproved, coversRejected = true, true
		case domain.ConditionApproved:
			coversApproved = true
		case domain.ConditionRejected:
			coversRejected = true
		}
	}
	// every reachable resolution must find an edge, stuck instances are
	// definition bugs to be caught here, not at runtime
	if !coversApproved {
		report("stage %q has no transition matching an APPROVED resolution", stage.Name)
	}
	if !coversRejected {
		report("stage %q has no transition matching a REJECTED resolution", stage.Name)
	}
}

func validateStep(stage *StageCreation, step *StepCreation, report func(string, ...interface{})) {
	if !domain.IsKnownStepAction(step.Action) {
		report("step %q: unknown action %q", step.Name, step.Action)
	}
	switch step.ApprovalPolicy {
	case domain.PolicyAllMustApprove, domain.PolicyAnyCanApprove, domain.PolicyMajorityMustApprove:
	default:
		report("step %q: unknown approval policy %q", step.Name, step.ApprovalPolicy)
	}

	if len(step.Roles) == 0 {
		report("step %q must have at least one assigned role", step.Name)
	}
	seen := map[string]bool{}
	for _, r := range step.Roles {
		if seen[r.Role] {
			report("step %q: role %q assigned more than once", step.Name, r.Role)
		}
		seen[r.Role] = true
	}

	if step.Condition != "" {
		if stage.ExecutionMode != domain.ExecutionConditional {
			report("step %q: selection condition is only allowed in CONDITIONAL stages", step.Name)
		} else if !route.KnownCondition(step.Condition) {
			report("step %q: unknown selection condition %q", step.Name, step.Condition)
		}
	}
}

func validateTransition(source string, stage *StageCreation, t *TransitionCreation, c *FlowChainCreation,
	stageOrders map[string]int, stepStages map[string]string, report func(string, ...interface{})) {

	switch t.Condition {
	case domain.ConditionAny, domain.ConditionApproved, domain.ConditionRejected:
	default:
		if !route.KnownCondition(t.Condition) {
			report("%s: unknown transition condition %q", source, t.Condition)
		}
	}

	targets := 0
	if t.TargetStage != "" {
		targets++
	}
	if t.TargetStep != "" {
		targets++
	}
	if t.TargetOutcome != "" {
		targets++
	}
	if targets != 1 {
		report("%s: transition must target exactly one of stage, step or terminal outcome", source)
		return
	}

	if t.TargetOutcome != "" {
		if !domain.IsKnownTerminalOutcome(t.TargetOutcome) {
			report("%s: unknown terminal outcome %q", source, t.TargetOutcome)
		}
		return
	}

	sourceOrder := stageOrders[stage.Name]
	if t.TargetStage != "" {
		targetOrder, found := stageOrders[t.TargetStage]
		if !found {
			report("%s: transition targets unknown stage %q", source, t.TargetStage)
			return
		}
		// going back (or staying) re-runs stages: legal only for rework,
		// which demands a fresh round of decisions
		if targetOrder <= sourceOrder && t.Condition != domain.ConditionRejected {
			report("%s: transition back to stage %q must be gated by REJECTED", source, t.TargetStage)
		}
		return
	}

	targetStageName, found := stepStages[t.TargetStep]
	if !found {
		report("%s: transition targets unknown step %q", source, t.TargetStep)
		return
	}
	if targetStageName != stage.Name {
		report("%s: step transition target %q is outside its stage", source, t.TargetStep)
	}
}

// findDecisionFreeCycle looks for a loop of stages that can all resolve
// without a single human decision: CONDITIONAL stages whose steps are all
// conditional may select nothing and auto-approve, a cycle of such stages
// would spin forever.
func findDecisionFreeCycle(c *FlowChainCreation, stageOrders map[string]int) string {
	autoResolvable := map[string]bool{}
	for _, stage := range c.Stages {
		if stage.ExecutionMode != domain.ExecutionConditional {
			continue
		}
		all := true
		for _, step := range stage.Steps {
			if step.Condition == "" {
				all = false
				break
			}
		}
		autoResolvable[stage.Name] = all && len(stage.Steps) > 0
	}

	edges := map[string][]string{}
	for _, stage := range c.Stages {
		if !autoResolvable[stage.Name] {
			continue
		}
		for _, t := range stage.Transitions {
			// vacuous stages resolve APPROVED, a REJECTED-gated edge can
			// never fire without decisions
			if t.Condition == domain.ConditionRejected || t.TargetStage == "" {
				continue
			}
			if autoResolvable[t.TargetStage] {
				edges[stage.Name] = append(edges[stage.Name], t.TargetStage)
			}
		}
	}

	const (
		visiting = 1
		done     = 2
	)
	colors := map[string]int{}
	var walk func(name string) string
	walk = func(name string) string {
		colors[name] = visiting
		for _, next := range edges[name] {
			if colors[next] == visiting {
				return name + " -> " + next
			}
			if colors[next] == 0 {
				if cycle := walk(next); cycle != "" {
					return cycle
				}
			}
		}
		colors[name] = done
		return ""
	}
	for name := range edges {
		if colors[name] == 0 {
			if cycle := walk(name); cycle != "" {
				return cycle
			}
		}
	}
	return ""
}
