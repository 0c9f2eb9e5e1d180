package run

import (
	"flowchain/domain"
	"flowchain/domain/route"
	"flowchain/event"

	"github.com/fundwit/go-commons/types"
)

// cascade drives one instance as far as it can go without further input,
// entirely in memory. The caller persists the mutated instance detail and
// the gathered events in one transaction afterwards.
type cascade struct {
	chain *domain.FlowChainDetail
	inst  *domain.InstanceDetail

	events []event.InstanceEvent
}

func newCascade(chain *domain.FlowChainDetail, inst *domain.InstanceDetail) *cascade {
	return &cascade{chain: chain, inst: inst}
}

func (c *cascade) logEvent(category event.EventCategory, stageID, stepID types.ID, detail string) {
	c.events = append(c.events, event.InstanceEvent{
		InstanceID: c.inst.ID, Category: category, StageID: stageID, StepID: stepID, Detail: detail,
	})
}

func (c *cascade) routeContext() route.Context {
	resolutions := map[types.ID]domain.Resolution{}
	for _, s := range c.inst.StepStatuses {
		resolutions[s.StepID] = s.Resolution
	}
	visits := map[types.ID]int{}
	for _, s := range c.inst.StageStates {
		visits[s.StageID] = s.VisitCount
	}
	return route.Context{AssetType: c.inst.AssetType, Resolutions: resolutions, StageVisits: visits}
}

func (c *cascade) status(stepID types.ID) *domain.InstanceStepStatus {
	if st, found := c.inst.StepStatus(stepID); found {
		return st
	}
	c.inst.StepStatuses = append(c.inst.StepStatuses, domain.InstanceStepStatus{
		InstanceID: c.inst.ID, StepID: stepID, Status: domain.StepNotStarted, Resolution: domain.ResolutionPending,
	})
	return &c.inst.StepStatuses[len(c.inst.StepStatuses)-1]
}

// resetStep opens a fresh decision round: prior decisions of the step no
// longer count, their rows stay for audit.
func (c *cascade) resetStep(stepID types.ID, status domain.StepRunStatus) *domain.InstanceStepStatus {
	st := c.status(stepID)
	st.Status = status
	st.Resolution = domain.ResolutionPending
	st.Round++
	return st
}

// start enters the first stage of the chain.
func (c *cascade) start() {
	first, found := c.chain.StageByOrder(1)
	if !found {
		c.block(0)
		return
	}
	c.enterStage(first)
}

func (c *cascade) enterStage(stage *domain.StageDetail) {
	state, found := c.inst.StageState(stage.ID)
	if !found {
		c.inst.StageStates = append(c.inst.StageStates, domain.InstanceStageState{
			InstanceID: c.inst.ID, StageID: stage.ID,
		})
		state = &c.inst.StageStates[len(c.inst.StageStates)-1]
	}
	state.VisitCount++
	state.EnteredAt = types.CurrentTimestamp()

	if state.VisitCount > c.chain.MaxStageVisits {
		c.endInstance(domain.OutcomeMaxRetriesExceeded)
		return
	}

	c.inst.CurrentStageID = stage.ID
	c.logEvent(event.EventStageEntered, stage.ID, 0, "")

	switch stage.ExecutionMode {
	case domain.ExecutionParallel:
		for i := range stage.Steps {
			c.activateStep(stage, &stage.Steps[i], true)
		}
	case domain.ExecutionConditional:
		ctx := c.routeContext()
		selected := 0
		for i := range stage.Steps {
			step := &stage.Steps[i]
			if step.Condition == "" || route.Matches(step.Condition, ctx) {
				c.activateStep(stage, step, true)
				selected++
			} else {
				c.resetStep(step.ID, domain.StepSkipped)
				c.logEvent(event.EventStepSkipped, stage.ID, step.ID, "condition not met")
			}
		}
		// nothing to do in this stage for this asset
		if selected == 0 {
			c.resolveStage(stage, domain.ResolutionApproved)
		}
	default: // SEQUENTIAL
		for i := range stage.Steps {
			c.activateStep(stage, &stage.Steps[i], i == 0)
		}
	}
}

func (c *cascade) activateStep(stage *domain.StageDetail, step *domain.StepDetail, active bool) {
	status := domain.StepNotStarted
	if active {
		status = domain.StepActive
	}
	c.resetStep(step.ID, status)
	if active {
		c.logEvent(event.EventStepActivated, stage.ID, step.ID, "")
	}
}

// onStepResolved records the resolution and pushes the stage forward.
func (c *cascade) onStepResolved(stage *domain.StageDetail, step *domain.StepDetail, resolution domain.Resolution) {
	st := c.status(step.ID)
	st.Status = domain.StepResolved
	st.Resolution = resolution
	c.logEvent(event.EventStepResolved, stage.ID, step.ID, string(resolution))

	// step transitions override the default flow when one matches,
	// otherwise the stage's execution mode decides
	if len(step.Transitions) > 0 {
		if hop, matched := route.NextHop(step.Transitions, resolution, c.routeContext()); matched {
			c.takeStepHop(stage, step, hop)
			return
		}
	}

	if stage.ExecutionMode == domain.ExecutionSequential {
		c.advanceSequential(stage, step, resolution)
	} else {
		c.advanceConcurrent(stage, resolution)
	}
}

func (c *cascade) takeStepHop(stage *domain.StageDetail, step *domain.StepDetail, hop route.Hop) {
	if hop.IsTerminal() {
		c.endInstance(hop.Outcome)
		return
	}

	// rework jump to an earlier step of the same stage: everything from
	// the target on runs again in a fresh round
	for i := range stage.Steps {
		target := &stage.Steps[i]
		if target.ID != hop.TargetID {
			continue
		}
		for j := range stage.Steps {
			if stage.Steps[j].OrderInStage > target.OrderInStage {
				c.resetStep(stage.Steps[j].ID, domain.StepNotStarted)
			}
		}
		c.resetStep(target.ID, domain.StepActive)
		c.logEvent(event.EventStepActivated, stage.ID, target.ID, "rework")
		return
	}

	// stage target: the remaining steps of this stage are abandoned
	target, found := c.chain.FindStage(hop.TargetID)
	if !found {
		c.block(stage.ID)
		return
	}
	c.skipUnresolved(stage)
	c.enterStage(target)
}

func (c *cascade) advanceSequential(stage *domain.StageDetail, step *domain.StepDetail, resolution domain.Resolution) {
	if resolution == domain.ResolutionRejected {
		// the remainder is skipped, not left NOT_STARTED, for audit clarity
		for i := range stage.Steps {
			st := c.status(stage.Steps[i].ID)
			if st.Status == domain.StepNotStarted {
				st.Status = domain.StepSkipped
				c.logEvent(event.EventStepSkipped, stage.ID, stage.Steps[i].ID, "sequence rejected")
			}
		}
		c.resolveStage(stage, domain.ResolutionRejected)
		return
	}

	for i := range stage.Steps {
		next := &stage.Steps[i]
		if next.OrderInStage <= step.OrderInStage {
			continue
		}
		if st := c.status(next.ID); st.Status == domain.StepNotStarted {
			st.Status = domain.StepActive
			c.logEvent(event.EventStepActivated, stage.ID, next.ID, "")
			return
		}
	}
	// the chain completed, the stage takes the last step's resolution
	c.resolveStage(stage, resolution)
}

// advanceConcurrent aggregates PARALLEL and CONDITIONAL stages: an
// implicit ALL_MUST_APPROVE over the step resolutions.
func (c *cascade) advanceConcurrent(stage *domain.StageDetail, resolution domain.Resolution) {
	if resolution == domain.ResolutionRejected {
		abandoned := false
		for i := range stage.Steps {
			st := c.status(stage.Steps[i].ID)
			if st.Status == domain.StepActive {
				st.Status = domain.StepPendingAbandoned
				abandoned = true
			}
		}
		if abandoned {
			c.logEvent(event.EventStepsAbandoned, stage.ID, 0, "stage rejected")
		}
		c.resolveStage(stage, domain.ResolutionRejected)
		return
	}

	for i := range stage.Steps {
		st := c.status(stage.Steps[i].ID)
		if st.Status == domain.StepActive || st.Status == domain.StepNotStarted {
			return // still awaiting decisions
		}
	}
	c.resolveStage(stage, domain.ResolutionApproved)
}

func (c *cascade) resolveStage(stage *domain.StageDetail, resolution domain.Resolution) {
	c.logEvent(event.EventStageResolved, stage.ID, 0, string(resolution))

	hop, matched := route.NextHop(stage.Transitions, resolution, c.routeContext())
	if !matched {
		c.block(stage.ID)
		return
	}
	if hop.IsTerminal() {
		c.endInstance(hop.Outcome)
		return
	}
	target, found := c.chain.FindStage(hop.TargetID)
	if !found {
		c.block(stage.ID)
		return
	}
	c.enterStage(target)
}

func (c *cascade) skipUnresolved(stage *domain.StageDetail) {
	for i := range stage.Steps {
		st := c.status(stage.Steps[i].ID)
		if st.Status == domain.StepActive || st.Status == domain.StepNotStarted {
			st.Status = domain.StepSkipped
			c.logEvent(event.EventStepSkipped, stage.ID, stage.Steps[i].ID, "stage left")
		}
	}
}

// block pauses the instance: no transition matched, a definition bug to be
// fixed by an operator, never guessed around.
func (c *cascade) block(stageID types.ID) {
	c.inst.State = domain.InstanceBlocked
	c.inst.BlockReason = domain.BlockReasonStuck
	c.logEvent(event.EventInstanceBlocked, stageID, 0, domain.BlockReasonStuck)
}

func (c *cascade) endInstance(outcome domain.TerminalOutcome) {
	now := types.CurrentTimestamp()
	c.inst.State = domain.InstanceEnded
	c.inst.Outcome = outcome
	c.inst.EndTime = &now
	c.logEvent(event.EventInstanceEnded, c.inst.CurrentStageID, 0, string(outcome))
}
