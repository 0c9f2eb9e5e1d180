package run

import (
	"flowchain/domain"
	"flowchain/event"
	"testing"

	"github.com/fundwit/go-commons/types"
	. "github.com/onsi/gomega"
)

// two stages: sequential editing (cut, color grade) then parallel review
// (content review, legal review); approved review publishes, rejected
// review loops back to editing
func buildChain(maxVisits int) *domain.FlowChainDetail {
	return &domain.FlowChainDetail{
		FlowChain: domain.FlowChain{ID: 1, Version: 1, ProjectID: 1, MaxStageVisits: maxVisits},
		Stages: []domain.StageDetail{
			{
				Stage: domain.Stage{ID: 10, Name: "editing", Order: 1, ExecutionMode: domain.ExecutionSequential},
				Steps: []domain.StepDetail{
					{Step: domain.Step{ID: 11, StageID: 10, Name: "cut", OrderInStage: 1},
						Roles: []domain.StepRole{{StepID: 11, Role: "editor", Required: true}}},
					{Step: domain.Step{ID: 12, StageID: 10, Name: "color grade", OrderInStage: 2},
						Roles: []domain.StepRole{{StepID: 12, Role: "colorist", Required: true}}},
				},
				Transitions: []domain.Transition{
					{ID: 101, SourceID: 10, Seq: 1, Condition: domain.ConditionApproved, TargetID: 20},
					{ID: 102, SourceID: 10, Seq: 2, Condition: domain.ConditionRejected, TargetOutcome: domain.OutcomeRejected},
				},
			},
			{
				Stage: domain.Stage{ID: 20, Name: "review", Order: 2, ExecutionMode: domain.ExecutionParallel},
				Steps: []domain.StepDetail{
					{Step: domain.Step{ID: 21, StageID: 20, Name: "content review", OrderInStage: 1},
						Roles: []domain.StepRole{{StepID: 21, Role: "reviewer", Required: true}}},
					{Step: domain.Step{ID: 22, StageID: 20, Name: "legal review", OrderInStage: 2},
						Roles: []domain.StepRole{{StepID: 22, Role: "legal", Required: true}}},
				},
				Transitions: []domain.Transition{
					{ID: 201, SourceID: 20, Seq: 1, Condition: domain.ConditionApproved, TargetOutcome: domain.OutcomePublished},
					{ID: 202, SourceID: 20, Seq: 2, Condition: domain.ConditionRejected, TargetID: 10},
				},
			},
		},
	}
}

func newTestInstance(chain *domain.FlowChainDetail) *domain.InstanceDetail {
	return &domain.InstanceDetail{WorkflowInstance: domain.WorkflowInstance{
		ID: 1000, ChainID: chain.ID, ChainVersion: chain.Version, ProjectID: chain.ProjectID,
		AssetType: "video", State: domain.InstanceRunning,
	}}
}

func stepStatusOf(t *testing.T, inst *domain.InstanceDetail, stepID types.ID) *domain.InstanceStepStatus {
	st, found := inst.StepStatus(stepID)
	Expect(found).To(BeTrue())
	return st
}

func TestCascadeSequential(t *testing.T) {
	RegisterTestingT(t)

	t.Run("should activate only the first step on entry", func(t *testing.T) {
		chain := buildChain(10)
		inst := newTestInstance(chain)
		c := newCascade(chain, inst)
		c.start()

		Expect(inst.CurrentStageID).To(Equal(types.ID(10)))
		Expect(stepStatusOf(t, inst, 11).Status).To(Equal(domain.StepActive))
		Expect(stepStatusOf(t, inst, 11).Round).To(Equal(1))
		Expect(stepStatusOf(t, inst, 12).Status).To(Equal(domain.StepNotStarted))

		state, found := inst.StageState(10)
		Expect(found).To(BeTrue())
		Expect(state.VisitCount).To(Equal(1))
	})

	t.Run("should activate the next step after an approval", func(t *testing.T) {
		chain := buildChain(10)
		inst := newTestInstance(chain)
		c := newCascade(chain, inst)
		c.start()

		stage, _ := chain.FindStage(10)
		step, _, _ := chain.FindStep(11)
		c.onStepResolved(stage, step, domain.ResolutionApproved)

		Expect(stepStatusOf(t, inst, 11).Status).To(Equal(domain.StepResolved))
		Expect(stepStatusOf(t, inst, 11).Resolution).To(Equal(domain.ResolutionApproved))
		Expect(stepStatusOf(t, inst, 12).Status).To(Equal(domain.StepActive))
		Expect(inst.CurrentStageID).To(Equal(types.ID(10)))
	})

	t.Run("should skip the remainder and reject the stage on a rejection", func(t *testing.T) {
		chain := buildChain(10)
		inst := newTestInstance(chain)
		c := newCascade(chain, inst)
		c.start()

		stage, _ := chain.FindStage(10)
		step, _, _ := chain.FindStep(11)
		c.onStepResolved(stage, step, domain.ResolutionRejected)

		Expect(stepStatusOf(t, inst, 12).Status).To(Equal(domain.StepSkipped))
		Expect(inst.State).To(Equal(domain.InstanceEnded))
		Expect(inst.Outcome).To(Equal(domain.OutcomeRejected))
		Expect(inst.EndTime).ToNot(BeNil())
	})

	t.Run("should enter the next stage after the last step approved", func(t *testing.T) {
		chain := buildChain(10)
		inst := newTestInstance(chain)
		c := newCascade(chain, inst)
		c.start()

		stage, _ := chain.FindStage(10)
		first, _, _ := chain.FindStep(11)
		second, _, _ := chain.FindStep(12)
		c.onStepResolved(stage, first, domain.ResolutionApproved)
		c.onStepResolved(stage, second, domain.ResolutionApproved)

		Expect(inst.CurrentStageID).To(Equal(types.ID(20)))
		Expect(stepStatusOf(t, inst, 21).Status).To(Equal(domain.StepActive))
		Expect(stepStatusOf(t, inst, 22).Status).To(Equal(domain.StepActive))
	})
}

func TestCascadeParallel(t *testing.T) {
	RegisterTestingT(t)

	advanceToReview := func(chain *domain.FlowChainDetail, inst *domain.InstanceDetail) *cascade {
		c := newCascade(chain, inst)
		c.start()
		stage, _ := chain.FindStage(10)
		first, _, _ := chain.FindStep(11)
		second, _, _ := chain.FindStep(12)
		c.onStepResolved(stage, first, domain.ResolutionApproved)
		c.onStepResolved(stage, second, domain.ResolutionApproved)
		return c
	}

	t.Run("should wait for every step before resolving the stage", func(t *testing.T) {
		chain := buildChain(10)
		inst := newTestInstance(chain)
		c := advanceToReview(chain, inst)

		stage, _ := chain.FindStage(20)
		step, _, _ := chain.FindStep(21)
		c.onStepResolved(stage, step, domain.ResolutionApproved)

		Expect(inst.State).To(Equal(domain.InstanceRunning))
		Expect(inst.CurrentStageID).To(Equal(types.ID(20)))

		other, _, _ := chain.FindStep(22)
		c.onStepResolved(stage, other, domain.ResolutionApproved)
		Expect(inst.State).To(Equal(domain.InstanceEnded))
		Expect(inst.Outcome).To(Equal(domain.OutcomePublished))
	})

	t.Run("should abandon in flight peers on the first rejection", func(t *testing.T) {
		chain := buildChain(10)
		inst := newTestInstance(chain)
		c := advanceToReview(chain, inst)

		stage, _ := chain.FindStage(20)
		step, _, _ := chain.FindStep(21)
		c.onStepResolved(stage, step, domain.ResolutionRejected)

		Expect(stepStatusOf(t, inst, 22).Status).To(Equal(domain.StepPendingAbandoned))
		Expect(inst.CurrentStageID).To(Equal(types.ID(10)))

		var abandoned bool
		for _, e := range c.events {
			if e.Category == event.EventStepsAbandoned {
				abandoned = true
			}
		}
		Expect(abandoned).To(BeTrue())
	})

	t.Run("should open a fresh round on stage re-entry", func(t *testing.T) {
		chain := buildChain(10)
		inst := newTestInstance(chain)
		c := advanceToReview(chain, inst)

		stage, _ := chain.FindStage(20)
		step, _, _ := chain.FindStep(21)
		c.onStepResolved(stage, step, domain.ResolutionRejected)

		// back in editing, both steps reset for round two
		Expect(stepStatusOf(t, inst, 11).Status).To(Equal(domain.StepActive))
		Expect(stepStatusOf(t, inst, 11).Round).To(Equal(2))
		Expect(stepStatusOf(t, inst, 11).Resolution).To(Equal(domain.ResolutionPending))
		Expect(stepStatusOf(t, inst, 12).Round).To(Equal(2))

		state, _ := inst.StageState(10)
		Expect(state.VisitCount).To(Equal(2))
	})
}

func TestCascadeConditional(t *testing.T) {
	RegisterTestingT(t)

	conditionalChain := func() *domain.FlowChainDetail {
		chain := buildChain(10)
		chain.Stages[1].ExecutionMode = domain.ExecutionConditional
		chain.Stages[1].Steps[0].Condition = "asset-type=video"
		chain.Stages[1].Steps[1].Condition = "asset-type=image"
		return chain
	}

	enterReview := func(chain *domain.FlowChainDetail, inst *domain.InstanceDetail) *cascade {
		c := newCascade(chain, inst)
		c.start()
		stage, _ := chain.FindStage(10)
		first, _, _ := chain.FindStep(11)
		second, _, _ := chain.FindStep(12)
		c.onStepResolved(stage, first, domain.ResolutionApproved)
		c.onStepResolved(stage, second, domain.ResolutionApproved)
		return c
	}

	t.Run("should activate matching steps and skip the rest", func(t *testing.T) {
		chain := conditionalChain()
		inst := newTestInstance(chain)
		enterReview(chain, inst)

		Expect(stepStatusOf(t, inst, 21).Status).To(Equal(domain.StepActive))
		Expect(stepStatusOf(t, inst, 22).Status).To(Equal(domain.StepSkipped))
	})

	t.Run("should auto approve a stage selecting no step", func(t *testing.T) {
		chain := conditionalChain()
		inst := newTestInstance(chain)
		inst.AssetType = "audio"
		enterReview(chain, inst)

		Expect(inst.State).To(Equal(domain.InstanceEnded))
		Expect(inst.Outcome).To(Equal(domain.OutcomePublished))
	})
}

func TestCascadeBounds(t *testing.T) {
	RegisterTestingT(t)

	t.Run("should end with MAX_RETRIES_EXCEEDED past the visit bound", func(t *testing.T) {
		chain := buildChain(1)
		inst := newTestInstance(chain)
		c := newCascade(chain, inst)
		c.start()

		stage, _ := chain.FindStage(10)
		first, _, _ := chain.FindStep(11)
		second, _, _ := chain.FindStep(12)
		c.onStepResolved(stage, first, domain.ResolutionApproved)
		c.onStepResolved(stage, second, domain.ResolutionApproved)

		review, _ := chain.FindStage(20)
		reviewStep, _, _ := chain.FindStep(21)
		// rejected review loops back to editing, the second visit breaks the bound
		c.onStepResolved(review, reviewStep, domain.ResolutionRejected)

		Expect(inst.State).To(Equal(domain.InstanceEnded))
		Expect(inst.Outcome).To(Equal(domain.OutcomeMaxRetriesExceeded))
	})

	t.Run("should block the instance when no transition matches", func(t *testing.T) {
		chain := buildChain(10)
		chain.Stages[0].Transitions = []domain.Transition{
			{ID: 101, SourceID: 10, Seq: 1, Condition: domain.ConditionApproved, TargetID: 20},
		}
		inst := newTestInstance(chain)
		c := newCascade(chain, inst)
		c.start()

		stage, _ := chain.FindStage(10)
		step, _, _ := chain.FindStep(11)
		c.onStepResolved(stage, step, domain.ResolutionRejected)

		Expect(inst.State).To(Equal(domain.InstanceBlocked))
		Expect(inst.BlockReason).To(Equal(domain.BlockReasonStuck))
		Expect(inst.Outcome).To(BeEmpty())
	})
}

func TestCascadeStepTransitions(t *testing.T) {
	RegisterTestingT(t)

	t.Run("should rework an earlier step of the same stage", func(t *testing.T) {
		chain := buildChain(10)
		chain.Stages[0].Steps[1].Transitions = []domain.Transition{
			{ID: 301, SourceID: 12, Seq: 1, Condition: domain.ConditionRejected, TargetID: 11},
		}
		inst := newTestInstance(chain)
		c := newCascade(chain, inst)
		c.start()

		stage, _ := chain.FindStage(10)
		first, _, _ := chain.FindStep(11)
		second, _, _ := chain.FindStep(12)
		c.onStepResolved(stage, first, domain.ResolutionApproved)
		c.onStepResolved(stage, second, domain.ResolutionRejected)

		Expect(stepStatusOf(t, inst, 11).Status).To(Equal(domain.StepActive))
		Expect(stepStatusOf(t, inst, 11).Round).To(Equal(2))
		Expect(stepStatusOf(t, inst, 12).Status).To(Equal(domain.StepNotStarted))
		Expect(stepStatusOf(t, inst, 12).Round).To(Equal(2))
		Expect(inst.State).To(Equal(domain.InstanceRunning))
	})

	t.Run("should take a terminal step transition", func(t *testing.T) {
		chain := buildChain(10)
		chain.Stages[0].Steps[0].Transitions = []domain.Transition{
			{ID: 302, SourceID: 11, Seq: 1, Condition: domain.ConditionRejected, TargetOutcome: domain.OutcomeArchived},
		}
		inst := newTestInstance(chain)
		c := newCascade(chain, inst)
		c.start()

		stage, _ := chain.FindStage(10)
		first, _, _ := chain.FindStep(11)
		c.onStepResolved(stage, first, domain.ResolutionRejected)

		Expect(inst.State).To(Equal(domain.InstanceEnded))
		Expect(inst.Outcome).To(Equal(domain.OutcomeArchived))
	})
}
