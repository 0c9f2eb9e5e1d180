package domain_test

import (
	"flowchain/domain"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("FlowChainDetail", func() {
	var chain *domain.FlowChainDetail

	BeforeEach(func() {
		chain = &domain.FlowChainDetail{
			FlowChain: domain.FlowChain{ID: 1, Version: 1, Name: "video publishing"},
			Stages: []domain.StageDetail{
				{
					Stage: domain.Stage{ID: 10, Name: "editing", Order: 1, ExecutionMode: domain.ExecutionSequential},
					Steps: []domain.StepDetail{
						{Step: domain.Step{ID: 11, StageID: 10, Name: "cut"},
							Roles: []domain.StepRole{{StepID: 11, Role: "editor", Required: true}}},
					},
				},
				{
					Stage: domain.Stage{ID: 20, Name: "review", Order: 2, ExecutionMode: domain.ExecutionParallel},
					Steps: []domain.StepDetail{
						{Step: domain.Step{ID: 21, StageID: 20, Name: "content review"},
							Roles: []domain.StepRole{
								{StepID: 21, Role: "reviewer", Required: true},
								{StepID: 21, Role: "manager", Required: false},
							}},
					},
				},
			},
		}
	})

	Describe("FindStage", func() {
		It("should find stages by id", func() {
			stage, found := chain.FindStage(20)
			Expect(found).To(BeTrue())
			Expect(stage.Name).To(Equal("review"))

			_, found = chain.FindStage(404)
			Expect(found).To(BeFalse())
		})
	})

	Describe("FindStep", func() {
		It("should find the step and its owning stage", func() {
			step, stage, found := chain.FindStep(21)
			Expect(found).To(BeTrue())
			Expect(step.Name).To(Equal("content review"))
			Expect(stage.ID).To(Equal(chain.Stages[1].ID))

			_, _, found = chain.FindStep(404)
			Expect(found).To(BeFalse())
		})
	})

	Describe("StageByOrder", func() {
		It("should find stages by their order", func() {
			stage, found := chain.StageByOrder(1)
			Expect(found).To(BeTrue())
			Expect(stage.Name).To(Equal("editing"))

			_, found = chain.StageByOrder(3)
			Expect(found).To(BeFalse())
		})
	})

	Describe("StepDetail roles", func() {
		It("should answer role assignment questions", func() {
			step, _, _ := chain.FindStep(21)
			Expect(step.HasRole("reviewer")).To(BeTrue())
			Expect(step.HasRole("editor")).To(BeFalse())
			Expect(step.RequiredRoles()).To(Equal([]string{"reviewer"}))
		})
	})
})

var _ = Describe("InstanceDetail", func() {
	var inst *domain.InstanceDetail

	BeforeEach(func() {
		inst = &domain.InstanceDetail{
			WorkflowInstance: domain.WorkflowInstance{ID: 1000, State: domain.InstanceRunning},
			StepStatuses: []domain.InstanceStepStatus{
				{InstanceID: 1000, StepID: 11, Status: domain.StepResolved, Resolution: domain.ResolutionApproved, Round: 1},
				{InstanceID: 1000, StepID: 21, Status: domain.StepActive, Resolution: domain.ResolutionPending, Round: 2},
			},
			Decisions: []domain.Decision{
				{ID: 1, InstanceID: 1000, StepID: 21, Role: "reviewer", Outcome: domain.DecisionReject, Round: 1},
				{ID: 2, InstanceID: 1000, StepID: 21, Role: "reviewer", Outcome: domain.DecisionApprove, Round: 2},
				{ID: 3, InstanceID: 1000, StepID: 21, Role: "manager", Outcome: domain.DecisionApprove, Round: 2},
			},
		}
	})

	Describe("StepStatus", func() {
		It("should find the status row of a step", func() {
			status, found := inst.StepStatus(21)
			Expect(found).To(BeTrue())
			Expect(status.Status).To(Equal(domain.StepActive))

			_, found = inst.StepStatus(404)
			Expect(found).To(BeFalse())
		})
	})

	Describe("DecisionsForStep", func() {
		It("should keep rounds apart", func() {
			decisions := inst.DecisionsForStep(21, 2)
			Expect(len(decisions)).To(Equal(2))
			Expect(decisions[0].ID).To(Equal(inst.Decisions[1].ID))

			Expect(len(inst.DecisionsForStep(21, 1))).To(Equal(1))
			Expect(inst.DecisionsForStep(11, 1)).To(BeEmpty())
		})
	})

	Describe("IsTerminal", func() {
		It("should treat only ENDED as terminal", func() {
			Expect(inst.IsTerminal()).To(BeFalse())
			inst.State = domain.InstanceBlocked
			Expect(inst.IsTerminal()).To(BeFalse())
			inst.State = domain.InstanceEnded
			Expect(inst.IsTerminal()).To(BeTrue())
		})
	})
})

var _ = Describe("definition enums", func() {
	It("should recognize the closed action set", func() {
		Expect(domain.IsKnownStepAction("REVIEW")).To(BeTrue())
		Expect(domain.IsKnownStepAction("DANCE")).To(BeFalse())
	})

	It("should accept only authorable terminal outcomes", func() {
		Expect(domain.IsKnownTerminalOutcome(domain.OutcomePublished)).To(BeTrue())
		Expect(domain.IsKnownTerminalOutcome(domain.OutcomeArchived)).To(BeTrue())
		Expect(domain.IsKnownTerminalOutcome(domain.OutcomeRejected)).To(BeTrue())
		// reserved for the engine itself
		Expect(domain.IsKnownTerminalOutcome(domain.OutcomeCancelled)).To(BeFalse())
		Expect(domain.IsKnownTerminalOutcome(domain.OutcomeMaxRetriesExceeded)).To(BeFalse())
	})
})
