package imagegen

import (
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/workflow"
)

// Registrar is satisfied by worker.Worker and the SDK test environment.
type Registrar interface {
	RegisterWorkflowWithOptions(w interface{}, options workflow.RegisterOptions)
	RegisterActivityWithOptions(a interface{}, options activity.RegisterOptions)
}

func Register(r Registrar, acts *Activities) {
	r.RegisterWorkflowWithOptions(Workflow, workflow.RegisterOptions{Name: WorkflowName})
	r.RegisterActivityWithOptions(acts.Validate, activity.RegisterOptions{Name: ActivityValidate})
	r.RegisterActivityWithOptions(acts.GeneratePrompts, activity.RegisterOptions{Name: ActivityPrompts})
	r.RegisterActivityWithOptions(acts.SubmitJob, activity.RegisterOptions{Name: ActivitySubmit})
	r.RegisterActivityWithOptions(acts.Poll, activity.RegisterOptions{Name: ActivityPoll})
	r.RegisterActivityWithOptions(acts.FetchResults, activity.RegisterOptions{Name: ActivityFetch})
	r.RegisterActivityWithOptions(acts.Label, activity.RegisterOptions{Name: ActivityLabel})
	r.RegisterActivityWithOptions(acts.Finalize, activity.RegisterOptions{Name: ActivityFinalize})
	r.RegisterActivityWithOptions(acts.Compensate, activity.RegisterOptions{Name: ActivityCompensate})
	r.RegisterActivityWithOptions(acts.Reject, activity.RegisterOptions{Name: ActivityReject})
}
