package pipeline

const (
	StepValidate  = "ValidateAndSetup"
	StepPrompts   = "GeneratePrompts"
	StepSubmit    = "StartImageGeneration"
	StepPoll      = "CheckImageStatus"
	StepFetch     = "ProcessImages"
	StepLabel     = "LabelImages"
	StepFinalize  = "SaveFinalResults"
	StepCompleted = "Completed"
	StepFailed    = "Failed"
	StepQueued    = "Queued"
)

const (
	progressValidate = 10
	progressPrompts  = 20
	progressSubmit   = 30
	progressPollBase = 50
	progressPollCap  = 65
	progressFetch    = 70
	progressLabel    = 80
	progressDone     = 100
)

var stepMessages = map[string]string{
	StepQueued:    "Waiting to start...",
	StepValidate:  "Validating request and setting up...",
	StepPrompts:   "Generating creative prompts with AI...",
	StepSubmit:    "Starting image generation process...",
	StepPoll:      "Waiting for images to be created...",
	StepFetch:     "Processing and uploading images...",
	StepLabel:     "Analyzing images with computer vision...",
	StepFinalize:  "Saving your beautiful results...",
	StepCompleted: "Done!",
	StepFailed:    "Processing failed.",
}

func StepMessage(step string) string {
	if m, ok := stepMessages[step]; ok {
		return m
	}
	return "Processing..."
}

// PollProgress is the percentage shown while waiting on the external job.
// It creeps forward with each check but never reaches the next step's value.
func PollProgress(retryCount int) int {
	p := progressPollBase + retryCount*2
	if p > progressPollCap || p < progressPollBase {
		return progressPollCap
	}
	return p
}
