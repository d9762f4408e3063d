package models

var stepNames = map[int]string{
	1: "Project description",
	2: "Needs analysis",
	3: "Planning",
	4: "Specification",
	5: "Trials and experiments",
	6: "Analysis of results",
	7: "Final report",
	8: "Review and presentation",
}

// StepName returns the human-readable name of a workflow step.
func StepName(step int) string {
	if name, ok := stepNames[step]; ok {
		return name
	}
	return "Unknown step"
}
