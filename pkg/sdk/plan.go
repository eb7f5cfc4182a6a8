package sdk

import "time"

// StepType indicates the nature of a plan step.
type StepType string

const (
	StepTypeRead     StepType = "read"
	StepTypeWrite    StepType = "write"
	StepTypeExecute  StepType = "execute"
	StepTypeValidate StepType = "validate"
)

// PlanStep is a single action a skill intends to take. The shipped
// skills keep their real inputs in Inputs (a retrieval request, a
// browser target) and use Title/Description for the session record.
type PlanStep struct {
	ID          string         `json:"id"`
	Number      int            `json:"number"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Type        StepType       `json:"type"`
	Inputs      map[string]any `json:"inputs,omitempty"`
}

// Plan is what a Skill.Plan call returns for one Task: the ordered steps
// the skill intends to run, which the driver's skill tool then hands to
// Skill.Execute.
type Plan struct {
	ID        string         `json:"id"`
	TaskID    string         `json:"task_id"`
	SkillName string         `json:"skill_name"`
	Title     string         `json:"title"`
	Steps     []PlanStep     `json:"steps"`
	Context   map[string]any `json:"context,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewPlan creates an empty plan for a task and skill.
func NewPlan(taskID, skillName string) *Plan {
	return &Plan{
		ID:        generateID(),
		TaskID:    taskID,
		SkillName: skillName,
		CreatedAt: time.Now(),
		Context:   make(map[string]any),
	}
}

// WithTitle sets the plan title and returns the plan for chaining.
func (p *Plan) WithTitle(title string) *Plan {
	p.Title = title
	return p
}

// AddStep appends a step, assigning its sequence number and an ID if
// the caller left it blank.
func (p *Plan) AddStep(step PlanStep) *Plan {
	step.Number = len(p.Steps) + 1
	if step.ID == "" {
		step.ID = generateID()
	}
	p.Steps = append(p.Steps, step)
	return p
}
