// Package retrieval exposes the Retrieval Engine (pkg/retrieval) as an
// agent-facing skill: a coding session can ask a research question about
// an ingested corpus the same way it reads project source, instead of
// only ever writing code.
package retrieval

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/loomwork/loom/pkg/retrieval"
	"github.com/loomwork/loom/pkg/sdk"
)

// Skill wraps a retrieval.Engine as an sdk.Skill. CanHandle triggers on the
// "retrieve" / "search corpus" / "lookup reference" phrasing a planning
// step would use when it needs supporting material rather than code.
type Skill struct {
	engine *retrieval.Engine
}

var meta = sdk.SkillMetadata{
	Name:        "retrieval",
	Description: "Query the ingested document corpus via the Retrieval Engine (simple/summary/hierarchical/auto modes)",
	Version:     "1.0.0",
	Triggers:    []string{"retrieve", "search corpus", "lookup reference", "re:(?i)cite the source"},
	Tags:        []string{"research", "rag"},
}

// New wraps engine as a skill. engine may be nil if no vector store was
// configured for this session; CanHandle always returns false in that case
// so the skill is never selected.
func New(engine *retrieval.Engine) *Skill {
	return &Skill{engine: engine}
}

// Metadata returns skill identification and documentation.
func (s *Skill) Metadata() sdk.SkillMetadata {
	return meta
}

// CanHandle reports whether the task's description names retrieval intent.
func (s *Skill) CanHandle(_ context.Context, _ *sdk.ExecutionContext, task *sdk.Task) (bool, float64) {
	if s.engine == nil {
		return false, 0
	}
	if sdk.MatchTrigger(task.Description, meta.Triggers) {
		return true, 0.8
	}
	return false, 0
}

// Plan produces a single-step plan describing the query this skill will run.
func (s *Skill) Plan(_ context.Context, _ *sdk.ExecutionContext, task *sdk.Task) (*sdk.Plan, error) {
	query, _ := task.Context["query"].(string)
	if query == "" {
		query = task.Description
	}
	plan := sdk.NewPlan(task.ID, meta.Name).WithTitle("Retrieval query: " + query)
	plan.AddStep(sdk.PlanStep{
		ID:          task.ID + "-retrieve-1",
		Number:      1,
		Title:       "Query retrieval engine",
		Description: "Run " + query + " against the vector store in auto mode",
		Type:        sdk.StepTypeRead,
		Inputs:      map[string]any{"query": query},
	})
	return plan, nil
}

// Execute runs the planned query (the task context's "query" key, or the
// task description) in auto mode with a limit of 10 and returns the
// response envelope JSON-encoded as the result's artifact. No mode, limit
// or filters are read from the task context.
func (s *Skill) Execute(ctx context.Context, _ *sdk.ExecutionContext, plan *sdk.Plan) (*sdk.Result, error) {
	req := requestFromContext(plan)
	resp := s.engine.Query(ctx, req)

	result := sdk.NewResult(plan.TaskID, meta.Name)
	if !resp.OK {
		return result.WithStatus(sdk.ResultStatusFailed).
			WithMessage(fmt.Sprintf("%s: %s", resp.Kind, resp.Message)), nil
	}

	body, err := json.Marshal(resp)
	if err != nil {
		return result.WithStatus(sdk.ResultStatusFailed).WithError(err), nil
	}

	return result.
		WithStatus(sdk.ResultStatusSuccess).
		WithMessage(fmt.Sprintf("retrieved %d result(s) in %s mode", resp.Total, resp.Mode)).
		SetArtifact("retrieval_response.json", string(body)), nil
}

// Validate always passes: a well-formed error envelope is still a valid
// outcome (an empty corpus is not a skill failure).
func (s *Skill) Validate(context.Context, *sdk.ExecutionContext, *sdk.Result) error {
	return nil
}

func requestFromContext(plan *sdk.Plan) retrieval.Request {
	req := retrieval.Request{Mode: retrieval.ModeAuto, Limit: 10}
	if len(plan.Steps) == 0 {
		return req
	}
	req.Query, _ = plan.Steps[0].Inputs["query"].(string)
	return req
}
