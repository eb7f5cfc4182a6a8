package llm

import (
	"context"
	"fmt"
	"sync"
)

// Role names a class of model call an embedder may bind separately.
type Role string

const (
	RolePlanning   Role = "planning"
	RoleExecution  Role = "execution"
	RoleValidation Role = "validation"
)

// Router binds one configured Provider to per-role models, so an
// embedder can run planning-style calls against a stronger model than
// review-style ones. The Agent Driver's session loop uses the default
// binding; the roles are there for callers that split their work.
type Router struct {
	mu       sync.RWMutex
	provider Provider

	models       map[Role]string
	defaultModel string
}

// NewRouter creates a router over provider, defaulting every role to the
// provider's preferred model.
func NewRouter(provider Provider) *Router {
	defaultModel := ""
	if models := provider.Models(); len(models) > 0 {
		defaultModel = models[0]
	}
	return &Router{
		provider:     provider,
		models:       make(map[Role]string),
		defaultModel: defaultModel,
	}
}

// SetModel binds a role to a model. An empty model resets the role to
// the default.
func (r *Router) SetModel(role Role, model string) *Router {
	r.mu.Lock()
	defer r.mu.Unlock()
	if model == "" {
		delete(r.models, role)
	} else {
		r.models[role] = model
	}
	return r
}

// SetDefaultModel sets the model used when a role has no binding and a
// request names none.
func (r *Router) SetDefaultModel(model string) *Router {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultModel = model
	return r
}

// Model returns the model bound to role, falling back to the default.
func (r *Router) Model(role Role) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if m, ok := r.models[role]; ok {
		return m
	}
	return r.defaultModel
}

// ForPlanning returns a provider pinned to the planning model.
func (r *Router) ForPlanning() Provider { return &routedProvider{router: r, role: RolePlanning} }

// ForExecution returns a provider pinned to the execution model.
func (r *Router) ForExecution() Provider { return &routedProvider{router: r, role: RoleExecution} }

// ForValidation returns a provider pinned to the validation model.
func (r *Router) ForValidation() Provider { return &routedProvider{router: r, role: RoleValidation} }

// Provider returns the underlying provider.
func (r *Router) Provider() Provider { return r.provider }

// Name returns the router name.
func (r *Router) Name() string { return "router:" + r.provider.Name() }

// Models returns the underlying provider's models.
func (r *Router) Models() []string { return r.provider.Models() }

// Complete generates a completion, filling in the default model when the
// request names none.
func (r *Router) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	if req.Model == "" {
		req.Model = r.Model("")
	}
	return r.provider.Complete(ctx, req)
}

// Stream generates a streaming completion with the same model fallback
// as Complete.
func (r *Router) Stream(ctx context.Context, req *CompletionRequest) (<-chan StreamChunk, error) {
	if req.Model == "" {
		req.Model = r.Model("")
	}
	return r.provider.Stream(ctx, req)
}

// CountTokens estimates token count.
func (r *Router) CountTokens(content string) (int, error) {
	return r.provider.CountTokens(content)
}

// routedProvider pins requests to one role's model; the binding is read
// per call so SetModel takes effect on providers handed out earlier.
type routedProvider struct {
	router *Router
	role   Role
}

func (p *routedProvider) Name() string { return p.router.provider.Name() }

func (p *routedProvider) Models() []string { return []string{p.router.Model(p.role)} }

func (p *routedProvider) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	req.Model = p.router.Model(p.role)
	return p.router.provider.Complete(ctx, req)
}

func (p *routedProvider) Stream(ctx context.Context, req *CompletionRequest) (<-chan StreamChunk, error) {
	req.Model = p.router.Model(p.role)
	return p.router.provider.Stream(ctx, req)
}

func (p *routedProvider) CountTokens(content string) (int, error) {
	return p.router.provider.CountTokens(content)
}

// MultiProvider falls back across providers so a WorkItem's drive (or an
// ingestion stage) survives one backend's outage instead of failing on
// an error that had nothing to do with the work itself.
type MultiProvider struct {
	providers []Provider
	primary   int
}

// NewMultiProvider creates a provider with fallback support; the first
// argument is the primary.
func NewMultiProvider(providers ...Provider) *MultiProvider {
	return &MultiProvider{providers: providers}
}

// SetPrimary sets the primary provider index.
func (mp *MultiProvider) SetPrimary(index int) error {
	if index < 0 || index >= len(mp.providers) {
		return fmt.Errorf("invalid provider index: %d", index)
	}
	mp.primary = index
	return nil
}

// Name returns the provider name.
func (mp *MultiProvider) Name() string {
	if len(mp.providers) == 0 {
		return "multi:empty"
	}
	return "multi:" + mp.providers[mp.primary].Name()
}

// Models returns all available models across providers, deduplicated.
func (mp *MultiProvider) Models() []string {
	seen := make(map[string]bool)
	var models []string
	for _, p := range mp.providers {
		for _, m := range p.Models() {
			if !seen[m] {
				seen[m] = true
				models = append(models, m)
			}
		}
	}
	return models
}

// Complete tries the primary, then each fallback in order. Auth errors
// stop the fallback chain: a bad credential fails the same way
// everywhere it's configured.
func (mp *MultiProvider) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	return multiTry(mp, func(p Provider) (*CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// Stream tries the primary, then each fallback in order, with the same
// auth-error cutoff as Complete.
func (mp *MultiProvider) Stream(ctx context.Context, req *CompletionRequest) (<-chan StreamChunk, error) {
	return multiTry(mp, func(p Provider) (<-chan StreamChunk, error) {
		return p.Stream(ctx, req)
	})
}

// CountTokens uses the primary provider.
func (mp *MultiProvider) CountTokens(content string) (int, error) {
	if len(mp.providers) == 0 {
		return 0, fmt.Errorf("no providers configured")
	}
	return mp.providers[mp.primary].CountTokens(content)
}

func multiTry[T any](mp *MultiProvider, call func(Provider) (T, error)) (T, error) {
	var zero T
	if len(mp.providers) == 0 {
		return zero, fmt.Errorf("no providers configured")
	}

	out, lastErr := call(mp.providers[mp.primary])
	if lastErr == nil {
		return out, nil
	}
	if IsAuthError(lastErr) {
		return zero, lastErr
	}

	for i, p := range mp.providers {
		if i == mp.primary {
			continue
		}
		out, err := call(p)
		if err == nil {
			return out, nil
		}
		lastErr = err
	}
	return zero, fmt.Errorf("all providers failed: %w", lastErr)
}
