package agent

import "context"

// Handler is the outbound agent contract from spec.md §6: given a Task and
// its EnrichedContext, produce a Response or fail with one of the
// classified errors in errors.go. Handlers must be reentrant and honour
// the context deadline.
type Handler interface {
	Invoke(ctx context.Context, task Task, enriched EnrichedContext) (Response, error)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, task Task, enriched EnrichedContext) (Response, error)

func (f HandlerFunc) Invoke(ctx context.Context, task Task, enriched EnrichedContext) (Response, error) {
	return f(ctx, task, enriched)
}

// Provider is the outbound fallback-provider contract from spec.md §6.
type Provider interface {
	CallProvider(ctx context.Context, provider, prompt, model string, params map[string]interface{}) (Response, error)
}

// ProviderFunc adapts a plain function to Provider.
type ProviderFunc func(ctx context.Context, provider, prompt, model string, params map[string]interface{}) (Response, error)

func (f ProviderFunc) CallProvider(ctx context.Context, provider, prompt, model string, params map[string]interface{}) (Response, error) {
	return f(ctx, provider, prompt, model, params)
}
