package llm

import "context"

// Middleware wraps a Client with additional behavior. Middlewares are
// composed with Chain to build the per-request processing pipeline.
type Middleware func(next Client) Client

type clientFunc struct {
	complete  func(context.Context, CompletionRequest) (CompletionResponse, error)
	modelName func() string
}

func (f clientFunc) Complete(ctx context.Context, in CompletionRequest) (CompletionResponse, error) {
	return f.complete(ctx, in)
}

func (f clientFunc) ModelName() string {
	return f.modelName()
}

// WrapClient adapts plain functions into a Client, for middleware
// implementations.
func WrapClient(
	complete func(context.Context, CompletionRequest) (CompletionResponse, error),
	modelName func() string,
) Client {
	return clientFunc{complete: complete, modelName: modelName}
}

// Chain composes middlewares around a base client. Earlier middlewares are
// outermost: Chain(c, mw1, mw2) yields the call stack mw1 -> mw2 -> c.
func Chain(base Client, middlewares ...Middleware) Client {
	client := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		client = middlewares[i](client)
	}
	return client
}
