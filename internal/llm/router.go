// Package llm routes backend identifiers to the invoker that serves them.
//
// Identifiers take the form "[provider:]model". A bare model name belongs to
// the router's default provider, so "gemini-2.0-flash" and
// "gemini:gemini-2.0-flash" are equivalent.
package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/JakeFAU/edital-crawler/internal/extract"
)

// DefaultProvider serves identifiers without a provider prefix.
const DefaultProvider = "gemini"

// ErrUnknownProvider is wrapped in the NotFound error for unregistered providers.
var ErrUnknownProvider = errors.New("unknown provider")

// Router is an extract.BackendInvoker that dispatches on the provider prefix.
type Router struct {
	defaultProvider string
	invokers        map[string]extract.BackendInvoker
}

// NewRouter creates an empty router. An empty defaultProvider means DefaultProvider.
func NewRouter(defaultProvider string) *Router {
	if strings.TrimSpace(defaultProvider) == "" {
		defaultProvider = DefaultProvider
	}
	return &Router{
		defaultProvider: defaultProvider,
		invokers:        make(map[string]extract.BackendInvoker),
	}
}

// Register binds provider to inv, replacing any earlier registration.
func (r *Router) Register(provider string, inv extract.BackendInvoker) {
	r.invokers[strings.ToLower(strings.TrimSpace(provider))] = inv
}

// Providers lists registered provider names in sorted order.
func (r *Router) Providers() []string {
	out := make([]string, 0, len(r.invokers))
	for name := range r.invokers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Invoke forwards the model part of backend to the matching provider.
// BackendErrors coming back are relabelled with the full identifier.
func (r *Router) Invoke(ctx context.Context, backend string, req extract.Request) (string, error) {
	provider, model := SplitBackend(backend, r.defaultProvider)
	inv, ok := r.invokers[provider]
	if !ok || inv == nil {
		return "", extract.NotFoundError(backend, fmt.Errorf("%w %q", ErrUnknownProvider, provider))
	}
	body, err := inv.Invoke(ctx, model, req)
	if err != nil {
		var be *extract.BackendError
		if errors.As(err, &be) {
			relabelled := *be
			relabelled.Backend = backend
			return "", &relabelled
		}
		return "", extract.OtherError(backend, err)
	}
	return body, nil
}

// SplitBackend parses "[provider:]model" into its parts.
func SplitBackend(backend, defaultProvider string) (provider, model string) {
	backend = strings.TrimSpace(backend)
	if p, m, ok := strings.Cut(backend, ":"); ok {
		return strings.ToLower(strings.TrimSpace(p)), strings.TrimSpace(m)
	}
	return defaultProvider, backend
}
