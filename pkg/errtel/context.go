// context.go propagates the reporting component and caller metadata through
// context.Context.

package errtel

import (
	"context"
	"maps"
)

// Context key types (unexported to avoid collisions)
type componentKey struct{}
type contextValuesKey struct{}

// WithComponent returns a context carrying the component name. Ingestion uses
// it when a report does not name a component.
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey{}, component)
}

// ComponentFromContext extracts the component name from ctx.
// Returns "" and false if not set or empty.
func ComponentFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(componentKey{}).(string)
	return v, ok && v != ""
}

// WithContextValues returns a context carrying metadata merged into every
// record reported with it. Values already on ctx are kept unless overridden.
func WithContextValues(ctx context.Context, values map[string]any) context.Context {
	merged := make(map[string]any)
	if existing, ok := ctx.Value(contextValuesKey{}).(map[string]any); ok {
		maps.Copy(merged, existing)
	}
	maps.Copy(merged, values)
	return context.WithValue(ctx, contextValuesKey{}, merged)
}

// ContextValuesFromContext returns a copy of the metadata carried by ctx.
func ContextValuesFromContext(ctx context.Context) (map[string]any, bool) {
	v, ok := ctx.Value(contextValuesKey{}).(map[string]any)
	if !ok || len(v) == 0 {
		return nil, false
	}
	return maps.Clone(v), true
}
