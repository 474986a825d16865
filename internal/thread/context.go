package thread

import "context"

type currentKey struct{}

// WithCurrent marks ctx as executing on t. Loops apply it to every call they run;
// tests use it to fake the current thread.
func WithCurrent(ctx context.Context, t *Thread) context.Context {
	return context.WithValue(ctx, currentKey{}, t)
}

// FromContext returns the thread ctx is executing on, if any.
func FromContext(ctx context.Context) (*Thread, bool) {
	if ctx == nil {
		return nil, false
	}
	t, ok := ctx.Value(currentKey{}).(*Thread)
	return t, ok && t != nil
}

// CurrentName is the diagnostic name of the thread ctx is executing on.
func CurrentName(ctx context.Context) string {
	if t, ok := FromContext(ctx); ok {
		return t.Name()
	}
	return "unknown"
}
