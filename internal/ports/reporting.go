package ports

import "context"

// Logger is the structured log sink every component receives. Fields are
// merged into the entry; the context may carry request scoped values such as
// the instrument symbol.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...map[string]interface{})
	Info(ctx context.Context, msg string, fields ...map[string]interface{})
	Warn(ctx context.Context, msg string, fields ...map[string]interface{})
	// Error logs err with msg; err may be nil.
	Error(ctx context.Context, err error, msg string, fields ...map[string]interface{})
}

// Notifier delivers human readable messages to the operator.
// Delivery is best-effort: implementations log failures and never return them.
type Notifier interface {
	Notify(ctx context.Context, subject, body string)
}

// Alerter is the side channel fired on every failed remote attempt.
// Implementations must not block the caller.
type Alerter interface {
	Alert(ctx context.Context, reason string)
}

type symbolKey struct{}

// WithSymbol returns a context whose log lines carry symbol.
func WithSymbol(ctx context.Context, symbol string) context.Context {
	return context.WithValue(ctx, symbolKey{}, symbol)
}

// SymbolFrom returns the symbol set by WithSymbol, or "".
func SymbolFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	s, _ := ctx.Value(symbolKey{}).(string)
	return s
}
