package rates

import (
	"context"
	"fmt"
	"strings"
	"time"

	"alertrules/internal/domain"
)

const (
	// KindEventCount counts events per subject.
	KindEventCount = "event_frequency"
	// KindUniqueUsers counts distinct users per subject.
	KindUniqueUsers = "event_unique_user_frequency"

	anyEnvironment = "*"
)

// Handler answers one windowed aggregate for many subjects in one call.
// Params: window length, subject ids, environment ("" for all), and window end.
// Returns: value per subject; subjects without data may be absent.
type Handler interface {
	GetRatesBulk(ctx context.Context, duration time.Duration, groupIDs []int64, environment string, end time.Time) (map[int64]float64, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, duration time.Duration, groupIDs []int64, environment string, end time.Time) (map[int64]float64, error)

// GetRatesBulk calls the wrapped function.
func (f HandlerFunc) GetRatesBulk(ctx context.Context, duration time.Duration, groupIDs []int64, environment string, end time.Time) (map[int64]float64, error) {
	return f(ctx, duration, groupIDs, environment, end)
}

// Recorder stores one accepted event into the aggregate store.
type Recorder interface {
	Record(ctx context.Context, event domain.Event) error
}

// Handlers resolves rate handlers by query handler kind.
type Handlers map[string]Handler

// Lookup returns handler for kind.
// Params: query handler kind.
// Returns: handler or error for unknown kind.
func (h Handlers) Lookup(kind string) (Handler, error) {
	handler, ok := h[strings.ToLower(strings.TrimSpace(kind))]
	if !ok || handler == nil {
		return nil, fmt.Errorf("no rate handler for %q", kind)
	}
	return handler, nil
}

func environmentKey(environment string) string {
	environment = strings.TrimSpace(environment)
	if environment == "" {
		return anyEnvironment
	}
	return environment
}

// recordEnvironments lists every environment bucket one event contributes to.
func recordEnvironments(event domain.Event) []string {
	if env := strings.TrimSpace(event.Environment); env != "" && env != anyEnvironment {
		return []string{env, anyEnvironment}
	}
	return []string{anyEnvironment}
}
