package evidence

import (
	"context"
	"sync"
)

// MockProvider is a configurable Provider for tests.
type MockProvider struct {
	mu sync.Mutex

	// EvaluateFunc overrides Evaluate entirely when set.
	EvaluateFunc func(ctx context.Context, source, target EntityRef, saga SagaContext) (*Evaluation, error)

	// Evaluation and Err are returned when EvaluateFunc is nil.
	Evaluation *Evaluation
	Err        error

	// ModelName is returned by Model; defaults to "mock-model".
	ModelName string

	calls []EntityPairCall
}

// EntityPairCall records one Evaluate invocation.
type EntityPairCall struct {
	SourceID int64
	TargetID int64
}

var _ Provider = (*MockProvider)(nil)

// Evaluate implements Provider.
func (m *MockProvider) Evaluate(ctx context.Context, source, target EntityRef, saga SagaContext) (*Evaluation, error) {
	m.mu.Lock()
	m.calls = append(m.calls, EntityPairCall{SourceID: source.ID, TargetID: target.ID})
	m.mu.Unlock()

	if m.EvaluateFunc != nil {
		return m.EvaluateFunc(ctx, source, target, saga)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Evaluation, nil
}

// Model implements Provider.
func (m *MockProvider) Model() string {
	if m.ModelName == "" {
		return "mock-model"
	}
	return m.ModelName
}

// Calls returns a copy of the recorded Evaluate invocations.
func (m *MockProvider) Calls() []EntityPairCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EntityPairCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times Evaluate was invoked.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
