// File: internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/xkilldash9x/autotiss/internal/cycle"
)

// -- Cycle Mocks --

// MockProcessor mocks cycle.Processor.
type MockProcessor struct {
	mock.Mock
}

func (m *MockProcessor) Process(ctx context.Context, e cycle.Entity) cycle.Outcome {
	args := m.Called(ctx, e)
	return args.Get(0).(cycle.Outcome)
}

var _ cycle.Processor = (*MockProcessor)(nil)
