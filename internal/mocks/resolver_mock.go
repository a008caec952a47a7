// internal/mocks/resolver_mock.go
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/suture/api/schemas"
)

// MockResolver is a mock implementation of the page.Resolver used to heal
// selectors.
type MockResolver struct {
	mock.Mock
}

func (m *MockResolver) Resolve(ctx context.Context, failed string, perAttempt time.Duration) (*schemas.ResolutionOutcome, error) {
	args := m.Called(ctx, failed, perAttempt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.ResolutionOutcome), args.Error(1)
}
