package faults

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus(t *testing.T) {
	wrapped := fmt.Errorf("%w: point needs 3 parameters", ErrValidation)

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil is success", nil, StatusOK},
		{"validation", wrapped, StatusValidation},
		{"double wrapped", fmt.Errorf("set primitive: %w", wrapped), StatusValidation},
		{"not found", ErrNotFound, StatusNotFound},
		{"kinematic", ErrKinematic, StatusKinematic},
		{"consistency", ErrConsistency, StatusConsistency},
		{"solver", ErrSolverInfeasible, StatusSolver},
		{"collision", ErrCollisionQuery, StatusCollisionQuery},
		{"expired", ErrHandleExpired, StatusHandleExpired},
		{"unavailable", ErrUnavailable, StatusUnavailable},
		{"uncategorized", errors.New("boom"), StatusInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Status(tt.err)
			assert.Equal(t, tt.want, got)
			if tt.err != nil {
				assert.Less(t, got, 0)
			}
		})
	}
}

func TestCategory(t *testing.T) {
	err := fmt.Errorf("%w: frame base_link", ErrKinematic)
	assert.Equal(t, ErrKinematic, Category(err))
	assert.Nil(t, Category(errors.New("plain")))
}
