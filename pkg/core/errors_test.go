package core_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xingxinonline/landoubao-mem0/pkg/core"
)

func TestEngineErrorUnwrap(t *testing.T) {
	inner := fmt.Errorf("%w: record r1", core.ErrNotFound)
	err := core.NewEngineError("Get", inner)

	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.Contains(t, err.Error(), "Get")
	assert.Contains(t, err.Error(), "r1")

	var ee *core.EngineError
	assert.True(t, errors.As(err, &ee))
	assert.Equal(t, "Get", ee.Op)
}

func TestSentinelsAreDistinct(t *testing.T) {
	sentinels := []error{
		core.ErrNotFound, core.ErrInvalidConfig, core.ErrInvalidInput,
		core.ErrTransientDependency, core.ErrInvariantViolation,
		core.ErrConflict, core.ErrStorageOperation, core.ErrProtected,
	}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i != j {
				assert.NotErrorIs(t, a, b)
			}
		}
	}
}
