package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSuccessIsZero(t *testing.T) {
	assert.True(t, Success.IsSuccess())
	assert.Equal(t, "0000-0000", Success.String())
}

func TestNewResultPacksModuleAndDescription(t *testing.T) {
	r := NewResult(ModuleKernel, 132)
	assert.Equal(t, uint32(ModuleKernel), r.Module())
	assert.Equal(t, uint32(132), r.Description())
	assert.False(t, r.IsSuccess())
}

func TestResultStringFormat(t *testing.T) {
	r := NewResult(ModuleKernel, 7)
	assert.Equal(t, "2001-0007", r.String())
}

func TestResultSatisfiesError(t *testing.T) {
	var err error = ResultOutOfHandles
	assert.EqualError(t, err, "2001-0007")
}
