package apperrors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestSentinelMatching(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"not found", NotFound("version", id), ErrNotFound},
		{"validation", Invalid("prompt", "must not be empty"), ErrValidation},
		{"conflict", Conflict("version %s belongs to another automaton", id), ErrConflict},
		{"storage", Storage("commit", errors.New("connection reset")), ErrStorage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.want)
			wrapped := fmt.Errorf("registry: op: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.want)
		})
	}
}

func TestNotFoundMessage(t *testing.T) {
	id := uuid.MustParse("0190f5a0-0000-7000-8000-000000000001")
	assert.Equal(t, "automaton 0190f5a0-0000-7000-8000-000000000001 not found", NotFound("automaton", id).Error())
	assert.Equal(t, "current version not found", NotFound("current version", nil).Error())
}

func TestStorageKeepsClassifiedErrors(t *testing.T) {
	nf := NotFound("test", uuid.New())
	assert.Same(t, nf, Storage("get test", nf))
	assert.NoError(t, Storage("noop", nil))

	cause := errors.New("disk full")
	err := Storage("insert change", cause)
	var se *StorageError
	assert.True(t, errors.As(err, &se))
	assert.Equal(t, "insert change", se.Op)
	assert.ErrorIs(t, err, cause)
	assert.False(t, errors.Is(err, ErrConflict))
}

func TestStorageLeavesContextErrorsUnclassified(t *testing.T) {
	for _, cause := range []error{context.Canceled, context.DeadlineExceeded} {
		err := Storage("get test", fmt.Errorf("query: %w", cause))
		assert.ErrorIs(t, err, cause)
		assert.False(t, errors.Is(err, ErrStorage), "%v must not be a storage failure", cause)
		assert.False(t, IsClassified(err))
		assert.Contains(t, err.Error(), "get test")
	}
}
