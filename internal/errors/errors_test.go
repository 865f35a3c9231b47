package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Error(t *testing.T) {
	err := New(KindValidation, "vectorstore.ensure", "dimension mismatch: have 768, want 1024")
	assert.Equal(t, "vectorstore.ensure: [validation] dimension mismatch: have 768, want 1024", err.Error())
}

func TestWrap_NilCause(t *testing.T) {
	assert.Nil(t, Wrap(KindTransient, "op", nil))
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := stderrors.New("connection reset")
	err := Transient("embed.request", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, KindTransient, KindOf(err))
}

func TestKindOf_WrappedChain(t *testing.T) {
	inner := NotFound("state.get", "no record for a.py")
	outer := fmt.Errorf("planning failed: %w", inner)
	assert.Equal(t, KindNotFound, KindOf(outer))
}

func TestKindOf_PlainError(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(stderrors.New("boom")))
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"transient", Transient("op", stderrors.New("timeout")), true},
		{"validation", Validation("op", "bad dim"), false},
		{"not found", NotFound("op", "gone"), false},
		{"permission", Permission("op", stderrors.New("denied")), false},
		{"conflict", Conflict("op", "already-in-progress"), false},
		{"plain error", stderrors.New("boom"), false},
		{"wrapped transient", fmt.Errorf("x: %w", Transient("op", stderrors.New("503"))), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestError_IsMatchesByKind(t *testing.T) {
	a := Conflict("index", "already-in-progress")
	b := Conflict("other", "different message")
	assert.ErrorIs(t, a, b)
}

func TestWithDetail(t *testing.T) {
	err := Validation("graphstore.schema", "conflicting edge type").
		WithDetail("space", "project_abc").
		WithDetail("edge", "calls")
	require.NotNil(t, err.Details)
	assert.Equal(t, "project_abc", err.Details["space"])
	assert.Equal(t, "calls", err.Details["edge"])
}
