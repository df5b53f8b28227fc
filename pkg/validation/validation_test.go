package validation

import (
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	WorkerID string `json:"workerId" validate:"required,ident"`
}

func TestNew_IdentRule(t *testing.T) {
	v := New()
	assert.NoError(t, v.Struct(sample{WorkerID: "worker_01-a"}))

	err := v.Struct(sample{WorkerID: "../etc"})
	require.Error(t, err)
	var verrs validator.ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Equal(t, "workerId", verrs[0].Field())
	assert.Equal(t, "ident", verrs[0].Tag())
}

func TestIsIdent(t *testing.T) {
	assert.True(t, IsIdent("p1"))
	assert.False(t, IsIdent(""))
	assert.False(t, IsIdent("a/b"))
}
