package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type request struct {
	Name string `json:"name" validate:"required,max=8,clientname"`
}

func TestValidator(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.Validate(&request{Name: "alice"}))
	assert.NoError(t, v.Validate(&request{Name: "zoë"}))

	for _, name := range []string{"", "   ", "a\nb", "waytoolongname"} {
		assert.Error(t, v.Validate(&request{Name: name}), "%q", name)
	}

	err := v.Validate(&request{Name: "a\tb"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid name")
	assert.Contains(t, err.Error(), "clientname")
}
