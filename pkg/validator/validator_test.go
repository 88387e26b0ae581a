package validator

import (
	"testing"

	"github.com/gin-gonic/gin/binding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsPhoneInvalid(t *testing.T) {
	assert.False(t, IsPhoneInvalid("13812345678"))
	assert.False(t, IsPhoneInvalid("19912345678"))
	assert.True(t, IsPhoneInvalid("12812345678"))
	assert.True(t, IsPhoneInvalid("1381234567"))
	assert.True(t, IsPhoneInvalid(""))
}

func TestIsCodeInvalid(t *testing.T) {
	assert.False(t, IsCodeInvalid("012345"))
	assert.True(t, IsCodeInvalid("12345"))
	assert.True(t, IsCodeInvalid("abcdef"))
}

func TestRegisterBindingRules(t *testing.T) {
	require.NoError(t, RegisterBindingRules())

	type form struct {
		Phone string `binding:"required,phone"`
	}
	require.NoError(t, binding.Validator.ValidateStruct(&form{Phone: "13812345678"}))
	require.Error(t, binding.Validator.ValidateStruct(&form{Phone: "123"}))
}
