package ptrx_test

import (
	"testing"

	"github.com/Abraxas-365/authlink/pkg/ptrx"
	"github.com/stretchr/testify/assert"
)

func TestNonEmptyString(t *testing.T) {
	assert.Nil(t, ptrx.NonEmptyString(""))
	assert.Equal(t, "a", *ptrx.NonEmptyString("a"))
}

func TestClone(t *testing.T) {
	orig := ptrx.String("x")
	c := ptrx.Clone(orig)
	*c = "y"
	assert.Equal(t, "x", *orig)
	assert.Nil(t, ptrx.Clone[string](nil))
}

func TestValues(t *testing.T) {
	assert.Equal(t, "", ptrx.StringValue(nil))
	assert.False(t, ptrx.BoolValue(nil))
	assert.True(t, ptrx.BoolValue(ptrx.Bool(true)))
}
