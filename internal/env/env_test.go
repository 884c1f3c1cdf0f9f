package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetEnvString(t *testing.T) {
	t.Setenv("ENV_TEST_STRING", "value")
	assert.Equal(t, "value", GetEnvString("ENV_TEST_STRING", "fallback"))
	assert.Equal(t, "fallback", GetEnvString("ENV_TEST_STRING_MISSING", "fallback"))
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("ENV_TEST_INT", "42")
	assert.Equal(t, 42, GetEnvInt("ENV_TEST_INT", 7))

	t.Setenv("ENV_TEST_INT_BAD", "not-a-number")
	assert.Equal(t, 7, GetEnvInt("ENV_TEST_INT_BAD", 7))
	assert.Equal(t, 7, GetEnvInt("ENV_TEST_INT_MISSING", 7))
}

func TestGetEnvFloat(t *testing.T) {
	t.Setenv("ENV_TEST_FLOAT", "0.25")
	assert.Equal(t, 0.25, GetEnvFloat("ENV_TEST_FLOAT", 0.05))

	t.Setenv("ENV_TEST_FLOAT_BAD", "rate")
	assert.Equal(t, 0.05, GetEnvFloat("ENV_TEST_FLOAT_BAD", 0.05))
	assert.Equal(t, 0.05, GetEnvFloat("ENV_TEST_FLOAT_MISSING", 0.05))
}
