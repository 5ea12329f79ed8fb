package builtin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry(t *testing.T) {
	reg, err := NewRegistry(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"amqp", "crypto", "echo", "http", "jq", "redis", "script", "shell", "sleep", "url", "uuid"}, reg.Kinds())
}

func TestNewRegistry_BadDefaults(t *testing.T) {
	_, err := NewRegistry(Defaults{"http": {"timeout": "soon"}}, nil)
	assert.ErrorContains(t, err, "action.http")

	_, err = NewRegistry(Defaults{"jq": {"max_input_size": "big"}}, nil)
	assert.ErrorContains(t, err, "action.jq")
}
