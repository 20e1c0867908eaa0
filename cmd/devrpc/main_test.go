package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/require"
)

func TestParseParams(t *testing.T) {
	params, err := parseParams(nil)
	require.NoError(t, err)
	require.Nil(t, params)

	params, err = parseParams([]string{`{"on":true}`})
	require.NoError(t, err)
	require.Equal(t, map[string]any{"on": true}, params)

	_, err = parseParams([]string{`{on:true}`})
	require.True(t, errors.Is(err, errors.NotValid), "%v", err)
}

func TestDemo(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"demo"})

	require.NoError(t, cmd.Execute())
	for _, call := range demoCalls {
		require.Contains(t, out.String(), call.method+" -> ")
	}
	require.Contains(t, out.String(), `"temperature": 21.5`)
	require.Equal(t, 3, strings.Count(out.String(), `"success": true`))
}

func TestCallRequiresDevice(t *testing.T) {
	t.Setenv("DEVRPC_USER_ID", "u1")
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"call", "reboot", "--transport", "memory"})

	err := cmd.Execute()
	require.True(t, errors.Is(err, errors.NotValid), "%v", err)
}
