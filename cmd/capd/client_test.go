package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArguments(t *testing.T) {
	got, err := parseArguments([]string{"q=hello", "filter=a=b", " page =2"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"q": "hello", "filter": "a=b", "page": "2"}, got)

	_, err = parseArguments([]string{"novalue"})
	require.Error(t, err)
	_, err = parseArguments([]string{"=x"})
	require.Error(t, err)
}

func TestPrintReplyErrorExitCode(t *testing.T) {
	err := printReply(true, []string{"No tool definition found for: x"}, false)
	var exitErr exitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.code)
	assert.True(t, exitErr.silent)

	require.NoError(t, printReply(false, []string{"ok"}, true))
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCommand()
	names := map[string]bool{}
	for _, cmd := range root.Commands() {
		names[cmd.Name()] = true
	}
	for _, want := range []string{"serve", "validate", "invoke", "acquire", "describe", "provision", "version"} {
		assert.True(t, names[want], want)
	}
}
