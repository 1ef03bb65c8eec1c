package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "parceltrack", cmd.Use)
	assert.Contains(t, cmd.Long, "carrier APIs")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"tick"}, {"start"}, {"stop"}, {"jobs"}, {"refresh"},
		{"import"}, {"adhoc"}, {"pending"}, {"daily"}, {"export"},
		{"readiness"}, {"seed-defaults"}, {"diagnostics"}, {"serve"},
		{"cache", "clear"}, {"config", "get"}, {"config", "set"},
	}

	for _, path := range commands {
		name := path[len(path)-1]
		t.Run(name, func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err, "command %v should exist", path)
			require.NotNil(t, subCmd)
			assert.Equal(t, name, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)
	assert.Equal(t, "", configFlag.DefValue)

	envFlag := cmd.PersistentFlags().Lookup("env-file")
	require.NotNil(t, envFlag)
	assert.Equal(t, ".env", envFlag.DefValue)
}

func TestCommandFlags(t *testing.T) {
	tests := []struct {
		path      []string
		flag      string
		shorthand string
		defValue  string
	}{
		{[]string{"export"}, "output", "o", "parceltrack.xlsx"},
		{[]string{"diagnostics"}, "limit", "n", "50"},
		{[]string{"import"}, "rebuild", "", "false"},
		{[]string{"daily"}, "every", "", "0s"},
		{[]string{"daily"}, "cancel", "", "false"},
		{[]string{"refresh"}, "carrier", "", "[]"},
		{[]string{"serve"}, "addr", "", ""},
	}

	cmd := NewRootCommand()
	for _, tt := range tests {
		t.Run(tt.flag, func(t *testing.T) {
			sub, _, err := cmd.Find(tt.path)
			require.NoError(t, err)
			f := sub.Flags().Lookup(tt.flag)
			require.NotNil(t, f)
			assert.Equal(t, tt.shorthand, f.Shorthand)
			assert.Equal(t, tt.defValue, f.DefValue)
		})
	}
}

func TestExecute_CommandErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"invalid format", []string{"--format", "yaml", "jobs"}},
		{"unknown flag", []string{"jobs", "--nope"}},
		{"missing argument", []string{"start"}},
		{"missing settings file", []string{"--config", "does-not-exist.yaml", "jobs"}},
		{"non-positive limit", []string{"diagnostics", "--limit", "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
			code := Execute(tt.args, out, errOut)
			assert.Equal(t, ExitCommandError, code)
			assert.Contains(t, errOut.String(), "Error [")
		})
	}
}
