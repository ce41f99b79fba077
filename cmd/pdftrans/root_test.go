package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdf-translator/internal/config"
	"pdf-translator/internal/types"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{types.NewAppError(types.ErrInvalidConfiguration, "bad", nil), 2},
		{types.NewAppError(types.ErrParseFailure, "corrupt", nil), 3},
		{types.NewAppError(types.ErrTranslationFailure, "401", nil), 4},
		{types.NewAppError(types.ErrCompositionFailure, "width", nil), 5},
		{types.NewAppError(types.ErrPersistenceFailure, "disk", nil), 6},
		{fmt.Errorf("run: %w", types.NewAppError(types.ErrTimeoutExceeded, "timed out", context.DeadlineExceeded)), 7},
		{errors.New("boom"), 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, exitCode(tt.err), tt.err.Error())
	}
}

func TestOptionsPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "options.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"lang_in":"de","lang_out":"fr","concurrency":5}`), 0644))
	t.Setenv(config.EnvLangIn, "ja")
	t.Setenv(config.EnvLangOut, "ko")

	var f translateFlags
	f.optionsFile = path
	cmd := &cobra.Command{}
	cmd.Flags().StringVar(&f.langOut, "lang-out", "", "")
	cmd.Flags().IntVar(&f.concurrency, "concurrency", 0, "")
	cmd.Flags().StringVar(&f.fontFile, "font", "", "")
	require.NoError(t, cmd.Flags().Set("lang-out", "es"))
	require.NoError(t, cmd.Flags().Set("font", "/fonts/custom.ttf"))

	opts, err := f.options(cmd, "paper.pdf")
	require.NoError(t, err)

	assert.Equal(t, "paper.pdf", opts.InputFile)
	assert.Equal(t, "ja", opts.LangIn, "env overrides the file")
	assert.Equal(t, "es", opts.LangOut, "flags override env")
	assert.Equal(t, 5, opts.Concurrency, "unchanged flags keep the file value")
	assert.Equal(t, "/fonts/custom.ttf", opts.FontFile)
}

func TestOptionsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "options.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0644))

	f := translateFlags{optionsFile: path}
	_, err := f.options(&cobra.Command{}, "paper.pdf")
	assert.True(t, types.IsCode(err, types.ErrInvalidConfiguration))
}

func TestExecuteLeavesErrorReportingToMain(t *testing.T) {
	var stderr bytes.Buffer
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs([]string{"no-such-command"})
	t.Cleanup(func() {
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := Execute()
	require.Error(t, err)
	assert.Empty(t, stderr.String(), "main prints the error once")
}
