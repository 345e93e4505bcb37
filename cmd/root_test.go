package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	expected := []string{"regions", "contains", "centroid", "validate", "nearby", "impact", "import", "migrate", "serve"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "healthmap", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestImportCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range importCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["reports"])
	assert.True(t, names["counts"])
}

func TestCommandFlags(t *testing.T) {
	for _, tc := range []struct {
		cmd  string
		flag string
		def  string
	}{
		{"serve", "port", "0"},
		{"serve", "refresh", "0s"},
		{"nearby", "radius", "0"},
		{"nearby", "top-k", "0"},
		{"nearby", "category", "[]"},
		{"impact", "plan", ""},
		{"impact", "xlsx", ""},
		{"contains", "lat", "0"},
	} {
		c, _, err := rootCmd.Find([]string{tc.cmd})
		require.NoError(t, err, tc.cmd)
		f := c.Flags().Lookup(tc.flag)
		require.NotNil(t, f, "%s should have --%s", tc.cmd, tc.flag)
		assert.Equal(t, tc.def, f.DefValue, "%s --%s", tc.cmd, tc.flag)
	}
}

func TestRootCmd_PersistentPreRunE_WithValidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configContent := `
store:
  driver: postgres
  database_url: postgres://localhost/health
log:
  level: info
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "config.yaml"), []byte(configContent), 0o644))
	chdir(t, tmpDir)

	oldCfg := cfg
	cfg = nil
	defer func() { cfg = oldCfg }()

	err := rootCmd.PersistentPreRunE(rootCmd, nil)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "postgres", cfg.Store.Driver)
}

func TestRootCmd_PersistentPreRunE_BadLogLevel(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "config.yaml"), []byte("log:\n  level: loud\n"), 0o644))
	chdir(t, tmpDir)

	oldCfg := cfg
	defer func() { cfg = oldCfg }()

	err := rootCmd.PersistentPreRunE(rootCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "init logger")
}

func TestParsePoint(t *testing.T) {
	p, err := parsePoint("0.5, -1.25")
	require.NoError(t, err)
	assert.Equal(t, 0.5, p.Lat)
	assert.Equal(t, -1.25, p.Lng)

	for _, bad := range []string{"0.5", "x,1", "1,y"} {
		_, err := parsePoint(bad)
		assert.Error(t, err, bad)
	}
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
}

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}
