//go:build !integration

package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/leadgate/internal/config"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// useTestConfig points cfg at a fresh SQLite file with validation-ready
// defaults and returns the database path.
func useTestConfig(t *testing.T) string {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "leadgate.db")
	cfg = &config.Config{
		Store:    config.StoreConfig{Driver: "sqlite", DatabaseURL: dsn},
		Batch:    config.BatchConfig{MaxConcurrentCandidates: 4},
		Pipeline: config.PipelineConfig{UnitCost: 1, DuplicateWindowDays: 180},
		Server:   config.ServerConfig{Port: 8080},
	}
	return dsn
}

func withContext(t *testing.T, cmd *cobra.Command) {
	t.Helper()
	cmd.SetContext(context.Background())
	t.Cleanup(func() { cmd.SetContext(context.TODO()) })
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	expected := []string{"serve", "batch", "validate", "reaudit", "credits", "migrate", "export", "blacklist", "import"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "leadgate", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestCreditsCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range creditsCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"grant", "balance", "history", "reconcile"} {
		assert.True(t, names[name], "credits should have subcommand %q", name)
	}
}

func TestBatchCommand_Flags(t *testing.T) {
	flag := batchCmd.Flags().Lookup("limit")
	require.NotNil(t, flag, "batch command should have --limit flag")
	assert.Equal(t, "100", flag.DefValue)

	src := batchCmd.Flags().Lookup("source")
	require.NotNil(t, src)
	assert.Equal(t, "notion", src.DefValue)

	for _, name := range []string{"csv", "user", "prompt", "city", "retry-dlq"} {
		assert.NotNil(t, batchCmd.Flags().Lookup(name), "batch should have --%s flag", name)
	}
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestExportCommand_Flags(t *testing.T) {
	flag := exportCmd.Flags().Lookup("out")
	require.NotNil(t, flag)
	assert.Equal(t, "leads.xlsx", flag.DefValue)
}
