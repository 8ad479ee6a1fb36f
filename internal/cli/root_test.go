package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "reflink", cmd.Use)
	assert.Contains(t, cmd.Long, "affiliate referrals")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{
		"init", "link", "short-code", "identifier", "affiliate", "offer-code",
		"track", "transaction", "validate-purchase", "referrer", "deeplink",
		"stub", "test",
	}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
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

	for _, name := range []string{"config", "db", "profile", "company-code"} {
		f := cmd.PersistentFlags().Lookup(name)
		require.NotNil(t, f, name)
		assert.Equal(t, "", f.DefValue, name)
	}

	activeTime := cmd.PersistentFlags().Lookup("active-time")
	require.NotNil(t, activeTime)
	assert.Equal(t, "-1", activeTime.DefValue)
}

func TestIdentifierCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	sub, _, err := cmd.Find([]string{"identifier"})
	require.NoError(t, err)

	f := sub.Flags().Lookup("ignore-timeout")
	require.NotNil(t, f)
	assert.Equal(t, "false", f.DefValue)
}

func TestValidatePurchaseCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	sub, _, err := cmd.Find([]string{"validate-purchase"})
	require.NoError(t, err)

	for _, name := range []string{"subscription-id", "purchase-id", "token", "receipt", "signature", "app-name", "secret-key"} {
		assert.NotNil(t, sub.Flags().Lookup(name), name)
	}
}

func TestTestCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	testCmd, _, err := cmd.Find([]string{"test"})
	require.NoError(t, err)

	updateFlag := testCmd.Flags().Lookup("update")
	require.NotNil(t, updateFlag)
	assert.Equal(t, "false", updateFlag.DefValue)

	assert.NotNil(t, testCmd.Flags().Lookup("filter"))
	assert.NotNil(t, testCmd.Flags().Lookup("golden-dir"))
}

func TestStubCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	stubCmd, _, err := cmd.Find([]string{"stub"})
	require.NoError(t, err)

	addr := stubCmd.Flags().Lookup("addr")
	require.NotNil(t, addr)
	assert.Equal(t, "127.0.0.1:8089", addr.DefValue)
	assert.NotNil(t, stubCmd.Flags().Lookup("seed"))
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--format", "invalid", "identifier"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestLoadConfig_FlagOverrides(t *testing.T) {
	opts := &RootOptions{
		Database:    "/tmp/other.db",
		Profile:     "staging",
		CompanyCode: "GLOBEX",
		ActiveTime:  120,
	}

	cfg, err := opts.loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, "/tmp/other.db", cfg.Store.Path)
	assert.Equal(t, "staging", cfg.Store.Profile)
	assert.Equal(t, "GLOBEX", cfg.CompanyCode)
	assert.Equal(t, int64(120), cfg.AttributionActiveTimeSeconds)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	opts := &RootOptions{ConfigPath: "/nonexistent/reflink.yaml", ActiveTime: -1}

	_, err := opts.loadConfig()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
