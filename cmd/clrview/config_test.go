package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skdltmxn/clrmeta-go/clr"
	"github.com/skdltmxn/clrmeta-go/internal/sig"
)

func newFlagSet(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("clrview", pflag.ContinueOnError)
	registerConfigFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := loadConfig(newFlagSet(t))
	require.NoError(t, err)
	assert.Equal(t, 1024, cfg.UserStringCacheSize)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.False(t, cfg.DisableAliasResolution)
	assert.Empty(t, cfg.SearchPaths)
}

func TestLoadConfigPrecedence(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	yaml := "search_paths:\n  - /opt/refs\nuser_string_cache_size: 16\nlog_level: info\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "clrview.yaml"), []byte(yaml), 0o644))

	cfg, err := loadConfig(newFlagSet(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"/opt/refs"}, cfg.SearchPaths)
	assert.Equal(t, 16, cfg.UserStringCacheSize)
	assert.Equal(t, "info", cfg.LogLevel)

	t.Setenv("CLRVIEW_USER_STRING_CACHE_SIZE", "7")
	cfg, err = loadConfig(newFlagSet(t))
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.UserStringCacheSize)

	cfg, err = loadConfig(newFlagSet(t, "--us-cache=3", "--log-level=debug", "--no-alias"))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.UserStringCacheSize)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.DisableAliasResolution)
}

func TestLoadConfigRejectsNegativeCache(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := loadConfig(newFlagSet(t, "--us-cache=-1"))
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	log, err := newLogger("DEBUG")
	require.NoError(t, err)
	assert.NotNil(t, log)

	_, err = newLogger("loud")
	assert.Error(t, err)
}

func TestFormatArg(t *testing.T) {
	tests := []struct {
		name string
		arg  clr.AttributeArgument
		want string
	}{
		{"null", clr.AttributeArgument{Kind: sig.String}, "null"},
		{"string", clr.AttributeArgument{Kind: sig.String, Value: "a\"b"}, `"a\"b"`},
		{"int", clr.AttributeArgument{Kind: sig.I4, Value: int32(-5)}, "-5"},
		{"bool", clr.AttributeArgument{Kind: sig.Boolean, Value: true}, "true"},
		{"char", clr.AttributeArgument{Kind: sig.Char, Value: uint16('x')}, "'x'"},
		{"type", clr.AttributeArgument{Kind: sig.SerType, Value: "System.Int32"}, "typeof(System.Int32)"},
		{"enum", clr.AttributeArgument{Kind: sig.SerEnum, TypeName: "Demo.Color", Value: int32(1)}, "(Demo.Color)1"},
		{"array", clr.AttributeArgument{Kind: sig.SZArray, Value: []clr.AttributeArgument{
			{Kind: sig.U1, Value: uint8(1)},
			{Kind: sig.String, Value: "x"},
		}}, `{1, "x"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatArg(tt.arg))
		})
	}
}
