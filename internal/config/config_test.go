package config

import (
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndLoad(t *testing.T) {
	fs := afero.NewMemMapFs()
	cfg := GenerateDefault("/work/hello-world")
	cfg.JVM.DebugInfo = true
	cfg.Output.Dir = "out"
	cfg.Log.File = "kforge.log"
	require.NoError(t, cfg.Save(fs, "/work/hello-world/kforge.toml"))

	got, err := LoadConfig(fs, "/work/hello-world/kforge.toml")
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
	assert.Equal(t, "HelloWorld", got.JVM.ClassName)
}

func TestMissingKeysKeepDefaults(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "kforge.toml", []byte("[jvm]\nclass_name = \"Demo\"\n"), 0o644))

	cfg, err := LoadConfig(fs, "kforge.toml")
	require.NoError(t, err)
	assert.Equal(t, "Demo", cfg.JVM.ClassName)
	assert.Equal(t, 6, cfg.JVM.JavaVersion)
	assert.True(t, cfg.Output.Comments)
	assert.Equal(t, 50_000_000, cfg.Run.MaxSteps)
}

func TestLoadErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, err := LoadConfig(fs, "absent.toml")
	assert.Error(t, err)

	require.NoError(t, afero.WriteFile(fs, "bad.toml", []byte("[jvm\n"), 0o644))
	_, err = LoadConfig(fs, "bad.toml")
	assert.Error(t, err)

	tests := []string{
		"[jvm]\njava_version = 11\n",
		"[jvm]\nclass_name = \"9Lives\"\n",
		"[run]\nmax_steps = -1\n",
		"[log]\nlevel = \"loud\"\n",
	}
	for _, src := range tests {
		require.NoError(t, afero.WriteFile(fs, "k.toml", []byte(src), 0o644))
		_, err := LoadConfig(fs, "k.toml")
		assert.True(t, errors.Is(err, ErrInvalid), "%q: %v", src, err)
	}
}

func TestClassNameFor(t *testing.T) {
	tests := map[string]string{
		"hello-world":   "HelloWorld",
		"fib_test.json": "FibTest",
		"main":          "Main",
		"2fast":         "Fast",
		"---":           "Main",
		"/":             "Main",
	}
	for in, want := range tests {
		assert.Equal(t, want, ClassNameFor(in), in)
		assert.True(t, ValidClassName(ClassNameFor(in)))
	}
	assert.False(t, ValidClassName("a/b"))
	assert.False(t, ValidClassName(""))
}

func TestFindConfigFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	root, err := filepath.Abs("/proj")
	require.NoError(t, err)
	src := filepath.Join(root, "src", "deep", "prog.json")
	require.NoError(t, afero.WriteFile(fs, src, []byte("{}"), 0o644))

	assert.Equal(t, "", FindConfigFile(fs, src))
	cfg, path, err := Load(fs, src)
	require.NoError(t, err)
	assert.Equal(t, "", path)
	assert.Equal(t, Default(), cfg)

	require.NoError(t, Default().Save(fs, filepath.Join(root, ConfigFileName)))
	assert.Equal(t, filepath.Join(root, ConfigFileName), FindConfigFile(fs, src))
	_, path, err = Load(fs, filepath.Dir(src))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, ConfigFileName), path)
}
