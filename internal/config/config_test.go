package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-verdict/internal/device"
	"github.com/23skdu/longbow-verdict/internal/tensor"
)

type fakeBinder struct {
	fs *pflag.FlagSet
}

func (f *fakeBinder) Flags() *pflag.FlagSet { return f.fs }

func newFlagBinder(defaults Config, args ...string) (*fakeBinder, error) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs, defaults)
	return &fakeBinder{fs: fs}, fs.Parse(args)
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Validation.NumElementsToValidate != 0 {
		t.Errorf("expected validation off by default, got %d", cfg.Validation.NumElementsToValidate)
	}
	if cfg.Validation.PrintMax != 10 {
		t.Errorf("expected PrintMax 10, got %d", cfg.Validation.PrintMax)
	}
	if cfg.BoundsCheckMode() != device.BoundsCheckNone {
		t.Errorf("expected no bounds check, got %v", cfg.BoundsCheckMode())
	}
	if cfg.Validation.Enabled() {
		t.Error("default config should not enable validation")
	}
}

func TestEnabled(t *testing.T) {
	tests := []struct {
		name string
		cfg  ValidationConfig
		want bool
	}{
		{"disabled", ValidationConfig{}, false},
		{"sampled", ValidationConfig{NumElementsToValidate: 1000}, true},
		{"all", ValidationConfig{NumElementsToValidate: -1}, true},
		{"print only", ValidationConfig{PrintTensorRef: true}, true},
		{"print valids alone", ValidationConfig{PrintValids: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.Enabled())
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		c := Default()
		c.Bench.ProblemSpecs = []string{"4x4x4"}
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid config", func(*Config) {}, false},
		{"negative print max", func(c *Config) { c.Validation.PrintMax = -1 }, true},
		{"conv without identifier", func(c *Config) { c.Validation.ConvolutionVsContraction = true }, true},
		{"bad bounds check", func(c *Config) { c.Init.BoundsCheck = "front" }, true},
		{"negative guard", func(c *Config) { c.Init.GuardElements = -4 }, true},
		{"no solutions", func(c *Config) { c.Bench.Solutions = nil }, true},
		{"no problems", func(c *Config) { c.Bench.ProblemSpecs = nil }, true},
		{"bad problem types", func(c *Config) { c.Bench.ProblemSpecs = []string{"4x4x4:Q"} }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseProblem(t *testing.T) {
	p, err := ParseProblem("128x64x32x2:H_H_S")
	require.NoError(t, err)
	assert.Equal(t, ProblemConfig{M: 128, N: 64, K: 32, Batch: 2, Types: "H_H_S", Alpha: 1}, p)

	g, err := p.GEMM()
	require.NoError(t, err)
	assert.Equal(t, tensor.Half, g.Types.A)
	assert.Equal(t, tensor.Float, g.Types.Alpha)

	p, err = ParseProblem("8x8x8")
	require.NoError(t, err)
	g, err = p.GEMM()
	require.NoError(t, err)
	assert.Equal(t, 1, g.Batch)
	assert.Equal(t, tensor.Float, g.Types.D)

	for _, bad := range []string{"8x8", "8x8x0", "axbxc", "1x2x3x4x5"} {
		_, err := ParseProblem(bad)
		assert.Error(t, err, bad)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(LoadOptions{Defaults: Default()})
	require.NoError(t, err)
	assert.Equal(t, Default().Validation, cfg.Validation)
	assert.Equal(t, []string{"naive", "tiled"}, cfg.Bench.Solutions)
}

func TestLoadFlagsOverrideDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	b, err := newFlagBinder(Default(),
		"--num-elements-to-validate=-1",
		"--print-tensor-d",
		"--bounds-check=nan",
		"--solutions=naive,corrupt",
		"--problem=4x4x4", "--problem=8x8x8:D",
	)
	require.NoError(t, err)

	cfg, err := Load(LoadOptions{Cmd: b, Defaults: Default()})
	require.NoError(t, err)
	assert.Equal(t, -1, cfg.Validation.NumElementsToValidate)
	assert.True(t, cfg.Validation.PrintTensorD)
	assert.Equal(t, device.BoundsCheckNaN, cfg.BoundsCheckMode())
	assert.Equal(t, []string{"naive", "corrupt"}, cfg.Bench.Solutions)

	problems, err := cfg.Problems()
	require.NoError(t, err)
	require.Len(t, problems, 2)
	assert.Equal(t, tensor.Double, problems[1].Types.D)
}

func TestLoadEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("VERDICT_VALIDATION_PRINT_MAX", "3")
	t.Setenv("VERDICT_INIT_BOUNDS_CHECK", "guard-page-back")

	b, err := newFlagBinder(Default())
	require.NoError(t, err)
	cfg, err := Load(LoadOptions{Cmd: b, Defaults: Default()})
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Validation.PrintMax)
	assert.Equal(t, device.BoundsCheckGuardPageBack, cfg.BoundsCheckMode())
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "verdict.yaml")
	content := `
validation:
  num_elements_to_validate: 1000
  convolution_vs_contraction: true
  convolution_identifier: ConvolutionForward_NCHW_filter:1x1
bench:
  solutions: [naive]
  problems:
    - m: 16
      n: 8
      k: 4
      types: S
      alpha: 2
      beta: 1
      ldd: 20
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(LoadOptions{ConfigFile: path, Defaults: Default()})
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 1000, cfg.Validation.NumElementsToValidate)
	assert.True(t, cfg.Validation.ConvolutionVsContraction)

	problems, err := cfg.Problems()
	require.NoError(t, err)
	require.Len(t, problems, 1)
	assert.Equal(t, 16, problems[0].M)
	assert.Equal(t, 1, problems[0].Batch)
	assert.Equal(t, 20, problems[0].LDD)
	assert.Equal(t, 2.0, problems[0].Alpha)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(LoadOptions{ConfigFile: filepath.Join(t.TempDir(), "missing.yaml"), Defaults: Default()})
	assert.Error(t, err)
}
