package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/23skdu/longbow-verdict/internal/device"
	"github.com/23skdu/longbow-verdict/internal/problem"
	"github.com/23skdu/longbow-verdict/internal/tensor"
)

type Config struct {
	Validation ValidationConfig `mapstructure:"validation"`
	Init       InitConfig       `mapstructure:"init"`
	Bench      BenchConfig      `mapstructure:"bench"`
	Report     ReportConfig     `mapstructure:"report"`
}

// ValidationConfig is read once when the validator is built.
type ValidationConfig struct {
	// NumElementsToValidate: 0 disables checking, negative checks every
	// element, positive samples roughly that many.
	NumElementsToValidate int  `mapstructure:"num_elements_to_validate"`
	PrintValids           bool `mapstructure:"print_valids"`
	PrintMax              int  `mapstructure:"print_max"`

	PrintTensorA   bool `mapstructure:"print_tensor_a"`
	PrintTensorB   bool `mapstructure:"print_tensor_b"`
	PrintTensorC   bool `mapstructure:"print_tensor_c"`
	PrintTensorD   bool `mapstructure:"print_tensor_d"`
	PrintTensorRef bool `mapstructure:"print_tensor_ref"`

	ConvolutionVsContraction bool   `mapstructure:"convolution_vs_contraction"`
	ConvolutionIdentifier    string `mapstructure:"convolution_identifier"`
	DebugConvolutionTensors  bool   `mapstructure:"debug_convolution_tensors"`
}

type InitConfig struct {
	BoundsCheck   string `mapstructure:"bounds_check"`
	GuardElements int    `mapstructure:"guard_elements"`
	Seed          uint64 `mapstructure:"seed"`
}

type BenchConfig struct {
	Warmups    int      `mapstructure:"warmups"`
	Iterations int      `mapstructure:"iterations"`
	Solutions  []string `mapstructure:"solutions"`
	// Problems come from a config file; ProblemSpecs from --problem flags.
	Problems     []ProblemConfig `mapstructure:"problems"`
	ProblemSpecs []string        `mapstructure:"problem_specs"`
}

// ProblemConfig describes one batched GEMM contraction.
type ProblemConfig struct {
	M         int     `mapstructure:"m"`
	N         int     `mapstructure:"n"`
	K         int     `mapstructure:"k"`
	Batch     int     `mapstructure:"batch"`
	Types     string  `mapstructure:"types"`
	AlphaType string  `mapstructure:"alpha_type"`
	BetaType  string  `mapstructure:"beta_type"`
	Alpha     float64 `mapstructure:"alpha"`
	Beta      float64 `mapstructure:"beta"`
	LDA       int     `mapstructure:"lda"`
	LDB       int     `mapstructure:"ldb"`
	LDC       int     `mapstructure:"ldc"`
	LDD       int     `mapstructure:"ldd"`
}

type ReportConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	LogFormat      string `mapstructure:"log_format"`
	TensorDumpPath string `mapstructure:"tensor_dump_path"`
	FlightAddr     string `mapstructure:"flight_addr"`
	MetricsAddr    string `mapstructure:"metrics_addr"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func Default() Config {
	return Config{
		Validation: ValidationConfig{
			NumElementsToValidate: 0,
			PrintMax:              10,
		},
		Init: InitConfig{
			BoundsCheck:   "none",
			GuardElements: 64,
			Seed:          1,
		},
		Bench: BenchConfig{
			Warmups:    0,
			Iterations: 10,
			Solutions:  []string{"naive", "tiled"},
		},
		Report: ReportConfig{
			LogLevel:  "info",
			LogFormat: "console",
		},
	}
}

// Enabled reports whether the validator has any work to do.
func (v ValidationConfig) Enabled() bool {
	return v.NumElementsToValidate != 0 || v.PrintAny()
}

func (v ValidationConfig) PrintAny() bool {
	return v.PrintTensorA || v.PrintTensorB || v.PrintTensorC || v.PrintTensorD || v.PrintTensorRef
}

func (c *Config) Validate() error {
	if c.Validation.PrintMax < 0 {
		return fmt.Errorf("invalid print_max: %d (must be non-negative)", c.Validation.PrintMax)
	}
	if c.Validation.ConvolutionVsContraction && c.Validation.ConvolutionIdentifier == "" {
		return errors.New("convolution_vs_contraction requires convolution_identifier")
	}
	if _, err := device.ParseBoundsCheckMode(c.Init.BoundsCheck); err != nil {
		return fmt.Errorf("invalid bounds_check: %w", err)
	}
	if c.Init.GuardElements < 0 {
		return fmt.Errorf("invalid guard_elements: %d (must be non-negative)", c.Init.GuardElements)
	}
	if c.Bench.Warmups < 0 {
		return fmt.Errorf("invalid warmups: %d (must be non-negative)", c.Bench.Warmups)
	}
	if c.Bench.Iterations < 0 {
		return fmt.Errorf("invalid iterations: %d (must be non-negative)", c.Bench.Iterations)
	}
	if len(c.Bench.Solutions) == 0 {
		return errors.New("no solutions configured")
	}
	problems, err := c.Problems()
	if err != nil {
		return err
	}
	if len(problems) == 0 {
		return errors.New("no problems configured")
	}
	return nil
}

// BoundsCheckMode returns the parsed init.bounds_check value.
func (c *Config) BoundsCheckMode() device.BoundsCheckMode {
	m, _ := device.ParseBoundsCheckMode(c.Init.BoundsCheck)
	return m
}

// Problems builds every configured problem, file entries first.
func (c *Config) Problems() ([]problem.GEMM, error) {
	var out []problem.GEMM
	for i, p := range c.Bench.Problems {
		g, err := p.GEMM()
		if err != nil {
			return nil, fmt.Errorf("problem %d: %w", i, err)
		}
		out = append(out, g)
	}
	for _, s := range c.Bench.ProblemSpecs {
		p, err := ParseProblem(s)
		if err != nil {
			return nil, err
		}
		g, err := p.GEMM()
		if err != nil {
			return nil, fmt.Errorf("problem %q: %w", s, err)
		}
		out = append(out, g)
	}
	return out, nil
}

func (p ProblemConfig) GEMM() (problem.GEMM, error) {
	types := p.Types
	if types == "" {
		types = "S"
	}
	sig, err := problem.ParseSignature(types)
	if err != nil {
		return problem.GEMM{}, err
	}
	if p.AlphaType != "" {
		if sig.Alpha, err = tensor.ParseDataType(p.AlphaType); err != nil {
			return problem.GEMM{}, err
		}
	}
	if p.BetaType != "" {
		if sig.Beta, err = tensor.ParseDataType(p.BetaType); err != nil {
			return problem.GEMM{}, err
		}
	}
	batch := p.Batch
	if batch == 0 {
		batch = 1
	}
	return problem.GEMM{
		M: p.M, N: p.N, K: p.K, Batch: batch,
		Types: sig,
		Alpha: p.Alpha, Beta: p.Beta,
		LDA: p.LDA, LDB: p.LDB, LDC: p.LDC, LDD: p.LDD,
	}, nil
}

// ParseProblem reads "MxNxK[xBatch][:types]", e.g. "128x64x32x2:H_H_S".
// Alpha defaults to 1 and beta to 0.
func ParseProblem(s string) (ProblemConfig, error) {
	dims, types, _ := strings.Cut(strings.TrimSpace(s), ":")
	parts := strings.Split(dims, "x")
	if len(parts) != 3 && len(parts) != 4 {
		return ProblemConfig{}, fmt.Errorf("problem %q: want MxNxK[xBatch][:types]", s)
	}
	vals := make([]int, len(parts))
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n <= 0 {
			return ProblemConfig{}, fmt.Errorf("problem %q: bad size %q", s, part)
		}
		vals[i] = n
	}
	p := ProblemConfig{M: vals[0], N: vals[1], K: vals[2], Batch: 1, Types: types, Alpha: 1}
	if len(vals) == 4 {
		p.Batch = vals[3]
	}
	return p, nil
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.Int("num-elements-to-validate", defaults.Validation.NumElementsToValidate, "Elements to validate: 0 disables, -1 validates all")
	fs.Bool("print-valids", defaults.Validation.PrintValids, "Print matching elements as well as mismatches")
	fs.Int("print-max", defaults.Validation.PrintMax, "Max elements to print per comparison (0 prints nothing)")
	fs.Bool("print-tensor-a", defaults.Validation.PrintTensorA, "Print tensor A")
	fs.Bool("print-tensor-b", defaults.Validation.PrintTensorB, "Print tensor B")
	fs.Bool("print-tensor-c", defaults.Validation.PrintTensorC, "Print tensor C")
	fs.Bool("print-tensor-d", defaults.Validation.PrintTensorD, "Print tensor D")
	fs.Bool("print-tensor-ref", defaults.Validation.PrintTensorRef, "Print the reference result")
	fs.Bool("convolution-vs-contraction", defaults.Validation.ConvolutionVsContraction, "Cross-check a convolution solver against the contraction reference")
	fs.String("convolution-identifier", defaults.Validation.ConvolutionIdentifier, "Convolution problem identifier for the cross-check")
	fs.Bool("debug-convolution-tensors", defaults.Validation.DebugConvolutionTensors, "Log tensors computed on the convolution path")

	fs.String("bounds-check", defaults.Init.BoundsCheck, "Output guard policy: none|nan|guard-page-back")
	fs.Int("guard-elements", defaults.Init.GuardElements, "Sentinel elements before and after D in nan mode")
	fs.Uint64("seed", defaults.Init.Seed, "Seed for input data")

	fs.Int("warmups", defaults.Bench.Warmups, "Warm-up runs per solution")
	fs.Int("iterations", defaults.Bench.Iterations, "Timed runs per solution")
	fs.StringSlice("solutions", defaults.Bench.Solutions, "Kernels to benchmark")
	fs.StringSlice("problem", defaults.Bench.ProblemSpecs, "Problem as MxNxK[xBatch][:types] (repeatable)")

	fs.String("log-level", defaults.Report.LogLevel, "Log level (debug|info|warn|error)")
	fs.String("log-format", defaults.Report.LogFormat, "Log format (console|json)")
	fs.String("tensor-dump-path", defaults.Report.TensorDumpPath, "Write logged tensors to this Arrow IPC file")
	fs.String("flight-addr", defaults.Report.FlightAddr, "Send verdicts to this Arrow Flight endpoint")
	fs.String("metrics-addr", defaults.Report.MetricsAddr, "Serve Prometheus metrics on this address")
}

// flagKeys maps flag names to config keys.
var flagKeys = map[string]string{
	"num-elements-to-validate":   "validation.num_elements_to_validate",
	"print-valids":               "validation.print_valids",
	"print-max":                  "validation.print_max",
	"print-tensor-a":             "validation.print_tensor_a",
	"print-tensor-b":             "validation.print_tensor_b",
	"print-tensor-c":             "validation.print_tensor_c",
	"print-tensor-d":             "validation.print_tensor_d",
	"print-tensor-ref":           "validation.print_tensor_ref",
	"convolution-vs-contraction": "validation.convolution_vs_contraction",
	"convolution-identifier":     "validation.convolution_identifier",
	"debug-convolution-tensors":  "validation.debug_convolution_tensors",
	"bounds-check":               "init.bounds_check",
	"guard-elements":             "init.guard_elements",
	"seed":                       "init.seed",
	"warmups":                    "bench.warmups",
	"iterations":                 "bench.iterations",
	"solutions":                  "bench.solutions",
	"problem":                    "bench.problem_specs",
	"log-level":                  "report.log_level",
	"log-format":                 "report.log_format",
	"tensor-dump-path":           "report.tensor_dump_path",
	"flight-addr":                "report.flight_addr",
	"metrics-addr":               "report.metrics_addr",
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		fs := opts.Cmd.Flags()
		for name, key := range flagKeys {
			f := fs.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	v.SetEnvPrefix("VERDICT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("verdict")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("validation.num_elements_to_validate", c.Validation.NumElementsToValidate)
	v.SetDefault("validation.print_valids", c.Validation.PrintValids)
	v.SetDefault("validation.print_max", c.Validation.PrintMax)
	v.SetDefault("validation.print_tensor_a", c.Validation.PrintTensorA)
	v.SetDefault("validation.print_tensor_b", c.Validation.PrintTensorB)
	v.SetDefault("validation.print_tensor_c", c.Validation.PrintTensorC)
	v.SetDefault("validation.print_tensor_d", c.Validation.PrintTensorD)
	v.SetDefault("validation.print_tensor_ref", c.Validation.PrintTensorRef)
	v.SetDefault("validation.convolution_vs_contraction", c.Validation.ConvolutionVsContraction)
	v.SetDefault("validation.convolution_identifier", c.Validation.ConvolutionIdentifier)
	v.SetDefault("validation.debug_convolution_tensors", c.Validation.DebugConvolutionTensors)
	v.SetDefault("init.bounds_check", c.Init.BoundsCheck)
	v.SetDefault("init.guard_elements", c.Init.GuardElements)
	v.SetDefault("init.seed", c.Init.Seed)
	v.SetDefault("bench.warmups", c.Bench.Warmups)
	v.SetDefault("bench.iterations", c.Bench.Iterations)
	v.SetDefault("bench.solutions", c.Bench.Solutions)
	v.SetDefault("bench.problem_specs", c.Bench.ProblemSpecs)
	v.SetDefault("report.log_level", c.Report.LogLevel)
	v.SetDefault("report.log_format", c.Report.LogFormat)
	v.SetDefault("report.tensor_dump_path", c.Report.TensorDumpPath)
	v.SetDefault("report.flight_addr", c.Report.FlightAddr)
	v.SetDefault("report.metrics_addr", c.Report.MetricsAddr)
}
