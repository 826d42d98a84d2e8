package scheduler

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Overlap encodings.
const (
	OverlapBigM     = "bigm"
	OverlapPairwise = "pairwise"
)

// EnvPrefix prefixes the environment variables read by LoadConfiguration.
const EnvPrefix = "REGISTRAR"

type Configuration struct {
	ClassesFile  string `mapstructure:"classes"`
	StudentsFile string `mapstructure:"students"`
	RulesFile    string `mapstructure:"rules"`
	ExportFile   string `mapstructure:"out"`
	SeatsFile    string `mapstructure:"seats"`
	ReportFile   string `mapstructure:"report"`
	LPFile       string `mapstructure:"lp"`
	MetricsFile  string `mapstructure:"metrics"`
	Delimiter    string `mapstructure:"delimiter"`
	Term         string `mapstructure:"term"`

	CreditCeiling           float64 `mapstructure:"credit_ceiling"`
	MaxLabs                 int     `mapstructure:"max_labs"`
	MaxPerDivision          int     `mapstructure:"max_per_division"`
	MaxWritingIntensive     int     `mapstructure:"max_writing_intensive"`
	MaxFirstYearComposition int     `mapstructure:"max_first_year_composition"`
	MaxPerDepartment        int     `mapstructure:"max_per_department"`
	MaxExclusive            int     `mapstructure:"max_exclusive"`
	RankedSlots             int     `mapstructure:"ranked_slots"`

	Gap              float64       `mapstructure:"gap"`
	TimeLimit        time.Duration `mapstructure:"time_limit"`
	KeepIncumbent    bool          `mapstructure:"keep_incumbent"`
	OverlapEncoding  string        `mapstructure:"overlap_encoding"`
	Workers          int           `mapstructure:"workers"`
	ProgressInterval time.Duration `mapstructure:"progress_interval"`
	LogLevel         string        `mapstructure:"log_level"`
}

func NewDefaultConfiguration() *Configuration {
	return &Configuration{
		ClassesFile:             "./classes.csv",
		StudentsFile:            "./priorities.csv",
		ExportFile:              "assignments.csv",
		SeatsFile:               "seats.csv",
		ReportFile:              "results.txt",
		Delimiter:               ",",
		CreditCeiling:           4.1, // a full load of 4 plus slack, never a 5th credit
		MaxLabs:                 2,
		MaxPerDivision:          3,
		MaxWritingIntensive:     1,
		MaxFirstYearComposition: 1,
		MaxPerDepartment:        1,
		MaxExclusive:            1,
		RankedSlots:             12,
		OverlapEncoding:         OverlapBigM,
		Workers:                 runtime.GOMAXPROCS(0),
		ProgressInterval:        time.Second,
		LogLevel:                "info",
	}
}

// FullLoad is the credit total of a complete schedule.
func (c *Configuration) FullLoad() float64 {
	return math.Floor(c.CreditCeiling)
}

// BindFlags registers the configuration flags on fs with the defaults as
// flag defaults.
func BindFlags(fs *pflag.FlagSet) {
	d := NewDefaultConfiguration()
	fs.String("classes", d.ClassesFile, "section export CSV")
	fs.String("students", d.StudentsFile, "student preference CSV")
	fs.String("rules", d.RulesFile, "rule tables YAML, empty for the built-in tables")
	fs.String("out", d.ExportFile, "assignment export CSV")
	fs.String("seats", d.SeatsFile, "remaining seats export CSV")
	fs.String("report", d.ReportFile, "run statistics text file, empty to skip")
	fs.String("lp", d.LPFile, "write the model in LP format to this file")
	fs.String("metrics", d.MetricsFile, "write run metrics in Prometheus text format to this file")
	fs.String("delimiter", d.Delimiter, "CSV field delimiter")
	fs.String("term", d.Term, "term label stamped on exported rows")
	fs.Float64("gap", d.Gap, "relative optimality gap, 0 for a proven optimum")
	fs.Duration("time-limit", d.TimeLimit, "solver time limit, 0 for none")
	fs.Bool("keep-incumbent", d.KeepIncumbent, "use the best assignment found when the time limit runs out instead of failing")
	fs.String("overlap-encoding", d.OverlapEncoding, "overlap constraints: bigm or pairwise")
	fs.Int("workers", d.Workers, "parallel workers")
	fs.Duration("progress-interval", d.ProgressInterval, "interval between progress log lines")
	fs.String("log-level", d.LogLevel, "info, debug or trace")
}

// LoadConfiguration reads defaults, the optional config file already set on
// v, REGISTRAR_* environment variables and bound flags, in increasing
// precedence.
func LoadConfiguration(v *viper.Viper, fs *pflag.FlagSet) (*Configuration, error) {
	d := NewDefaultConfiguration()
	defaults := map[string]any{
		"classes": d.ClassesFile, "students": d.StudentsFile, "rules": d.RulesFile,
		"out": d.ExportFile, "seats": d.SeatsFile, "report": d.ReportFile, "lp": d.LPFile,
		"metrics": d.MetricsFile, "delimiter": d.Delimiter, "term": d.Term,
		"credit_ceiling": d.CreditCeiling, "max_labs": d.MaxLabs, "max_per_division": d.MaxPerDivision,
		"max_writing_intensive": d.MaxWritingIntensive, "max_first_year_composition": d.MaxFirstYearComposition,
		"max_per_department": d.MaxPerDepartment, "max_exclusive": d.MaxExclusive,
		"ranked_slots": d.RankedSlots, "gap": d.Gap, "time_limit": d.TimeLimit,
		"keep_incumbent": d.KeepIncumbent, "overlap_encoding": d.OverlapEncoding, "workers": d.Workers,
		"progress_interval": d.ProgressInterval, "log_level": d.LogLevel,
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if fs != nil {
		var bindErr error
		fs.VisitAll(func(f *pflag.Flag) {
			key := strings.ReplaceAll(f.Name, "-", "_")
			if err := v.BindPFlag(key, f); err != nil {
				bindErr = errors.Join(bindErr, err)
			}
		})
		if bindErr != nil {
			return nil, fmt.Errorf("binding flags: %w", bindErr)
		}
	}

	if v.ConfigFileUsed() != "" {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", v.ConfigFileUsed(), err)
		}
	}

	cfg := &Configuration{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects out of range settings.
func (c *Configuration) Validate() error {
	var errs []error
	if c.CreditCeiling <= 0 {
		errs = append(errs, fmt.Errorf("credit_ceiling must be positive, got %g", c.CreditCeiling))
	}
	for name, n := range map[string]int{
		"max_labs":                   c.MaxLabs,
		"max_per_division":           c.MaxPerDivision,
		"max_writing_intensive":      c.MaxWritingIntensive,
		"max_first_year_composition": c.MaxFirstYearComposition,
		"max_per_department":         c.MaxPerDepartment,
		"max_exclusive":              c.MaxExclusive,
	} {
		if n < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %d", name, n))
		}
	}
	if c.RankedSlots <= 0 {
		errs = append(errs, fmt.Errorf("ranked_slots must be positive, got %d", c.RankedSlots))
	}
	if c.Gap < 0 || c.Gap >= 1 {
		errs = append(errs, fmt.Errorf("gap must be in [0,1), got %g", c.Gap))
	}
	if c.TimeLimit < 0 {
		errs = append(errs, fmt.Errorf("time_limit must not be negative, got %s", c.TimeLimit))
	}
	if c.OverlapEncoding != OverlapBigM && c.OverlapEncoding != OverlapPairwise {
		errs = append(errs, fmt.Errorf("overlap_encoding must be %q or %q, got %q", OverlapBigM, OverlapPairwise, c.OverlapEncoding))
	}
	if len([]rune(c.Delimiter)) != 1 {
		errs = append(errs, fmt.Errorf("delimiter must be a single character, got %q", c.Delimiter))
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must not be negative, got %d", c.Workers))
	}
	return errors.Join(errs...)
}
