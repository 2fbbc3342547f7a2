package common

import (
	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	"github.com/mohae/deepcopy"
	"github.com/samber/lo"
)

const (
	// upper bound of cost metrics a run can enable (time, fees, io, byte size)
	MaxNrMetrics = 4
	// bit mask of LogLevel values passed through ShPrintf
	LogLevelSetting LogLevel = INFO | WARN | ERROR | FATAL
)

// SortConfig is one point of the sort-merge cost curve used for cluster joins:
// the IO sort buffer available to a task and the merge fan-in.
type SortConfig struct {
	BufferMB float64 `toml:"buffer_mb"`
	Factor   int     `toml:"factor"`
}

// Config carries every constant the plan space, the cost model and the optimizers
// read. It is passed explicitly to their constructors.
type Config struct {
	// advisory optimization budget, split into NrPeriods periods for anytime statistics
	TimeoutMillis int64 `toml:"timeout_millis"`
	NrPeriods     int   `toml:"nr_periods"`
	// upper bound on the number of metrics one invocation may consider
	NrMetrics int `toml:"nr_metrics"`

	ByteSizePerTuple float64 `toml:"byte_size_per_tuple"`
	ByteSizePerPage  float64 `toml:"byte_size_per_page"`

	IOSortConfigs        []SortConfig `toml:"io_sort_configs"`
	DegreesOfParallelism []int        `toml:"degrees_of_parallelism"`

	PageIOMillis         float64 `toml:"page_io_millis"`
	TupleCPUMillis       float64 `toml:"tuple_cpu_millis"`
	NetworkMBPerSec      float64 `toml:"network_mb_per_sec"`
	DiskMBPerSec         float64 `toml:"disk_mb_per_sec"`
	MachineStartupMillis float64 `toml:"machine_startup_millis"`
	MachineFeePerHour    float64 `toml:"machine_fee_per_hour"`

	// enables plan validity and frontier minimality checks
	SafeMode bool `toml:"safe_mode"`
}

func DefaultConfig() *Config {
	return &Config{
		TimeoutMillis:    1000,
		NrPeriods:        10,
		NrMetrics:        MaxNrMetrics,
		ByteSizePerTuple: 100,
		ByteSizePerPage:  8192,
		IOSortConfigs: []SortConfig{
			{BufferMB: 100, Factor: 10},
			{BufferMB: 200, Factor: 25},
			{BufferMB: 400, Factor: 50},
			{BufferMB: 800, Factor: 100},
		},
		DegreesOfParallelism: []int{2, 8, 32},
		PageIOMillis:         0.05,
		TupleCPUMillis:       0.0001,
		NetworkMBPerSec:      100,
		DiskMBPerSec:         200,
		MachineStartupMillis: 5000,
		MachineFeePerHour:    0.5,
		SafeMode:             true,
	}
}

// DecodeConfig parses TOML. keys missing from the document keep their default.
func DecodeConfig(doc string) (*Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.Decode(doc, cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, errors.Wrapf(err, "load config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.NrMetrics < 1 || c.NrMetrics > MaxNrMetrics {
		return NewConfigurationError("nr_metrics is %d, must be in [1, %d]", c.NrMetrics, MaxNrMetrics)
	}
	if c.TimeoutMillis <= 0 {
		return NewConfigurationError("timeout_millis must be positive, got %d", c.TimeoutMillis)
	}
	if c.NrPeriods <= 0 {
		return NewConfigurationError("nr_periods must be positive, got %d", c.NrPeriods)
	}
	if c.ByteSizePerTuple <= 0 || c.ByteSizePerPage <= 0 {
		return NewConfigurationError("byte sizes must be positive (tuple %v, page %v)", c.ByteSizePerTuple, c.ByteSizePerPage)
	}
	if len(c.IOSortConfigs) == 0 {
		return NewConfigurationError("io_sort_configs is empty")
	}
	for _, sc := range c.IOSortConfigs {
		if sc.BufferMB <= 0 || sc.Factor < 2 {
			return NewConfigurationError("invalid io sort config %+v", sc)
		}
	}
	if bad := lo.Filter(c.DegreesOfParallelism, func(dop int, _ int) bool { return dop < 1 }); len(bad) > 0 {
		return NewConfigurationError("degrees of parallelism must be positive, got %v", bad)
	}
	if dups := lo.FindDuplicates(c.DegreesOfParallelism); len(dups) > 0 {
		return NewConfigurationError("duplicate degrees of parallelism %v", dups)
	}
	if c.NetworkMBPerSec <= 0 || c.DiskMBPerSec <= 0 {
		return NewConfigurationError("bandwidths must be positive")
	}
	return nil
}

// PeriodMillis is the length of one anytime measurement period.
func (c *Config) PeriodMillis() float64 {
	return float64(c.TimeoutMillis) / float64(c.NrPeriods)
}

// Clone returns a deep copy which can be handed to an independent invocation.
func (c *Config) Clone() *Config {
	return deepcopy.Copy(c).(*Config)
}
