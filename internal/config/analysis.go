package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Execution modes.
const (
	ModeBatch     = "batch"
	ModeStreaming = "streaming"
)

// Ingester types.
const (
	IngesterCSV    = "csv"
	IngesterSQLite = "sqlite"
	IngesterMemory = "memory"
)

// Transform types.
const (
	// TransformEMGMM fits a k-component Gaussian mixture with EM.
	TransformEMGMM = "em_gmm"
	// TransformGaussian fits a single multivariate Gaussian.
	TransformGaussian = "gaussian"
)

const maxConfigFileSize = 1 * 1024 * 1024 // 1MB

// AnalysisConfig is the root configuration of one analysis run.
//
// Every field is a pointer so a partial file leaves the rest at their
// defaults; the Get* accessors resolve nil fields to those defaults. Once
// handed to a pipeline the config is treated as read-only.
type AnalysisConfig struct {
	QueryName     *string `json:"query_name,omitempty" yaml:"query_name,omitempty"`
	ExecutionMode *string `json:"execution_mode,omitempty" yaml:"execution_mode,omitempty"`

	// Ingestion
	IngesterType *string  `json:"ingester,omitempty" yaml:"ingester,omitempty"`
	InputPath    *string  `json:"input_path,omitempty" yaml:"input_path,omitempty"`
	BaseQuery    *string  `json:"base_query,omitempty" yaml:"base_query,omitempty"`
	Attributes   []string `json:"attributes,omitempty" yaml:"attributes,omitempty"`
	Metrics      []string `json:"metrics,omitempty" yaml:"metrics,omitempty"`

	// Mixture model
	TransformType            *string  `json:"transform_type,omitempty" yaml:"transform_type,omitempty"`
	MixtureComponents        *int     `json:"mixture_components,omitempty" yaml:"mixture_components,omitempty"`
	MaxIterations            *int     `json:"max_iterations,omitempty" yaml:"max_iterations,omitempty"`
	ConvergenceTolerance     *float64 `json:"convergence_tolerance,omitempty" yaml:"convergence_tolerance,omitempty"`
	CovarianceRegularization *float64 `json:"covariance_regularization,omitempty" yaml:"covariance_regularization,omitempty"`
	RandomSeed               *uint64  `json:"random_seed,omitempty" yaml:"random_seed,omitempty"`

	// Grid scoring
	GridPointsPerDim *int    `json:"grid_points_per_dim,omitempty" yaml:"grid_points_per_dim,omitempty"`
	GridDumpFile     *string `json:"grid_dump_file,omitempty" yaml:"grid_dump_file,omitempty"`

	// Classification
	OutlierPercentile         *float64 `json:"outlier_percentile,omitempty" yaml:"outlier_percentile,omitempty"`
	TargetComponents          []int    `json:"target_components,omitempty" yaml:"target_components,omitempty"`
	GroupProbabilityThreshold *float64 `json:"group_probability_threshold,omitempty" yaml:"group_probability_threshold,omitempty"`
	ClassifierDump            *bool    `json:"classifier_dump,omitempty" yaml:"classifier_dump,omitempty"`
	DumpDir                   *string  `json:"dump_dir,omitempty" yaml:"dump_dir,omitempty"`

	// Summarization
	MinSupport     *float64 `json:"min_support,omitempty" yaml:"min_support,omitempty"`
	MinRatio       *float64 `json:"min_ratio,omitempty" yaml:"min_ratio,omitempty"`
	MaxItemsetSize *int     `json:"max_itemset_size,omitempty" yaml:"max_itemset_size,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrUint64(v uint64) *uint64    { return &v }

// EmptyAnalysisConfig returns an AnalysisConfig with all fields unset.
func EmptyAnalysisConfig() *AnalysisConfig {
	return &AnalysisConfig{}
}

// LoadAnalysisConfig loads an AnalysisConfig from a .json, .yaml or .yml
// file and validates it. Fields omitted from the file keep their defaults.
func LoadAnalysisConfig(path string) (*AnalysisConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxConfigFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyAnalysisConfig()
	if ext == ".json" {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", strings.TrimPrefix(ext, "."), err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that every set value is within range. It does not check
// that the combination of values suits a particular execution mode; see
// SanityCheckBatch.
func (c *AnalysisConfig) Validate() error {
	if c.ExecutionMode != nil {
		switch *c.ExecutionMode {
		case ModeBatch, ModeStreaming:
		default:
			return fmt.Errorf("execution_mode must be %q or %q, got %q", ModeBatch, ModeStreaming, *c.ExecutionMode)
		}
	}
	if c.IngesterType != nil {
		switch *c.IngesterType {
		case IngesterCSV, IngesterSQLite, IngesterMemory:
		default:
			return fmt.Errorf("unknown ingester %q", *c.IngesterType)
		}
	}
	if c.TransformType != nil {
		switch *c.TransformType {
		case TransformEMGMM, TransformGaussian:
		default:
			return fmt.Errorf("unknown transform_type %q", *c.TransformType)
		}
	}
	if c.MixtureComponents != nil && *c.MixtureComponents < 1 {
		return fmt.Errorf("mixture_components must be at least 1, got %d", *c.MixtureComponents)
	}
	if c.MaxIterations != nil && *c.MaxIterations < 1 {
		return fmt.Errorf("max_iterations must be at least 1, got %d", *c.MaxIterations)
	}
	if c.ConvergenceTolerance != nil && *c.ConvergenceTolerance < 0 {
		return fmt.Errorf("convergence_tolerance must be non-negative, got %g", *c.ConvergenceTolerance)
	}
	if c.CovarianceRegularization != nil && *c.CovarianceRegularization < 0 {
		return fmt.Errorf("covariance_regularization must be non-negative, got %g", *c.CovarianceRegularization)
	}
	if c.GridPointsPerDim != nil && *c.GridPointsPerDim < 2 {
		return fmt.Errorf("grid_points_per_dim must be at least 2, got %d", *c.GridPointsPerDim)
	}
	if c.OutlierPercentile != nil && (*c.OutlierPercentile <= 0 || *c.OutlierPercentile >= 1) {
		return fmt.Errorf("outlier_percentile must be in (0, 1), got %g", *c.OutlierPercentile)
	}
	for _, comp := range c.TargetComponents {
		if comp < 0 {
			return fmt.Errorf("target_components must be non-negative, got %d", comp)
		}
	}
	if c.GroupProbabilityThreshold != nil && (*c.GroupProbabilityThreshold <= 0 || *c.GroupProbabilityThreshold > 1) {
		return fmt.Errorf("group_probability_threshold must be in (0, 1], got %g", *c.GroupProbabilityThreshold)
	}
	if c.MinSupport != nil && (*c.MinSupport < 0 || *c.MinSupport > 1) {
		return fmt.Errorf("min_support must be in [0, 1], got %g", *c.MinSupport)
	}
	if c.MinRatio != nil && *c.MinRatio < 0 {
		return fmt.Errorf("min_ratio must be non-negative, got %g", *c.MinRatio)
	}
	if c.MaxItemsetSize != nil && *c.MaxItemsetSize < 1 {
		return fmt.Errorf("max_itemset_size must be at least 1, got %d", *c.MaxItemsetSize)
	}
	return nil
}

// SanityCheckBatch verifies the configuration describes a runnable batch
// analysis. Every failure is a *ConfigurationError.
func (c *AnalysisConfig) SanityCheckBatch() error {
	if err := c.Validate(); err != nil {
		return &ConfigurationError{Reason: err.Error()}
	}
	if mode := c.GetExecutionMode(); mode != ModeBatch {
		return &ConfigurationError{Key: "execution_mode", Reason: fmt.Sprintf("batch pipeline cannot run in %q mode", mode)}
	}
	if len(c.Metrics) == 0 {
		return &ConfigurationError{Key: "metrics", Reason: "at least one metric column is required"}
	}
	if err := checkDistinct("metrics", c.Metrics); err != nil {
		return err
	}
	if err := checkDistinct("attributes", c.Attributes); err != nil {
		return err
	}

	switch c.GetIngesterType() {
	case IngesterCSV:
		if c.GetInputPath() == "" {
			return &ConfigurationError{Key: "input_path", Reason: "csv ingester needs an input file"}
		}
	case IngesterSQLite:
		if c.GetInputPath() == "" {
			return &ConfigurationError{Key: "input_path", Reason: "sqlite ingester needs a database path"}
		}
		if c.GetBaseQuery() == "" {
			return &ConfigurationError{Key: "base_query", Reason: "sqlite ingester needs a base query"}
		}
	}

	if c.GetTransformType() == TransformGaussian && len(c.TargetComponents) > 0 {
		for _, comp := range c.TargetComponents {
			if comp != 0 {
				return &ConfigurationError{Key: "target_components", Reason: fmt.Sprintf("component %d does not exist in a single gaussian", comp)}
			}
		}
	}
	if c.GetTransformType() == TransformEMGMM {
		k := c.GetMixtureComponents()
		for _, comp := range c.TargetComponents {
			if comp >= k {
				return &ConfigurationError{Key: "target_components", Reason: fmt.Sprintf("component %d out of range for %d components", comp, k)}
			}
		}
	}

	if c.GetClassifierDump() && c.GetQueryName() == "" {
		return &ConfigurationError{Key: "query_name", Reason: "classifier dump needs a query name"}
	}
	return nil
}

func checkDistinct(key string, cols []string) error {
	seen := make(map[string]bool, len(cols))
	for _, col := range cols {
		if col == "" {
			return &ConfigurationError{Key: key, Reason: "empty column name"}
		}
		if seen[col] {
			return &ConfigurationError{Key: key, Reason: fmt.Sprintf("duplicate column %q", col)}
		}
		seen[col] = true
	}
	return nil
}

// Clone returns a deep copy of c.
func (c *AnalysisConfig) Clone() *AnalysisConfig {
	out := *c
	out.Attributes = append([]string(nil), c.Attributes...)
	out.Metrics = append([]string(nil), c.Metrics...)
	out.TargetComponents = append([]int(nil), c.TargetComponents...)
	return &out
}

// GetQueryName returns the query_name value or the default.
func (c *AnalysisConfig) GetQueryName() string {
	if c.QueryName == nil {
		return "query"
	}
	return *c.QueryName
}

// GetExecutionMode returns the execution_mode value or the default.
func (c *AnalysisConfig) GetExecutionMode() string {
	if c.ExecutionMode == nil {
		return ModeBatch
	}
	return *c.ExecutionMode
}

// GetIngesterType returns the ingester value or the default.
func (c *AnalysisConfig) GetIngesterType() string {
	if c.IngesterType == nil {
		return IngesterCSV
	}
	return *c.IngesterType
}

// GetInputPath returns the input_path value or "".
func (c *AnalysisConfig) GetInputPath() string {
	if c.InputPath == nil {
		return ""
	}
	return *c.InputPath
}

// GetBaseQuery returns the base_query value or "".
func (c *AnalysisConfig) GetBaseQuery() string {
	if c.BaseQuery == nil {
		return ""
	}
	return *c.BaseQuery
}

// GetTransformType returns the transform_type value or the default.
func (c *AnalysisConfig) GetTransformType() string {
	if c.TransformType == nil {
		return TransformEMGMM
	}
	return *c.TransformType
}

// GetMixtureComponents returns the effective number of mixture components.
// A single Gaussian always has one.
func (c *AnalysisConfig) GetMixtureComponents() int {
	if c.GetTransformType() == TransformGaussian {
		return 1
	}
	if c.MixtureComponents == nil {
		return 3
	}
	return *c.MixtureComponents
}

// GetMaxIterations returns the max_iterations value or the default.
func (c *AnalysisConfig) GetMaxIterations() int {
	if c.MaxIterations == nil {
		return 100
	}
	return *c.MaxIterations
}

// GetConvergenceTolerance returns the convergence_tolerance value or the default.
func (c *AnalysisConfig) GetConvergenceTolerance() float64 {
	if c.ConvergenceTolerance == nil {
		return 1e-6
	}
	return *c.ConvergenceTolerance
}

// GetCovarianceRegularization returns the covariance_regularization value or the default.
func (c *AnalysisConfig) GetCovarianceRegularization() float64 {
	if c.CovarianceRegularization == nil {
		return 1e-6
	}
	return *c.CovarianceRegularization
}

// GetRandomSeed returns the random_seed value or the default.
func (c *AnalysisConfig) GetRandomSeed() uint64 {
	if c.RandomSeed == nil {
		return 0
	}
	return *c.RandomSeed
}

// GetGridPointsPerDim returns the grid_points_per_dim value or the default.
func (c *AnalysisConfig) GetGridPointsPerDim() int {
	if c.GridPointsPerDim == nil {
		return 20
	}
	return *c.GridPointsPerDim
}

// GetGridDumpFile returns the grid_dump_file value or "" (disabled).
func (c *AnalysisConfig) GetGridDumpFile() string {
	if c.GridDumpFile == nil {
		return ""
	}
	return *c.GridDumpFile
}

// GetOutlierPercentile returns the outlier_percentile value or the default.
func (c *AnalysisConfig) GetOutlierPercentile() float64 {
	if c.OutlierPercentile == nil {
		return 0.99
	}
	return *c.OutlierPercentile
}

// GetGroupProbabilityThreshold returns the group_probability_threshold value or the default.
func (c *AnalysisConfig) GetGroupProbabilityThreshold() float64 {
	if c.GroupProbabilityThreshold == nil {
		return 0.5
	}
	return *c.GroupProbabilityThreshold
}

// GetClassifierDump returns the classifier_dump value or the default.
func (c *AnalysisConfig) GetClassifierDump() bool {
	if c.ClassifierDump == nil {
		return false // default: dumping disabled
	}
	return *c.ClassifierDump
}

// GetDumpDir returns the dump_dir value or the default.
func (c *AnalysisConfig) GetDumpDir() string {
	if c.DumpDir == nil || *c.DumpDir == "" {
		return "dumps"
	}
	return *c.DumpDir
}

// GetMinSupport returns the min_support value or the default.
func (c *AnalysisConfig) GetMinSupport() float64 {
	if c.MinSupport == nil {
		return 0.01
	}
	return *c.MinSupport
}

// GetMinRatio returns the min_ratio value or the default.
func (c *AnalysisConfig) GetMinRatio() float64 {
	if c.MinRatio == nil {
		return 3.0
	}
	return *c.MinRatio
}

// GetMaxItemsetSize returns the max_itemset_size value or the default.
func (c *AnalysisConfig) GetMaxItemsetSize() int {
	if c.MaxItemsetSize == nil {
		return 3
	}
	return *c.MaxItemsetSize
}
