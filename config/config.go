// Copyright 2024 cfit Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads integration settings from a configuration file.
package config

import (
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/spf13/viper"

	"github.com/cfit-io/cfit/cfit"
)

// Config is the configuration of an integration run.
type Config struct {
	Data    DataConfig    `mapstructure:"data"`
	Fit     FitConfig     `mapstructure:"fit"`
	Sketch  SketchConfig  `mapstructure:"sketch"`
	Output  OutputConfig  `mapstructure:"output"`
}

// DataConfig locates the input expression matrices.
type DataConfig struct {
	// Paths are CSV files, one matrix per file, samples in rows, genes in
	// columns, with a header of gene names.
	Paths []string `mapstructure:"paths"`
	// HasRowNames marks the first column as sample names.
	HasRowNames bool `mapstructure:"has_row_names"`
}

// FitConfig holds the full-batch optimizer settings.
type FitConfig struct {
	Rank       int     `mapstructure:"rank"`
	Tol        float64 `mapstructure:"tol"`
	MaxIter    int     `mapstructure:"max_iter"`
	NumRepeats int     `mapstructure:"num_repeats"`
	Seed       int64   `mapstructure:"seed"`
	Jobs       int     `mapstructure:"jobs"`
	Verbose    int     `mapstructure:"verbose"`
	FitShift   bool    `mapstructure:"fit_shift"`
}

// SketchConfig holds the sketched optimizer settings.
type SketchConfig struct {
	Enable        bool          `mapstructure:"enable"`
	SubsampleProp float64       `mapstructure:"subsample_prop"`
	MinSamples    int           `mapstructure:"min_samples"`
	EarlyStopping int           `mapstructure:"early_stopping"`
	Timeout       time.Duration `mapstructure:"timeout"`
	Mu0           float64       `mapstructure:"mu0"`
	LeverageRank  int           `mapstructure:"leverage_rank"`
}

// OutputConfig controls where results are written.
type OutputConfig struct {
	Dir string `mapstructure:"dir"`
}

func setDefault() {
	viper.SetDefault("data.has_row_names", true)
	viper.SetDefault("fit.tol", 1e-5)
	viper.SetDefault("fit.max_iter", 100)
	viper.SetDefault("fit.num_repeats", 1)
	viper.SetDefault("fit.jobs", 1)
	viper.SetDefault("fit.verbose", 10)
	viper.SetDefault("sketch.min_samples", 100)
	viper.SetDefault("sketch.early_stopping", 50)
	viper.SetDefault("sketch.mu0", 0.005)
	viper.SetDefault("output.dir", ".")
}

// LoadConfig loads and validates configuration from a TOML or YAML file.
func LoadConfig(path string) (*Config, error) {
	setDefault()
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		return nil, errors.Trace(err)
	}
	var conf Config
	if err := viper.Unmarshal(&conf); err != nil {
		return nil, errors.Trace(err)
	}
	if err := conf.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &conf, nil
}

// Validate rejects settings the optimizers cannot run with.
func (config *Config) Validate() error {
	if len(config.Data.Paths) == 0 {
		return errors.New("no input datasets")
	}
	if config.Fit.Rank <= 0 {
		return errors.Errorf("rank must be positive, got %d", config.Fit.Rank)
	}
	if config.Fit.Tol <= 0 {
		return errors.Errorf("tol must be positive, got %g", config.Fit.Tol)
	}
	if config.Fit.MaxIter <= 0 {
		return errors.Errorf("max_iter must be positive, got %d", config.Fit.MaxIter)
	}
	if config.Fit.NumRepeats <= 0 {
		return errors.Errorf("num_repeats must be positive, got %d", config.Fit.NumRepeats)
	}
	if config.Sketch.SubsampleProp < 0 || config.Sketch.SubsampleProp > 1 {
		return errors.Errorf("subsample_prop must be in [0,1], got %g", config.Sketch.SubsampleProp)
	}
	if config.Sketch.Mu0 < 0 {
		return errors.Errorf("mu0 must be non-negative, got %g", config.Sketch.Mu0)
	}
	for _, path := range config.Data.Paths {
		if strings.TrimSpace(path) == "" {
			return errors.New("empty dataset path")
		}
	}
	return nil
}

// FitConfig builds the full-batch optimizer configuration.
func (config *Config) FitConfig() *cfit.FitConfig {
	return cfit.NewFitConfig(config.Fit.Rank).
		SetTol(config.Fit.Tol).
		SetMaxIter(config.Fit.MaxIter).
		SetNumRepeats(config.Fit.NumRepeats).
		SetSeed(config.Fit.Seed).
		SetJobs(config.Fit.Jobs).
		SetVerbose(config.Fit.Verbose).
		SetFitShift(config.Fit.FitShift)
}

// SketchConfig builds the sketched optimizer configuration.
func (config *Config) SketchConfig() *cfit.SketchConfig {
	sketch := cfit.NewSketchConfig(config.Fit.Rank).
		SetSubsampleProp(config.Sketch.SubsampleProp).
		SetMinSamples(config.Sketch.MinSamples).
		SetEarlyStopping(config.Sketch.EarlyStopping).
		SetTimeout(config.Sketch.Timeout).
		SetMu0(config.Sketch.Mu0).
		SetLeverageRank(config.Sketch.LeverageRank)
	sketch.SetTol(config.Fit.Tol).
		SetMaxIter(config.Fit.MaxIter).
		SetNumRepeats(config.Fit.NumRepeats).
		SetSeed(config.Fit.Seed).
		SetJobs(config.Fit.Jobs).
		SetVerbose(config.Fit.Verbose).
		SetFitShift(config.Fit.FitShift)
	return sketch
}
