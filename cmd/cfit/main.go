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

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/juju/errors"
	"github.com/olekukonko/tablewriter"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cfit-io/cfit/base/log"
	"github.com/cfit-io/cfit/cfit"
	"github.com/cfit-io/cfit/cmd/version"
	"github.com/cfit-io/cfit/config"
	"github.com/cfit-io/cfit/dataset"
)

var cfitCommand = &cobra.Command{
	Use:   "cfit",
	Short: "Integrate gene expression datasets by iterative common factor analysis.",
	Run: func(cmd *cobra.Command, args []string) {
		if showVersion, _ := cmd.PersistentFlags().GetBool("version"); showVersion {
			fmt.Println(version.BuildInfo())
			return
		}
		_ = cmd.Help()
	},
}

var integrateCommand = &cobra.Command{
	Use:   "integrate",
	Short: "Fit a shared factor matrix and per-dataset corrections.",
	Run: func(cmd *cobra.Command, args []string) {
		debug, _ := cmd.Flags().GetBool("debug")
		log.SetLogger(cmd.Flags(), debug)
		defer log.CloseLogger()

		configPath, _ := cmd.Flags().GetString("config")
		conf, err := config.LoadConfig(configPath)
		if err != nil {
			log.Logger().Fatal("failed to load config",
				zap.String("config", configPath), zap.Error(err))
		}
		data, err := loadDatasets(conf.Data.Paths, conf.Data.HasRowNames)
		if err != nil {
			log.Logger().Fatal("failed to load datasets", zap.Error(err))
		}
		aligned, genes, err := dataset.Align(data)
		if err != nil {
			log.Logger().Fatal("failed to align datasets", zap.Error(err))
		}
		log.Logger().Info("datasets aligned", zap.Int("num_genes", len(genes)))

		var result *cfit.Result
		if conf.Sketch.Enable {
			result, err = cfit.IntegrateSketched(context.Background(), aligned, conf.SketchConfig())
		} else {
			result, err = cfit.Integrate(context.Background(), aligned, conf.FitConfig())
		}
		if err != nil {
			log.Logger().Fatal("integration failed", zap.Error(err))
		}
		if err := writeIntegrateResult(conf.Output.Dir, conf.Data.Paths, result); err != nil {
			log.Logger().Fatal("failed to write results", zap.Error(err))
		}
		printIntegrateSummary(result)
	},
}

var transferCommand = &cobra.Command{
	Use:   "transfer FACTORS_CSV DATASET_CSV",
	Short: "Project a new dataset onto a previously learned factor matrix.",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		debug, _ := cmd.Flags().GetBool("debug")
		log.SetLogger(cmd.Flags(), debug)
		defer log.CloseLogger()

		factors, err := dataset.ReadCSV(args[0], true)
		if err != nil {
			log.Logger().Fatal("failed to load factor matrix",
				zap.String("path", args[0]), zap.Error(err))
		}
		hasRowNames, _ := cmd.Flags().GetBool("row-names")
		x, err := dataset.ReadCSV(args[1], hasRowNames)
		if err != nil {
			log.Logger().Fatal("failed to load dataset",
				zap.String("path", args[1]), zap.Error(err))
		}
		aligned, w, err := alignToFactors(x, factors)
		if err != nil {
			log.Logger().Fatal("failed to align dataset to factor matrix", zap.Error(err))
		}

		transferConfig := cfit.NewTransferConfig()
		if tol, _ := cmd.Flags().GetFloat64("tol"); tol > 0 {
			transferConfig.SetTol(tol)
		}
		if maxIter, _ := cmd.Flags().GetInt("max-iter"); maxIter > 0 {
			transferConfig.SetMaxIter(maxIter)
		}
		if jobs, _ := cmd.Flags().GetInt("jobs"); jobs > 0 {
			transferConfig.SetJobs(jobs)
		}
		fitScale, _ := cmd.Flags().GetBool("fit-scale")
		fitShift, _ := cmd.Flags().GetBool("fit-shift")
		transferConfig.SetFitScale(fitScale).SetFitShift(fitShift)

		result, err := cfit.Transfer(context.Background(), aligned, w, transferConfig)
		if err != nil {
			log.Logger().Fatal("transfer failed", zap.Error(err))
		}
		outputDir, _ := cmd.Flags().GetString("output")
		if err := writeTransferResult(outputDir, aligned.Genes, result); err != nil {
			log.Logger().Fatal("failed to write results", zap.Error(err))
		}
		printTransferSummary(result)
	},
}

func init() {
	cfitCommand.AddCommand(integrateCommand)
	cfitCommand.AddCommand(transferCommand)
	cfitCommand.PersistentFlags().BoolP("version", "v", false, "cfit version")

	integrateCommand.Flags().BoolP("debug", "d", false, "use debug log mode")
	integrateCommand.Flags().StringP("config", "c", "cfit.toml", "configuration file path")
	log.AddFlags(integrateCommand.Flags())

	transferCommand.Flags().BoolP("debug", "d", false, "use debug log mode")
	transferCommand.Flags().Bool("row-names", true, "first column holds sample names")
	transferCommand.Flags().Float64("tol", 0, "convergence tolerance")
	transferCommand.Flags().Int("max-iter", 0, "maximum number of iterations")
	transferCommand.Flags().Int("jobs", 0, "number of parallel jobs")
	transferCommand.Flags().Bool("fit-scale", false, "fit per-gene scaling for the target dataset")
	transferCommand.Flags().Bool("fit-shift", false, "fit per-gene shift for the target dataset")
	transferCommand.Flags().StringP("output", "o", ".", "output directory")
	log.AddFlags(transferCommand.Flags())
}

func loadDatasets(paths []string, hasRowNames bool) ([]*dataset.Matrix, error) {
	bar := progressbar.Default(int64(len(paths)), "load datasets")
	data := make([]*dataset.Matrix, len(paths))
	for j, path := range paths {
		m, err := dataset.ReadCSV(path, hasRowNames)
		if err != nil {
			return nil, errors.Annotatef(err, "load %s", path)
		}
		log.Logger().Info("dataset loaded",
			zap.String("path", path),
			zap.Int("num_rows", m.NumRows()),
			zap.Int("num_genes", m.NumGenes()))
		data[j] = m
		_ = bar.Add(1)
	}
	return data, nil
}

// alignToFactors restricts x to the genes of the factor matrix, in the factor
// matrix's order, and returns the matching factor rows.
func alignToFactors(x *dataset.Matrix, factors *dataset.Matrix) (*dataset.Matrix, [][]float32, error) {
	index := make(map[string]int, x.NumGenes())
	for l, gene := range x.Genes {
		index[gene] = l
	}
	var cols []int
	var genes []string
	var w [][]float32
	for l, gene := range factors.Rows {
		if c, ok := index[gene]; ok {
			cols = append(cols, c)
			genes = append(genes, gene)
			w = append(w, factors.Values[l])
		}
	}
	if len(cols) == 0 {
		return nil, nil, errors.New("no genes shared with the factor matrix")
	}
	values := make([][]float32, x.NumRows())
	for i, row := range x.Values {
		values[i] = make([]float32, len(cols))
		for l, c := range cols {
			values[i][l] = row[c]
		}
	}
	m, err := dataset.NewMatrix(values, x.Rows, genes)
	return m, w, errors.Trace(err)
}

func factorNames(rank int) []string {
	names := make([]string, rank)
	for k := range names {
		names[k] = fmt.Sprintf("factor_%d", k+1)
	}
	return names
}

func writeMatrix(path string, values [][]float32, rows, cols []string) error {
	m, err := dataset.NewMatrix(values, rows, cols)
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(dataset.WriteCSV(path, m))
}

func writeVector(path string, v []float32, rows []string, name string) error {
	values := make([][]float32, len(v))
	for l := range v {
		values[l] = []float32{v[l]}
	}
	return writeMatrix(path, values, rows, []string{name})
}

func writeIntegrateResult(dir string, paths []string, result *cfit.Result) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Trace(err)
	}
	if err := writeMatrix(filepath.Join(dir, "w.csv"),
		result.W, result.Genes, factorNames(result.Rank())); err != nil {
		return errors.Trace(err)
	}
	for j := range result.HList {
		stem := stemOf(paths[j])
		if err := writeMatrix(filepath.Join(dir, fmt.Sprintf("h_%s.csv", stem)),
			result.HList[j], result.RowNames[j], factorNames(result.Rank())); err != nil {
			return errors.Trace(err)
		}
		if err := writeVector(filepath.Join(dir, fmt.Sprintf("lambda_%s.csv", stem)),
			result.LambdaList[j], result.Genes, "lambda"); err != nil {
			return errors.Trace(err)
		}
		if err := writeVector(filepath.Join(dir, fmt.Sprintf("b_%s.csv", stem)),
			result.BList[j], result.Genes, "b"); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func writeTransferResult(dir string, genes []string, result *cfit.TransferResult) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Trace(err)
	}
	rank := 0
	if len(result.H) > 0 {
		rank = len(result.H[0])
	}
	if err := writeMatrix(filepath.Join(dir, "h.csv"),
		result.H, result.RowNames, factorNames(rank)); err != nil {
		return errors.Trace(err)
	}
	if err := writeVector(filepath.Join(dir, "lambda.csv"), result.Lambda, genes, "lambda"); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(writeVector(filepath.Join(dir, "b.csv"), result.B, genes, "b"))
}

func stemOf(path string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}

func printIntegrateSummary(result *cfit.Result) {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("metric", "value")
	_ = table.Append([]string{"rank", fmt.Sprint(result.Rank())})
	_ = table.Append([]string{"datasets", fmt.Sprint(len(result.HList))})
	_ = table.Append([]string{"converged", fmt.Sprint(result.Converged)})
	_ = table.Append([]string{"iterations", fmt.Sprint(result.Iterations)})
	_ = table.Append([]string{"objective", fmt.Sprintf("%g", result.Objective)})
	_ = table.Append([]string{"w stability", fmt.Sprintf("%g", result.WStability)})
	_ = table.Append([]string{"elapsed", result.Elapsed.String()})
	_ = table.Render()
}

func printTransferSummary(result *cfit.TransferResult) {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("metric", "value")
	_ = table.Append([]string{"rows", fmt.Sprint(len(result.H))})
	_ = table.Append([]string{"converged", fmt.Sprint(result.Converged)})
	_ = table.Append([]string{"iterations", fmt.Sprint(result.Iterations)})
	_ = table.Append([]string{"objective", fmt.Sprintf("%g", result.Objective)})
	_ = table.Append([]string{"elapsed", result.Elapsed.String()})
	_ = table.Render()
}

func main() {
	if err := cfitCommand.Execute(); err != nil {
		log.Logger().Fatal("failed to execute command", zap.Error(err))
	}
}
