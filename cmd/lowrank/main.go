// Copyright 2025 lowrank Project Authors
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

	"github.com/lowrank-io/lowrank/base/log"
	"github.com/lowrank-io/lowrank/dataset"
	"github.com/lowrank-io/lowrank/model"
	"github.com/lowrank-io/lowrank/model/mc"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var versionName = "0.1.0"

var rootCommand = &cobra.Command{
	Use:   "lowrank",
	Short: "lowrank: low-rank matrix completion in Go",
	Long: "lowrank recovers a sparsely observed matrix as the product of two " +
		"low-rank factor matrices trained by minibatch gradient descent.",
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 {
			_ = cmd.Help()
		}
	},
}

var versionCommand = &cobra.Command{
	Use:   "version",
	Short: "Check the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(versionName)
	},
}

var synthesizeCommand = &cobra.Command{
	Use:   "synthesize",
	Short: "Sample observations from a random low-rank matrix",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := viper.BindPFlags(cmd.Flags()); err != nil {
			return err
		}
		debug, _ := cmd.Flags().GetBool("debug")
		log.SetLogger(cmd.Flags(), debug)
		data, err := dataset.SampleLowRank(
			viper.GetInt("rows"),
			viper.GetInt("cols"),
			viper.GetInt("rank"),
			viper.GetInt("samples"),
			viper.GetInt64("seed"))
		if err != nil {
			return err
		}
		output := viper.GetString("output")
		if err = data.SaveCSV(output); err != nil {
			return err
		}
		log.Logger().Info("synthesized dataset",
			zap.Int("rows", data.NumRows()),
			zap.Int("cols", data.NumCols()),
			zap.Int("samples", data.Count()),
			zap.String("output", output))
		return nil
	},
}

var trainCommand = &cobra.Command{
	Use:   "train",
	Short: "Train a matrix completion model",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := viper.BindPFlags(cmd.Flags()); err != nil {
			return err
		}
		debug, _ := cmd.Flags().GetBool("debug")
		log.SetLogger(cmd.Flags(), debug)
		// load or synthesize observations
		var (
			data *dataset.Dataset
			err  error
		)
		if input := viper.GetString("input"); input != "" {
			data, err = dataset.LoadCSV(input)
			if err != nil {
				return err
			}
		} else {
			synthetic, err := dataset.SampleLowRank(
				viper.GetInt("rows"),
				viper.GetInt("cols"),
				viper.GetInt("rank"),
				viper.GetInt("samples"),
				viper.GetInt64("seed"))
			if err != nil {
				return err
			}
			data = synthetic.Dataset
		}
		trainSet, testSet := data.SplitRatio(viper.GetFloat64("test-ratio"), viper.GetInt64("seed"))
		// train
		nEpochs := viper.GetInt("epochs")
		m := mc.NewMF(model.Params{
			model.NFactors:    viper.GetInt("rank"),
			model.NEpochs:     nEpochs,
			model.BatchSize:   viper.GetInt("batch-size"),
			model.Lr:          viper.GetFloat64("lr"),
			model.Reg:         viper.GetFloat64("reg"),
			model.RandomState: viper.GetInt64("seed"),
			model.Optimizer:   viper.GetString("optimizer"),
		})
		bar := progressbar.Default(int64(nEpochs), "fit")
		config := mc.NewFitConfig().SetOnEpoch(func(score mc.EpochScore) {
			_ = bar.Add(1)
		})
		scores, err := m.Fit(context.Background(), trainSet, testSet, config)
		if err != nil {
			return err
		}
		_ = bar.Finish()
		if len(scores) > 0 {
			final := scores[len(scores)-1]
			log.Logger().Info("training complete",
				zap.Float32("train_loss", final.TrainLoss),
				zap.Float32("eval_loss", final.EvalLoss))
		}
		// dump model
		if path := viper.GetString("model-path"); path != "" {
			file, err := os.Create(path)
			if err != nil {
				return err
			}
			defer file.Close()
			if err = m.Marshal(file); err != nil {
				return err
			}
			log.Logger().Info("model saved", zap.String("path", path))
		}
		return nil
	},
}

func init() {
	rootCommand.AddCommand(versionCommand)
	rootCommand.AddCommand(synthesizeCommand)
	rootCommand.AddCommand(trainCommand)
	for _, command := range []*cobra.Command{synthesizeCommand, trainCommand} {
		command.Flags().Bool("debug", false, "use debug log mode")
		command.Flags().Int("rows", 100, "number of rows of the matrix")
		command.Flags().Int("cols", 80, "number of columns of the matrix")
		command.Flags().Int("rank", 5, "rank of the factorization")
		command.Flags().Int("samples", 3000, "number of sampled observations")
		command.Flags().Int64("seed", 0, "random seed")
		log.AddFlags(command.Flags())
	}
	synthesizeCommand.Flags().String("output", "observations.csv", "path of the output file")
	trainCommand.Flags().String("input", "", "path of an observation file (synthesize if empty)")
	trainCommand.Flags().Float64("test-ratio", 0.2, "ratio of the held-out evaluation set")
	trainCommand.Flags().Int("epochs", 1000, "number of training epochs")
	trainCommand.Flags().Int("batch-size", 1000, "size of minibatches")
	trainCommand.Flags().Float64("lr", 0.01, "learning rate")
	trainCommand.Flags().Float64("reg", 1e-8, "regularization strength")
	trainCommand.Flags().String("optimizer", model.Adam, "optimizer (adam or sgd)")
	trainCommand.Flags().String("model-path", "", "path to save the trained model")
	viper.SetEnvPrefix("lowrank")
	viper.AutomaticEnv()
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		log.Logger().Fatal("failed to execute command", zap.Error(err))
	}
}
