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

package mc

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/c-bata/goptuna"
	"github.com/chewxy/math32"
	"github.com/juju/errors"
	"github.com/lowrank-io/lowrank/base/encoding"
	"github.com/lowrank-io/lowrank/base/log"
	"github.com/lowrank-io/lowrank/base/progress"
	"github.com/lowrank-io/lowrank/common/floats"
	"github.com/lowrank-io/lowrank/dataset"
	"github.com/lowrank-io/lowrank/model"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// EpochScore is the pair of losses reported after a completed epoch. The
// training loss is the mean absolute error over the training set plus the
// regularization penalty; the evaluation loss is the plain mean absolute
// error on the held-out set. A non-finite value signals that training
// diverged; the loop reports it and keeps going, recovery is up to the
// caller.
type EpochScore struct {
	Epoch     int
	TrainLoss float32
	EvalLoss  float32
}

type FitConfig struct {
	Verbose int
	OnEpoch func(score EpochScore)
}

func NewFitConfig() *FitConfig {
	return &FitConfig{
		Verbose: 10,
	}
}

func (config *FitConfig) SetVerbose(verbose int) *FitConfig {
	config.Verbose = verbose
	return config
}

func (config *FitConfig) SetOnEpoch(callback func(score EpochScore)) *FitConfig {
	config.OnEpoch = callback
	return config
}

// MatrixCompletion is the interface of matrix completion models.
type MatrixCompletion interface {
	model.Model
	// Fit a model with a train set and parameters.
	Fit(ctx context.Context, trainSet, testSet *dataset.Dataset, config *FitConfig) ([]EpochScore, error)
	// Predict the value of cell (row, col).
	Predict(row, col int32) (float32, error)
	// BatchPredict predicts the values of a sequence of cells.
	BatchPredict(rows, cols []int32) ([]float32, error)
	// GetRowFactor returns the latent factor of a row index.
	GetRowFactor(row int32) []float32
	// GetColFactor returns the latent factor of a column index.
	GetColFactor(col int32) []float32
	// SuggestParams suggests hyper-parameters for a trial.
	SuggestParams(trial goptuna.Trial) model.Params
	// Marshal model into byte stream.
	Marshal(w io.Writer) error
	// Unmarshal model from byte stream.
	Unmarshal(r io.Reader) error
}

// MF recovers a sparse observed matrix as the product of two embedding
// tables trained jointly by minibatch gradient descent on a bilinear score.
// The predicted value of cell (i, j) is:
//
//	\hat{M}_{ij} = a0_i^T a1_j
//
// Hyper-parameters:
//
//	 Lr         - The learning rate. Default is 0.01.
//	 Reg        - The L2 regularization strength. Default is 1e-8.
//	 NFactors   - The rank of the factorization. Default is 16.
//	 NEpochs    - The number of training epochs. Default is 100.
//	 BatchSize  - The size of minibatches. Default is 1000.
//	 Beta1      - The first moment decay rate of Adam. Default is 0.9.
//	 Beta2      - The second moment decay rate of Adam. Default is 0.999.
//	 Eps        - The numerical stability constant of Adam. Default is 1e-8.
//	 InitMean   - The mean of initial latent factors. Default is 0.
//	 InitStdDev - The standard deviation of initial latent factors.
//	              Default is 1/sqrt(NFactors).
//	 Optimizer  - The optimizer, "adam" or "sgd". Default is "adam".
type MF struct {
	model.BaseModel
	RowFactor *Table // a0
	ColFactor *Table // a1
	numRows   int
	numCols   int
	// Hyper parameters
	nFactors   int
	nEpochs    int
	batchSize  int
	lr         float32
	reg        float32
	beta1      float32
	beta2      float32
	eps        float32
	initMean   float32
	initStdDev float32
	optimizer  string
}

// NewMF creates a matrix completion model.
func NewMF(params model.Params) *MF {
	mf := new(MF)
	mf.SetParams(params)
	return mf
}

// SetParams sets hyper-parameters of the MF model.
func (mf *MF) SetParams(params model.Params) {
	mf.BaseModel.SetParams(params)
	mf.nFactors = mf.Params.GetInt(model.NFactors, 16)
	mf.nEpochs = mf.Params.GetInt(model.NEpochs, 100)
	mf.batchSize = mf.Params.GetInt(model.BatchSize, 1000)
	mf.lr = mf.Params.GetFloat32(model.Lr, 0.01)
	mf.reg = mf.Params.GetFloat32(model.Reg, 1e-8)
	mf.beta1 = mf.Params.GetFloat32(model.Beta1, 0.9)
	mf.beta2 = mf.Params.GetFloat32(model.Beta2, 0.999)
	mf.eps = mf.Params.GetFloat32(model.Eps, 1e-8)
	mf.initMean = mf.Params.GetFloat32(model.InitMean, 0)
	mf.initStdDev = mf.Params.GetFloat32(model.InitStdDev, -1)
	mf.optimizer = mf.Params.GetString(model.Optimizer, model.Adam)
}

func (mf *MF) GetParamsGrid(withSize bool) model.ParamsGrid {
	return model.ParamsGrid{
		model.NFactors: lo.If(withSize, []interface{}{4, 8, 16, 32}).Else([]interface{}{16}),
		model.Lr:       []interface{}{0.001, 0.005, 0.01, 0.05},
		model.Reg:      []interface{}{1e-8, 1e-6, 1e-4},
	}
}

func (mf *MF) SuggestParams(trial goptuna.Trial) model.Params {
	return model.Params{
		model.NFactors: mf.nFactors,
		model.NEpochs:  mf.nEpochs,
		model.Lr:       lo.Must(trial.SuggestLogFloat(string(model.Lr), 0.001, 0.1)),
		model.Reg:      lo.Must(trial.SuggestLogFloat(string(model.Reg), 1e-9, 1e-3)),
	}
}

// SetFactors installs explicit initial factor matrices instead of random
// initialization. Both matrices must share the same rank.
func (mf *MF) SetFactors(rowFactor, colFactor [][]float32) error {
	a0, err := NewTableFromMatrix(rowFactor)
	if err != nil {
		return errors.Trace(err)
	}
	a1, err := NewTableFromMatrix(colFactor)
	if err != nil {
		return errors.Trace(err)
	}
	if a0.Rank() != a1.Rank() {
		return errors.Annotatef(ErrDimensionMismatch,
			"row factor rank %v, column factor rank %v", a0.Rank(), a1.Rank())
	}
	mf.RowFactor = a0
	mf.ColFactor = a1
	mf.numRows = a0.Len()
	mf.numCols = a1.Len()
	mf.nFactors = a0.Rank()
	return nil
}

// Init initializes factors for the domain sizes of the train set. Factors
// installed by SetFactors are kept if their shapes match.
func (mf *MF) Init(trainSet *dataset.Dataset) {
	if mf.RowFactor != nil && mf.ColFactor != nil &&
		mf.RowFactor.Len() == trainSet.NumRows() &&
		mf.ColFactor.Len() == trainSet.NumCols() {
		mf.numRows = trainSet.NumRows()
		mf.numCols = trainSet.NumCols()
		return
	}
	stdDev := mf.initStdDev
	if stdDev <= 0 {
		stdDev = 1 / math32.Sqrt(float32(mf.nFactors))
	}
	rng := mf.GetRandomGenerator()
	mf.RowFactor = NewTable(trainSet.NumRows(), mf.nFactors, mf.initMean, stdDev, rng)
	mf.ColFactor = NewTable(trainSet.NumCols(), mf.nFactors, mf.initMean, stdDev, rng)
	mf.numRows = trainSet.NumRows()
	mf.numCols = trainSet.NumCols()
}

func (mf *MF) newOptimizer() Optimizer {
	var opt Optimizer
	switch mf.optimizer {
	case model.SGD:
		opt = NewSGD([]*Table{mf.RowFactor, mf.ColFactor}, mf.lr)
	default:
		opt = NewAdam([]*Table{mf.RowFactor, mf.ColFactor}, mf.lr, mf.beta1, mf.beta2, mf.eps)
	}
	// the gradient of the L2 penalty on a row is 2*reg*row
	opt.SetWeightDecay(2 * mf.reg)
	return opt
}

// Fit the MF model. Minibatches are processed sequentially: all gradient
// contributions to a row are accumulated before the optimizer step, so
// repeated indices within a batch sum instead of overwriting each other.
func (mf *MF) Fit(ctx context.Context, trainSet, testSet *dataset.Dataset, config *FitConfig) ([]EpochScore, error) {
	if trainSet == nil || trainSet.Count() == 0 {
		return nil, errors.NotValidf("empty train set")
	}
	if config == nil {
		config = NewFitConfig()
	}
	log.Logger().Info("fit mf",
		zap.Int("train_set_size", trainSet.Count()),
		zap.Int("test_set_size", testSet.Count()),
		zap.Any("params", mf.GetParams()))
	mf.Init(trainSet)
	opt := mf.newOptimizer()
	scores := make([]EpochScore, 0, mf.nEpochs)
	_, span := progress.Start(ctx, "MF.Fit", mf.nEpochs)
	for epoch := 1; epoch <= mf.nEpochs; epoch++ {
		fitStart := time.Now()
		cost := float32(0)
		perm := mf.GetRandomGenerator().Perm(trainSet.Count())
		for start := 0; start < len(perm); start += mf.batchSize {
			end := start + mf.batchSize
			if end > len(perm) {
				end = len(perm)
			}
			batch := perm[start:end]
			opt.ZeroGrad()
			scale := 1 / float32(len(batch))
			for _, i := range batch {
				o := trainSet.Get(i)
				rowVec := mf.RowFactor.Lookup(o.Row)
				colVec := mf.ColFactor.Lookup(o.Col)
				diff := floats.Dot(rowVec, colVec) - o.Value
				cost += math32.Abs(diff)
				var upstream float32
				if diff > 0 {
					upstream = scale
				} else if diff < 0 {
					upstream = -scale
				}
				if upstream != 0 {
					mf.RowFactor.Accumulate(o.Row, colVec, upstream)
					mf.ColFactor.Accumulate(o.Col, rowVec, upstream)
				}
			}
			opt.Step()
		}
		fitTime := time.Since(fitStart)
		evalStart := time.Now()
		trainLoss := cost/float32(trainSet.Count()) + mf.Penalty()
		evalLoss := Evaluate(mf, testSet, MAE)[0]
		evalTime := time.Since(evalStart)
		if math32.IsNaN(trainLoss) || math32.IsInf(trainLoss, 0) {
			log.Logger().Warn("non-finite training loss",
				zap.Int("epoch", epoch),
				zap.Float32("train_loss", trainLoss))
		}
		score := EpochScore{Epoch: epoch, TrainLoss: trainLoss, EvalLoss: evalLoss}
		scores = append(scores, score)
		if config.OnEpoch != nil {
			config.OnEpoch(score)
		}
		if epoch%config.Verbose == 0 || epoch == mf.nEpochs {
			log.Logger().Debug(fmt.Sprintf("fit mf %v/%v", epoch, mf.nEpochs),
				zap.String("fit_time", fitTime.String()),
				zap.String("eval_time", evalTime.String()),
				zap.Float32("train_loss", trainLoss),
				zap.Float32("eval_loss", evalLoss))
		}
		span.Add(1)
	}
	span.End()
	if len(scores) > 0 {
		log.Logger().Info("fit mf complete",
			zap.Float32("train_loss", scores[len(scores)-1].TrainLoss),
			zap.Float32("eval_loss", scores[len(scores)-1].EvalLoss))
	}
	return scores, nil
}

// Penalty returns the L2 penalty over both factor tables.
func (mf *MF) Penalty() float32 {
	return mf.reg * (mf.RowFactor.SquaredNorm() + mf.ColFactor.SquaredNorm())
}

// Predict the value of cell (row, col).
func (mf *MF) Predict(row, col int32) (float32, error) {
	if err := mf.RowFactor.check(row); err != nil {
		return 0, errors.Annotate(err, "row")
	}
	if err := mf.ColFactor.check(col); err != nil {
		return 0, errors.Annotate(err, "column")
	}
	return mf.internalPredict(row, col), nil
}

func (mf *MF) internalPredict(row, col int32) float32 {
	return floats.Dot(mf.RowFactor.Lookup(row), mf.ColFactor.Lookup(col))
}

// BatchPredict predicts the values of cells (rows[i], cols[i]).
func (mf *MF) BatchPredict(rows, cols []int32) ([]float32, error) {
	if len(rows) != len(cols) {
		return nil, errors.Annotatef(ErrDimensionMismatch,
			"%v row indices, %v column indices", len(rows), len(cols))
	}
	predictions := make([]float32, len(rows))
	for i := range rows {
		prediction, err := mf.Predict(rows[i], cols[i])
		if err != nil {
			return nil, errors.Trace(err)
		}
		predictions[i] = prediction
	}
	return predictions, nil
}

// GetRowFactor returns the latent factor of a row index.
func (mf *MF) GetRowFactor(row int32) []float32 {
	return mf.RowFactor.Lookup(row)
}

// GetColFactor returns the latent factor of a column index.
func (mf *MF) GetColFactor(col int32) []float32 {
	return mf.ColFactor.Lookup(col)
}

func (mf *MF) Clear() {
	mf.RowFactor = nil
	mf.ColFactor = nil
	mf.numRows = 0
	mf.numCols = 0
}

func (mf *MF) Invalid() bool {
	return mf == nil || mf.RowFactor == nil || mf.ColFactor == nil
}

// Marshal model into byte stream.
func (mf *MF) Marshal(w io.Writer) error {
	// write params
	if err := encoding.WriteGob(w, mf.Params); err != nil {
		return errors.Trace(err)
	}
	// write shape
	for _, size := range []int64{int64(mf.numRows), int64(mf.numCols), int64(mf.nFactors)} {
		if err := binary.Write(w, binary.LittleEndian, size); err != nil {
			return errors.Trace(err)
		}
	}
	// write factors
	if err := encoding.WriteMatrix(w, mf.RowFactor.Values()); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteMatrix(w, mf.ColFactor.Values()); err != nil {
		return errors.Trace(err)
	}
	return nil
}

// Unmarshal model from byte stream.
func (mf *MF) Unmarshal(r io.Reader) error {
	// read params
	var params model.Params
	if err := encoding.ReadGob(r, &params); err != nil {
		return errors.Trace(err)
	}
	mf.SetParams(params)
	// read shape
	var numRows, numCols, nFactors int64
	for _, size := range []*int64{&numRows, &numCols, &nFactors} {
		if err := binary.Read(r, binary.LittleEndian, size); err != nil {
			return errors.Trace(err)
		}
	}
	// read factors
	rowFactor := make([][]float32, numRows)
	for i := range rowFactor {
		rowFactor[i] = make([]float32, nFactors)
	}
	if err := encoding.ReadMatrix(r, rowFactor); err != nil {
		return errors.Trace(err)
	}
	colFactor := make([][]float32, numCols)
	for i := range colFactor {
		colFactor[i] = make([]float32, nFactors)
	}
	if err := encoding.ReadMatrix(r, colFactor); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(mf.SetFactors(rowFactor, colFactor))
}
