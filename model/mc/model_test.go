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
	"bytes"
	"context"
	"testing"

	"github.com/lowrank-io/lowrank/common/floats"
	"github.com/lowrank-io/lowrank/dataset"
	"github.com/lowrank-io/lowrank/model"
	"github.com/stretchr/testify/assert"
)

func newTestParams() model.Params {
	return model.Params{
		model.NFactors:    4,
		model.NEpochs:     1000,
		model.BatchSize:   50,
		model.Lr:          0.01,
		model.Reg:         1e-8,
		model.RandomState: int64(42),
	}
}

func newTestData(t *testing.T) (trainSet, testSet *dataset.Dataset) {
	synthetic, err := dataset.SampleLowRank(32, 24, 4, 400, 42)
	assert.NoError(t, err)
	trainSet, testSet = synthetic.SplitRatio(0.2, 42)
	return
}

func TestMF_GradientCheck(t *testing.T) {
	// the analytic gradient of the bilinear score wrt one vector is the
	// other vector; compare against a central finite difference
	v0 := []float32{0.3, -0.7, 1.1}
	v1 := []float32{-0.2, 0.5, 0.4}
	const h = 1e-2
	for k := range v0 {
		plus := append([]float32{}, v0...)
		minus := append([]float32{}, v0...)
		plus[k] += h
		minus[k] -= h
		numerical := (floats.Dot(plus, v1) - floats.Dot(minus, v1)) / (2 * h)
		assert.InDelta(t, v1[k], numerical, 1e-5)
	}
	// the backward pass routes the upstream gradient times the other vector
	// into each table's buffer
	table, err := NewTableFromMatrix([][]float32{v0})
	assert.NoError(t, err)
	table.Accumulate(0, v1, 2)
	for k := range v1 {
		assert.InDelta(t, 2*v1[k], table.Grad(0)[k], 1e-6)
	}
}

func TestMF_SyntheticRecovery(t *testing.T) {
	trainSet, testSet := newTestData(t)
	m := NewMF(newTestParams())
	scores, err := m.Fit(context.Background(), trainSet, testSet, NewFitConfig().SetVerbose(100))
	assert.NoError(t, err)
	assert.Len(t, scores, 1000)
	// training loss decreases over the run
	assert.Less(t, scores[len(scores)-1].TrainLoss, scores[0].TrainLoss)
	// the held-out loss approaches zero on an exactly low-rank target
	assert.Less(t, scores[len(scores)-1].EvalLoss, float32(0.05))
}

func TestMF_Determinism(t *testing.T) {
	trainSet, testSet := newTestData(t)
	params := newTestParams()
	params[model.NEpochs] = 20
	m1 := NewMF(params)
	m2 := NewMF(params)
	scores1, err := m1.Fit(context.Background(), trainSet, testSet, NewFitConfig().SetVerbose(100))
	assert.NoError(t, err)
	scores2, err := m2.Fit(context.Background(), trainSet, testSet, NewFitConfig().SetVerbose(100))
	assert.NoError(t, err)
	assert.Equal(t, scores1, scores2)
	assert.Equal(t, m1.RowFactor.Values(), m2.RowFactor.Values())
	assert.Equal(t, m1.ColFactor.Values(), m2.ColFactor.Values())
}

func TestMF_Predict(t *testing.T) {
	m := NewMF(nil)
	assert.NoError(t, m.SetFactors(
		[][]float32{{1, 2}, {3, 4}},
		[][]float32{{5, 6}, {7, 8}, {9, 10}}))
	prediction, err := m.Predict(1, 2)
	assert.NoError(t, err)
	assert.Equal(t, float32(3*9+4*10), prediction)
	assert.Equal(t, []float32{3, 4}, m.GetRowFactor(1))
	assert.Equal(t, []float32{9, 10}, m.GetColFactor(2))

	_, err = m.Predict(2, 0)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = m.Predict(0, 3)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = m.Predict(-1, 0)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)

	predictions, err := m.BatchPredict([]int32{0, 1}, []int32{0, 1})
	assert.NoError(t, err)
	assert.Equal(t, []float32{1*5 + 2*6, 3*7 + 4*8}, predictions)
	_, err = m.BatchPredict([]int32{0, 1}, []int32{0})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestMF_SetFactors(t *testing.T) {
	m := NewMF(nil)
	err := m.SetFactors(
		[][]float32{{1, 2}},
		[][]float32{{1, 2, 3}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.True(t, m.Invalid())
}

func TestMF_ExplicitInitPreserved(t *testing.T) {
	trainSet, err := dataset.NewDataset(2, 2)
	assert.NoError(t, err)
	assert.NoError(t, trainSet.Add(0, 0, 1))
	m := NewMF(model.Params{model.NEpochs: 0})
	rowFactor := [][]float32{{1, 2}, {3, 4}}
	colFactor := [][]float32{{5, 6}, {7, 8}}
	assert.NoError(t, m.SetFactors(rowFactor, colFactor))
	m.Init(trainSet)
	assert.Equal(t, rowFactor, m.RowFactor.Values())
	assert.Equal(t, colFactor, m.ColFactor.Values())
}

func TestMF_Marshal(t *testing.T) {
	trainSet, testSet := newTestData(t)
	params := newTestParams()
	params[model.NEpochs] = 10
	m := NewMF(params)
	_, err := m.Fit(context.Background(), trainSet, testSet, NewFitConfig().SetVerbose(100))
	assert.NoError(t, err)

	buf := bytes.NewBuffer(nil)
	assert.NoError(t, m.Marshal(buf))
	var decoded MF
	assert.NoError(t, decoded.Unmarshal(buf))
	assert.Equal(t, m.Params, decoded.Params)
	assert.Equal(t, m.RowFactor.Values(), decoded.RowFactor.Values())
	assert.Equal(t, m.ColFactor.Values(), decoded.ColFactor.Values())
	expected, err := m.Predict(1, 1)
	assert.NoError(t, err)
	actual, err := decoded.Predict(1, 1)
	assert.NoError(t, err)
	assert.Equal(t, expected, actual)

	// test clear
	m.Clear()
	assert.True(t, m.Invalid())
}

func TestMF_EmptyTrainSet(t *testing.T) {
	m := NewMF(nil)
	_, err := m.Fit(context.Background(), nil, nil, nil)
	assert.Error(t, err)
	empty, err := dataset.NewDataset(2, 2)
	assert.NoError(t, err)
	_, err = m.Fit(context.Background(), empty, nil, nil)
	assert.Error(t, err)
}
