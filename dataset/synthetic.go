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

package dataset

import (
	"github.com/chewxy/math32"
	"github.com/juju/errors"
	"github.com/lowrank-io/lowrank/base"
	"github.com/lowrank-io/lowrank/common/floats"
)

// SyntheticDataset is a dataset sampled from a known low-rank matrix. The
// ground truth factors are kept so that recovery can be measured against
// the full matrix, not just the sampled cells.
type SyntheticDataset struct {
	*Dataset
	RowFactor [][]float32
	ColFactor [][]float32
}

// Truth returns the ground truth value of cell (row, col).
func (d *SyntheticDataset) Truth(row, col int32) float32 {
	return floats.Dot(d.RowFactor[row], d.ColFactor[col])
}

// SampleLowRank samples count distinct cells from a random numRows x numCols
// matrix of the given rank. Factor entries are drawn from N(0, 1/sqrt(rank))
// so that cell values stay at unit scale regardless of rank.
func SampleLowRank(numRows, numCols, rank, count int, seed int64) (*SyntheticDataset, error) {
	if rank <= 0 {
		return nil, errors.NotValidf("rank %v", rank)
	}
	if count > numRows*numCols {
		return nil, errors.NotValidf("sample count %v of a %vx%v matrix", count, numRows, numCols)
	}
	data, err := NewDataset(numRows, numCols)
	if err != nil {
		return nil, errors.Trace(err)
	}
	rng := base.NewRandomGenerator(seed)
	stdDev := 1 / math32.Sqrt(float32(rank))
	rowFactor := rng.NormalMatrix(numRows, rank, 0, stdDev)
	colFactor := rng.NormalMatrix(numCols, rank, 0, stdDev)
	for _, cell := range rng.Sample(0, numRows*numCols, count) {
		row := int32(cell / numCols)
		col := int32(cell % numCols)
		value := floats.Dot(rowFactor[row], colFactor[col])
		if err = data.Add(row, col, value); err != nil {
			return nil, errors.Trace(err)
		}
	}
	return &SyntheticDataset{
		Dataset:   data,
		RowFactor: rowFactor,
		ColFactor: colFactor,
	}, nil
}
