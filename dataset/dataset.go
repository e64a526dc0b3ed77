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
	"math/rand"

	"github.com/juju/errors"
	"github.com/samber/lo"
)

// Observation is a single observed cell of the target matrix: the value at
// (Row, Col). Duplicate (Row, Col) pairs are permitted.
type Observation struct {
	Row   int32
	Col   int32
	Value float32
}

// Dataset is an ordered sequence of observations of a matrix with known
// domain sizes. Observations are validated against the domain sizes when
// added, so downstream consumers can rely on indices being in range.
type Dataset struct {
	numRows      int
	numCols      int
	observations []Observation
}

// NewDataset creates an empty dataset for a numRows x numCols matrix.
func NewDataset(numRows, numCols int) (*Dataset, error) {
	if numRows <= 0 || numCols <= 0 {
		return nil, errors.NotValidf("matrix shape (%v, %v)", numRows, numCols)
	}
	return &Dataset{
		numRows: numRows,
		numCols: numCols,
	}, nil
}

// NumRows returns the number of rows of the target matrix.
func (d *Dataset) NumRows() int {
	return d.numRows
}

// NumCols returns the number of columns of the target matrix.
func (d *Dataset) NumCols() int {
	return d.numCols
}

// Count returns the number of observations.
func (d *Dataset) Count() int {
	if d == nil {
		return 0
	}
	return len(d.observations)
}

// Add appends an observation. Out-of-range indices are rejected.
func (d *Dataset) Add(row, col int32, value float32) error {
	if row < 0 || int(row) >= d.numRows {
		return errors.NotValidf("row index %v of [0, %v)", row, d.numRows)
	}
	if col < 0 || int(col) >= d.numCols {
		return errors.NotValidf("column index %v of [0, %v)", col, d.numCols)
	}
	d.observations = append(d.observations, Observation{Row: row, Col: col, Value: value})
	return nil
}

// Get returns the i-th observation.
func (d *Dataset) Get(i int) Observation {
	return d.observations[i]
}

// Observations returns all observations.
func (d *Dataset) Observations() []Observation {
	return d.observations
}

// Values returns the observed values.
func (d *Dataset) Values() []float32 {
	return lo.Map(d.observations, func(o Observation, _ int) float32 {
		return o.Value
	})
}

// SubSet returns a dataset with a subset of observations.
func (d *Dataset) SubSet(indices []int) *Dataset {
	return &Dataset{
		numRows: d.numRows,
		numCols: d.numCols,
		observations: lo.Map(indices, func(i int, _ int) Observation {
			return d.observations[i]
		}),
	}
}

// SplitRatio splits the dataset into a training set and a test set by ratio.
// The split is deterministic for a fixed seed and the two subsets are
// disjoint by position.
func (d *Dataset) SplitRatio(testRatio float64, seed int64) (train, test *Dataset) {
	rng := rand.New(rand.NewSource(seed))
	perm := rng.Perm(d.Count())
	testSize := int(float64(d.Count()) * testRatio)
	test = d.SubSet(perm[:testSize])
	train = d.SubSet(perm[testSize:])
	return
}
