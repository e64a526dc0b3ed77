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
	"github.com/bits-and-blooms/bitset"
	"github.com/juju/errors"
	"github.com/lowrank-io/lowrank/base"
	"github.com/lowrank-io/lowrank/common/floats"
)

var (
	// ErrIndexOutOfRange reports an observation or query index outside the
	// embedding table.
	ErrIndexOutOfRange = errors.New("index out of range")
	// ErrDimensionMismatch reports incompatible factor ranks or malformed
	// input shapes.
	ErrDimensionMismatch = errors.New("dimension mismatch")
)

// Table is a dense embedding table: one row of rank floats per index. Rows
// are the unit of mutation. Each table carries a gradient buffer of the same
// shape plus the set of rows touched since the last ZeroGrad, so that
// optimizers can update sparsely.
type Table struct {
	rank    int
	values  [][]float32
	grads   [][]float32
	touched *bitset.BitSet
}

// NewTable creates a table with entries drawn from N(mean, stdDev).
func NewTable(n, rank int, mean, stdDev float32, rng base.RandomGenerator) *Table {
	return &Table{
		rank:    rank,
		values:  rng.NormalMatrix(n, rank, mean, stdDev),
		grads:   base.NewMatrix32(n, rank),
		touched: bitset.New(uint(n)),
	}
}

// NewTableFromMatrix creates a table owning the given matrix.
func NewTableFromMatrix(values [][]float32) (*Table, error) {
	if len(values) == 0 {
		return nil, errors.Annotate(ErrDimensionMismatch, "empty matrix")
	}
	rank := len(values[0])
	if rank == 0 {
		return nil, errors.Annotate(ErrDimensionMismatch, "empty rows")
	}
	for i := range values {
		if len(values[i]) != rank {
			return nil, errors.Annotatef(ErrDimensionMismatch,
				"row %v has length %v, expected %v", i, len(values[i]), rank)
		}
	}
	return &Table{
		rank:    rank,
		values:  values,
		grads:   base.NewMatrix32(len(values), rank),
		touched: bitset.New(uint(len(values))),
	}, nil
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.values)
}

// Rank returns the embedding dimension.
func (t *Table) Rank() int {
	return t.rank
}

func (t *Table) check(i int32) error {
	if i < 0 || int(i) >= len(t.values) {
		return errors.Annotatef(ErrIndexOutOfRange, "index %v of [0, %v)", i, len(t.values))
	}
	return nil
}

// Lookup returns row i. The returned slice aliases the table storage.
func (t *Table) Lookup(i int32) []float32 {
	return t.values[i]
}

// BatchLookup returns the rows of the given indices in order. Repeated
// indices alias the same underlying row.
func (t *Table) BatchLookup(indices []int32) ([][]float32, error) {
	rows := make([][]float32, len(indices))
	for pos, i := range indices {
		if err := t.check(i); err != nil {
			return nil, errors.Trace(err)
		}
		rows[pos] = t.values[i]
	}
	return rows, nil
}

// Accumulate adds vec*scale into the gradient of row i and marks the row as
// touched. Contributions to the same row sum, they never overwrite.
func (t *Table) Accumulate(i int32, vec []float32, scale float32) {
	floats.MulConstAdd(vec, scale, t.grads[i])
	t.touched.Set(uint(i))
}

// Grad returns the accumulated gradient of row i.
func (t *Table) Grad(i int32) []float32 {
	return t.grads[i]
}

// Touched returns the set of rows with pending gradients.
func (t *Table) Touched() *bitset.BitSet {
	return t.touched
}

// ZeroGrad clears pending gradients and the touched set.
func (t *Table) ZeroGrad() {
	for i, ok := t.touched.NextSet(0); ok; i, ok = t.touched.NextSet(i + 1) {
		floats.Zero(t.grads[i])
	}
	t.touched.ClearAll()
}

// Values returns the underlying matrix.
func (t *Table) Values() [][]float32 {
	return t.values
}

// SquaredNorm returns the squared Frobenius norm of the table.
func (t *Table) SquaredNorm() float32 {
	var sum float32
	for i := range t.values {
		sum += floats.SquaredNorm(t.values[i])
	}
	return sum
}
