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
	"testing"

	"github.com/lowrank-io/lowrank/base"
	"github.com/stretchr/testify/assert"
)

func TestNewTable(t *testing.T) {
	rng := base.NewRandomGenerator(0)
	table := NewTable(10, 4, 0, 0.1, rng)
	assert.Equal(t, 10, table.Len())
	assert.Equal(t, 4, table.Rank())
	// rows are independent draws, not copies
	assert.NotEqual(t, table.Lookup(0), table.Lookup(1))
}

func TestNewTableFromMatrix(t *testing.T) {
	table, err := NewTableFromMatrix([][]float32{{1, 2}, {3, 4}, {5, 6}})
	assert.NoError(t, err)
	assert.Equal(t, 3, table.Len())
	assert.Equal(t, 2, table.Rank())
	assert.Equal(t, []float32{3, 4}, table.Lookup(1))

	_, err = NewTableFromMatrix(nil)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	_, err = NewTableFromMatrix([][]float32{{}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	_, err = NewTableFromMatrix([][]float32{{1, 2}, {3}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestTable_BatchLookup(t *testing.T) {
	table, err := NewTableFromMatrix([][]float32{{1, 2}, {3, 4}, {5, 6}})
	assert.NoError(t, err)
	rows, err := table.BatchLookup([]int32{2, 0, 2})
	assert.NoError(t, err)
	assert.Equal(t, [][]float32{{5, 6}, {1, 2}, {5, 6}}, rows)
	// repeated indices alias the same underlying row
	rows[0][0] = 42
	assert.Equal(t, float32(42), rows[2][0])
	assert.Equal(t, float32(42), table.Lookup(2)[0])

	_, err = table.BatchLookup([]int32{0, 3})
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = table.BatchLookup([]int32{-1})
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestTable_Accumulate(t *testing.T) {
	table, err := NewTableFromMatrix([][]float32{{0, 0}, {0, 0}})
	assert.NoError(t, err)
	table.Accumulate(1, []float32{1, 2}, 2)
	table.Accumulate(1, []float32{3, 4}, 1)
	// contributions sum instead of overwriting
	assert.Equal(t, []float32{5, 8}, table.Grad(1))
	assert.Equal(t, []float32{0, 0}, table.Grad(0))
	assert.True(t, table.Touched().Test(1))
	assert.False(t, table.Touched().Test(0))

	table.ZeroGrad()
	assert.Equal(t, []float32{0, 0}, table.Grad(1))
	assert.False(t, table.Touched().Test(1))
}

func TestTable_SquaredNorm(t *testing.T) {
	table, err := NewTableFromMatrix([][]float32{{1, 2}, {3, 4}})
	assert.NoError(t, err)
	assert.Equal(t, float32(30), table.SquaredNorm())
}
