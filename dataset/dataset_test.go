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
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewDataset(t *testing.T) {
	_, err := NewDataset(0, 10)
	assert.Error(t, err)
	_, err = NewDataset(10, -1)
	assert.Error(t, err)
	data, err := NewDataset(10, 8)
	assert.NoError(t, err)
	assert.Equal(t, 10, data.NumRows())
	assert.Equal(t, 8, data.NumCols())
	assert.Zero(t, data.Count())
}

func TestDataset_Add(t *testing.T) {
	data, err := NewDataset(2, 3)
	assert.NoError(t, err)
	assert.NoError(t, data.Add(1, 2, 0.5))
	assert.Error(t, data.Add(2, 0, 1))
	assert.Error(t, data.Add(-1, 0, 1))
	assert.Error(t, data.Add(0, 3, 1))
	assert.Error(t, data.Add(0, -1, 1))
	assert.Equal(t, 1, data.Count())
	assert.Equal(t, Observation{Row: 1, Col: 2, Value: 0.5}, data.Get(0))
	// duplicates are permitted
	assert.NoError(t, data.Add(1, 2, 0.7))
	assert.Equal(t, 2, data.Count())
	assert.Equal(t, []float32{0.5, 0.7}, data.Values())
}

func TestDataset_SplitRatio(t *testing.T) {
	data, err := NewDataset(10, 10)
	assert.NoError(t, err)
	for i := int32(0); i < 10; i++ {
		for j := int32(0); j < 10; j++ {
			assert.NoError(t, data.Add(i, j, float32(i*10+j)))
		}
	}
	train, test := data.SplitRatio(0.2, 0)
	assert.Equal(t, 80, train.Count())
	assert.Equal(t, 20, test.Count())
	assert.Equal(t, 10, train.NumRows())
	assert.Equal(t, 10, test.NumCols())
	// no value appears in both splits (all values are unique)
	seen := make(map[float32]bool)
	for i := 0; i < test.Count(); i++ {
		seen[test.Get(i).Value] = true
	}
	for i := 0; i < train.Count(); i++ {
		assert.False(t, seen[train.Get(i).Value])
	}
	// deterministic for a fixed seed
	train2, test2 := data.SplitRatio(0.2, 0)
	assert.Equal(t, train.Observations(), train2.Observations())
	assert.Equal(t, test.Observations(), test2.Observations())
}

func TestSampleLowRank(t *testing.T) {
	synthetic, err := SampleLowRank(20, 15, 3, 100, 0)
	assert.NoError(t, err)
	assert.Equal(t, 100, synthetic.Count())
	assert.Equal(t, 20, synthetic.NumRows())
	assert.Equal(t, 15, synthetic.NumCols())
	assert.Len(t, synthetic.RowFactor, 20)
	assert.Len(t, synthetic.ColFactor, 15)
	// sampled cells are distinct and carry the ground truth value
	seen := make(map[[2]int32]bool)
	for _, o := range synthetic.Observations() {
		cell := [2]int32{o.Row, o.Col}
		assert.False(t, seen[cell])
		seen[cell] = true
		assert.Equal(t, synthetic.Truth(o.Row, o.Col), o.Value)
	}
	// deterministic for a fixed seed
	synthetic2, err := SampleLowRank(20, 15, 3, 100, 0)
	assert.NoError(t, err)
	assert.Equal(t, synthetic.Observations(), synthetic2.Observations())

	_, err = SampleLowRank(20, 15, 0, 100, 0)
	assert.Error(t, err)
	_, err = SampleLowRank(2, 2, 1, 5, 0)
	assert.Error(t, err)
}

func TestCSV(t *testing.T) {
	synthetic, err := SampleLowRank(8, 6, 2, 20, 0)
	assert.NoError(t, err)
	path := filepath.Join(t.TempDir(), "observations.csv")
	assert.NoError(t, synthetic.SaveCSV(path))
	loaded, err := LoadCSV(path)
	assert.NoError(t, err)
	assert.Equal(t, synthetic.NumRows(), loaded.NumRows())
	assert.Equal(t, synthetic.NumCols(), loaded.NumCols())
	assert.Equal(t, synthetic.Observations(), loaded.Observations())

	_, err = LoadCSV(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}
