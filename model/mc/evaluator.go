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
	"github.com/chewxy/math32"
	"github.com/lowrank-io/lowrank/dataset"
)

// Metric is used by Evaluate to score predictions against observed values.
type Metric func(predictions, truths []float32) float32

// MAE is the mean absolute error.
func MAE(predictions, truths []float32) float32 {
	var sum float32
	for i := range predictions {
		sum += math32.Abs(predictions[i] - truths[i])
	}
	return sum / float32(len(predictions))
}

// RMSE is the root mean squared error.
func RMSE(predictions, truths []float32) float32 {
	var sum float32
	for i := range predictions {
		diff := predictions[i] - truths[i]
		sum += diff * diff
	}
	return math32.Sqrt(sum / float32(len(predictions)))
}

// Evaluate scores a model on a dataset with the given metrics. No gradients
// are computed and no regularization is applied.
func Evaluate(mf *MF, set *dataset.Dataset, metrics ...Metric) []float32 {
	ret := make([]float32, len(metrics))
	if set.Count() == 0 {
		return ret
	}
	predictions := make([]float32, set.Count())
	truths := make([]float32, set.Count())
	for i := 0; i < set.Count(); i++ {
		o := set.Get(i)
		predictions[i] = mf.internalPredict(o.Row, o.Col)
		truths[i] = o.Value
	}
	for i, metric := range metrics {
		ret[i] = metric(predictions, truths)
	}
	return ret
}
