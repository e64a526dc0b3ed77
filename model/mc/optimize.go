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
	"fmt"

	"github.com/c-bata/goptuna"
	"github.com/juju/errors"
	"github.com/lowrank-io/lowrank/base"
	"github.com/lowrank-io/lowrank/base/log"
	"github.com/lowrank-io/lowrank/base/progress"
	"github.com/lowrank-io/lowrank/dataset"
	"github.com/lowrank-io/lowrank/model"
	"go.uber.org/zap"
)

// ParamsSearchResult contains the return of hyper-parameter search. Scores
// are final-epoch evaluation losses, lower is better.
type ParamsSearchResult struct {
	BestModel  *MF
	BestScore  float32
	BestParams model.Params
	BestIndex  int
	Scores     []float32
	Params     []model.Params
}

func (r *ParamsSearchResult) addScore(m *MF, params model.Params, score float32) {
	r.Scores = append(r.Scores, score)
	r.Params = append(r.Params, params.Copy())
	if len(r.Scores) == 1 || score < r.BestScore {
		r.BestModel = m
		r.BestScore = score
		r.BestParams = params.Copy()
		r.BestIndex = len(r.Params) - 1
	}
}

// GridSearchCV finds the best parameters for a model.
func GridSearchCV(ctx context.Context, estimator *MF, trainSet, testSet *dataset.Dataset, paramGrid model.ParamsGrid,
	_ int64, fitConfig *FitConfig) (ParamsSearchResult, error) {
	// Retrieve parameter names and length
	paramNames := make([]model.ParamName, 0, len(paramGrid))
	total := 1
	for paramName, values := range paramGrid {
		paramNames = append(paramNames, paramName)
		total *= len(values)
	}
	// Construct DFS procedure
	results := ParamsSearchResult{
		Scores: make([]float32, 0, total),
		Params: make([]model.Params, 0, total),
	}
	var searchErr error
	var dfs func(deep int, params model.Params)
	newCtx, span := progress.Start(ctx, "GridSearchCV", total)
	dfs = func(deep int, params model.Params) {
		if searchErr != nil {
			return
		}
		if deep == len(paramNames) {
			log.Logger().Info(fmt.Sprintf("grid search (%v/%v)", span.Count(), total),
				zap.Any("params", params))
			m := NewMF(estimator.GetParams().Overwrite(params))
			scores, err := m.Fit(newCtx, trainSet, testSet, fitConfig)
			if err != nil {
				searchErr = errors.Trace(err)
				return
			}
			results.addScore(m, params, scores[len(scores)-1].EvalLoss)
			span.Add(1)
		} else {
			paramName := paramNames[deep]
			values := paramGrid[paramName]
			for _, val := range values {
				params[paramName] = val
				dfs(deep+1, params)
			}
		}
	}
	params := make(map[model.ParamName]interface{})
	dfs(0, params)
	span.End()
	return results, searchErr
}

// RandomSearchCV searches hyper-parameters by random.
func RandomSearchCV(ctx context.Context, estimator *MF, trainSet, testSet *dataset.Dataset, paramGrid model.ParamsGrid,
	numTrials int, seed int64, fitConfig *FitConfig) (ParamsSearchResult, error) {
	// if the number of combinations is less than number of trials, use grid search
	if paramGrid.NumCombinations() < numTrials {
		return GridSearchCV(ctx, estimator, trainSet, testSet, paramGrid, seed, fitConfig)
	}
	rng := base.NewRandomGenerator(seed)
	results := ParamsSearchResult{
		Scores: make([]float32, 0, numTrials),
		Params: make([]model.Params, 0, numTrials),
	}
	newCtx, span := progress.Start(ctx, "RandomSearchCV", numTrials)
	for i := 1; i <= numTrials; i++ {
		// Make parameters
		params := model.Params{}
		for paramName, values := range paramGrid {
			value := values[rng.Intn(len(values))]
			params[paramName] = value
		}
		// Cross validate
		log.Logger().Info(fmt.Sprintf("random search (%v/%v)", i, numTrials),
			zap.Any("params", params))
		m := NewMF(estimator.GetParams().Overwrite(params))
		scores, err := m.Fit(newCtx, trainSet, testSet, fitConfig)
		if err != nil {
			return results, errors.Trace(err)
		}
		results.addScore(m, params, scores[len(scores)-1].EvalLoss)
		span.Add(1)
	}
	span.End()
	return results, nil
}

// ModelSearch searches hyper-parameters with goptuna. The objective is the
// final-epoch evaluation loss, so studies must minimize.
type ModelSearch struct {
	estimator *MF
	trainSet  *dataset.Dataset
	testSet   *dataset.Dataset
	config    *FitConfig
	result    ParamsSearchResult
}

func NewModelSearch(estimator *MF, trainSet, testSet *dataset.Dataset, config *FitConfig) *ModelSearch {
	return &ModelSearch{
		estimator: estimator,
		trainSet:  trainSet,
		testSet:   testSet,
		config:    config,
	}
}

func (ms *ModelSearch) Objective(trial goptuna.Trial) (float64, error) {
	params := ms.estimator.SuggestParams(trial)
	m := NewMF(ms.estimator.GetParams().Overwrite(params))
	scores, err := m.Fit(context.Background(), ms.trainSet, ms.testSet, ms.config)
	if err != nil {
		return 0, errors.Trace(err)
	}
	evalLoss := scores[len(scores)-1].EvalLoss
	ms.result.addScore(m, params, evalLoss)
	return float64(evalLoss), nil
}

func (ms *ModelSearch) Result() ParamsSearchResult {
	return ms.result
}
