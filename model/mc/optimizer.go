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
	"github.com/lowrank-io/lowrank/base"
)

// Optimizer applies accumulated gradients to embedding tables. Only rows in
// the touched set of each table are updated.
type Optimizer interface {
	SetWeightDecay(rate float32)
	ZeroGrad()
	Step()
}

type baseOptimizer struct {
	tables []*Table
	wd     float32
}

func (o *baseOptimizer) ZeroGrad() {
	for _, t := range o.tables {
		t.ZeroGrad()
	}
}

func (o *baseOptimizer) SetWeightDecay(wd float32) {
	o.wd = wd
}

type SGD struct {
	baseOptimizer
	lr float32
}

func NewSGD(tables []*Table, lr float32) Optimizer {
	return &SGD{
		baseOptimizer: baseOptimizer{tables: tables},
		lr:            lr,
	}
}

func (s *SGD) Step() {
	for _, t := range s.tables {
		for i, ok := t.touched.NextSet(0); ok; i, ok = t.touched.NextSet(i + 1) {
			values, grads := t.values[i], t.grads[i]
			for k := range values {
				values[k] -= s.lr * (grads[k] + s.wd*values[k])
			}
		}
	}
}

// Adam maintains per-row moment estimates so that rows absent from a
// minibatch keep their moments frozen between updates.
type Adam struct {
	baseOptimizer
	alpha float32
	beta1 float32
	beta2 float32
	eps   float32
	ms    map[*Table][][]float32
	vs    map[*Table][][]float32
	t     float32
}

func NewAdam(tables []*Table, alpha, beta1, beta2, eps float32) Optimizer {
	return &Adam{
		baseOptimizer: baseOptimizer{tables: tables},
		alpha:         alpha,
		beta1:         beta1,
		beta2:         beta2,
		eps:           eps,
		ms:            make(map[*Table][][]float32),
		vs:            make(map[*Table][][]float32),
	}
}

func (a *Adam) Step() {
	a.t++

	fix1 := 1 - math32.Pow(a.beta1, a.t)
	fix2 := 1 - math32.Pow(a.beta2, a.t)

	for _, p := range a.tables {
		if _, ok := a.ms[p]; !ok {
			a.ms[p] = base.NewMatrix32(p.Len(), p.Rank())
			a.vs[p] = base.NewMatrix32(p.Len(), p.Rank())
		}
		m, v := a.ms[p], a.vs[p]
		for i, ok := p.touched.NextSet(0); ok; i, ok = p.touched.NextSet(i + 1) {
			values, grads := p.values[i], p.grads[i]
			for k := range values {
				g := grads[k] + a.wd*values[k]
				// m += (1 - beta1) * (grad - m)
				m[i][k] += (1 - a.beta1) * (g - m[i][k])
				// v += (1 - beta2) * (grad * grad - v)
				v[i][k] += (1 - a.beta2) * (g*g - v[i][k])
				mHat := m[i][k] / fix1
				vHat := v[i][k] / fix2
				values[k] -= a.alpha * mHat / (math32.Sqrt(vHat) + a.eps)
			}
		}
	}
}
