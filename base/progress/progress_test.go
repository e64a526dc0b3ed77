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

package progress

import (
	"context"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
)

func TestSpan(t *testing.T) {
	ctx, span := Start(context.Background(), "fit", 10)
	assert.NotNil(t, ctx)
	span.Add(3)
	span.Add(2)
	assert.Equal(t, 5, span.Count())
	progress := span.Describe()
	assert.Equal(t, "fit", progress.Name)
	assert.Equal(t, StatusRunning, progress.Status)
	assert.Equal(t, 5, progress.Count)
	assert.Equal(t, 10, progress.Total)
	span.End()
	progress = span.Describe()
	assert.Equal(t, StatusComplete, progress.Status)
	assert.Equal(t, 10, progress.Count)
}

func TestSpan_Error(t *testing.T) {
	_, span := Start(context.Background(), "fit", 10)
	span.Error(errors.New("boom"))
	progress := span.Describe()
	assert.Equal(t, StatusFailed, progress.Status)
	assert.Equal(t, "boom", progress.Error)
}

func TestSpan_Nested(t *testing.T) {
	ctx, parent := Start(context.Background(), "outer", 2)
	_, child := Start(ctx, "inner", 5)
	child.Add(5)
	child.End()
	v, ok := parent.children.Load("inner")
	assert.True(t, ok)
	assert.Equal(t, child, v)
}

func TestSpan_NilContext(t *testing.T) {
	//nolint:staticcheck
	ctx, span := Start(nil, "fit", 1)
	assert.Nil(t, ctx)
	assert.NotNil(t, span)
}
