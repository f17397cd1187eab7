/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package transaction

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromContextWithoutScope(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, FromContext(ctx))
	assert.Nil(t, Current(ctx))
	assert.False(t, IsSuppressed(ctx))
}

func TestGoFlowsAmbientScope(t *testing.T) {
	ctx, scope, err := Begin(context.Background(), DefaultOptions())
	require.NoError(t, err)
	defer scope.Close()

	var seen *Info
	require.NoError(t, <-Go(ctx, func(ctx context.Context) error {
		seen = Current(ctx)
		return nil
	}))
	require.NotNil(t, seen)
	assert.Equal(t, scope.ID(), seen.ID)
}

func TestGoSuppressedFlowDetachesScope(t *testing.T) {
	ctx, scope, err := Begin(context.Background(), Options{AsyncFlow: AsyncFlowSuppressed})
	require.NoError(t, err)
	defer scope.Close()

	assert.NotNil(t, Current(ctx))
	require.NoError(t, <-Go(ctx, func(ctx context.Context) error {
		assert.Nil(t, Current(ctx))
		assert.Nil(t, FromContext(ctx))
		return nil
	}))

	g, gctx := NewGroup(ctx)
	g.Go(func() error {
		assert.Nil(t, Current(gctx))
		return nil
	})
	require.NoError(t, g.Wait())
}

func TestFlowFollowsInnermostScope(t *testing.T) {
	ctx, root, err := Begin(context.Background(), DefaultOptions())
	require.NoError(t, err)
	defer root.Close()

	inner, joined, err := Begin(ctx, Options{AsyncFlow: AsyncFlowSuppressed})
	require.NoError(t, err)
	defer joined.Close()

	assert.Nil(t, Current(Flow(inner)))
	assert.NotNil(t, Current(Flow(ctx)))
}

func TestDetach(t *testing.T) {
	ctx, scope, err := Begin(context.Background(), DefaultOptions())
	require.NoError(t, err)
	defer scope.Close()

	assert.Nil(t, FromContext(Detach(ctx)))
	plain := context.Background()
	assert.Equal(t, plain, Detach(plain))
}
