// Copyright 2023 The Cuber Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiter_Concurrency(t *testing.T) {
	l := NewLimiter(LimitConfig{ReadConcurrency: 1, WriteConcurrency: 1})

	require.NoError(t, l.AcquireRead())
	require.Equal(t, ErrLimitExceeded, l.AcquireRead())
	l.SetReadConcurrency(2)
	require.NoError(t, l.AcquireRead())
	require.Equal(t, 2, l.Status().ReadRunning)
	l.ReleaseRead()
	l.ReleaseRead()
	require.Equal(t, 0, l.Status().ReadRunning)

	require.NoError(t, l.AcquireWrite())
	require.Equal(t, ErrLimitExceeded, l.AcquireWrite())
	l.ReleaseWrite()
	require.NoError(t, l.AcquireWrite())
	l.ReleaseWrite()
	require.Equal(t, 2, l.GetConfig().ReadConcurrency)
}

func TestLimiter_Unlimited(t *testing.T) {
	l := NewLimiter(LimitConfig{})
	for i := 0; i < 100; i++ {
		require.NoError(t, l.AcquireRead())
		require.NoError(t, l.AcquireWrite())
	}
	require.NoError(t, l.WaitWrite(context.TODO(), 1<<20))
	require.Equal(t, 0, l.Status().WriteWaitMS)
}

func TestLimiter_WriteRate(t *testing.T) {
	l := NewLimiter(LimitConfig{WriteObjectsPerSecond: 10})

	// the burst is served at once
	start := time.Now()
	require.NoError(t, l.WaitWrite(context.TODO(), 10))
	require.Less(t, time.Since(start), 500*time.Millisecond)

	// more than the burst takes chunks
	require.NoError(t, l.WaitWrite(context.TODO(), 15))
	require.GreaterOrEqual(t, time.Since(start), time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, l.WaitWrite(ctx, 5))

	l.SetWriteRate(0)
	require.NoError(t, l.WaitWrite(context.TODO(), 1000))
	require.Equal(t, 0, l.GetConfig().WriteObjectsPerSecond)
}
