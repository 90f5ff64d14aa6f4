/*
Copyright 2025 Zipsea Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package zipsea

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id       int
	probeErr error
	files    map[string][]byte
	dlErr    error
	calls    atomic.Int32
	closed   atomic.Bool
}

func (f *fakeConn) Probe() error { return f.probeErr }

func (f *fakeConn) Download(_ context.Context, path string) ([]byte, error) {
	f.calls.Add(1)
	if f.dlErr != nil {
		return nil, f.dlErr
	}
	data, ok := f.files[path]
	if !ok {
		return nil, fmt.Errorf("550 %s: no such file or directory", path)
	}
	return data, nil
}

func (f *fakeConn) Close() error {
	f.closed.Store(true)
	return nil
}

func countingDialer(dials *atomic.Int32) FTPDialer {
	return func(context.Context) (FTPConnection, error) {
		n := dials.Add(1)
		return &fakeConn{id: int(n)}, nil
	}
}

func TestFTPPoolReusesReleasedConnection(t *testing.T) {
	var dials atomic.Int32
	pool := NewFTPPool(countingDialer(&dials), 2, time.Second)

	ctx := context.Background()
	conn, err := pool.Acquire(ctx)
	require.NoError(t, err)
	pool.Release(conn)

	again, err := pool.Acquire(ctx)
	require.NoError(t, err)
	assert.Same(t, conn, again)
	assert.Equal(t, int32(1), dials.Load())
	pool.Release(again)
}

func TestFTPPoolRedialsAfterFailedProbe(t *testing.T) {
	var dials atomic.Int32
	pool := NewFTPPool(countingDialer(&dials), 1, time.Second)

	ctx := context.Background()
	conn, err := pool.Acquire(ctx)
	require.NoError(t, err)
	conn.(*fakeConn).probeErr = fmt.Errorf("421 service not available")
	pool.Release(conn)

	replacement, err := pool.Acquire(ctx)
	require.NoError(t, err)
	assert.NotSame(t, conn, replacement)
	assert.True(t, conn.(*fakeConn).closed.Load())
	assert.Equal(t, int32(2), dials.Load())
	pool.Release(replacement)
}

func TestFTPPoolAcquireTimesOutWhenExhausted(t *testing.T) {
	var dials atomic.Int32
	pool := NewFTPPool(countingDialer(&dials), 1, 50*time.Millisecond)

	ctx := context.Background()
	conn, err := pool.Acquire(ctx)
	require.NoError(t, err)

	_, err = pool.Acquire(ctx)
	assert.ErrorIs(t, err, ErrAcquireTimeout)

	pool.Release(conn)
}

func TestFTPPoolDiscardFreesSlot(t *testing.T) {
	var dials atomic.Int32
	pool := NewFTPPool(countingDialer(&dials), 1, 200*time.Millisecond)

	ctx := context.Background()
	conn, err := pool.Acquire(ctx)
	require.NoError(t, err)
	pool.Discard(conn)
	assert.True(t, conn.(*fakeConn).closed.Load())

	replacement, err := pool.Acquire(ctx)
	require.NoError(t, err)
	assert.NotSame(t, conn, replacement)
	pool.Release(replacement)
}

func TestFTPPoolDialErrorFreesSlot(t *testing.T) {
	var attempts atomic.Int32
	dial := func(context.Context) (FTPConnection, error) {
		if attempts.Add(1) == 1 {
			return nil, fmt.Errorf("connection refused")
		}
		return &fakeConn{}, nil
	}
	pool := NewFTPPool(dial, 1, 200*time.Millisecond)

	ctx := context.Background()
	_, err := pool.Acquire(ctx)
	require.Error(t, err)

	conn, err := pool.Acquire(ctx)
	require.NoError(t, err)
	pool.Release(conn)
}

func TestFTPPoolCloseAll(t *testing.T) {
	var dials atomic.Int32
	pool := NewFTPPool(countingDialer(&dials), 2, time.Second)

	ctx := context.Background()
	conn, err := pool.Acquire(ctx)
	require.NoError(t, err)
	pool.Release(conn)

	pool.CloseAll()
	assert.True(t, conn.(*fakeConn).closed.Load())

	_, err = pool.Acquire(ctx)
	assert.ErrorIs(t, err, ErrPoolClosed)
}
