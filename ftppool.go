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
	"io"
	"sync"
	"time"

	"github.com/heyitswin/zipsea-sub001/config"
	"github.com/jlaffaye/ftp"
	"github.com/sirupsen/logrus"
)

var (
	// ErrPoolClosed is returned by Acquire after CloseAll.
	ErrPoolClosed = fmt.Errorf("ftp pool is closed")
	// ErrAcquireTimeout is returned when no connection frees up within
	// the configured acquire window.
	ErrAcquireTimeout = fmt.Errorf("timed out waiting for an ftp connection")
)

// FTPConnection is a single logged-in session against the pricing FTP
// server. Implementations are not safe for concurrent use; the pool
// hands each one to exactly one holder at a time.
type FTPConnection interface {
	// Probe checks that the session is still alive.
	Probe() error
	// Download retrieves the file at path in full.
	Download(ctx context.Context, path string) ([]byte, error)
	Close() error
}

// FTPDialer opens a fresh authenticated connection.
type FTPDialer func(ctx context.Context) (FTPConnection, error)

type serverConn struct {
	conn            *ftp.ServerConn
	downloadTimeout time.Duration
}

func (s *serverConn) Probe() error {
	return s.conn.NoOp()
}

func (s *serverConn) Download(ctx context.Context, path string) ([]byte, error) {
	deadline := s.downloadTimeout
	if d, ok := ctx.Deadline(); ok {
		if remaining := time.Until(d); remaining < deadline {
			deadline = remaining
		}
	}
	if deadline <= 0 {
		return nil, context.DeadlineExceeded
	}

	type retrResult struct {
		data []byte
		err  error
	}
	done := make(chan retrResult, 1)
	go func() {
		resp, err := s.conn.Retr(path)
		if err != nil {
			done <- retrResult{err: err}
			return
		}
		defer resp.Close()
		data, err := io.ReadAll(resp)
		done <- retrResult{data: data, err: err}
	}()

	select {
	case res := <-done:
		return res.data, res.err
	case <-time.After(deadline):
		// The session is wedged mid-transfer; the holder must discard it.
		return nil, fmt.Errorf("download of %s timed out after %s", path, s.downloadTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *serverConn) Close() error {
	return s.conn.Quit()
}

// TraveltekDialer dials and logs in using the configured credentials.
func TraveltekDialer(cnf config.TraveltekConfig) FTPDialer {
	return func(ctx context.Context) (FTPConnection, error) {
		conn, err := ftp.Dial(
			fmt.Sprintf("%s:21", cnf.FTPHost),
			ftp.DialWithContext(ctx),
			ftp.DialWithTimeout(15*time.Second),
		)
		if err != nil {
			return nil, fmt.Errorf("dialing %s: %w", cnf.FTPHost, err)
		}
		if err := conn.Login(cnf.FTPUser, cnf.FTPPassword); err != nil {
			_ = conn.Quit()
			return nil, fmt.Errorf("ftp login failed: %w", err)
		}
		return &serverConn{
			conn:            conn,
			downloadTimeout: time.Duration(cnf.DownloadTimeoutSec) * time.Second,
		}, nil
	}
}

// FTPPool hands out at most maxSize concurrent connections, reusing idle
// ones after a liveness probe and dialing replacements on demand.
type FTPPool struct {
	dial           FTPDialer
	maxSize        int
	acquireTimeout time.Duration

	mu     sync.Mutex
	idle   []FTPConnection
	closed bool

	// slots bounds total outstanding connections, held or idle.
	slots chan struct{}
}

// NewFTPPool builds a pool over the given dialer. No connections are
// opened until the first Acquire.
func NewFTPPool(dial FTPDialer, maxSize int, acquireTimeout time.Duration) *FTPPool {
	if maxSize < 1 {
		maxSize = 1
	}
	return &FTPPool{
		dial:           dial,
		maxSize:        maxSize,
		acquireTimeout: acquireTimeout,
		slots:          make(chan struct{}, maxSize),
	}
}

// NewFTPPoolFromConfig wires the pool from the loaded configuration.
func NewFTPPoolFromConfig(cnf config.TraveltekConfig) *FTPPool {
	return NewFTPPool(
		TraveltekDialer(cnf),
		cnf.PoolSize,
		time.Duration(cnf.AcquireTimeoutSec)*time.Second,
	)
}

// Acquire returns a live connection, waiting up to the acquire timeout
// for a slot. A reused idle connection is probed first; a dead one is
// dropped and a fresh dial takes its place within the same slot.
func (p *FTPPool) Acquire(ctx context.Context) (FTPConnection, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	p.mu.Unlock()

	timer := time.NewTimer(p.acquireTimeout)
	defer timer.Stop()

	select {
	case p.slots <- struct{}{}:
	case <-timer.C:
		return nil, ErrAcquireTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.slots
		return nil, ErrPoolClosed
	}
	var conn FTPConnection
	if n := len(p.idle); n > 0 {
		conn = p.idle[n-1]
		p.idle = p.idle[:n-1]
	}
	p.mu.Unlock()

	if conn != nil {
		if err := conn.Probe(); err == nil {
			return conn, nil
		}
		logrus.Debug("idle ftp connection failed probe, redialing")
		_ = conn.Close()
	}

	fresh, err := p.dial(ctx)
	if err != nil {
		<-p.slots
		return nil, err
	}
	return fresh, nil
}

// Release returns a healthy connection for reuse.
func (p *FTPPool) Release(conn FTPConnection) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		_ = conn.Close()
		<-p.slots
		return
	}
	p.idle = append(p.idle, conn)
	p.mu.Unlock()
	<-p.slots
}

// Discard drops a connection the holder believes is broken, freeing its
// slot without returning it to the idle set.
func (p *FTPPool) Discard(conn FTPConnection) {
	if conn != nil {
		_ = conn.Close()
	}
	<-p.slots
}

// CloseAll shuts the pool down. Held connections are closed by their
// holders via Release or Discard.
func (p *FTPPool) CloseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for _, conn := range p.idle {
		_ = conn.Close()
	}
	p.idle = nil
}
