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
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

var ErrLimitExceeded = errors.New("limit exceeded")

type (
	// Limiter bounds the requests served at once and the rate objects are
	// written at.
	Limiter interface {
		AcquireRead() error
		ReleaseRead()
		AcquireWrite() error
		ReleaseWrite()
		// WaitWrite blocks until n more objects may be written.
		WaitWrite(ctx context.Context, n int) error
		SetReadConcurrency(value uint32)
		SetWriteConcurrency(value uint32)
		SetWriteRate(objectsPerSecond int)
		GetConfig() LimitConfig
		Status() Status
	}
	CountLimit interface {
		Running() int
		Acquire() error
		Release()
		SetLimit(limit uint32)
	}
	LimitConfig struct {
		ReadConcurrency  int `json:"read_concurrency"`
		WriteConcurrency int `json:"write_concurrency"`
		// WriteObjectsPerSecond of 0 writes without rate limit.
		WriteObjectsPerSecond int `json:"write_objects_per_second"`
	}
	Status struct {
		Config       LimitConfig `json:"config"`
		ReadRunning  int         `json:"read_running"`
		WriteRunning int         `json:"write_running"`
		WriteWaitMS  int         `json:"write_wait_ms"`
	}
	limiter struct {
		config          LimitConfig
		readCountLimit  CountLimit
		writeCountLimit CountLimit
		rateWriter      *rate.Limiter

		lock sync.RWMutex
	}
)

func NewLimiter(cfg LimitConfig) Limiter {
	limiter := &limiter{config: cfg}
	if cfg.ReadConcurrency > 0 {
		limiter.readCountLimit = NewCountLimit(cfg.ReadConcurrency)
	}
	if cfg.WriteConcurrency > 0 {
		limiter.writeCountLimit = NewCountLimit(cfg.WriteConcurrency)
	}
	if cfg.WriteObjectsPerSecond > 0 {
		limiter.rateWriter = rate.NewLimiter(rate.Limit(cfg.WriteObjectsPerSecond), cfg.WriteObjectsPerSecond)
	}
	return limiter
}

func (lim *limiter) AcquireRead() error {
	if l := lim.readLimit(); l != nil {
		return l.Acquire()
	}
	return nil
}

func (lim *limiter) ReleaseRead() {
	if l := lim.readLimit(); l != nil {
		l.Release()
	}
}

func (lim *limiter) AcquireWrite() error {
	if l := lim.writeLimit(); l != nil {
		return l.Acquire()
	}
	return nil
}

func (lim *limiter) ReleaseWrite() {
	if l := lim.writeLimit(); l != nil {
		l.Release()
	}
}

// WaitWrite takes n tokens in chunks no larger than the burst, since a
// single reservation above the burst always fails.
func (lim *limiter) WaitWrite(ctx context.Context, n int) error {
	lim.lock.RLock()
	r := lim.rateWriter
	lim.lock.RUnlock()
	if r == nil {
		return nil
	}
	for n > 0 {
		chunk := n
		if burst := r.Burst(); chunk > burst {
			chunk = burst
		}
		if err := r.WaitN(ctx, chunk); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}

func (lim *limiter) SetReadConcurrency(value uint32) {
	lim.lock.Lock()
	defer lim.lock.Unlock()
	if lim.readCountLimit == nil {
		lim.readCountLimit = NewCountLimit(int(value))
	} else {
		lim.readCountLimit.SetLimit(value)
	}
	lim.config.ReadConcurrency = int(value)
}

func (lim *limiter) SetWriteConcurrency(value uint32) {
	lim.lock.Lock()
	defer lim.lock.Unlock()
	if lim.writeCountLimit == nil {
		lim.writeCountLimit = NewCountLimit(int(value))
	} else {
		lim.writeCountLimit.SetLimit(value)
	}
	lim.config.WriteConcurrency = int(value)
}

func (lim *limiter) SetWriteRate(objectsPerSecond int) {
	lim.lock.Lock()
	defer lim.lock.Unlock()
	switch {
	case objectsPerSecond <= 0:
		lim.rateWriter = nil
	case lim.rateWriter == nil:
		lim.rateWriter = rate.NewLimiter(rate.Limit(objectsPerSecond), objectsPerSecond)
	default:
		lim.rateWriter.SetLimit(rate.Limit(objectsPerSecond))
		lim.rateWriter.SetBurst(objectsPerSecond)
	}
	lim.config.WriteObjectsPerSecond = objectsPerSecond
}

func (lim *limiter) GetConfig() LimitConfig {
	lim.lock.RLock()
	defer lim.lock.RUnlock()
	return lim.config
}

func (lim *limiter) Status() Status {
	lim.lock.RLock()
	defer lim.lock.RUnlock()
	st := Status{Config: lim.config}
	if lim.readCountLimit != nil {
		st.ReadRunning = lim.readCountLimit.Running()
	}
	if lim.writeCountLimit != nil {
		st.WriteRunning = lim.writeCountLimit.Running()
	}
	st.WriteWaitMS = rateWait(lim.rateWriter)
	return st
}

func (lim *limiter) readLimit() CountLimit {
	lim.lock.RLock()
	defer lim.lock.RUnlock()
	return lim.readCountLimit
}

func (lim *limiter) writeLimit() CountLimit {
	lim.lock.RLock()
	defer lim.lock.RUnlock()
	return lim.writeCountLimit
}

func rateWait(r *rate.Limiter) int {
	if r == nil {
		return 0
	}
	now := time.Now()
	reserve := r.ReserveN(now, r.Burst()/2)
	duration := reserve.DelayFrom(now)
	reserve.Cancel()
	return int(duration.Milliseconds())
}

const minusOne = ^uint32(0)

type countLimit struct {
	limit   uint32
	current uint32
}

// NewCountLimit returns limiter with concurrent n
func NewCountLimit(n int) CountLimit {
	return &countLimit{limit: uint32(n)}
}

func (l *countLimit) Running() int {
	return int(atomic.LoadUint32(&l.current))
}

func (l *countLimit) Acquire() error {
	if atomic.AddUint32(&l.current, 1) > atomic.LoadUint32(&l.limit) {
		atomic.AddUint32(&l.current, minusOne)
		return ErrLimitExceeded
	}
	return nil
}

func (l *countLimit) Release() {
	atomic.AddUint32(&l.current, minusOne)
}

func (l *countLimit) SetLimit(limit uint32) {
	atomic.StoreUint32(&l.limit, limit)
}
