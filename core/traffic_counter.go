package core

import (
	"go.uber.org/atomic"
)

// TrafficCounter counts bytes and frames crossing a socket.
type TrafficCounter struct {
	r, w         *atomic.Uint64
	rMsgs, wMsgs *atomic.Uint64
}

// ReadBytes returns the number of bytes that have been read.
func (p TrafficCounter) ReadBytes() uint64 {
	return p.r.Load()
}

// WriteBytes returns the number of bytes that have been written.
func (p TrafficCounter) WriteBytes() uint64 {
	return p.w.Load()
}

// ReadFrames returns the number of frames that have been read.
func (p TrafficCounter) ReadFrames() uint64 {
	return p.rMsgs.Load()
}

// WriteFrames returns the number of frames that have been written.
func (p TrafficCounter) WriteFrames() uint64 {
	return p.wMsgs.Load()
}

// IncWriteBytes records one written frame of n bytes.
func (p TrafficCounter) IncWriteBytes(n int) {
	p.w.Add(uint64(n))
	p.wMsgs.Inc()
}

// IncReadBytes records one read frame of n bytes.
func (p TrafficCounter) IncReadBytes(n int) {
	p.r.Add(uint64(n))
	p.rMsgs.Inc()
}

// NewTrafficCounter returns a new counter.
func NewTrafficCounter() *TrafficCounter {
	return &TrafficCounter{
		r:     atomic.NewUint64(0),
		w:     atomic.NewUint64(0),
		rMsgs: atomic.NewUint64(0),
		wMsgs: atomic.NewUint64(0),
	}
}
