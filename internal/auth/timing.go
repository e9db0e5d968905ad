package auth

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// TimingConfig controls the uniform delay applied to authentication
// failures so "unknown username" and "wrong password" take similar time.
type TimingConfig struct {
	BaseDelayMs    int
	RandomDelayMs  int
	DelayOnSuccess bool
}

// DefaultTimingConfig pads failed attempts to roughly the cost of a bcrypt
// comparison.
func DefaultTimingConfig() TimingConfig {
	return TimingConfig{
		BaseDelayMs:   100,
		RandomDelayMs: 50,
	}
}

type TimingDelay struct {
	config TimingConfig
}

func NewTimingDelay(config TimingConfig) *TimingDelay {
	return &TimingDelay{config: config}
}

// cryptoRandIntn returns a secure random number in [0, max).
func cryptoRandIntn(max int) int {
	if max <= 0 {
		return 0
	}
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0
	}
	return int(binary.BigEndian.Uint64(buf[:]) % uint64(max))
}

func (td *TimingDelay) target() time.Duration {
	base := time.Duration(td.config.BaseDelayMs) * time.Millisecond
	random := time.Duration(cryptoRandIntn(td.config.RandomDelayMs)) * time.Millisecond
	return base + random
}

// Wait sleeps for the configured delay. Success paths skip the delay unless
// DelayOnSuccess is set.
func (td *TimingDelay) Wait(success bool) {
	if success && !td.config.DelayOnSuccess {
		return
	}
	time.Sleep(td.target())
}

// WaitFrom sleeps only for the remainder of the target delay, measured from
// startTime, for paths that already spent time on hashing or I/O.
func (td *TimingDelay) WaitFrom(startTime time.Time, success bool) {
	if success && !td.config.DelayOnSuccess {
		return
	}
	target := td.target()
	if elapsed := time.Since(startTime); elapsed < target {
		time.Sleep(target - elapsed)
	}
}
