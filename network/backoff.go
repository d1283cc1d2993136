package network

import (
	"errors"
	"hash/fnv"
	"math"

	"github.com/iti/rngstream"
	"github.com/sarchlab/netsim/sim"
)

// DefaultSeed is the random seed of a node that is not given one.
const DefaultSeed uint64 = 12345

// The moduli of the two components of the combined generator. Stream seeds
// must be below them and not all zero.
const (
	streamModulus1 = 4294967087
	streamModulus2 = 4294944443
)

// newBackoffStream returns the random stream of a device. The stream only
// depends on the seed and the device name.
func newBackoffStream(seed uint64, name string) *rngstream.RngStream {
	h := fnv.New64a()
	h.Write([]byte(name))
	state := seed ^ h.Sum64()

	values := make([]uint64, 6)
	for i := range values {
		state = splitMix64(state)

		modulus := uint64(streamModulus1)
		if i >= 3 {
			modulus = streamModulus2
		}

		values[i] = 1 + state%(modulus-1)
	}

	rng := new(rngstream.RngStream)
	if !rng.SetSeed(values) {
		panic("invalid backoff stream seed")
	}

	return rng
}

func splitMix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb

	return x ^ (x >> 31)
}

// BackoffPolicy decides how long a device waits before retrying a
// transmission that failed on a shared channel.
//
// After the n-th consecutive failure, the device waits a random number of
// slots drawn uniformly from [MinSlots, min(2^min(n, CeilingExponent) - 1,
// MaxSlots)]. A packet that fails more than MaxRetries times is dropped.
type BackoffPolicy struct {
	SlotTime        sim.VTimeInSec
	MinSlots        int
	MaxSlots        int
	CeilingExponent int
	MaxRetries      int
}

// DefaultBackoffPolicy returns the truncated binary exponential backoff used
// by 10 Mbps Ethernet.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		SlotTime:        51.2e-6,
		MinSlots:        0,
		MaxSlots:        1023,
		CeilingExponent: 10,
		MaxRetries:      16,
	}
}

// Validate checks that every parameter of the policy is in range.
func (p BackoffPolicy) Validate() error {
	slot := float64(p.SlotTime)
	if math.IsNaN(slot) || math.IsInf(slot, 0) || slot < 0 {
		return errors.New("slot time must be finite and not negative")
	}

	if p.MinSlots < 0 || p.MaxSlots < 0 || p.CeilingExponent < 0 {
		return errors.New("slot counts and ceiling exponent must not be negative")
	}

	if p.MaxSlots > 0 && p.MinSlots > p.MaxSlots {
		return errors.New("min slots must not exceed max slots")
	}

	if p.MaxRetries < 0 {
		return errors.New("max retries must not be negative")
	}

	return nil
}

// Exhausted tells if a packet that has failed the given number of times
// should be dropped.
func (p BackoffPolicy) Exhausted(failures int) bool {
	return failures > p.MaxRetries
}

// Delay returns the waiting time after the given number of consecutive
// failures.
func (p BackoffPolicy) Delay(failures int, rng *rngstream.RngStream) sim.VTimeInSec {
	slots := p.MinSlots
	ceiling := p.ceiling(failures)

	if ceiling > p.MinSlots {
		span := ceiling - p.MinSlots + 1
		slots += int(rng.RandU01() * float64(span))
		if slots > ceiling {
			slots = ceiling
		}
	}

	return sim.VTimeInSec(slots) * p.SlotTime
}

func (p BackoffPolicy) ceiling(failures int) int {
	exp := failures
	if exp > p.CeilingExponent {
		exp = p.CeilingExponent
	}

	if exp > 30 {
		exp = 30
	}

	c := (1 << exp) - 1
	if p.MaxSlots > 0 && c > p.MaxSlots {
		c = p.MaxSlots
	}

	return c
}
