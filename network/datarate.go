package network

import (
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"

	"github.com/sarchlab/netsim/sim"
)

// DataRate defines the bandwidth of a channel in bits per second.
type DataRate float64

// Defines the unit of data rates
const (
	Bps  DataRate = 1
	Kbps DataRate = 1e3
	Mbps DataRate = 1e6
	Gbps DataRate = 1e9
)

// TransmissionTime returns the time needed to push the given number of bytes
// onto the medium.
func (r DataRate) TransmissionTime(bytes int) sim.VTimeInSec {
	if !r.valid() {
		log.Panic("data rate must be positive and finite")
	}

	return sim.VTimeInSec(float64(bytes) * 8 / float64(r))
}

func (r DataRate) valid() bool {
	return r > 0 && !math.IsInf(float64(r), 1)
}

func (r DataRate) String() string {
	switch {
	case r >= Gbps:
		return strconv.FormatFloat(float64(r/Gbps), 'f', -1, 64) + "Gbps"
	case r >= Mbps:
		return strconv.FormatFloat(float64(r/Mbps), 'f', -1, 64) + "Mbps"
	case r >= Kbps:
		return strconv.FormatFloat(float64(r/Kbps), 'f', -1, 64) + "Kbps"
	default:
		return strconv.FormatFloat(float64(r), 'f', -1, 64) + "bps"
	}
}

var dataRateUnits = []struct {
	suffix string
	unit   DataRate
}{
	{"gbps", Gbps},
	{"mbps", Mbps},
	{"kbps", Kbps},
	{"bps", Bps},
}

// ParseDataRate parses strings like "5Mbps", "10 Gbps", or "1500bps".
func ParseDataRate(s string) (DataRate, error) {
	lower := strings.ToLower(strings.TrimSpace(s))

	for _, u := range dataRateUnits {
		if !strings.HasSuffix(lower, u.suffix) {
			continue
		}

		number := strings.TrimSpace(strings.TrimSuffix(lower, u.suffix))
		value, err := strconv.ParseFloat(number, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid data rate %q: %w", s, err)
		}

		rate := DataRate(value) * u.unit
		if !rate.valid() {
			return 0, fmt.Errorf("invalid data rate %q: must be positive and finite", s)
		}

		return rate, nil
	}

	return 0, fmt.Errorf("invalid data rate %q: unknown unit", s)
}
