package logger

import (
	"strconv"
	"strings"
	"sync/atomic"
)

// ratioSampler lets numerator out of every denominator events through.
// A zero ratio disables sampling.
type ratioSampler struct {
	ratio   atomic.Uint64 // numerator<<32 | denominator
	counter atomic.Uint64
}

func newRatioSampler(numerator, denominator int) *ratioSampler {
	s := &ratioSampler{}
	s.Set(numerator, denominator)
	return s
}

// Set replaces the ratio and restarts the cycle.
func (s *ratioSampler) Set(numerator, denominator int) {
	if numerator <= 0 || denominator <= 0 {
		numerator, denominator = 0, 0
	}
	if numerator > denominator {
		numerator = denominator
	}
	s.ratio.Store(uint64(uint32(numerator))<<32 | uint64(uint32(denominator)))
	s.counter.Store(0)
}

// Allow reports whether the next event passes.
func (s *ratioSampler) Allow() bool {
	r := s.ratio.Load()
	num, den := r>>32, r&0xffffffff
	if num == 0 || den == 0 {
		return true
	}
	n := s.counter.Add(1) - 1
	return n%den < num
}

// parseRatioSpec reads "2/10", "20" (one in twenty) or "5%". Anything else,
// including "off", disables sampling.
func parseRatioSpec(spec string) (int, int) {
	spec = strings.ToLower(strings.TrimSpace(spec))
	switch spec {
	case "", "off", "none":
		return 0, 0
	case "all":
		return 1, 1
	}
	if pct, ok := strings.CutSuffix(spec, "%"); ok {
		v, err := strconv.Atoi(strings.TrimSpace(pct))
		if err != nil || v <= 0 {
			return 0, 0
		}
		return min(v, 100), 100
	}
	if num, den, ok := strings.Cut(spec, "/"); ok {
		n, err1 := strconv.Atoi(strings.TrimSpace(num))
		d, err2 := strconv.Atoi(strings.TrimSpace(den))
		if err1 != nil || err2 != nil {
			return 0, 0
		}
		return n, d
	}
	if v, err := strconv.Atoi(spec); err == nil && v > 0 {
		return 1, v
	}
	return 0, 0
}
