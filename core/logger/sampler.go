package logger

import (
	"strconv"
	"strings"
	"sync/atomic"
)

// sampler lets through the first num of every den calls. A zero ratio passes everything.
type sampler struct {
	ratio atomic.Uint64 // num<<32 | den
	calls atomic.Uint64
}

func newSampler(num, den int) *sampler {
	s := &sampler{}
	s.set(num, den)
	return s
}

func (s *sampler) set(num, den int) {
	if num <= 0 || den <= 0 {
		s.ratio.Store(0)
	} else {
		s.ratio.Store(uint64(min(num, den))<<32 | uint64(den))
	}
	s.calls.Store(0)
}

func (s *sampler) allow() bool {
	r := s.ratio.Load()
	if r == 0 {
		return true
	}
	num, den := r>>32, r&0xffffffff
	return (s.calls.Add(1)-1)%den < num
}

// parseRatio reads "n/d" or "d" (meaning 1/d). Unparsable or non-positive input yields 0, 0.
func parseRatio(raw string) (int, int) {
	raw = strings.TrimSpace(raw)
	if n, d, ok := strings.Cut(raw, "/"); ok {
		num, err1 := strconv.Atoi(strings.TrimSpace(n))
		den, err2 := strconv.Atoi(strings.TrimSpace(d))
		if err1 != nil || err2 != nil {
			return 0, 0
		}
		return num, den
	}
	d, err := strconv.Atoi(raw)
	if err != nil || d <= 0 {
		return 0, 0
	}
	return 1, d
}
