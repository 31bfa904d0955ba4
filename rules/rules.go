// Package rules describes where injected items belong in a content stream and
// parses the server positioning payload into that description.
package rules

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/IvanBrykalov/adplacer/failure"
)

// MaxValue is the exclusive ceiling for any position or interval.
const MaxValue = 1 << 16

var (
	// ErrMalformed is returned for payloads or values that cannot form Rules.
	// It wraps failure.ErrInvalidResponse so callers classify it without
	// importing this package.
	ErrMalformed = fmt.Errorf("rules: malformed: %w", failure.ErrInvalidResponse)

	// ErrWarmingUp signals the transient "server is warming up" condition.
	// It is retried like any failure but is not logged as an error.
	ErrWarmingUp = errors.New("rules: server warming up")
)

// Rules is an immutable set of fixed adjusted positions plus an optional
// repeating interval. The zero value places nothing.
type Rules struct {
	fixed    []int // sorted, unique, pairwise non-adjacent
	interval int   // 0 = no repetition
}

// New validates and builds Rules. Duplicate fixed positions collapse into one.
// interval == 0 disables repetition.
func New(fixed []int, interval int) (Rules, error) {
	fs := slices.Clone(fixed)
	slices.Sort(fs)
	fs = slices.Compact(fs)
	for i, p := range fs {
		if p < 0 || p >= MaxValue {
			return Rules{}, fmt.Errorf("%w: fixed position %d out of range [0, %d)", ErrMalformed, p, MaxValue)
		}
		if i > 0 && p-fs[i-1] < 2 {
			return Rules{}, fmt.Errorf("%w: fixed positions %d and %d are adjacent", ErrMalformed, fs[i-1], p)
		}
	}
	if interval != 0 && (interval < 2 || interval >= MaxValue) {
		return Rules{}, fmt.Errorf("%w: repeat interval %d out of range [2, %d)", ErrMalformed, interval, MaxValue)
	}
	if len(fs) == 0 {
		fs = nil
	}
	return Rules{fixed: fs, interval: interval}, nil
}

// MustNew is New that panics on error. Intended for static configuration.
func MustNew(fixed []int, interval int) Rules {
	r, err := New(fixed, interval)
	if err != nil {
		panic(err)
	}
	return r
}

// Fixed returns a copy of the fixed adjusted positions in ascending order.
func (r Rules) Fixed() []int { return slices.Clone(r.fixed) }

// Interval returns the repeat interval and whether repetition is enabled.
func (r Rules) Interval() (int, bool) { return r.interval, r.interval > 0 }

// IsZero reports whether the rules place nothing at all.
func (r Rules) IsZero() bool { return len(r.fixed) == 0 && r.interval == 0 }

// Equal reports whether two rule sets describe the same positions.
func (r Rules) Equal(o Rules) bool {
	return r.interval == o.interval && slices.Equal(r.fixed, o.fixed)
}

// Slot returns the adjusted position of the j-th desired slot (0-based) as if
// no content had ever moved. ok is false when the sequence has ended.
//
// Fixed slots come first; repeat slots continue every interval positions after
// the highest fixed slot (or start at interval-1 when there are none).
func (r Rules) Slot(j int) (adjusted int, ok bool) {
	if j < 0 {
		return 0, false
	}
	if j < len(r.fixed) {
		return r.fixed[j], true
	}
	if r.interval == 0 {
		return 0, false
	}
	base := -1
	if n := len(r.fixed); n > 0 {
		base = r.fixed[n-1]
	}
	return base + (j-len(r.fixed)+1)*r.interval, true
}

func (r Rules) String() string {
	var b strings.Builder
	b.WriteString("rules{fixed=[")
	for i, p := range r.fixed {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(p))
	}
	b.WriteString("]")
	if r.interval > 0 {
		b.WriteString(" every=")
		b.WriteString(strconv.Itoa(r.interval))
	}
	b.WriteString("}")
	return b.String()
}
