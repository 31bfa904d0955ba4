package rules

import (
	"fmt"
	"math"

	"github.com/tidwall/gjson"
)

// Payload field names.
const (
	fieldFixed     = "fixed"
	fieldSection   = "section"
	fieldPosition  = "position"
	fieldRepeating = "repeating"
	fieldInterval  = "interval"
	fieldError     = "error"

	warmingUp = "WARMING_UP"

	// primarySection is the only section whose fixed positions apply.
	primarySection = 0
)

// Parse turns a positioning payload of the shape
//
//	{"fixed":[{"section":0,"position":1}], "repeating":{"interval":5}}
//
// into Rules. The payload is rejected as a whole on any invalid entry.
// {"error":"WARMING_UP"} yields ErrWarmingUp; any other error string is
// reported as ErrMalformed.
func Parse(payload []byte) (Rules, error) {
	if !gjson.ValidBytes(payload) {
		return Rules{}, fmt.Errorf("%w: invalid JSON", ErrMalformed)
	}
	doc := gjson.ParseBytes(payload)
	if !doc.IsObject() {
		return Rules{}, fmt.Errorf("%w: payload is not an object", ErrMalformed)
	}

	if e := doc.Get(fieldError); e.Exists() {
		if e.String() == warmingUp {
			return Rules{}, ErrWarmingUp
		}
		return Rules{}, fmt.Errorf("%w: server error %q", ErrMalformed, e.String())
	}

	fixedNode := doc.Get(fieldFixed)
	repeatNode := doc.Get(fieldRepeating)
	if !fixedNode.Exists() && !repeatNode.Exists() {
		return Rules{}, fmt.Errorf("%w: neither %q nor %q present", ErrMalformed, fieldFixed, fieldRepeating)
	}

	var fixed []int
	if fixedNode.Exists() {
		if !fixedNode.IsArray() {
			return Rules{}, fmt.Errorf("%w: %q is not an array", ErrMalformed, fieldFixed)
		}
		for i, entry := range fixedNode.Array() {
			if !entry.IsObject() {
				return Rules{}, fmt.Errorf("%w: fixed[%d] is not an object", ErrMalformed, i)
			}
			section := primarySection
			if s := entry.Get(fieldSection); s.Exists() {
				v, err := intValue(s)
				if err != nil {
					return Rules{}, fmt.Errorf("%w: fixed[%d].%s: %v", ErrMalformed, i, fieldSection, err)
				}
				section = v
			}
			pos := entry.Get(fieldPosition)
			if !pos.Exists() {
				return Rules{}, fmt.Errorf("%w: fixed[%d] has no %q", ErrMalformed, i, fieldPosition)
			}
			p, err := intValue(pos)
			if err != nil {
				return Rules{}, fmt.Errorf("%w: fixed[%d].%s: %v", ErrMalformed, i, fieldPosition, err)
			}
			if section != primarySection {
				continue
			}
			fixed = append(fixed, p)
		}
	}

	interval := 0
	if repeatNode.Exists() {
		if !repeatNode.IsObject() {
			return Rules{}, fmt.Errorf("%w: %q is not an object", ErrMalformed, fieldRepeating)
		}
		iv := repeatNode.Get(fieldInterval)
		if !iv.Exists() {
			return Rules{}, fmt.Errorf("%w: %q has no %q", ErrMalformed, fieldRepeating, fieldInterval)
		}
		v, err := intValue(iv)
		if err != nil {
			return Rules{}, fmt.Errorf("%w: %s.%s: %v", ErrMalformed, fieldRepeating, fieldInterval, err)
		}
		if v < 2 {
			return Rules{}, fmt.Errorf("%w: repeat interval %d < 2", ErrMalformed, v)
		}
		interval = v
	}

	return New(fixed, interval)
}

// intValue accepts integral JSON numbers in [0, MaxValue).
func intValue(r gjson.Result) (int, error) {
	if r.Type != gjson.Number {
		return 0, fmt.Errorf("not a number: %s", r.Raw)
	}
	f := r.Float()
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("not an integer: %s", r.Raw)
	}
	if f < 0 || f >= MaxValue {
		return 0, fmt.Errorf("%s out of range [0, %d)", r.Raw, MaxValue)
	}
	return int(f), nil
}
