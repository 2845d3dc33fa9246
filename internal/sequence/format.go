// Package sequence allocates human-readable, collision-free quote numbers.
package sequence

import (
	"fmt"
	"strings"
	"time"
)

// ResetPolicy selects the date granularity at which the counter restarts.
type ResetPolicy string

const (
	ResetNone    ResetPolicy = "none"
	ResetDaily   ResetPolicy = "daily"
	ResetMonthly ResetPolicy = "monthly"
	ResetYearly  ResetPolicy = "yearly"
)

// Period renders the date part for the policy. ResetNone yields an empty
// string, so all allocations share one counter bucket.
func (p ResetPolicy) Period(at time.Time) string {
	switch p {
	case ResetDaily:
		return at.Format("20060102")
	case ResetMonthly:
		return at.Format("200601")
	case ResetYearly:
		return at.Format("2006")
	default:
		return ""
	}
}

// Valid reports whether the policy is one of the supported values.
func (p ResetPolicy) Valid() bool {
	switch p {
	case ResetNone, ResetDaily, ResetMonthly, ResetYearly:
		return true
	}
	return false
}

// Format describes how a quote number is rendered.
type Format struct {
	Prefix    string
	Separator string
	PadLength int
	Suffix    string
	Reset     ResetPolicy
}

// Preview renders the number for a known sequence value without allocating.
func (f Format) Preview(seq int64, at time.Time) string {
	var b strings.Builder
	b.WriteString(f.Prefix)
	if period := f.Reset.Period(at); period != "" {
		if f.Separator != "" {
			b.WriteString(f.Separator)
		}
		b.WriteString(period)
	}
	if f.Separator != "" {
		b.WriteString(f.Separator)
	}
	pad := f.PadLength
	if pad <= 0 {
		pad = 4
	}
	fmt.Fprintf(&b, "%0*d", pad, seq)
	b.WriteString(f.Suffix)
	return b.String()
}

// PrefixPattern returns the leading portion shared by every number this
// format produces at the given time. Used by the degraded scan fallback.
func (f Format) PrefixPattern(at time.Time) string {
	var b strings.Builder
	b.WriteString(f.Prefix)
	if period := f.Reset.Period(at); period != "" {
		if f.Separator != "" {
			b.WriteString(f.Separator)
		}
		b.WriteString(period)
	}
	if f.Separator != "" {
		b.WriteString(f.Separator)
	}
	return b.String()
}
