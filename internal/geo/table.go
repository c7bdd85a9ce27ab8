// Package geo maps integer IPv4 addresses to countries, either through the sorted IP
// range table shipped with the transaction dataset or through a MaxMind database.
package geo

import (
	"encoding/binary"
	"fmt"
	"math"
	"net"
	"slices"
	"sort"
	"strconv"
	"strings"
)

// Unknown is returned for addresses that fall in no known range.
const Unknown = "Unknown"

type Range struct {
	Lower   int64
	Upper   int64
	Country string
}

type Resolver interface {
	Country(ip int64) string
}

// Table is an IP range table sorted by lower bound. Ranges are assumed to be disjoint.
type Table struct {
	lower   []int64
	upper   []int64
	country []string
}

func NewTable(ranges []Range) *Table {
	sorted := slices.Clone(ranges)
	slices.SortStableFunc(sorted, func(a, b Range) int {
		switch {
		case a.Lower < b.Lower:
			return -1
		case a.Lower > b.Lower:
			return 1
		}
		return 0
	})

	t := &Table{
		lower:   make([]int64, len(sorted)),
		upper:   make([]int64, len(sorted)),
		country: make([]string, len(sorted)),
	}
	for i, r := range sorted {
		t.lower[i] = r.Lower
		t.upper[i] = r.Upper
		t.country[i] = r.Country
	}
	return t
}

func (t *Table) Len() int {
	return len(t.lower)
}

// Ranges returns the table contents in lookup order.
func (t *Table) Ranges() []Range {
	out := make([]Range, t.Len())
	for i := range out {
		out[i] = Range{Lower: t.lower[i], Upper: t.upper[i], Country: t.country[i]}
	}
	return out
}

// Country returns the country of the last range whose lower bound is <= ip, provided
// ip does not exceed that range's upper bound.
func (t *Table) Country(ip int64) string {
	idx := sort.Search(len(t.lower), func(i int) bool { return t.lower[i] > ip }) - 1
	if idx >= 0 && ip <= t.upper[idx] {
		return t.country[idx]
	}
	return Unknown
}

// Overlaps counts adjacent ranges that intersect or are inverted. Lookups stay
// well-defined but may shadow part of a range.
func (t *Table) Overlaps() int {
	n := 0
	for i := range t.lower {
		if t.upper[i] < t.lower[i] {
			n++
			continue
		}
		if i > 0 && t.lower[i] <= t.upper[i-1] {
			n++
		}
	}
	return n
}

// IPv4 converts an integer address to its 4-byte form. It returns nil outside the
// IPv4 space.
func IPv4(ip int64) net.IP {
	if ip < 0 || ip > math.MaxUint32 {
		return nil
	}
	out := make(net.IP, net.IPv4len)
	binary.BigEndian.PutUint32(out, uint32(ip))
	return out
}

// ParseIP accepts a dotted IPv4 address or an integer, optionally with a fractional
// part which is truncated. Integers must fall in the IPv4 space.
func ParseIP(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if strings.Count(s, ".") == 3 {
		ip := net.ParseIP(s).To4()
		if ip == nil {
			return 0, fmt.Errorf("invalid ipv4 address %q", s)
		}
		return int64(binary.BigEndian.Uint32(ip)), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid ip %q: %w", s, err)
	}
	f = math.Trunc(f)
	if math.IsNaN(f) || f < 0 || f > math.MaxUint32 {
		return 0, fmt.Errorf("ip %q outside the ipv4 range", s)
	}
	return int64(f), nil
}
