package geo_test

import (
	"bytes"
	"log/slog"
	"math"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/oschwald/geoip2-golang"
	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/fraudprep/internal/geo"
)

var testRanges = []geo.Range{
	{Lower: 200, Upper: 299, Country: "China"},
	{Lower: 100, Upper: 199, Country: "Australia"},
	{Lower: 400, Upper: 499, Country: "Peru"},
}

func TestFraudPrep_Geo_Table_Country(t *testing.T) {
	t.Parallel()

	table := geo.NewTable(testRanges)
	require.Equal(t, 3, table.Len())

	tests := []struct {
		name string
		ip   int64
		want string
	}{
		{"below first range", 99, geo.Unknown},
		{"first lower bound", 100, "Australia"},
		{"first upper bound", 199, "Australia"},
		{"second range", 250, "China"},
		{"gap between ranges", 350, geo.Unknown},
		{"last upper bound", 499, "Peru"},
		{"above last range", 500, geo.Unknown},
		{"negative", -1, geo.Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, table.Country(tt.ip))
		})
	}
}

func TestFraudPrep_Geo_Table_EmptyAndInputUntouched(t *testing.T) {
	t.Parallel()

	require.Equal(t, geo.Unknown, geo.NewTable(nil).Country(5))

	in := []geo.Range{{Lower: 10, Upper: 20, Country: "B"}, {Lower: 0, Upper: 5, Country: "A"}}
	table := geo.NewTable(in)
	require.Equal(t, "B", in[0].Country)
	require.Equal(t, "A", table.Ranges()[0].Country)
}

func TestFraudPrep_Geo_Table_Overlaps(t *testing.T) {
	t.Parallel()

	require.Zero(t, geo.NewTable(testRanges).Overlaps())

	overlapping := geo.NewTable([]geo.Range{
		{Lower: 0, Upper: 10, Country: "A"},
		{Lower: 5, Upper: 20, Country: "B"},
		{Lower: 30, Upper: 25, Country: "C"},
	})
	require.Equal(t, 2, overlapping.Overlaps())
	// The later range shadows the earlier one on the shared span.
	require.Equal(t, "B", overlapping.Country(7))
}

func TestFraudPrep_Geo_IPv4(t *testing.T) {
	t.Parallel()

	require.Equal(t, net.IPv4(1, 0, 0, 1).To4(), geo.IPv4(16777217))
	require.Equal(t, net.IPv4(255, 255, 255, 255).To4(), geo.IPv4(4294967295))
	require.Nil(t, geo.IPv4(-1))
	require.Nil(t, geo.IPv4(4294967296))
}

func TestFraudPrep_Geo_ParseIP(t *testing.T) {
	t.Parallel()

	ip, err := geo.ParseIP("43.173.1.96")
	require.NoError(t, err)
	require.Equal(t, int64(732758368), ip)

	ip, err = geo.ParseIP(" 732758368.79972 ")
	require.NoError(t, err)
	require.Equal(t, int64(732758368), ip)

	_, err = geo.ParseIP("1.2.3.999")
	require.Error(t, err)
	_, err = geo.ParseIP("nope")
	require.Error(t, err)

	ip, err = geo.ParseIP("4294967295.9")
	require.NoError(t, err)
	require.Equal(t, int64(math.MaxUint32), ip)
	ip, err = geo.ParseIP("-0.5")
	require.NoError(t, err)
	require.Equal(t, int64(0), ip)

	for _, in := range []string{"1e30", "NaN", "Inf", "-Inf", "-1", "4294967296"} {
		_, err := geo.ParseIP(in)
		require.Error(t, err, in)
	}
}

func TestFraudPrep_Geo_WriteMMDB_RoundTrip(t *testing.T) {
	t.Parallel()

	ranges := []geo.Range{
		{Lower: 16777216, Upper: 16777471, Country: "Australia"},
		{Lower: 16777472, Upper: 16778239, Country: "China"},
		{Lower: 16779264, Upper: 16781311, Country: "China"},
	}
	var buf bytes.Buffer
	n, err := geo.WriteMMDB(&buf, ranges)
	require.NoError(t, err)
	require.Equal(t, int64(buf.Len()), n)

	reader, err := geoip2.FromBytes(buf.Bytes())
	require.NoError(t, err)
	r, err := geo.NewMMDBResolver(slog.New(slog.DiscardHandler), reader)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	table := geo.NewTable(ranges)
	for _, ip := range []int64{16777216, 16777300, 16777471, 16777472, 16778239, 16778240, 16780000, 1, 4294967296} {
		require.Equal(t, table.Country(ip), r.Country(ip), "ip %d", ip)
	}
}

func TestFraudPrep_Geo_WriteMMDB_InvalidRange(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	_, err := geo.WriteMMDB(&buf, []geo.Range{{Lower: 10, Upper: 5, Country: "X"}})
	require.Error(t, err)

	_, err = geo.WriteMMDB(&buf, []geo.Range{{Lower: 0, Upper: 1 << 33, Country: "X"}})
	require.Error(t, err)
}

func TestFraudPrep_Geo_OpenMMDB(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "country.mmdb")
	f, err := os.Create(path)
	require.NoError(t, err)
	_, err = geo.WriteMMDB(f, []geo.Range{{Lower: 16777216, Upper: 16777471, Country: "Australia"}})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	r, err := geo.OpenMMDB(slog.New(slog.DiscardHandler), path)
	require.NoError(t, err)
	defer r.Close()
	require.Equal(t, "Australia", r.Country(16777300))

	_, err = geo.OpenMMDB(slog.New(slog.DiscardHandler), filepath.Join(t.TempDir(), "missing.mmdb"))
	require.Error(t, err)
}

func TestFraudPrep_Geo_NewMMDBResolver_NilArgs(t *testing.T) {
	t.Parallel()

	_, err := geo.NewMMDBResolver(nil, nil)
	require.Error(t, err)
	_, err = geo.NewMMDBResolver(slog.New(slog.DiscardHandler), nil)
	require.Error(t, err)
}

type countingResolver struct {
	calls int
	next  geo.Resolver
}

func (c *countingResolver) Country(ip int64) string {
	c.calls++
	return c.next.Country(ip)
}

func TestFraudPrep_Geo_CachedResolver(t *testing.T) {
	t.Parallel()

	inner := &countingResolver{next: geo.NewTable(testRanges)}
	cached := geo.NewCachedResolver(inner, time.Hour, 16)

	require.Equal(t, "Australia", cached.Country(150))
	require.Equal(t, "Australia", cached.Country(150))
	require.Equal(t, geo.Unknown, cached.Country(350))
	require.Equal(t, geo.Unknown, cached.Country(350))
	require.Equal(t, 2, inner.calls)

	hits, misses := cached.Stats()
	require.Equal(t, uint64(2), hits)
	require.Equal(t, uint64(2), misses)
}
