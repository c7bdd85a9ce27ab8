package geo

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/maxmind/mmdbwriter"
	"github.com/maxmind/mmdbwriter/mmdbtype"
	"github.com/oschwald/geoip2-golang"
)

const mmdbDatabaseType = "GeoLite2-Country"

type MMDBResolver struct {
	log    *slog.Logger
	reader *geoip2.Reader
}

func NewMMDBResolver(log *slog.Logger, reader *geoip2.Reader) (*MMDBResolver, error) {
	if log == nil {
		return nil, fmt.Errorf("log is nil")
	}
	if reader == nil {
		return nil, fmt.Errorf("reader is nil")
	}
	return &MMDBResolver{log: log, reader: reader}, nil
}

// OpenMMDB opens a country or city database from disk.
func OpenMMDB(log *slog.Logger, path string) (*MMDBResolver, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open geoip database %s: %w", path, err)
	}
	r, err := NewMMDBResolver(log, reader)
	if err != nil {
		_ = reader.Close()
		return nil, err
	}
	return r, nil
}

func (r *MMDBResolver) Close() error {
	return r.reader.Close()
}

func (r *MMDBResolver) Country(ip int64) string {
	addr := IPv4(ip)
	if addr == nil {
		return Unknown
	}
	rec, err := r.reader.Country(addr)
	if err != nil {
		r.log.Debug("geo: mmdb country lookup failed", "ip", addr.String(), "error", err)
		return Unknown
	}
	if name := rec.Country.Names["en"]; name != "" {
		return name
	}
	if name := rec.RegisteredCountry.Names["en"]; name != "" {
		return name
	}
	return Unknown
}

// WriteMMDB encodes the ranges as a country database readable by geoip2.
func WriteMMDB(w io.Writer, ranges []Range) (int64, error) {
	tree, err := mmdbwriter.New(mmdbwriter.Options{
		DatabaseType:            mmdbDatabaseType,
		Description:             map[string]string{"en": "IP range to country table"},
		Languages:               []string{"en"},
		RecordSize:              24,
		IncludeReservedNetworks: true,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create mmdb tree: %w", err)
	}

	for _, rg := range NewTable(ranges).Ranges() {
		start, end := IPv4(rg.Lower), IPv4(rg.Upper)
		if start == nil || end == nil || rg.Upper < rg.Lower {
			return 0, fmt.Errorf("invalid ipv4 range %d-%d (%s)", rg.Lower, rg.Upper, rg.Country)
		}
		rec := mmdbtype.Map{
			"country": mmdbtype.Map{
				"names": mmdbtype.Map{"en": mmdbtype.String(rg.Country)},
			},
		}
		if err := tree.InsertRange(start, end, rec); err != nil {
			return 0, fmt.Errorf("failed to insert range %d-%d: %w", rg.Lower, rg.Upper, err)
		}
	}

	n, err := tree.WriteTo(w)
	if err != nil {
		return n, fmt.Errorf("failed to write mmdb: %w", err)
	}
	return n, nil
}
