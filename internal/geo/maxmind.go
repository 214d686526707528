package geo

import (
	"context"
	"fmt"
	"net"

	"github.com/oschwald/maxminddb-golang"
)

// MaxMindProvider resolves addresses from a local GeoLite2/GeoIP2 City database.
type MaxMindProvider struct {
	db *maxminddb.Reader
}

// OpenMaxMind opens the database at path.
func OpenMaxMind(path string) (*MaxMindProvider, error) {
	db, err := maxminddb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open maxmind db: %w", err)
	}
	return &MaxMindProvider{db: db}, nil
}

type maxmindRecord struct {
	Country struct {
		Names map[string]string `maxminddb:"names"`
		ISO   string            `maxminddb:"iso_code"`
	} `maxminddb:"country"`
	Subdivisions []struct {
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"subdivisions"`
	City struct {
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"city"`
	Location struct {
		Latitude  float64 `maxminddb:"latitude"`
		Longitude float64 `maxminddb:"longitude"`
		TimeZone  string  `maxminddb:"time_zone"`
	} `maxminddb:"location"`
}

func (p *MaxMindProvider) Lookup(_ context.Context, ip string) (Location, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return Location{}, fmt.Errorf("invalid ip %q", ip)
	}
	var record maxmindRecord
	if err := p.db.Lookup(parsed, &record); err != nil {
		return Location{}, fmt.Errorf("maxmind lookup: %w", err)
	}
	if record.Country.ISO == "" {
		return Location{}, ErrNoLocation
	}

	loc := Location{
		Country:     record.Country.Names["en"],
		CountryCode: record.Country.ISO,
		City:        record.City.Names["en"],
		Latitude:    record.Location.Latitude,
		Longitude:   record.Location.Longitude,
		Timezone:    record.Location.TimeZone,
	}
	if loc.Country == "" {
		loc.Country = record.Country.ISO
	}
	if len(record.Subdivisions) > 0 {
		loc.Region = record.Subdivisions[0].Names["en"]
	}
	return loc, nil
}

// Close releases the database.
func (p *MaxMindProvider) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}
