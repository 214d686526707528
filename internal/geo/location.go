// Package geo resolves client IPs to coarse locations. Lookups never fail
// from the caller's side: anything that goes wrong yields a placeholder.
package geo

import (
	"context"
	"errors"
)

// Location is the geo metadata attached to a fact record.
type Location struct {
	Country     string  `json:"country"`
	CountryCode string  `json:"country_code"`
	Region      string  `json:"region"`
	City        string  `json:"city"`
	Latitude    float64 `json:"lat"`
	Longitude   float64 `json:"lon"`
	Timezone    string  `json:"timezone"`
}

// Local is returned for private, loopback and link-local addresses.
var Local = Location{
	Country:  "Local",
	Region:   "Development",
	City:     "Local",
	Timezone: "UTC",
}

// Unknown is returned when an address cannot be resolved.
var Unknown = Location{
	Country:  "Unknown",
	Region:   "Unknown",
	City:     "Unknown",
	Timezone: "UTC",
}

// ErrNoLocation is returned by providers that have no data for an address.
var ErrNoLocation = errors.New("no location for address")

// Provider looks up the location of a public IP address.
type Provider interface {
	Lookup(ctx context.Context, ip string) (Location, error)
}

// Chain tries providers in order; the first success wins.
type Chain []Provider

func (c Chain) Lookup(ctx context.Context, ip string) (Location, error) {
	if len(c) == 0 {
		return Location{}, ErrNoLocation
	}
	var errs []error
	for _, p := range c {
		loc, err := p.Lookup(ctx, ip)
		if err == nil {
			return loc, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	return Location{}, errors.Join(errs...)
}
