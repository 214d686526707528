package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const ipAPIFields = "status,message,country,countryCode,regionName,city,lat,lon,timezone"

// HTTPProvider queries an ip-api.com compatible JSON endpoint.
type HTTPProvider struct {
	baseURL string
	client  *http.Client
}

// NewHTTPProvider returns a provider for baseURL, e.g. "http://ip-api.com".
// A nil client uses http.DefaultClient; callers bound latency through ctx.
func NewHTTPProvider(baseURL string, client *http.Client) *HTTPProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

type ipAPIResponse struct {
	Status      string  `json:"status"`
	Message     string  `json:"message"`
	Country     string  `json:"country"`
	CountryCode string  `json:"countryCode"`
	RegionName  string  `json:"regionName"`
	City        string  `json:"city"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Timezone    string  `json:"timezone"`
}

func (p *HTTPProvider) Lookup(ctx context.Context, ip string) (Location, error) {
	endpoint := fmt.Sprintf("%s/json/%s?fields=%s", p.baseURL, url.PathEscape(ip), ipAPIFields)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Location{}, fmt.Errorf("build geo request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return Location{}, fmt.Errorf("geo request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Location{}, fmt.Errorf("geo request: unexpected status %d", resp.StatusCode)
	}

	var body ipAPIResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err != nil {
		return Location{}, fmt.Errorf("decode geo response: %w", err)
	}
	if body.Status != "success" {
		if body.Message == "" {
			body.Message = "status " + body.Status
		}
		return Location{}, fmt.Errorf("geo lookup failed: %s", body.Message)
	}

	return Location{
		Country:     body.Country,
		CountryCode: body.CountryCode,
		Region:      body.RegionName,
		City:        body.City,
		Latitude:    body.Lat,
		Longitude:   body.Lon,
		Timezone:    body.Timezone,
	}, nil
}
