package eta

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/example/careride/internal/geo"
	"github.com/example/careride/internal/models"
)

// ErrQuotaExceeded signals the mapping provider rejected the call for
// usage reasons; callers route to the fallback estimator rather than
// treating it as a failure.
var ErrQuotaExceeded = errors.New("route provider quota exceeded")

// RouteClient performs live route lookups against a mapping provider.
type RouteClient interface {
	Route(ctx context.Context, from, to models.Coord) (models.RouteEstimate, error)
}

// OSRMClient queries an OSRM-compatible HTTP server.
type OSRMClient struct {
	Endpoint string
	Client   *http.Client
}

func NewOSRMClient(endpoint string) *OSRMClient {
	return &OSRMClient{Endpoint: endpoint, Client: &http.Client{Timeout: 2 * time.Second}}
}

func (o *OSRMClient) Route(ctx context.Context, from, to models.Coord) (models.RouteEstimate, error) {
	url := fmt.Sprintf("%s/route/v1/driving/%.6f,%.6f;%.6f,%.6f?overview=false",
		o.Endpoint, from.Lng, from.Lat, to.Lng, to.Lat)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.RouteEstimate{}, err
	}
	resp, err := o.Client.Do(req)
	if err != nil {
		return models.RouteEstimate{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		return models.RouteEstimate{}, ErrQuotaExceeded
	}
	var out struct {
		Routes []struct {
			DistanceM float64 `json:"distance"`
			DurationS float64 `json:"duration"`
		} `json:"routes"`
		Code string `json:"code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return models.RouteEstimate{}, err
	}
	if out.Code == "TooBig" {
		return models.RouteEstimate{}, ErrQuotaExceeded
	}
	if out.Code != "Ok" || len(out.Routes) == 0 {
		return models.RouteEstimate{}, fmt.Errorf("route provider: no route (%s)", out.Code)
	}
	miles := out.Routes[0].DistanceM / 1609.344
	mins := out.Routes[0].DurationS / 60
	return models.RouteEstimate{
		DistanceText:  FormatMiles(miles),
		DurationText:  FormatMinutes(mins),
		DistanceMiles: miles,
		DurationMins:  mins,
	}, nil
}

// Estimator prefers the live route provider and falls back to the
// straight-line estimate on error, quota exhaustion, or when the
// provider does not resolve within the bounded wait.
type Estimator struct {
	Client  RouteClient // optional; nil means fallback only
	Cache   *Cache      // optional
	Timeout time.Duration
}

func (e *Estimator) Best(ctx context.Context, pickup, dropoff models.Coord) models.RouteEstimate {
	// invalid or sentinel endpoints short-circuit to the unavailable
	// estimate; they must never be sent to the provider
	if geo.ValidateCoord(pickup) != nil || geo.ValidateCoord(dropoff) != nil {
		return Estimate(pickup, dropoff)
	}
	if e.Client == nil {
		return Estimate(pickup, dropoff)
	}
	if e.Cache != nil {
		if v, ok := e.Cache.Get(pickup, dropoff); ok {
			return v
		}
	}
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	est, err := e.Client.Route(rctx, pickup, dropoff)
	if err != nil {
		return Estimate(pickup, dropoff)
	}
	if e.Cache != nil {
		e.Cache.Set(pickup, dropoff, est)
	}
	return est
}
