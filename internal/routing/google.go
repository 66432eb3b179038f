package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const DefaultDirectionsURL = "https://maps.googleapis.com/maps/api/directions/json"

// GoogleDirections talks to a Google-Directions-compatible JSON API.
type GoogleDirections struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
	Limiter *rate.Limiter
}

// NewGoogleDirections builds a client limited to rps calls per second. A
// non-positive rps disables limiting.
func NewGoogleDirections(baseURL, apiKey string, rps float64, burst int) *GoogleDirections {
	if baseURL == "" {
		baseURL = DefaultDirectionsURL
	}
	lim := rate.NewLimiter(rate.Inf, 0)
	if rps > 0 {
		if burst < 1 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return &GoogleDirections{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
		Limiter: lim,
	}
}

func (g *GoogleDirections) Name() string { return "google" }

type directionsResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Routes       []struct {
		Legs []struct {
			Distance struct {
				Value int `json:"value"`
			} `json:"distance"`
			Duration struct {
				Value int `json:"value"`
			} `json:"duration"`
		} `json:"legs"`
		WaypointOrder []int `json:"waypoint_order"`
	} `json:"routes"`
}

func (g *GoogleDirections) Directions(ctx context.Context, req DirectionsRequest) (Directions, error) {
	if err := g.Limiter.Wait(ctx); err != nil {
		return Directions{}, err
	}
	q := url.Values{}
	q.Set("origin", locationParam(req.Origin))
	q.Set("destination", locationParam(req.Destination))
	if len(req.Waypoints) > 0 {
		parts := make([]string, 0, len(req.Waypoints)+1)
		if req.OptimizeWaypoints {
			parts = append(parts, "optimize:true")
		}
		for _, w := range req.Waypoints {
			parts = append(parts, locationParam(w))
		}
		q.Set("waypoints", strings.Join(parts, "|"))
	}
	if g.APIKey != "" {
		q.Set("key", g.APIKey)
	}
	hreq, err := http.NewRequestWithContext(ctx, http.MethodGet, g.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return Directions{}, err
	}
	hreq.Header.Set("Accept", "application/json")
	resp, err := g.HTTP.Do(hreq)
	if err != nil {
		return Directions{}, fmt.Errorf("directions: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return Directions{}, fmt.Errorf("directions: http %d", resp.StatusCode)
	}
	var body directionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Directions{}, fmt.Errorf("directions: decode: %w", err)
	}
	switch body.Status {
	case "OK":
	case "ZERO_RESULTS", "NOT_FOUND":
		return Directions{}, fmt.Errorf("directions: %s: %w", body.Status, ErrNoRoute)
	default:
		return Directions{}, fmt.Errorf("directions: %s %s", body.Status, body.ErrorMessage)
	}
	if len(body.Routes) == 0 {
		return Directions{}, ErrNoRoute
	}
	r := body.Routes[0]
	out := Directions{WaypointOrder: r.WaypointOrder}
	for _, l := range r.Legs {
		out.Legs = append(out.Legs, Leg{DistanceMeters: l.Distance.Value, DurationSeconds: l.Duration.Value})
	}
	return out, nil
}

func locationParam(l Location) string {
	if l.Address != "" {
		return l.Address
	}
	if l.Point != nil {
		return strconv.FormatFloat(l.Point.Lat, 'f', 6, 64) + "," + strconv.FormatFloat(l.Point.Lng, 'f', 6, 64)
	}
	return ""
}
