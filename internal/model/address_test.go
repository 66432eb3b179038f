package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestAddress_UnmarshalJSON(t *testing.T) {
	var p Passenger
	require.NoError(t, json.Unmarshal([]byte(`{"id":"p1","departure":"Main St 1","arrival":{"formatted":"HQ","location":{"lat":1.5,"lng":2.5}}}`), &p))
	assert.Equal(t, "Main St 1", p.Departure.Formatted)
	assert.Nil(t, p.Departure.Location)
	assert.Equal(t, "HQ", p.Arrival.Formatted)
	require.NotNil(t, p.Arrival.Location)
	assert.Equal(t, 2.5, p.Arrival.Location.Lng)

	var a Address
	assert.Error(t, json.Unmarshal([]byte(`42`), &a))
}

func TestAddress_UnmarshalYAML(t *testing.T) {
	var p Passenger
	src := `
id: p1
name: Ann
departure: Main St 1
arrival:
  formatted: HQ
  location: {lat: 1.5, lng: 2.5}
`
	require.NoError(t, yaml.Unmarshal([]byte(src), &p))
	assert.Equal(t, "Main St 1", p.Departure.Formatted)
	assert.Equal(t, "HQ", p.Arrival.Formatted)
	assert.Equal(t, 1.5, p.Arrival.Location.Lat)
}

func TestVirtualVehicle_CloneIsDeep(t *testing.T) {
	v := VirtualVehicle{ID: "v", Capacity: 4, Passengers: []Passenger{{ID: "a"}}, Route: &RouteEstimation{Stops: []string{"x"}}}
	c := v.Clone()
	c.Passengers[0].ID = "b"
	c.Route.Stops[0] = "y"
	assert.Equal(t, "a", v.Passengers[0].ID)
	assert.Equal(t, "x", v.Route.Stops[0])
	assert.False(t, v.Full())
	assert.False(t, v.IsDefault())
}
