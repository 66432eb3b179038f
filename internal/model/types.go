package model

import (
	"strings"
	"time"
)

// Core domain types shared by the dispatch engine, stores and API.

type GeoPoint struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// Address is a formatted address with optional coordinates. It is null when
// Formatted is blank.
type Address struct {
	Formatted string    `json:"formatted" yaml:"formatted"`
	Location  *GeoPoint `json:"location,omitempty" yaml:"location,omitempty"`
}

func (a Address) IsZero() bool { return strings.TrimSpace(a.Formatted) == "" }

type Passenger struct {
	ID               string  `json:"id" yaml:"id"` // employee transport id
	EmployeeID       string  `json:"employeeId,omitempty" yaml:"employeeId"`
	Name             string  `json:"name" yaml:"name"`
	Email            string  `json:"email,omitempty" yaml:"email"`
	Phone            string  `json:"phone,omitempty" yaml:"phone"`
	Departure        Address `json:"departure" yaml:"departure"`
	Arrival          Address `json:"arrival" yaml:"arrival"`
	VirtualVehicleID string  `json:"virtualVehicleId,omitempty" yaml:"virtualVehicleId,omitempty"`
}

type Direction string

const (
	HomeToWork Direction = "home_to_work"
	WorkToHome Direction = "work_to_home"
)

func (d Direction) Valid() bool { return d == HomeToWork || d == WorkToHome }

type RequestStatus string

const (
	RequestPending    RequestStatus = "pending"
	RequestApproved   RequestStatus = "approved"
	RequestDispatched RequestStatus = "dispatched"
	RequestInProgress RequestStatus = "in_progress"
	RequestCompleted  RequestStatus = "completed"
	RequestCancelled  RequestStatus = "cancelled"
)

func (s RequestStatus) Valid() bool {
	switch s {
	case RequestPending, RequestApproved, RequestDispatched, RequestInProgress, RequestCompleted, RequestCancelled:
		return true
	}
	return false
}

type TransportRequest struct {
	ID          string        `json:"id" yaml:"id"`
	Direction   Direction     `json:"direction" yaml:"direction"`
	ScheduledAt time.Time     `json:"scheduledAt" yaml:"scheduledAt"`
	Passengers  []Passenger   `json:"passengers" yaml:"passengers"`
	Status      RequestStatus `json:"status" yaml:"status"`
}

// EmployeeTransportPatch links one passenger to the virtual vehicle carrying it.
type EmployeeTransportPatch struct {
	ID               string `json:"id"`
	VirtualVehicleID string `json:"virtualVehicleId"`
}

type TransportRequestPatch struct {
	EmployeeTransports []EmployeeTransportPatch `json:"employeeTransports,omitempty"`
	Status             *RequestStatus           `json:"status,omitempty"`
}

type VehicleStatus string

const (
	VehicleAvailable  VehicleStatus = "available"
	VehicleAssigned   VehicleStatus = "assigned"
	VehicleDispatched VehicleStatus = "dispatched"
)

func (s VehicleStatus) Valid() bool {
	return s == VehicleAvailable || s == VehicleAssigned || s == VehicleDispatched
}

// DefaultCapacity is the seat count of every virtual vehicle.
const DefaultCapacity = 4

type VirtualVehicle struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Capacity   int              `json:"capacity"`
	Passengers []Passenger      `json:"assignedPassengers"`
	Status     VehicleStatus    `json:"status"`
	Route      *RouteEstimation `json:"routeEstimation,omitempty"`
	Collapsed  bool             `json:"collapsed"`
}

func (v VirtualVehicle) Full() bool { return len(v.Passengers) >= v.Capacity }

// IsDefault reports whether the vehicle is indistinguishable from a freshly
// created one.
func (v VirtualVehicle) IsDefault() bool {
	return len(v.Passengers) == 0 && v.Status == VehicleAvailable
}

// Clone returns a deep copy safe to hand outside the owning pool.
func (v VirtualVehicle) Clone() VirtualVehicle {
	out := v
	out.Passengers = append([]Passenger(nil), v.Passengers...)
	if v.Route != nil {
		r := *v.Route
		r.Stops = append([]string(nil), v.Route.Stops...)
		out.Route = &r
	}
	return out
}

type RouteEstimation struct {
	Distance        string   `json:"distance"`
	Duration        string   `json:"duration"`
	DistanceMeters  int      `json:"distanceMeters"`
	DurationSeconds int      `json:"durationSeconds"`
	Hours           int      `json:"hours"`
	Minutes         int      `json:"minutes"`
	Stops           []string `json:"stops"`
}

// DispatchDraft is a recoverable snapshot of in-progress assignment work.
type DispatchDraft struct {
	RequestID      string           `json:"requestId"`
	Vehicles       []VirtualVehicle `json:"vehicles"`
	PassengerCount int              `json:"passengerCount"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}
