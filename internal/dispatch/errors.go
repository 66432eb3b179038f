package dispatch

import "errors"

var (
	ErrCapacityExceeded     = errors.New("vehicle capacity exceeded")
	ErrAlreadyAssigned      = errors.New("passenger already assigned to a vehicle")
	ErrPassengerNotFound    = errors.New("passenger not on transport request")
	ErrPassengerNotAssigned = errors.New("passenger not assigned to vehicle")
	ErrVehicleNotFound      = errors.New("vehicle not found")
	ErrVehicleDispatched    = errors.New("vehicle already dispatched")
	ErrVehicleNotEmpty      = errors.New("vehicle has assigned passengers")
	ErrBelowMinimum         = errors.New("vehicle count would drop below minimum")
	ErrNotAllAssigned       = errors.New("not all passengers assigned")
	ErrInvalidState         = errors.New("operation not allowed in current state")
	ErrCommitFailed         = errors.New("dispatch commit failed")
	ErrForbidden            = errors.New("missing permission")
	ErrNoSession            = errors.New("no dispatch session for request")
)
