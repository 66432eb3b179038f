package api

import (
	"fmt"
	"strings"
)

type assignRequest struct {
	PassengerID string `json:"passengerId"`
	Move        bool   `json:"move"`
}

func (a *assignRequest) validate() error {
	a.PassengerID = strings.TrimSpace(a.PassengerID)
	if a.PassengerID == "" {
		return fmt.Errorf("%w: passengerId is required", errBadRequest)
	}
	return nil
}

type vehiclePatch struct {
	Collapsed *bool `json:"collapsed"`
}

func (p vehiclePatch) validate() error {
	if p.Collapsed == nil {
		return fmt.Errorf("%w: collapsed is required", errBadRequest)
	}
	return nil
}
