// Bustinel - GTFS-Realtime Trip Recorder
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bustinel

package models

import (
	"strconv"
	"strings"
)

// VehicleType is the GTFS route_type of a route, copied onto every vehicle
// observed on it. Values are the base GTFS codes.
type VehicleType int

// GTFS base route types.
const (
	VehicleTypeTram       VehicleType = 0
	VehicleTypeSubway     VehicleType = 1
	VehicleTypeRail       VehicleType = 2
	VehicleTypeBus        VehicleType = 3
	VehicleTypeFerry      VehicleType = 4
	VehicleTypeCableTram  VehicleType = 5
	VehicleTypeAerialLift VehicleType = 6
	VehicleTypeFunicular  VehicleType = 7
	VehicleTypeTrolleybus VehicleType = 11
	VehicleTypeMonorail   VehicleType = 12
	VehicleTypeUnknown    VehicleType = 1000
)

var vehicleTypeNames = map[VehicleType]string{
	VehicleTypeTram:       "tram",
	VehicleTypeSubway:     "subway",
	VehicleTypeRail:       "rail",
	VehicleTypeBus:        "bus",
	VehicleTypeFerry:      "ferry",
	VehicleTypeCableTram:  "cable_tram",
	VehicleTypeAerialLift: "aerial_lift",
	VehicleTypeFunicular:  "funicular",
	VehicleTypeTrolleybus: "trolleybus",
	VehicleTypeMonorail:   "monorail",
	VehicleTypeUnknown:    "unknown",
}

// String returns the snake_case name of the type.
func (v VehicleType) String() string {
	if name, ok := vehicleTypeNames[v]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether v is one of the closed set of known types.
func (v VehicleType) Valid() bool {
	_, ok := vehicleTypeNames[v]
	return ok
}

// VehicleTypeFromCode maps a GTFS route_type code to a VehicleType.
// Extended route types are folded onto their base type by range; anything
// else is unknown.
func VehicleTypeFromCode(code int) VehicleType {
	if v := VehicleType(code); v.Valid() {
		return v
	}

	switch {
	case code >= 100 && code < 200:
		return VehicleTypeRail
	case code >= 200 && code < 300:
		return VehicleTypeBus // coach services
	case code >= 400 && code < 500:
		return VehicleTypeSubway
	case code >= 700 && code < 800:
		return VehicleTypeBus
	case code >= 800 && code < 900:
		return VehicleTypeTrolleybus
	case code >= 900 && code < 1000:
		return VehicleTypeTram
	case code >= 1200 && code < 1300:
		return VehicleTypeFerry
	case code >= 1300 && code < 1400:
		return VehicleTypeAerialLift
	case code >= 1400 && code < 1500:
		return VehicleTypeFunicular
	default:
		return VehicleTypeUnknown
	}
}

// ParseVehicleType parses the route_type column. Absent or unparseable
// values are unknown.
func ParseVehicleType(s string) VehicleType {
	s = strings.TrimSpace(s)
	if s == "" {
		return VehicleTypeUnknown
	}
	code, err := strconv.Atoi(s)
	if err != nil {
		return VehicleTypeUnknown
	}
	return VehicleTypeFromCode(code)
}
