package strava

import (
	"fmt"
	"strings"
)

type ActivityType string

const (
	Ride           ActivityType = "ride"
	Run            ActivityType = "run"
	Swim           ActivityType = "swim"
	Workout        ActivityType = "workout"
	Hike           ActivityType = "hike"
	Walk           ActivityType = "walk"
	NordicSki      ActivityType = "nordicski"
	AlpineSki      ActivityType = "alpineski"
	BackcountrySki ActivityType = "backcountryski"
	IceSkate       ActivityType = "iceskate"
	InlineSkate    ActivityType = "inlineskate"
	Kitesurf       ActivityType = "kitesurf"
	RollerSki      ActivityType = "rollerski"
	Windsurf       ActivityType = "windsurf"
	Snowboard      ActivityType = "snowboard"
	Snowshoe       ActivityType = "snowshoe"
	EBikeRide      ActivityType = "ebikeride"
	VirtualRide    ActivityType = "virtualride"
)

// ActivityTypes lists every activity type accepted by the upload endpoint.
var ActivityTypes = []ActivityType{
	Ride, Run, Swim, Workout, Hike, Walk, NordicSki,
	AlpineSki, BackcountrySki, IceSkate, InlineSkate,
	Kitesurf, RollerSki, Windsurf, Snowboard, Snowshoe,
	EBikeRide, VirtualRide,
}

// ParseActivityType validates s against ActivityTypes. The empty string is
// accepted and leaves the type to Strava.
func ParseActivityType(s string) (ActivityType, error) {
	if s == "" {
		return "", nil
	}
	for _, t := range ActivityTypes {
		if string(t) == strings.ToLower(s) {
			return t, nil
		}
	}
	names := make([]string, len(ActivityTypes))
	for i, t := range ActivityTypes {
		names[i] = string(t)
	}
	return "", fmt.Errorf("unknown activity type %q, expected one of %s", s, strings.Join(names, ", "))
}

type DataType string

const (
	DataTypeGPX DataType = "gpx"
	DataTypeFIT DataType = "fit"
)

func ParseDataType(s string) (DataType, error) {
	switch DataType(strings.ToLower(s)) {
	case "", DataTypeGPX:
		return DataTypeGPX, nil
	case DataTypeFIT:
		return DataTypeFIT, nil
	}
	return "", fmt.Errorf("unsupported data type %q, expected gpx or fit", s)
}
