// Package fitbit reads intraday heart-rate exports of the Fitbit Web API.
package fitbit

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Sample:
//
//	{
//	    "activities-heart": [
//	        {
//	            "dateTime": "2018-03-10",
//	            "value": {"restingHeartRate": 58}
//	        }
//	    ],
//	    "activities-heart-intraday": {
//	        "dataset": [
//	            {
//	                "time": "17:09:50",
//	                "value": 122
//	            }
//	        ],
//	        "datasetInterval": 1,
//	        "datasetType": "second"
//	    }
//	}
type HeartRateResult struct {
	Activities         []HeartActivity       `json:"activities-heart"`
	ActivitiesIntraDay HeartActivityIntraday `json:"activities-heart-intraday"`
}

type HeartActivity struct {
	DateTime string `json:"dateTime"`
}

type HeartActivityIntraday struct {
	Dataset         []HeartActivityIntradayDatasetValue `json:"dataset"`
	DatasetInterval int                                 `json:"datasetInterval"`
	DatasetType     string                              `json:"datasetType"`
}

type HeartActivityIntradayDatasetValue struct {
	Time  string `json:"time"`
	Value int    `json:"value"`
}

// Day returns the date the export was requested for, if the response carries one.
func (r HeartRateResult) Day() (time.Time, bool) {
	for _, a := range r.Activities {
		if day, err := time.ParseInLocation("2006-01-02", a.DateTime, time.UTC); err == nil {
			return day, true
		}
	}
	return time.Time{}, false
}

// ReadIntraday decodes an intraday heart-rate response and returns its samples
// keyed by instant. Dataset times are placed on the day of the response, or on
// day when the response does not name one; loc is the zone of the dataset
// times.
func ReadIntraday(r io.Reader, day time.Time, loc *time.Location) (map[time.Time]float64, error) {
	var res HeartRateResult
	if err := json.NewDecoder(r).Decode(&res); err != nil {
		return nil, fmt.Errorf("error decoding intraday heart rate: %w", err)
	}
	if d, ok := res.Day(); ok {
		day = d
	}
	if day.IsZero() {
		return nil, fmt.Errorf("intraday heart rate has no date, a day is required")
	}

	samples := make(map[time.Time]float64, len(res.ActivitiesIntraDay.Dataset))
	for _, v := range res.ActivitiesIntraDay.Dataset {
		clock, err := time.Parse("15:04:05", v.Time)
		if err != nil {
			return nil, fmt.Errorf("error parsing dataset time %q: %w", v.Time, err)
		}
		stamp := time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), clock.Second(), 0, loc)
		samples[stamp.UTC()] = float64(v.Value)
	}
	return samples, nil
}
