package strava

import "time"

// Activity represents a Strava activity from the API
type Activity struct {
	ID                 int64     `json:"id"`
	Athlete            Athlete   `json:"athlete"`
	Name               string    `json:"name"`
	Type               string    `json:"type"`
	SportType          string    `json:"sport_type"`
	StartDate          time.Time `json:"start_date"`
	Distance           float64   `json:"distance"`             // meters
	MovingTime         int       `json:"moving_time"`          // seconds
	ElapsedTime        int       `json:"elapsed_time"`         // seconds
	TotalElevationGain float64   `json:"total_elevation_gain"` // meters
	HasHeartrate       bool      `json:"has_heartrate"`
}

// IsRun reports whether the activity is any kind of run.
func (a Activity) IsRun() bool {
	switch a.SportType {
	case "Run", "TrailRun", "VirtualRun":
		return true
	}
	return a.Type == "Run"
}

// Athlete represents a Strava athlete (minimal info in activity response)
type Athlete struct {
	ID int64 `json:"id"`
}

// Streams represents activity stream data from the API
// Strava returns streams keyed by type when key_by_type=true
type Streams struct {
	Time           *StreamData[float64] `json:"time"`
	Distance       *StreamData[float64] `json:"distance"`
	Altitude       *StreamData[float64] `json:"altitude"`
	VelocitySmooth *StreamData[float64] `json:"velocity_smooth"`
	Heartrate      *StreamData[float64] `json:"heartrate"`
	Temp           *StreamData[float64] `json:"temp"`
}

// StreamData represents a single stream type
type StreamData[T any] struct {
	Data         []T    `json:"data"`
	SeriesType   string `json:"series_type"`
	OriginalSize int    `json:"original_size"`
	Resolution   string `json:"resolution"`
}

// Len returns the length of the stream, or 0 if nil
func (s *Streams) Len() int {
	if s == nil || s.Time == nil {
		return 0
	}
	return len(s.Time.Data)
}

// at returns the i-th value of a stream, nil when the stream is absent or short.
func at(s *StreamData[float64], i int) *float64 {
	if s == nil || i >= len(s.Data) {
		return nil
	}
	v := s.Data[i]
	return &v
}
