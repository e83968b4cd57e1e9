package store

import (
	"encoding/json"
	"errors"
	"time"
)

// ProcessedRecord is one row of the processed_agent_data table. The ID
// is assigned by the store on creation; user_id is the sole routing key
// for fan-out.
type ProcessedRecord struct {
	ID        int64     `json:"id"`
	RoadState string    `json:"road_state"`
	UserID    int64     `json:"user_id"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Z         float64   `json:"z"`
	Longitude float64   `json:"longitude"`
	Latitude  float64   `json:"latitude"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrInvalidTimestamp is returned when a submitted timestamp is not
// valid ISO 8601 text.
var ErrInvalidTimestamp = errors.New("invalid timestamp format, expected ISO 8601 (YYYY-MM-DDTHH:MM:SSZ)")

// Accepted on input: RFC 3339, then the zone-less form agents send when
// they omit the offset.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
}

// Timestamp wraps time.Time to accept ISO 8601 text on the wire.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return ErrInvalidTimestamp
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return ErrInvalidTimestamp
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Format(time.RFC3339))
}

// AccelerometerData carries one accelerometer sample.
type AccelerometerData struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// GpsData carries one GPS fix.
type GpsData struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// AgentData is the nested agent portion of a submission.
type AgentData struct {
	UserID        *int64             `json:"user_id"`
	Accelerometer *AccelerometerData `json:"accelerometer"`
	GPS           *GpsData           `json:"gps"`
	Timestamp     *Timestamp         `json:"timestamp"`
}

// RecordSubmission is the wire shape accepted on create and update.
type RecordSubmission struct {
	RoadState string     `json:"road_state"`
	AgentData *AgentData `json:"agent_data"`
}

// ToRecord converts a wire submission into a row, validating required
// fields once at the boundary. The returned record has no ID yet.
func (s *RecordSubmission) ToRecord() (*ProcessedRecord, error) {
	if s.AgentData == nil {
		return nil, errors.New("agent_data is required")
	}
	if s.AgentData.UserID == nil {
		return nil, errors.New("agent_data.user_id is required")
	}
	if s.AgentData.Accelerometer == nil {
		return nil, errors.New("agent_data.accelerometer is required")
	}
	if s.AgentData.GPS == nil {
		return nil, errors.New("agent_data.gps is required")
	}
	if s.AgentData.Timestamp == nil {
		return nil, errors.New("agent_data.timestamp is required")
	}
	return &ProcessedRecord{
		RoadState: s.RoadState,
		UserID:    *s.AgentData.UserID,
		X:         s.AgentData.Accelerometer.X,
		Y:         s.AgentData.Accelerometer.Y,
		Z:         s.AgentData.Accelerometer.Z,
		Latitude:  s.AgentData.GPS.Latitude,
		Longitude: s.AgentData.GPS.Longitude,
		Timestamp: s.AgentData.Timestamp.Time,
	}, nil
}
