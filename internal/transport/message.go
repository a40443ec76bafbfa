// Package transport carries the agent-to-server wire protocols: line-JSON
// messages over TCP for detections and control, and JPEG frames over UDP for
// video. Console endpoints reuse the TCP line server with their own text
// protocol parsed by the dispatch layer.
package transport

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message is one line-JSON envelope on the event channel.
type Message struct {
	Type       string          `json:"type"`
	Event      string          `json:"event,omitempty"`
	Command    string          `json:"command,omitempty"`
	Result     string          `json:"result,omitempty"`
	CameraID   string          `json:"camera_id,omitempty"`
	Detections []WireDetection `json:"detections,omitempty"`
	Matrix     [][]float64     `json:"matrix,omitempty"`
	Scale      float64         `json:"scale,omitempty"`
	Time       string          `json:"time,omitempty"`
}

// WireDetection is one detection inside an object_detected event. ObjectID
// is a decimal string (millisecond instant concatenated with the detector
// track number, wider than an int64 guarantees). RescueLevel is a decimal
// string; "0" means no rescue attention needed.
type WireDetection struct {
	ObjectID    string  `json:"object_id"`
	Class       string  `json:"class"`
	BBox        [4]int  `json:"bbox"`
	Confidence  float64 `json:"confidence"`
	ImgID       int64   `json:"img_id"`
	RescueLevel string  `json:"rescue_level,omitempty"`
}

const (
	TypeCommand   = "command"
	TypeResponse  = "response"
	TypeEvent     = "event"
	TypeHeartbeat = "heartbeat"

	EventObjectDetected   = "object_detected"
	EventMapCalibration   = "map_calibration"
	EventDetectorDegraded = "detector_degraded"

	// Bird subsystem proposals arrive as events carrying the proposed level
	// in the result field.
	EventBirdRiskChanged = "BR_CHANGED"

	CmdSetModeObject = "set_mode_object"
	CmdSetModeMap    = "set_mode_map"

	// Pilot query commands and the availability answers.
	CmdBirdRiskInquiry = "BR_INQ"
	CmdRunwayAStatus   = "RWY_A_STATUS"
	CmdRunwayBStatus   = "RWY_B_STATUS"
	CmdRunwayAvail     = "RWY_AVAIL_INQ"

	ResultOK    = "ok"
	ResultError = "error"
)

// NewEvent stamps an event envelope with the camera and wall-clock time.
func NewEvent(event, cameraID string, at time.Time) Message {
	return Message{
		Type:     TypeEvent,
		Event:    event,
		CameraID: cameraID,
		Time:     at.UTC().Format(time.RFC3339Nano),
	}
}

// EncodeLine marshals a message as one newline-terminated JSON line.
func EncodeLine(m Message) ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return append(b, '\n'), nil
}

// DecodeLine parses one line (without requiring the trailing newline).
func DecodeLine(line []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(line, &m); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	if m.Type == "" {
		return Message{}, fmt.Errorf("decode message: missing type")
	}
	return m, nil
}
