package models

import (
	"encoding/json"
	"time"
)

// MessageType represents the type of live feed message
type MessageType string

const (
	MessageTypeSnapshot     MessageType = "snapshot"
	MessageTypeSensorData   MessageType = "sensor-data"
	MessageTypeDeviceStatus MessageType = "device-status"
)

// Message is the envelope pushed to dashboard clients over the live feed
type Message struct {
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage creates a new message with the given type and payload
func NewMessage(msgType MessageType, payload interface{}) (*Message, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Message{
		Type:      msgType,
		Payload:   payloadJSON,
		Timestamp: time.Now(),
	}, nil
}

// SnapshotMessage is the payload for MessageTypeSnapshot, sent once per new client
type SnapshotMessage struct {
	DeviceStatus *DeviceStatusRecord `json:"device_status"`
	Latest       *SensorRecord       `json:"latest_sensor_data"`
}

// UnmarshalPayload unmarshals the message payload into the provided struct
func (m *Message) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(m.Payload, v)
}
