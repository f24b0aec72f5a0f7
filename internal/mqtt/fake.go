package mqtt

import (
	"sync"

	"github.com/afroash/climate-node/internal/models"
)

// Message is one publish captured by FakePublisher
type Message struct {
	Topic    string
	QoS      byte
	Retained bool
	Payload  []byte
}

// FakePublisher records publishes for test assertions
type FakePublisher struct {
	Topics Topics

	// PublishError, if set, is returned by every publish
	PublishError error

	mu       sync.Mutex
	messages []Message
	closed   bool
}

// Compile-time interface check
var _ Publisher = (*FakePublisher)(nil)

// NewFakePublisher creates a FakePublisher for topicPrefix
func NewFakePublisher(topicPrefix string) *FakePublisher {
	return &FakePublisher{Topics: NewTopics(topicPrefix)}
}

func (f *FakePublisher) PublishSensorData(record *models.SensorRecord) error {
	payload, err := FormatSensorData(record)
	if err != nil {
		return err
	}
	return f.record(Message{Topic: f.Topics.SensorData, Payload: payload})
}

func (f *FakePublisher) PublishDeviceStatus(record *models.DeviceStatusRecord) error {
	payload, err := FormatDeviceStatus(record)
	if err != nil {
		return err
	}
	return f.record(Message{Topic: f.Topics.DeviceStatus, QoS: 1, Retained: true, Payload: payload})
}

func (f *FakePublisher) record(msg Message) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg)
	return nil
}

// Messages returns everything published so far
func (f *FakePublisher) Messages() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.messages...)
}

// Close marks the publisher as closed
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Closed reports whether Close was called
func (f *FakePublisher) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
