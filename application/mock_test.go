package application

import (
	"time"

	"github.com/stretchr/testify/mock"
)

type MockSession struct {
	mock.Mock
}

func (m *MockSession) Connect() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockSession) Publish(topic string, payload []byte, qos QoS, retain bool) error {
	args := m.Called(topic, payload, qos, retain)
	return args.Error(0)
}

func (m *MockSession) Subscribe(topic string, qos QoS, handler MessageHandler) error {
	args := m.Called(topic, qos, handler)
	return args.Error(0)
}

func (m *MockSession) ProcessIncoming(timeout time.Duration) error {
	args := m.Called(timeout)
	return args.Error(0)
}

func (m *MockSession) Disconnect() {
	m.Called()
}

func (m *MockSession) MarkReconnecting() {
	m.Called()
}

func (m *MockSession) State() SessionState {
	args := m.Called()
	return args.Get(0).(SessionState)
}

func (m *MockSession) IsConnected() bool {
	args := m.Called()
	return args.Bool(0)
}

var _ Session = &MockSession{}

type stubBattery struct {
	reading BatteryReading
	err     error
}

func (s *stubBattery) Read() (BatteryReading, error) {
	return s.reading, s.err
}

type stubTemperature struct {
	reading TemperatureReading
	err     error
}

func (s *stubTemperature) Read() (TemperatureReading, error) {
	return s.reading, s.err
}

type stubWifi struct {
	reading WifiReading
	err     error
}

func (s *stubWifi) Read() (WifiReading, error) {
	return s.reading, s.err
}
