package shared

import "time"

// Clock abstracts wall-clock access so services and tests share one time
// source. All production times are UTC.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// RealClock reads the system clock.
type RealClock struct{}

// NewRealClock returns the production clock.
func NewRealClock() Clock {
	return &RealClock{}
}

// Now returns the current system time in UTC.
func (r *RealClock) Now() time.Time {
	return time.Now().UTC()
}

// Sleep blocks for the given duration.
func (r *RealClock) Sleep(d time.Duration) {
	time.Sleep(d)
}

// MockClock is a manually advanced clock for tests. Sleep advances the
// clock instead of blocking so timer-driven code runs instantly.
type MockClock struct {
	CurrentTime time.Time
}

// NewMockClock creates a MockClock starting at startTime, or at the
// system time when startTime is zero.
func NewMockClock(startTime time.Time) *MockClock {
	if startTime.IsZero() {
		startTime = time.Now()
	}
	return &MockClock{CurrentTime: startTime}
}

// Now returns the mock's current time.
func (m *MockClock) Now() time.Time {
	return m.CurrentTime
}

// Sleep advances the mock clock without blocking.
func (m *MockClock) Sleep(d time.Duration) {
	m.CurrentTime = m.CurrentTime.Add(d)
}

// Advance moves the mock clock forward by d.
func (m *MockClock) Advance(d time.Duration) {
	m.CurrentTime = m.CurrentTime.Add(d)
}

// SetTime pins the mock clock to t.
func (m *MockClock) SetTime(t time.Time) {
	m.CurrentTime = t
}
