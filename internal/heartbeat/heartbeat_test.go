package heartbeat_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	suitelib "github.com/stretchr/testify/suite"

	"github.com/srg/beacond/internal/heartbeat"
)

type fakeLED struct {
	mu      sync.Mutex
	states  []bool
	failAll bool
}

func (l *fakeLED) Set(on bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failAll {
		return errors.New("led gone")
	}
	l.states = append(l.states, on)
	return nil
}

func (l *fakeLED) snapshot() []bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]bool(nil), l.states...)
}

func (l *fakeLED) onCount() int {
	n := 0
	for _, s := range l.snapshot() {
		if s {
			n++
		}
	}
	return n
}

type HeartbeatTestSuite struct {
	suitelib.Suite

	logger *logrus.Logger
	led    *fakeLED
}

func (suite *HeartbeatTestSuite) SetupTest() {
	suite.logger = logrus.New()
	suite.logger.SetOutput(io.Discard)
	suite.led = &fakeLED{}
}

func (suite *HeartbeatTestSuite) TestNewBlinkerValidation() {
	tests := []struct {
		name    string
		period  time.Duration
		onTime  time.Duration
		wantErr bool
	}{
		{"typical blink", 2 * time.Second, 100 * time.Millisecond, false},
		{"zero period", 0, 100 * time.Millisecond, true},
		{"zero on-time", 2 * time.Second, 0, true},
		{"on-time equals period", time.Second, time.Second, true},
		{"on-time exceeds period", time.Second, 2 * time.Second, true},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			_, err := heartbeat.NewBlinker(suite.led, tt.period, tt.onTime, suite.logger)
			if tt.wantErr {
				suite.Error(err)
			} else {
				suite.NoError(err)
			}
		})
	}
}

func (suite *HeartbeatTestSuite) TestBlinkerToggles() {
	blinker, err := heartbeat.NewBlinker(suite.led, 30*time.Millisecond, 10*time.Millisecond, suite.logger)
	suite.Require().NoError(err)

	blinker.Start(context.Background())

	deadline := time.Now().Add(time.Second)
	for suite.led.onCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	blinker.Stop()

	suite.GreaterOrEqual(suite.led.onCount(), 2, "expected at least two on phases")

	// The LED always ends up off.
	states := suite.led.snapshot()
	suite.Require().NotEmpty(states)
	suite.False(states[len(states)-1])
}

func (suite *HeartbeatTestSuite) TestBlinkerDegradesWhenLEDUnavailable() {
	suite.led.failAll = true

	blinker, err := heartbeat.NewBlinker(suite.led, 20*time.Millisecond, 5*time.Millisecond, suite.logger)
	suite.Require().NoError(err)

	// The failed probe must not panic or spin, and Stop stays safe.
	blinker.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	blinker.Stop()

	suite.Empty(suite.led.snapshot())
}

func (suite *HeartbeatTestSuite) TestStopIsIdempotent() {
	blinker, err := heartbeat.NewBlinker(suite.led, 20*time.Millisecond, 5*time.Millisecond, suite.logger)
	suite.Require().NoError(err)

	blinker.Start(context.Background())
	blinker.Stop()
	blinker.Stop()

	// Never-started blinkers can be stopped too.
	idle, err := heartbeat.NewBlinker(suite.led, 20*time.Millisecond, 5*time.Millisecond, suite.logger)
	suite.Require().NoError(err)
	idle.Stop()
}

func (suite *HeartbeatTestSuite) TestNoopLED() {
	led := heartbeat.NoopLED()
	suite.NoError(led.Set(true))
	suite.NoError(led.Set(false))
}

// TestHeartbeatTestSuite runs the test suite using testify/suite
func TestHeartbeatTestSuite(t *testing.T) {
	suitelib.Run(t, new(HeartbeatTestSuite))
}
