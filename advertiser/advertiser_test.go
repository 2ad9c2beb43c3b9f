package advertiser_test

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	suitelib "github.com/stretchr/testify/suite"

	"github.com/srg/beacond/advertiser"
)

type fakeRadio struct {
	advertised [][]byte
	params     []advertiser.Params
	stops      int
	disables   int

	advertiseErr error
	stopErr      error
	disableErr   error
}

func (r *fakeRadio) Advertise(payload []byte, p advertiser.Params) error {
	if r.advertiseErr != nil {
		return r.advertiseErr
	}
	r.advertised = append(r.advertised, append([]byte(nil), payload...))
	r.params = append(r.params, p)
	return nil
}

func (r *fakeRadio) Stop() error {
	if r.stopErr != nil {
		return r.stopErr
	}
	r.stops++
	return nil
}

func (r *fakeRadio) Disable() error {
	r.disables++
	return r.disableErr
}

type AdvertiserTestSuite struct {
	suitelib.Suite

	logger *logrus.Logger
	radio  *fakeRadio
	params advertiser.Params
}

func (suite *AdvertiserTestSuite) SetupTest() {
	suite.logger = logrus.New()
	suite.logger.SetOutput(io.Discard)
	suite.radio = &fakeRadio{}
	suite.params = advertiser.Params{
		IntervalMin: 2 * time.Second,
		IntervalMax: 2500 * time.Millisecond,
		ServiceUUID: 0xFC96,
	}
}

func (suite *AdvertiserTestSuite) newSession() *advertiser.Session {
	s, err := advertiser.NewSession(suite.radio, suite.params, suite.logger)
	suite.Require().NoError(err)
	return s
}

func (suite *AdvertiserTestSuite) TestParamsValidate() {
	tests := []struct {
		name    string
		min     time.Duration
		max     time.Duration
		wantErr bool
	}{
		{"typical beacon intervals", 2 * time.Second, 2500 * time.Millisecond, false},
		{"link-layer minimum", 20 * time.Millisecond, 20 * time.Millisecond, false},
		{"link-layer maximum", 10240 * time.Millisecond, 10240 * time.Millisecond, false},
		{"min below floor", 19 * time.Millisecond, time.Second, true},
		{"max above ceiling", time.Second, 10241 * time.Millisecond, true},
		{"min above max", 3 * time.Second, 2 * time.Second, true},
		{"zero intervals", 0, 0, true},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			p := advertiser.Params{IntervalMin: tt.min, IntervalMax: tt.max}
			err := p.Validate()
			if tt.wantErr {
				suite.Error(err)
			} else {
				suite.NoError(err)
			}
		})
	}
}

func (suite *AdvertiserTestSuite) TestIntervalTickConversion() {
	p := advertiser.Params{
		IntervalMin: 2 * time.Second,
		IntervalMax: 2500 * time.Millisecond,
	}

	// 0.625 ms per tick: 2 s -> 3200, 2.5 s -> 4000.
	suite.Equal(uint16(3200), p.IntervalMinTicks())
	suite.Equal(uint16(4000), p.IntervalMaxTicks())
}

func (suite *AdvertiserTestSuite) TestNewSessionRejectsBadParams() {
	suite.params.IntervalMin = 0
	_, err := advertiser.NewSession(suite.radio, suite.params, suite.logger)
	suite.Error(err)
}

func (suite *AdvertiserTestSuite) TestStartStopRoundTrip() {
	session := suite.newSession()
	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF}

	suite.NoError(session.Start(payload))
	suite.True(session.Active())
	suite.Require().Len(suite.radio.advertised, 1)
	suite.Equal(payload, suite.radio.advertised[0])
	suite.Equal(suite.params, suite.radio.params[0])

	suite.NoError(session.Stop())
	suite.False(session.Active())
	suite.Equal(1, suite.radio.stops)
}

func (suite *AdvertiserTestSuite) TestDoubleStartFails() {
	session := suite.newSession()
	suite.NoError(session.Start([]byte{0x01}))

	err := session.Start([]byte{0x02})
	suite.ErrorIs(err, advertiser.ErrAlreadyAdvertising)

	// The radio never saw the second payload.
	suite.Len(suite.radio.advertised, 1)
}

func (suite *AdvertiserTestSuite) TestStopWhileInactiveFails() {
	session := suite.newSession()

	suite.ErrorIs(session.Stop(), advertiser.ErrNotAdvertising)
	suite.Equal(0, suite.radio.stops)
}

func (suite *AdvertiserTestSuite) TestPayloadBounds() {
	session := suite.newSession()

	suite.ErrorIs(session.Start(nil), advertiser.ErrEmptyPayload)

	oversized := make([]byte, advertiser.MaxServiceData+1)
	suite.ErrorIs(session.Start(oversized), advertiser.ErrPayloadTooLarge)

	// Exactly at the limit is fine.
	suite.NoError(session.Start(make([]byte, advertiser.MaxServiceData)))
}

func (suite *AdvertiserTestSuite) TestRadioFailuresAreWrapped() {
	hciDown := errors.New("hci transport closed")
	suite.radio.advertiseErr = hciDown

	session := suite.newSession()
	err := session.Start([]byte{0x01})
	suite.ErrorIs(err, hciDown)
	suite.False(session.Active())

	suite.radio.advertiseErr = nil
	suite.radio.stopErr = hciDown
	suite.NoError(session.Start([]byte{0x01}))
	suite.ErrorIs(session.Stop(), hciDown)
}

func (suite *AdvertiserTestSuite) TestDisableClearsActive() {
	session := suite.newSession()
	suite.NoError(session.Start([]byte{0x01}))

	suite.NoError(session.Disable())
	suite.False(session.Active())
	suite.Equal(1, suite.radio.disables)

	// A stop after disable is a state error, not a radio call.
	suite.ErrorIs(session.Stop(), advertiser.ErrNotAdvertising)
}

func (suite *AdvertiserTestSuite) TestSessionErrorMatching() {
	err := &advertiser.SessionError{State: advertiser.AlreadyAdvertising, Msg: "second start"}

	suite.ErrorIs(err, advertiser.ErrAlreadyAdvertising)
	suite.NotErrorIs(err, advertiser.ErrNotAdvertising)
	suite.Contains(err.Error(), "already_advertising")
	suite.Contains(err.Error(), "second start")
}

// TestAdvertiserTestSuite runs the test suite using testify/suite
func TestAdvertiserTestSuite(t *testing.T) {
	suitelib.Run(t, new(AdvertiserTestSuite))
}
