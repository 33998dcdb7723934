package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/imtaco/rtms-ingest/internal/log"
)

type RetryTestSuite struct {
	suite.Suite
	r Retry
}

func TestRetrySuite(t *testing.T) {
	suite.Run(t, new(RetryTestSuite))
}

func (s *RetryTestSuite) SetupTest() {
	s.r = New(log.NewNop(), time.Millisecond, 5*time.Millisecond, time.Second)
}

func (s *RetryTestSuite) TestSucceedsAfterFailures() {
	calls := 0
	err := s.r.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	s.NoError(err)
	s.Equal(3, calls)
}

func (s *RetryTestSuite) TestPermanentStopsImmediately() {
	calls := 0
	boom := errors.New("boom")
	err := s.r.Do(context.Background(), func() error {
		calls++
		return Permanent(boom)
	})
	s.ErrorIs(err, boom)
	s.Equal(1, calls)
}

func (s *RetryTestSuite) TestCanceledContext() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.r.Do(ctx, func() error { return errors.New("down") })
	s.Error(err)
}

func (s *RetryTestSuite) TestConstant() {
	b := Constant(time.Second, 2)
	s.Equal(time.Second, b.NextBackOff())
	s.Equal(time.Second, b.NextBackOff())
	s.Equal(Stop, b.NextBackOff())

	unlimited := Constant(time.Second, 0)
	for i := 0; i < 10; i++ {
		s.Equal(time.Second, unlimited.NextBackOff())
	}
}
