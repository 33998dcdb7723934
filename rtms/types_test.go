package rtms

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

type TypesTestSuite struct {
	suite.Suite
}

func TestTypesSuite(t *testing.T) {
	suite.Run(t, new(TypesTestSuite))
}

func (s *TypesTestSuite) TestParseMediaTypes() {
	m, err := ParseMediaTypes([]string{"audio", " Transcript "})
	s.Require().NoError(err)
	s.Equal(MediaAudio|MediaTranscript, m)

	m, err = ParseMediaTypes([]string{"all"})
	s.Require().NoError(err)
	s.Equal(mediaEach, m)

	m, err = ParseMediaTypes(nil)
	s.Require().NoError(err)
	s.Equal(mediaEach, m)

	_, err = ParseMediaTypes([]string{"audio", "smell"})
	s.Error(err)
}

func (s *TypesTestSuite) TestMediaTypeBits() {
	s.Equal([]MediaType{MediaAudio, MediaChat}, (MediaChat | MediaAudio).Split())
	s.Len(MediaAll.Split(), 5)
	s.True(MediaAll.Has(MediaVideo))
	s.False(MediaAudio.Has(MediaVideo))

	s.Equal("all", MediaAll.String())
	s.Equal("audio|sharescreen", (MediaAudio | MediaShareScreen).String())
	s.Equal("media(64)", MediaType(64).String())

	s.True(MediaAudio.Continuous())
	s.False(MediaVideo.Continuous())
	s.True(MediaShareScreen.Binary())
	s.False(MediaChat.Binary())
}

func (s *TypesTestSuite) TestConnectionStateTransitions() {
	s.True(StateConnecting.CanTransition(StateAuthenticated))
	s.True(StateReady.CanTransition(StateStreaming))
	s.False(StateConnecting.CanTransition(StateReady))
	s.False(StateStreaming.CanTransition(StateReady))

	for _, st := range []ConnectionState{StateConnecting, StateAuthenticated, StateReady, StateStreaming} {
		s.True(st.CanTransition(StateClosed), st.String())
	}
	s.False(StateClosed.CanTransition(StateClosed))
	s.False(StateClosed.CanTransition(StateConnecting))
}

func (s *TypesTestSuite) TestFrameSpeaker() {
	s.False((&Frame{}).SpeakerKnown())
	s.True((&Frame{UserID: "7"}).SpeakerKnown())
	s.Equal("m1/s1", Identity{MeetingUUID: "m1", StreamID: "s1"}.String())
}
