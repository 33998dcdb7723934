package validation

import (
	"strings"
	"testing"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

// ValidationTestSuite is the test suite for validation package
type ValidationTestSuite struct {
	suite.Suite
	validator *validator.Validate
}

// SetupTest runs before each test
func (s *ValidationTestSuite) SetupTest() {
	s.validator = validator.New()
}

// TestValidationTestSuite runs the test suite
func TestValidationTestSuite(t *testing.T) {
	suite.Run(t, new(ValidationTestSuite))
}

// TestValidateStreamID tests the custom streamid validation tag
func (s *ValidationTestSuite) TestValidateStreamID() {
	err := Register(s.validator, "streamid", ValidateStreamID)
	s.Require().NoError(err)

	tests := []struct {
		name     string
		streamID string
		wantErr  bool
	}{
		{
			name:     "valid uuid",
			streamID: "609340fc-a5c6-4b11-b1d3-4dd1e5bc2ae6",
			wantErr:  false,
		},
		{
			name:     "valid base64",
			streamID: "4Wk1VvuyTme/yc0Zv+bBCg==",
			wantErr:  false,
		},
		{
			name:     "valid single character",
			streamID: "a",
			wantErr:  false,
		},
		{
			name:     "invalid - empty string",
			streamID: "",
			wantErr:  true,
		},
		{
			name:     "invalid - spaces",
			streamID: "stream 1",
			wantErr:  true,
		},
		{
			name:     "invalid - special characters (@)",
			streamID: "stream@1",
			wantErr:  true,
		},
		{
			name:     "invalid - too long (129 chars)",
			streamID: strings.Repeat("a", 129),
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			type TestStruct struct {
				StreamID string `validate:"streamid"`
			}

			err := s.validator.Struct(TestStruct{StreamID: tt.streamID})
			if tt.wantErr {
				s.Require().Error(err, "Expected validation error for streamID: %s", tt.streamID)
			} else {
				s.Require().NoError(err, "Expected no validation error for streamID: %s", tt.streamID)
			}
		})
	}
}

// TestValidateWSURL tests the custom wsurl validation tag
func (s *ValidationTestSuite) TestValidateWSURL() {
	err := Register(s.validator, "wsurl", ValidateWSURL)
	s.Require().NoError(err)

	type TestStruct struct {
		URL string `validate:"wsurl"`
	}

	s.NoError(s.validator.Struct(TestStruct{URL: "wss://rtms.example.com/signaling"}))
	s.NoError(s.validator.Struct(TestStruct{URL: "ws://127.0.0.1:9000"}))

	s.Error(s.validator.Struct(TestStruct{URL: "https://rtms.example.com"}))
	s.Error(s.validator.Struct(TestStruct{URL: "wss://"}))
	s.Error(s.validator.Struct(TestStruct{URL: "rtms.example.com"}))
	s.Error(s.validator.Struct(TestStruct{URL: ""}))
}

func (s *ValidationTestSuite) TestRegisterAndAlias() {
	s.Require().NoError(Register(s.validator, "exact", func(fl validator.FieldLevel) bool {
		return fl.Field().String() == "test"
	}))
	RegisterAlias(s.validator, "longname", "required,min=5")

	type req struct {
		A string `validate:"exact"`
		B string `validate:"longname"`
	}
	s.NoError(s.validator.Struct(req{A: "test", B: "hello"}))
	s.Error(s.validator.Struct(req{A: "nope", B: "hello"}))
	s.Error(s.validator.Struct(req{A: "test", B: "hi"}))
}

func (s *ValidationTestSuite) TestMustRegisterGin() {
	MustRegisterGin("alwaysfail", func(validator.FieldLevel) bool { return false })
	MustRegisterGinAlias("shortname", "required,max=3")

	type req struct {
		A string `binding:"alwaysfail"`
		B string `binding:"shortname"`
	}
	err := binding.Validator.ValidateStruct(&req{B: "abcd"})
	s.Require().Error(err)
	s.Len(FormatValidationError(err), 2)
}

func (s *ValidationTestSuite) TestFormatValidationError() {
	type req struct {
		StreamID string `validate:"required"`
		URL      string `validate:"required,url"`
	}

	formatted := FormatValidationError(s.validator.Struct(req{URL: "nope"}))
	s.Require().Len(formatted, 2)
	s.Equal("StreamID", formatted[0].Field)
	s.Equal("URL", formatted[1].Field)
	for _, e := range formatted {
		s.NotEmpty(e.Message)
	}

	s.Empty(FormatValidationError(nil))
	s.Empty(FormatValidationError(assert.AnError))
}

// CustomTagsTestSuite tests the aliases defined in custom_tag.go
type CustomTagsTestSuite struct {
	suite.Suite
	validator *validator.Validate
}

// SetupTest runs before each test
func (s *CustomTagsTestSuite) SetupTest() {
	s.validator = validator.New()
	s.Require().NoError(Register(s.validator, "streamid", ValidateStreamID))
	s.Require().NoError(Register(s.validator, "wsurl", ValidateWSURL))
	RegisterAlias(s.validator, "mediatype", "oneof=audio video sharescreen transcript chat all")
}

// TestCustomTagsTestSuite runs the custom tags test suite
func TestCustomTagsTestSuite(t *testing.T) {
	suite.Run(t, new(CustomTagsTestSuite))
}

// TestMediaTypeAlias tests the mediatype custom alias tag
func (s *CustomTagsTestSuite) TestMediaTypeAlias() {
	type TestStruct struct {
		Media []string `validate:"dive,mediatype"`
	}

	tests := []struct {
		name    string
		media   []string
		wantErr bool
	}{
		{
			name:    "valid - single",
			media:   []string{"audio"},
			wantErr: false,
		},
		{
			name:    "valid - several",
			media:   []string{"transcript", "chat", "sharescreen"},
			wantErr: false,
		},
		{
			name:    "valid - all",
			media:   []string{"all"},
			wantErr: false,
		},
		{
			name:    "invalid - unknown",
			media:   []string{"audio", "smell"},
			wantErr: true,
		},
		{
			name:    "invalid - case sensitive",
			media:   []string{"Audio"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			err := s.validator.Struct(TestStruct{Media: tt.media})
			if tt.wantErr {
				s.Require().Error(err)
			} else {
				s.Require().NoError(err)
			}
		})
	}
}

// TestMultipleCustomTags tests using multiple custom tags together
func (s *CustomTagsTestSuite) TestMultipleCustomTags() {
	type ComplexStruct struct {
		StreamID   string `validate:"streamid"`
		ServerURLs string `validate:"wsurl"`
		Media      string `validate:"mediatype"`
	}

	valid := ComplexStruct{
		StreamID:   "609340fc-a5c6-4b11-b1d3-4dd1e5bc2ae6",
		ServerURLs: "wss://rtms.example.com",
		Media:      "audio",
	}
	s.NoError(s.validator.Struct(valid))

	invalid := valid
	invalid.StreamID = "bad id"
	s.Require().Error(s.validator.Struct(invalid))

	invalid = valid
	invalid.ServerURLs = "http://rtms.example.com"
	s.Require().Error(s.validator.Struct(invalid))
}
