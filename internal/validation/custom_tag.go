package validation

import (
	"net/url"
	"regexp"

	"github.com/go-playground/validator/v10"
)

var streamIDRegex = regexp.MustCompile(`^[A-Za-z0-9_=+/.-]{1,128}$`)

func init() {
	MustRegisterGin("streamid", ValidateStreamID)
	MustRegisterGin("wsurl", ValidateWSURL)
	MustRegisterGinAlias("mediatype", "oneof=audio video sharescreen transcript chat all")
}

// ValidateStreamID accepts 1-128 characters of the base64 and uuid alphabets.
func ValidateStreamID(fl validator.FieldLevel) bool {
	return streamIDRegex.MatchString(fl.Field().String())
}

// ValidateWSURL accepts absolute ws:// and wss:// URLs.
func ValidateWSURL(fl validator.FieldLevel) bool {
	u, err := url.Parse(fl.Field().String())
	if err != nil {
		return false
	}
	return (u.Scheme == "ws" || u.Scheme == "wss") && u.Host != ""
}
