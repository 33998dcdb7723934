package validation

import (
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

// Error is one field failure in an HTTP 400 body.
type Error struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// FormatValidationError flattens validator errors. Other errors yield nil.
func FormatValidationError(err error) []Error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make([]Error, 0, len(verrs))
	for _, e := range verrs {
		out = append(out, Error{Field: e.Field(), Message: e.Error()})
	}
	return out
}

func ginEngine() (*validator.Validate, error) {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		return v, nil
	}
	return nil, errors.New("validator engine is not of type *validator.Validate")
}

func Register(v *validator.Validate, tag string, fn validator.Func) error {
	return v.RegisterValidation(tag, fn)
}

func RegisterAlias(v *validator.Validate, alias, tags string) {
	v.RegisterAlias(alias, tags)
}

// MustRegisterGin registers a tag on gin's default validator.
func MustRegisterGin(tag string, fn validator.Func) {
	v, err := ginEngine()
	if err == nil {
		err = Register(v, tag, fn)
	}
	if err != nil {
		panic(err)
	}
}

func MustRegisterGinAlias(alias, tags string) {
	v, err := ginEngine()
	if err != nil {
		panic(err)
	}
	RegisterAlias(v, alias, tags)
}
