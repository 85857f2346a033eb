package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1 << 20

var (
	paymentIntentRe = regexp.MustCompile(`^pi_[A-Za-z0-9_]+$`)
	paymentMethodRe = regexp.MustCompile(`^pm_[A-Za-z0-9_]+$`)

	validate = newValidator()
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("payment_intent", func(fl validator.FieldLevel) bool {
		return paymentIntentRe.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("payment_method", func(fl validator.FieldLevel) bool {
		return paymentMethodRe.MatchString(fl.Field().String())
	})
	return v
}

// decode reads a JSON body into v, rejecting unknown fields. An empty body
// leaves v at its zero value when allowEmpty is set.
func decode(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) && allowEmpty {
			return nil
		}
		return fmt.Errorf("invalid json: %w", err)
	}
	if dec.More() {
		return errors.New("invalid json: trailing data")
	}
	return nil
}
