package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/JonMunkholm/filecleaner/internal/apperror"
	"github.com/JonMunkholm/filecleaner/internal/core"
	"github.com/JonMunkholm/filecleaner/internal/tabular"
)

// maxRequestBody bounds the JSON request body.
const maxRequestBody = 1 << 20

// fileRequest is the body accepted by the process and preview endpoints.
type fileRequest struct {
	FileURL  string `json:"file_url" validate:"required,http_url"`
	Filename string `json:"filename" validate:"omitempty,tabular_ext"`
}

func (f fileRequest) toCore() core.Request {
	return core.Request{FileURL: f.FileURL, Filename: f.Filename}
}

// newValidator returns a validator that reports JSON field names and knows
// the tabular_ext rule.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	// Registration only fails on an empty tag or nil func.
	_ = v.RegisterValidation("tabular_ext", func(fl validator.FieldLevel) bool {
		_, err := tabular.ParseFormat(fl.Field().String())
		return err == nil
	})
	return v
}

// decodeFileRequest reads and validates a fileRequest body.
func (s *Server) decodeFileRequest(w http.ResponseWriter, r *http.Request) (fileRequest, error) {
	var req fileRequest

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, apperror.Wrap(apperror.InvalidRequest, "decode request", err)
	}
	req.FileURL = strings.TrimSpace(req.FileURL)
	req.Filename = strings.TrimSpace(req.Filename)

	if err := s.validate.Struct(req); err != nil {
		return req, validationError(req, err)
	}
	return req, nil
}

// validationError converts the first validator failure into an apperror.
// A bad extension is reported as UnsupportedFormat, anything else as
// InvalidRequest.
func validationError(req fileRequest, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperror.Wrap(apperror.InvalidRequest, "validate request", err)
	}

	fe := verrs[0]
	switch fe.Tag() {
	case "tabular_ext":
		_, perr := tabular.ParseFormat(req.Filename)
		return perr
	case "required":
		return apperror.New(apperror.InvalidRequest, "validate request", "%s is required", fe.Field())
	case "http_url":
		return apperror.New(apperror.InvalidRequest, "validate request", "%s must be an http or https URL", fe.Field())
	}
	return apperror.New(apperror.InvalidRequest, "validate request", "%s failed %s", fe.Field(), fe.Tag())
}
