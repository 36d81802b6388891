// Package http serves the fintrack JSON API.
//
// This file implements the helpers handlers use to read the owner, path
// variables, query parameters and JSON bodies of a request.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"fintrack/internal/core"

	"github.com/gorilla/mux"
)

const (
	// HeaderUserID names the owner of the request.
	HeaderUserID = "X-User-ID"

	maxBodyBytes = 1 << 20
)

var (
	errOwnerMismatch = errors.New("does not match the request owner")
	errNotPositive   = errors.New("must be a positive integer")
)

// ownerFrom returns the request owner from the X-User-ID header, falling
// back to the user_id query parameter.
func ownerFrom(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get(HeaderUserID)); v != "" {
		return v
	}
	return strings.TrimSpace(r.URL.Query().Get("user_id"))
}

// requireOwnerFrom is ownerFrom that fails with a validation error when no
// owner was sent.
func requireOwnerFrom(r *http.Request) (string, error) {
	owner := ownerFrom(r)
	if owner == "" {
		return "", core.Invalid("user_id", core.ErrMissingOwner)
	}
	return owner, nil
}

func pathID(r *http.Request) string {
	return mux.Vars(r)["id"]
}

// parsePeriod reads year and month from the query. Missing values default
// to def; present but malformed values are a validation error.
func parsePeriod(query url.Values, def core.Period) (core.Period, error) {
	p := def
	if v := strings.TrimSpace(query.Get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			return core.Period{}, core.Invalid("year", core.ErrInvalidYear)
		}
		p.Year = y
	}
	if v := strings.TrimSpace(query.Get("month")); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil {
			return core.Period{}, core.Invalid("month", core.ErrInvalidMonth)
		}
		p.Month = m
	}
	if err := p.Validate(); err != nil {
		return core.Period{}, core.Invalid("period", err)
	}
	return p, nil
}

// parseDateParam parses an optional YYYY-MM-DD value. An empty value yields
// the zero date.
func parseDateParam(field, v string) (core.Date, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return core.Date{}, nil
	}
	d, err := core.ParseDate(v)
	if err != nil {
		return core.Date{}, core.Invalid(field, err)
	}
	return d, nil
}

// optionalDate parses a pointer date field of a patch body.
func optionalDate(field string, v *string) (*core.Date, error) {
	if v == nil {
		return nil, nil
	}
	d, err := parseDateParam(field, *v)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// decodeJSON decodes a JSON body into dst, rejecting unknown fields and
// trailing data.
func decodeJSON(r *http.Request, dst any) error {
	return decode(r, dst, false)
}

// decodeOptionalJSON is decodeJSON for endpoints whose body may be empty.
func decodeOptionalJSON(r *http.Request, dst any) error {
	return decode(r, dst, true)
}

func decode(r *http.Request, dst any, optional bool) error {
	if r.Body == nil || r.Body == http.NoBody {
		if optional {
			return nil
		}
		return core.Invalid("body", core.ErrMissingField)
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			if optional {
				return nil
			}
			return core.Invalid("body", core.ErrMissingField)
		}
		return core.Invalid("body", fmt.Errorf("malformed JSON: %w", err))
	}
	if dec.More() {
		return core.Invalid("body", errors.New("unexpected data after JSON object"))
	}
	return nil
}

// trimmed returns a trimmed copy of an optional string field.
func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(*v)
	return &s
}
