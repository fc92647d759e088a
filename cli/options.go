package cli

import (
	"errors"
	"reflect"
	"time"

	"github.com/alecthomas/kong"

	"go.hackfix.me/switchboard/xtime"
)

// ExpirationMapper decodes a token expiration into a time.Time. See
// parseExpiration for the accepted formats.
type ExpirationMapper struct {
	timeNow func() time.Time
}

var _ kong.Mapper = (*ExpirationMapper)(nil)

// Decode implements the kong.Mapper interface.
func (em *ExpirationMapper) Decode(kctx *kong.DecodeContext, target reflect.Value) error {
	var value string
	if err := kctx.Scan.PopValueInto("expiration", &value); err != nil {
		return err
	}

	exp, err := parseExpiration(value, em.timeNow().UTC())
	if err != nil {
		return err
	}
	target.Set(reflect.ValueOf(exp))

	return nil
}

// parseExpiration accepts an RFC3339 timestamp, a date that expires at its
// start in UTC, or a duration relative to now. The result must be after now.
func parseExpiration(value string, now time.Time) (time.Time, error) {
	var exp time.Time
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		exp = t
	} else if t, err = time.Parse(time.DateOnly, value); err == nil {
		exp = t
	} else {
		dur, derr := xtime.ParseDuration(value)
		if derr != nil {
			return time.Time{}, derr //nolint:wrapcheck // Shown as is by kong.
		}
		exp = now.Add(dur)
	}

	if !exp.After(now) {
		return time.Time{}, errors.New("expiration time is in the past")
	}

	return exp, nil
}
