package errcode

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodesAreStableStrings(t *testing.T) {
	cases := map[string]Code{
		"ok":               OK,
		"invalid_params":   InvalidParams,
		"not_started":      NotStarted,
		"closed":           Closed,
		"timeout":          Timeout,
		"unknown_chip":     UnknownChip,
		"unknown_pin":      UnknownPin,
		"pin_in_use":       PinInUse,
		"wrong_mode":       WrongMode,
		"request_rejected": Rejected,
		"error":            Error,
	}
	for want, c := range cases {
		assert.Equal(t, want, c.Error())
	}
}

func TestOfUnwrapsChains(t *testing.T) {
	cause := errors.New("device busy")
	err := fmt.Errorf("register pin 5: %w", Wrap(PinInUse, "request_input", cause))

	assert.Equal(t, PinInUse, Of(err))
	assert.ErrorIs(t, err, PinInUse)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "register pin 5: request_input: pin_in_use: device busy", err.Error())

	assert.Equal(t, OK, Of(nil))
	assert.Equal(t, Timeout, Of(fmt.Errorf("x: %w", Timeout)))
	assert.Equal(t, Error, Of(errors.New("plain")))
	assert.Nil(t, Wrap(Rejected, "op", nil))
}
