package llm

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPermanent(t *testing.T) {
	assert.NoError(t, Permanent(nil))

	base := errors.New("bad request")
	err := Permanent(base)
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, base)

	wrapped := fmt.Errorf("attempt 1: %w", err)
	assert.True(t, IsPermanent(wrapped))
	assert.Same(t, err, Permanent(err), "marking twice must not nest")

	assert.False(t, IsPermanent(base))
	assert.False(t, IsPermanent(nil))
}

func TestStatusErrorClassification(t *testing.T) {
	cases := []struct {
		code      int
		permanent bool
	}{
		{400, true},
		{401, true},
		{403, true},
		{404, true},
		{408, false},
		{429, false},
		{500, false},
		{502, false},
		{503, false},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprint(tc.code), func(t *testing.T) {
			err := fmt.Errorf("call: %w", &StatusError{Provider: "test", StatusCode: tc.code, Body: "x"})
			assert.Equal(t, tc.permanent, IsPermanent(err))
		})
	}
}

func TestGeminiPermanent(t *testing.T) {
	assert.True(t, geminiPermanent(errors.New("Error 403, Message: PERMISSION_DENIED")))
	assert.True(t, geminiPermanent(errors.New("API key not valid. Please pass a valid API key.")))
	assert.False(t, geminiPermanent(errors.New("Error 503, Message: UNAVAILABLE")))
}
