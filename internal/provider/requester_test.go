package provider

import (
	"net/http"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestMessageTruncatesByRune(t *testing.T) {
	response := &Response{
		StatusCode: http.StatusBadGateway,
		Body:       []byte(strings.Repeat("خطأ ", 200)),
	}

	message := response.Message()

	assert.True(t, utf8.ValidString(message))
	assert.Equal(t, maxMessageLength, utf8.RuneCountInString(message))
}

func TestMessagePrefersEnvelope(t *testing.T) {
	response := &Response{StatusCode: http.StatusBadRequest, Body: []byte(`{"message": "رقم غير صالح"}`)}
	assert.Equal(t, "رقم غير صالح", response.Message())

	empty := &Response{StatusCode: http.StatusBadGateway}
	assert.Equal(t, http.StatusText(http.StatusBadGateway), empty.Message())
}
