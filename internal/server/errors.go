package server

import (
	"errors"
	"net/http"

	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/analysis"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/auth"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/call"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/extractor"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/logging"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/report"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var ErrInvalidBody = errors.New("invalid request body")

var badRequestErrors = []error{
	ErrInvalidBody,
	call.ErrMissingCustomer,
	call.ErrMissingJobID,
	report.ErrMissingCallID,
	report.ErrMissingReportID,
	analysis.ErrMissingDescription,
	extractor.ErrNoTranscriptAvailable,
}

// statusFor maps a service error to its HTTP status.
func statusFor(err error) int {
	for _, target := range badRequestErrors {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}

	switch {
	case errors.Is(err, report.ErrReportNotFound):
		return http.StatusNotFound
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as {"error": ...}. Analysis parse failures also
// carry a preview of the raw model output.
func writeError(c *gin.Context, operation string, err error) {
	status := statusFor(err)
	body := gin.H{"error": err.Error()}

	var parseError *analysis.ParseError
	if errors.As(err, &parseError) {
		body["responsePreview"] = parseError.Preview
	}

	if status >= http.StatusInternalServerError {
		logging.Logger.Error("["+operation+"] Request failed",
			zap.String("request_id", c.GetString(requestIDKey)),
			zap.String("error", err.Error()),
		)
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}
