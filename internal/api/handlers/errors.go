package handlers

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/jafarshop/checkoutapi/pkg/errors"
)

var kindStatus = map[errors.Kind]int{
	errors.KindStepIncomplete:       http.StatusUnprocessableEntity,
	errors.KindCouponRejected:       http.StatusUnprocessableEntity,
	errors.KindIncompleteCheckout:   http.StatusUnprocessableEntity,
	errors.KindAuthRequired:         http.StatusUnauthorized,
	errors.KindSubmissionInProgress: http.StatusConflict,
	errors.KindStaleRequest:         http.StatusConflict,
	errors.KindPaymentDeclined:      http.StatusPaymentRequired,
	errors.KindGatewayUnavailable:   http.StatusServiceUnavailable,
	errors.KindSettingsFetchFailed:  http.StatusServiceUnavailable,
	errors.KindPaymentGatewayError:  http.StatusBadGateway,
	errors.KindOrderCreationFailed:  http.StatusBadGateway,
	errors.KindNetworkError:         http.StatusBadGateway,
	errors.KindTimeoutError:         http.StatusGatewayTimeout,
}

// respondError writes the error envelope for err. Raw error text is logged,
// never returned.
func respondError(c *gin.Context, logger *zap.Logger, err error, loginURL string) {
	var notFound *errors.ErrNotFound
	if stderrors.As(err, &notFound) {
		c.JSON(http.StatusNotFound, errorBody("NOT_FOUND", notFound.Resource+" not found", false, ""))
		return
	}
	var unauthorized *errors.ErrUnauthorized
	if stderrors.As(err, &unauthorized) {
		c.JSON(http.StatusUnauthorized, errorBody("UNAUTHORIZED", "unauthorized", false, ""))
		return
	}
	var transition *errors.ErrInvalidStateTransition
	if stderrors.As(err, &transition) {
		c.JSON(http.StatusConflict, errorBody("INVALID_STATE_TRANSITION", transition.Error(), false, ""))
		return
	}

	ce, ok := errors.AsCheckout(err)
	if !ok {
		logger.Error("Unhandled error",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, errorBody("INTERNAL", "internal error", false, ""))
		return
	}

	status, ok := kindStatus[ce.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		logger.Warn("Checkout request failed",
			zap.String("path", c.Request.URL.Path),
			zap.String("kind", string(ce.Kind)),
			zap.Error(err),
		)
	}

	body := errorBody(string(ce.Kind), ce.UserMessage(), ce.Retryable(), string(ce.RetryAction()))
	if ce.Kind == errors.KindAuthRequired && loginURL != "" {
		body["error"].(gin.H)["redirectTo"] = loginURL
	}
	c.JSON(status, body)
}

func errorBody(kind, message string, retryable bool, action string) gin.H {
	e := gin.H{
		"kind":      kind,
		"message":   message,
		"retryable": retryable,
	}
	if action != "" {
		e["action"] = action
	}
	return gin.H{"error": e}
}

// fieldIssue names a rejected request field and the rule it broke
type fieldIssue struct {
	Field string `json:"field,omitempty"`
	Rule  string `json:"rule"`
}

// RegisterJSONFieldNames makes binding errors report fields by their JSON name
func RegisterJSONFieldNames() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
}

// respondValidation writes field names and rules only; decoder and
// validator text stays out of the response.
func respondValidation(c *gin.Context, err error) {
	body := errorBody("VALIDATION_FAILED", "validation failed", false, string(errors.ActionCorrectInput))
	body["error"].(gin.H)["details"] = validationIssues(err)
	c.JSON(http.StatusUnprocessableEntity, body)
}

func validationIssues(err error) []fieldIssue {
	var fields validator.ValidationErrors
	if stderrors.As(err, &fields) {
		issues := make([]fieldIssue, 0, len(fields))
		for _, fe := range fields {
			issues = append(issues, fieldIssue{Field: fe.Field(), Rule: fe.Tag()})
		}
		return issues
	}
	var typeErr *json.UnmarshalTypeError
	if stderrors.As(err, &typeErr) {
		return []fieldIssue{{Field: typeErr.Field, Rule: "type"}}
	}
	var stepErr *invalidStepError
	if stderrors.As(err, &stepErr) {
		return []fieldIssue{{Field: "step", Rule: "oneof"}}
	}
	if stderrors.Is(err, io.EOF) {
		return []fieldIssue{{Rule: "body_required"}}
	}
	return []fieldIssue{{Rule: "malformed_json"}}
}
