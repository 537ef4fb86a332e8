package http

import (
	"errors"
	"net/http"

	"grocery-service/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

var kindStatus = map[domain.Kind]int{
	domain.KindValidation:    http.StatusBadRequest,
	domain.KindNotFound:      http.StatusNotFound,
	domain.KindAuthorization: http.StatusForbidden,
	domain.KindConflict:      http.StatusConflict,
	domain.KindUpstream:      http.StatusBadGateway,
}

func writeError(c *gin.Context, log logrus.FieldLogger, err error) {
	var derr *domain.Error
	if errors.As(err, &derr) {
		c.JSON(kindStatus[derr.Kind], ErrorResponse{Error: derr.Code, Message: err.Error()})
		return
	}
	log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "InternalError", Message: "internal error"})
}

// bindJSON decodes and validates the body. A phone number rejected by the
// mpesa_phone rule is reported as the domain error so clients see one code
// for it regardless of where it was caught.
func bindJSON(c *gin.Context, req any) bool {
	err := c.ShouldBindJSON(req)
	if err == nil {
		return true
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			if fe.Tag() == phoneTag {
				c.JSON(http.StatusBadRequest, ErrorResponse{
					Error:   domain.ErrInvalidChannelIdentifier.Code,
					Message: domain.ErrInvalidChannelIdentifier.Message,
				})
				return false
			}
		}
	}
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: "ValidationError", Message: err.Error()})
	return false
}
