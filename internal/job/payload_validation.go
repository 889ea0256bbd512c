package job

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/tariffdesk/jobengine/common"
	"github.com/tariffdesk/jobengine/middleware"
)

var validate = validator.New()

func validateParams[T any](params map[string]any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return common.CodedErrf(http.StatusBadRequest, common.CodeValidation,
			"parameters are not serialisable")
	}

	var payload T
	if err := json.Unmarshal(raw, &payload); err != nil {
		return common.APIError{
			Status:  http.StatusBadRequest,
			Code:    common.CodeValidation,
			Message: "invalid parameters format",
		}
	}

	if err := validate.Struct(payload); err != nil {
		return common.APIError{
			Status:  http.StatusBadRequest,
			Code:    common.CodeValidation,
			Message: "parameter validation failed",
			Fields:  middleware.FormatValidationErrors(err),
		}
	}

	return nil
}
