package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/joseph-ayodele/labelscan/internal/common"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, common.HTTPStatus(err), errorBody{Error: errorDetail{
		Code:    common.Code(err),
		Message: common.UserMessage(err),
	}})
}

// decodeJSON reads a JSON body into dst and validates it.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return common.NewAppError(common.CodeInvalidInput, "request body is empty", common.ErrInvalidInput)
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return common.NewAppError(common.CodeInvalidInput,
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit), common.ErrInvalidInput)
		}
		return common.NewAppError(common.CodeInvalidInput, "malformed JSON body", err)
	}
	return common.ValidateAndReturnError(dst)
}
