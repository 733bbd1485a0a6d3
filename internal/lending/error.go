package lending

import (
	"errors"
	"fmt"
	"net/http"
)

// ===== Error model =====
type Code string

const (
	CodeInvalidArgument           Code = "INVALID_ARGUMENT"
	CodeNotFound                  Code = "NOT_FOUND"
	CodeBorrowerAlreadyAssociated Code = "BORROWER_ALREADY_ASSOCIATED"
	CodeBorrowerAlreadyExists     Code = "BORROWER_ALREADY_EXISTS"
	CodeInvalidOwner              Code = "INVALID_OWNER"
	CodeAlreadyReturned           Code = "ALREADY_RETURNED"
	CodeInternal                  Code = "INTERNAL"
)

type APIError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

func ErrInvalid(msg string) *APIError  { return &APIError{Code: CodeInvalidArgument, Message: msg} }
func ErrNotFound(msg string) *APIError { return &APIError{Code: CodeNotFound, Message: msg} }
func ErrInternal(msg string) *APIError { return &APIError{Code: CodeInternal, Message: msg} }

func ErrBorrowerAlreadyAssociated() *APIError {
	return &APIError{Code: CodeBorrowerAlreadyAssociated, Message: "borrower is already associated"}
}

func ErrBorrowerAlreadyExists() *APIError {
	return &APIError{Code: CodeBorrowerAlreadyExists, Message: "another borrower is already associated"}
}

func ErrInvalidOwner() *APIError {
	return &APIError{Code: CodeInvalidOwner, Message: "caller is not the owner of this lending"}
}

func ErrAlreadyReturned() *APIError {
	return &APIError{Code: CodeAlreadyReturned, Message: "lending is already returned"}
}

func ToHTTPStatus(err error) int {
	var api *APIError
	if errors.As(err, &api) {
		switch api.Code {
		case CodeInvalidArgument:
			return http.StatusBadRequest
		case CodeNotFound:
			return http.StatusNotFound
		case CodeInvalidOwner:
			return http.StatusForbidden
		case CodeBorrowerAlreadyAssociated, CodeBorrowerAlreadyExists, CodeAlreadyReturned:
			return http.StatusConflict
		default:
			return http.StatusInternalServerError
		}
	}
	return http.StatusInternalServerError
}

// HasCode は err が指定コードのAPIErrorかどうかを返す。
func HasCode(err error, code Code) bool {
	var api *APIError
	return errors.As(err, &api) && api.Code == code
}
