package transport

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-mailroom/core"
)

func transportError(
	message string,
	category goerrors.Category,
	code int,
	metadata map[string]any,
) error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(transportTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func transportTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return core.MailroomErrorMalformedPayload
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return core.MailroomErrorSignatureInvalid
	case goerrors.CategoryNotFound:
		return core.MailroomErrorProviderNotFound
	case goerrors.CategoryExternal:
		return core.MailroomErrorPersistenceFailed
	default:
		return core.MailroomErrorInternal
	}
}

// errorEnvelope flattens any error into the wire shape: status code plus
// the machine-readable text code handed to the provider.
func errorEnvelope(err error) (int, string, string) {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return http.StatusInternalServerError, core.MailroomErrorInternal, "An unexpected error occurred"
	}
	status := rich.Code
	if status == 0 {
		status = categoryStatus(rich.Category)
	}
	textCode := strings.TrimSpace(rich.TextCode)
	if textCode == "" {
		textCode = transportTextCode(rich.Category)
	}
	message := strings.TrimSpace(rich.Message)
	if message == "" {
		message = "An unexpected error occurred"
	}
	return status, textCode, message
}

func categoryStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
