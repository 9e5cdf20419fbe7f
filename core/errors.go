package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	MailroomErrorBadInput          = "MAILROOM_BAD_INPUT"
	MailroomErrorSignatureInvalid  = "MAILROOM_SIGNATURE_INVALID"
	MailroomErrorMalformedPayload  = "MAILROOM_MALFORMED_PAYLOAD"
	MailroomErrorProviderNotFound  = "MAILROOM_PROVIDER_NOT_FOUND"
	MailroomErrorPersistenceFailed = "MAILROOM_PERSISTENCE_FAILED"
	MailroomErrorConflict          = "MAILROOM_CONFLICT"
	MailroomErrorInternal          = "MAILROOM_INTERNAL_ERROR"
)

func mailroomErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureMailroomErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "provider") && strings.Contains(msg, "not registered"):
		return newMailroomError(err.Error(), goerrors.CategoryNotFound, MailroomErrorProviderNotFound)
	case strings.Contains(msg, "signature"):
		return newMailroomError(err.Error(), goerrors.CategoryAuth, MailroomErrorSignatureInvalid)
	case strings.Contains(msg, "malformed"), strings.Contains(msg, "parse"):
		return newMailroomError(err.Error(), goerrors.CategoryBadInput, MailroomErrorMalformedPayload)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return newMailroomError(err.Error(), goerrors.CategoryBadInput, MailroomErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureMailroomErrorEnvelope(mapped)
}

func newMailroomError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureMailroomErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureMailroomErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = mailroomHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultMailroomTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultMailroomTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return MailroomErrorBadInput
	case goerrors.CategoryNotFound:
		return MailroomErrorProviderNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return MailroomErrorSignatureInvalid
	case goerrors.CategoryConflict:
		return MailroomErrorConflict
	case goerrors.CategoryExternal:
		return MailroomErrorPersistenceFailed
	default:
		return MailroomErrorInternal
	}
}

func mailroomHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
