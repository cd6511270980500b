package wechatpay

import (
	"errors"
	"fmt"
)

// Ошибки проверки подлинности уведомления. Любая из них означает что payload
// доверять нельзя: пайплайн обрывается до расшифровки.
var (
	ErrUnknownSerial  = errors.New("unknown platform certificate serial")
	ErrStaleTimestamp = errors.New("notification timestamp outside allowed window")
	ErrBadSignature   = errors.New("notification signature mismatch")
)

// ErrDecrypt — ошибка аутентифицированной расшифровки ресурса. Может указывать
// на подмену данных или неверный ключ, поэтому никогда не считается мягкой.
var ErrDecrypt = errors.New("resource decryption failed")

// StatusCodeError возвращается клиентом шлюза на ответ с не-2xx статусом.
// Code и Message берутся из тела ошибки API, если его удалось разобрать.
// Клиент такие ошибки не ретраит: повтор создания заказа при неоднозначном
// сбое — риск дубля, решение о ретрае принимает вызывающая сторона.
type StatusCodeError struct {
	HTTPStatus int
	Code       string
	Message    string
}

func NewStatusCodeError(httpStatus int, code, message string) *StatusCodeError {
	return &StatusCodeError{HTTPStatus: httpStatus, Code: code, Message: message}
}

func (e *StatusCodeError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("unexpected status code %d", e.HTTPStatus)
	}
	return fmt.Sprintf("unexpected status code %d: %s: %s", e.HTTPStatus, e.Code, e.Message)
}
