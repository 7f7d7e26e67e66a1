package domain

import (
	"errors"
	"time"
)

// IdempotencyStatus описывает жизненный цикл ключа идемпотентности.
type IdempotencyStatus string

const (
	// IdempotencyStatusProcessing означает, что запрос принят и ещё обрабатывается.
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	// IdempotencyStatusDone означает, что запрос завершён и ответ сохранён.
	IdempotencyStatusDone IdempotencyStatus = "done"
	// IdempotencyStatusFailed означает, что обработка завершилась ошибкой.
	IdempotencyStatusFailed IdempotencyStatus = "failed"
)

var (
	// Ключ уже занят другим запросом.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// Ключ повторно использован с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency key reused with different payload")
	// Пустой ключ.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// Пустой хеш запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// Ключ не найден или уже удалён.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
	// Запрос с этим ключом ещё выполняется.
	ErrIdempotencyInProgress = errors.New("request with this idempotency key is in progress")
)

// IdempotencyRecord хранит состояние обработки запроса с Idempotency-Key.
type IdempotencyRecord struct {
	Key          string
	RequestHash  string
	ResponseBody []byte
	HTTPStatus   int
	Status       IdempotencyStatus
	TTLAt        time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s IdempotencyStatus) Valid() bool {
	switch s {
	case IdempotencyStatusProcessing, IdempotencyStatusDone, IdempotencyStatusFailed:
		return true
	default:
		return false
	}
}

// IsIdempotencyConflict проверяет, что ошибка означает конфликт ключей.
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) ||
		errors.Is(err, ErrIdempotencyHashMismatch) ||
		errors.Is(err, ErrIdempotencyInProgress)
}
