package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"
)

// Ошибки разбора запроса.
var (
	// ErrNotAnObject — тело сообщения не является JSON-объектом.
	ErrNotAnObject = errors.New("request body is not a JSON object")

	// ErrInvalidUTF8 — тело сообщения не является корректным UTF-8.
	ErrInvalidUTF8 = errors.New("request body is not valid UTF-8")
)

// KeyRequest — запрос на генерацию ключа.
//
// Создаётся внешним producer'ом и кладётся в очередь запросов.
// Worker читает только RequestID, остальные поля — метаданные producer'а.
type KeyRequest struct {
	// RequestID — непрозрачный идентификатор запроса.
	// Хранится как сырой JSON: worker его не парсит и не валидирует,
	// а возвращает в ответе как есть. nil — поле отсутствовало.
	RequestID json.RawMessage `json:"requestId,omitempty"`

	// Timestamp — время создания запроса на стороне producer'а.
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// NewKeyRequest создаёт запрос со строковым requestId и текущим временем.
func NewKeyRequest(requestID string, now time.Time) (*KeyRequest, error) {
	raw, err := json.Marshal(requestID)
	if err != nil {
		return nil, fmt.Errorf("marshal request id: %w", err)
	}

	return &KeyRequest{
		RequestID: raw,
		Timestamp: &now,
	}, nil
}

// DecodeKeyRequest разбирает тело сообщения из очереди запросов.
//
// Тело обязано быть JSON-объектом. Отсутствующий requestId допустим.
func DecodeKeyRequest(body []byte) (*KeyRequest, error) {
	// encoding/json пропускает битый UTF-8 внутри строк, а requestId
	// копируется в ответ байт в байт
	if !utf8.Valid(body) {
		return nil, ErrInvalidUTF8
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}

	// "null" успешно декодируется в nil map
	if fields == nil {
		return nil, ErrNotAnObject
	}

	return &KeyRequest{RequestID: fields["requestId"]}, nil
}

// RequestIDString возвращает requestId в виде строки для логов.
func (r *KeyRequest) RequestIDString() string {
	return rawString(r.RequestID)
}

// GeneratedKey — ответ worker'а на KeyRequest.
type GeneratedKey struct {
	// RequestID — копия requestId из запроса (null, если его не было).
	RequestID json.RawMessage `json:"requestId"`

	// Key — сгенерированный идентификатор.
	Key string `json:"key"`

	// GeneratedAt — время генерации (RFC 3339).
	GeneratedAt time.Time `json:"generatedAt"`
}

// NewGeneratedKey собирает ответ для запроса.
func NewGeneratedKey(req *KeyRequest, key string, generatedAt time.Time) *GeneratedKey {
	var requestID json.RawMessage
	if req != nil && len(req.RequestID) > 0 {
		requestID = append(json.RawMessage(nil), req.RequestID...)
	}

	return &GeneratedKey{
		RequestID:   requestID,
		Key:         key,
		GeneratedAt: generatedAt.UTC(),
	}
}

// RequestIDString возвращает requestId в виде строки для логов и вывода CLI.
func (k *GeneratedKey) RequestIDString() string {
	return rawString(k.RequestID)
}

// rawString превращает сырой JSON в читаемую строку:
// JSON-строка раскавычивается, остальное отдаётся как есть.
func rawString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	return string(raw)
}
