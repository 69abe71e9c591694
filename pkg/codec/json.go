// Package codec содержит JSON-кодек Connect для обычных Go-структур.
package codec

import (
	"encoding/json"
	"fmt"
)

// Name имя кодека, Content-Type application/json
const Name = "json"

// JSON кодирует сообщения через encoding/json. Встроенный кодек Connect с
// тем же именем работает только с proto.Message и заменяется этим через
// connect.WithCodec.
type JSON struct{}

func (JSON) Name() string { return Name }

func (JSON) Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

func (JSON) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	return nil
}
