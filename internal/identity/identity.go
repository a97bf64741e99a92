// Пакет identity — вычисление стабильного идентификатора фотографии по URL.
//
// Идентификатор — HMAC-SHA256 исходного URL на секрете сервера в hex (64 символа).
// Секрет не позволяет посторонним вычислить идентификатор по известному URL.
package identity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Deriver вычисляет идентификаторы. Безопасен для конкурентного использования.
type Deriver struct {
	key []byte
}

// New создаёт Deriver с указанным секретом.
func New(secret string) *Deriver {
	return &Deriver{key: []byte(secret)}
}

// Derive возвращает идентификатор для url. URL хэшируется как есть, без нормализации.
func (d *Deriver) Derive(url string) string {
	mac := hmac.New(sha256.New, d.key)
	mac.Write([]byte(url))
	return hex.EncodeToString(mac.Sum(nil))
}

// Valid сообщает, похожа ли строка на идентификатор: 64 hex-символа в нижнем регистре.
func Valid(id string) bool {
	if len(id) != 2*sha256.Size {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
