package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// UpdateKey derives the dedup key of one Telegram update. kind separates
// id spaces such as callback query ids and chat-scoped message ids.
func UpdateKey(kind string, ids ...string) string {
	buf := make([]byte, 0, 64)
	buf = append(buf, kind...)
	for _, id := range ids {
		buf = append(buf, ':')
		buf = strconv.AppendQuote(buf, id)
	}

	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:])
}
