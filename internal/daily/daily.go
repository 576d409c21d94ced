// internal/daily/daily.go
//
// Daily boards: every player who asks for the daily game on the same UTC date
// and with the same config gets the same grid.
// The board is driven by a PCG source seeded from HMAC(salt, YYYY-MM-DD), so
// the salt keeps tomorrow's board unguessable.

package daily

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"math/rand/v2"
	"time"
)

// DateKey returns YYYY-MM-DD in UTC.
func DateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Seed returns the PCG seed pair for date, taken from the first 16 bytes of
// HMAC-SHA256(salt, DateKey(date)).
func Seed(date time.Time, salt string) (uint64, uint64) {
	h := hmac.New(sha256.New, []byte(salt))
	h.Write([]byte(DateKey(date)))
	sum := h.Sum(nil)
	return binary.BigEndian.Uint64(sum[:8]), binary.BigEndian.Uint64(sum[8:16])
}

// Rand returns a fresh random source for date's board.
func Rand(date time.Time, salt string) *rand.Rand {
	s1, s2 := Seed(date, salt)
	return rand.New(rand.NewPCG(s1, s2))
}
