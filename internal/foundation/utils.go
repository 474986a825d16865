package foundation

import (
	"strconv"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Utils groups stateless helpers shared across subsystems.
type Utils struct{}

func NewUtils() *Utils {
	return &Utils{}
}

// RandomSuffix returns a short random decimal string.
func (*Utils) RandomSuffix() string {
	return strconv.FormatUint(uint64(uuid.New().ID()), 10)
}

// Truncate shortens s to at most max runes.
func (*Utils) Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
