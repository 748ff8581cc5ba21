package server

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

const maxRoomKeyLength = 32

// NormalizeRoomKey trims surrounding whitespace. Room keys are otherwise
// matched exactly, case included.
func NormalizeRoomKey(key string) string {
	return strings.TrimSpace(key)
}

func ValidateRoomKey(key string) error {
	if key == "" {
		return errors.New("Room cannot be empty")
	}
	if utf8.RuneCountInString(key) > maxRoomKeyLength {
		return errors.New("Room too long (max 32 characters)")
	}
	for _, ch := range key {
		if !unicode.IsPrint(ch) {
			return errors.New("Room must contain only printable characters")
		}
	}
	return nil
}
