package domain

import (
	"fmt"
	"strconv"
	"strings"

	apperrors "github.com/Proton-105/nudge-bot/internal/errors"
)

// Gender selects the grammatical form of user-facing messages.
type Gender string

const (
	GenderFemale Gender = "female"
	GenderMale   Gender = "male"
)

// Bounds for onboarding input.
const (
	MinInterval = 1
	MaxInterval = 540
	MinOffset   = -12
	MaxOffset   = 14
)

// Valid reports whether g is a known gender.
func (g Gender) Valid() bool {
	return g == GenderFemale || g == GenderMale
}

// ParseGender accepts the persisted gender names.
func ParseGender(s string) (Gender, error) {
	g := Gender(strings.ToLower(strings.TrimSpace(s)))
	if !g.Valid() {
		return "", apperrors.NewValidationError(fmt.Sprintf("unknown gender %q", s))
	}
	return g, nil
}

// ParseInterval parses a reminder interval in whole minutes.
func ParseInterval(text string) (int, error) {
	text = strings.TrimSpace(text)
	if !isDigits(text) {
		return 0, apperrors.NewValidationError(fmt.Sprintf("interval %q is not a number", text))
	}

	minutes, err := strconv.Atoi(text)
	if err != nil || minutes < MinInterval || minutes > MaxInterval {
		return 0, apperrors.NewValidationError(fmt.Sprintf("interval must be between %d and %d minutes", MinInterval, MaxInterval))
	}

	return minutes, nil
}

// ParseTimezoneOffset parses a signed whole-hour UTC offset such as "+3" or "-5".
// The sign is mandatory.
func ParseTimezoneOffset(text string) (int, error) {
	text = strings.TrimSpace(text)
	if len(text) < 2 || (text[0] != '+' && text[0] != '-') || !isDigits(text[1:]) {
		return 0, apperrors.NewValidationError(fmt.Sprintf("timezone %q must look like +3 or -5", text))
	}

	offset, err := strconv.Atoi(text)
	if err != nil || offset < MinOffset || offset > MaxOffset {
		return 0, apperrors.NewValidationError(fmt.Sprintf("timezone offset must be between %d and +%d", MinOffset, MaxOffset))
	}

	return offset, nil
}

// FormatOffset renders an hour offset with an explicit sign.
func FormatOffset(offset int) string {
	return fmt.Sprintf("%+d", offset)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
