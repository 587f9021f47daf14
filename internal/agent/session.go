package agent

import (
	"math/rand/v2"
	"regexp"
)

const (
	sessionLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	sessionDigits  = "0123456789"
)

var sessionIDPattern = regexp.MustCompile(`^[A-Z0-9]{4}-[0-9]{4}$`)

// NewSessionID returns a short human-readable session ID such as
// "K7QX-4821".
func NewSessionID() string {
	b := make([]byte, 9)
	for i := range 4 {
		b[i] = sessionLetters[rand.IntN(len(sessionLetters))]
	}
	b[4] = '-'
	for i := 5; i < 9; i++ {
		b[i] = sessionDigits[rand.IntN(len(sessionDigits))]
	}
	return string(b)
}

// ValidSessionID reports whether id has the NewSessionID format.
func ValidSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}
