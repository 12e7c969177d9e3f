package names

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoomName(t *testing.T) {
	for i := 0; i < 100; i++ {
		parts := strings.Split(RoomName(), "-")
		if assert.Len(t, parts, 3) {
			assert.Contains(t, adjectives, parts[0])
			assert.Contains(t, animals, parts[1])
			assert.Contains(t, places, parts[2])
		}
	}
}

func TestGuestName(t *testing.T) {
	re := regexp.MustCompile(`^Guest-\d{1,3}$`)
	for i := 0; i < 100; i++ {
		assert.Regexp(t, re, GuestName())
	}
}
