// Package names generates the default room and display names offered to
// users who do not pick their own.
package names

import (
	"fmt"
	"strings"

	"github.com/pion/randutil"
)

var rng = randutil.NewMathRandomGenerator()

// RoomName returns a memorable room id such as "cozy-otter-lighthouse".
func RoomName() string {
	words := []string{
		pick(adjectives),
		pick(animals),
		pick(places),
	}
	return strings.Join(words, "-")
}

// GuestName returns a display name of the form Guest-NNN.
func GuestName() string {
	return fmt.Sprintf("Guest-%d", rng.Intn(1000))
}

func pick(list []string) string {
	return list[rng.Intn(len(list))]
}
