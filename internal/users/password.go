package users

import (
	"crypto/rand"
	"math/big"
)

const (
	lowerChars = "abcdefghijklmnopqrstuvwxyz"
	upperChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digitChars = "0123456789"
)

// GeneratePassword builds a random initial password with the requested
// number of lowercase, uppercase, and digit characters, in random order.
func GeneratePassword(lower, upper, digits int) string {
	chars := make([]byte, 0, lower+upper+digits)
	for i := 0; i < lower; i++ {
		chars = append(chars, lowerChars[randomIndex(len(lowerChars))])
	}
	for i := 0; i < upper; i++ {
		chars = append(chars, upperChars[randomIndex(len(upperChars))])
	}
	for i := 0; i < digits; i++ {
		chars = append(chars, digitChars[randomIndex(len(digitChars))])
	}

	// Fisher-Yates so class positions are not predictable.
	for i := len(chars) - 1; i > 0; i-- {
		j := randomIndex(i + 1)
		chars[i], chars[j] = chars[j], chars[i]
	}
	return string(chars)
}

func randomIndex(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		// crypto/rand only fails when the platform RNG is broken.
		panic(err)
	}
	return int(v.Int64())
}
