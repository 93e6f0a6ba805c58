package utils

import (
	"fmt"
	"math/rand"

	"github.com/google/uuid"
)

const letters = "abcdefghijklmnopqrstuvwxyz0123456789"

// GenerateID generates a unique ID
func GenerateID() string {
	return uuid.New().String()
}

// RandomString generates a random lowercase string of length n
func RandomString(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = letters[rand.Intn(len(letters))]
	}
	return string(b)
}

// GenerateInstanceID names a process instance, e.g. for broker client IDs
func GenerateInstanceID(name string) string {
	return fmt.Sprintf("%s-%s", name, RandomString(8))
}
