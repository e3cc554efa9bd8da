package utils

import (
	"os"
	"strconv"

	"golang.org/x/crypto/bcrypt"
)

// bcryptCost reads BCRYPT_COST so local seeding can run with a cheaper
// factor. Out-of-range or missing values fall back to the library default.
func bcryptCost() int {
	cost, err := strconv.Atoi(os.Getenv("BCRYPT_COST"))
	if err != nil || cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return bcrypt.DefaultCost
	}
	return cost
}

func HashPassword(s string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(s), bcryptCost())
}

func ComparePassword(hashed string, normal string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(normal))
}
