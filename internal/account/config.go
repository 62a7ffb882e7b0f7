package account

import (
	"os"
	"strconv"
)

const defaultBcryptCost = 12

// Config holds the account settings read from the environment.
type Config struct {
	HashAlgo   string
	BcryptCost int
	// SeedUsername and SeedPassword create the first super_admin when both are set.
	SeedUsername string
	SeedPassword string
}

func ConfigFromEnv() Config {
	cost, err := strconv.Atoi(os.Getenv("BCRYPT_COST"))
	if err != nil || cost <= 0 {
		cost = defaultBcryptCost
	}
	algo := os.Getenv("PASSWORD_HASH_ALGO")
	if algo == "" {
		algo = AlgoSHA256
	}
	return Config{
		HashAlgo:     algo,
		BcryptCost:   cost,
		SeedUsername: os.Getenv("SEED_ADMIN_USERNAME"),
		SeedPassword: os.Getenv("SEED_ADMIN_PASSWORD"),
	}
}
