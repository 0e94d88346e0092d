package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Structs

// Env holds information specific to the host a
// replica is deployed on. This enables host
// adaptions without needing to maintain one
// config file per machine.
type Env struct {
	Replica string
}

// Functions

// LoadEnv looks for an .env file in the working
// directory and reads in all defined values.
func LoadEnv() (*Env, error) {

	// Load environment file.
	err := godotenv.Load(".env")
	if err != nil {
		return nil, fmt.Errorf("failed to read in .env file with: %v", err)
	}

	env := new(Env)

	// Fill variables from .env into struct.
	env.Replica = os.Getenv("CONVERGENT_REPLICA")

	return env, nil
}
