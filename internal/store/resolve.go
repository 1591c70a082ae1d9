package store

import (
	"fmt"
	"os"
)

// ProfileEnv names the environment variable consulted by ResolveProfile.
const ProfileEnv = "SPROUT_PROFILE"

// ResolveProfile picks the profile id: explicit > SPROUT_PROFILE > "default".
func ResolveProfile(explicit string) (string, error) {
	if explicit != "" {
		if err := ValidateID(explicit); err != nil {
			return "", fmt.Errorf("invalid profile %q: %w", explicit, err)
		}
		return explicit, nil
	}

	if env := os.Getenv(ProfileEnv); env != "" {
		if err := ValidateID(env); err != nil {
			return "", fmt.Errorf("invalid %s %q: %w", ProfileEnv, env, err)
		}
		return env, nil
	}

	return "default", nil
}
