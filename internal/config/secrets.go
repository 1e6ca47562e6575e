package config

import (
	"fmt"
	"os"
	"strings"
)

// Secret environment variables read by the simulator.
const (
	PostgresPasswordEnv = "PGPASSWORD"
	MQTTPasswordEnv     = "MQTT_PASSWORD"
)

// ResolveSecret reads a secret value using the *_FILE convention.
// If envName+"_FILE" is set, the secret is read from that path and trimmed.
// Otherwise the value of envName is returned, or "" when unset.
func ResolveSecret(envName string) (string, error) {
	fileEnv := envName + "_FILE"
	if filePath := os.Getenv(fileEnv); filePath != "" {
		content, err := os.ReadFile(filePath)
		if err != nil {
			// The path is reported, never the content.
			return "", fmt.Errorf("failed to read secret from %s=%s: %w", fileEnv, filePath, err)
		}
		return strings.TrimSpace(string(content)), nil
	}
	return os.Getenv(envName), nil
}

// Secrets holds every secret the configuration may need.
type Secrets struct {
	PostgresPassword string
	MQTTPassword     string
}

// ResolveSecrets resolves the secrets required by c. Secrets for disabled
// components are not read, so their files need not exist.
func (c *RunConfig) ResolveSecrets() (Secrets, error) {
	var s Secrets
	var err error
	if c.Storage.Driver == DriverPostgres {
		if s.PostgresPassword, err = ResolveSecret(PostgresPasswordEnv); err != nil {
			return s, err
		}
	}
	if c.MQTT.Enabled && c.MQTT.Username != "" {
		if s.MQTTPassword, err = ResolveSecret(MQTTPasswordEnv); err != nil {
			return s, err
		}
	}
	return s, nil
}
