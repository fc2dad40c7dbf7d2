package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Environment variables
const (
	EnvPrivateKey    = "PRIVATE_KEY"
	EnvRPCURL        = "POLYGON_RPC_URL"
	EnvAggregatorKey = "ZERO_EX_API_KEY"
)

// LoadEnv loads environment variables from .env file
func LoadEnv() error {
	return godotenv.Load()
}

// GetEnvWithDefault gets an environment variable with a default value
func GetEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func GetRequiredEnv(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("required environment variable %s not set", key)
	}
	return value, nil
}

// LoadSecureConfig reads the secrets that never go into the config file.
// The signing key is required; the rest is optional.
func LoadSecureConfig() (*SecureConfig, error) {
	privateKey, err := GetRequiredEnv(EnvPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("private key not found: %w", err)
	}

	return &SecureConfig{
		PrivateKey:       privateKey,
		AggregatorAPIKey: os.Getenv(EnvAggregatorKey),
		RPCOverride:      os.Getenv(EnvRPCURL),
	}, nil
}
