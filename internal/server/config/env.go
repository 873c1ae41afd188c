package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var truthyValues = map[string]struct{}{
	"true": {}, "1": {}, "yes": {}, "y": {},
}

// parseEnv loads the given dotenv files (".env" when none are given) without
// overriding variables already present in the process environment, then
// overlays every recognised variable onto config. A missing .env file is
// not an error.
func parseEnv(config *Config, files ...string) {
	_ = godotenv.Load(files...)

	config.HTTPAddr = getEnvAsString("HTTP_ADDR", config.HTTPAddr)
	config.DatabaseDSN = getEnvAsString("DATABASE_DSN", config.DatabaseDSN)
	config.SecretKey = getEnvAsString("APP_VALIDATION_KEY", config.SecretKey)

	config.AccessTokenValidityDuration = getEnvAsMinutes("ACCESS_TOKEN_EXPIRY_MINS", config.AccessTokenValidityDuration)
	config.RefreshTokenValidityDuration = getEnvAsMinutes("REFRESH_TOKEN_EXPIRY_MINS", config.RefreshTokenValidityDuration)
	config.ResetTokenValidityDuration = getEnvAsMinutes("PASSWORD_RESET_TOKEN_EXPIRY_MINS", config.ResetTokenValidityDuration)
	config.PasswordChangeRequiredDays = getEnvAsInt("PASSWORD_CHANGE_REQUIRED_DAYS", config.PasswordChangeRequiredDays)

	config.DefaultPassword = getEnvAsString("DEFAULT_PASSWORD", config.DefaultPassword)
	config.SeedOnStart = getEnvAsBool("SEED_ON_START", config.SeedOnStart)

	config.CacheType = getEnvAsString("CACHE_TYPE", config.CacheType)
	config.CacheHost = getEnvAsString("CACHE_HOST", config.CacheHost)
	config.CachePort = getEnvAsString("CACHE_PORT", config.CachePort)
	config.CacheDB = getEnvAsInt("CACHE_DB", config.CacheDB)
	config.CacheSecret = getEnvAsString("CACHE_SECRET", config.CacheSecret)
	config.CacheTimeout = time.Duration(getEnvAsInt("CACHE_TIMEOUT", int(config.CacheTimeout.Seconds()))) * time.Second

	config.MailProvider = getEnvAsString("MAIL_PROVIDER", config.MailProvider)
	config.EmailAPIKey = getEnvAsString("EMAIL_API_KEY", config.EmailAPIKey)
	config.EmailSender = getEnvAsString("EMAIL_SENDER", config.EmailSender)
	config.ResetURLBase = getEnvAsString("RESET_URL_BASE", config.ResetURLBase)

	config.LoginRatePerMinute = getEnvAsInt("LOGIN_RATE_PER_MINUTE", config.LoginRatePerMinute)
	config.LoginBurst = getEnvAsInt("LOGIN_BURST", config.LoginBurst)
	config.HashConcurrency = getEnvAsInt("HASH_CONCURRENCY", config.HashConcurrency)

	config.LogLevel = getEnvAsString("LOG_LEVEL", config.LogLevel)
}

func getEnvAsString(key string, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt ignores values that are not integers.
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsMinutes(key string, defaultValue time.Duration) time.Duration {
	return time.Duration(getEnvAsInt(key, int(defaultValue.Minutes()))) * time.Minute
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return defaultValue
	}
	_, truthy := truthyValues[strings.ToLower(strings.TrimSpace(value))]
	return truthy
}
