package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/ecomauth/internal/flagx"
)

// JsonConfig mirrors Config for JSON files. Pointer fields distinguish "not
// present" from zero values so a file may override only a few settings.
// Lifetimes are integer minutes, the cache timeout integer seconds.
type JsonConfig struct {
	HTTPAddr                   *string `json:"http_addr"`
	DatabaseDSN                *string `json:"database_dsn"`
	SecretKey                  *string `json:"secret_key"`
	AccessTokenExpiryMins      *int    `json:"access_token_expiry_mins"`
	RefreshTokenExpiryMins     *int    `json:"refresh_token_expiry_mins"`
	ResetTokenExpiryMins       *int    `json:"password_reset_token_expiry_mins"`
	PasswordChangeRequiredDays *int    `json:"password_change_required_days"`
	DefaultPassword            *string `json:"default_password"`
	SeedOnStart                *bool   `json:"seed_on_start"`
	CacheType                  *string `json:"cache_type"`
	CacheHost                  *string `json:"cache_host"`
	CachePort                  *string `json:"cache_port"`
	CacheDB                    *int    `json:"cache_db"`
	CacheSecret                *string `json:"cache_secret"`
	CacheTimeoutSecs           *int    `json:"cache_timeout"`
	MailProvider               *string `json:"mail_provider"`
	EmailAPIKey                *string `json:"email_api_key"`
	EmailSender                *string `json:"email_sender"`
	ResetURLBase               *string `json:"reset_url_base"`
	LoginRatePerMinute         *int    `json:"login_rate_per_minute"`
	LoginBurst                 *int    `json:"login_burst"`
	HashConcurrency            *int    `json:"hash_concurrency"`
	LogLevel                   *string `json:"log_level"`
}

// parseJson overlays values from the JSON file named on the command line (or
// by CONFIG_FILE). Nothing happens when no file is named; an unreadable or
// malformed file panics, since the server cannot start half-configured.
func parseJson(config *Config, args []string) {
	path := flagx.ConfigFile(args)
	if path == "" {
		return
	}

	file, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	c.apply(config)
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setMinutes(&config.AccessTokenValidityDuration, c.AccessTokenExpiryMins)
	setMinutes(&config.RefreshTokenValidityDuration, c.RefreshTokenExpiryMins)
	setMinutes(&config.ResetTokenValidityDuration, c.ResetTokenExpiryMins)
	setInt(&config.PasswordChangeRequiredDays, c.PasswordChangeRequiredDays)
	setString(&config.DefaultPassword, c.DefaultPassword)
	if c.SeedOnStart != nil {
		config.SeedOnStart = *c.SeedOnStart
	}
	setString(&config.CacheType, c.CacheType)
	setString(&config.CacheHost, c.CacheHost)
	setString(&config.CachePort, c.CachePort)
	setInt(&config.CacheDB, c.CacheDB)
	setString(&config.CacheSecret, c.CacheSecret)
	if c.CacheTimeoutSecs != nil {
		config.CacheTimeout = time.Duration(*c.CacheTimeoutSecs) * time.Second
	}
	setString(&config.MailProvider, c.MailProvider)
	setString(&config.EmailAPIKey, c.EmailAPIKey)
	setString(&config.EmailSender, c.EmailSender)
	setString(&config.ResetURLBase, c.ResetURLBase)
	setInt(&config.LoginRatePerMinute, c.LoginRatePerMinute)
	setInt(&config.LoginBurst, c.LoginBurst)
	setInt(&config.HashConcurrency, c.HashConcurrency)
	setString(&config.LogLevel, c.LogLevel)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setMinutes(dst *time.Duration, v *int) {
	if v != nil {
		*dst = time.Duration(*v) * time.Minute
	}
}
