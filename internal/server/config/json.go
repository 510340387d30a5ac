package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/nocgateway/internal/flagx"
	"github.com/dmitrijs2005/nocgateway/internal/timex"
)

// JsonConfig mirrors Config for JSON decoding. Pointer fields distinguish
// "absent" from "zero" so a partial file only overrides what it names.
type JsonConfig struct {
	HTTPAddr                    *string         `json:"http_addr"`
	DatabaseDSN                 *string         `json:"database_dsn"`
	SecretKey                   *string         `json:"secret_key"`
	AccessTokenValidityDuration *timex.Duration `json:"access_token_validity_duration"`
	CredentialKey               *string         `json:"credential_key"`
	LocalEmailDomain            *string         `json:"local_email_domain"`
	UpstreamSessionTTL          *timex.Duration `json:"upstream_session_ttl"`
	UpstreamTimeout             *timex.Duration `json:"upstream_timeout"`
	RedisAddr                   *string         `json:"redis_addr"`
	S3RootUser                  *string         `json:"s3_root_user"`
	S3RootPassword              *string         `json:"s3_root_password"`
	S3Region                    *string         `json:"s3_region"`
	S3BaseEndpoint              *string         `json:"s3_base_endpoint"`
	StorageBuckets              []string        `json:"storage_buckets"`
	LogFormat                   *string         `json:"log_format"`
	AuthRateRPS                 *float64        `json:"auth_rate_rps"`
	AuthRateBurst               *int            `json:"auth_rate_burst"`
	AllowedOrigins              []string        `json:"allowed_origins"`
	Timezone                    *string         `json:"timezone"`
}

// parseJson overlays values from the JSON file named by -c/-config (or
// NOC_GATEWAY_CONFIG) onto config. No file means no changes. An unreadable
// or malformed file panics: starting with half a configuration is worse.
func parseJson(config *Config) {
	path := flagx.ConfigFileFlag()
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

	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.CredentialKey, c.CredentialKey)
	setString(&config.LocalEmailDomain, c.LocalEmailDomain)
	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.LogFormat, c.LogFormat)
	setString(&config.Timezone, c.Timezone)

	if c.AccessTokenValidityDuration != nil {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.UpstreamSessionTTL != nil {
		config.UpstreamSessionTTL = c.UpstreamSessionTTL.Duration
	}
	if c.UpstreamTimeout != nil {
		config.UpstreamTimeout = c.UpstreamTimeout.Duration
	}
	if c.StorageBuckets != nil {
		config.StorageBuckets = c.StorageBuckets
	}
	if c.AllowedOrigins != nil {
		config.AllowedOrigins = c.AllowedOrigins
	}
	if c.AuthRateRPS != nil {
		config.AuthRateRPS = *c.AuthRateRPS
	}
	if c.AuthRateBurst != nil {
		config.AuthRateBurst = *c.AuthRateBurst
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
