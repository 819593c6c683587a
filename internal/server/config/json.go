package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/avezhov/passport/internal/flagx"
	"github.com/avezhov/passport/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. It uses timex.Duration for interval fields, which allows
// parsing both string values such as "2160h" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON configuration
// files. After unmarshalling, its fields are copied into the runtime Config
// struct which uses time.Duration.
type JsonConfig struct {
	EndpointAddr          string         `json:"endpoint_addr"`
	DatabaseDSN           string         `json:"database_dsn"`
	SecretKey             string         `json:"secret_key"`
	TokenValidityDuration timex.Duration `json:"token_validity_duration"`
	PublicBaseURL         string         `json:"public_base_url"`
	SMTPHost              string         `json:"smtp_host"`
	SMTPUser              string         `json:"smtp_user"`
	SMTPPassword          string         `json:"smtp_password"`
	SMTPSkipVerify        bool           `json:"smtp_skip_verify"`
	MailAddress           string         `json:"mail_address"`
	MailName              string         `json:"mail_name"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The JSON file path is taken from the -c or -config command-line flags; if
// neither is set, no JSON file is loaded. If the file cannot be read or
// contains invalid JSON, the function panics.
func parseJson(config *Config) {

	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	config.EndpointAddr = c.EndpointAddr
	config.DatabaseDSN = c.DatabaseDSN
	config.SecretKey = c.SecretKey
	config.TokenValidityDuration = time.Duration(c.TokenValidityDuration.Duration)
	config.PublicBaseURL = c.PublicBaseURL
	config.SMTPHost = c.SMTPHost
	config.SMTPUser = c.SMTPUser
	config.SMTPPassword = c.SMTPPassword
	config.SMTPSkipVerify = c.SMTPSkipVerify
	config.MailAddress = c.MailAddress
	config.MailName = c.MailName
}
