package config

import (
	"os"
	"strconv"
	"time"
)

// LANConfig tunes LAN terminal discovery and transport.
type LANConfig struct {
	DefaultPort    int
	DiscoveryCIDR  string
	ProbeTimeout   time.Duration
	RequestTimeout time.Duration
}

// CloudConfig holds the cloud terminal gateway credentials.
type CloudConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// ProcessorConfig holds the shared processor credentials used by the
// Bluetooth reader, card-on-file and manual entry channels.
type ProcessorConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// ZohoConfig holds the Zoho Books forwarding credentials.
type ZohoConfig struct {
	BaseURL      string
	AccountsURL  string
	OrgID        string
	ClientID     string
	ClientSecret string
	RefreshToken string
	Timeout      time.Duration
}

// PollConfig bounds the pending-payment polling window.
type PollConfig struct {
	MaxAttempts int
	Interval    time.Duration
}

type ProviderConfig struct {
	LAN       LANConfig
	Cloud     CloudConfig
	Processor ProcessorConfig
	Zoho      ZohoConfig
	Poll      PollConfig
}

func LoadProviderConfig() *ProviderConfig {
	return &ProviderConfig{
		LAN: LANConfig{
			DefaultPort:    getEnvAsInt("LAN_TERMINAL_PORT", 8443),
			DiscoveryCIDR:  getEnv("LAN_DISCOVERY_CIDR", ""),
			ProbeTimeout:   getEnvAsDuration("LAN_PROBE_TIMEOUT", 2*time.Second),
			RequestTimeout: getEnvAsDuration("LAN_REQUEST_TIMEOUT", 125*time.Second),
		},
		Cloud: CloudConfig{
			BaseURL:      getEnv("CLOUD_GATEWAY_URL", ""),
			ClientID:     getEnv("CLOUD_CLIENT_ID", ""),
			ClientSecret: getEnv("CLOUD_CLIENT_SECRET", ""),
			Timeout:      getEnvAsDuration("CLOUD_REQUEST_TIMEOUT", 30*time.Second),
		},
		Processor: ProcessorConfig{
			BaseURL: getEnv("PROCESSOR_URL", ""),
			APIKey:  getEnv("PROCESSOR_API_KEY", ""),
			Timeout: getEnvAsDuration("PROCESSOR_REQUEST_TIMEOUT", 30*time.Second),
		},
		Zoho: ZohoConfig{
			BaseURL:      getEnv("ZOHO_BASE_URL", "https://www.zohoapis.com"),
			AccountsURL:  getEnv("ZOHO_ACCOUNTS_URL", "https://accounts.zoho.com"),
			OrgID:        getEnv("ZOHO_ORG_ID", ""),
			ClientID:     getEnv("ZOHO_CLIENT_ID", ""),
			ClientSecret: getEnv("ZOHO_CLIENT_SECRET", ""),
			RefreshToken: getEnv("ZOHO_REFRESH_TOKEN", ""),
			Timeout:      getEnvAsDuration("ZOHO_REQUEST_TIMEOUT", 30*time.Second),
		},
		Poll: PollConfig{
			MaxAttempts: getEnvAsInt("PAYMENT_POLL_MAX_ATTEMPTS", 60),
			Interval:    getEnvAsDuration("PAYMENT_POLL_INTERVAL", 2*time.Second),
		},
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultVal
}
