package ratelimit

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// EndpointConfig represents rate limiting configuration for a specific endpoint.
type EndpointConfig struct {
	Path   string        // Endpoint path pattern (exact, "*" segments or "/" prefix)
	Method string        // HTTP method (GET, POST, etc.)
	Limit  int           // Maximum requests per window
	Window time.Duration // Time window
	Burst  int           // Burst capacity (defaults to Limit if 0)
}

// Environment variable prefixes.
const (
	ServerEnvPrefix = "RATE_LIMIT"
	ClientEnvPrefix = "RATE_LIMIT_CLIENT"
)

// LoadConfig loads rate limiting configuration from environment variables
// named prefix + "_ENABLED", prefix + "_DEFAULT_LIMIT" and so on.
func LoadConfig(prefix string, endpoints []EndpointConfig) *Config {
	enabled := getEnvBool(prefix+"_ENABLED", true)
	if !enabled {
		return &Config{
			Enabled: false,
		}
	}

	return &Config{
		Enabled:         enabled,
		DefaultLimit:    getEnvInt(prefix+"_DEFAULT_LIMIT", 1000),
		DefaultWindow:   getEnvDuration(prefix+"_DEFAULT_WINDOW", time.Minute),
		CleanupInterval: getEnvDuration(prefix+"_CLEANUP_INTERVAL", 5*time.Minute),
		Whitelist:       parseIPList(getEnvString(prefix+"_WHITELIST", "")),
		Blacklist:       parseIPList(getEnvString(prefix+"_BLACKLIST", "")),
		EndpointConfigs: endpoints,
	}
}

// BackendEndpointConfigs mirrors the limits the ad generation API enforces per
// user, so the client can refuse a call locally instead of collecting a 429.
func BackendEndpointConfigs() []EndpointConfig {
	return []EndpointConfig{
		// Auth
		{Path: "/auth/register", Method: "POST", Limit: 3, Window: 5 * time.Minute},
		{Path: "/auth/login", Method: "POST", Limit: 5, Window: 5 * time.Minute},
		{Path: "/auth/refresh", Method: "POST", Limit: 20, Window: time.Minute},
		{Path: "/auth/me", Method: "GET", Limit: 30, Window: time.Minute},

		// Ads
		{Path: "/ads", Method: "POST", Limit: 5, Window: time.Minute},
		{Path: "/ads", Method: "GET", Limit: 20, Window: time.Minute},
		{Path: "/ads/*/status", Method: "GET", Limit: 15, Window: time.Second},
		{Path: "/ads/*/video-url", Method: "GET", Limit: 10, Window: time.Minute},
		{Path: "/ads/*", Method: "GET", Limit: 30, Window: time.Minute},
		{Path: "/ads/*", Method: "PUT", Limit: 10, Window: time.Minute},
	}
}

// DashboardEndpointConfigs returns the limits of the dashboard server's routes.
func DashboardEndpointConfigs() []EndpointConfig {
	return []EndpointConfig{
		// Each stream holds a poller open against the backend.
		{Path: "/api/ads/*/progress", Method: "GET", Limit: 10, Window: time.Minute, Burst: 3},
		{Path: "/api/ads/*/progress/snapshot", Method: "GET", Limit: 60, Window: time.Minute, Burst: 15},
		{Path: "/api/dashboard", Method: "GET", Limit: 20, Window: time.Minute, Burst: 5},
		{Path: "/api/ads", Method: "GET", Limit: 30, Window: time.Minute, Burst: 10},
		{Path: "/api/ads/*/history", Method: "GET", Limit: 60, Window: time.Minute, Burst: 15},
		{Path: "/api/history", Method: "GET", Limit: 60, Window: time.Minute, Burst: 15},
	}
}

func getEnvString(key string, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// parseIPList parses a comma-separated list of client identifiers into a set.
func parseIPList(list string) map[string]bool {
	result := make(map[string]bool)
	for _, ip := range strings.Split(list, ",") {
		if ip = strings.TrimSpace(ip); ip != "" {
			result[ip] = true
		}
	}
	return result
}
