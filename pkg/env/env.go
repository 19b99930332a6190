package env

import (
	"os"
	"strings"
)

// Get returns the trimmed value of key, or fallback when unset or blank.
func Get(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

// First returns the first non-blank value among keys.
func First(fallback string, keys ...string) string {
	for _, key := range keys {
		if val := Get(key, ""); val != "" {
			return val
		}
	}
	return fallback
}

// InstanceID names the running replica in logs: the platform dyno when set,
// then the container hostname.
func InstanceID() string {
	return First("local", "CRM_INSTANCE_ID", "DYNO", "HOSTNAME")
}
