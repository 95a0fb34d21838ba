package config

import (
	"fmt"
	"net"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationResult holds the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// AddError adds a validation error.
func (r *ValidationResult) AddError(field, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message})
}

// AddWarning adds a validation warning.
func (r *ValidationResult) AddWarning(field, message string) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Message: message})
}

// Validate performs comprehensive validation of the configuration.
func Validate(cfg *Config) *ValidationResult {
	result := &ValidationResult{}

	validateEngine(&cfg.Engine, result)
	validateApplicationData(&cfg.Application, result)

	return result
}

func validateEngine(data *EngineConfig, result *ValidationResult) {
	validatePort(data.Port, "engine.autohost_port", result)

	ip := net.ParseIP(data.Address)
	if ip == nil {
		result.AddError("engine.autohost_address",
			fmt.Sprintf("invalid IP address: %s", data.Address))
	} else if !ip.IsLoopback() {
		// The autohost protocol has no authentication; the engine must be
		// local.
		result.AddError("engine.autohost_address",
			"autohost endpoint must bind to the loopback interface")
	}

	if data.PumpIntervalMs < 1 {
		result.AddError("engine.pump_interval_ms", "pump interval must be at least 1ms")
	}
	if data.PumpIntervalMs > 1000 {
		result.AddWarning("engine.pump_interval_ms",
			"pump interval over 1s will lag behind the engine's command stream")
	}
}

func validateApplicationData(data *ApplicationData, result *ValidationResult) {
	// API
	if data.API.Enabled {
		validatePort(data.API.Port, "application_data.api.port", result)
	}

	// MQTT
	if data.MQTT.Enabled {
		if strings.TrimSpace(data.MQTT.BrokerURL) == "" {
			result.AddError("application_data.mqtt.broker_url", "MQTT broker URL is required when enabled")
		}
		if data.MQTT.Port < 1 || data.MQTT.Port > 65535 {
			result.AddError("application_data.mqtt.port", "invalid MQTT port")
		}
		if data.MQTT.UseTLS && data.MQTT.CertFile != "" && strings.TrimSpace(data.MQTT.KeyFile) == "" {
			result.AddError("application_data.mqtt.key_file",
				"MQTT key file is required when a certificate is configured")
		}
	}

	// Database
	if data.Database.Enabled && strings.TrimSpace(data.Database.Path) == "" {
		result.AddError("application_data.database.path", "database path is required when enabled")
	}

	// Security
	if data.Security.RateLimitRPS < 1 {
		result.AddWarning("application_data.security.rate_limit_rps",
			"rate limit is disabled (0 RPS), this may expose the API to abuse")
	}
}

func validatePort(port int, field string, result *ValidationResult) {
	if port < 1 || port > 65535 {
		result.AddError(field, fmt.Sprintf("invalid port number: %d (must be 1-65535)", port))
		return
	}
	if port < 1024 {
		result.AddWarning(field,
			fmt.Sprintf("port %d is a privileged port, may require elevated permissions", port))
	}
}

// IsPortAvailable checks if a port is available for binding.
func IsPortAvailable(port int) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	ln.Close()
	return true
}
