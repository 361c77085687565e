package config

import (
	"fmt"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Client configuration
// --------------------------------------------------------------------------

// ClientConfig holds the settings used to connect to a compute server
type ClientConfig struct {
	// Endpoint is the WebSocket URL of the server, e.g. ws://localhost:9009
	Endpoint string
	// Origin is sent as the Origin header during the handshake
	Origin string
	// Codec is the name of the codec used for messages
	Codec string
	// TimeoutSecond bounds connecting and waiting for a reply. 0 means no timeout.
	TimeoutSecond int
	// LogLevel is one of debug, info, warn, error
	LogLevel string
}

// Timeout returns the configured timeout as a duration
func (c *ClientConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecond) * time.Second
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	addSection(&sb, "Client Configuration")
	addField(&sb, "Endpoint", c.Endpoint)
	addField(&sb, "Origin", c.Origin)
	addField(&sb, "Codec", c.Codec)
	addField(&sb, "Timeout", timeoutString(c.TimeoutSecond))

	addSection(&sb, "Logging")
	addField(&sb, "Log Level", c.LogLevel)

	return sb.String()
}

// --------------------------------------------------------------------------
// Server configuration
// --------------------------------------------------------------------------

// ServerConfig holds the settings of the reference compute server
type ServerConfig struct {
	// Addr is the address to listen on, e.g. :9009
	Addr string
	// Codec is the name of the codec used for WebSocket messages
	Codec string
	// RateLimit is the number of calls allowed per second. 0 disables limiting.
	RateLimit float64
	// Burst is the number of calls allowed in a single burst
	Burst int
	// LogLevel is one of debug, info, warn, error
	LogLevel string
}

// String returns a formatted string representation of the server configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	addSection(&sb, "Server")
	addField(&sb, "Address", c.Addr)
	addField(&sb, "Codec", c.Codec)
	if c.RateLimit > 0 {
		addField(&sb, "Rate Limit", fmt.Sprintf("%g/sec (burst %d)", c.RateLimit, c.Burst))
	} else {
		addField(&sb, "Rate Limit", "disabled")
	}

	addSection(&sb, "Logging")
	addField(&sb, "Log Level", c.LogLevel)

	return sb.String()
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func addSection(sb *strings.Builder, title string) {
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
}

func addField(sb *strings.Builder, name, value string) {
	sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
}

func timeoutString(sec int) string {
	if sec <= 0 {
		return "none"
	}
	return fmt.Sprintf("%d sec", sec)
}
