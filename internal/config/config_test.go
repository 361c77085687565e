package config

import (
	"strings"
	"testing"
	"time"
)

func TestClientConfig(t *testing.T) {
	c := ClientConfig{
		Endpoint:      "ws://localhost:9009",
		Codec:         "json",
		TimeoutSecond: 3,
		LogLevel:      "info",
	}

	if c.Timeout() != 3*time.Second {
		t.Errorf("expected 3s, got %s", c.Timeout())
	}

	out := c.String()
	for _, want := range []string{"CLIENT CONFIGURATION", "ws://localhost:9009", "3 sec"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestServerConfig(t *testing.T) {
	c := ServerConfig{Addr: ":9009", Codec: "msgpack"}
	if !strings.Contains(c.String(), "disabled") {
		t.Errorf("expected rate limit to be disabled:\n%s", c.String())
	}

	c.RateLimit, c.Burst = 2.5, 5
	if !strings.Contains(c.String(), "2.5/sec (burst 5)") {
		t.Errorf("expected rate limit:\n%s", c.String())
	}
}
