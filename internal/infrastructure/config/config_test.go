package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
gateway:
  name: "Test Gateway"
database:
  enabled: true
  path: "/tmp/test.db"
mqtt:
  enabled: true
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  host: "127.0.0.1"
  port: 8888
things:
  - id: "urn:dev:ops:lamp-1"
    title: "Lamp"
    type: ["OnOffSwitch", "Light"]
    description: "A web connected lamp"
    properties:
      on:
        value: false
        metadata:
          "@type": "OnOffProperty"
          type: "boolean"
      brightness:
        value: 50
        metadata:
          type: "integer"
          minimum: 0
          maximum: 100
          unit: "percent"
    actions:
      fade:
        timeout: 5
        metadata:
          title: "Fade"
          input:
            type: "object"
            required: ["brightness", "duration"]
    events:
      overheated:
        metadata:
          type: "number"
          unit: "degree celsius"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Gateway.Name != "Test Gateway" {
		t.Errorf("Gateway.Name = %q, want %q", cfg.Gateway.Name, "Test Gateway")
	}
	if cfg.MQTT.TopicPrefix != "webthing" {
		t.Errorf("MQTT.TopicPrefix = %q, want default %q", cfg.MQTT.TopicPrefix, "webthing")
	}
	if len(cfg.Things) != 1 {
		t.Fatalf("len(Things) = %d, want 1", len(cfg.Things))
	}

	th := cfg.Things[0]
	if len(th.Type) != 2 || th.Type[1] != "Light" {
		t.Errorf("Type = %v", th.Type)
	}
	if th.Properties["brightness"].Value != 50 {
		t.Errorf("brightness value = %#v, want 50", th.Properties["brightness"].Value)
	}
	if th.Properties["on"].Metadata["@type"] != "OnOffProperty" {
		t.Errorf("on metadata = %v", th.Properties["on"].Metadata)
	}
	fade := th.Actions["fade"]
	if fade.Timeout != 5 {
		t.Errorf("fade.Timeout = %d, want 5", fade.Timeout)
	}
	if _, ok := fade.Metadata["input"].(map[string]any); !ok {
		t.Errorf("fade input schema = %#v, want map", fade.Metadata["input"])
	}
	if _, ok := th.Events["overheated"]; !ok {
		t.Error("overheated event missing")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid: [yaml: content")

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	configPath := writeConfig(t, `
api:
  port: 8888
`)

	_, err := Load(configPath)
	if err == nil || !strings.Contains(err.Error(), "at least one thing") {
		t.Errorf("Load() error = %v, want missing things error", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	validJWTSecret := "test-secret-key-at-least-32-chars!"
	lamp := ThingConfig{ID: "urn:dev:ops:lamp-1", Title: "Lamp"}
	fan := ThingConfig{ID: "urn:dev:ops:fan-1", Title: "Fan"}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name:   "valid with jwt",
			mutate: func(c *Config) { c.Security.JWT.Secret = validJWTSecret },
		},
		{
			name:    "no things",
			mutate:  func(c *Config) { c.Things = nil },
			wantErr: "at least one thing",
		},
		{
			name:    "several things without multiple",
			mutate:  func(c *Config) { c.Things = []ThingConfig{lamp, fan} },
			wantErr: "gateway.multiple",
		},
		{
			name: "several things with multiple",
			mutate: func(c *Config) {
				c.Gateway.Multiple = true
				c.Things = []ThingConfig{lamp, fan}
			},
		},
		{
			name: "duplicate thing id",
			mutate: func(c *Config) {
				c.Gateway.Multiple = true
				c.Things = []ThingConfig{lamp, lamp}
			},
			wantErr: "duplicated",
		},
		{
			name:    "missing thing id",
			mutate:  func(c *Config) { c.Things = []ThingConfig{{Title: "Nameless"}} },
			wantErr: "things[0].id is required",
		},
		{
			name: "thing id unsafe for mqtt",
			mutate: func(c *Config) {
				c.MQTT.Enabled = true
				c.Things = []ThingConfig{{ID: "lamps/1", Title: "Lamp"}}
			},
			wantErr: "must not contain",
		},
		{
			name: "database enabled without path",
			mutate: func(c *Config) {
				c.Database.Enabled = true
				c.Database.Path = ""
			},
			wantErr: "database.path",
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: "mqtt.qos",
		},
		{
			name:    "invalid port low",
			mutate:  func(c *Config) { c.API.Port = 0 },
			wantErr: "api.port",
		},
		{
			name:    "invalid port high",
			mutate:  func(c *Config) { c.API.Port = 70000 },
			wantErr: "api.port",
		},
		{
			name:    "JWT secret too short",
			mutate:  func(c *Config) { c.Security.JWT.Secret = "short" },
			wantErr: "security.jwt.secret",
		},
		{
			name:    "mcp logging to stdout",
			mutate:  func(c *Config) { c.MCP.Enabled = true },
			wantErr: "logging.output must be stderr",
		},
		{
			name: "mcp logging to stderr",
			mutate: func(c *Config) {
				c.MCP.Enabled = true
				c.Logging.Output = "stderr"
			},
		},
		{
			name:    "influxdb without url",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true },
			wantErr: "influxdb.url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Things = []ThingConfig{lamp}
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidateReportsAllErrors(t *testing.T) {
	cfg := defaultConfig()
	cfg.MQTT.QoS = 5
	cfg.API.Port = -1

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() error = nil")
	}
	for _, want := range []string{"mqtt.qos", "api.port", "at least one thing"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() error %q missing %q", err, want)
		}
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}

	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}

	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("WEBTHING_DATABASE_PATH", "/custom/path.db")
	t.Setenv("WEBTHING_MQTT_HOST", "mqtt.example.com")
	t.Setenv("WEBTHING_MQTT_USERNAME", "testuser")
	t.Setenv("WEBTHING_MQTT_PASSWORD", "testpass")
	t.Setenv("WEBTHING_API_HOST", "192.168.1.1")
	t.Setenv("WEBTHING_API_PORT", "9090")
	t.Setenv("WEBTHING_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("WEBTHING_JWT_SECRET", "jwt-secret")

	applyEnvOverrides(cfg)

	checks := []struct {
		field string
		got   any
		want  any
	}{
		{"Database.Path", cfg.Database.Path, "/custom/path.db"},
		{"MQTT.Broker.Host", cfg.MQTT.Broker.Host, "mqtt.example.com"},
		{"MQTT.Auth.Username", cfg.MQTT.Auth.Username, "testuser"},
		{"MQTT.Auth.Password", cfg.MQTT.Auth.Password, "testpass"},
		{"API.Host", cfg.API.Host, "192.168.1.1"},
		{"API.Port", cfg.API.Port, 9090},
		{"InfluxDB.Token", cfg.InfluxDB.Token, "secret-token"},
		{"Security.JWT.Secret", cfg.Security.JWT.Secret, "jwt-secret"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.field, c.got, c.want)
		}
	}
}

func TestApplyEnvOverrides_InvalidPortIgnored(t *testing.T) {
	cfg := defaultConfig()
	t.Setenv("WEBTHING_API_PORT", "not-a-port")

	applyEnvOverrides(cfg)

	if cfg.API.Port != 8888 {
		t.Errorf("API.Port = %d, want default 8888", cfg.API.Port)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Database.Path == "" {
		t.Error("defaultConfig should have non-empty Database.Path")
	}

	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}

	if cfg.API.Port != 8888 {
		t.Errorf("defaultConfig API.Port = %d, want 8888", cfg.API.Port)
	}

	if cfg.Discovery.Service != "_webthing._tcp" {
		t.Errorf("defaultConfig Discovery.Service = %q", cfg.Discovery.Service)
	}
}
