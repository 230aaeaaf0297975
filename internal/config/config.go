// YAML config loader with CUE validation integration
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Role selects which environment variables name the signaling endpoint.
type Role string

const (
	RoleServe  Role = "serve"
	RoleClient Role = "client"
)

// Canvas is the size of the synthesised video.
type Canvas struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// Ball describes the moving object and its initial state.
type Ball struct {
	Radius    int     `yaml:"radius"`
	StartX    float64 `yaml:"start_x"`
	StartY    float64 `yaml:"start_y"`
	VelocityX float64 `yaml:"velocity_x"`
	VelocityY float64 `yaml:"velocity_y"`
}

// Detector holds circle detection parameters.
type Detector struct {
	BlurKernel int     `yaml:"blur_kernel"`
	DP         float64 `yaml:"dp"`
	MinDist    float64 `yaml:"min_dist"`
	Param1     float64 `yaml:"param1"`
	Param2     float64 `yaml:"param2"`
	MinRadius  int     `yaml:"min_radius"`
	MaxRadius  int     `yaml:"max_radius"`
}

// Signaling selects the signaling transport and its endpoint.
type Signaling struct {
	Kind string `yaml:"kind"`
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Log configures the slog handler.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SessionConfig is the root configuration shared by both peers.
type SessionConfig struct {
	Canvas          Canvas        `yaml:"canvas"`
	Ball            Ball          `yaml:"ball"`
	FPS             int           `yaml:"fps"`
	QueueDepth      int           `yaml:"queue_depth"`
	PublishInterval time.Duration `yaml:"publish_interval"`
	LedgerWindow    int           `yaml:"ledger_window"`
	Detector        Detector      `yaml:"detector"`
	Signaling       Signaling     `yaml:"signaling"`
	ICEServers      []string      `yaml:"ice_servers"`
	Log             Log           `yaml:"log"`
}

// Default returns the built-in configuration used when no file is given.
func Default() *SessionConfig {
	return &SessionConfig{
		Canvas: Canvas{Width: 400, Height: 300},
		Ball: Ball{
			Radius:    20,
			StartX:    25,
			StartY:    150,
			VelocityX: 5,
			VelocityY: 3,
		},
		FPS:             30,
		QueueDepth:      8,
		PublishInterval: time.Second,
		LedgerWindow:    900,
		Detector: Detector{
			BlurKernel: 11,
			DP:         1,
			MinDist:    50,
			Param1:     100,
			Param2:     30,
			MinRadius:  15,
			MaxRadius:  25,
		},
		Signaling: Signaling{Kind: "tcp-socket", Host: "127.0.0.1", Port: 1234},
		Log:       Log{Level: "info", Format: "text"},
	}
}

// Load loads YAML config and validates it against a CUE schema. Values absent
// from the file keep their defaults.
func Load(configPath, cueSchemaPath string) (*SessionConfig, error) {
	if err := ValidateWithCue(configPath, cueSchemaPath); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot decode config: %w", err)
	}
	if cfg.Detector.MaxRadius < cfg.Detector.MinRadius {
		return nil, fmt.Errorf("detector max_radius %d below min_radius %d", cfg.Detector.MaxRadius, cfg.Detector.MinRadius)
	}
	return cfg, nil
}

// ApplyEnv overrides config values from environment variables. The serving
// side reads HOSTNAME/PORT, the client SERVER_HOST/SERVER_PORT.
func (c *SessionConfig) ApplyEnv(role Role) error {
	hostKey, portKey := "SERVER_HOST", "SERVER_PORT"
	if role == RoleServe {
		hostKey, portKey = "HOSTNAME", "PORT"
	}
	if v := os.Getenv(hostKey); v != "" {
		c.Signaling.Host = v
	}
	if v := os.Getenv(portKey); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil || p <= 0 || p > 65535 {
			return fmt.Errorf("invalid %s %q", portKey, v)
		}
		c.Signaling.Port = p
	}
	if v := os.Getenv("SIGNALING_KIND"); v != "" {
		c.Signaling.Kind = v
	}
	if v := os.Getenv("PUBLISH_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid PUBLISH_INTERVAL: %w", err)
		}
		c.PublishInterval = d
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	return nil
}

// Endpoint returns host:port of the signaling transport.
func (c *SessionConfig) Endpoint() string {
	return fmt.Sprintf("%s:%d", c.Signaling.Host, c.Signaling.Port)
}

// FrameInterval is the pacing of the sender's frame loop.
func (c *SessionConfig) FrameInterval() time.Duration {
	if c.FPS <= 0 {
		return time.Second / 30
	}
	return time.Second / time.Duration(c.FPS)
}
