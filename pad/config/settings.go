package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/wricardo/webpad/pad/device"
)

var (
	ErrConfigNotFound = errors.New("settings file not found")
	ErrInvalidConfig  = errors.New("invalid settings")
)

// Duration is a time.Duration that reads and writes JSON as a string.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case float64:
		d.Duration = time.Duration(v * float64(time.Second))
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		d.Duration = parsed
	default:
		return fmt.Errorf("invalid duration %s", string(data))
	}
	return nil
}

// NgrokSettings controls the optional public tunnel.
type NgrokSettings struct {
	Enabled   bool   `json:"enabled"`
	AuthToken string `json:"auth_token,omitempty"`
	Domain    string `json:"domain,omitempty"`
}

// Settings holds everything the server needs to start.
type Settings struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	PublicDir string `json:"public_dir"`

	// Driver selects the device binding: "uinput" or "memory".
	Driver     string `json:"driver"`
	DeviceName string `json:"device_name"`
	DevicePath string `json:"device_path"`

	MaxMessageSize int64    `json:"max_message_size"`
	PongWait       Duration `json:"pong_wait"`
	WriteWait      Duration `json:"write_wait"`
	AllowedOrigins []string `json:"allowed_origins,omitempty"`

	// ConnectRate limits new WebSocket connections per second. Zero disables
	// the limit.
	ConnectRate  float64 `json:"connect_rate"`
	ConnectBurst int     `json:"connect_burst"`

	ShutdownTimeout Duration      `json:"shutdown_timeout"`
	Ngrok           NgrokSettings `json:"ngrok"`
	Debug           bool          `json:"debug"`
}

// Default returns the built-in settings.
func Default() *Settings {
	return &Settings{
		Host:            "0.0.0.0",
		Port:            8080,
		PublicDir:       "public",
		Driver:          "uinput",
		DeviceName:      "webpad virtual gamepad",
		DevicePath:      "/dev/uinput",
		MaxMessageSize:  512,
		PongWait:        Duration{60 * time.Second},
		WriteWait:       Duration{10 * time.Second},
		ConnectRate:     0,
		ConnectBurst:    4,
		ShutdownTimeout: Duration{10 * time.Second},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (*Settings, error) {
	s := Default()
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, oops.In("config").With("path", path).Wrapf(ErrConfigNotFound, "load settings")
		}
		return nil, oops.In("config").With("path", path).Wrapf(err, "read settings")
	}

	if err := json.Unmarshal(data, s); err != nil {
		return nil, oops.In("config").With("path", path).Wrapf(err, "parse settings")
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Save writes the settings to path as indented JSON.
func (s *Settings) Save(path string) error {
	if err := s.Validate(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return oops.In("config").Wrapf(err, "marshal settings")
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return oops.In("config").With("path", path).Wrapf(err, "write settings")
	}
	return nil
}

// Validate reports the first problem found, wrapped in ErrInvalidConfig.
func (s *Settings) Validate() error {
	var problem string
	switch {
	case s.Port < 0 || s.Port > 65535:
		problem = fmt.Sprintf("port %d out of range", s.Port)
	case !knownDriver(s.Driver):
		problem = fmt.Sprintf("driver %q is not one of %s", s.Driver, strings.Join(device.Drivers, ", "))
	case s.MaxMessageSize <= 0:
		problem = "max_message_size must be positive"
	case s.PongWait.Duration <= 0:
		problem = "pong_wait must be positive"
	case s.WriteWait.Duration <= 0:
		problem = "write_wait must be positive"
	case s.ConnectRate < 0:
		problem = "connect_rate must not be negative"
	case s.ConnectRate > 0 && s.ConnectBurst < 1:
		problem = "connect_burst must be at least 1 when connect_rate is set"
	case s.ShutdownTimeout.Duration <= 0:
		problem = "shutdown_timeout must be positive"
	default:
		return nil
	}
	return oops.In("config").Wrapf(ErrInvalidConfig, "%s", problem)
}

// Addr is the listen address.
func (s *Settings) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// PingPeriod is how often the server pings each client. It must be shorter
// than PongWait.
func (s *Settings) PingPeriod() time.Duration {
	return (s.PongWait.Duration * 9) / 10
}

func knownDriver(name string) bool {
	for _, d := range device.Drivers {
		if strings.EqualFold(d, name) {
			return true
		}
	}
	return false
}
