package app

import (
	"fmt"
	"os"
	"strconv"

	"dario.cat/mergo"

	"github.com/Flarenzy/dns-zonegen/internal/domain"
)

type Config struct {
	// DSN of the MAAS database. Ignored when SnapshotPath is set.
	DSN          string
	SnapshotPath string
	MAASURL      string
	DefaultTTL   uint32
	// Serial of the generated zones. Zero means "now" at the edge.
	Serial           uint32
	ConnectAttempts  uint
	ForceConfigWrite bool
}

func defaultConfig() Config {
	return Config{
		MAASURL:         "http://localhost:5240/MAAS",
		DefaultTTL:      30,
		ConnectAttempts: 5,
	}
}

// LoadConfig reads the environment and fills unset values with defaults.
func LoadConfig() (Config, error) {
	return loadConfig(os.Getenv)
}

func loadConfig(getenv func(string) string) (Config, error) {
	cfg := Config{
		DSN:     getenv("DB_CONN"),
		MAASURL: getenv("MAAS_URL"),
	}

	if v := getenv("DEFAULT_DNS_TTL"); v != "" {
		ttl, err := parseUint32("DEFAULT_DNS_TTL", v)
		if err != nil {
			return Config{}, err
		}
		cfg.DefaultTTL = ttl
	}
	if v := getenv("DNS_SERIAL"); v != "" {
		serial, err := parseUint32("DNS_SERIAL", v)
		if err != nil {
			return Config{}, err
		}
		cfg.Serial = serial
	}
	if v := getenv("DB_CONNECT_ATTEMPTS"); v != "" {
		n, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return Config{}, fmt.Errorf("%w: DB_CONNECT_ATTEMPTS=%q", domain.ErrInvalidInput, v)
		}
		cfg.ConnectAttempts = uint(n)
	}

	if err := cfg.withDefaults(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// withDefaults fills zero fields of cfg from defaultConfig.
func (cfg *Config) withDefaults() error {
	if err := mergo.Merge(cfg, defaultConfig()); err != nil {
		return fmt.Errorf("merge config defaults: %w", err)
	}
	return nil
}

func parseUint32(name, v string) (uint32, error) {
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", domain.ErrInvalidInput, name, v)
	}
	return uint32(n), nil
}
