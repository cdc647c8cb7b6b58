package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

const (
	minBcryptCost = 4
	maxBcryptCost = 31
)

type Config struct {
	Env        string        `yaml:"env" env:"ENV" env-default:"local" env-description:"Environment" env-choices:"local,dev,prod"`
	ApiPort    int           `yaml:"api_port" env:"API_PORT" env-default:"8080"`
	ApiHost    string        `yaml:"api_host" env:"API_HOST" env-default:"localhost"`
	JWTSecret  string        `yaml:"jwt_secret" env:"JWT_SECRET" env-description:"HMAC secret for session tokens"`
	TokenTTL   time.Duration `yaml:"token_ttl" env:"TOKEN_TTL" env-default:"1h"`
	BcryptCost int           `yaml:"bcrypt_cost" env:"BCRYPT_COST" env-default:"10"`
	Storage    Storage       `yaml:"storage"`
	Postgres   Postgres      `yaml:"postgres"`

	// GeneratedSecret is set when JWTSecret was filled in by Load because
	// none was configured.
	GeneratedSecret bool `yaml:"-"`
}

type Storage struct {
	Driver     string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"sqlite" env-choices:"sqlite,postgres"`
	SQLitePath string `yaml:"sqlite_path" env:"SQLITE_PATH" env-default:"./financial-projections.db"`
}

type Postgres struct {
	Host    string `yaml:"host" env:"POSTGRES_HOST" env-default:"localhost"`
	Port    string `yaml:"port" env:"POSTGRES_PORT" env-default:"5432"`
	User    string `yaml:"user" env:"POSTGRES_USER" env-default:"postgres"`
	Pass    string `yaml:"pass" env:"POSTGRES_PASSWORD"`
	Db      string `yaml:"db" env:"POSTGRES_DB" env-default:"financial_projections"`
	SSLMode string `yaml:"sslmode" env:"POSTGRES_SSLMODE" env-default:"disable"`
}

// URL builds the postgres:// connection string for lib/pq and migrate.
func (p Postgres) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Pass),
		Host:     p.Host + ":" + p.Port,
		Path:     "/" + p.Db,
		RawQuery: url.Values{"sslmode": {p.SSLMode}}.Encode(),
	}
	return u.String()
}

// DSN returns the data source for the configured storage driver.
func (c *Config) DSN() string {
	if c.Storage.Driver == "postgres" {
		return c.Postgres.URL()
	}
	return c.Storage.SQLitePath
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.Env {
	case EnvLocal, EnvDev, EnvProd:
	default:
		errs = append(errs, fmt.Errorf("env must be one of local, dev, prod, got %q", c.Env))
	}
	if c.ApiPort <= 0 || c.ApiPort > 65535 {
		errs = append(errs, fmt.Errorf("api_port %d out of range", c.ApiPort))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, fmt.Errorf("token_ttl must be positive, got %s", c.TokenTTL))
	}
	if c.BcryptCost < minBcryptCost || c.BcryptCost > maxBcryptCost {
		errs = append(errs, fmt.Errorf("bcrypt_cost must be in [%d, %d], got %d", minBcryptCost, maxBcryptCost, c.BcryptCost))
	}
	if err := c.ValidateStorage(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// ValidateStorage checks only what is needed to open the database.
func (c *Config) ValidateStorage() error {
	switch c.Storage.Driver {
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return errors.New("storage.sqlite_path is required for sqlite")
		}
	case "postgres":
		if c.Postgres.Host == "" || c.Postgres.Db == "" {
			return errors.New("postgres host and db are required for postgres")
		}
	default:
		return fmt.Errorf("storage.driver must be sqlite or postgres, got %q", c.Storage.Driver)
	}
	return nil
}

func MustLoad() *Config {
	cfg, err := Load(fetchConfigPath())
	if err != nil {
		panic("Failed to read config: " + err.Error())
	}
	return cfg
}

// Load reads the YAML file at path with environment overrides, or the
// environment alone when path is empty. In the local environment a missing
// JWT secret is replaced by a random one.
func Load(path string) (*Config, error) {
	cfg, err := read(path)
	if err != nil {
		return nil, err
	}

	if cfg.JWTSecret == "" && cfg.Env == EnvLocal {
		secret, err := randomSecret()
		if err != nil {
			return nil, err
		}
		cfg.JWTSecret = secret
		cfg.GeneratedSecret = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadStorage reads configuration like Load but validates only the storage
// settings. Tools that never issue sessions use it, so they run without a
// JWT secret.
func LoadStorage(path string) (*Config, error) {
	cfg, err := read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateStorage(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func read(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file does not exist: %s", path)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, err
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate jwt secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	return res
}
