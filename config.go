package main

import (
	"fmt"
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const configPathEnvVar = "NIVPLAYER_CONFIG"

type DatabaseConfig struct {
	Driver   string `koanf:"driver"` // "sqlite" or "mysql"
	Path     string `koanf:"path"`   // sqlite database file
	Host     string `koanf:"host"`
	Port     string `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	Name     string `koanf:"name"`
}

type Config struct {
	SecretKey          string         `koanf:"secret_key"`
	ListenPort         string         `koanf:"listen_port"`
	UploadDir          string         `koanf:"upload_dir"`
	ImagesDir          string         `koanf:"images_dir"`
	StaticDir          string         `koanf:"static_dir"`
	AllowRegistration  bool           `koanf:"allow_registration"`
	CreateDefaultAdmin bool           `koanf:"create_default_admin"`
	Database           DatabaseConfig `koanf:"database"`
}

func defaultConfig() Config {
	return Config{
		SecretKey:          "change-me-in-production",
		ListenPort:         "8080",
		UploadDir:          "./uploads",
		ImagesDir:          "./uploads/images",
		StaticDir:          "./static",
		AllowRegistration:  false,
		CreateDefaultAdmin: false,
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   "./nivplayer.db",
			Host:   "127.0.0.1",
			Port:   "3306",
			User:   "nivplayer",
			Name:   "nivplayer",
		},
	}
}

// envKeys maps environment variables onto koanf paths. Variables not listed
// here are ignored by the env provider.
var envKeys = map[string]string{
	"NIVPLAYER_SECRET_KEY":           "secret_key",
	"NIVPLAYER_LISTEN_PORT":          "listen_port",
	"NIVPLAYER_UPLOAD_DIR":           "upload_dir",
	"NIVPLAYER_IMAGES_DIR":           "images_dir",
	"NIVPLAYER_STATIC_DIR":           "static_dir",
	"NIVPLAYER_ALLOW_REGISTRATION":   "allow_registration",
	"NIVPLAYER_CREATE_DEFAULT_ADMIN": "create_default_admin",
	"NIVPLAYER_DATABASE_DRIVER":      "database.driver",
	"NIVPLAYER_DATABASE_PATH":        "database.path",
	"NIVPLAYER_DATABASE_HOST":        "database.host",
	"NIVPLAYER_DATABASE_PORT":        "database.port",
	"NIVPLAYER_DATABASE_USER":        "database.user",
	"NIVPLAYER_DATABASE_PASSWORD":    "database.password",
	"NIVPLAYER_DATABASE_NAME":        "database.name",
}

// loadConfig builds the configuration from three layers, later layers
// overriding earlier ones: built-in defaults, an optional YAML file, and
// NIVPLAYER_* environment variables.
func loadConfig() (*Config, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("error load config defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("NIVPLAYER_", ".", func(s string) string {
		return envKeys[s]
	}), nil); err != nil {
		return nil, fmt.Errorf("error load config from environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshal config: %w", err)
	}
	if cfg.Database.Driver != "sqlite" && cfg.Database.Driver != "mysql" {
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
	return &cfg, nil
}

func findConfigFile() string {
	if path := os.Getenv(configPathEnvVar); path != "" {
		return path
	}
	if _, err := os.Stat("nivplayer.yaml"); err == nil {
		return "nivplayer.yaml"
	}
	return ""
}
