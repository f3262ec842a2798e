package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// ServerConfig is the environment of the HTTP server and CLI.
type ServerConfig struct {
	Listen         string   // SPM_LISTEN
	DBPath         string   // SPM_DB_PATH
	DatabaseURL    string   // DATABASE_URL; selects the Postgres store when set
	DataDir        string   // SPM_DATA_DIR
	AnalysisConfig string   // SPM_ANALYSIS_CONFIG
	CORSOrigins    []string // SPM_CORS_ORIGINS, comma separated
	UploadDir      string   // SPM_UPLOAD_DIR; empty disables archiving uploads
}

// DefaultServerConfig is used for anything the environment leaves unset.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Listen:      ":8080",
		DBPath:      "spm.db",
		DataDir:     "reference_data",
		CORSOrigins: []string{"*"},
		UploadDir:   "uploads",
	}
}

// LoadServerConfig reads .env and then .env.local from dir into the process
// environment, without replacing variables already set, and builds a
// ServerConfig from it. Missing dotenv files are not an error.
func LoadServerConfig(dir string) (ServerConfig, error) {
	// godotenv.Load never overrides, so the more specific file goes first.
	for _, name := range []string{".env.local", ".env"} {
		err := godotenv.Load(filepath.Join(dir, name))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return ServerConfig{}, fmt.Errorf("failed to load %s: %w", name, err)
		}
	}
	return ServerConfigFromEnv(os.Getenv), nil
}

// ServerConfigFromEnv builds a ServerConfig from a getenv function.
func ServerConfigFromEnv(getenv func(string) string) ServerConfig {
	cfg := DefaultServerConfig()
	if v := getenv("SPM_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := getenv("SPM_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	cfg.DatabaseURL = getenv("DATABASE_URL")
	if v := getenv("SPM_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	cfg.AnalysisConfig = getenv("SPM_ANALYSIS_CONFIG")
	if v, ok := lookup(getenv, "SPM_UPLOAD_DIR"); ok {
		cfg.UploadDir = v
	}
	if v := getenv("SPM_CORS_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		if len(origins) > 0 {
			cfg.CORSOrigins = origins
		}
	}
	return cfg
}

// lookup treats "-" as an explicit empty value so a default can be cleared.
func lookup(getenv func(string) string, key string) (string, bool) {
	switch v := getenv(key); v {
	case "":
		return "", false
	case "-":
		return "", true
	default:
		return v, true
	}
}

// Analysis loads the analysis config named by SPM_ANALYSIS_CONFIG, or the
// built-in defaults when it is unset.
func (s ServerConfig) Analysis() (*AnalysisConfig, error) {
	if s.AnalysisConfig == "" {
		return DefaultAnalysisConfig(), nil
	}
	return LoadAnalysisConfig(s.AnalysisConfig)
}
