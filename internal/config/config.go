package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	settingsFile     = "config/setting.ini"
	defaultEnv       = "dev"
	envConfigPattern = "config/%s/fay.ini"
	envPrefix        = "FAY_"
)

// Settings contains global toggles such as the active environment.
type Settings struct {
	Environment string
	Defaults    map[string]string
}

// Config describes runtime options for the daemon and CLI.
type Config struct {
	Environment string

	HTTPAddress     string
	LogFile         string
	LogLevel        string
	LogPretty       bool
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration

	// ContentDBPath is the sqlite file used unless ContentDSN names a
	// postgres database.
	ContentDBPath  string
	ContentDSN     string
	ModelDBPath    string
	AssetDir       string
	MaxUploadBytes int64

	LLMAPIKey     string
	LLMBaseURL    string
	LLMModel      string
	LLMTimeout    time.Duration
	LLMMaxRetries int
	LLMMaxTokens  int

	HistoryLimit  int
	MaxGenerators int
	QAFile        string
	QAWatch       bool
}

// UsePostgres reports whether the content store should use ContentDSN.
func (c Config) UsePostgres() bool {
	dsn := strings.ToLower(strings.TrimSpace(c.ContentDSN))
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// Load reads .env, the settings file and the environment specific file under
// root. FAY_* variables override file values.
func Load(root string) (Config, error) {
	if root == "" {
		root = "."
	}
	// Existing process variables win over .env entries.
	if err := godotenv.Load(filepath.Join(root, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	s, err := loadSettings(root)
	if err != nil {
		return Config{}, err
	}
	envValues, err := parseINI(filepath.Join(root, fmt.Sprintf(envConfigPattern, s.Environment)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			envValues = map[string]string{}
		} else {
			return Config{}, err
		}
	}
	merged := make(map[string]string, len(s.Defaults)+len(envValues))
	for k, v := range s.Defaults {
		merged[k] = v
	}
	for k, v := range envValues {
		merged[k] = v
	}
	get := func(key string) string {
		return strings.TrimSpace(firstNonEmpty(os.Getenv(envPrefix+strings.ToUpper(key)), merged[key]))
	}
	dataDir := firstNonEmpty(get("data_dir"), filepath.Join(root, "data"))

	cfg := Config{
		Environment:   s.Environment,
		HTTPAddress:   firstNonEmpty(get("http_address"), ":5000"),
		LogFile:       firstNonEmpty(get("log_file"), filepath.Join(root, "logs", "fay.log")),
		LogLevel:      firstNonEmpty(get("log_level"), "info"),
		LogPretty:     parseBool(get("log_pretty")),
		ContentDBPath: firstNonEmpty(get("content_db_path"), filepath.Join(dataDir, "fay.db")),
		ContentDSN:    get("content_dsn"),
		ModelDBPath:   firstNonEmpty(get("model_db_path"), filepath.Join(dataDir, "user_profiles.db")),
		AssetDir:      firstNonEmpty(get("asset_dir"), filepath.Join(dataDir, "models")),
		LLMAPIKey:     get("llm_api_key"),
		LLMBaseURL:    get("llm_base_url"),
		LLMModel:      firstNonEmpty(get("llm_model"), "gpt-4o-mini"),
		QAFile:        firstNonEmpty(get("qa_file"), filepath.Join(dataDir, "qa.yaml")),
		QAWatch:       parseOptionalBool(get("qa_watch"), true),
	}

	durations := []struct {
		key  string
		def  time.Duration
		dest *time.Duration
	}{
		{"request_timeout", 120 * time.Second, &cfg.RequestTimeout},
		{"shutdown_timeout", 10 * time.Second, &cfg.ShutdownTimeout},
		{"llm_timeout", 60 * time.Second, &cfg.LLMTimeout},
	}
	for _, d := range durations {
		v, err := parseDuration(d.key, get(d.key), d.def)
		if err != nil {
			return Config{}, err
		}
		*d.dest = v
	}

	ints := []struct {
		key  string
		def  int
		dest *int
	}{
		{"llm_max_retries", 3, &cfg.LLMMaxRetries},
		{"llm_max_tokens", 200, &cfg.LLMMaxTokens},
		{"history_limit", 30, &cfg.HistoryLimit},
		{"max_generators", 64, &cfg.MaxGenerators},
	}
	for _, i := range ints {
		v, err := parseInt(i.key, get(i.key), i.def)
		if err != nil {
			return Config{}, err
		}
		*i.dest = v
	}

	maxUpload, err := parseInt("max_upload_bytes", get("max_upload_bytes"), 100<<20)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxUploadBytes = int64(maxUpload)
	return cfg, nil
}

func loadSettings(root string) (Settings, error) {
	values, err := parseINI(filepath.Join(root, settingsFile))
	if errors.Is(err, os.ErrNotExist) {
		values = map[string]string{}
	} else if err != nil {
		return Settings{}, err
	}
	env := firstNonEmpty(os.Getenv(envPrefix+"ENVIRONMENT"), values["environment"], defaultEnv)
	defaults := make(map[string]string)
	for k, v := range values {
		if k == "environment" {
			continue
		}
		defaults[k] = v
	}
	return Settings{Environment: strings.TrimSpace(env), Defaults: defaults}, nil
}

func parseINI(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "[") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		values[strings.ToLower(key)] = strings.TrimSpace(val)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return values, nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseOptionalBool(v string, fallback bool) bool {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return parseBool(v)
}

func parseInt(key, v string, fallback int) (int, error) {
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid %s %q: must not be negative", key, v)
	}
	return n, nil
}

func parseDuration(key, v string, fallback time.Duration) (time.Duration, error) {
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
