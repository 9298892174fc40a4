package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const keyEnv = "ENV"
const envLocal = "local"

const (
	defaultPort          = "8765"
	defaultAppsRoot      = "/Applications"
	defaultPrimaryScope  = "Desktop"
	defaultResultCap     = 15
	defaultScopeTopK     = 5
	defaultAppsResultCap = 15
	defaultFilesDedupTTL = 500 * time.Millisecond
	defaultAppsDedupTTL  = 700 * time.Millisecond
	defaultBatchDelay    = 50 * time.Millisecond
	defaultCrawlWorkers  = 8
	defaultWarmupWorkers = 2
	defaultLogLevel      = "info"

	RankingModelRecency        = "recency"
	RankingModelAccessPriority = "access_priority"
)

// defaultAllowedOrigins are the origins of the desktop shell's webview.
var defaultAllowedOrigins = []string{"tauri://localhost", "http://tauri.localhost"}

var defaultScopeFolders = []string{"Documents", "Downloads", "Pictures", "Music", "Movies", "Library", "Public"}

type Config struct {
	config *viper.Viper
}

func Load(env string) (*Config, error) {

	if len(env) == 0 {
		if env = os.Getenv(keyEnv); len(env) == 0 {
			env = envLocal
		}
	}

	configPath, err := getConfigPath(env)

	viperConfig := viper.New()
	if err == nil {
		viperConfig.SetConfigFile(configPath)
		if err := viperConfig.ReadInConfig(); err != nil {
			slog.Warn(fmt.Sprintf("error reading config file, %s", err))
		}
	}
	viperConfig.AutomaticEnv()

	cfg := &Config{
		config: viperConfig,
	}

	return cfg, nil
}

// Set overrides a yaml key for the lifetime of the config. Used by the CLI flags and tests.
func (c *Config) Set(key string, value any) {
	c.config.Set(key, value)
}

func (c *Config) GetPort() string {
	port := c.config.GetString("PORT")
	if len(port) == 0 {
		port = c.config.GetString("server.port")
	}
	if len(port) == 0 {
		port = defaultPort
	}

	return port
}

func (c *Config) GetHomeDir() string {
	homeDir := c.config.GetString("HOME_DIR")
	if len(homeDir) == 0 {
		homeDir = c.config.GetString("paths.home")
	}
	if len(homeDir) == 0 {
		homeDir, _ = os.UserHomeDir()
	}

	return expandHome(homeDir, "")
}

// GetCacheRoot is the directory that holds every index, the icon cache and the state database.
func (c *Config) GetCacheRoot() string {
	cacheRoot := c.config.GetString("CACHE_ROOT")
	if len(cacheRoot) == 0 {
		cacheRoot = c.config.GetString("paths.cache_root")
	}
	if len(cacheRoot) == 0 {
		return filepath.Join(c.GetHomeDir(), ".cache", "aleph")
	}

	return expandHome(cacheRoot, c.GetHomeDir())
}

func (c *Config) GetAppsRoot() string {
	appsRoot := c.config.GetString("APPS_ROOT")
	if len(appsRoot) == 0 {
		appsRoot = c.config.GetString("paths.apps_root")
	}
	if len(appsRoot) == 0 {
		appsRoot = defaultAppsRoot
	}

	return expandHome(appsRoot, c.GetHomeDir())
}

func (c *Config) GetKVDBPath() string {
	kvdbPath := c.config.GetString("KVDB_PATH")
	if len(kvdbPath) == 0 {
		kvdbPath = c.config.GetString("database.kvdb_path")
	}
	if len(kvdbPath) == 0 {
		return filepath.Join(c.GetCacheRoot(), "state.db")
	}

	return expandHome(kvdbPath, c.GetHomeDir())
}

func (c *Config) GetPrimaryScope() string {
	primary := c.config.GetString("PRIMARY_SCOPE")
	if len(primary) == 0 {
		primary = c.config.GetString("scopes.primary")
	}
	if len(primary) == 0 {
		primary = defaultPrimaryScope
	}

	return primary
}

// GetScopeFolders returns the secondary scopes, as folder names relative to the home directory.
func (c *Config) GetScopeFolders() []string {
	if scopes := c.config.GetString("SCOPE_FOLDERS"); len(scopes) > 0 {
		return splitList(scopes)
	}
	if c.config.IsSet("scopes.folders") {
		return c.config.GetStringSlice("scopes.folders")
	}

	return append([]string(nil), defaultScopeFolders...)
}

// GetAllowedOrigins lists the browser origins that may call the HTTP API. Requests without an
// Origin header are not browser requests and are not affected.
func (c *Config) GetAllowedOrigins() []string {
	if origins := c.config.GetString("ALLOWED_ORIGINS"); len(origins) > 0 {
		return splitList(origins)
	}
	if c.config.IsSet("server.allowed_origins") {
		return c.config.GetStringSlice("server.allowed_origins")
	}

	return append([]string(nil), defaultAllowedOrigins...)
}

func (c *Config) GetResultCap() int {
	return c.getInt("RESULT_CAP", "search.result_cap", defaultResultCap)
}

func (c *Config) GetScopeTopK() int {
	return c.getInt("SCOPE_TOP_K", "search.scope_top_k", defaultScopeTopK)
}

func (c *Config) GetAppsResultCap() int {
	return c.getInt("APPS_RESULT_CAP", "search.apps_result_cap", defaultAppsResultCap)
}

func (c *Config) GetRankingModel() string {
	model := c.config.GetString("RANKING_MODEL")
	if len(model) == 0 {
		model = c.config.GetString("search.ranking_model")
	}
	if model != RankingModelAccessPriority {
		model = RankingModelRecency
	}

	return model
}

func (c *Config) GetFilesDedupTTL() time.Duration {
	return c.getDuration("FILES_DEDUP_TTL", "watch.files_dedup_ttl", defaultFilesDedupTTL)
}

func (c *Config) GetAppsDedupTTL() time.Duration {
	return c.getDuration("APPS_DEDUP_TTL", "watch.apps_dedup_ttl", defaultAppsDedupTTL)
}

func (c *Config) GetWatchBatchDelay() time.Duration {
	return c.getDuration("WATCH_BATCH_DELAY", "watch.batch_delay", defaultBatchDelay)
}

func (c *Config) GetCrawlWorkers() int {
	return c.getInt("CRAWL_WORKERS", "crawl.workers", defaultCrawlWorkers)
}

func (c *Config) GetWarmupWorkers() int {
	return c.getInt("WARMUP_WORKERS", "tasks.warmup_workers", defaultWarmupWorkers)
}

func (c *Config) GetLogLevel() string {
	level := c.config.GetString("LOG_LEVEL")
	if len(level) == 0 {
		level = c.config.GetString("logging.level")
	}
	if len(level) == 0 {
		level = defaultLogLevel
	}

	return level
}

// GetLogDir returns an empty string when file logging is disabled.
func (c *Config) GetLogDir() string {
	logDir := c.config.GetString("LOG_DIR")
	if len(logDir) == 0 {
		logDir = c.config.GetString("logging.dir")
	}
	if len(logDir) == 0 {
		return ""
	}

	return expandHome(logDir, c.GetHomeDir())
}

func (c *Config) getInt(envKey string, yamlKey string, fallback int) int {
	value := c.config.GetInt(envKey)
	if value <= 0 {
		value = c.config.GetInt(yamlKey)
	}
	if value <= 0 {
		value = fallback
	}

	return value
}

func (c *Config) getDuration(envKey string, yamlKey string, fallback time.Duration) time.Duration {
	value := c.config.GetDuration(envKey)
	if value <= 0 {
		value = c.config.GetDuration(yamlKey)
	}
	if value <= 0 {
		value = fallback
	}

	return value
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func expandHome(path string, homeDir string) string {
	if homeDir == "" || !strings.HasPrefix(path, "~") {
		return path
	}
	return filepath.Join(homeDir, strings.TrimPrefix(path, "~"))
}

func getProjectRoot() (string, error) {
	currentDir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current working directory: %w", err)
	}

	for {
		configDir := filepath.Join(currentDir, "config")
		if info, err := os.Stat(configDir); err == nil && info.IsDir() {
			return currentDir, nil
		}

		parent := filepath.Dir(currentDir)

		if parent == currentDir {
			break
		}

		currentDir = parent
	}

	return "", fmt.Errorf("could not find project root (directory containing 'config' folder)")
}

func getConfigPath(env string) (string, error) {
	configFile := fmt.Sprintf("config.%s.yaml", env)

	projectRoot, err := getProjectRoot()
	if err != nil {
		slog.Warn("failed to find project root with config directory, will use environment variables instead", "err", err.Error())
		return "", fmt.Errorf("failed to find project root: %w", err)
	}
	configPath := filepath.Join(projectRoot, "config", configFile)
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		slog.Warn("failed to find config file within config directory, will use environment variables instead", "err", err.Error())
		return "", fmt.Errorf("config file does not exist: %s", configPath)
	}

	return configPath, nil
}
