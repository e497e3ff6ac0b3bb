package config

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// AppConfig holds environment driven configuration values.
// Sensitive data should never have defaults inside code and must be provided via config files or the environment.
type AppConfig struct {
	AppPort            string
	JWTSecret          string
	DatabaseURI        string
	DBHost             string
	DBPort             string
	DBUser             string
	DBPassword         string
	DBName             string
	GitHubClientID     string
	GitHubClientSecret string
	GoogleClientID     string
	GoogleClientSecret string
	RateLimitPerMinute int
	AllowedOrigins     []string
	OAuthRedirectBase  string
	// Gin framework configuration
	GinMode string
	GinPath string
	// Daily rewards engine
	RewardResetHourUTC int
	RewardPointsTable  []int
	// Web push (VAPID)
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubject    string
	// SMTP for verification codes and contact relay
	SMTPHost       string
	SMTPPort       int
	SMTPUsername   string
	SMTPPassword   string
	SMTPFrom       string
	SMTPFromName   string
	SMTPTLS        bool
	ContactInbox   string
	// Redis for caching/verification
	RedisHost     string
	RedisPort     int
	RedisDB       int
	RedisPassword string
	// Logging configuration
	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
	// Registration security
	RegisterMaxPerIPPerDay        int
	RegisterAttemptCooldownSec    int
	RegisterFailedMaxPerIPPerHour int
	RegisterTempBanMinutes        int
	// Admins
	AdminUsernames []string
}

var cfg AppConfig
var loaded bool

// Load loads the application configuration. It should be called once during boot.
// Precedence: config/config.json -> defaults -> environment variable overrides.
func Load() AppConfig {
	if loaded {
		return cfg
	}

	_ = loadJSONConfig(filepath.Join("config", "config.json"), &cfg)
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set in environment variables")
	}

	loaded = true
	return cfg
}

// Get returns the cached configuration, loading it if necessary.
func Get() AppConfig {
	if !loaded {
		return Load()
	}
	return cfg
}

// SetForTest replaces the cached configuration. Test helper only.
func SetForTest(c AppConfig) {
	cfg = c
	loaded = true
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// loadJSONConfig reads JSON file into cfg if present. Returns error only for invalid JSON.
func loadJSONConfig(path string, out *AppConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return nil // silently ignore missing file
	}
	defer f.Close()

	var raw map[string]any
	dec := json.NewDecoder(f)
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	getString := func(m map[string]any, key string) string {
		if v, ok := m[key]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
		return ""
	}
	getInt := func(m map[string]any, key string) int {
		if v, ok := m[key]; ok {
			switch t := v.(type) {
			case float64:
				return int(t)
			case int:
				return t
			case json.Number:
				i, _ := t.Int64()
				return int(i)
			}
		}
		return 0
	}
	getBool := func(m map[string]any, key string) bool {
		if v, ok := m[key]; ok {
			if b, ok := v.(bool); ok {
				return b
			}
		}
		return false
	}
	getStringSlice := func(m map[string]any, key string) []string {
		if v, ok := m[key]; ok {
			if arr, ok := v.([]any); ok {
				res := make([]string, 0, len(arr))
				for _, it := range arr {
					if s, ok := it.(string); ok {
						res = append(res, s)
					}
				}
				return res
			}
		}
		return nil
	}
	getIntSlice := func(m map[string]any, key string) []int {
		if v, ok := m[key]; ok {
			if arr, ok := v.([]any); ok {
				res := make([]int, 0, len(arr))
				for _, it := range arr {
					if f, ok := it.(float64); ok {
						res = append(res, int(f))
					}
				}
				return res
			}
		}
		return nil
	}

	if app, ok := raw["app"].(map[string]any); ok {
		out.AppPort = getString(app, "AppPort")
		out.JWTSecret = getString(app, "JWTSecret")
		if v := getInt(app, "RateLimitPerMinute"); v != 0 {
			out.RateLimitPerMinute = v
		}
		if list := getStringSlice(app, "AllowedOrigins"); len(list) > 0 {
			out.AllowedOrigins = list
		}
		out.OAuthRedirectBase = getString(app, "OAuthRedirectBase")
		out.GinMode = getString(app, "GinMode")
		out.GinPath = getString(app, "GinPath")
		if list := getStringSlice(app, "AdminUsernames"); len(list) > 0 {
			out.AdminUsernames = list
		}
	}
	if db, ok := raw["database"].(map[string]any); ok {
		out.DatabaseURI = getString(db, "DatabaseURI")
		out.DBHost = getString(db, "DBHost")
		out.DBPort = getString(db, "DBPort")
		out.DBUser = getString(db, "DBUser")
		out.DBPassword = getString(db, "DBPassword")
		out.DBName = getString(db, "DBName")
	}
	if rd, ok := raw["redis"].(map[string]any); ok {
		out.RedisHost = getString(rd, "RedisHost")
		if v := getInt(rd, "RedisPort"); v != 0 {
			out.RedisPort = v
		}
		out.RedisDB = getInt(rd, "RedisDB")
		out.RedisPassword = getString(rd, "RedisPassword")
	}
	if rw, ok := raw["rewards"].(map[string]any); ok {
		out.RewardResetHourUTC = getInt(rw, "ResetHourUTC")
		if list := getIntSlice(rw, "PointsTable"); len(list) > 0 {
			out.RewardPointsTable = list
		}
	}
	if push, ok := raw["push"].(map[string]any); ok {
		out.VAPIDPublicKey = getString(push, "VAPIDPublicKey")
		out.VAPIDPrivateKey = getString(push, "VAPIDPrivateKey")
		out.VAPIDSubject = getString(push, "VAPIDSubject")
	}
	if smtp, ok := raw["smtp"].(map[string]any); ok {
		out.SMTPHost = getString(smtp, "SMTPHost")
		if v := getInt(smtp, "SMTPPort"); v != 0 {
			out.SMTPPort = v
		}
		out.SMTPUsername = getString(smtp, "SMTPUsername")
		out.SMTPPassword = getString(smtp, "SMTPPassword")
		out.SMTPFrom = getString(smtp, "SMTPFrom")
		out.SMTPFromName = getString(smtp, "SMTPFromName")
		out.SMTPTLS = getBool(smtp, "SMTPTLS")
		out.ContactInbox = getString(smtp, "ContactInbox")
	}
	if lg, ok := raw["log"].(map[string]any); ok {
		out.LogLevel = getString(lg, "LogLevel")
		out.LogPath = getString(lg, "LogPath")
		if v := getInt(lg, "LogMaxSizeMB"); v != 0 {
			out.LogMaxSizeMB = v
		}
		if v := getInt(lg, "LogMaxBackups"); v != 0 {
			out.LogMaxBackups = v
		}
		if v := getInt(lg, "LogMaxAgeDays"); v != 0 {
			out.LogMaxAgeDays = v
		}
		out.LogCompress = getBool(lg, "LogCompress")
	}
	if oauth, ok := raw["oauth"].(map[string]any); ok {
		out.GitHubClientID = getString(oauth, "GitHubClientID")
		out.GitHubClientSecret = getString(oauth, "GitHubClientSecret")
		out.GoogleClientID = getString(oauth, "GoogleClientID")
		out.GoogleClientSecret = getString(oauth, "GoogleClientSecret")
	}
	if reg, ok := raw["register"].(map[string]any); ok {
		out.RegisterMaxPerIPPerDay = getInt(reg, "MaxPerIPPerDay")
		out.RegisterAttemptCooldownSec = getInt(reg, "AttemptCooldownSec")
		out.RegisterFailedMaxPerIPPerHour = getInt(reg, "FailedMaxPerIPPerHour")
		out.RegisterTempBanMinutes = getInt(reg, "TempBanMinutes")
	}

	return nil
}

func applyDefaults(c *AppConfig) {
	if c.AppPort == "" {
		c.AppPort = "8080"
	}
	if c.GinMode == "" {
		c.GinMode = "release"
	}
	if c.GinPath == "" {
		c.GinPath = "logs/go_gin.log"
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = 60
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.OAuthRedirectBase == "" {
		c.OAuthRedirectBase = "http://localhost:8080"
	}
	if c.DBHost == "" {
		c.DBHost = "127.0.0.1"
	}
	if c.DBPort == "" {
		c.DBPort = "3306"
	}
	if c.DBUser == "" {
		c.DBUser = "root"
	}
	if c.DBName == "" {
		c.DBName = "emberhub"
	}
	// Reset hour 0 means cycle keys equal plain UTC calendar dates.
	if len(c.RewardPointsTable) == 0 {
		c.RewardPointsTable = []int{10, 10, 20, 20, 30, 30, 30}
	}
	if c.VAPIDSubject == "" {
		c.VAPIDSubject = "mailto:admin@emberhub.io"
	}
	if c.SMTPPort == 0 {
		c.SMTPPort = 587
	}
	if c.RedisHost == "" {
		c.RedisHost = "127.0.0.1"
	}
	if c.RedisPort == 0 {
		c.RedisPort = 6379
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogMaxSizeMB == 0 {
		c.LogMaxSizeMB = 100
	}
	if c.LogMaxBackups == 0 {
		c.LogMaxBackups = 3
	}
	if c.LogMaxAgeDays == 0 {
		c.LogMaxAgeDays = 7
	}
	// Registration hardening defaults
	if c.RegisterMaxPerIPPerDay == 0 {
		c.RegisterMaxPerIPPerDay = 5
	}
	if c.RegisterAttemptCooldownSec == 0 {
		c.RegisterAttemptCooldownSec = 10
	}
	if c.RegisterFailedMaxPerIPPerHour == 0 {
		c.RegisterFailedMaxPerIPPerHour = 20
	}
	if c.RegisterTempBanMinutes == 0 {
		c.RegisterTempBanMinutes = 60
	}
}

// applyEnvOverrides maps known environment variables onto config values when present.
func applyEnvOverrides(c *AppConfig) {
	if v := getEnv("APP_PORT", ""); v != "" {
		c.AppPort = v
	}
	if v := getEnv("JWT_SECRET", ""); v != "" {
		c.JWTSecret = v
	}
	if v := getEnv("DATABASE_URI", ""); v != "" {
		c.DatabaseURI = v
	}
	if v := getEnv("DB_HOST", ""); v != "" {
		c.DBHost = v
	}
	if v := getEnv("DB_PORT", ""); v != "" {
		c.DBPort = v
	}
	if v := getEnv("DB_USER", ""); v != "" {
		c.DBUser = v
	}
	if v := getEnv("DB_PASSWORD", ""); v != "" {
		c.DBPassword = v
	}
	if v := getEnv("DB_NAME", ""); v != "" {
		c.DBName = v
	}
	if v := getEnv("GIN_MODE", ""); v != "" {
		c.GinMode = v
	}
	if v := getEnv("RATE_LIMIT_PER_MINUTE", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RateLimitPerMinute = n
		}
	}
	if v := getEnv("ALLOWED_ORIGINS", ""); v != "" {
		parts := strings.Split(v, ",")
		res := make([]string, 0, len(parts))
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				res = append(res, s)
			}
		}
		if len(res) > 0 {
			c.AllowedOrigins = res
		}
	}
	if v := getEnv("OAUTH_REDIRECT_BASE", ""); v != "" {
		c.OAuthRedirectBase = v
	}
	if v := getEnv("GITHUB_CLIENT_ID", ""); v != "" {
		c.GitHubClientID = v
	}
	if v := getEnv("GITHUB_CLIENT_SECRET", ""); v != "" {
		c.GitHubClientSecret = v
	}
	if v := getEnv("GOOGLE_CLIENT_ID", ""); v != "" {
		c.GoogleClientID = v
	}
	if v := getEnv("GOOGLE_CLIENT_SECRET", ""); v != "" {
		c.GoogleClientSecret = v
	}
	if v := getEnv("REWARD_RESET_HOUR_UTC", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 && n <= 23 {
			c.RewardResetHourUTC = n
		}
	}
	if v := getEnv("VAPID_PUBLIC_KEY", ""); v != "" {
		c.VAPIDPublicKey = v
	}
	if v := getEnv("VAPID_PRIVATE_KEY", ""); v != "" {
		c.VAPIDPrivateKey = v
	}
	if v := getEnv("VAPID_SUBJECT", ""); v != "" {
		c.VAPIDSubject = v
	}
	if v := getEnv("SMTP_HOST", ""); v != "" {
		c.SMTPHost = v
	}
	if v := getEnv("SMTP_PORT", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.SMTPPort = n
		}
	}
	if v := getEnv("SMTP_USERNAME", ""); v != "" {
		c.SMTPUsername = v
	}
	if v := getEnv("SMTP_PASSWORD", ""); v != "" {
		c.SMTPPassword = v
	}
	if v := getEnv("SMTP_FROM", ""); v != "" {
		c.SMTPFrom = v
	}
	if v := getEnv("SMTP_FROM_NAME", ""); v != "" {
		c.SMTPFromName = v
	}
	if v := getEnv("SMTP_TLS", ""); v != "" {
		c.SMTPTLS = v == "1" || strings.EqualFold(v, "true")
	}
	if v := getEnv("CONTACT_INBOX", ""); v != "" {
		c.ContactInbox = v
	}
	if v := getEnv("REDIS_HOST", ""); v != "" {
		c.RedisHost = v
	}
	if v := getEnv("REDIS_PORT", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RedisPort = n
		}
	}
	if v := getEnv("REDIS_DB", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RedisDB = n
		}
	}
	if v := getEnv("REDIS_PASSWORD", ""); v != "" {
		c.RedisPassword = v
	}
	if v := getEnv("LOG_LEVEL", ""); v != "" {
		c.LogLevel = v
	}
	if v := getEnv("LOG_PATH", ""); v != "" {
		c.LogPath = v
	}
	if v := getEnv("ADMIN_USERNAMES", ""); v != "" {
		parts := strings.Split(v, ",")
		res := make([]string, 0, len(parts))
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				res = append(res, s)
			}
		}
		if len(res) > 0 {
			c.AdminUsernames = res
		}
	}
}
