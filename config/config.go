package config

import (
	"log"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// AppConfig holds environment driven configuration values.
// Sensitive data should never have defaults inside code and must be provided via env files or the environment.
type AppConfig struct {
	AppPort       string
	SessionSecret string
	SessionTTL    time.Duration
	// Database
	DBDriver    string
	DatabaseURI string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	// Redis backs the session store and registration throttling
	RedisHost     string
	RedisPort     int
	RedisDB       int
	RedisPassword string
	// HTTP
	RateLimitPerMinute int
	AllowedOrigins     []string
	GinMode            string
	GinPath            string
	// Logging configuration
	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
	// Uploads
	UploadDir       string
	UploadURLPrefix string
	UploadMaxMB     int
	StorageBackend  string
	MinIOEndpoint   string
	MinIOAccessKey  string
	MinIOSecretKey  string
	MinIOBucket     string
	MinIOUseSSL     bool
	// Registration security
	RegisterCaptchaEnabled     bool
	RegisterMaxPerIPPerDay     int
	RegisterAttemptCooldownSec int
	// Admins promoted at boot
	AdminUsernames []string
}

type setting struct {
	key string
	env string
	def any
}

// Grouped keys match the sections of config/config.json; env names are the flat overrides.
var settings = []setting{
	{"app.port", "APP_PORT", "8080"},
	{"app.session_secret", "SESSION_SECRET", ""},
	{"app.session_ttl", "SESSION_TTL", "24h"},
	{"app.rate_limit_per_minute", "RATE_LIMIT_PER_MINUTE", 60},
	{"app.allowed_origins", "ALLOWED_ORIGINS", []string{"*"}},
	{"app.admin_usernames", "ADMIN_USERNAMES", []string{}},
	{"gin.mode", "GIN_MODE", "release"},
	{"gin.log_path", "GIN_PATH", "logs/go_gin.log"},
	{"database.driver", "DB_DRIVER", "mysql"},
	{"database.uri", "DATABASE_URI", ""},
	{"database.host", "DB_HOST", "127.0.0.1"},
	{"database.port", "DB_PORT", "3306"},
	{"database.user", "DB_USER", "root"},
	{"database.password", "DB_PASSWORD", ""},
	{"database.name", "DB_NAME", "petos_forum_db"},
	{"redis.host", "REDIS_HOST", "127.0.0.1"},
	{"redis.port", "REDIS_PORT", 6379},
	{"redis.db", "REDIS_DB", 0},
	{"redis.password", "REDIS_PASSWORD", ""},
	{"log.level", "LOG_LEVEL", "info"},
	{"log.path", "LOG_PATH", "logs/app.log"},
	{"log.max_size_mb", "LOG_MAX_SIZE_MB", 100},
	{"log.max_backups", "LOG_MAX_BACKUPS", 3},
	{"log.max_age_days", "LOG_MAX_AGE_DAYS", 7},
	{"log.compress", "LOG_COMPRESS", false},
	{"uploads.dir", "UPLOAD_DIR", "static/images"},
	{"uploads.url_prefix", "UPLOAD_URL_PREFIX", "/public/images"},
	{"uploads.max_mb", "UPLOAD_MAX_MB", 10},
	{"uploads.backend", "STORAGE_BACKEND", "local"},
	{"minio.endpoint", "MINIO_ENDPOINT", ""},
	{"minio.access_key", "MINIO_ACCESS_KEY", ""},
	{"minio.secret_key", "MINIO_SECRET_KEY", ""},
	{"minio.bucket", "MINIO_BUCKET", "forum-uploads"},
	{"minio.use_ssl", "MINIO_USE_SSL", false},
	{"register.captcha_enabled", "REGISTER_CAPTCHA_ENABLED", false},
	{"register.max_per_ip_per_day", "REGISTER_MAX_PER_IP_PER_DAY", 5},
	{"register.attempt_cooldown_sec", "REGISTER_ATTEMPT_COOLDOWN_SEC", 10},
}

var (
	cfg    AppConfig
	loaded bool
	mu     sync.Mutex
)

// Load loads the application configuration. It should be called once during boot.
// Precedence: .env -> config/config.json -> defaults -> environment variable overrides.
func Load() AppConfig {
	mu.Lock()
	defer mu.Unlock()
	if loaded {
		return cfg
	}

	// .env is optional; missing file is not an error
	_ = godotenv.Load()

	v := newViper()
	v.SetConfigFile("config/config.json")
	if err := v.ReadInConfig(); err != nil {
		log.Printf("config/config.json not loaded (%v); using defaults and environment", err)
	}

	cfg = fromViper(v)
	if cfg.SessionSecret == "" {
		log.Fatal("SESSION_SECRET must be set in environment variables")
	}

	loaded = true
	return cfg
}

// Get returns the cached configuration, loading it if necessary.
func Get() AppConfig {
	mu.Lock()
	ok := loaded
	mu.Unlock()
	if !ok {
		return Load()
	}
	return cfg
}

// Defaults returns the built-in configuration without reading files or the environment.
func Defaults() AppConfig {
	v := viper.New()
	for _, s := range settings {
		v.SetDefault(s.key, s.def)
	}
	return fromViper(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("json")
	for _, s := range settings {
		v.SetDefault(s.key, s.def)
		_ = v.BindEnv(s.key, s.env)
	}
	return v
}

func fromViper(v *viper.Viper) AppConfig {
	ttl, err := time.ParseDuration(v.GetString("app.session_ttl"))
	if err != nil || ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return AppConfig{
		AppPort:                    v.GetString("app.port"),
		SessionSecret:              v.GetString("app.session_secret"),
		SessionTTL:                 ttl,
		RateLimitPerMinute:         v.GetInt("app.rate_limit_per_minute"),
		AllowedOrigins:             stringList(v, "app.allowed_origins"),
		AdminUsernames:             stringList(v, "app.admin_usernames"),
		GinMode:                    v.GetString("gin.mode"),
		GinPath:                    v.GetString("gin.log_path"),
		DBDriver:                   strings.ToLower(v.GetString("database.driver")),
		DatabaseURI:                v.GetString("database.uri"),
		DBHost:                     v.GetString("database.host"),
		DBPort:                     v.GetString("database.port"),
		DBUser:                     v.GetString("database.user"),
		DBPassword:                 v.GetString("database.password"),
		DBName:                     v.GetString("database.name"),
		RedisHost:                  v.GetString("redis.host"),
		RedisPort:                  v.GetInt("redis.port"),
		RedisDB:                    v.GetInt("redis.db"),
		RedisPassword:              v.GetString("redis.password"),
		LogLevel:                   v.GetString("log.level"),
		LogPath:                    v.GetString("log.path"),
		LogMaxSizeMB:               v.GetInt("log.max_size_mb"),
		LogMaxBackups:              v.GetInt("log.max_backups"),
		LogMaxAgeDays:              v.GetInt("log.max_age_days"),
		LogCompress:                v.GetBool("log.compress"),
		UploadDir:                  v.GetString("uploads.dir"),
		UploadURLPrefix:            strings.TrimRight(v.GetString("uploads.url_prefix"), "/"),
		UploadMaxMB:                v.GetInt("uploads.max_mb"),
		StorageBackend:             strings.ToLower(v.GetString("uploads.backend")),
		MinIOEndpoint:              v.GetString("minio.endpoint"),
		MinIOAccessKey:             v.GetString("minio.access_key"),
		MinIOSecretKey:             v.GetString("minio.secret_key"),
		MinIOBucket:                v.GetString("minio.bucket"),
		MinIOUseSSL:                v.GetBool("minio.use_ssl"),
		RegisterCaptchaEnabled:     v.GetBool("register.captcha_enabled"),
		RegisterMaxPerIPPerDay:     v.GetInt("register.max_per_ip_per_day"),
		RegisterAttemptCooldownSec: v.GetInt("register.attempt_cooldown_sec"),
	}
}

// stringList accepts both JSON arrays and comma-separated env values.
func stringList(v *viper.Viper, key string) []string {
	raw := v.GetStringSlice(key)
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
