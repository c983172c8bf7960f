package configuration

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"content-publisher/infrastructure/logger"

	"github.com/spf13/viper"
)

type Config struct {
	Database    Database    `json:"database"`
	App         App         `json:"app"`
	Pubsub      Pubsub      `json:"pubsub"`
	ServiceBus  ServiceBus  `json:"serviceBus"`
	RedisClient RedisClient `json:"redisClient"`
	Logger      Logger      `json:"logger"`
	Queue       Queue       `json:"queue"`
	Platforms   Platforms   `json:"platforms"`
	OAuth       OAuth       `json:"oauth"`
}

type App struct {
	Port        int    `json:"port"`
	SecretKey   string `json:"secretKey"`
	TLSEnabled  bool   `json:"tlsEnabled"`
	TLSCertFile string `json:"tlsCertFile"`
	TLSKeyFile  string `json:"tlsKeyFile"`
	// AllowedOrigins feeds the CORS middleware.
	AllowedOrigins []string `json:"allowedOrigins"`
}

type Database struct {
	Psql  Db `json:"psql"`
	Mongo Db `json:"mongo"`
	Mssql Db `json:"mssql"`
}

type Db struct {
	Name     string `json:"name"`
	Host     string `json:"host"`
	Port     string `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	SSLMode  string `json:"sslMode"`
}

type Pubsub struct {
	ProjectID string `json:"projectID"`
	JobTopic  string `json:"jobTopic"`
}

type ServiceBus struct {
	Namespace       string `json:"namespace"`
	DeadLetterQueue string `json:"deadLetterQueue"`
}

type RedisClient struct {
	Host         string `json:"host"`
	Port         string `json:"port"`
	Password     string `json:"password"`
	DatabaseName string `json:"databaseName"`
	Username     string `json:"username"`
	// LockTTL bounds how long a refresh lock survives a crashed holder.
	LockTTL time.Duration `json:"lockTTL"`
}

type Logger struct {
	Format string `json:"format"`
	Level  string `json:"level"`
}

// Queue defaults, shared with queue.Options.
const (
	DefaultConcurrency   = 5
	DefaultMaxAttempts   = 3
	DefaultBackoffBase   = 2 * time.Second
	DefaultBackoffMax    = 5 * time.Minute
	DefaultPollInterval  = time.Second
	DefaultStaleAfter    = 30 * time.Minute
	DefaultRefreshWindow = 7 * 24 * time.Hour
	DefaultSweepInterval = 24 * time.Hour
)

// Queue tunes the durable job queue and its worker pool.
type Queue struct {
	Concurrency   int           `json:"concurrency"`
	MaxAttempts   int           `json:"maxAttempts"`
	BackoffBase   time.Duration `json:"backoffBase"`
	BackoffMax    time.Duration `json:"backoffMax"`
	PollInterval  time.Duration `json:"pollInterval"`
	StaleAfter    time.Duration `json:"staleAfter"`
	RefreshWindow time.Duration `json:"refreshWindow"`
	SweepInterval time.Duration `json:"sweepInterval"`
}

// OAuth holds the interactive login clients.
type OAuth struct {
	Facebook OAuthClient `json:"facebook"`
}

type OAuthClient struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
	RedirectURI  string `json:"redirectURI"`
}

var C Config

func init() {
	LoadConfig()
	initLogger(&C)
	initDatabase(&C)
	initApp(&C)
	initRedis(&C)
	initQueue(&C)
	initPlatforms(&C)
	if C.App.TLSEnabled && C.OAuth.Facebook.RedirectURI != "" && !hasHTTPS(C.OAuth.Facebook.RedirectURI) {
		C.OAuth.Facebook.RedirectURI = toHTTPSCallback(C.OAuth.Facebook.RedirectURI)
	}
}

func LoadConfig() {
	name := getConfig()
	viper.SetConfigName(name)
	viper.SetConfigType("json")
	viper.AddConfigPath(".")
	viper.AddConfigPath("../")
	viper.AddConfigPath("../../")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			logger.GetLogger().Warn("Config file not found")
		} else {
			logger.GetLogger().WithField("error", err).Error("Error reading config file")
		}
	}

	logger.GetLogger().WithField("config", name).Info("Config set up successfully")
	if err := viper.Unmarshal(&C); err != nil {
		logger.GetLogger().WithField("error", err).Error("Viper unable to decode into struct")
	}
}

func getConfig() string {
	name := "config"
	env := os.Getenv("ENV")
	if env != "" {
		name = fmt.Sprintf("%s-%s", name, env)
	}
	return name
}

// initLogger applies the logger section; LOG_LEVEL and LOG_FORMAT win over the file.
func initLogger(C *Config) {
	C.Logger.Level = getConfigValue(C.Logger.Level, "LOG_LEVEL", "debug")
	C.Logger.Format = getConfigValue(C.Logger.Format, "LOG_FORMAT", "json")
	logger.SetLevel(C.Logger.Level)
	logger.SetFormat(C.Logger.Format)
}

func initDatabase(C *Config) {
	logger.GetLogger().WithField("host", C.Database.Psql.Host).WithField("name", C.Database.Psql.Name).Info("Database configuration")
	C.Database.Psql.Name = getConfigValue(C.Database.Psql.Name, "DB_NAME", "publisher")
	C.Database.Psql.Host = getConfigValue(C.Database.Psql.Host, "DB_HOST", "localhost")
	C.Database.Psql.Port = getConfigValue(C.Database.Psql.Port, "DB_PORT", "5432")
	C.Database.Psql.User = getConfigValue(C.Database.Psql.User, "DB_USER", "postgres")
	C.Database.Psql.Password = getConfigValue(C.Database.Psql.Password, "DB_PASSWORD", "")
	C.Database.Psql.SSLMode = getConfigValue(C.Database.Psql.SSLMode, "DB_SSLMODE", "disable")

	// Optional MSSQL config via environment variables (Azure SQL in production)
	C.Database.Mssql.Name = getConfigValue(C.Database.Mssql.Name, "MSSQL_DB_NAME", "")
	C.Database.Mssql.Host = getConfigValue(C.Database.Mssql.Host, "MSSQL_HOST", "localhost")
	C.Database.Mssql.Port = getConfigValue(C.Database.Mssql.Port, "MSSQL_PORT", "1433")
	C.Database.Mssql.User = getConfigValue(C.Database.Mssql.User, "MSSQL_USER", "sa")
	C.Database.Mssql.Password = getConfigValue(C.Database.Mssql.Password, "MSSQL_PASSWORD", "")

	C.Database.Mongo.Host = getConfigValue(C.Database.Mongo.Host, "MONGO_HOST", "")
	C.Database.Mongo.Port = getConfigValue(C.Database.Mongo.Port, "MONGO_PORT", "27017")
	C.Database.Mongo.User = getConfigValue(C.Database.Mongo.User, "MONGO_USER", "")
	C.Database.Mongo.Password = getConfigValue(C.Database.Mongo.Password, "MONGO_PASSWORD", "")
	C.Database.Mongo.Name = getConfigValue(C.Database.Mongo.Name, "MONGO_DB_NAME", "publisher")
}

func initApp(C *Config) {
	// Prefer SECRET_KEY from environment for JWT verification; overrides config file when provided
	if v := os.Getenv("SECRET_KEY"); v != "" {
		C.App.SecretKey = v
	}
	// Port resolution order (env overrides config): APP_PORT -> PORT -> config -> default 10001
	if v := os.Getenv("APP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			C.App.Port = p
		}
	} else if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			C.App.Port = p
		}
	}
	if C.App.Port == 0 {
		C.App.Port = 10001
	}
	if v := os.Getenv("TLS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			C.App.TLSEnabled = b
		}
	}
	C.App.TLSCertFile = getConfigValue(C.App.TLSCertFile, "TLS_CERT_FILE", "")
	C.App.TLSKeyFile = getConfigValue(C.App.TLSKeyFile, "TLS_KEY_FILE", "")
	if len(C.App.AllowedOrigins) == 0 {
		C.App.AllowedOrigins = []string{"http://localhost:4200", "https://localhost:4200"}
	}
	if C.App.SecretKey == "" {
		logger.GetLogger().Warn("App.SecretKey not set; JWT authentication will fail. Provide SECRET_KEY via environment.")
	}
}

func initRedis(C *Config) {
	C.RedisClient.Host = getConfigValue(C.RedisClient.Host, "REDIS_HOST", "")
	C.RedisClient.Port = getConfigValue(C.RedisClient.Port, "REDIS_PORT", "6379")
	C.RedisClient.Username = getConfigValue(C.RedisClient.Username, "REDIS_USERNAME", "")
	C.RedisClient.Password = getConfigValue(C.RedisClient.Password, "REDIS_PASSWORD", "")
	if C.RedisClient.LockTTL <= 0 {
		C.RedisClient.LockTTL = 30 * time.Second
	}
}

func initQueue(C *Config) {
	q := &C.Queue
	if v := os.Getenv("QUEUE_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			q.Concurrency = n
		}
	}
	if q.Concurrency <= 0 {
		q.Concurrency = DefaultConcurrency
	}
	if q.MaxAttempts <= 0 {
		q.MaxAttempts = DefaultMaxAttempts
	}
	if q.BackoffBase <= 0 {
		q.BackoffBase = DefaultBackoffBase
	}
	if q.BackoffMax <= 0 {
		q.BackoffMax = DefaultBackoffMax
	}
	if q.PollInterval <= 0 {
		q.PollInterval = DefaultPollInterval
	}
	if q.StaleAfter <= 0 {
		q.StaleAfter = DefaultStaleAfter
	}
	if q.RefreshWindow <= 0 {
		q.RefreshWindow = DefaultRefreshWindow
	}
	if q.SweepInterval <= 0 {
		q.SweepInterval = DefaultSweepInterval
	}
}

// helpers to coerce local callback to https
func hasHTTPS(u string) bool { return len(u) >= 8 && u[:8] == "https://" }
func toHTTPSCallback(u string) string {
	if len(u) >= 7 && u[:7] == "http://" {
		return "https://" + u[7:]
	}
	return u
}
