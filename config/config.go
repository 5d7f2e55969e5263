package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config contiene todas las configuraciones del servicio
type Config struct {
	Server        ServerConfig       `toml:"server"`
	GRPC          GRPCConfig         `toml:"grpc"`
	Database      DatabaseConfig     `toml:"database"`
	JWT           JWTConfig          `toml:"jwt"`
	WebSocket     WebSocketConfig    `toml:"websocket"`
	Subscriptions SubscriptionConfig `toml:"subscriptions"`
	Fanout        FanoutConfig       `toml:"fanout"`
	Throttling    ThrottlingConfig   `toml:"throttling"`
	Monitoring    MonitoringConfig   `toml:"monitoring"`
	Logging       LoggingConfig      `toml:"logging"`
}

// ServerConfig contiene la configuración del servidor HTTP
type ServerConfig struct {
	ServiceID       string        `toml:"service_id"`
	Port            int           `toml:"port"`
	ReadTimeout     time.Duration `toml:"read_timeout"`
	WriteTimeout    time.Duration `toml:"write_timeout"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
}

// GRPCConfig contiene la configuración del servidor gRPC de salud
type GRPCConfig struct {
	Enabled bool `toml:"enabled"`
	Port    int  `toml:"port"`
}

// DatabaseConfig contiene la configuración de la base de datos
type DatabaseConfig struct {
	// Driver es "postgres" o "sqlite"
	Driver         string        `toml:"driver"`
	Host           string        `toml:"host"`
	Port           int           `toml:"port"`
	User           string        `toml:"user"`
	Password       string        `toml:"password"`
	Name           string        `toml:"name"`
	Schema         string        `toml:"schema"`
	SSLMode        string        `toml:"ssl_mode"`
	SQLitePath     string        `toml:"sqlite_path"`
	MaxOpenConns   int           `toml:"max_open_conns"`
	ConnectTimeout time.Duration `toml:"connect_timeout"`
	AutoMigrate    bool          `toml:"auto_migrate"`
}

// JWTConfig contiene la configuración de JWT
type JWTConfig struct {
	Secret      string        `toml:"secret"`
	TokenExpiry time.Duration `toml:"token_expiry"`
}

// WebSocketConfig contiene la configuración del servidor WebSocket
type WebSocketConfig struct {
	Path              string        `toml:"path"`
	PingInterval      time.Duration `toml:"ping_interval"`
	PongWait          time.Duration `toml:"pong_wait"`
	MaxMessageSize    int64         `toml:"max_message_size"`
	WriteWait         time.Duration `toml:"write_wait"`
	MessageBufferSize int           `toml:"message_buffer_size"`
	CleanupInterval   time.Duration `toml:"cleanup_interval"`
	InactivityTimeout time.Duration `toml:"inactivity_timeout"`
}

// SubscriptionConfig contiene la configuración del coordinador de suscripciones
type SubscriptionConfig struct {
	Workers   int `toml:"workers"`
	QueueSize int `toml:"queue_size"`
	MaxLimit  int `toml:"max_limit"`
}

// FanoutConfig contiene la configuración del reparto de eventos de dominio
type FanoutConfig struct {
	// Mode es "local" (un solo proceso) o "nats" (clúster)
	Mode          string        `toml:"mode"`
	NatsURL       string        `toml:"nats_url"`
	SubjectPrefix string        `toml:"subject_prefix"`
	ConnectWait   time.Duration `toml:"connect_wait"`
	// Los mensajes del bus a partir de este tamaño viajan comprimidos con zstd; 0 desactiva
	CompressionThreshold int `toml:"compression_threshold"`
	CompressionLevel     int `toml:"compression_level"`
}

// ThrottlingConfig contiene los límites de comandos por sesión
type ThrottlingConfig struct {
	CommandsPerSecond float64       `toml:"commands_per_second"`
	Burst             int           `toml:"burst"`
	Expiry            time.Duration `toml:"expiry"`
}

// MonitoringConfig contiene la configuración de monitoreo
type MonitoringConfig struct {
	MetricsEnabled bool `toml:"metrics_enabled"`
}

// LoggingConfig contiene la configuración de logging
type LoggingConfig struct {
	Level     string `toml:"level"`
	UseColors bool   `toml:"use_colors"`
	Directory string `toml:"directory"`
}

// Default devuelve la configuración por defecto
func Default() *Config {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "notification-sync"
	}

	return &Config{
		Server: ServerConfig{
			ServiceID:       hostname,
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		GRPC: GRPCConfig{
			Enabled: true,
			Port:    9090,
		},
		Database: DatabaseConfig{
			Driver:         "postgres",
			Host:           "localhost",
			Port:           5432,
			User:           "postgres",
			Password:       "postgres",
			Name:           "notification",
			Schema:         "public",
			SSLMode:        "disable",
			SQLitePath:     "notifications.db",
			MaxOpenConns:   20,
			ConnectTimeout: 30 * time.Second,
			AutoMigrate:    true,
		},
		JWT: JWTConfig{
			Secret:      "your-secret-key",
			TokenExpiry: 24 * time.Hour,
		},
		WebSocket: WebSocketConfig{
			Path:              "/ws",
			PingInterval:      54 * time.Second,
			PongWait:          60 * time.Second,
			MaxMessageSize:    4096,
			WriteWait:         10 * time.Second,
			MessageBufferSize: 256,
			CleanupInterval:   time.Minute,
			InactivityTimeout: 5 * time.Minute,
		},
		Subscriptions: SubscriptionConfig{
			Workers:   16,
			QueueSize: 4096,
			MaxLimit:  100,
		},
		Fanout: FanoutConfig{
			Mode:                 "local",
			NatsURL:              "nats://localhost:4222",
			SubjectPrefix:        "notifications",
			ConnectWait:          30 * time.Second,
			CompressionThreshold: 1024,
			CompressionLevel:     1,
		},
		Throttling: ThrottlingConfig{
			CommandsPerSecond: 20,
			Burst:             40,
			Expiry:            10 * time.Minute,
		},
		Monitoring: MonitoringConfig{
			MetricsEnabled: true,
		},
		Logging: LoggingConfig{
			Level:     "INFO",
			UseColors: false,
		},
	}
}

// LoadConfig carga la configuración: valores por defecto, archivo TOML opcional y variables de entorno
func LoadConfig(configPath string) (*Config, error) {
	// Cargar variables de entorno del archivo .env si existe
	_ = godotenv.Load() // No importa si falla (en producción no se usa .env)

	config := Default()

	if configPath == "" {
		configPath = os.Getenv("CONFIG_FILE")
	}
	if configPath != "" {
		if _, err := toml.DecodeFile(configPath, config); err != nil {
			return nil, fmt.Errorf("failed to decode config file %s: %w", configPath, err)
		}
	}

	applyEnv(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// applyEnv sobrescribe con las variables de entorno presentes
func applyEnv(c *Config) {
	c.Server.ServiceID = getEnv("SERVICE_ID", c.Server.ServiceID)
	c.Server.Port = getEnvAsInt("SERVER_PORT", c.Server.Port)
	c.Server.ReadTimeout = getEnvAsDuration("SERVER_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvAsDuration("SERVER_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.ShutdownTimeout = getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)

	c.GRPC.Enabled = getEnvAsBool("GRPC_ENABLED", c.GRPC.Enabled)
	c.GRPC.Port = getEnvAsInt("GRPC_PORT", c.GRPC.Port)

	c.Database.Driver = getEnv("DB_DRIVER", c.Database.Driver)
	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = getEnvAsInt("DB_PORT", c.Database.Port)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.Name = getEnv("DB_NAME", c.Database.Name)
	c.Database.Schema = getEnv("DB_SCHEMA", c.Database.Schema)
	c.Database.SSLMode = getEnv("DB_SSLMODE", c.Database.SSLMode)
	c.Database.SQLitePath = getEnv("DB_SQLITE_PATH", c.Database.SQLitePath)
	c.Database.MaxOpenConns = getEnvAsInt("DB_MAX_OPEN_CONNS", c.Database.MaxOpenConns)
	c.Database.ConnectTimeout = getEnvAsDuration("DB_CONNECT_TIMEOUT", c.Database.ConnectTimeout)
	c.Database.AutoMigrate = getEnvAsBool("DB_AUTO_MIGRATE", c.Database.AutoMigrate)

	c.JWT.Secret = getEnv("JWT_SECRET", c.JWT.Secret)
	c.JWT.TokenExpiry = getEnvAsDuration("JWT_TOKEN_EXPIRY", c.JWT.TokenExpiry)

	c.WebSocket.Path = getEnv("WS_PATH", c.WebSocket.Path)
	c.WebSocket.PingInterval = getEnvAsDuration("WS_PING_INTERVAL", c.WebSocket.PingInterval)
	c.WebSocket.PongWait = getEnvAsDuration("WS_PONG_WAIT", c.WebSocket.PongWait)
	c.WebSocket.MaxMessageSize = getEnvAsInt64("WS_MAX_MESSAGE_SIZE", c.WebSocket.MaxMessageSize)
	c.WebSocket.WriteWait = getEnvAsDuration("WS_WRITE_WAIT", c.WebSocket.WriteWait)
	c.WebSocket.MessageBufferSize = getEnvAsInt("WS_MESSAGE_BUFFER_SIZE", c.WebSocket.MessageBufferSize)
	c.WebSocket.CleanupInterval = getEnvAsDuration("WS_CLEANUP_INTERVAL", c.WebSocket.CleanupInterval)
	c.WebSocket.InactivityTimeout = getEnvAsDuration("WS_INACTIVITY_TIMEOUT", c.WebSocket.InactivityTimeout)

	c.Subscriptions.Workers = getEnvAsInt("SUBSCRIPTION_WORKERS", c.Subscriptions.Workers)
	c.Subscriptions.QueueSize = getEnvAsInt("SUBSCRIPTION_QUEUE_SIZE", c.Subscriptions.QueueSize)
	c.Subscriptions.MaxLimit = getEnvAsInt("SUBSCRIPTION_MAX_LIMIT", c.Subscriptions.MaxLimit)

	c.Fanout.Mode = getEnv("FANOUT_MODE", c.Fanout.Mode)
	c.Fanout.NatsURL = getEnv("NATS_URL", c.Fanout.NatsURL)
	c.Fanout.SubjectPrefix = getEnv("FANOUT_SUBJECT_PREFIX", c.Fanout.SubjectPrefix)
	c.Fanout.ConnectWait = getEnvAsDuration("FANOUT_CONNECT_WAIT", c.Fanout.ConnectWait)
	c.Fanout.CompressionThreshold = getEnvAsInt("FANOUT_COMPRESSION_THRESHOLD", c.Fanout.CompressionThreshold)
	c.Fanout.CompressionLevel = getEnvAsInt("FANOUT_COMPRESSION_LEVEL", c.Fanout.CompressionLevel)

	c.Throttling.CommandsPerSecond = getEnvAsFloat("THROTTLE_COMMANDS_PER_SECOND", c.Throttling.CommandsPerSecond)
	c.Throttling.Burst = getEnvAsInt("THROTTLE_BURST", c.Throttling.Burst)
	c.Throttling.Expiry = getEnvAsDuration("THROTTLE_EXPIRY", c.Throttling.Expiry)

	c.Monitoring.MetricsEnabled = getEnvAsBool("METRICS_ENABLED", c.Monitoring.MetricsEnabled)

	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
	c.Logging.UseColors = getEnvAsBool("LOG_USE_COLORS", c.Logging.UseColors)
	c.Logging.Directory = getEnv("LOG_DIR", c.Logging.Directory)
}

// Validate comprueba los valores que el servicio no puede corregir por sí mismo
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	switch c.Fanout.Mode {
	case "local", "nats":
	default:
		return fmt.Errorf("unsupported fanout mode %q", c.Fanout.Mode)
	}
	if c.Subscriptions.Workers <= 0 {
		return fmt.Errorf("subscriptions.workers must be positive, got %d", c.Subscriptions.Workers)
	}
	if c.Subscriptions.MaxLimit <= 0 {
		return fmt.Errorf("subscriptions.max_limit must be positive, got %d", c.Subscriptions.MaxLimit)
	}
	return nil
}

// GetDatabaseDSN devuelve la cadena de conexión a la base de datos
func (c *DatabaseConfig) GetDatabaseDSN() string {
	if c.Driver == "sqlite" {
		return c.SQLitePath
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s search_path=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode, c.Schema,
	)
}

// Funciones auxiliares para obtener variables de entorno

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
