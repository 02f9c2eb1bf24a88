package config

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	AppEnv   string
	LogLevel slog.Level
	HTTPAddr string

	// StaticDir overrides the embedded dashboard assets when set.
	StaticDir string

	// PowerAlertThreshold is the wattage above which the dashboard flags a reading.
	PowerAlertThreshold float64

	DBDriver          string
	DBDSN             string
	SQLitePath        string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBLogSQL          bool

	KafkaBrokers          []string
	KafkaTopic            string
	KafkaTopicPartitions  int32
	KafkaTopicReplication int16
	KafkaConnectTimeout   time.Duration

	// MQTTBroker enables the MQTT ingest subscriber when non-empty.
	MQTTBroker   string
	MQTTPort     int
	MQTTClientID string
	MQTTTopic    string
}

func LoadFromEnv() (Config, error) {
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = "dev"
	}
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	logLevelStr := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if logLevelStr == "" {
		logLevelStr = "info"
	}
	level, err := parseLogLevel(logLevelStr)
	if err != nil {
		return Config{}, err
	}

	httpAddr := strings.TrimSpace(os.Getenv("HTTP_ADDR"))
	if httpAddr == "" {
		httpAddr = ":8080"
	}

	staticDir := strings.TrimSpace(os.Getenv("STATIC_DIR"))

	thresholdStr := strings.TrimSpace(os.Getenv("POWER_ALERT_THRESHOLD"))
	if thresholdStr == "" {
		thresholdStr = "1000"
	}
	threshold, err := strconv.ParseFloat(thresholdStr, 64)
	if err != nil {
		return Config{}, fmt.Errorf("invalid POWER_ALERT_THRESHOLD %q: %w", thresholdStr, err)
	}

	driver := strings.TrimSpace(os.Getenv("DB_DRIVER"))
	if driver == "" {
		driver = "sqlite3"
	}
	switch driver {
	case "sqlite3", "pgx":
	default:
		return Config{}, fmt.Errorf("invalid DB_DRIVER %q (allowed: sqlite3, pgx)", driver)
	}
	dsn := strings.TrimSpace(os.Getenv("DB_DSN"))
	if driver == "pgx" && dsn == "" {
		return Config{}, fmt.Errorf("DB_DSN is required when DB_DRIVER=pgx")
	}
	sqlitePath := strings.TrimSpace(os.Getenv("SQLITE_PATH"))
	if sqlitePath == "" {
		sqlitePath = "data/measurements.db"
	}

	maxOpenConns, err := intFromEnv("DB_MAX_OPEN_CONNS", 1)
	if err != nil {
		return Config{}, err
	}
	maxIdleConns, err := intFromEnv("DB_MAX_IDLE_CONNS", 1)
	if err != nil {
		return Config{}, err
	}
	connMaxLifetime, err := durationFromEnv("DB_CONN_MAX_LIFETIME", 0)
	if err != nil {
		return Config{}, err
	}

	logSQLStr := strings.TrimSpace(os.Getenv("DB_LOG_SQL"))
	if logSQLStr == "" {
		logSQLStr = "false"
	}
	logSQL, err := strconv.ParseBool(logSQLStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid DB_LOG_SQL %q: %w", logSQLStr, err)
	}

	brokersStr := strings.TrimSpace(os.Getenv("KAFKA_BROKER"))
	if brokersStr == "" {
		brokersStr = "localhost:9092"
	}
	var brokers []string
	for _, b := range strings.Split(brokersStr, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	if len(brokers) == 0 {
		return Config{}, fmt.Errorf("invalid KAFKA_BROKER %q: no brokers", brokersStr)
	}

	topic := strings.TrimSpace(os.Getenv("KAFKA_TOPIC"))
	if topic == "" {
		topic = "shelly_data"
	}

	partitions, err := intFromEnv("KAFKA_TOPIC_PARTITIONS", 1)
	if err != nil {
		return Config{}, err
	}
	if partitions < 1 || partitions > math.MaxInt32 {
		return Config{}, fmt.Errorf("KAFKA_TOPIC_PARTITIONS out of range: %d", partitions)
	}
	replication, err := intFromEnv("KAFKA_TOPIC_REPLICATION", 1)
	if err != nil {
		return Config{}, err
	}
	if replication < 1 || replication > 32767 {
		return Config{}, fmt.Errorf("KAFKA_TOPIC_REPLICATION out of range: %d", replication)
	}

	connectTimeout, err := durationFromEnv("KAFKA_CONNECT_TIMEOUT", 5*time.Second)
	if err != nil {
		return Config{}, err
	}
	if connectTimeout <= 0 {
		return Config{}, fmt.Errorf("KAFKA_CONNECT_TIMEOUT must be positive, got %v", connectTimeout)
	}

	mqttBroker := strings.TrimSpace(os.Getenv("MQTT_BROKER"))
	mqttPort, err := intFromEnv("MQTT_PORT", 1883)
	if err != nil {
		return Config{}, err
	}
	mqttClientID := strings.TrimSpace(os.Getenv("MQTT_CLIENT_ID"))
	if mqttClientID == "" {
		mqttClientID = "powermeter-server"
	}
	mqttTopic := strings.TrimSpace(os.Getenv("MQTT_TOPIC"))
	if mqttTopic == "" {
		mqttTopic = "shellies/+/status/switch:0"
	}

	return Config{
		AppEnv:                appEnv,
		LogLevel:              level,
		HTTPAddr:              httpAddr,
		StaticDir:             staticDir,
		PowerAlertThreshold:   threshold,
		DBDriver:              driver,
		DBDSN:                 dsn,
		SQLitePath:            sqlitePath,
		DBMaxOpenConns:        maxOpenConns,
		DBMaxIdleConns:        maxIdleConns,
		DBConnMaxLifetime:     connMaxLifetime,
		DBLogSQL:              logSQL,
		KafkaBrokers:          brokers,
		KafkaTopic:            topic,
		KafkaTopicPartitions:  int32(partitions),
		KafkaTopicReplication: int16(replication),
		KafkaConnectTimeout:   connectTimeout,
		MQTTBroker:            mqttBroker,
		MQTTPort:              mqttPort,
		MQTTClientID:          mqttClientID,
		MQTTTopic:             mqttTopic,
	}, nil
}

// MQTTEnabled reports whether MQTT ingest is configured.
func (c Config) MQTTEnabled() bool {
	return c.MQTTBroker != ""
}

func intFromEnv(key string, def int) (int, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return n, nil
}

func durationFromEnv(key string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return d, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
