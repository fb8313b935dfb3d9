package config

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type Config struct {
	HTTPPort    string `mapstructure:"http_port"`
	HTTPTimeout int    `mapstructure:"http_timeout"`
	GinMode     string `mapstructure:"gin_mode"     validate:"omitempty,oneof=debug release test"`

	HamsaBaseURL               string `mapstructure:"hamsa_base_url"                validate:"required,url"`
	HamsaAPIKey                string `mapstructure:"hamsa_api_key"                 validate:"required"`
	HamsaVoiceAgentIDAr        string `mapstructure:"hamsa_voice_agent_id_ar"       validate:"required"`
	HamsaVoiceAgentIDEn        string `mapstructure:"hamsa_voice_agent_id_en"       validate:"required"`
	HamsaFromNumberAr          string `mapstructure:"hamsa_from_number_ar"`
	HamsaFromNumberEn          string `mapstructure:"hamsa_from_number_en"`
	HamsaCallURL               string `mapstructure:"hamsa_call_url"`
	HamsaJobURL                string `mapstructure:"hamsa_job_url"`
	HamsaJobsURL               string `mapstructure:"hamsa_jobs_url"`
	HamsaJobsLimit             int    `mapstructure:"hamsa_jobs_limit"`
	HamsaTimeout               int    `mapstructure:"hamsa_timeout"`
	HamsaRetryMaxAttempts      uint   `mapstructure:"hamsa_retry_max_attempts"`
	HamsaRetryBackoffMin       int    `mapstructure:"hamsa_retry_backoff_min"`
	HamsaRetryBackoffMax       int    `mapstructure:"hamsa_retry_backoff_max"`
	HamsaIntervalCB            uint32 `mapstructure:"hamsa_interval_cb"`
	HamsaConsecutiveFailuresCB uint32 `mapstructure:"hamsa_consecutive_failures_cb"`

	TwilioBaseURL               string `mapstructure:"twilio_base_url"                validate:"omitempty,url"`
	TwilioAccountSID            string `mapstructure:"twilio_account_sid"`
	TwilioAuthToken             string `mapstructure:"twilio_auth_token"`
	TwilioTimeout               int    `mapstructure:"twilio_timeout"`
	TwilioRetryMaxAttempts      uint   `mapstructure:"twilio_retry_max_attempts"`
	TwilioRetryBackoffMin       int    `mapstructure:"twilio_retry_backoff_min"`
	TwilioRetryBackoffMax       int    `mapstructure:"twilio_retry_backoff_max"`
	TwilioIntervalCB            uint32 `mapstructure:"twilio_interval_cb"`
	TwilioConsecutiveFailuresCB uint32 `mapstructure:"twilio_consecutive_failures_cb"`

	OpenAIBaseURL               string  `mapstructure:"openai_base_url"`
	OpenAIAPIKey                string  `mapstructure:"openai_api_key"                validate:"required"`
	OpenAIModel                 string  `mapstructure:"openai_model"`
	OpenAITimeout               int     `mapstructure:"openai_timeout"`
	OpenAITemperature           float64 `mapstructure:"openai_temperature"`
	OpenAIMaxTokens             int64   `mapstructure:"openai_max_tokens"`
	OpenAIPromptMaxTokens       int64   `mapstructure:"openai_prompt_max_tokens"`
	OpenAIRetryMaxAttempts      uint    `mapstructure:"openai_retry_max_attempts"`
	OpenAIRetryBackoffMin       int     `mapstructure:"openai_retry_backoff_min"`
	OpenAIRetryBackoffMax       int     `mapstructure:"openai_retry_backoff_max"`
	OpenAIIntervalCB            uint32  `mapstructure:"openai_interval_cb"`
	OpenAIConsecutiveFailuresCB uint32  `mapstructure:"openai_consecutive_failures_cb"`
	AnalysisOrganization        string  `mapstructure:"analysis_organization"`

	PostgresHost            string `mapstructure:"postgres_host"              validate:"required"`
	PostgresUsername        string `mapstructure:"postgres_username"          validate:"required"`
	PostgresPassword        string `mapstructure:"postgres_password"          validate:"required"`
	PostgresPort            string `mapstructure:"postgres_port"              validate:"required"`
	PostgresDatabase        string `mapstructure:"postgres_database"          validate:"required"`
	DBIntervalCB            uint32 `mapstructure:"db_interval_cb"`
	DBConsecutiveFailuresCB uint32 `mapstructure:"db_consecutive_failures_cb"`

	RedisAddr      string `mapstructure:"redis_addr"`
	RedisPassword  string `mapstructure:"redis_password"`
	RedisDB        int    `mapstructure:"redis_db"`
	RedisKeyPrefix string `mapstructure:"redis_key_prefix"`
	RedisTimeout   int    `mapstructure:"redis_timeout"`

	// Kafka is optional: report events are not published when the bootstrap server is empty.
	KafkaBootstrapServer       string `mapstructure:"kafka_bootstrap_server"`
	KafkaUsername              string `mapstructure:"kafka_username"                validate:"required_with=KafkaBootstrapServer"`
	KafkaPassword              string `mapstructure:"kafka_password"                validate:"required_with=KafkaBootstrapServer"`
	KafkaReportTopic           string `mapstructure:"kafka_report_topic"`
	KafkaIntervalCB            uint32 `mapstructure:"kafka_interval_cb"`
	KafkaConsecutiveFailuresCB uint32 `mapstructure:"kafka_consecutive_failures_cb"`

	LogLevel    string `mapstructure:"log_level"`
	LogFilePath string `mapstructure:"log_file_path"`

	// MinIO is optional: recordings are not archived when the endpoint is empty.
	MinioEndpointURL            string `mapstructure:"minio_endpoint_url"`
	MinioAccessKey              string `mapstructure:"minio_access_key"                validate:"required_with=MinioEndpointURL"`
	MinioSecretKey              string `mapstructure:"minio_secret_key"                validate:"required_with=MinioEndpointURL"`
	MinioBucketName             string `mapstructure:"minio_bucket_name"               validate:"required_with=MinioEndpointURL"`
	MinioSecure                 bool   `mapstructure:"minio_secure"`
	MinioMaxRetryAttempts       uint   `mapstructure:"minio_max_retry_attempts"`
	MinioRetryBackoffMinSeconds int    `mapstructure:"minio_retry_backoff_min_seconds"`
	MinioRetryBackoffMaxSeconds int    `mapstructure:"minio_retry_backoff_max_seconds"`
	MinioPathPrefix             string `mapstructure:"minio_path_prefix"`
	MinioTimeout                int    `mapstructure:"minio_timeout"`
	MinioIntervalCB             uint32 `mapstructure:"minio_interval_cb"`
	MinioConsecutiveFailuresCB  uint32 `mapstructure:"minio_consecutive_failures_cb"`
	RecordingMaxFileSize        int64  `mapstructure:"recording_max_file_size"`
	ReportPoolSize              int    `mapstructure:"report_pool_size"`

	AuthJWTSecret    string `mapstructure:"auth_jwt_secret"    validate:"required"`
	AuthJWTIssuer    string `mapstructure:"auth_jwt_issuer"`
	AuthTokenTTL     int    `mapstructure:"auth_token_ttl"`
	AuthUsername     string `mapstructure:"auth_username"      validate:"required"`
	AuthPasswordHash string `mapstructure:"auth_password_hash" validate:"required"`

	LivePollInterval int `mapstructure:"live_poll_interval"`
	LiveMaxJobAge    int `mapstructure:"live_max_job_age"`

	DeadLetterPoolSize         int `mapstructure:"dead_letter_pool_size"`
	DeadLetterReportMaxRetries int `mapstructure:"deadletter_report_max_retries"`
	DeadLetterReportLimit      int `mapstructure:"deadletter_report_limit"`
	DeadLetterReportInterval   int `mapstructure:"deadletter_report_interval"`
	DeadLetterReportRetryDelay int `mapstructure:"deadletter_report_retry_delay"`

	HealthCheckerMonitorInterval int `mapstructure:"health_checker_monitor_interval"`

	PrometheusPort    string `mapstructure:"prometheus_port"`
	PrometheusTimeout int    `mapstructure:"prometheus_timeout"`
}

var Conf Config

func init() {
	err := loadEnvConfig(&Conf)
	if err != nil {
		zap.NewExample().Fatal("failed to load config", zap.String("error", err.Error()))
	}
}

// Validate checks the loaded configuration. Binaries call it on startup;
// packages only read Conf so tests can run against defaults.
func Validate() error {
	return validator.New().Struct(&Conf)
}

func loadEnvConfig(cfg *Config) error {
	viper.AutomaticEnv()
	viper.AllowEmptyEnv(true)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setupDefaults()

	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")

	err := viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError

		ok := errors.As(err, &configFileNotFoundError)
		if !ok {
			return err
		}
	}

	return viper.Unmarshal(cfg)
}

func setupDefaults() {
	confType := reflect.TypeOf(Conf)
	for i := range confType.NumField() {
		field := confType.Field(i)
		viper.SetDefault(field.Tag.Get("mapstructure"), "")
	}

	viper.SetDefault("HTTP_PORT", "8080")
	viper.SetDefault("HTTP_TIMEOUT", "30")
	viper.SetDefault("GIN_MODE", "release")
	viper.SetDefault("HAMSA_BASE_URL", "https://api.tryhamsa.com")
	viper.SetDefault("HAMSA_CALL_URL", "/v1/voice-agents/call")
	viper.SetDefault("HAMSA_JOB_URL", "/v1/jobs")
	viper.SetDefault("HAMSA_JOBS_URL", "/v1/jobs")
	viper.SetDefault("HAMSA_JOBS_LIMIT", "50")
	viper.SetDefault("HAMSA_TIMEOUT", "30")
	viper.SetDefault("HAMSA_RETRY_MAX_ATTEMPTS", "3")
	viper.SetDefault("HAMSA_RETRY_BACKOFF_MIN", "1")
	viper.SetDefault("HAMSA_RETRY_BACKOFF_MAX", "5")
	viper.SetDefault("HAMSA_INTERVAL_CB", "30")
	viper.SetDefault("HAMSA_CONSECUTIVE_FAILURES_CB", "5")
	viper.SetDefault("TWILIO_BASE_URL", "https://api.twilio.com")
	viper.SetDefault("TWILIO_TIMEOUT", "10")
	viper.SetDefault("TWILIO_RETRY_MAX_ATTEMPTS", "2")
	viper.SetDefault("TWILIO_RETRY_BACKOFF_MIN", "1")
	viper.SetDefault("TWILIO_RETRY_BACKOFF_MAX", "3")
	viper.SetDefault("TWILIO_INTERVAL_CB", "30")
	viper.SetDefault("TWILIO_CONSECUTIVE_FAILURES_CB", "5")
	viper.SetDefault("OPENAI_BASE_URL", "https://api.openai.com/v1")
	viper.SetDefault("OPENAI_MODEL", "gpt-4o-mini")
	viper.SetDefault("OPENAI_TIMEOUT", "120")
	viper.SetDefault("OPENAI_TEMPERATURE", "0.7")
	viper.SetDefault("OPENAI_MAX_TOKENS", "8192")
	viper.SetDefault("OPENAI_PROMPT_MAX_TOKENS", "2048")
	viper.SetDefault("OPENAI_RETRY_MAX_ATTEMPTS", "2")
	viper.SetDefault("OPENAI_RETRY_BACKOFF_MIN", "1")
	viper.SetDefault("OPENAI_RETRY_BACKOFF_MAX", "10")
	viper.SetDefault("OPENAI_INTERVAL_CB", "60")
	viper.SetDefault("OPENAI_CONSECUTIVE_FAILURES_CB", "3")
	viper.SetDefault("ANALYSIS_ORGANIZATION", "Almoayyed (Y.K. Almoayyed & Sons)")
	viper.SetDefault("DB_INTERVAL_CB", "30")
	viper.SetDefault("DB_CONSECUTIVE_FAILURES_CB", "3")
	viper.SetDefault("REDIS_KEY_PREFIX", "callboard:")
	viper.SetDefault("REDIS_TIMEOUT", "3")
	viper.SetDefault("KAFKA_REPORT_TOPIC", "callboard.reports")
	viper.SetDefault("KAFKA_INTERVAL_CB", "30")
	viper.SetDefault("KAFKA_CONSECUTIVE_FAILURES_CB", "5")
	viper.SetDefault("LOG_LEVEL", "INFO")
	viper.SetDefault("MINIO_SECURE", "true")
	viper.SetDefault("MINIO_MAX_RETRY_ATTEMPTS", "3")
	viper.SetDefault("MINIO_RETRY_BACKOFF_MIN_SECONDS", "1")
	viper.SetDefault("MINIO_RETRY_BACKOFF_MAX_SECONDS", "10")
	viper.SetDefault("MINIO_PATH_PREFIX", "recordings")
	viper.SetDefault("MINIO_TIMEOUT", "60")
	viper.SetDefault("MINIO_INTERVAL_CB", "300")
	viper.SetDefault("MINIO_CONSECUTIVE_FAILURES_CB", "3")
	viper.SetDefault("RECORDING_MAX_FILE_SIZE", "52428800")
	viper.SetDefault("REPORT_POOL_SIZE", "4")
	viper.SetDefault("AUTH_JWT_ISSUER", "callboard")
	viper.SetDefault("AUTH_TOKEN_TTL", "43200")
	viper.SetDefault("LIVE_POLL_INTERVAL", "2")
	viper.SetDefault("LIVE_MAX_JOB_AGE", "7200")
	viper.SetDefault("DEAD_LETTER_POOL_SIZE", "3")
	viper.SetDefault("DEADLETTER_REPORT_MAX_RETRIES", "5")
	viper.SetDefault("DEADLETTER_REPORT_LIMIT", "50")
	viper.SetDefault("DEADLETTER_REPORT_INTERVAL", "1")
	viper.SetDefault("DEADLETTER_REPORT_RETRY_DELAY", "5")
	viper.SetDefault("HEALTH_CHECKER_MONITOR_INTERVAL", "60")
	viper.SetDefault("PROMETHEUS_PORT", "2112")
	viper.SetDefault("PROMETHEUS_TIMEOUT", "60")
}
