// internal/common/config/config.go
package config

import (
	"fmt"
	"time"
)

// Config is the main application configuration struct.
type Config struct {
	App       AppConfig               `mapstructure:"app"`
	Camunda   CamundaConfig           `mapstructure:"camunda"`
	Database  DatabaseConfig          `mapstructure:"database"`
	Provider  ProviderConfig          `mapstructure:"provider"`
	Screening ScreeningConfig         `mapstructure:"screening"`
	Workers   map[string]WorkerConfig `mapstructure:"workers"`
	Registry  RegistryConfig          `mapstructure:"registry"`
	AWS       AWSConfig               `mapstructure:"aws"`
	Logging   LoggingConfig           `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses  []string `mapstructure:"addresses"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	SSLEnabled bool     `mapstructure:"ssl_enabled"`
	AuditIndex string   `mapstructure:"audit_index"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// WorkerConfig holds the core settings applicable to every consumer.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling
}

// --- Screening Provider ---

// ProviderConfig holds the FADV endpoint and credentials. The credentials are
// injected into the wire payload and must never appear in logs.
type ProviderConfig struct {
	URL           string `mapstructure:"url"`
	OriginatorID  string `mapstructure:"originator_id"`
	UserName      string `mapstructure:"user_name"`
	Password      string `mapstructure:"password"`
	MarketingName string `mapstructure:"marketing_name"`
	Environment   string `mapstructure:"environment"`
	Timeout       int    `mapstructure:"timeout"` // milliseconds
	MaxRetries    int    `mapstructure:"max_retries"`
}

// ScreeningConfig holds the orchestration knobs.
type ScreeningConfig struct {
	NewRequestThreshold    int      `mapstructure:"new_request_threshold"`
	NewRequestWindowMin    int      `mapstructure:"new_request_window_minutes"`
	PendingTimeoutMin      int      `mapstructure:"pending_timeout_minutes"`
	ExpirationDays         int      `mapstructure:"expiration_days"`
	RecoveryIntervalSec    int      `mapstructure:"recovery_interval_seconds"`
	OrphanMinAgeMin        int      `mapstructure:"orphan_min_age_minutes"`
	OrphanMaxAgeMin        int      `mapstructure:"orphan_max_age_minutes"`
	StuckSLAMin            int      `mapstructure:"stuck_sla_minutes"`
	RecoveryConcurrency    int      `mapstructure:"recovery_concurrency"`
	SubjectLockTTLSec      int      `mapstructure:"subject_lock_ttl_seconds"`
	V2Tenants              []string `mapstructure:"v2_tenants"`
	PartyLevelGuarantor    bool     `mapstructure:"party_level_guarantor"`
	IncomePolicyRoommates  string   `mapstructure:"income_policy_roommates"`
	IncomePolicyGuarantors string   `mapstructure:"income_policy_guarantors"`
}

func (s ScreeningConfig) NewRequestWindow() time.Duration {
	return time.Duration(s.NewRequestWindowMin) * time.Minute
}

func (s ScreeningConfig) PendingTimeout() time.Duration {
	return time.Duration(s.PendingTimeoutMin) * time.Minute
}

func (s ScreeningConfig) RecoveryInterval() time.Duration {
	return time.Duration(s.RecoveryIntervalSec) * time.Second
}

func (s ScreeningConfig) OrphanWindow() (min, max time.Duration) {
	return time.Duration(s.OrphanMinAgeMin) * time.Minute, time.Duration(s.OrphanMaxAgeMin) * time.Minute
}

func (s ScreeningConfig) StuckSLA() time.Duration {
	return time.Duration(s.StuckSLAMin) * time.Minute
}

// IsV2Tenant reports whether the tenant runs the v2 schema generation.
func (s ScreeningConfig) IsV2Tenant(tenantID string) bool {
	for _, id := range s.V2Tenants {
		if id == tenantID {
			return true
		}
	}
	return false
}

// --- Outbound Notifications ---

type AWSConfig struct {
	Region string `mapstructure:"region"`
	SNS    struct {
		Enabled  bool   `mapstructure:"enabled"`
		TopicARN string `mapstructure:"topic_arn"`
	} `mapstructure:"sns"`
	SES struct {
		Enabled    bool   `mapstructure:"enabled"`
		FromEmail  string `mapstructure:"from_email"`
		AlertEmail string `mapstructure:"alert_email"`
	} `mapstructure:"ses"`
}

// RegistryConfig locates the topic registry file.
type RegistryConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
