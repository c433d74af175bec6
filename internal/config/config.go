// Package config loads the proxy's settings from environment
// variables via viper, with defaults matching a local development
// setup.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Mode is the enforcement posture for matched rules.
type Mode string

const (
	ModeLog     Mode = "log"
	ModeEnforce Mode = "enforce"
)

// Config holds every proxy setting, loaded once at startup.
type Config struct {
	ProxyListenAddr string
	ProxyListenPort int
	SQLHost         string
	SQLPort         int

	Environment      string
	EnforcementMode  Mode
	EnableSQLTextSniff bool
	EnableTDSParser  bool

	TimeBudgetMS   int
	MaxRewriteBytes int

	RPCAutocorrectInplace    bool
	RPCTruncateOnAutocorrect bool
	RPCRepackBuilder         bool
	RPCParamTypesPath        string

	RulesPath  string
	RulesWatch bool

	TLSTermination bool
	TLSCertPath    string
	TLSKeyPath     string

	MetricsListenAddr   string
	DecisionLogPath     string
	DecisionLogMaxBytes int64
}

// Load reads settings from environment variables, applying the
// defaults below for anything unset.
func Load() (Config, error) {
	v := viper.New()
	v.SetEnvKeyPrefix("")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("PROXY_LISTEN_ADDR", "0.0.0.0")
	v.SetDefault("PROXY_LISTEN_PORT", 14333)
	v.SetDefault("SQL_HOST", "127.0.0.1")
	v.SetDefault("SQL_PORT", 1433)
	v.SetDefault("ENVIRONMENT", "dev")
	v.SetDefault("ENFORCEMENT_MODE", "log")
	v.SetDefault("ENABLE_SQL_TEXT_SNIFF", true)
	v.SetDefault("ENABLE_TDS_PARSER", true)
	v.SetDefault("TIME_BUDGET_MS", 25)
	v.SetDefault("MAX_REWRITE_BYTES", 131072)
	v.SetDefault("RPC_AUTOCORRECT_INPLACE", true)
	v.SetDefault("RPC_TRUNCATE_ON_AUTOCORRECT", false)
	v.SetDefault("RPC_REPACK_BUILDER", false)
	v.SetDefault("RPC_PARAM_TYPES_PATH", "")
	v.SetDefault("RULES_PATH", "rules.json")
	v.SetDefault("RULES_WATCH", false)
	v.SetDefault("TLS_TERMINATION", false)
	v.SetDefault("TLS_CERT_PATH", "")
	v.SetDefault("TLS_KEY_PATH", "")
	v.SetDefault("METRICS_LISTEN_ADDR", "127.0.0.1:9090")
	v.SetDefault("DECISION_LOG_PATH", "data/metrics/decisions.jsonl")
	v.SetDefault("DECISION_LOG_MAX_BYTES", int64(64*1024*1024))

	mode := Mode(v.GetString("ENFORCEMENT_MODE"))
	if mode != ModeLog && mode != ModeEnforce {
		return Config{}, fmt.Errorf("config: invalid ENFORCEMENT_MODE %q, want %q or %q", mode, ModeLog, ModeEnforce)
	}

	return Config{
		ProxyListenAddr: v.GetString("PROXY_LISTEN_ADDR"),
		ProxyListenPort: v.GetInt("PROXY_LISTEN_PORT"),
		SQLHost:         v.GetString("SQL_HOST"),
		SQLPort:         v.GetInt("SQL_PORT"),

		Environment:        v.GetString("ENVIRONMENT"),
		EnforcementMode:    mode,
		EnableSQLTextSniff: v.GetBool("ENABLE_SQL_TEXT_SNIFF"),
		EnableTDSParser:    v.GetBool("ENABLE_TDS_PARSER"),

		TimeBudgetMS:    v.GetInt("TIME_BUDGET_MS"),
		MaxRewriteBytes: v.GetInt("MAX_REWRITE_BYTES"),

		RPCAutocorrectInplace:    v.GetBool("RPC_AUTOCORRECT_INPLACE"),
		RPCTruncateOnAutocorrect: v.GetBool("RPC_TRUNCATE_ON_AUTOCORRECT"),
		RPCRepackBuilder:         v.GetBool("RPC_REPACK_BUILDER"),
		RPCParamTypesPath:        v.GetString("RPC_PARAM_TYPES_PATH"),

		RulesPath:  v.GetString("RULES_PATH"),
		RulesWatch: v.GetBool("RULES_WATCH"),

		TLSTermination: v.GetBool("TLS_TERMINATION"),
		TLSCertPath:    v.GetString("TLS_CERT_PATH"),
		TLSKeyPath:     v.GetString("TLS_KEY_PATH"),

		MetricsListenAddr:   v.GetString("METRICS_LISTEN_ADDR"),
		DecisionLogPath:     v.GetString("DECISION_LOG_PATH"),
		DecisionLogMaxBytes: v.GetInt64("DECISION_LOG_MAX_BYTES"),
	}, nil
}

// ListenAddr formats the proxy's listen address as host:port.
func (c Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.ProxyListenAddr, c.ProxyListenPort)
}

// UpstreamAddr formats the SQL Server upstream address as host:port.
func (c Config) UpstreamAddr() string {
	return fmt.Sprintf("%s:%d", c.SQLHost, c.SQLPort)
}
