// Package config reads service configuration from the environment.
//
// Values are expected to be loaded into the process environment (optionally
// from a .env file via godotenv) before Load* is called.
package config

import (
	"fmt"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
)

const (
	AuthModeJWT      = "jwt"
	AuthModePresence = "presence"

	defaultSubgraphs = "posts=http://localhost:3001/graphql,users=http://localhost:3002/graphql"
)

// Subgraph is one registration entry: where the gateway finds a subgraph.
type Subgraph struct {
	Name string
	URL  string
}

// RedisConfig stores Redis connection parameters. Redis is optional and
// only carries schema-change notifications.
type RedisConfig struct {
	Enabled      bool
	Host         string
	Port         string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// AuthConfig configures the gateway's identity context builder
type AuthConfig struct {
	Mode        string
	Header      string
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
	JWTLeeway   time.Duration
}

// GatewayConfig holds gateway configuration
type GatewayConfig struct {
	Port               string
	Production         bool
	Subgraphs          []Subgraph
	Auth               AuthConfig
	SubgraphTimeout    time.Duration
	SchemaPollInterval time.Duration
	Redis              RedisConfig
}

// SubgraphConfig holds configuration of a single subgraph service
type SubgraphConfig struct {
	Name       string
	Port       string
	PublicURL  string
	Production bool
	Redis      RedisConfig
}

// LoadGateway creates the gateway config from environment variables and validates it
func LoadGateway() (*GatewayConfig, error) {
	var result *multierror.Error

	subgraphs, err := ParseSubgraphs(GetEnv("SUBGRAPHS", defaultSubgraphs))
	if err != nil {
		result = multierror.Append(result, err)
	}

	cfg := &GatewayConfig{
		Port:       GetEnv("GATEWAY_PORT", "3000"),
		Production: GetEnv("ENV", "") == "production",
		Subgraphs:  subgraphs,
		Auth: AuthConfig{
			Mode:        strings.ToLower(GetEnv("AUTH_MODE", AuthModeJWT)),
			Header:      GetEnv("AUTH_HEADER", "Authorization"),
			JWTSecret:   os.Getenv("AUTH_JWT_SECRET"),
			JWTIssuer:   os.Getenv("AUTH_JWT_ISSUER"),
			JWTAudience: os.Getenv("AUTH_JWT_AUDIENCE"),
			JWTLeeway:   GetEnvDuration("AUTH_JWT_LEEWAY", 30*time.Second),
		},
		SubgraphTimeout:    GetEnvDuration("SUBGRAPH_TIMEOUT", 10*time.Second),
		SchemaPollInterval: GetEnvDuration("SCHEMA_POLL_INTERVAL", 30*time.Second),
		Redis:              LoadRedis(),
	}

	if err := cfg.Validate(); err != nil {
		result = multierror.Append(result, err)
	}

	return cfg, result.ErrorOrNil()
}

// Validate checks the gateway config for consistency
func (c *GatewayConfig) Validate() error {
	var result *multierror.Error

	if c.Port == "" {
		result = multierror.Append(result, fmt.Errorf("GATEWAY_PORT must not be empty"))
	}

	switch c.Auth.Mode {
	case AuthModeJWT:
		if c.Auth.JWTSecret == "" {
			result = multierror.Append(result, fmt.Errorf("AUTH_JWT_SECRET is required when AUTH_MODE=%s", AuthModeJWT))
		}
	case AuthModePresence:
	default:
		result = multierror.Append(result, fmt.Errorf("unknown AUTH_MODE %q (want %q or %q)", c.Auth.Mode, AuthModeJWT, AuthModePresence))
	}

	if c.Auth.Header == "" {
		result = multierror.Append(result, fmt.Errorf("AUTH_HEADER must not be empty"))
	}

	if c.SubgraphTimeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("SUBGRAPH_TIMEOUT must be positive"))
	}

	if c.SchemaPollInterval < 0 {
		result = multierror.Append(result, fmt.Errorf("SCHEMA_POLL_INTERVAL must not be negative"))
	}

	seen := make(map[string]bool, len(c.Subgraphs))
	for _, sg := range c.Subgraphs {
		if seen[sg.Name] {
			result = multierror.Append(result, fmt.Errorf("subgraph %q registered twice", sg.Name))
		}
		seen[sg.Name] = true
	}

	return result.ErrorOrNil()
}

// LoadSubgraph creates the config of the named subgraph service
func LoadSubgraph(name string) (*SubgraphConfig, error) {
	defaults := map[string]string{
		"posts": "3001",
		"users": "3002",
	}

	envPrefix := strings.ToUpper(name)
	port := GetEnv(envPrefix+"_PORT", defaults[name])

	cfg := &SubgraphConfig{
		Name:       name,
		Port:       port,
		PublicURL:  GetEnv("SUBGRAPH_PUBLIC_URL", fmt.Sprintf("http://localhost:%s/graphql", port)),
		Production: GetEnv("ENV", "") == "production",
		Redis:      LoadRedis(),
	}

	var result *multierror.Error
	if cfg.Port == "" {
		result = multierror.Append(result, fmt.Errorf("%s_PORT must be set for subgraph %q", envPrefix, name))
	}
	if _, err := url.ParseRequestURI(cfg.PublicURL); err != nil {
		result = multierror.Append(result, fmt.Errorf("SUBGRAPH_PUBLIC_URL: %w", err))
	}

	return cfg, result.ErrorOrNil()
}

// LoadRedis reads Redis settings; Redis is enabled only when REDIS_HOST is set
func LoadRedis() RedisConfig {
	host := os.Getenv("REDIS_HOST")
	return RedisConfig{
		Enabled:      host != "",
		Host:         host,
		Port:         GetEnv("REDIS_PORT", "6379"),
		Password:     os.Getenv("REDIS_PASSWORD"),
		DB:           GetEnvInt("REDIS_DB", 0),
		DialTimeout:  GetEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		ReadTimeout:  GetEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		WriteTimeout: GetEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
	}
}

// ParseSubgraphs parses "name=url,name=url" into registration descriptors.
// The result is sorted by name so composition order is deterministic.
func ParseSubgraphs(raw string) ([]Subgraph, error) {
	var (
		result    *multierror.Error
		subgraphs []Subgraph
	)

	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		name, endpoint, ok := strings.Cut(item, "=")
		name = strings.TrimSpace(name)
		endpoint = strings.TrimSpace(endpoint)
		if !ok || name == "" || endpoint == "" {
			result = multierror.Append(result, fmt.Errorf("invalid subgraph entry %q (want name=url)", item))
			continue
		}
		u, err := url.ParseRequestURI(endpoint)
		if err != nil || u.Host == "" {
			result = multierror.Append(result, fmt.Errorf("invalid url for subgraph %q: %q", name, endpoint))
			continue
		}
		subgraphs = append(subgraphs, Subgraph{Name: name, URL: endpoint})
	}

	if len(subgraphs) == 0 && result == nil {
		result = multierror.Append(result, fmt.Errorf("no subgraphs registered"))
	}

	sort.Slice(subgraphs, func(i, j int) bool { return subgraphs[i].Name < subgraphs[j].Name })

	return subgraphs, result.ErrorOrNil()
}

// GetEnv returns the value of key or defaultValue when unset
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvDuration parses a time.Duration ("15s", "1m")
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// GetEnvInt parses an integer value
func GetEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// GetEnvBool parses a boolean value
func GetEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
