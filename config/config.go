// Package config loads the authkit host configuration from defaults, an
// optional config file and AUTHKIT_* environment variables.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	authkit "github.com/goliatone/go-authkit"
)

// EnvPrefix is prepended to every environment variable, e.g.
// AUTHKIT_AUTH_ROUTE for auth.route.
const EnvPrefix = "AUTHKIT"

type Config struct {
	Auth     AuthConfig     `mapstructure:"auth" json:"auth"`
	Database DatabaseConfig `mapstructure:"database" json:"database"`
	LDAP     LDAPConfig     `mapstructure:"ldap" json:"ldap"`
	Server   ServerConfig   `mapstructure:"server" json:"server"`
	Log      LogConfig      `mapstructure:"log" json:"log"`
}

// AuthConfig implements authkit.Config
type AuthConfig struct {
	Route                    string `mapstructure:"route" json:"route"`
	BaseURL                  string `mapstructure:"base_url" json:"base_url"`
	RequireEmailConfirmation bool   `mapstructure:"require_email_confirmation" json:"require_email_confirmation"`
	AsyncNotifications       bool   `mapstructure:"async_notifications" json:"async_notifications"`
	SSOEmailDomain           string `mapstructure:"sso_email_domain" json:"sso_email_domain"`
	LocalLoginFallback       bool   `mapstructure:"local_login_fallback" json:"local_login_fallback"`
	PasswordHasher           string `mapstructure:"password_hasher" json:"password_hasher"`
	BcryptCost               int    `mapstructure:"bcrypt_cost" json:"bcrypt_cost"`
}

var _ authkit.Config = AuthConfig{}

// GetRoute always ends in a slash and never starts with one.
func (c AuthConfig) GetRoute() string {
	route := strings.Trim(c.Route, "/")
	if route == "" {
		return ""
	}
	return route + "/"
}

func (c AuthConfig) GetRequireEmailConfirmation() bool {
	return c.RequireEmailConfirmation
}

func (c AuthConfig) GetAsyncNotifications() bool {
	return c.AsyncNotifications
}

func (c AuthConfig) GetSSOEmailDomain() string {
	return c.SSOEmailDomain
}

func (c AuthConfig) GetLocalLoginFallback() bool {
	return c.LocalLoginFallback
}

// Hasher builds the configured password hasher, bcrypt unless "argon2id".
func (c AuthConfig) Hasher() authkit.PasswordHasher {
	switch strings.ToLower(c.PasswordHasher) {
	case "argon2", "argon2id":
		return authkit.NewArgon2Hasher(authkit.DefaultArgon2Params())
	}
	return authkit.NewBcryptHasher(c.BcryptCost)
}

type DatabaseConfig struct {
	Type        string        `mapstructure:"type" json:"type"`
	DSN         string        `mapstructure:"dsn" json:"dsn"`
	AutoMigrate bool          `mapstructure:"auto_migrate" json:"auto_migrate"`
	Debug       bool          `mapstructure:"debug" json:"debug"`
	PingTimeout time.Duration `mapstructure:"ping_timeout" json:"ping_timeout"`
}

// LDAPConfig enables the ldap plugin when URL is set.
type LDAPConfig struct {
	URL          string `mapstructure:"url" json:"url"`
	BindDN       string `mapstructure:"bind_dn" json:"bind_dn"`
	BindPassword string `mapstructure:"bind_password" json:"-"`
	BaseDN       string `mapstructure:"base_dn" json:"base_dn"`
	UserFilter   string `mapstructure:"user_filter" json:"user_filter"`
}

func (c LDAPConfig) Enabled() bool {
	return c.URL != ""
}

type ServerConfig struct {
	Address string `mapstructure:"address" json:"address"`
}

type LogConfig struct {
	Level string `mapstructure:"level" json:"level"`
	JSON  bool   `mapstructure:"json" json:"json"`
}

var defaults = map[string]any{
	"auth.route":                      "auth/",
	"auth.base_url":                   "http://localhost:8080",
	"auth.require_email_confirmation": true,
	"auth.async_notifications":        false,
	"auth.sso_email_domain":           "localhost",
	"auth.local_login_fallback":       false,
	"auth.password_hasher":            "bcrypt",
	"auth.bcrypt_cost":                0,
	"database.type":                   "sqlite",
	"database.dsn":                    "file:authkit.db?cache=shared",
	"database.auto_migrate":           true,
	"database.debug":                  false,
	"database.ping_timeout":           "5s",
	"ldap.url":                        "",
	"ldap.bind_dn":                    "",
	"ldap.bind_password":              "",
	"ldap.base_dn":                    "",
	"ldap.user_filter":                "(uid=%s)",
	"server.address":                  ":8080",
	"log.level":                       "info",
	"log.json":                        true,
}

// Defaults returns the configuration used when nothing is overridden.
func Defaults() *Config {
	cfg, err := load(newViper())
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads defaults, then the first config file given, then the
// environment.
func Load(paths ...string) (*Config, error) {
	v := newViper()
	for _, path := range paths {
		if path == "" {
			continue
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
		break
	}
	return load(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
