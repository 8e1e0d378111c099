package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Env         string
	HTTPAddress string
	GRPCAddress string

	StoreDriver string
	DatabaseURL string

	RedisAddress  string
	RedisPassword string
	RedisDB       int

	JWTPrivateKeyPath string
	JWTPublicKeyPath  string
	Issuer            string
	Audience          string
	AccessTokenTTL    time.Duration
	RefreshTokenTTL   time.Duration

	PasswordPepper                 string
	RevokeSessionsOnPasswordChange bool

	S3Region        string
	S3Endpoint      string
	S3Bucket        string
	S3AccessKey     string
	S3SecretKey     string
	S3PublicBaseURL string
	UploadDir       string

	AllowedOrigins   []string
	AllowCredentials bool
	CookieDomain     string

	LogLevel  string
	LogFormat string
}

// SecureCookies is true outside of development.
func (c *Config) SecureCookies() bool {
	return c.Env == "production"
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	v.SetDefault("APP_ENV", "development")
	v.SetDefault("HTTP_ADDRESS", ":8080")
	v.SetDefault("GRPC_ADDRESS", ":50051")
	v.SetDefault("STORE_DRIVER", DriverPostgres)
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("ACCESS_TOKEN_TTL", "15m")
	v.SetDefault("REFRESH_TOKEN_TTL", "240h")
	v.SetDefault("REVOKE_SESSIONS_ON_PASSWORD_CHANGE", true)
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("UPLOAD_DIR", "./public/temp")
	v.SetDefault("ALLOWED_ORIGINS", "http://localhost:3000")
	v.SetDefault("ALLOW_CREDENTIALS", true)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	origins, err := parseList(v.GetString("ALLOWED_ORIGINS"))
	if err != nil {
		return nil, fmt.Errorf("ALLOWED_ORIGINS: %w", err)
	}

	cfg := &Config{
		Env:                            v.GetString("APP_ENV"),
		HTTPAddress:                    v.GetString("HTTP_ADDRESS"),
		GRPCAddress:                    v.GetString("GRPC_ADDRESS"),
		StoreDriver:                    strings.ToLower(v.GetString("STORE_DRIVER")),
		DatabaseURL:                    v.GetString("DATABASE_URL"),
		RedisAddress:                   v.GetString("REDIS_ADDRESS"),
		RedisPassword:                  v.GetString("REDIS_PASSWORD"),
		RedisDB:                        v.GetInt("REDIS_DB"),
		JWTPrivateKeyPath:              v.GetString("JWT_PRIVATE_KEY_PATH"),
		JWTPublicKeyPath:               v.GetString("JWT_PUBLIC_KEY_PATH"),
		Issuer:                         v.GetString("JWT_ISSUER"),
		Audience:                       v.GetString("JWT_AUDIENCE"),
		AccessTokenTTL:                 v.GetDuration("ACCESS_TOKEN_TTL"),
		RefreshTokenTTL:                v.GetDuration("REFRESH_TOKEN_TTL"),
		PasswordPepper:                 v.GetString("PASSWORD_PEPPER"),
		RevokeSessionsOnPasswordChange: v.GetBool("REVOKE_SESSIONS_ON_PASSWORD_CHANGE"),
		S3Region:                       v.GetString("S3_REGION"),
		S3Endpoint:                     v.GetString("S3_ENDPOINT"),
		S3Bucket:                       v.GetString("S3_BUCKET"),
		S3AccessKey:                    v.GetString("S3_ACCESS_KEY"),
		S3SecretKey:                    v.GetString("S3_SECRET_KEY"),
		S3PublicBaseURL:                v.GetString("S3_PUBLIC_BASE_URL"),
		UploadDir:                      v.GetString("UPLOAD_DIR"),
		AllowedOrigins:                 origins,
		AllowCredentials:               v.GetBool("ALLOW_CREDENTIALS"),
		CookieDomain:                   v.GetString("COOKIE_DOMAIN"),
		LogLevel:                       v.GetString("LOG_LEVEL"),
		LogFormat:                      v.GetString("LOG_FORMAT"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	required := map[string]string{
		"JWT_PRIVATE_KEY_PATH": c.JWTPrivateKeyPath,
		"JWT_PUBLIC_KEY_PATH":  c.JWTPublicKeyPath,
		"JWT_ISSUER":           c.Issuer,
		"JWT_AUDIENCE":         c.Audience,
		"PASSWORD_PEPPER":      c.PasswordPepper,
		"S3_BUCKET":            c.S3Bucket,
	}
	switch c.StoreDriver {
	case DriverPostgres:
		required["DATABASE_URL"] = c.DatabaseURL
	case DriverMemory:
	default:
		return fmt.Errorf("STORE_DRIVER: unknown driver %q", c.StoreDriver)
	}
	for _, key := range []string{
		"DATABASE_URL", "JWT_PRIVATE_KEY_PATH", "JWT_PUBLIC_KEY_PATH",
		"JWT_ISSUER", "JWT_AUDIENCE", "PASSWORD_PEPPER", "S3_BUCKET",
	} {
		if val, ok := required[key]; ok && val == "" {
			return fmt.Errorf("%s is not set", key)
		}
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}
	if c.AccessTokenTTL >= c.RefreshTokenTTL {
		return errors.New("ACCESS_TOKEN_TTL must be shorter than REFRESH_TOKEN_TTL")
	}
	return nil
}

// parseList accepts either a JSON array or a comma separated list.
func parseList(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if strings.HasPrefix(raw, "[") {
		var out []string
		if err := json.Unmarshal([]byte(raw), &out); err != nil {
			return nil, err
		}
		return out, nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out, nil
}
