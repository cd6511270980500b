package config

import (
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	RunAddress    string `env:"RUN_ADDRESS"`
	DatabaseDSN   string `env:"DATABASE_URI"`
	MigrationsDir string `env:"MIGRATIONS_DIR"`
	JWTUserSecret string `env:"JWT_USER_SECRET"`

	// Реквизиты шлюза WeChat Pay v3.
	WechatAPIBaseURL  string `env:"WECHAT_API_BASE_URL"`
	WechatAppID       string `env:"WECHAT_APP_ID"`
	WechatMchID       string `env:"WECHAT_MCH_ID"`
	WechatMchSerialNo string `env:"WECHAT_MCH_SERIAL_NO"`
	// PEM ключи передаются через env целиком, переносы строк допустимы в виде
	// литеральных `\n`.
	WechatMchPrivateKey  string `env:"WECHAT_MCH_PRIVATE_KEY"`
	WechatPlatformCert   string `env:"WECHAT_PLATFORM_CERT"`
	WechatPlatformSerial string `env:"WECHAT_PLATFORM_SERIAL"`
	WechatAPIv3Key       string `env:"WECHAT_APIV3_KEY"`
	WechatNotifyURL      string `env:"WECHAT_NOTIFY_URL"`

	// AllowMockPay включает роут оплаты без шлюза. Никогда не включать в проде.
	AllowMockPay bool `env:"ALLOW_MOCK_PAY"`
}

func LoadConfig() (*Config, error) {
	var flagsConfig, envConfig Config

	if envParseErr := env.Parse(&envConfig); envParseErr != nil {
		return nil, fmt.Errorf("parse env config: %s", envParseErr.Error())
	}

	loadFlags(&flagsConfig)

	conf := mergeConfig(&envConfig, &flagsConfig)

	conf.WechatMchPrivateKey = normalizePEM(conf.WechatMchPrivateKey)
	conf.WechatPlatformCert = normalizePEM(conf.WechatPlatformCert)

	if conf.DatabaseDSN == "" {
		return nil, errors.New("database DSN is not set")
	}
	if conf.JWTUserSecret == "" {
		return nil, errors.New("JWT secret is not set")
	}
	if len(conf.WechatAPIv3Key) != 32 {
		return nil, errors.New("WECHAT_APIV3_KEY must be exactly 32 bytes")
	}
	return conf, nil
}

func MustLoadConfig() *Config {
	config, err := LoadConfig()
	if err != nil {
		panic(err)
	}
	return config
}

func loadFlags(flagConfig *Config) {
	flag.StringVar(&flagConfig.RunAddress, "a", "localhost:8080", "Run address in format host:port")
	flag.StringVar(&flagConfig.DatabaseDSN, "d", "", "Database DSN")
	flag.StringVar(&flagConfig.MigrationsDir, "m", "migrations", "Database migrations directory")
	flag.StringVar(&flagConfig.WechatAPIBaseURL, "g", "https://api.mch.weixin.qq.com", "WeChat Pay API base URL")

	flag.Parse()
}

func mergeConfig(envConfig, flagsConfig *Config) *Config {
	return &Config{
		RunAddress:    defaultIfBlank(envConfig.RunAddress, flagsConfig.RunAddress),
		DatabaseDSN:   defaultIfBlank(envConfig.DatabaseDSN, flagsConfig.DatabaseDSN),
		MigrationsDir: defaultIfBlank(envConfig.MigrationsDir, flagsConfig.MigrationsDir),
		JWTUserSecret: envConfig.JWTUserSecret,

		WechatAPIBaseURL:     defaultIfBlank(envConfig.WechatAPIBaseURL, flagsConfig.WechatAPIBaseURL),
		WechatAppID:          envConfig.WechatAppID,
		WechatMchID:          envConfig.WechatMchID,
		WechatMchSerialNo:    envConfig.WechatMchSerialNo,
		WechatMchPrivateKey:  envConfig.WechatMchPrivateKey,
		WechatPlatformCert:   envConfig.WechatPlatformCert,
		WechatPlatformSerial: envConfig.WechatPlatformSerial,
		WechatAPIv3Key:       envConfig.WechatAPIv3Key,
		WechatNotifyURL:      envConfig.WechatNotifyURL,

		AllowMockPay: envConfig.AllowMockPay,
	}
}

func defaultIfBlank(value string, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}

// normalizePEM превращает литеральные `\n` из env значения в настоящие переносы строк.
func normalizePEM(value string) string {
	return strings.ReplaceAll(value, `\n`, "\n")
}
