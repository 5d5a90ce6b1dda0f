package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/watchy-labs/watchy/internal/chains"
	"github.com/watchy-labs/watchy/pkg/utils"
)

// Load loads configuration from a YAML file, falling back to DefaultConfig
// when the file does not exist, and always applying environment overrides
// afterwards.
func Load(path string, logger *logrus.Logger) (*AppConfig, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Warnf("configuration file %s not found, using defaults", path)
		applyEnvironmentOverrides(cfg)
		if err := validate(cfg); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := utils.ExpandEnvVars(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyEnvironmentOverrides(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func validate(cfg *AppConfig) error {
	if cfg.Signer.PrivateKey != "" && cfg.Signer.Mnemonic != "" {
		return fmt.Errorf("signer.private_key and signer.mnemonic are mutually exclusive")
	}
	if _, ok := chains.Get(cfg.Chains.DefaultChainID); !ok {
		return fmt.Errorf("chains.default_chain_id %d is not a configured chain", cfg.Chains.DefaultChainID)
	}
	if cfg.LLM.Enabled && cfg.LLM.Provider == "" {
		return fmt.Errorf("llm.provider cannot be empty when llm is enabled")
	}
	if cfg.LLM.Enabled && cfg.LLM.Provider == "openai" && cfg.LLM.APIKey == "" {
		return fmt.Errorf("llm.api_key cannot be empty for the openai provider")
	}
	if cfg.Server.MaxConcurrency <= 0 {
		return fmt.Errorf("server.max_concurrency must be positive")
	}
	return nil
}

func applyEnvironmentOverrides(cfg *AppConfig) {
	if v := os.Getenv("PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = n
		} else {
			logrus.Warnf("invalid PORT: %s", v)
		}
	}
	if v := os.Getenv("API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("WEBHOOK_SECRET"); v != "" {
		cfg.Server.WebhookSecret = v
	}
	if v := os.Getenv("DEFAULT_CHAIN_ID"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Chains.DefaultChainID = n
		} else {
			logrus.Warnf("invalid DEFAULT_CHAIN_ID: %s", v)
		}
	}
	if v := os.Getenv("PRIVATE_KEY"); v != "" {
		cfg.Signer.PrivateKey = v
	}
	if v := os.Getenv("MNEMONIC"); v != "" {
		cfg.Signer.Mnemonic = v
	}
	if v := os.Getenv("DERIVATION_INDEX"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.Signer.DerivationIndex = uint32(n)
		} else {
			logrus.Warnf("invalid DERIVATION_INDEX: %s", v)
		}
	}
	if v := os.Getenv("KEY_MODE"); v != "" {
		cfg.Signer.KeyMode = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Store.RedisURL = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Explorer.DatabaseURL = v
	}
	if v := os.Getenv("STORAGE_API_URL"); v != "" {
		cfg.Storage.APIURL = v
	}
	if v := os.Getenv("STORAGE_API_KEY"); v != "" {
		cfg.Storage.APIKey = v
	}
	cfg.Scoring.WeighSecurity = utils.BoolFromEnv("SCORING_WEIGH_SECURITY", cfg.Scoring.WeighSecurity)
	cfg.LLM.Enabled = utils.BoolFromEnv("LLM_ENABLED", cfg.LLM.Enabled)
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
		if cfg.LLM.Provider == "" {
			cfg.LLM.Provider = "openai"
		}
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MAX_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.MaxConcurrency = n
		} else {
			logrus.Warnf("invalid MAX_CONCURRENCY: %s", v)
		}
	}
}
