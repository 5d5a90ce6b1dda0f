package config

// AppConfig is the root configuration object, loadable from YAML and
// overridable by environment variables.
type AppConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Chains   ChainsConfig   `yaml:"chains"`
	Signer   SignerConfig   `yaml:"signer"`
	Store    StoreConfig    `yaml:"store"`
	Storage  StorageConfig  `yaml:"storage"`
	Scoring  ScoringConfig  `yaml:"scoring"`
	Explorer ExplorerConfig `yaml:"explorer"`
	LLM      LLMConfig      `yaml:"llm"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port           int    `yaml:"port"`
	APIKey         string `yaml:"api_key"`
	WebhookSecret  string `yaml:"webhook_secret"`
	MaxConcurrency int    `yaml:"max_concurrency"` // global cross-audit semaphore
}

type ChainsConfig struct {
	DefaultChainID uint64 `yaml:"default_chain_id"`
}

type SignerConfig struct {
	PrivateKey      string `yaml:"private_key"`
	Mnemonic        string `yaml:"mnemonic"`
	DerivationIndex uint32 `yaml:"derivation_index"`
	KeyMode         string `yaml:"key_mode"` // "", "private_key", "mnemonic"
}

type StoreConfig struct {
	RedisURL string `yaml:"redis_url"`
}

type StorageConfig struct {
	APIURL string `yaml:"api_url"` // Pinata-compatible pin endpoint
	APIKey string `yaml:"api_key"`
}

type ScoringConfig struct {
	WeighSecurity bool `yaml:"weigh_security"`
}

type ExplorerConfig struct {
	DatabaseURL string `yaml:"database_url"`
}

type LLMConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Provider string `yaml:"provider"` // only "openai" is wired
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	OutputPath string `yaml:"output_path"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:           8080,
			MaxConcurrency: 32,
		},
		Chains: ChainsConfig{DefaultChainID: 8453},
		Storage: StorageConfig{
			APIURL: "https://api.pinata.cloud",
		},
		Scoring: ScoringConfig{WeighSecurity: false},
		LLM:     LLMConfig{Model: "gpt-4o-mini"},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}
