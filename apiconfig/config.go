package apiconfig

// Config is the full configuration surface of the miner process. Static
// sections come from the YAML file and MINER_ environment overrides; the
// dynamic fields (heights, step) are persisted in the embedded SQLite store.
type Config struct {
	Api       ApiConfig       `koanf:"api"`
	ChainNode ChainNodeConfig `koanf:"chain_node"`
	Wallet    WalletConfig    `koanf:"wallet"`
	Netuid    uint32          `koanf:"netuid"`
	Miner     MinerConfig     `koanf:"miner"`
	Wandb     WandbConfig     `koanf:"wandb"`
	Nats      NatsServerConfig `koanf:"nats"`

	// Dynamic state, owned by the epoch control loop.
	CurrentHeight  int64 `koanf:"current_height"`
	LastEpochBlock int64 `koanf:"last_epoch_block"`
	Step           int64 `koanf:"step"`
}

type ApiConfig struct {
	Port       int    `koanf:"port"`
	ExternalIp string `koanf:"external_ip"`
}

type ChainNodeConfig struct {
	Url string `koanf:"url"`
}

type WalletConfig struct {
	Name   string `koanf:"name"`
	Hotkey string `koanf:"hotkey"`
}

type MinerConfig struct {
	BlocksPerEpoch int64           `koanf:"blocks_per_epoch"`
	NoSetWeights   bool            `koanf:"no_set_weights"`
	Blacklist      BlacklistConfig `koanf:"blacklist"`
	Priority       PriorityConfig  `koanf:"priority"`
}

type BlacklistConfig struct {
	AllowNonRegistered   bool     `koanf:"allow_non_registered"`
	ForceValidatorPermit bool     `koanf:"force_validator_permit"`
	Whitelist            []string `koanf:"whitelist"`
	Blacklist            []string `koanf:"blacklist"`
	// MinRequestPeriod is in minutes.
	MinRequestPeriod      int   `koanf:"min_request_period"`
	UseRequestCache       bool  `koanf:"use_request_cache"`
	RequestCacheBlockSpan int64 `koanf:"request_cache_block_span"`
	// RequestCacheMaxEntries caps the dedup cache; 0 means unbounded.
	RequestCacheMaxEntries int `koanf:"request_cache_max_entries"`
}

type PriorityConfig struct {
	Default               float64 `koanf:"default"`
	TimeStakeMultiplicate int     `koanf:"time_stake_multiplicate"`
	LenRequestTimestamps  int     `koanf:"len_request_timestamps"`
}

type WandbConfig struct {
	On          bool   `koanf:"on"`
	ProjectName string `koanf:"project_name"`
	Entity      string `koanf:"entity"`
}

type NatsServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}
