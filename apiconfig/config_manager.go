package apiconfig

import (
	"context"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"miner-api/logging"
	"miner-api/types"
)

// ConfigManager guards the loaded configuration and persists the dynamic
// fields (current height, last epoch block, step) to the embedded SQLite
// store. Static sections only ever come from the YAML file and environment.
type ConfigManager struct {
	currentConfig Config
	KoanProvider  koanf.Provider
	sqlDb         SqlDatabase
	mutex         sync.Mutex
	sqlitePath    string
}

func LoadDefaultConfigManager() (*ConfigManager, error) {
	return LoadConfigManagerWithPaths(getConfigPath(), getSqlitePath())
}

// LoadConfigManagerWithPaths allows tests to supply explicit paths.
func LoadConfigManagerWithPaths(configPath, sqlitePath string) (*ConfigManager, error) {
	defaultDbCfg := SqliteConfig{
		Path: sqlitePath,
	}

	db := NewSQLiteDb(defaultDbCfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.BootstrapLocal(ctx); err != nil {
		log.Printf("Error bootstrapping local SQLite DB: %+v", err)
		return nil, err
	}

	manager := ConfigManager{
		KoanProvider: file.Provider(configPath),
		sqlDb:        db,
		mutex:        sync.Mutex{},
		sqlitePath:   sqlitePath,
	}
	if err := manager.Load(); err != nil {
		return nil, err
	}

	// Hydrate in-memory dynamic state from DB once
	if err := manager.HydrateFromDB(context.Background()); err != nil {
		log.Printf("Error hydrating dynamic data from DB: %+v", err)
		return nil, err
	}
	return &manager, nil
}

func (cm *ConfigManager) Load() error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	config, err := readConfig(cm.KoanProvider)
	if err != nil {
		return err
	}
	cm.currentConfig = config
	return nil
}

func (cm *ConfigManager) GetApiConfig() ApiConfig {
	return cm.currentConfig.Api
}

func (cm *ConfigManager) GetChainNodeConfig() ChainNodeConfig {
	return cm.currentConfig.ChainNode
}

func (cm *ConfigManager) GetWalletConfig() WalletConfig {
	return cm.currentConfig.Wallet
}

func (cm *ConfigManager) GetNetuid() uint32 {
	return cm.currentConfig.Netuid
}

func (cm *ConfigManager) GetMinerConfig() MinerConfig {
	return cm.currentConfig.Miner
}

func (cm *ConfigManager) GetBlacklistConfig() BlacklistConfig {
	return cm.currentConfig.Miner.Blacklist
}

func (cm *ConfigManager) GetPriorityConfig() PriorityConfig {
	return cm.currentConfig.Miner.Priority
}

func (cm *ConfigManager) GetWandbConfig() WandbConfig {
	return cm.currentConfig.Wandb
}

func (cm *ConfigManager) GetNatsConfig() NatsServerConfig {
	return cm.currentConfig.Nats
}

// SqlDb returns the configured SQL database handle if available
func (cm *ConfigManager) SqlDb() SqlDatabase {
	return cm.sqlDb
}

// GetConfig returns a snapshot copy of the current configuration.
// The returned value should be treated as read-only by callers.
func (cm *ConfigManager) GetConfig() Config {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	return cm.currentConfig
}

func (cm *ConfigManager) GetHeight() int64 {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	return cm.currentConfig.CurrentHeight
}

func (cm *ConfigManager) SetHeight(height int64) error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	cm.currentConfig.CurrentHeight = height
	return nil
}

func (cm *ConfigManager) GetLastEpochBlock() int64 {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	return cm.currentConfig.LastEpochBlock
}

func (cm *ConfigManager) SetLastEpochBlock(height int64) error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	cm.currentConfig.LastEpochBlock = height
	logging.Debug("Setting last epoch block", types.Config, "height", height)
	return nil
}

func (cm *ConfigManager) GetStep() int64 {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	return cm.currentConfig.Step
}

func (cm *ConfigManager) SetStep(step int64) error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	cm.currentConfig.Step = step
	return nil
}

func getConfigPath() string {
	configPath := os.Getenv("MINER_CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml" // Default value if the environment variable is not set
	}
	return configPath
}

func getSqlitePath() string {
	path := os.Getenv("MINER_SQLITE_PATH")
	if path == "" {
		return "/root/.miner/miner.db"
	}
	return path
}

func readConfig(provider koanf.Provider) (Config, error) {
	k := koanf.New(".")
	parser := yaml.Parser()

	if err := k.Load(provider, parser); err != nil {
		return Config{}, err
	}
	err := k.Load(env.Provider("MINER_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "MINER_")), "__", ".", -1)
	}), nil)
	if err != nil {
		return Config{}, err
	}

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return Config{}, err
	}

	if hotkey, found := os.LookupEnv("WALLET_HOTKEY"); found {
		config.Wallet.Hotkey = hotkey
		log.Printf("Loaded WALLET_HOTKEY: %+v", hotkey)
	}

	applyDefaults(&config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.Miner.BlocksPerEpoch == 0 {
		config.Miner.BlocksPerEpoch = 100
	}
	// Absent hotkey lists become empty ones, so a config exported with
	// ExportYAML loads back identically.
	if config.Miner.Blacklist.Whitelist == nil {
		config.Miner.Blacklist.Whitelist = []string{}
	}
	if config.Miner.Blacklist.Blacklist == nil {
		config.Miner.Blacklist.Blacklist = []string{}
	}
	if config.Miner.Blacklist.RequestCacheBlockSpan == 0 {
		config.Miner.Blacklist.RequestCacheBlockSpan = 100
	}
	if config.Miner.Blacklist.MinRequestPeriod == 0 {
		config.Miner.Blacklist.MinRequestPeriod = 5
	}
	if config.Miner.Priority.TimeStakeMultiplicate == 0 {
		config.Miner.Priority.TimeStakeMultiplicate = 10
	}
	if config.Miner.Priority.LenRequestTimestamps == 0 {
		config.Miner.Priority.LenRequestTimestamps = 10
	}
}

// HydrateFromDB loads dynamic fields from DB into memory ONCE during startup.
func (cm *ConfigManager) HydrateFromDB(_ context.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	db := cm.sqlDb.GetDb()
	if db == nil {
		return nil
	}
	if v, ok, err := KVGetInt64(ctx, db, kvKeyCurrentHeight); err == nil && ok {
		logging.Info("Reading current height from DB", types.Config, "height", v)
		cm.currentConfig.CurrentHeight = v
	}
	if v, ok, err := KVGetInt64(ctx, db, kvKeyLastEpochBlock); err == nil && ok {
		logging.Info("Reading last epoch block from DB", types.Config, "height", v)
		cm.currentConfig.LastEpochBlock = v
	}
	if v, ok, err := KVGetInt64(ctx, db, kvKeyStep); err == nil && ok {
		logging.Info("Reading step from DB", types.Config, "step", v)
		cm.currentConfig.Step = v
	}
	return nil
}

// StartAutoFlush launches a background goroutine that periodically flushes dynamic fields to DB.
func (cm *ConfigManager) StartAutoFlush(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				_ = cm.flushToDB(ctx)
			}
		}
	}()
}

// FlushNow flushes dynamic fields immediately.
func (cm *ConfigManager) FlushNow(ctx context.Context) error {
	return cm.flushToDB(ctx)
}

func (cm *ConfigManager) flushToDB(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	cm.mutex.Lock()
	cfg := cm.currentConfig
	cm.mutex.Unlock()
	db := cm.sqlDb.GetDb()
	if db == nil {
		return nil
	}

	_ = KVSetInt64(ctx, db, kvKeyCurrentHeight, cfg.CurrentHeight)
	_ = KVSetInt64(ctx, db, kvKeyLastEpochBlock, cfg.LastEpochBlock)
	_ = KVSetInt64(ctx, db, kvKeyStep, cfg.Step)

	logging.Debug("Flushed dynamic state to DB", types.Config,
		"height", cfg.CurrentHeight, "lastEpochBlock", cfg.LastEpochBlock, "step", cfg.Step)
	return nil
}

// ExportYAML renders the effective configuration, defaults and environment
// overrides applied, as YAML.
func (cm *ConfigManager) ExportYAML() ([]byte, error) {
	cm.mutex.Lock()
	config := cm.currentConfig
	cm.mutex.Unlock()

	k := koanf.New(".")
	if err := k.Load(structs.Provider(config, "koanf"), nil); err != nil {
		return nil, err
	}
	return k.Marshal(yaml.Parser())
}

// KV keys for dynamic data
const (
	kvKeyCurrentHeight  = "current_height"
	kvKeyLastEpochBlock = "last_epoch_block"
	kvKeyStep           = "step"
)
