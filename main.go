package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"miner-api/apiconfig"
	"miner-api/chain"
	"miner-api/inference"
	natsclient "miner-api/internal/nats/client"
	natssrv "miner-api/internal/nats/server"
	"miner-api/internal/server"
	"miner-api/logging"
	"miner-api/miner"
	"miner-api/telemetry"
	"miner-api/types"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "status":
			logging.WithNoopLogger(func() (interface{}, error) {
				config, err := apiconfig.LoadDefaultConfigManager()
				if err != nil {
					log.Fatalf("Error loading config: %v", err)
				}
				returnStatus(config)
				return nil, nil
			})
			return
		case "config":
			logging.WithNoopLogger(func() (interface{}, error) {
				config, err := apiconfig.LoadDefaultConfigManager()
				if err != nil {
					log.Fatalf("Error loading config: %v", err)
				}
				out, err := config.ExportYAML()
				if err != nil {
					log.Fatalf("Error rendering config: %v", err)
				}
				fmt.Print(string(out))
				return nil, nil
			})
			return
		}
	}

	config, err := apiconfig.LoadDefaultConfigManager()
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	sink := buildTelemetrySink(config)

	chainClient := chain.NewHTTPClient(config.GetChainNodeConfig().Url)

	// Registration is a configuration error, not a runtime condition; fail
	// fast before serving anything.
	regCtx, cancelReg := context.WithTimeout(context.Background(), 15*time.Second)
	registered, err := chainClient.IsHotkeyRegistered(regCtx, config.GetNetuid(), config.GetWalletConfig().Hotkey)
	cancelReg()
	if err != nil {
		log.Fatalf("Registration check failed: %v", err)
	}
	if !registered {
		log.Fatalf("Hotkey %s is not registered on subnet %d, register it before starting the miner",
			config.GetWalletConfig().Hotkey, config.GetNetuid())
	}

	axon := server.NewServer(config)

	m := miner.New(config, chainClient, axon, &echoPredictor{}, sink, miner.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Periodically persist dynamic state (heights, step) to the DB.
	config.StartAutoFlush(ctx, 60*time.Second)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	err = m.RunScoped(func() error {
		sig := <-sigs
		logging.Info("Received signal, shutting down", types.System, "signal", sig.String())
		return nil
	})
	if err != nil {
		logging.Error("Miner exited with error", types.System, "error", err)
	}

	ctxFlush, cancelFlush := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelFlush()
	logging.Info("Flushing state to the DB on exit", types.Config)
	_ = config.FlushNow(ctxFlush)

	if db := config.SqlDb().GetDb(); db != nil {
		_ = db.Close()
	}
}

// buildTelemetrySink starts the embedded NATS server and connects the
// publishing sink when telemetry is enabled; otherwise records are dropped.
func buildTelemetrySink(config *apiconfig.ConfigManager) telemetry.Sink {
	if !config.GetWandbConfig().On {
		return telemetry.Noop{}
	}

	natsCfg := config.GetNatsConfig()
	ns := natssrv.NewServer(natsCfg)
	if err := ns.Start(); err != nil {
		logging.Error("Failed to start embedded NATS server, telemetry disabled", types.Telemetry, "error", err)
		return telemetry.Noop{}
	}

	conn, err := natsclient.ConnectToNats(natsCfg.Host, natsCfg.Port, "miner-telemetry")
	if err != nil {
		logging.Error("Failed to connect telemetry sink, telemetry disabled", types.Telemetry, "error", err)
		return telemetry.Noop{}
	}

	wandbCfg := config.GetWandbConfig()
	return telemetry.NewNatsSink(conn, map[string]string{
		"project": wandbCfg.ProjectName,
		"entity":  wandbCfg.Entity,
		"hotkey":  config.GetWalletConfig().Hotkey,
		"netuid":  strconv.FormatUint(uint64(config.GetNetuid()), 10),
	})
}

// echoPredictor is the placeholder prediction handler wired in when no real
// model backend is configured. Deployments replace it through miner.New.
type echoPredictor struct{}

func (echoPredictor) Predict(_ context.Context, req *inference.Request) error {
	if len(req.Messages) == 0 {
		req.Completion = ""
		return nil
	}
	req.Completion = req.Messages[len(req.Messages)-1].Content
	return nil
}

func returnStatus(config *apiconfig.ConfigManager) {
	height := config.GetHeight()
	status := map[string]interface{}{
		"sync_info": map[string]string{
			"latest_block_height": strconv.FormatInt(height, 10),
		},
		"step":             strconv.FormatInt(config.GetStep(), 10),
		"last_epoch_block": strconv.FormatInt(config.GetLastEpochBlock(), 10),
	}
	jsonData, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		panic(err)
	}
	fmt.Println(string(jsonData))
	os.Exit(0)
}
