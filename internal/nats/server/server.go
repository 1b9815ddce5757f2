package server

import (
	"time"

	natssrv "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"miner-api/apiconfig"
	"miner-api/logging"
	"miner-api/types"
)

const (
	TelemetryStream = "telemetry_events"

	storageDir  = "/root/.miner/.nats"
	DefaultPort = 4222
	DefaultHost = "0.0.0.0"
)

type NatsServer interface {
	Start() error
	ClientURL() string
}

type server struct {
	conf apiconfig.NatsServerConfig
	ns   *natssrv.Server
}

func NewServer(config apiconfig.NatsServerConfig) NatsServer {
	return &server{
		conf: config,
	}
}

func (s *server) Start() error {
	if s.conf.Host == "" {
		s.conf.Host = DefaultHost
	}

	if s.conf.Port == 0 {
		s.conf.Port = DefaultPort
	}

	logging.Info("starting nats server", types.Messages, "port", s.conf.Port, "host", s.conf.Host)

	opts := &natssrv.Options{
		Host:      s.conf.Host,
		Port:      s.conf.Port,
		JetStream: true,
		StoreDir:  storageDir,
	}

	ns, err := natssrv.NewServer(opts)
	if err != nil {
		return errors.Wrap(err, "failed to create NATS server")
	}

	s.ns = ns
	go ns.Start()

	for i := 0; i < 3; i++ {
		time.Sleep(1 * time.Second)
		if ns.ReadyForConnections(2 * time.Second) {
			break
		}
		if i == 2 {
			return errors.New("NATS server not ready after 3 attempts")
		}
	}

	return s.createJetStreamTopics([]string{TelemetryStream})
}

func (s *server) ClientURL() string {
	return s.ns.ClientURL()
}

func (s *server) createJetStreamTopics(topicNames []string) error {
	nc, err := nats.Connect(s.ns.ClientURL())
	if err != nil {
		return errors.Wrap(err, "failed to connect to embedded NATS")
	}
	defer nc.Close()

	js, err := nc.JetStream()
	if err != nil {
		return errors.Wrap(err, "failed to get JetStream context")
	}

	for _, name := range topicNames {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:     name,
			Subjects: []string{name + ".>", "telemetry.>"},
			Storage:  nats.FileStorage,
		})
		if err != nil && err != nats.ErrStreamNameAlreadyInUse {
			return errors.Wrapf(err, "failed to create stream %s", name)
		}
	}
	return nil
}
