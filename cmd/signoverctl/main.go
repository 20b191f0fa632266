package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/wardlink/signover/internal/config"
	"github.com/wardlink/signover/internal/logging"
	"github.com/wardlink/signover/internal/server"
	"github.com/wardlink/signover/internal/transfer"
	"github.com/wardlink/signover/internal/transport"
)

// samplePatient is the demo signout payload shape. The real payload comes
// from the application layer; signoverctl only needs bytes to move.
type samplePatient struct {
	Name     string `json:"name"`
	Room     string `json:"room"`
	Summary  string `json:"summary"`
	Tasks    string `json:"tasks"`
	Severity string `json:"severity"`
}

func main() {
	logging.ConfigureRuntime()

	configPath := flag.String("config", "signover.toml", "path to configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "signoverctl: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg := config.Default()
	runCfg := defaultRunConfig()
	if _, err := os.Stat(configPath); err == nil {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
		runCfg, err = loadRunConfig(configPath)
		if err != nil {
			return err
		}
	}

	payload, err := loadPayload(runCfg)
	if err != nil {
		return err
	}

	link := transport.NewLoopback(cfg.Link.LoopbackConfig())
	defer link.Close()

	engineCfg := cfg.Engine.TransferConfig()
	sender := transfer.NewSender(link.Peripheral(), engineCfg)
	defer sender.Close()
	receiver := transfer.NewReceiver(link.Central(), engineCfg)
	defer receiver.Close()

	go watchEvents("sender", sender.Events())
	go watchEvents("receiver", receiver.Events())

	srv := server.New(cfg.Server, sender, receiver)
	go func() {
		if err := srv.Run(); err != nil {
			log.Error().Err(err).Msg("status server stopped")
		}
	}()

	if err := sender.Start(payload, runCfg.SenderName); err != nil {
		return err
	}
	if err := receiver.Start(); err != nil {
		return err
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info().Msg("shutting down")
	return nil
}

func loadPayload(runCfg runConfig) ([]byte, error) {
	if runCfg.PayloadFile != "" {
		data, err := os.ReadFile(runCfg.PayloadFile)
		if err != nil {
			return nil, fmt.Errorf("load payload: %w", err)
		}
		return data, nil
	}
	return json.Marshal([]samplePatient{
		{
			Name:     "Doe, Jane",
			Room:     "412-B",
			Summary:  "POD2 lap chole, afebrile, diet advancing",
			Tasks:    "pull drain if output < 30ml",
			Severity: "stable",
		},
		{
			Name:     "Smith, Alex",
			Room:     "407-A",
			Summary:  "CHF exacerbation, diuresing, on 2L O2",
			Tasks:    "recheck BMP at 2200",
			Severity: "watcher",
		},
	})
}

func watchEvents(role string, events <-chan transfer.Event) {
	for ev := range events {
		switch ev.Kind {
		case transfer.EventStateChanged:
			log.Info().Str("role", role).Str("state", ev.Name).Msg("session state")
		case transfer.EventError:
			log.Error().Str("role", role).Err(ev.Err).Msg("session error")
		case transfer.EventTransferComplete:
			log.Info().Str("role", role).Int("bytes", len(ev.Payload)).Msg("transfer complete")
		}
	}
}
