package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ruteri/proof-credential-registry/api/registryhandler"
	"github.com/ruteri/proof-credential-registry/cmd/flags"
	"github.com/ruteri/proof-credential-registry/httpserver"
	"github.com/ruteri/proof-credential-registry/interfaces"
	"github.com/ruteri/proof-credential-registry/ledger/ethledger"
	"github.com/ruteri/proof-credential-registry/ledger/memledger"
	"github.com/ruteri/proof-credential-registry/prover"
	"github.com/ruteri/proof-credential-registry/publisher"
	"github.com/ruteri/proof-credential-registry/registry"
	"github.com/ruteri/proof-credential-registry/service"
	"github.com/ruteri/proof-credential-registry/storage"
	"github.com/ruteri/proof-credential-registry/tracker"
	"github.com/ruteri/proof-credential-registry/wallet"
	"github.com/urfave/cli/v2"
)

var serverFlags = []cli.Flag{
	&cli.StringFlag{
		Name:  "listen-addr",
		Value: "127.0.0.1:8080",
		Usage: "address to listen on for API",
	},
	&cli.StringFlag{
		Name:  "ledger",
		Value: "memory",
		Usage: "ledger backend: 'memory' or 'ethereum'",
	},
	flags.RpcAddrFlag,
	&cli.StringFlag{
		Name:  "registry-contract",
		Usage: "ProofRegistry contract address (ethereum ledger)",
	},
	&cli.StringFlag{
		Name:    "private-key",
		EnvVars: []string{"REGISTRY_PRIVATE_KEY"},
		Usage:   "hex secp256k1 key signing transactions (ethereum ledger)",
	},
	&cli.Int64Flag{
		Name:  "chain-id",
		Value: 1,
		Usage: "chain id used for transaction signing",
	},
	&cli.StringFlag{
		Name:  "owner",
		Usage: "registry owner address (memory ledger)",
	},
	&cli.StringSliceFlag{
		Name:  "validators",
		Usage: "validator addresses added at startup (memory ledger)",
	},
	&cli.DurationFlag{
		Name:  "block-interval",
		Value: 2 * time.Second,
		Usage: "block production period of the memory ledger",
	},
	&cli.Uint64Flag{
		Name:  "required-confirmations",
		Value: 1,
		Usage: "depth at which a submission is confirmed",
	},
	&cli.DurationFlag{
		Name:  "poll-interval",
		Value: tracker.DefaultPollInterval,
		Usage: "delay between inclusion polls",
	},
	&cli.DurationFlag{
		Name:  "monitor-timeout",
		Value: 10 * time.Minute,
		Usage: "upper bound on background confirmation monitoring",
	},
	&cli.BoolFlag{
		Name:  "fail-on-timeout",
		Usage: "mark submissions failed when a monitor deadline expires",
	},
	&cli.StringSliceFlag{
		Name:  "wallet",
		Value: cli.NewStringSlice("file://./wallet"),
		Usage: "storage URIs holding minted credentials (file, s3, ipfs, vault, memory)",
	},
	&cli.StringSliceFlag{
		Name:  "kafka-brokers",
		Usage: "publish finalized statuses to these Kafka brokers",
	},
	&cli.StringFlag{
		Name:  "kafka-topic",
		Value: "registry-submissions",
		Usage: "Kafka topic for finalized statuses",
	},
	&cli.StringFlag{
		Name:  "prover",
		Value: "none",
		Usage: "proof generator: 'none' or 'groth16'",
	},
}

func main() {
	app := &cli.App{
		Name:  "registry-server",
		Usage: "Serve the proof credential registry API",
		Flags: append(append(serverFlags, flags.CommonFlags...), flags.LogServiceFlagFn("registry-server")),
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)

			backend, closeLedger, err := setupLedger(cCtx, logger)
			if err != nil {
				logger.Error("Failed to set up ledger", "err", err)
				return err
			}
			defer closeLedger()

			sink, err := setupSink(cCtx, logger)
			if err != nil {
				logger.Error("Failed to set up status publisher", "err", err)
				return err
			}
			defer sink.Close()

			tr := tracker.New(tracker.Config{
				RequiredConfirmations: cCtx.Uint64("required-confirmations"),
				PollInterval:          cCtx.Duration("poll-interval"),
				FailOnTimeout:         cCtx.Bool("fail-on-timeout"),
			}, backend, sink, logger)
			defer tr.Close()

			credWallet, err := setupWallet(cCtx.StringSlice("wallet"), logger)
			if err != nil {
				logger.Error("Failed to set up wallet", "err", err)
				return err
			}

			var generator interfaces.ProofGenerator
			switch cCtx.String("prover") {
			case "none":
			case "groth16":
				logger.Info("Compiling attendance circuit")
				generator, err = prover.NewGroth16Generator(logger)
				if err != nil {
					logger.Error("Failed to set up prover", "err", err)
					return err
				}
			default:
				return fmt.Errorf("invalid prover: %s", cCtx.String("prover"))
			}

			svc := service.New(service.Config{
				MonitorTimeout: cCtx.Duration("monitor-timeout"),
			}, backend, tr, credWallet, generator, logger)
			defer svc.Close()

			cfg := flags.ConfigureServer(cCtx, logger, cCtx.String("listen-addr"))
			cfg.ReadinessCheck = func(ctx context.Context) error {
				_, err := backend.CurrentHeight(ctx)
				return err
			}
			server, err := httpserver.New(cfg, registryhandler.NewHandler(svc, logger))
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}
			server.RunInBackground()

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

			logger.Info("Server is running, press Ctrl+C to stop")
			<-exit
			logger.Info("Shutdown signal received")

			server.Shutdown()
			logger.Info("Server shutdown complete")
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func setupLedger(cCtx *cli.Context, logger *slog.Logger) (service.Backend, func(), error) {
	switch cCtx.String("ledger") {
	case "memory":
		owner, err := interfaces.NewPrincipalFromHex(cCtx.String("owner"))
		if err != nil {
			return nil, nil, fmt.Errorf("invalid owner: %w", err)
		}
		reg := registry.NewRegistry(owner, logger)
		for _, v := range cCtx.StringSlice("validators") {
			validator, err := interfaces.NewPrincipalFromHex(v)
			if err != nil {
				return nil, nil, fmt.Errorf("invalid validator %q: %w", v, err)
			}
			if err := reg.AddValidator(owner, validator); err != nil {
				return nil, nil, err
			}
		}

		l := memledger.New(reg, logger, memledger.WithBlockInterval(cCtx.Duration("block-interval")))
		l.Start()
		logger.Info("Using in-memory ledger", "owner", owner.String(), "blockInterval", cCtx.Duration("block-interval"))
		return l, l.Close, nil

	case "ethereum":
		contract := cCtx.String("registry-contract")
		if !common.IsHexAddress(contract) {
			return nil, nil, fmt.Errorf("invalid registry-contract: %q", contract)
		}

		rpcAddress := cCtx.String(flags.RpcAddrFlag.Name)
		logger.Info("Connecting to Ethereum RPC", "address", rpcAddress)
		client, err := ethclient.Dial(rpcAddress)
		if err != nil {
			return nil, nil, fmt.Errorf("dial rpc: %w", err)
		}

		var auth *bind.TransactOpts
		if key := cCtx.String("private-key"); key != "" {
			privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(key, "0x"))
			if err != nil {
				client.Close()
				return nil, nil, fmt.Errorf("invalid private-key: %w", err)
			}
			auth, err = bind.NewKeyedTransactorWithChainID(privateKey, big.NewInt(cCtx.Int64("chain-id")))
			if err != nil {
				client.Close()
				return nil, nil, err
			}
			logger.Info("Signing transactions", "from", auth.From.Hex())
		} else {
			logger.Warn("No private key configured, ledger is read-only")
		}

		l, err := ethledger.New(client, ethledger.Config{Contract: common.HexToAddress(contract)}, auth, logger)
		if err != nil {
			client.Close()
			return nil, nil, err
		}
		return l, client.Close, nil

	default:
		return nil, nil, fmt.Errorf("invalid ledger: %s", cCtx.String("ledger"))
	}
}

func setupSink(cCtx *cli.Context, logger *slog.Logger) (interfaces.StatusSink, error) {
	brokers := cCtx.StringSlice("kafka-brokers")
	if len(brokers) == 0 {
		return publisher.NewLogSink(logger), nil
	}
	return publisher.NewKafkaSink(publisher.KafkaConfig{
		Brokers: brokers,
		Topic:   cCtx.String("kafka-topic"),
	}, logger)
}

func setupWallet(uris []string, logger *slog.Logger) (*wallet.Wallet, error) {
	if len(uris) == 0 {
		return nil, errors.New("at least one wallet location is required")
	}
	locations := make([]interfaces.StorageBackendLocation, 0, len(uris))
	for _, uri := range uris {
		loc, err := interfaces.NewStorageBackendLocation(uri)
		if err != nil {
			return nil, err
		}
		locations = append(locations, loc)
	}

	backend, err := storage.NewStorageBackendFactory(logger).CreateMultiBackend(locations)
	if err != nil {
		return nil, err
	}
	logger.Info("Wallet storage configured", "location", backend.LocationURI())
	return wallet.New(backend, logger), nil
}
