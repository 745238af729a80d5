package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	flag "github.com/spf13/pflag"
	"github.com/vocdoni/arbo/memdb"
	"github.com/vocdoni/vocdoni-fhe-polls/api"
	"github.com/vocdoni/vocdoni-fhe-polls/config"
	"github.com/vocdoni/vocdoni-fhe-polls/crypto/ethereum"
	"github.com/vocdoni/vocdoni-fhe-polls/crypto/fhe"
	"github.com/vocdoni/vocdoni-fhe-polls/kms"
	"github.com/vocdoni/vocdoni-fhe-polls/log"
	"github.com/vocdoni/vocdoni-fhe-polls/poll"
	"github.com/vocdoni/vocdoni-fhe-polls/service"
	"github.com/vocdoni/vocdoni-fhe-polls/storage"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/metadb"
	"golang.org/x/sync/errgroup"
)

// runnable is a long running node service.
type runnable interface {
	Start(ctx context.Context) error
	Stop()
}

func main() {
	configFile := flag.String("config", "", "path to a YAML configuration file")
	datadir := flag.String("datadir", "", "data directory")
	dbType := flag.String("dbType", "", "database backend (pebble or memory)")
	logLevel := flag.String("logLevel", "", "log level (debug, info, warn, error)")
	logOutput := flag.String("logOutput", "", "log output (stdout, stderr or a file path)")
	apiHost := flag.String("apiHost", "", "API listen host")
	apiPort := flag.Int("apiPort", 0, "API listen port")
	chainID := flag.Uint64("chainId", 0, "chain ID the node serves")
	disableMonitor := flag.Bool("disableMonitor", false, "do not end expired polls automatically")
	disableRelayer := flag.Bool("disableRelayer", false, "do not publish the results of ended polls")
	flag.Parse()

	conf, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	// flags take precedence over the file and the environment
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "datadir":
			conf.Datadir = *datadir
		case "dbType":
			conf.DBType = *dbType
		case "logLevel":
			conf.Log.Level = *logLevel
		case "logOutput":
			conf.Log.Output = *logOutput
		case "apiHost":
			conf.API.Host = *apiHost
		case "apiPort":
			conf.API.Port = *apiPort
		case "chainId":
			conf.Chain.ID = *chainID
		case "disableMonitor":
			conf.Monitor.Disabled = *disableMonitor
		case "disableRelayer":
			conf.Relayer.Disabled = *disableRelayer
		}
	})
	if err := conf.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log.Init(conf.Log.Level, conf.Log.Output, nil)

	if err := run(conf); err != nil {
		log.Fatal(err)
	}
}

func run(conf *config.Config) error {
	database, err := openDatabase(conf)
	if err != nil {
		return err
	}
	defer func() {
		if err := database.Close(); err != nil {
			log.Warnw("failed to close database", "error", err.Error())
		}
	}()

	cp, err := fhe.NewCoprocessor(database, fhe.CoprocessorConfig{
		ChainID:    conf.Chain.ID,
		ProtocolID: conf.Coprocessor.ProtocolID,
		KeyBits:    conf.Coprocessor.KeyBits,
		SignerKey:  conf.Coprocessor.SignerKey,
	})
	if err != nil {
		return fmt.Errorf("cannot start coprocessor: %w", err)
	}
	signers, err := kmsSigners(conf)
	if err != nil {
		return err
	}
	oracle := kms.NewOracle(cp, signers, conf.Chain.ID, conf.DecryptionAddress())
	verifier, err := kms.NewThresholdVerifier(oracle.Addresses(), conf.KMS.Threshold,
		conf.Chain.ID, conf.DecryptionAddress())
	if err != nil {
		return err
	}
	stg := storage.New(database)
	engine, err := poll.New(stg, cp, verifier, &poll.Config{
		Address:    conf.EngineAddress(),
		ProtocolID: conf.Coprocessor.ProtocolID,
	})
	if err != nil {
		return err
	}
	log.Infow("poll engine ready",
		"chainId", conf.Chain.ID,
		"engine", conf.EngineAddress().Hex(),
		"inputVerifier", cp.Signer().Hex(),
		"kmsSigners", len(signers),
		"kmsThreshold", conf.KMS.Threshold)

	apiConf := &api.APIConfig{
		Host:              conf.API.Host,
		Port:              conf.API.Port,
		Engine:            engine,
		ChainID:           conf.Chain.ID,
		KMSSigners:        oracle.Addresses(),
		KMSThreshold:      conf.KMS.Threshold,
		DecryptionAddress: conf.DecryptionAddress(),
	}
	if !conf.Relayer.DisableEndpoints {
		apiConf.Inputs = cp
		apiConf.Decrypter = oracle
	}
	services := []runnable{service.NewAPI(apiConf)}
	if !conf.Monitor.Disabled {
		services = append(services, service.NewPollMonitor(engine, cp.Signer(), conf.Monitor.Interval))
	}
	if !conf.Relayer.Disabled {
		services = append(services, service.NewResultsRelayer(engine, stg, oracle, service.RelayerConfig{
			Caller:      cp.Signer(),
			Interval:    conf.Relayer.Interval,
			MaxAttempts: conf.Relayer.MaxAttempts,
		}))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)
	for _, svc := range services {
		g.Go(func() error {
			if err := svc.Start(ctx); err != nil {
				return err
			}
			<-ctx.Done()
			svc.Stop()
			return nil
		})
	}
	err = g.Wait()
	log.Info("poll node stopped")
	return err
}

func openDatabase(conf *config.Config) (db.Database, error) {
	if conf.DBType == config.TypeMemory {
		log.Warn("using an in-memory database, state will be lost on exit")
		return memdb.New(), nil
	}
	dir := filepath.Join(conf.Datadir, "db")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("cannot create data directory: %w", err)
	}
	database, err := metadb.New(conf.DBType, dir)
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	return database, nil
}

// kmsSigners loads the configured KMS member keys or generates new ones.
func kmsSigners(conf *config.Config) ([]*ethereum.SignKeys, error) {
	if len(conf.KMS.Keys) == 0 {
		log.Warnw("generating ephemeral KMS signer keys", "signers", conf.KMS.Signers)
		return kms.GenerateSigners(conf.KMS.Signers)
	}
	signers := make([]*ethereum.SignKeys, len(conf.KMS.Keys))
	for i, k := range conf.KMS.Keys {
		signers[i] = ethereum.NewSignKeys()
		if err := signers[i].AddHexKey(k); err != nil {
			return nil, fmt.Errorf("invalid KMS key %d: %w", i, err)
		}
	}
	return signers, nil
}
