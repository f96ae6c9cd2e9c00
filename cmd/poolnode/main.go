// Command poolnode wires up a vote-and-certificate pool against a durable
// LevelDB store and drains its event/repair channels, the way the
// teacher's node command wired up its PoA engine against the chain state.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/tolelom/alpenglow/config"
	"github.com/tolelom/alpenglow/consensus"
	"github.com/tolelom/alpenglow/crypto"
	"github.com/tolelom/alpenglow/epoch"
	"github.com/tolelom/alpenglow/events"
	"github.com/tolelom/alpenglow/storage"
)

func main() {
	configPath := flag.String("config", "config.json", "path to node config JSON")
	genKey := flag.Bool("genkey", false, "generate an ed25519 keypair and exit")
	flag.Parse()

	if *genKey {
		priv, pub, err := crypto.GenerateKeyPair()
		if err != nil {
			fmt.Fprintf(os.Stderr, "generate keypair: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("pubkey:  %s\nprivkey: %s\n", pub.Hex(), priv.Hex())
		return
	}

	log, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	log = log.With(zap.String("module", "poolnode"))

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("load config", zap.Error(err))
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatal("create data dir", zap.Error(err))
	}
	db, err := storage.NewLevelDB(cfg.DataDir + "/pool")
	if err != nil {
		log.Fatal("open leveldb", zap.Error(err))
	}
	defer db.Close()

	epochInfo, err := buildEpochInfo(cfg)
	if err != nil {
		log.Fatal("build epoch info", zap.Error(err))
	}

	pool, err := consensus.New(db, epochInfo, consensus.NoopBlockstore{}, consensus.Options{
		EventChannelCapacity:  cfg.EventChannelCapacity,
		RepairChannelCapacity: cfg.RepairChannelCapacity,
	})
	if err != nil {
		log.Fatal("construct pool", zap.Error(err))
	}

	emitter := events.NewEmitter()
	emitter.Subscribe(events.EventCertCreated, func(ev events.Event) {
		log.Info("cert created", zap.Uint64("slot", ev.Slot))
	})

	done := make(chan struct{})

	standstillAfter := time.Duration(cfg.StandstillSeconds) * time.Second
	if standstillAfter <= 0 {
		standstillAfter = 300 * time.Second
	}
	go consensus.WatchStandstill(pool, 400*time.Millisecond, standstillAfter, done)

	go drainEvents(pool, emitter, done)
	go drainRepair(pool, log, done)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting down")
	close(done)
}

func buildEpochInfo(cfg *config.Config) (*epoch.Info, error) {
	validators := make([]epoch.Validator, 0, len(cfg.Validators))
	for _, v := range cfg.Validators {
		pub, err := crypto.PubKeyFromHex(v.Pubkey)
		if err != nil {
			return nil, fmt.Errorf("validator %d pubkey: %w", v.ID, err)
		}
		validators = append(validators, epoch.Validator{
			ID:     consensus.ValidatorId(v.ID),
			Pubkey: pub,
			Stake:  consensus.Stake(v.Stake),
		})
	}
	return epoch.NewInfo(validators, consensus.ValidatorId(cfg.OwnValidatorID)), nil
}

func drainEvents(pool *consensus.Pool, emitter *events.Emitter, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case ev := <-pool.Events():
			emitter.Emit(toEmitterEvent(ev))
		}
	}
}

func toEmitterEvent(ev consensus.VotorEvent) events.Event {
	out := events.Event{Slot: uint64(ev.Slot), Data: map[string]any{}}
	switch ev.Kind {
	case consensus.EventBlockNotarized:
		out.Type = events.EventBlockNotarized
	case consensus.EventParentReady:
		out.Type = events.EventParentReady
		out.Data["parent_slot"] = uint64(ev.ParentSlot)
	case consensus.EventSafeToNotar:
		out.Type = events.EventSafeToNotar
	case consensus.EventSafeToSkip:
		out.Type = events.EventSafeToSkip
	case consensus.EventCertCreated:
		out.Type = events.EventCertCreated
		out.Data["kind"] = ev.Cert.Kind.String()
	case consensus.EventTimeout:
		out.Type = events.EventTimeout
	case consensus.EventStandstill:
		out.Type = events.EventStandstill
		out.Data["certs"] = len(ev.Certs)
		out.Data["own_votes"] = len(ev.OwnVotes)
	}
	return out
}

func drainRepair(pool *consensus.Pool, log *zap.Logger, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case r := <-pool.Repair():
			log.Warn("repair request", zap.Uint64("slot", uint64(r.Slot)))
		}
	}
}
