package main

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/user/dexsettle/backend/internal/auth"
	"github.com/user/dexsettle/backend/internal/chain"
	"github.com/user/dexsettle/backend/internal/config"
	"github.com/user/dexsettle/backend/internal/database"
	"github.com/user/dexsettle/backend/internal/exchange"
	"github.com/user/dexsettle/backend/internal/genesis"
	"github.com/user/dexsettle/backend/internal/handlers"
	"github.com/user/dexsettle/backend/internal/orderbook"
	"github.com/user/dexsettle/backend/internal/outbox"
	"github.com/user/dexsettle/backend/internal/storage"
	internalws "github.com/user/dexsettle/backend/internal/websocket"
)

func main() {
	app := &cli.App{
		Name:  "dexsettle-server",
		Usage: "run the settlement ledger and its HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "env-file", Value: ".env", Usage: "optional .env file to load"},
			&cli.StringFlag{Name: "addr", Usage: "listen address, overrides HTTP_ADDR"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load(c.String("env-file"))
	if err != nil {
		return err
	}
	if err := cfg.ConfigureLogging(); err != nil {
		return err
	}
	if addr := c.String("addr"); addr != "" {
		cfg.HTTPAddr = addr
	}
	auth.SetSecret(cfg.JWTSecret)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Ledger
	store, err := openStore(cfg.StateDir)
	if err != nil {
		return err
	}
	ledger := chain.New(store)
	defer ledger.Close()

	d, err := genesis.Ensure(ctx, ledger, cfg.DeploymentsFile, genesis.DefaultAccounts())
	if err != nil {
		return err
	}

	// Database
	if err := database.InitDB(ctx, cfg.DatabaseURL); err != nil {
		return err
	}
	defer database.CloseDB()
	if err := ensureGenesisUsers(ctx, cfg.GenesisPassword); err != nil {
		return err
	}
	projector, err := newProjector(ctx, ledger, d)
	if err != nil {
		return err
	}

	// Read side
	orderbook.InitManager(d.Exchange)
	if err := ledger.View(orderbook.GlobalOrderBookManager.Load); err != nil {
		return err
	}
	internalws.InitializeGlobalHub()
	defer internalws.GlobalHub.Stop()

	var box *outbox.Outbox
	if cfg.OutboxDir != "" {
		if box, err = outbox.Open(cfg.OutboxDir); err != nil {
			return err
		}
		defer box.Close()
		producer := outbox.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		go outbox.NewRelay(box, producer, time.Second).Run(ctx)
		log.WithFields(log.Fields{"brokers": cfg.KafkaBrokers, "topic": cfg.KafkaTopic}).Info("Outbox relay started")
	}

	projections := make(chan *chain.Receipt, 1024)
	go projectLoop(ctx, projector, projections)

	// Subscribers run under the chain lock, in commit order.
	ledger.Subscribe(func(r *chain.Receipt) {
		if box != nil {
			payload, err := json.Marshal(r)
			if err != nil {
				log.Errorf("Error encoding receipt %d: %v", r.Height, err)
			} else if err := box.PutNew(r.Height, []byte(r.ID.String()), payload); err != nil {
				log.Errorf("Error writing receipt %d to outbox: %v", r.Height, err)
			}
		}
		orderbook.GlobalOrderBookManager.Apply(r)
		internalws.GlobalHub.BroadcastReceipt(r)
		select {
		case projections <- r:
		case <-ctx.Done():
		}
	})

	// HTTP
	handlers.Init(ledger, d)
	app := fiber.New(fiber.Config{AppName: "dexsettle"})
	handlers.SetupRoutes(app)

	errc := make(chan error, 1)
	go func() {
		log.Printf("Starting server on %s", cfg.HTTPAddr)
		errc <- app.Listen(cfg.HTTPAddr)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	log.Println("Shutting down...")
	return app.ShutdownWithTimeout(5 * time.Second)
}

func openStore(dir string) (chain.Store, error) {
	if dir == "" {
		log.Warn("STATE_DIR not set, chain state is kept in memory")
		return chain.NewMemStore(), nil
	}
	log.Printf("Opening chain state at %s", dir)
	return storage.Open(dir)
}

// ensureGenesisUsers lets the well-known accounts log in.
func ensureGenesisUsers(ctx context.Context, password string) error {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	for _, name := range genesis.AccountNames {
		if err := database.EnsureUser(ctx, name, hash, chain.AccountFromName(name)); err != nil {
			return err
		}
	}
	return nil
}

// newProjector checks that the SQL projection belongs to this chain and
// builds the projector for the deployed exchange.
func newProjector(ctx context.Context, ledger *chain.Chain, d genesis.Deployment) (*database.Projector, error) {
	height, err := ledger.Height()
	if err != nil {
		return nil, err
	}
	projected, err := database.LastProjectedHeight(ctx)
	if err != nil {
		return nil, err
	}
	switch {
	case projected > height:
		log.Warnf("Projection is at block %d but the chain is at %d, rebuilding", projected, height)
		if err := database.ResetProjection(ctx); err != nil {
			return nil, err
		}
	case projected == 0:
		log.Infof("Projection starts after block %d", height)
	case projected < height:
		log.Warnf("Blocks %d to %d were committed while the projection was offline and will not be projected", projected+1, height)
	}

	var cfg exchange.Config
	err = ledger.View(func(env *chain.Env) (err error) {
		cfg, err = exchange.At(d.Exchange).Config(env)
		return err
	})
	if err != nil {
		return nil, err
	}
	p := database.NewProjector(d.Exchange, cfg)
	p.Custody = func(_ context.Context, account, token common.Address) (amount *big.Int, height uint64, err error) {
		err = ledger.View(func(env *chain.Env) error {
			height = env.Block().Height
			amount, err = exchange.At(d.Exchange).TotalBalanceOf(env, token, account)
			return err
		})
		return amount, height, err
	}
	return p, nil
}

func projectLoop(ctx context.Context, p *database.Projector, in <-chan *chain.Receipt) {
	for {
		select {
		case <-ctx.Done():
			return
		case r := <-in:
			if err := p.Apply(ctx, r); err != nil && !errors.Is(err, context.Canceled) {
				log.WithField("height", r.Height).Errorf("Projection failed: %v", err)
			}
		}
	}
}
