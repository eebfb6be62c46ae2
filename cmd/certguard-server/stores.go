package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/viper"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/certguard/certguard/internal/blacklist"
	"github.com/certguard/certguard/internal/certledger"
	"github.com/certguard/certguard/internal/health"
	"github.com/certguard/certguard/internal/users"
	"github.com/certguard/certguard/internal/verifylog"
	"github.com/certguard/certguard/internal/webhooks"
)

// stores holds the persistence backends. An empty database.url selects the
// in-memory ledger, blacklist, accounts and webhooks; an empty mongo.url selects the
// in-memory verification log.
type stores struct {
	ledger    certledger.Ledger
	blacklist blacklist.Store
	users     users.Repository
	verifylog verifylog.Store
	webhooks  webhooks.Store

	pg    *pgxpool.Pool
	mongo *mongo.Client
}

func openStores(ctx context.Context, logger *zap.Logger) (*stores, error) {
	timeout := viper.GetDuration("store.timeout")
	st := &stores{}

	if dbURL := viper.GetString("database.url"); dbURL != "" {
		cctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		db, err := pgxpool.New(cctx, dbURL)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := db.Ping(cctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		logger.Info("connected to postgres")

		st.pg = db
		st.ledger = certledger.NewPostgresLedger(db, logger)
		st.blacklist = blacklist.NewPostgresStore(db)
		st.users = users.NewUserRepository(db)
		st.webhooks = webhooks.NewPostgresStore(db)
	} else {
		logger.Warn("database.url not set, using in-memory ledger; records are lost on restart")
		st.ledger = certledger.New()
		st.blacklist = blacklist.NewMemoryStore()
		st.users = users.NewMemoryRepository()
		st.webhooks = webhooks.NewMemoryStore()
	}

	if mongoURL := viper.GetString("mongo.url"); mongoURL != "" {
		cctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		client, err := verifylog.Connect(cctx, mongoURL, logger)
		if err != nil {
			st.Close()
			return nil, err
		}
		st.mongo = client
		logStore, err := verifylog.NewMongoStore(cctx, client.Database(viper.GetString("mongo.database")), logger)
		if err != nil {
			st.Close()
			return nil, err
		}
		st.verifylog = logStore
	} else {
		logger.Warn("mongo.url not set, using in-memory verification log")
		st.verifylog = verifylog.NewMemoryStore()
	}

	return st, nil
}

// probes returns the health probes for the configured backends.
func (s *stores) probes() []health.Probe {
	probes := []health.Probe{health.LedgerProbe(s.ledger)}
	if s.pg != nil {
		probes = append(probes, health.PingProbe("postgres", s.pg.Ping))
	}
	if s.mongo != nil {
		probes = append(probes, health.PingProbe("mongo", func(ctx context.Context) error {
			return s.mongo.Ping(ctx, nil)
		}))
	}
	return probes
}

// Close releases the database connections.
func (s *stores) Close() {
	if s.mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), viper.GetDuration("store.timeout"))
		defer cancel()
		_ = s.mongo.Disconnect(ctx)
	}
	if s.pg != nil {
		s.pg.Close()
	}
}
