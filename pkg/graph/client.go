// Package graph mirrors the identity graph into Memgraph over Bolt.
package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/clover/pkg/tracing"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	neo4jconfig "github.com/neo4j/neo4j-go-driver/v5/neo4j/config"
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	// MaxPoolSize caps open Bolt connections. Zero keeps the driver default.
	MaxPoolSize    int
	AcquireTimeout time.Duration
}

// URI is the bolt address of the configured host.
func (c Config) URI() string {
	return fmt.Sprintf("bolt://%s:%d", c.Host, c.Port)
}

// Statement is one parameterized Cypher statement.
type Statement struct {
	Cypher string
	Params map[string]any
}

// Client runs write statements against the graph store. Reads go through the
// relational store, so no read path is exposed.
type Client struct {
	driver neo4j.DriverWithContext
	logger ectologger.Logger
}

func NewClient(cfg Config, logger ectologger.Logger) (*Client, error) {
	auth := neo4j.NoAuth()
	if cfg.Username != "" {
		auth = neo4j.BasicAuth(cfg.Username, cfg.Password, "")
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI(), auth, func(conf *neo4jconfig.Config) {
		if cfg.MaxPoolSize > 0 {
			conf.MaxConnectionPoolSize = cfg.MaxPoolSize
		}
		if cfg.AcquireTimeout > 0 {
			conf.ConnectionAcquisitionTimeout = cfg.AcquireTimeout
		}
	})
	if err != nil {
		return nil, fmt.Errorf("create bolt driver for %s: %w", cfg.URI(), err)
	}

	logger.WithField("uri", cfg.URI()).Info("Graph driver created")
	return &Client{driver: driver, logger: logger}, nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

// Ping checks that the graph store is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.driver.VerifyConnectivity(ctx)
}

// Write runs the statements in order inside one managed write transaction. The driver
// retries the whole transaction on transient errors.
func (c *Client) Write(ctx context.Context, statements ...Statement) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Client.Write")
	defer span.End()

	session := c.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, stmt := range statements {
			result, err := tx.Run(ctx, stmt.Cypher, stmt.Params)
			if err != nil {
				return nil, err
			}
			if _, err := result.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}
