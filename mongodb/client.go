package mongodb

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/v2/mongo/otelmongo"
)

// ErrNotConnected is returned by Client methods after Close.
var ErrNotConnected = errors.New("mongodb client is not connected")

// Client owns the MongoDB connection pool and the selected database.
type Client struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect creates the MongoDB client, verifies it with a ping on the primary
// and selects dbName. It should be called once at application startup.
func Connect(ctx context.Context, uri, dbName string) (*Client, error) {
	log.Info().Str("db", dbName).Msg("Initializing MongoDB client")

	clientOptions := options.Client().ApplyURI(uri)
	clientOptions.SetConnectTimeout(10 * time.Second)
	clientOptions.SetMonitor(otelmongo.NewMonitor())

	client, err := mongo.Connect(clientOptions)
	if err != nil {
		log.Error().Err(err).Msg("Failed to connect to MongoDB")
		return nil, err
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		log.Error().Err(err).Msg("Failed to ping MongoDB primary")
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	log.Info().Msg("MongoDB client initialized successfully.")
	return &Client{client: client, db: client.Database(dbName)}, nil
}

// Database returns the selected database.
func (c *Client) Database() *mongo.Database {
	return c.db
}

// Ping sends a ping to the MongoDB server. Useful for health checks.
func (c *Client) Ping(ctx context.Context) error {
	if c.client == nil {
		return ErrNotConnected
	}
	// Use a short timeout for pings
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return c.client.Ping(pingCtx, readpref.Primary())
}

// Close disconnects the MongoDB client.
// It should be called on application shutdown.
func (c *Client) Close(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	log.Info().Msg("Closing MongoDB connection.")
	err := c.client.Disconnect(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Error closing MongoDB connection")
	}
	c.client = nil
	return err
}
