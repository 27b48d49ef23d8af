// Package testutil connects token integration tests to a real MongoDB.
package testutil

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// URIEnv names the variable holding the MongoDB URI of the test server.
const URIEnv = "TEST_MONGO_URI"

// TokenDatabase returns a uniquely named database on the server in
// TEST_MONGO_URI. The test is skipped when the variable is unset. The
// database is dropped and the client disconnected when the test ends.
func TokenDatabase(t *testing.T, prefix string) *mongo.Database {
	t.Helper()

	uri := os.Getenv(URIEnv)
	if uri == "" {
		t.Skipf("%s not set, skipping MongoDB integration tests", URIEnv)
	}

	client, err := mongo.Connect(options.Client().
		ApplyURI(uri).
		SetServerAPIOptions(options.ServerAPI(options.ServerAPIVersion1)).
		SetServerSelectionTimeout(10 * time.Second))
	if err != nil {
		t.Fatalf("creating MongoDB client for %s: %v", uri, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		t.Fatalf("pinging MongoDB at %s: %v", uri, err)
	}

	db := client.Database(fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := db.Drop(ctx); err != nil {
			t.Logf("dropping database %s: %v", db.Name(), err)
		}
		if err := client.Disconnect(ctx); err != nil {
			t.Logf("disconnecting MongoDB client: %v", err)
		}
	})
	return db
}
