package docstore

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/sethvargo/go-retry"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/spetr/aethersync/pkg/provider"
	"github.com/spetr/aethersync/pkg/types"
)

// Default values
const (
	DefaultDatabase = "aethermart"
	DefaultTimeout  = 10 * time.Second
)

// Mongo is a DocumentStore backed by MongoDB.
type Mongo struct {
	client  *mongo.Client
	db      *mongo.Database
	timeout time.Duration
}

var _ provider.DocumentStore = (*Mongo)(nil)

// MongoURI renders opts as a connection string.
func MongoURI(opts Options) string {
	if opts.URI != "" {
		return opts.URI
	}
	host := opts.Host
	if host == "" {
		host = "localhost"
	}
	port := opts.Port
	if port == 0 {
		port = 27017
	}

	u := url.URL{Scheme: "mongodb", Host: net.JoinHostPort(host, strconv.Itoa(port)), Path: "/"}
	if opts.User != "" {
		u.User = url.UserPassword(opts.User, opts.Password)
		authDB := opts.AuthDB
		if authDB == "" {
			authDB = "admin"
		}
		u.RawQuery = url.Values{"authSource": {authDB}}.Encode()
	}
	return u.String()
}

// OpenMongo connects and pings the server, retrying with Fibonacci backoff.
func OpenMongo(ctx context.Context, opts Options) (*Mongo, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Database == "" {
		opts.Database = DefaultDatabase
	}

	clientOpts := options.Client().
		ApplyURI(MongoURI(opts)).
		SetServerSelectionTimeout(opts.Timeout).
		SetConnectTimeout(opts.Timeout)
	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, &types.ConnectionError{Target: "mongo", Err: err}
	}

	retries := opts.ConnectRetries
	if retries <= 0 {
		retries = 3
	}
	base := opts.ConnectBackoff
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	b := retry.WithMaxRetries(uint64(retries), retry.NewFibonacci(base))
	err = retry.Do(ctx, b, func(ctx context.Context) error {
		if err := client.Ping(ctx, nil); err != nil {
			slog.Warn("document store not reachable, retrying", "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, &types.ConnectionError{Target: "mongo", Err: err}
	}

	slog.Debug("document store connected", "database", opts.Database)
	return &Mongo{client: client, db: client.Database(opts.Database), timeout: opts.Timeout}, nil
}

// Name returns the store name.
func (m *Mongo) Name() string {
	return "mongo"
}

// Upsert applies set to the document whose keyField equals key, creating it
// with setOnInsert when missing.
func (m *Mongo) Upsert(ctx context.Context, collection, keyField string, key any, set, setOnInsert map[string]any) (provider.UpsertResult, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	update := bson.D{{Key: "$set", Value: bson.M(set)}}
	if len(setOnInsert) > 0 {
		update = append(update, bson.E{Key: "$setOnInsert", Value: bson.M(setOnInsert)})
	}

	res, err := m.db.Collection(collection).UpdateOne(ctx,
		bson.D{{Key: keyField, Value: key}},
		update,
		options.Update().SetUpsert(true))
	if err != nil {
		return provider.UpsertResult{}, persistErr(collection, err)
	}
	return provider.UpsertResult{
		Matched:  res.MatchedCount > 0,
		Inserted: res.UpsertedCount > 0,
	}, nil
}

// Find returns the document whose keyField equals key.
func (m *Mongo) Find(ctx context.Context, collection, keyField string, key any) (bson.M, error) {
	var doc bson.M
	err := m.db.Collection(collection).FindOne(ctx, bson.D{{Key: keyField, Value: key}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, types.ErrNotFound
	}
	return doc, err
}

// Close disconnects the client.
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
