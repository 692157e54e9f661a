// Package rawstore persists raw fetched HTML to MongoDB, keeping large
// bodies compressed and oversized ones truncated.
package rawstore

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jooya/crawler/internal/logger"
)

const (
	connectTimeout = 10 * time.Second
	writeTimeout   = 30 * time.Second

	// gzipThresholdBytes is the body size above which the stored copy is
	// gzip-compressed.
	gzipThresholdBytes = 200_000

	// rejectFactor times the save limit is the hard cap; anything beyond is
	// not stored at all.
	rejectFactor = 10
)

// ErrBodyTooLarge marks bodies beyond the hard cap. Callers treat it as a
// skip, not a failure.
var ErrBodyTooLarge = errors.New("rawstore: body exceeds hard cap")

// Store writes raw page documents to a MongoDB collection, one document per
// URL (latest fetch wins).
type Store struct {
	client        *mongo.Client
	collection    *mongo.Collection
	maxSavedBytes int
	log           logger.Logger
}

// NewStore connects to MongoDB and verifies the connection with a ping.
func NewStore(ctx context.Context, uri, database, collection string, maxSavedBytes int, log logger.Logger) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}

	if pingErr := client.Ping(ctx, nil); pingErr != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb ping: %w", pingErr)
	}

	return &Store{
		client:        client,
		collection:    client.Database(database).Collection(collection),
		maxSavedBytes: maxSavedBytes,
		log:           log,
	}, nil
}

// StoreRaw upserts the raw body for url. Bodies over the gzip threshold are
// compressed, bodies over the save limit are truncated first, and bodies
// over ten times the limit are dropped with only a log line.
func (s *Store) StoreRaw(ctx context.Context, url string, statusCode int, body []byte) error {
	prepared, err := prepareRawBody(body, s.maxSavedBytes)
	if errors.Is(err, ErrBodyTooLarge) {
		s.log.Warn("raw body dropped, exceeds hard cap",
			logger.String("url", url),
			logger.Int("bytes", len(body)),
		)
		return nil
	}
	if err != nil {
		return err
	}

	doc := bson.M{
		"url":             url,
		"status_code":     statusCode,
		"body":            prepared.Data,
		"compressed":      prepared.Compressed,
		"truncated":       prepared.Truncated,
		"original_length": len(body),
		"stored_length":   len(prepared.Data),
		"fetched_at":      time.Now().UTC(),
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	_, upsertErr := s.collection.UpdateOne(
		ctx,
		bson.M{"url": url},
		bson.M{"$set": doc},
		options.Update().SetUpsert(true),
	)
	if upsertErr != nil {
		return fmt.Errorf("mongodb upsert: %w", upsertErr)
	}

	return nil
}

// Exists reports whether a raw document for url is present.
func (s *Store) Exists(ctx context.Context, url string) (bool, error) {
	count, err := s.collection.CountDocuments(ctx, bson.M{"url": url}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("mongodb count: %w", err)
	}
	return count > 0, nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// preparedBody is the storable form of a raw HTML body.
type preparedBody struct {
	Data       []byte
	Compressed bool
	Truncated  bool
}

// prepareRawBody applies the size policy: reject beyond rejectFactor times
// the limit, truncate to the limit, gzip above the threshold.
func prepareRawBody(body []byte, maxSavedBytes int) (preparedBody, error) {
	if len(body) > rejectFactor*maxSavedBytes {
		return preparedBody{}, ErrBodyTooLarge
	}

	truncated := false
	if len(body) > maxSavedBytes {
		body = body[:maxSavedBytes]
		truncated = true
	}

	if len(body) <= gzipThresholdBytes {
		return preparedBody{Data: body, Truncated: truncated}, nil
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(body); err != nil {
		return preparedBody{}, fmt.Errorf("gzip body: %w", err)
	}
	if err := zw.Close(); err != nil {
		return preparedBody{}, fmt.Errorf("gzip close: %w", err)
	}

	return preparedBody{Data: buf.Bytes(), Compressed: true, Truncated: truncated}, nil
}
