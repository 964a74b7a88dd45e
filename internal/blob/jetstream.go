package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// JetStreamStore implements Store using a NATS JetStream object store bucket.
type JetStreamStore struct {
	conn  *nats.Conn
	store jetstream.ObjectStore
}

// NewJetStreamStore connects to natsURL and opens bucket, creating it if it
// does not exist yet.
func NewJetStreamStore(ctx context.Context, natsURL, bucket string) (*JetStreamStore, error) {
	conn, err := nats.Connect(natsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	store, err := js.ObjectStore(ctx, bucket)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		store, err = js.CreateObjectStore(ctx, jetstream.ObjectStoreConfig{
			Bucket:      bucket,
			Description: "Chat relay uploads",
		})
	}
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open object store bucket: %w", err)
	}

	return &JetStreamStore{conn: conn, store: store}, nil
}

func (s *JetStreamStore) Put(ctx context.Context, name, contentType string, data []byte) (*Object, error) {
	meta := jetstream.ObjectMeta{
		Name: name,
		Headers: nats.Header{
			"Content-Type": []string{contentType},
		},
	}
	info, err := s.store.Put(ctx, meta, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to store object: %w", err)
	}
	return &Object{
		Name:        info.Name,
		Size:        int64(info.Size),
		ContentType: contentType,
		ModTime:     info.ModTime,
	}, nil
}

func (s *JetStreamStore) Get(ctx context.Context, name string) (io.ReadCloser, *Object, error) {
	result, err := s.store.Get(ctx, name)
	if errors.Is(err, jetstream.ErrObjectNotFound) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get object: %w", err)
	}
	info, err := result.Info()
	if err != nil {
		result.Close()
		return nil, nil, fmt.Errorf("failed to get object info: %w", err)
	}

	contentType := "application/octet-stream"
	if info.Headers != nil {
		if ct := info.Headers.Get("Content-Type"); ct != "" {
			contentType = ct
		}
	}
	return result, &Object{
		Name:        info.Name,
		Size:        int64(info.Size),
		ContentType: contentType,
		ModTime:     info.ModTime,
	}, nil
}

// Close drains the NATS connection.
func (s *JetStreamStore) Close() {
	if s.conn != nil {
		s.conn.Close()
	}
}
