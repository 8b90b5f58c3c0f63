package media

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// GridFSStore implements Store on MongoDB GridFS. Content URLs have the form
// <baseURL>/media/<objectID>; anything else is treated as a foreign URL and
// fetched over HTTP.
type GridFSStore struct {
	client  *mongo.Client
	bucket  *gridfs.Bucket
	baseURL string
}

// GridFSConfig holds GridFS media store configuration.
type GridFSConfig struct {
	URI      string
	Database string
	BaseURL  string
}

// NewGridFSStore connects to MongoDB and opens the media bucket.
func NewGridFSStore(ctx context.Context, config *GridFSConfig) (*GridFSStore, error) {
	if config == nil || config.URI == "" {
		return nil, fmt.Errorf("media: mongo URI is required")
	}
	if config.Database == "" {
		config.Database = "homecanvas"
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(config.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	bucket, err := gridfs.NewBucket(client.Database(config.Database),
		options.GridFSBucket().SetName("media"))
	if err != nil {
		return nil, fmt.Errorf("failed to open GridFS bucket: %w", err)
	}

	return &GridFSStore{
		client:  client,
		bucket:  bucket,
		baseURL: strings.TrimSuffix(config.BaseURL, "/"),
	}, nil
}

// Put uploads data into GridFS and returns its content URL.
func (s *GridFSStore) Put(ctx context.Context, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("media: cannot store empty object")
	}

	opts := options.GridFSUpload().SetMetadata(bson.M{"contentType": contentType})
	id, err := s.bucket.UploadFromStream(fileName(contentType), bytes.NewReader(data), opts)
	if err != nil {
		return "", fmt.Errorf("failed to upload to GridFS: %w", err)
	}
	return fmt.Sprintf("%s/media/%s", s.baseURL, id.Hex()), nil
}

// Get resolves own content URLs through GridFS and foreign URLs over HTTP.
func (s *GridFSStore) Get(ctx context.Context, url string) ([]byte, error) {
	prefix := s.baseURL + "/media/"
	if !strings.HasPrefix(url, prefix) {
		return Fetch(ctx, url)
	}

	id, err := primitive.ObjectIDFromHex(strings.TrimPrefix(url, prefix))
	if err != nil {
		return nil, fmt.Errorf("media: malformed content URL %q: %w", url, err)
	}

	var buf bytes.Buffer
	if _, err := s.bucket.DownloadToStream(id, &buf); err != nil {
		return nil, fmt.Errorf("failed to download from GridFS: %w", err)
	}
	return buf.Bytes(), nil
}

// Close disconnects from MongoDB.
func (s *GridFSStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func fileName(contentType string) string {
	ext := "bin"
	switch contentType {
	case "image/png":
		ext = "png"
	case "image/jpeg":
		ext = "jpg"
	case "image/webp":
		ext = "webp"
	}
	return fmt.Sprintf("edit-%d.%s", time.Now().UnixNano(), ext)
}
