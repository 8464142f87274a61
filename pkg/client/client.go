// Package client implements a client for the FileService
package client

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/example/ext2fs/pkg/api"
)

// Config contains the client configuration options
type Config struct {
	// ServerAddress is the address of the file server (e.g., "localhost:7050")
	ServerAddress string

	// Timeout is the default timeout for RPC operations
	Timeout time.Duration

	// MaxRetries is the maximum number of retries for operations
	MaxRetries int

	// RetryDelay is the initial delay between retries (will be multiplied by backoff factor)
	RetryDelay time.Duration

	// BackoffFactor is the multiplier for retry delay after each attempt
	BackoffFactor float64

	// MaxCacheSize is the maximum number of entries in each cache
	MaxCacheSize int

	// CacheTTL is the time-to-live for cache entries
	CacheTTL time.Duration

	// ReadChunkSize is the count requested by each Read call of ReadAll
	ReadChunkSize int
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		ServerAddress: "localhost:7050",
		Timeout:       30 * time.Second,
		MaxRetries:    3,
		RetryDelay:    500 * time.Millisecond,
		BackoffFactor: 2.0,
		MaxCacheSize:  1000,
		CacheTTL:      5 * time.Minute,
		ReadChunkSize: 64 * 1024,
	}
}

// Client implements FileClient over a gRPC connection
type Client struct {
	// gRPC connection to the server
	conn *grpc.ClientConn

	// FileService client
	fileClient api.FileServiceClient

	// Client configuration
	config *Config

	// Path and handle cache
	handleCache *HandleCache

	// Attribute cache keyed by handle
	attrCache *AttrCache

	log logrus.FieldLogger
}

// NewClient connects to config.ServerAddress
func NewClient(config *Config) (*Client, error) {
	if config == nil {
		config = DefaultConfig()
	}

	conn, err := grpc.NewClient(
		config.ServerAddress,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	return NewClientWithConn(conn, config), nil
}

// NewClientWithConn builds a client on an existing connection. The client
// takes ownership of conn.
func NewClientWithConn(conn *grpc.ClientConn, config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	return &Client{
		conn:        conn,
		fileClient:  api.NewFileServiceClient(conn),
		config:      config,
		handleCache: NewHandleCache(config.MaxCacheSize, config.CacheTTL),
		attrCache:   NewAttrCache(config.MaxCacheSize, config.CacheTTL),
		log:         logrus.StandardLogger().WithField("server", config.ServerAddress),
	}
}

// Close closes the client connection
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// ClearCache drops every cached handle and attribute
func (c *Client) ClearCache() error {
	c.handleCache.Clear()
	c.attrCache.Clear()
	return nil
}

// SetCacheTTL sets the time-to-live for new cache entries
func (c *Client) SetCacheTTL(duration time.Duration) {
	c.handleCache.SetTTL(duration)
	c.attrCache.SetTTL(duration)
}
