package registry

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/cesmii/profiledesigner/model"
	"github.com/cesmii/profiledesigner/nodeset"
)

// ErrClosed is returned by every method after Close.
var ErrClosed = errors.New("registry: client is closed")

// EndpointsEnv names the environment variable read by NewClientFromEnv.
const EndpointsEnv = "PROFILEDESIGNER_REGISTRY_ENDPOINTS"

// etcdAPI is the part of the etcd client the registry uses.
type etcdAPI interface {
	Put(ctx context.Context, key, val string, opts ...clientv3.OpOption) (*clientv3.PutResponse, error)
	Get(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error)
	Watch(ctx context.Context, key string, opts ...clientv3.OpOption) clientv3.WatchChan
	Close() error
}

// Client implements Registry on etcd.
//
// All methods are safe for concurrent use.
type Client struct {
	etcd      etcdAPI
	namespace string
	logger    *slog.Logger

	mu         sync.RWMutex
	wg         sync.WaitGroup
	closed     bool
	closedChan chan struct{}
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient connects to etcd and verifies the connection.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("registry endpoints cannot be empty")
	}

	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	clientCfg := clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: dialTimeout,
	}
	if cfg.TLS != nil && cfg.TLS.Enabled {
		tlsConfig, err := clientTLS(cfg.TLS)
		if err != nil {
			return nil, fmt.Errorf("configure TLS: %w", err)
		}
		clientCfg.TLS = tlsConfig
	}

	cli, err := clientv3.New(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create etcd client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if _, err := cli.Get(ctx, "health-check"); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		cli.Close()
		return nil, fmt.Errorf("etcd health check failed: %w", err)
	}

	return newClient(cli, cfg.Namespace, opts...), nil
}

// NewClientFromEnv connects to the comma-separated endpoints in
// PROFILEDESIGNER_REGISTRY_ENDPOINTS. It returns (nil, nil) when the
// variable is unset.
func NewClientFromEnv(opts ...Option) (*Client, error) {
	endpoints := os.Getenv(EndpointsEnv)
	if endpoints == "" {
		return nil, nil
	}
	list := strings.Split(endpoints, ",")
	for i, ep := range list {
		list[i] = strings.TrimSpace(ep)
	}
	return NewClient(Config{Endpoints: list}, opts...)
}

func newClient(api etcdAPI, namespace string, opts ...Option) *Client {
	if namespace == "" {
		namespace = "profiledesigner"
	}
	c := &Client{
		etcd:       api,
		namespace:  namespace,
		logger:     slog.Default(),
		closedChan: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Publish implements Registry.
func (c *Client) Publish(ctx context.Context, rec ModelRecord) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}

	if rec.ModelURI == "" {
		return fmt.Errorf("publish: model uri is required")
	}
	if rec.PublishedAt.IsZero() {
		rec.PublishedAt = time.Now().UTC()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal model record: %w", err)
	}
	if _, err := c.etcd.Put(ctx, c.recordKey(rec), string(data)); err != nil {
		return fmt.Errorf("publish %s: %w", rec.ModelURI, err)
	}
	c.logger.Debug("published model", "model", rec.Identity().String(), "tenant", rec.Tenant)
	return nil
}

// Lookup implements Registry.
func (c *Client) Lookup(ctx context.Context, uri string) (*ModelRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, ErrClosed
	}

	records, err := c.get(ctx, c.modelPrefix(uri))
	if err != nil {
		return nil, fmt.Errorf("look up %s: %w", uri, err)
	}
	var newest *ModelRecord
	for i := range records {
		if records[i].ModelURI != uri {
			continue
		}
		if newest == nil || records[i].PublicationDate.After(newest.PublicationDate) {
			newest = &records[i]
		}
	}
	return newest, nil
}

// List implements Registry.
func (c *Client) List(ctx context.Context) ([]ModelRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, ErrClosed
	}
	return c.list(ctx)
}

func (c *Client) list(ctx context.Context) ([]ModelRecord, error) {
	records, err := c.get(ctx, c.rootPrefix())
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].ModelURI != records[j].ModelURI {
			return records[i].ModelURI < records[j].ModelURI
		}
		return records[i].PublicationDate.Before(records[j].PublicationDate)
	})
	return records, nil
}

// Watch implements Registry.
func (c *Client) Watch(ctx context.Context) (<-chan []ModelRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, ErrClosed
	}

	records, err := c.list(ctx)
	if err != nil {
		return nil, err
	}
	ch := make(chan []ModelRecord, 1)
	ch <- records

	watchChan := c.etcd.Watch(ctx, c.rootPrefix(), clientv3.WithPrefix())

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(ch)

		for {
			select {
			case <-ctx.Done():
				return
			case <-c.closedChan:
				return
			case resp, ok := <-watchChan:
				if !ok {
					return
				}
				if err := resp.Err(); err != nil {
					c.logger.Warn("registry watch failed", "error", err)
					return
				}

				records, err := c.list(ctx)
				if err != nil {
					c.logger.Debug("skipping registry update", "error", err)
					continue
				}
				select {
				case ch <- records:
				case <-ctx.Done():
					return
				case <-c.closedChan:
					return
				}
			}
		}
	}()

	return ch, nil
}

// ModelVersion implements Registry and the exporter's version lookup.
func (c *Client) ModelVersion(ctx context.Context, uri string) (model.ModelIdentity, bool, error) {
	rec, err := c.Lookup(ctx, uri)
	if err != nil || rec == nil {
		return model.ModelIdentity{}, false, err
	}
	return rec.Identity(), true, nil
}

// Ping checks that etcd answers.
func (c *Client) Ping(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	if _, err := c.etcd.Get(ctx, c.rootPrefix(), clientv3.WithPrefix(), clientv3.WithCountOnly()); err != nil {
		return fmt.Errorf("ping etcd: %w", err)
	}
	return nil
}

// Close implements Registry.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.closedChan)
	c.mu.Unlock()

	c.wg.Wait()
	return c.etcd.Close()
}

func (c *Client) get(ctx context.Context, prefix string) ([]ModelRecord, error) {
	resp, err := c.etcd.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}
	records := make([]ModelRecord, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var rec ModelRecord
		if err := json.Unmarshal(kv.Value, &rec); err != nil {
			c.logger.Debug("skipping malformed model record", "key", string(kv.Key), "error", err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func (c *Client) rootPrefix() string {
	return fmt.Sprintf("/%s/models/", c.namespace)
}

func (c *Client) modelPrefix(uri string) string {
	return c.rootPrefix() + url.PathEscape(uri) + "/"
}

// recordKey builds /namespace/models/{escaped uri}/{publication date}.
func (c *Client) recordKey(rec ModelRecord) string {
	return c.modelPrefix(rec.ModelURI) + nodeset.FormatPublicationDate(rec.PublicationDate)
}

func clientTLS(cfg *TLSConfig) (*tls.Config, error) {
	if cfg.CertFile == "" || cfg.KeyFile == "" || cfg.CAFile == "" {
		return nil, fmt.Errorf("cert_file, key_file and ca_file are required when TLS is enabled")
	}
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load client certificate: %w", err)
	}
	caData, err := os.ReadFile(cfg.CAFile)
	if err != nil {
		return nil, fmt.Errorf("read CA certificate: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caData) {
		return nil, fmt.Errorf("parse CA certificate %s", cfg.CAFile)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      pool,
		MinVersion:   tls.VersionTLS12,
	}, nil
}
