// Package registry implements the client side of membership discovery
// against a strongly-consistent KV registry (etcd). The static host-list
// source used when no registry is configured lives in the ring package.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"ufscache/internal/errs"
	"ufscache/internal/schema"
	"ufscache/pkg/worker"
)

// workerInfoSchemaJSON constrains the shape of a registry value enough to catch
// a malformed document before JSON struct decoding is attempted: both
// top-level objects must be present, and Identity.identifier must be present.
const workerInfoSchemaJSON = `{
	"type": "object",
	"required": ["Identity", "WorkerNetAddress"],
	"properties": {
		"Identity": {
			"type": "object",
			"required": ["identifier"],
			"properties": {
				"version": {"type": "integer"},
				"identifier": {"type": "string"}
			}
		},
		"WorkerNetAddress": {"type": "object"}
	}
}`

const workerInfoSchemaName = "worker-info"

// EtcdPrefixFormat is the registry key-prefix template; %s is the cluster name.
const EtcdPrefixFormat = "/ServiceDiscovery/%s/"

// DialTimeout bounds how long a single registry endpoint gets before the
// client moves on to the next endpoint in the permutation.
const DialTimeout = 5 * time.Second

// Credentials holds optional basic auth for the registry. Both fields must
// be set together or neither, enforced by the caller at construction time.
type Credentials struct {
	User     string
	Password string
}

// Client fetches the current worker set from an etcd-compatible registry.
type Client struct {
	hosts       []string
	port        int
	clusterName string
	creds       *Credentials
	validator   *schema.Validator
}

// New creates a registry Client. hosts is the configured comma-separated
// endpoint list already split into individual hostnames.
func New(hosts []string, port int, clusterName string, creds *Credentials) *Client {
	v := schema.New()
	if err := v.Register(workerInfoSchemaName, []byte(workerInfoSchemaJSON)); err != nil {
		// The schema above is a compile-time constant; a failure here means a
		// programming error, not a runtime condition callers can recover from.
		panic(err)
	}
	return &Client{hosts: hosts, port: port, clusterName: clusterName, creds: creds, validator: v}
}

// identityDoc mirrors the "Identity" object of a registry worker-info JSON
// document.
type identityDoc struct {
	Version    uint32 `json:"version"`
	Identifier string `json:"identifier"`
}

// netAddressDoc mirrors the "WorkerNetAddress" object.
type netAddressDoc struct {
	Host             *string `json:"Host"`
	ContainerHost    *string `json:"ContainerHost"`
	RPCPort          *int    `json:"RpcPort"`
	DataPort         *int    `json:"DataPort"`
	SecureRPCPort    *int    `json:"SecureRpcPort"`
	NettyDataPort    *int    `json:"NettyDataPort"`
	WebPort          *int    `json:"WebPort"`
	DomainSocketPath *string `json:"DomainSocketPath"`
	HTTPServerPort   *int    `json:"HttpServerPort"`
}

type workerInfoDoc struct {
	Identity          identityDoc   `json:"Identity"`
	WorkerNetAddress  netAddressDoc `json:"WorkerNetAddress"`
}

func (c *Client) decodeWorkerInfo(raw []byte) (worker.Entity, error) {
	if err := c.validator.ValidateStrict(workerInfoSchemaName, raw); err != nil {
		return worker.Entity{}, fmt.Errorf("%w: %v", errs.ErrWorkerInfoParse, err)
	}

	var doc workerInfoDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return worker.Entity{}, fmt.Errorf("%w: %v", errs.ErrWorkerInfoParse, err)
	}
	id, err := worker.IdentityFromHex(doc.Identity.Version, doc.Identity.Identifier)
	if err != nil {
		return worker.Entity{}, fmt.Errorf("%w: invalid identifier: %v", errs.ErrWorkerInfoParse, err)
	}

	addr := worker.DefaultNetAddress()
	n := doc.WorkerNetAddress
	if n.Host != nil {
		addr.Host = *n.Host
	}
	if n.ContainerHost != nil {
		addr.ContainerHost = *n.ContainerHost
	}
	if n.RPCPort != nil {
		addr.RPCPort = *n.RPCPort
	}
	if n.DataPort != nil {
		addr.DataPort = *n.DataPort
	}
	if n.SecureRPCPort != nil {
		addr.SecureRPCPort = *n.SecureRPCPort
	}
	if n.NettyDataPort != nil {
		addr.NettyDataPort = *n.NettyDataPort
	}
	if n.WebPort != nil {
		addr.WebPort = *n.WebPort
	}
	if n.DomainSocketPath != nil {
		addr.DomainSocketPath = *n.DomainSocketPath
	}
	if n.HTTPServerPort != nil {
		addr.HTTPServerPort = *n.HTTPServerPort
	}

	return worker.Entity{Identity: id, Address: addr}, nil
}

// Fetch tries each configured endpoint in a random permutation until one
// succeeds, returning the set of worker entities found under the registry's
// cluster prefix. It fails with ErrRegistryUnavailable if no endpoint
// answers, or ErrRegistryEmpty if the first endpoint to answer reports an
// empty prefix range.
func (c *Client) Fetch(ctx context.Context) ([]worker.Entity, error) {
	if len(c.hosts) == 0 {
		return nil, fmt.Errorf("%w: no registry hosts configured", errs.ErrConfig)
	}

	// Try endpoints in a random permutation until one connects; a reachable
	// endpoint's answer (even an empty one) is final — connectivity failures
	// are what cause us to move on to the next endpoint, not an empty result.
	// A decode failure is not a connectivity failure: the endpoint answered,
	// so it is returned directly rather than folded into the retry loop.
	order := rand.Perm(len(c.hosts))
	var lastErr error
	for _, i := range order {
		host := c.hosts[i]
		entities, err := c.fetchFromHost(ctx, host)
		if err != nil {
			if errors.Is(err, errs.ErrWorkerInfoParse) {
				return nil, err
			}
			lastErr = err
			continue
		}
		if len(entities) == 0 {
			return nil, errs.ErrRegistryEmpty
		}
		return entities, nil
	}
	return nil, fmt.Errorf("%w: tried %d endpoint(s): %v", errs.ErrRegistryUnavailable, len(c.hosts), lastErr)
}

func (c *Client) fetchFromHost(ctx context.Context, host string) ([]worker.Entity, error) {
	endpoint := host
	if !strings.Contains(host, ":") {
		endpoint = host + ":" + strconv.Itoa(c.port)
	}

	cfg := clientv3.Config{
		Endpoints:   []string{endpoint},
		DialTimeout: DialTimeout,
	}
	if c.creds != nil {
		cfg.Username = c.creds.User
		cfg.Password = c.creds.Password
	}

	cli, err := clientv3.New(cfg)
	if err != nil {
		return nil, err
	}
	defer cli.Close()

	getCtx, cancel := context.WithTimeout(ctx, DialTimeout)
	defer cancel()

	prefix := fmt.Sprintf(EtcdPrefixFormat, c.clusterName)
	resp, err := cli.Get(getCtx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}
	if len(resp.Kvs) == 0 {
		return nil, nil
	}

	entities := make([]worker.Entity, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		e, err := c.decodeWorkerInfo(kv.Value)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, nil
}
