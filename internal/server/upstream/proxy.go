package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/nocgateway/internal/common"
	"github.com/dmitrijs2005/nocgateway/internal/logging"
	"github.com/dmitrijs2005/nocgateway/internal/server/models"
)

// ConnectionStore loads a tenant's upstream connection.
type ConnectionStore interface {
	Get(ctx context.Context, tenantID, connID string) (*models.UpstreamConnection, error)
}

// RPC is the transport the proxy drives. *Client implements it.
type RPC interface {
	Login(ctx context.Context, baseURL, username, password string) (string, error)
	Call(ctx context.Context, baseURL, method string, params any, token string) (json.RawMessage, error)
}

// Proxy resolves a connection, obtains a session and performs an
// allow-listed call on behalf of a tenant.
type Proxy struct {
	conns  ConnectionStore
	vault  *Vault
	rpc    RPC
	cache  SessionCache
	ttl    time.Duration
	logger logging.Logger
}

func NewProxy(conns ConnectionStore, vault *Vault, rpc RPC, cache SessionCache, ttl time.Duration, logger logging.Logger) *Proxy {
	return &Proxy{conns: conns, vault: vault, rpc: rpc, cache: cache, ttl: ttl, logger: logger}
}

// Call performs method on the tenant's connection connID. A rejected session
// is dropped and the call retried once with a fresh login.
func (p *Proxy) Call(ctx context.Context, tenantID, connID, method string, params any) (json.RawMessage, error) {
	if !Allowed(method) {
		return nil, fmt.Errorf("%w: %s", common.ErrMethodNotAllowed, method)
	}

	conn, err := p.conns.Get(ctx, tenantID, connID)
	if err != nil {
		return nil, err
	}

	token, err := p.session(ctx, conn)
	if err != nil {
		return nil, err
	}

	result, err := p.rpc.Call(ctx, conn.BaseURL, method, params, token)
	var rpcErr *RPCError
	if err == nil || !errors.As(err, &rpcErr) || !rpcErr.SessionExpired() {
		return result, err
	}

	p.logger.Info(ctx, "upstream session rejected, logging in again", "connection_id", conn.ID)
	if err := p.cache.Delete(ctx, conn.ID); err != nil {
		p.logger.Warn(ctx, "failed to drop upstream session", "connection_id", conn.ID, "error", err)
	}
	token, err = p.session(ctx, conn)
	if err != nil {
		return nil, err
	}
	return p.rpc.Call(ctx, conn.BaseURL, method, params, token)
}

// session returns a cached token or logs in. Concurrent misses for the same
// connection may each log in; the last token stored wins.
func (p *Proxy) session(ctx context.Context, conn *models.UpstreamConnection) (string, error) {
	token, ok, err := p.cache.Get(ctx, conn.ID)
	if err != nil {
		p.logger.Warn(ctx, "upstream session cache unavailable", "error", err)
	}
	if ok {
		sessionLookups.WithLabelValues("hit").Inc()
		return token, nil
	}
	sessionLookups.WithLabelValues("miss").Inc()

	password, err := p.vault.Password(conn)
	if err != nil {
		return "", err
	}

	token, err = p.rpc.Login(ctx, conn.BaseURL, conn.Username, password)
	if err != nil {
		p.logger.Warn(ctx, "upstream login failed, purging session cache", "connection_id", conn.ID, "error", err)
		if perr := p.cache.Purge(ctx); perr != nil {
			p.logger.Error(ctx, "failed to purge upstream session cache", "error", perr)
		}
		return "", err
	}

	if err := p.cache.Set(ctx, conn.ID, token, p.ttl); err != nil {
		p.logger.Warn(ctx, "failed to cache upstream session", "connection_id", conn.ID, "error", err)
	}
	return token, nil
}
