package nwc

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip04"
	"go.uber.org/zap"
)

// State is the connector lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateRequesting
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateRequesting:
		return "requesting"
	default:
		return "disconnected"
	}
}

const (
	defaultInfoDeadline    = 10 * time.Second
	defaultRequestDeadline = 30 * time.Second
	defaultPollInterval    = 500 * time.Millisecond
)

// WalletInfo is what the wallet advertises in its kind 13194 event.
type WalletInfo struct {
	Methods       []string `json:"methods"`
	Notifications []string `json:"notifications,omitempty"`
	LUD16         string   `json:"lud16,omitempty"`
}

// Client performs encrypted request/response RPC against a remote wallet
// over a relay. It is safe for concurrent use; requests are serialized per
// client the same way the single-actor original was.
type Client struct {
	dial            TransportFactory
	store           ConnectionStore
	log             *zap.Logger
	infoDeadline    time.Duration
	requestDeadline time.Duration
	pollInterval    time.Duration

	// reqMu serializes RPCs; the original design is single logical actor.
	reqMu sync.Mutex

	mu        sync.Mutex
	state     State
	conn      *WalletConnection
	transport RelayTransport
	sharedKey []byte
	methods   []string
}

type Option func(*Client)

func WithInfoDeadline(d time.Duration) Option {
	return func(c *Client) { c.infoDeadline = d }
}

func WithRequestDeadline(d time.Duration) Option {
	return func(c *Client) { c.requestDeadline = d }
}

// WithPollInterval keeps the original fixed-interval semantics visible: the
// timeout test window for callers is deadline..deadline+interval even though
// waiting is now event-driven.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) { c.pollInterval = d }
}

func NewClient(dial TransportFactory, store ConnectionStore, log *zap.Logger, opts ...Option) *Client {
	c := &Client{
		dial:            dial,
		store:           store,
		log:             log,
		infoDeadline:    defaultInfoDeadline,
		requestDeadline: defaultRequestDeadline,
		pollInterval:    defaultPollInterval,
		state:           StateDisconnected,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateConnected || c.state == StateRequesting
}

// Methods returns the method list advertised at connect time.
func (c *Client) Methods() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.methods))
	copy(out, c.methods)
	return out
}

// Connection returns the secret-free connection metadata, or nil.
func (c *Client) Connection() *StoredConnection {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	return &StoredConnection{
		WalletPubkey: c.conn.WalletPubkey,
		RelayURL:     c.conn.RelayURL,
		LUD16:        c.conn.LUD16,
		Methods:      append([]string(nil), c.methods...),
	}
}

// Connect parses the URI, dials the relay and waits for the wallet's
// capability announcement. Any failure returns the client to Disconnected.
func (c *Client) Connect(ctx context.Context, uri string) (*WalletInfo, error) {
	conn, err := ParseConnectionURI(uri)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return nil, fmt.Errorf("nwc: connect while %s", c.state)
	}
	c.state = StateConnecting
	c.mu.Unlock()

	info, transport, sharedKey, err := c.establish(ctx, conn)
	if err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		return nil, err
	}

	c.mu.Lock()
	c.conn = conn
	c.transport = transport
	c.sharedKey = sharedKey
	c.methods = info.Methods
	c.state = StateConnected
	c.mu.Unlock()

	if c.store != nil {
		rec := &StoredConnection{
			WalletPubkey: conn.WalletPubkey,
			RelayURL:     conn.RelayURL,
			LUD16:        conn.LUD16,
			Methods:      info.Methods,
			ConnectedAt:  time.Now(),
		}
		if err := c.store.SaveConnection(ctx, rec); err != nil {
			c.log.Warn("failed to persist wallet connection", zap.Error(err))
		}
	}

	c.log.Info("wallet connected",
		zap.String("wallet_pubkey", conn.WalletPubkey),
		zap.String("relay", conn.RelayURL),
		zap.Strings("methods", info.Methods),
	)
	return info, nil
}

func (c *Client) establish(ctx context.Context, conn *WalletConnection) (*WalletInfo, RelayTransport, []byte, error) {
	sharedKey, err := nip04.ComputeSharedSecret(conn.WalletPubkey, conn.Secret)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("nwc: shared secret: %w", err)
	}

	transport, err := c.dial(ctx, conn.RelayURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %v", ErrWalletUnreachable, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	filter := nostr.Filter{
		Kinds:   []int{KindWalletInfo},
		Authors: []string{conn.WalletPubkey},
		Limit:   1,
	}
	events, unsub, err := transport.Subscribe(subCtx, filter)
	if err != nil {
		_ = transport.Close()
		return nil, nil, nil, fmt.Errorf("%w: %v", ErrWalletUnreachable, err)
	}
	defer unsub()

	timer := time.NewTimer(c.infoDeadline)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = transport.Close()
			return nil, nil, nil, ctx.Err()
		case <-timer.C:
			_ = transport.Close()
			return nil, nil, nil, ErrWalletUnreachable
		case ev, ok := <-events:
			if !ok {
				// Stream ended without an info event; keep waiting for
				// the deadline so Connect has uniform timing.
				events = nil
				continue
			}
			if ev == nil || ev.Kind != KindWalletInfo || ev.PubKey != conn.WalletPubkey {
				continue
			}
			return parseWalletInfo(ev), transport, sharedKey, nil
		}
	}
}

// parseWalletInfo reads the space-separated method list from the info event
// content, plus the optional notifications tag some wallets attach.
func parseWalletInfo(ev *nostr.Event) *WalletInfo {
	info := &WalletInfo{}
	for _, m := range strings.Fields(ev.Content) {
		info.Methods = append(info.Methods, m)
	}
	if tag := ev.Tags.GetFirst([]string{"notifications"}); tag != nil && len(*tag) > 1 {
		info.Notifications = strings.Fields(tag.Value())
	}
	if tag := ev.Tags.GetFirst([]string{"lud16"}); tag != nil && len(*tag) > 1 {
		info.LUD16 = tag.Value()
	}
	return info
}

// Disconnect clears the in-memory secret and the persisted record.
// Subsequent RPC calls fail with ErrNotConnected.
func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	transport := c.transport
	for i := range c.sharedKey {
		c.sharedKey[i] = 0
	}
	c.conn = nil
	c.transport = nil
	c.sharedKey = nil
	c.methods = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	if transport != nil {
		_ = transport.Close()
	}
	if c.store != nil {
		if err := c.store.DeleteConnection(ctx); err != nil {
			return fmt.Errorf("nwc: delete stored connection: %w", err)
		}
	}
	c.log.Info("wallet disconnected")
	return nil
}

type walletRequest struct {
	Method string `json:"method"`
	Params any    `json:"params"`
}

type walletResponse struct {
	ResultType string          `json:"result_type"`
	Error      *WalletError    `json:"error"`
	Result     json.RawMessage `json:"result"`
}

// Request publishes an encrypted kind 23194 request and waits for the
// correlated kind 23195 response. Duplicate and out-of-order deliveries are
// tolerated; events that do not match kind+author+reference are ignored.
func (c *Client) Request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	c.state = StateRequesting
	conn := c.conn
	transport := c.transport
	sharedKey := c.sharedKey
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.state == StateRequesting {
			c.state = StateConnected
		}
		c.mu.Unlock()
	}()

	payload, err := json.Marshal(walletRequest{Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("nwc: marshal request: %w", err)
	}
	content, err := nip04.Encrypt(string(payload), sharedKey)
	if err != nil {
		return nil, fmt.Errorf("nwc: encrypt request: %w", err)
	}

	ev := nostr.Event{
		Kind:      KindWalletRequest,
		CreatedAt: nostr.Now(),
		Tags:      nostr.Tags{{"p", conn.WalletPubkey}},
		Content:   content,
	}
	if err := ev.Sign(conn.Secret); err != nil {
		return nil, fmt.Errorf("nwc: sign request: %w", err)
	}

	// Subscribe before publishing so a fast wallet cannot respond into the
	// void.
	since := ev.CreatedAt - 1
	filter := nostr.Filter{
		Kinds:   []int{KindWalletResponse},
		Authors: []string{conn.WalletPubkey},
		Tags:    nostr.TagMap{"e": []string{ev.ID}},
		Since:   &since,
	}
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	events, unsub, err := transport.Subscribe(subCtx, filter)
	if err != nil {
		return nil, fmt.Errorf("nwc: subscribe: %w", err)
	}
	defer unsub()

	if err := transport.Publish(ctx, ev); err != nil {
		return nil, fmt.Errorf("nwc: publish request: %w", err)
	}

	timer := time.NewTimer(c.requestDeadline)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			c.log.Warn("wallet request timed out",
				zap.String("method", method),
				zap.String("request_id", ev.ID),
			)
			return nil, ErrRequestTimeout
		case resp, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			result, matched, err := c.handleResponse(resp, &ev, conn, sharedKey)
			if !matched {
				continue
			}
			return result, err
		}
	}
}

func (c *Client) handleResponse(resp *nostr.Event, req *nostr.Event, conn *WalletConnection, sharedKey []byte) (json.RawMessage, bool, error) {
	if resp == nil || resp.Kind != KindWalletResponse || resp.PubKey != conn.WalletPubkey {
		return nil, false, nil
	}
	ref := resp.Tags.GetFirst([]string{"e"})
	if ref == nil || ref.Value() != req.ID {
		return nil, false, nil
	}
	if ok, _ := resp.CheckSignature(); !ok {
		c.log.Warn("response with bad signature ignored", zap.String("event_id", resp.ID))
		return nil, false, nil
	}

	plaintext, err := nip04.Decrypt(resp.Content, sharedKey)
	if err != nil {
		c.log.Warn("undecryptable response ignored", zap.Error(err))
		return nil, false, nil
	}

	var parsed walletResponse
	if err := json.Unmarshal([]byte(plaintext), &parsed); err != nil {
		return nil, true, fmt.Errorf("nwc: parse response: %w", err)
	}
	if parsed.Error != nil && parsed.Error.Code != "" {
		return nil, true, parsed.Error
	}
	return parsed.Result, true, nil
}
