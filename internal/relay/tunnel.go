// Package relay maintains the outbound tunnel to a rendezvous broker so a
// remote client can reach this process without connecting to it directly.
package relay

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Yllib/socketclaude/internal/keys"
	"github.com/Yllib/socketclaude/internal/transport"
	"github.com/cenkalti/backoff/v4"
	"github.com/coder/websocket"
)

// Status is the tunnel's connection state.
type Status string

const (
	StatusDisconnected   Status = "disconnected"
	StatusConnecting     Status = "connecting"
	StatusWaitingForPeer Status = "waiting_for_peer"
	StatusPaired         Status = "paired"
	StatusError          Status = "error"
)

// Frame types on the relay wire. Control and key-exchange frames are
// plaintext; application frames carry nonce + ciphertext instead of a type.
const (
	frameKeyExchange      = "key-exchange"
	frameHandshakeAck     = "handshake-ack"
	framePeerConnected    = "peer-connected"
	framePeerDisconnected = "peer-disconnected"
)

type frame struct {
	Type       string `json:"type,omitempty"`
	PublicKey  string `json:"publicKey,omitempty"`
	Nonce      string `json:"nonce,omitempty"`
	Ciphertext string `json:"ciphertext,omitempty"`
}

// Handler receives decrypted inbound application payloads.
type Handler func(payload []byte)

// Tunnel is a single outbound broker connection with automatic reconnect.
type Tunnel struct {
	brokerURL    string
	pairingToken string
	kp           *keys.KeyPair
	handler      Handler
	backoff      *backoff.ExponentialBackOff

	mu      sync.Mutex
	status  Status
	peerKey *[keys.KeySize]byte
	writeFn func([]byte) error

	closed atomic.Bool
}

// New creates a tunnel. Run must be called to connect.
func New(brokerURL, pairingToken string, kp *keys.KeyPair, handler Handler, initial, max time.Duration) *Tunnel {
	return &Tunnel{
		brokerURL:    brokerURL,
		pairingToken: pairingToken,
		kp:           kp,
		handler:      handler,
		backoff:      newBackoff(initial, max),
		status:       StatusDisconnected,
	}
}

// newBackoff builds the reconnect policy: doubling delays from initial to
// max. RandomizationFactor stays 0 because the delay sequence is part of the
// documented reconnect contract.
func newBackoff(initial, max time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = max
	b.Multiplier = 2.0
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0 // retry forever until Close
	b.Reset()
	return b
}

// Status returns the current connection state.
func (t *Tunnel) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *Tunnel) setStatus(s Status) {
	t.mu.Lock()
	t.status = s
	t.mu.Unlock()
}

// PairingPayload is the out-of-band bootstrap string a client scans:
// relay address, pairing token, and this installation's public key.
func (t *Tunnel) PairingPayload() string {
	return t.brokerURL + "|" + t.pairingToken + "|" + t.kp.PublicKeyString()
}

// Transport returns the tunnel's virtual outward channel. It is open only
// while the tunnel is paired.
func (t *Tunnel) Transport() transport.Transport {
	return (*virtualTransport)(t)
}

// Run connects to the broker and reconnects with exponential backoff until
// ctx is done or Close is called.
func (t *Tunnel) Run(ctx context.Context) {
	for {
		if t.closed.Load() || ctx.Err() != nil {
			return
		}

		t.setStatus(StatusConnecting)
		if err := t.runOnce(ctx); err != nil {
			if t.closed.Load() || ctx.Err() != nil {
				return
			}
			t.setStatus(StatusError)
			delay := t.backoff.NextBackOff()
			slog.Warn("Relay connection lost, reconnecting", "error", err, "delay", delay)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}
		return
	}
}

// runOnce dials the broker once and pumps frames until the connection drops.
func (t *Tunnel) runOnce(ctx context.Context) error {
	u, err := url.Parse(t.brokerURL)
	if err != nil {
		return fmt.Errorf("broker url: %w", err)
	}
	q := u.Query()
	q.Set("token", t.pairingToken)
	q.Set("role", "server")
	u.RawQuery = q.Encode()

	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	conn.SetReadLimit(64 << 20)
	defer conn.Close(websocket.StatusNormalClosure, "tunnel closed")

	t.mu.Lock()
	t.writeFn = func(data []byte) error {
		return conn.Write(ctx, websocket.MessageText, data)
	}
	t.status = StatusWaitingForPeer
	t.mu.Unlock()
	t.backoff.Reset()
	slog.Info("Relay connected, waiting for peer", "broker", t.brokerURL)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.mu.Lock()
			t.writeFn = nil
			t.peerKey = nil
			t.mu.Unlock()
			if t.closed.Load() {
				return nil
			}
			return fmt.Errorf("read broker: %w", err)
		}
		t.handleFrame(data)
	}
}

// handleFrame processes one inbound frame. Undecryptable application frames
// are dropped without touching connection or pairing state.
func (t *Tunnel) handleFrame(data []byte) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		slog.Warn("Dropping malformed relay frame", "error", err)
		return
	}

	if f.Nonce != "" || f.Ciphertext != "" {
		t.handleEncrypted(f)
		return
	}

	switch f.Type {
	case framePeerConnected:
		// Peer is present; pairing completes when its key arrives.
		slog.Info("Relay peer connected")
	case frameKeyExchange:
		t.handleKeyExchange(f)
	case framePeerDisconnected:
		t.mu.Lock()
		t.peerKey = nil
		t.status = StatusWaitingForPeer
		t.mu.Unlock()
		slog.Info("Relay peer disconnected")
	default:
		slog.Debug("Ignoring unknown relay control frame", "frame_type", f.Type)
	}
}

// handleKeyExchange stores the peer key, transitions to paired, and replies
// with a plaintext acknowledgment so the peer knows to switch to encrypted
// mode. The ack carries no sensitive data.
func (t *Tunnel) handleKeyExchange(f frame) {
	peerKey, err := keys.ParsePublicKey(f.PublicKey)
	if err != nil {
		slog.Warn("Dropping key exchange with bad public key", "error", err)
		return
	}

	t.mu.Lock()
	t.peerKey = peerKey
	t.status = StatusPaired
	t.mu.Unlock()

	if err := t.writeFrame(frame{Type: frameHandshakeAck}); err != nil {
		slog.Warn("Failed to send handshake ack", "error", err)
		return
	}
	slog.Info("Relay paired")
}

func (t *Tunnel) handleEncrypted(f frame) {
	t.mu.Lock()
	peerKey := t.peerKey
	t.mu.Unlock()

	if peerKey == nil {
		slog.Warn("Dropping encrypted frame received before key exchange")
		return
	}

	nonce, err := base64.StdEncoding.DecodeString(f.Nonce)
	if err != nil {
		slog.Warn("Dropping frame with malformed nonce", "error", err)
		return
	}
	ciphertext, err := base64.StdEncoding.DecodeString(f.Ciphertext)
	if err != nil {
		slog.Warn("Dropping frame with malformed ciphertext", "error", err)
		return
	}

	plaintext, err := keys.Decrypt(nonce, ciphertext, peerKey, &t.kp.Secret)
	if err != nil {
		// Wrong key or tampering: drop the frame, keep the pairing.
		slog.Warn("Dropping undecryptable relay frame", "error", err)
		return
	}

	if t.handler != nil {
		t.handler(plaintext)
	}
}

func (t *Tunnel) writeFrame(f frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal relay frame: %w", err)
	}

	t.mu.Lock()
	write := t.writeFn
	t.mu.Unlock()
	if write == nil {
		return errors.New("relay: not connected")
	}
	return write(data)
}

// sendEncrypted seals v with a fresh nonce and sends it as an application
// frame.
func (t *Tunnel) sendEncrypted(v any) error {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal relay payload: %w", err)
	}

	t.mu.Lock()
	peerKey := t.peerKey
	t.mu.Unlock()
	if peerKey == nil {
		return errors.New("relay: not paired")
	}

	nonce, ciphertext, err := keys.Encrypt(plaintext, peerKey, &t.kp.Secret)
	if err != nil {
		return fmt.Errorf("encrypt relay payload: %w", err)
	}

	return t.writeFrame(frame{
		Nonce:      base64.StdEncoding.EncodeToString(nonce[:]),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
	})
}

// Close stops the tunnel permanently. Reconnection is disabled afterwards.
func (t *Tunnel) Close() {
	t.closed.Store(true)
	t.mu.Lock()
	t.writeFn = nil
	t.peerKey = nil
	t.status = StatusDisconnected
	t.mu.Unlock()
}

// virtualTransport adapts the tunnel to the Transport interface.
type virtualTransport Tunnel

func (v *virtualTransport) Send(msg any) error {
	return (*Tunnel)(v).sendEncrypted(msg)
}

func (v *virtualTransport) Open() bool {
	return (*Tunnel)(v).Status() == StatusPaired
}
