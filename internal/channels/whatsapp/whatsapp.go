// Package whatsapp implements the WhatsApp-style channel (§6.1): a
// persistent websocket session to a bridge process, self-chat filtering,
// echo suppression by tracking sent message ids, image attachment support,
// and a QR pairing stream triggered by the WHATSAPP_QR marker (§4.3).
//
// Grounded on the teacher's internal/channels/whatsapp/whatsapp.go
// (gorilla/websocket bridge dial, reconnect-with-backoff listenLoop, JSON
// envelope over the wire), trimmed of its DB-backed pairing-service/DM-policy
// machinery — authorization here is the gateway pipeline's job (§4.1 step 2),
// not the channel's.
package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/omegagate/internal/bus"
	"github.com/nextlevelbuilder/omegagate/internal/channels"
)

type Config struct {
	BridgeURL   string
	SessionPath string // {data_dir}/whatsapp_session/
}

// Channel connects to a WhatsApp bridge process over a websocket. The
// bridge owns the actual multi-device protocol handshake; this channel
// exchanges a small JSON envelope with it.
type Channel struct {
	cfg Config

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool

	ctx    context.Context
	cancel context.CancelFunc

	sentIDs sync.Map // message id -> time.Time, for echo suppression

	qr *QRStream
}

// SetQRStream wires a QRStream that receives bridge-published "qr" envelopes.
func (c *Channel) SetQRStream(qr *QRStream) { c.qr = qr }

func New(cfg Config) (*Channel, error) {
	if cfg.BridgeURL == "" {
		return nil, fmt.Errorf("whatsapp: bridge_url is required")
	}
	return &Channel{cfg: cfg}, nil
}

func (c *Channel) Name() string { return "whatsapp" }

func (c *Channel) Start(ctx context.Context) (<-chan bus.IncomingMessage, error) {
	c.ctx, c.cancel = context.WithCancel(ctx)
	out := make(chan bus.IncomingMessage, 64)

	if err := c.connect(); err != nil {
		slog.Warn("whatsapp: initial bridge connection failed, will retry", "error", err)
	}
	go c.listenLoop(out)

	return out, nil
}

func (c *Channel) connect() error {
	dialer := websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.Dial(c.cfg.BridgeURL, nil)
	if err != nil {
		return fmt.Errorf("whatsapp: dial bridge %s: %w", c.cfg.BridgeURL, err)
	}
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()
	slog.Info("whatsapp: bridge connected", "url", c.cfg.BridgeURL)
	return nil
}

func (c *Channel) listenLoop(out chan<- bus.IncomingMessage) {
	defer close(out)
	backoff := time.Second

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		if conn == nil {
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(backoff):
			}
			if err := c.connect(); err != nil {
				slog.Warn("whatsapp: reconnect failed", "error", err, "backoff", backoff)
				backoff *= 2
				if backoff > 60*time.Second {
					backoff = 60 * time.Second
				}
				continue
			}
			backoff = time.Second
			continue
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			slog.Warn("whatsapp: read error, reconnecting", "error", err)
			c.mu.Lock()
			_ = c.conn.Close()
			c.conn = nil
			c.connected = false
			c.mu.Unlock()
			continue
		}

		var env wireEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			slog.Warn("whatsapp: invalid bridge JSON", "error", err)
			continue
		}
		if env.Type == "qr" {
			if c.qr != nil {
				c.qr.Publish(env.Content)
			}
			continue
		}
		if env.Type != "message" {
			continue
		}
		if _, echoed := c.sentIDs.Load(env.ID); echoed {
			continue // self-chat echo suppression
		}
		if env.From == "" || strings.HasSuffix(env.Chat, "@self") {
			continue
		}

		msg := bus.IncomingMessage{
			ID:          env.ID,
			Channel:     c.Name(),
			SenderID:    env.From,
			DisplayName: env.FromName,
			Text:        env.Content,
			Timestamp:   time.Now().UTC(),
			ReplyTarget: chatOrSender(env.Chat, env.From),
			IsGroup:     strings.HasSuffix(env.Chat, "@g.us"),
		}
		if env.MediaURL != "" {
			msg.Attachments = []bus.Attachment{{Kind: "image", URL: env.MediaURL, Caption: env.Content}}
		}

		select {
		case out <- msg:
		case <-c.ctx.Done():
			return
		}
	}
}

func chatOrSender(chat, sender string) string {
	if chat != "" {
		return chat
	}
	return sender
}

type wireEnvelope struct {
	Type     string `json:"type"`
	ID       string `json:"id"`
	From     string `json:"from"`
	FromName string `json:"from_name"`
	Chat     string `json:"chat"`
	Content  string `json:"content"`
	MediaURL string `json:"media_url,omitempty"`
}

func (c *Channel) Send(ctx context.Context, msg bus.OutgoingMessage) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("whatsapp: bridge not connected")
	}
	id := fmt.Sprintf("out-%d", time.Now().UnixNano())
	payload, err := json.Marshal(wireEnvelope{Type: "message", ID: id, Chat: msg.ReplyTarget, Content: msg.Text})
	if err != nil {
		return err
	}
	c.sentIDs.Store(id, time.Now())
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("whatsapp: bridge not connected")
	}
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *Channel) SendTyping(ctx context.Context, target string) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	payload, _ := json.Marshal(map[string]string{"type": "typing", "chat": target})
	return conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *Channel) Stop(ctx context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.connected = false
	return nil
}

var _ channels.Channel = (*Channel)(nil)
