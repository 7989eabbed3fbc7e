package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/paho"

	"sensorpulse/internal/types"
)

// MQTTConfig configures an MQTTSource.
type MQTTConfig struct {
	// BrokerURL is tcp://host:port.
	BrokerURL    string
	Topic        string
	ClientID     string
	QoS          byte
	Username     string
	Password     types.SecretString
	KeepAlive    time.Duration
	MinReconnect time.Duration
	MaxReconnect time.Duration
	Logger       *slog.Logger
}

// Dialer opens the network connection to the broker.
type Dialer func(ctx context.Context, address string) (net.Conn, error)

// MQTTSource subscribes to a topic and feeds every message into a Target.
// Each message carries one raw event or an array of raw events.
type MQTTSource struct {
	cfg    MQTTConfig
	addr   string
	target Target
	dial   Dialer
	logger *slog.Logger
}

// NewMQTTSource validates cfg and creates a source. A nil dial uses a plain
// TCP dialer.
func NewMQTTSource(cfg MQTTConfig, target Target, dial Dialer) (*MQTTSource, error) {
	if target == nil {
		return nil, types.NewAppError(types.ErrCodeConfigInvalid, "mqtt source requires a target", nil)
	}
	if cfg.Topic == "" {
		return nil, types.NewAppError(types.ErrCodeConfigInvalid, "mqtt topic is required", nil)
	}
	if cfg.QoS > 1 {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeConfigInvalid, "unsupported mqtt qos", nil,
			map[string]any{"qos": cfg.QoS})
	}
	u, err := url.Parse(cfg.BrokerURL)
	if err != nil || u.Host == "" {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeConfigInvalid, "invalid mqtt broker url", err,
			map[string]any{"broker_url": cfg.BrokerURL})
	}
	if u.Scheme != "tcp" && u.Scheme != "mqtt" {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeConfigInvalid, "unsupported mqtt scheme", nil,
			map[string]any{"scheme": u.Scheme})
	}
	addr := u.Host
	if u.Port() == "" {
		addr = net.JoinHostPort(u.Hostname(), "1883")
	}

	if cfg.ClientID == "" {
		cfg.ClientID = "sensorpulse"
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = 30 * time.Second
	}
	if cfg.MinReconnect <= 0 {
		cfg.MinReconnect = 500 * time.Millisecond
	}
	if cfg.MaxReconnect < cfg.MinReconnect {
		cfg.MaxReconnect = 30 * time.Second
	}
	if dial == nil {
		dial = func(ctx context.Context, address string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "tcp", address)
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &MQTTSource{cfg: cfg, addr: addr, target: target, dial: dial, logger: logger}, nil
}

// Run connects, subscribes and consumes until ctx is cancelled, reconnecting
// with exponential backoff whenever the session drops. It returns ctx.Err().
func (m *MQTTSource) Run(ctx context.Context) error {
	backoff := m.cfg.MinReconnect
	for {
		err := m.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			backoff = m.cfg.MinReconnect
		}
		m.logger.Warn("mqtt session ended, reconnecting",
			"broker", m.addr, "error", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, m.cfg.MaxReconnect)
	}
}

// session runs one connection until it drops. A nil return means the
// session was established and later lost.
func (m *MQTTSource) session(ctx context.Context) error {
	conn, err := m.dial(ctx, m.addr)
	if err != nil {
		return fmt.Errorf("dial mqtt broker: %w", err)
	}

	lost := make(chan error, 1)
	signal := func(err error) {
		select {
		case lost <- err:
		default:
		}
	}

	client := paho.NewClient(paho.ClientConfig{
		ClientID: m.cfg.ClientID,
		Conn:     conn,
		OnPublishReceived: []func(paho.PublishReceived) (bool, error){
			func(pr paho.PublishReceived) (bool, error) {
				m.HandleMessage(ctx, pr.Packet.Topic, pr.Packet.Payload)
				return true, nil
			},
		},
		OnClientError: func(err error) { signal(err) },
		OnServerDisconnect: func(d *paho.Disconnect) {
			signal(fmt.Errorf("server disconnect, reason code %d", d.ReasonCode))
		},
	})

	connect := &paho.Connect{
		ClientID:   m.cfg.ClientID,
		CleanStart: true,
		KeepAlive:  uint16(m.cfg.KeepAlive.Seconds()),
	}
	if m.cfg.Username != "" {
		connect.Username = m.cfg.Username
		connect.UsernameFlag = true
	}
	if m.cfg.Password.IsSet() {
		connect.Password = []byte(m.cfg.Password.Unmask())
		connect.PasswordFlag = true
	}

	ack, err := client.Connect(ctx, connect)
	if err != nil {
		_ = conn.Close()
		if ack != nil {
			return fmt.Errorf("mqtt connect refused, reason code %d: %w", ack.ReasonCode, err)
		}
		return fmt.Errorf("mqtt connect: %w", err)
	}

	if _, err := client.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: m.cfg.Topic, QoS: m.cfg.QoS}},
	}); err != nil {
		_ = client.Disconnect(&paho.Disconnect{ReasonCode: 0})
		return fmt.Errorf("mqtt subscribe %q: %w", m.cfg.Topic, err)
	}
	m.logger.Info("mqtt source subscribed", "broker", m.addr, "topic", m.cfg.Topic)

	select {
	case <-ctx.Done():
		_ = client.Disconnect(&paho.Disconnect{ReasonCode: 0})
		return nil
	case err := <-lost:
		_ = conn.Close()
		if err == nil {
			err = errors.New("connection lost")
		}
		m.logger.Warn("mqtt connection lost", "error", err)
		return nil
	}
}

// HandleMessage decodes one MQTT payload and forwards it to the target.
// Malformed payloads are logged and dropped; they never end the session.
func (m *MQTTSource) HandleMessage(ctx context.Context, topic string, payload []byte) BatchResult {
	events, err := DecodeEvents(payload)
	if err != nil {
		m.logger.Warn("dropping malformed mqtt payload", "topic", topic, "error", err)
		return BatchResult{Rejected: []Rejection{{Index: 0, Err: err}}}
	}
	res := m.target.IngestEvents(ctx, events)
	if len(res.Rejected) > 0 {
		m.logger.Debug("mqtt batch partially rejected",
			"topic", topic, "accepted", res.Accepted, "rejected", len(res.Rejected))
	}
	return res
}
