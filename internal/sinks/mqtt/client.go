// Package mqtt mirrors session events onto an MQTT broker.
package mqtt

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"tutorvoice/internal/logger"
)

var ErrNotConnected = errors.New("mqtt client not connected")

var log = logger.With("mqtt")

// ClientConfig selects the broker and credentials.
type ClientConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	// RetryInterval is the pause between initial connection attempts.
	RetryInterval time.Duration
}

// Client wraps a paho client that connects in the background and
// reconnects on its own once the first connection succeeds.
type Client struct {
	client    paho.Client
	connected atomic.Bool
	stop      chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

func NewClient(cfg ClientConfig) *Client {
	broker := strings.TrimSpace(cfg.Broker)
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 5 * time.Second
	}

	c := &Client{stop: make(chan struct{})}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetCleanSession(true).
		SetMaxReconnectInterval(10 * time.Second)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		if cfg.Password != "" {
			opts.SetPassword(cfg.Password)
		}
	}
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		c.connected.Store(false)
		log.Warn("connection lost", "err", err)
	})
	opts.SetOnConnectHandler(func(_ paho.Client) {
		c.connected.Store(true)
		log.Info("connected to broker", "broker", broker)
	})

	c.client = paho.NewClient(opts)

	c.wg.Add(1)
	go c.connectLoop(broker, cfg.RetryInterval)
	return c
}

func (c *Client) connectLoop(broker string, retry time.Duration) {
	defer c.wg.Done()
	for {
		log.Debug("attempting connection", "broker", broker)
		token := c.client.Connect()
		token.Wait()
		if token.Error() == nil {
			return
		}
		log.Warn("failed to connect to broker, retrying", "broker", broker, "err", token.Error())
		select {
		case <-c.stop:
			return
		case <-time.After(retry):
		}
	}
}

// IsConnected reports whether the broker connection is open.
func (c *Client) IsConnected() bool {
	return c.connected.Load() && c.client.IsConnectionOpen()
}

// Publish sends payload and waits for the broker acknowledgement.
func (c *Client) Publish(topic string, qos byte, retained bool, payload []byte) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	token := c.client.Publish(topic, qos, retained, payload)
	if token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

// Close stops the connect loop and disconnects, allowing quiesce for
// in-flight messages.
func (c *Client) Close(quiesce time.Duration) {
	c.stopOnce.Do(func() {
		close(c.stop)
		c.wg.Wait()
		if c.client.IsConnected() {
			c.client.Disconnect(uint(quiesce / time.Millisecond))
		}
		c.connected.Store(false)
	})
}
