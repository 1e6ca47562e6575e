// Package mqtt connects the runtime to an MQTT broker: trace events go out,
// signals for agent blackboards come in.
package mqtt

import (
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

const (
	DefaultBrokerURL = "tcp://localhost:1883"
	opTimeout        = 10 * time.Second
)

// Options configures NewClient.
type Options struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
	// OnConnect runs after every successful (re)connect, e.g. to resubscribe.
	OnConnect func()
}

// Client wraps the Paho MQTT client.
type Client struct {
	client paho.Client
	url    string
	mu     sync.Mutex
}

// NewClient creates a new MQTT client but does not connect.
func NewClient(o Options) *Client {
	url := o.BrokerURL
	if url == "" {
		url = DefaultBrokerURL
	}
	opts := paho.NewClientOptions().
		AddBroker(url).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetKeepAlive(30 * time.Second).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			slog.Warn("mqtt connection lost", "broker", url, "error", err)
		})
	if o.Username != "" {
		opts.SetUsername(o.Username).SetPassword(o.Password)
	}
	if o.OnConnect != nil {
		opts.SetOnConnectHandler(func(paho.Client) { o.OnConnect() })
	}

	return &Client{
		client: paho.NewClient(opts),
		url:    url,
	}
}

// BrokerURL returns the broker the client was configured with.
func (c *Client) BrokerURL() string { return c.url }

// Connect dials the broker, giving up after a bounded wait. With connect
// retry enabled the underlying client keeps trying in the background.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return await(c.client.Connect(), "connect", "")
}

// Subscribe registers handler for topic at QoS 1.
func (c *Client) Subscribe(topic string, handler paho.MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return await(c.client.Subscribe(topic, 1, handler), "subscribe", topic)
}

// Publish sends payload at QoS 0 without retaining it.
func (c *Client) Publish(topic string, payload []byte) error {
	return await(c.client.Publish(topic, 0, false, payload), "publish", topic)
}

func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.client.Disconnect(1000)
}

func (c *Client) IsConnected() bool { return c.client.IsConnected() }

func await(token paho.Token, op, topic string) error {
	if !token.WaitTimeout(opTimeout) {
		return &TimeoutError{Op: op, Topic: topic}
	}
	return token.Error()
}

// TimeoutError reports a broker operation that was not acknowledged in time.
type TimeoutError struct {
	Op    string
	Topic string
}

func (e *TimeoutError) Error() string {
	if e.Topic == "" {
		return "mqtt " + e.Op + " timeout"
	}
	return "mqtt " + e.Op + " timeout: " + e.Topic
}
