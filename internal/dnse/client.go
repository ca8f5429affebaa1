package dnse

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config holds DNSE Lightspeed connection settings.
type Config struct {
	Username string `json:"username"`
	Password string `json:"password"`
	// MQTTURL is the MQTT-over-WebSocket endpoint, e.g.
	// wss://datafeed-lts-krx.dnse.com.vn/wss
	MQTTURL string `json:"mqtt_url"`
	// RescalePrices enables the divided-by-1000 heuristic for this feed.
	RescalePrices  bool          `json:"rescale_prices"`
	KeepAlive      time.Duration `json:"keep_alive"`
	ConnectTimeout time.Duration `json:"connect_timeout"`
}

// Client is the live DNSE Lightspeed adapter. It subscribes to OHLC topics
// over MQTT/WebSocket and forwards closed bars to the handler. Parse
// failures on individual messages are logged and skipped; disconnects are
// reported through the status handler and never fatal.
type Client struct {
	cfg      Config
	onBar    BarHandler
	onStatus StatusHandler
	logger   zerolog.Logger

	mu        sync.Mutex
	client    mqtt.Client
	symbols   map[string]struct{}
	timeframe string
	connected bool
}

// NewClient creates a DNSE adapter. Handlers may be nil.
func NewClient(cfg Config, onBar BarHandler, onStatus StatusHandler, logger zerolog.Logger) *Client {
	if cfg.KeepAlive == 0 {
		cfg.KeepAlive = 60 * time.Second
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 15 * time.Second
	}
	return &Client{
		cfg:      cfg,
		onBar:    onBar,
		onStatus: onStatus,
		logger:   logger.With().Str("component", "dnse").Logger(),
		symbols:  make(map[string]struct{}),
	}
}

// Connect dials the broker and subscribes to the given symbols.
func (c *Client) Connect(ctx context.Context, symbols []string, timeframe string) error {
	c.mu.Lock()
	c.timeframe = timeframe
	for _, s := range symbols {
		c.symbols[s] = struct{}{}
	}
	c.mu.Unlock()

	opts := mqtt.NewClientOptions().
		AddBroker(c.cfg.MQTTURL).
		SetClientID("dnse-trading-bot-" + uuid.New().String()[:8]).
		SetUsername(c.cfg.Username).
		SetPassword(c.cfg.Password).
		SetTLSConfig(&tls.Config{InsecureSkipVerify: true}).
		SetKeepAlive(c.cfg.KeepAlive).
		SetAutoReconnect(true).
		SetConnectTimeout(c.cfg.ConnectTimeout).
		SetOnConnectHandler(c.handleConnect).
		SetConnectionLostHandler(c.handleConnectionLost)

	client := mqtt.NewClient(opts)

	c.mu.Lock()
	c.client = client
	c.mu.Unlock()

	token := client.Connect()
	if !token.WaitTimeout(c.cfg.ConnectTimeout) {
		return fmt.Errorf("connecting to %s: timeout", c.cfg.MQTTURL)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connecting to %s: %w", c.cfg.MQTTURL, err)
	}
	return nil
}

func (c *Client) handleConnect(client mqtt.Client) {
	c.mu.Lock()
	c.connected = true
	symbols := make([]string, 0, len(c.symbols))
	for s := range c.symbols {
		symbols = append(symbols, s)
	}
	timeframe := c.timeframe
	c.mu.Unlock()

	c.logger.Info().Str("url", c.cfg.MQTTURL).Msg("Connected to DNSE Lightspeed")

	for _, s := range symbols {
		topic := ohlcTopic(timeframe, s)
		client.Subscribe(topic, 0, c.handleMessage)
		c.logger.Info().Str("topic", topic).Msg("Subscribed")
	}

	if c.onStatus != nil {
		c.onStatus(true)
	}
}

func (c *Client) handleConnectionLost(_ mqtt.Client, err error) {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()

	c.logger.Warn().Err(err).Msg("Lost DNSE connection")
	if c.onStatus != nil {
		c.onStatus(false)
	}
}

func (c *Client) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	timeframe, symbol, ok := parseTopic(msg.Topic())
	if !ok {
		c.logger.Warn().Str("topic", msg.Topic()).Msg("Unrecognized topic")
		return
	}

	bar, err := ParseBar(symbol, timeframe, msg.Payload(), c.cfg.RescalePrices)
	if err != nil {
		c.logger.Warn().Err(err).Str("symbol", symbol).Msg("Skipping unparseable OHLC message")
		return
	}

	if c.onBar != nil {
		c.onBar(bar)
	}
}

// Subscribe adds a symbol to the live subscription set.
func (c *Client) Subscribe(symbol string) error {
	c.mu.Lock()
	if _, ok := c.symbols[symbol]; ok {
		c.mu.Unlock()
		return nil
	}
	c.symbols[symbol] = struct{}{}
	client, connected, timeframe := c.client, c.connected, c.timeframe
	c.mu.Unlock()

	if connected && client != nil {
		topic := ohlcTopic(timeframe, symbol)
		if token := client.Subscribe(topic, 0, c.handleMessage); token.Wait() && token.Error() != nil {
			return fmt.Errorf("subscribing %s: %w", symbol, token.Error())
		}
		c.logger.Info().Str("topic", topic).Msg("Subscribed")
	}
	return nil
}

// Unsubscribe removes a symbol from the live subscription set.
func (c *Client) Unsubscribe(symbol string) error {
	c.mu.Lock()
	if _, ok := c.symbols[symbol]; !ok {
		c.mu.Unlock()
		return nil
	}
	delete(c.symbols, symbol)
	client, connected, timeframe := c.client, c.connected, c.timeframe
	c.mu.Unlock()

	if connected && client != nil {
		topic := ohlcTopic(timeframe, symbol)
		if token := client.Unsubscribe(topic); token.Wait() && token.Error() != nil {
			return fmt.Errorf("unsubscribing %s: %w", symbol, token.Error())
		}
		c.logger.Info().Str("topic", topic).Msg("Unsubscribed")
	}
	return nil
}

// IsConnected reports the transport state.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Close disconnects from the broker.
func (c *Client) Close() {
	c.mu.Lock()
	client := c.client
	c.client = nil
	c.connected = false
	c.mu.Unlock()

	if client != nil {
		client.Disconnect(250)
		c.logger.Info().Msg("Disconnected from DNSE")
	}
}
