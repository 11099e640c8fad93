// Package mqtt implements the dispatch gateway over an MQTT broker using
// Eclipse Paho. Calls are published as OCPP-J frames on the request topic of
// each charge point and replies are matched by unique id on the response
// topics.
package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/kilianp07/ocppfleet/core/dispatch"
	coremqtt "github.com/kilianp07/ocppfleet/core/mqtt"
	"github.com/kilianp07/ocppfleet/core/monitoring"
	"github.com/kilianp07/ocppfleet/core/ocpp"
	"github.com/kilianp07/ocppfleet/infra/logger"
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker        string          `json:"broker"`
	ClientID      string          `json:"client_id"`
	Username      string          `json:"username"`
	Password      string          `json:"password"`
	RequestTopic  string          `json:"request_topic"`
	ResponseTopic string          `json:"response_topic"`
	UseTLS        bool            `json:"use_tls"`
	ClientCert    string          `json:"client_cert"`
	ClientKey     string          `json:"client_key"`
	CABundle      string          `json:"ca_bundle"`
	AuthMethod    string          `json:"auth_method"`
	QoS           map[string]byte `json:"qos"`
	LWTTopic      string          `json:"lwt_topic"`
	LWTPayload    string          `json:"lwt_payload"`
	LWTQoS        byte            `json:"lwt_qos"`
	LWTRetain     bool            `json:"lwt_retain"`
	MaxRetries    int             `json:"max_retries"`
	BackoffMS     int             `json:"backoff_ms"`
	TLSConfig     *tls.Config     `json:"-"`
}

// Topics returns the configured topic layout with defaults applied.
func (c Config) Topics() coremqtt.Topics {
	return coremqtt.Topics{Request: c.RequestTopic, Response: c.ResponseTopic}.WithDefaults()
}

// Validate checks the settings needed to connect.
func (c Config) Validate() error {
	if c.Broker == "" {
		return fmt.Errorf("mqtt broker is required")
	}
	switch c.AuthMethod {
	case "", "username_password", "certificate", "both":
	default:
		return fmt.Errorf("unknown mqtt auth_method %q", c.AuthMethod)
	}
	return c.Topics().Validate()
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

type pendingCall struct {
	chargeBoxID string
	action      ocpp.Action
	handler     dispatch.Handler
	stop        func() bool
}

// PahoGateway sends OCPP calls through the broker and routes replies to the
// handler of the matching request.
type PahoGateway struct {
	cli    pahoClient
	topics coremqtt.Topics
	rules  *ocpp.Rules
	qos    map[string]byte

	mu      sync.Mutex
	pending map[string]*pendingCall

	logger     logger.Logger
	maxRetries int
	backoff    time.Duration
}

// NewPahoGateway connects to the broker and subscribes to the response topics.
// rules decodes the confirmation payload of each action.
func NewPahoGateway(cfg Config, rules *ocpp.Rules) (*PahoGateway, error) {
	if rules == nil {
		return nil, fmt.Errorf("mqtt gateway requires translation rules")
	}
	topics := cfg.Topics()
	if err := topics.Validate(); err != nil {
		return nil, err
	}
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	log := logger.New("mqtt_gateway")
	g := &PahoGateway{
		topics:     topics,
		rules:      rules,
		qos:        cfg.QoS,
		pending:    make(map[string]*pendingCall),
		logger:     log,
		maxRetries: cfg.MaxRetries,
		backoff:    time.Duration(cfg.BackoffMS) * time.Millisecond,
	}
	if g.maxRetries <= 0 {
		g.maxRetries = 3
	}
	if g.backoff <= 0 {
		g.backoff = 100 * time.Millisecond
	}

	opts.OnConnect = func(c paho.Client) {
		log.Infof("MQTT connected")
		filter := topics.ResponseFilter()
		if token := c.Subscribe(filter, g.qosFor("response"), g.onResponse); token.Wait() && token.Error() != nil {
			log.Errorf("subscribe %s: %v", filter, token.Error())
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	g.cli = c
	return g, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.AuthMethod == "username_password" || cfg.AuthMethod == "both" || cfg.AuthMethod == "" {
		if cfg.Username != "" {
			opts.SetUsername(cfg.Username)
		}
		if cfg.Password != "" {
			opts.SetPassword(cfg.Password)
		}
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.LWTQoS, cfg.LWTRetain)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caBytes) {
		return nil, fmt.Errorf("ca bundle %s holds no certificates", c.CABundle)
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

func (g *PahoGateway) qosFor(kind string) byte {
	if q, ok := g.qos[kind]; ok {
		return q
	}
	return 0
}

// Send publishes req as an OCPP-J call. The request stays tracked until a
// reply arrives or ctx is done.
func (g *PahoGateway) Send(ctx context.Context, req dispatch.Request, h dispatch.Handler) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !g.cli.IsConnected() {
		return coremqtt.ErrNotConnected
	}
	uniqueID := uuid.NewString()
	frame, err := EncodeCall(uniqueID, string(req.Action), req.Payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", req.Action, err)
	}

	// track before publishing so a fast reply cannot be missed
	call := &pendingCall{chargeBoxID: req.ChargeBoxID, action: req.Action, handler: h}
	g.mu.Lock()
	g.pending[uniqueID] = call
	call.stop = context.AfterFunc(ctx, func() { g.take(uniqueID) })
	g.mu.Unlock()

	topic := g.topics.RequestTopic(req.ChargeBoxID)
	if err := g.publish(ctx, topic, frame); err != nil {
		if c := g.take(uniqueID); c != nil {
			c.stop()
		}
		wrapped := fmt.Errorf("%w: %s to %s: %v", coremqtt.ErrPublishFailed, req.Action, req.ChargeBoxID, err)
		monitoring.CaptureException(wrapped, map[string]string{
			"module":        "mqtt",
			"action":        string(req.Action),
			"charge_box_id": req.ChargeBoxID,
		})
		return wrapped
	}
	g.logger.Debugw("call sent", map[string]any{
		"task_id":       string(req.TaskID),
		"action":        string(req.Action),
		"charge_box_id": req.ChargeBoxID,
		"unique_id":     uniqueID,
	})
	return nil
}

func (g *PahoGateway) publish(ctx context.Context, topic string, payload []byte) error {
	var publishErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		token := g.cli.Publish(topic, g.qosFor("request"), false, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			return nil
		}
		g.logger.Errorf("publish attempt %d to %s failed: %v", attempt+1, topic, publishErr)
		if attempt == g.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(g.backoff * time.Duration(1<<attempt)):
		}
	}
	return publishErr
}

// take removes and returns the pending call for uniqueID.
func (g *PahoGateway) take(uniqueID string) *pendingCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.pending[uniqueID]
	if !ok {
		return nil
	}
	delete(g.pending, uniqueID)
	return c
}

func (g *PahoGateway) onResponse(_ paho.Client, msg paho.Message) {
	f, err := DecodeFrame(msg.Payload())
	if err != nil {
		g.logger.Warnf("dropping message on %s: %v", msg.Topic(), err)
		return
	}
	if f.Type == MessageCall {
		g.logger.Debugf("ignoring call %s on response topic %s", f.Action, msg.Topic())
		return
	}
	g.mu.Lock()
	c, ok := g.pending[f.UniqueID]
	if ok {
		if id, match := g.topics.ChargeBoxID(msg.Topic()); !match || id != c.chargeBoxID {
			g.mu.Unlock()
			g.logger.Warnf("reply %s on %s does not belong to %s", f.UniqueID, msg.Topic(), c.chargeBoxID)
			return
		}
		delete(g.pending, f.UniqueID)
	}
	g.mu.Unlock()
	if !ok {
		g.logger.Debugf("no pending call for reply %s on %s", f.UniqueID, msg.Topic())
		return
	}
	c.stop()

	if f.Type == MessageCallError {
		c.handler.OnFault(f.ErrorCode, f.ErrorDescription)
		return
	}
	resp, err := g.rules.Decode(c.action, f.Payload)
	if err != nil {
		c.handler.OnTransportFailure(fmt.Errorf("malformed response: %w", err))
		return
	}
	c.handler.OnResult(resp)
}

// Pending returns the number of calls awaiting a reply.
func (g *PahoGateway) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}

// Disconnect gracefully closes the MQTT connection.
func (g *PahoGateway) Disconnect() {
	if g.cli != nil && g.cli.IsConnected() {
		g.cli.Disconnect(250)
	}
}
