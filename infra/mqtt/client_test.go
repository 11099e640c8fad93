package mqtt

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"os"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/ocppfleet/core/dispatch"
	coremqtt "github.com/kilianp07/ocppfleet/core/mqtt"
	"github.com/kilianp07/ocppfleet/core/monitoring"
	"github.com/kilianp07/ocppfleet/core/ocpp"
)

// helper to generate self-signed cert
func generateCert(t *testing.T) (certFile, keyFile, caFile string) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("gen key: %v", err)
	}
	tmpl := x509.Certificate{SerialNumber: big.NewInt(1), Subject: pkix.Name{CommonName: "test"}, NotBefore: time.Now(), NotAfter: time.Now().Add(time.Hour)}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	if err != nil {
		t.Fatalf("create cert: %v", err)
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})

	dir := t.TempDir()
	certFile = dir + "/cert.pem"
	keyFile = dir + "/key.pem"
	caFile = dir + "/ca.pem"
	for path, data := range map[string][]byte{certFile: certPEM, keyFile: keyPEM, caFile: certPEM} {
		if err := os.WriteFile(path, data, 0o600); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	return
}

func TestLoadTLSConfig(t *testing.T) {
	cert, key, ca := generateCert(t)
	cfg := Config{UseTLS: true, ClientCert: cert, ClientKey: key, CABundle: ca}
	tlsCfg, err := cfg.LoadTLSConfig()
	require.NoError(t, err)
	assert.NotEmpty(t, tlsCfg.Certificates)
	assert.NotNil(t, tlsCfg.RootCAs)

	_, err = Config{UseTLS: true}.LoadTLSConfig()
	assert.Error(t, err)
}

func TestNewClientOptionsAuth(t *testing.T) {
	opts, err := NewClientOptions(Config{Broker: "tcp://localhost:1883", ClientID: "id", Username: "u", Password: "p"})
	require.NoError(t, err)
	assert.Equal(t, "u", opts.Username)
	assert.Equal(t, "p", opts.Password)

	opts, err = NewClientOptions(Config{Broker: "tcp://localhost:1883", AuthMethod: "certificate", Username: "u"})
	require.NoError(t, err)
	assert.Empty(t, opts.Username)
}

func TestConfigValidate(t *testing.T) {
	assert.Error(t, Config{}.Validate())
	assert.Error(t, Config{Broker: "tcp://b:1883", AuthMethod: "kerberos"}.Validate())
	assert.Error(t, Config{Broker: "tcp://b:1883", RequestTopic: "ocpp/request"}.Validate())
	assert.NoError(t, Config{Broker: "tcp://b:1883"}.Validate())
	assert.Equal(t, coremqtt.DefaultTopics(), Config{}.Topics())
}

func TestLWTConfigured(t *testing.T) {
	mc := useMockClient(t)
	g, err := NewPahoGateway(Config{Broker: "tcp://localhost:1883", ClientID: "id", LWTTopic: "lwt", LWTPayload: "bye", LWTQoS: 1}, ocpp.DefaultRules())
	require.NoError(t, err)
	assert.True(t, mc.opts.WillEnabled)
	assert.Equal(t, "lwt", mc.opts.WillTopic)
	assert.Equal(t, "bye", string(mc.opts.WillPayload))
	g.Disconnect()
	assert.Empty(t, mc.publishedTopics())
}

func TestSubscribesResponseFilterWithQoS(t *testing.T) {
	mc := useMockClient(t)
	_, err := NewPahoGateway(Config{Broker: "tcp://localhost:1883", QoS: map[string]byte{"request": 2, "response": 1}}, ocpp.DefaultRules())
	require.NoError(t, err)
	require.Len(t, mc.subscribed, 1)
	assert.Equal(t, "ocpp/+/response", mc.subscribed[0].topic)
	assert.Equal(t, byte(1), mc.subscribed[0].qos)
}

func TestSend_RoutesReplies(t *testing.T) {
	mc := useMockClient(t)
	g, err := NewPahoGateway(Config{Broker: "tcp://localhost:1883", QoS: map[string]byte{"request": 2}}, ocpp.DefaultRules())
	require.NoError(t, err)
	ctx := context.Background()

	ok := &recordingHandler{}
	require.NoError(t, g.Send(ctx, dispatch.Request{TaskID: "t1", ChargeBoxID: "CP1", Action: ocpp.ActionClearCache}, ok))
	fault := &recordingHandler{}
	require.NoError(t, g.Send(ctx, dispatch.Request{TaskID: "t1", ChargeBoxID: "CP2", Action: ocpp.ActionClearCache}, fault))
	bad := &recordingHandler{}
	require.NoError(t, g.Send(ctx, dispatch.Request{TaskID: "t1", ChargeBoxID: "CP3", Action: ocpp.ActionGetLocalListVersion}, bad))
	assert.Equal(t, 3, g.Pending())

	calls := mc.publishedFrames(t)
	require.Len(t, calls, 3)
	assert.Equal(t, "ocpp/CP1/request", calls[0].topic)
	assert.Equal(t, byte(2), calls[0].qos)
	assert.Equal(t, "ClearCache", calls[0].frame.Action)

	result, _ := EncodeCallResult(calls[0].frame.UniqueID, []byte(`{"status":"Accepted"}`))
	mc.deliver("ocpp/CP1/response", result)
	callErr, _ := EncodeCallError(calls[1].frame.UniqueID, "NotSupported", "nope")
	mc.deliver("ocpp/CP2/response", callErr)
	malformed, _ := EncodeCallResult(calls[2].frame.UniqueID, []byte(`{"listVersion":"x"}`))
	mc.deliver("ocpp/CP3/response", malformed)

	assert.Equal(t, ocpp.StatusResponse{Status: "Accepted"}, ok.result)
	assert.Equal(t, "NotSupported", fault.code)
	assert.ErrorIs(t, bad.err, ocpp.ErrUnexpectedResponse)
	assert.Zero(t, g.Pending())

	// duplicate reply is ignored
	mc.deliver("ocpp/CP1/response", result)
	assert.Equal(t, 1, ok.count())
}

func TestSend_ReplyFromWrongChargePointIgnored(t *testing.T) {
	mc := useMockClient(t)
	g, err := NewPahoGateway(Config{Broker: "tcp://localhost:1883"}, ocpp.DefaultRules())
	require.NoError(t, err)
	h := &recordingHandler{}
	require.NoError(t, g.Send(context.Background(), dispatch.Request{ChargeBoxID: "CP1", Action: ocpp.ActionReset}, h))
	call := mc.publishedFrames(t)[0]

	result, _ := EncodeCallResult(call.frame.UniqueID, []byte(`{"status":"Accepted"}`))
	mc.deliver("ocpp/CP9/response", result)
	mc.deliver("ocpp/CP1/response", []byte(`garbage`))
	assert.Zero(t, h.count())
	assert.Equal(t, 1, g.Pending())

	mc.deliver("ocpp/CP1/response", result)
	assert.Equal(t, 1, h.count())
}

func TestSend_ContextDoneDropsPending(t *testing.T) {
	mc := useMockClient(t)
	g, err := NewPahoGateway(Config{Broker: "tcp://localhost:1883"}, ocpp.DefaultRules())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	h := &recordingHandler{}
	require.NoError(t, g.Send(ctx, dispatch.Request{ChargeBoxID: "CP1", Action: ocpp.ActionReset}, h))
	require.Equal(t, 1, g.Pending())
	cancel()
	assert.Eventually(t, func() bool { return g.Pending() == 0 }, time.Second, 5*time.Millisecond)

	call := mc.publishedFrames(t)[0]
	late, _ := EncodeCallResult(call.frame.UniqueID, []byte(`{"status":"Accepted"}`))
	mc.deliver("ocpp/CP1/response", late)
	assert.Zero(t, h.count())

	assert.ErrorIs(t, g.Send(ctx, dispatch.Request{ChargeBoxID: "CP1", Action: ocpp.ActionReset}, h), context.Canceled)
}

func TestRetryLogic(t *testing.T) {
	mc := useMockClient(t)
	mc.publishErrs = []error{errors.New("net fail"), nil}
	g, err := NewPahoGateway(Config{Broker: "tcp://localhost:1883", MaxRetries: 1, BackoffMS: 1}, ocpp.DefaultRules())
	require.NoError(t, err)
	require.NoError(t, g.Send(context.Background(), dispatch.Request{ChargeBoxID: "CP1", Action: ocpp.ActionReset}, &recordingHandler{}))
	assert.Len(t, mc.publishedTopics(), 2)
}

func TestPublishFailureCaptured(t *testing.T) {
	mc := useMockClient(t)
	mc.publishErrs = []error{errors.New("fail"), errors.New("fail")}
	mon := &captureMonitor{}
	monitoring.Init(mon)
	t.Cleanup(func() { monitoring.Init(monitoring.NopMonitor{}) })

	g, err := NewPahoGateway(Config{Broker: "tcp://localhost:1883", MaxRetries: 1, BackoffMS: 1}, ocpp.DefaultRules())
	require.NoError(t, err)
	err = g.Send(context.Background(), dispatch.Request{ChargeBoxID: "CP1", Action: ocpp.ActionReset}, &recordingHandler{})
	assert.ErrorIs(t, err, coremqtt.ErrPublishFailed)
	assert.Zero(t, g.Pending())
	require.Len(t, mon.tags, 1)
	assert.Equal(t, "mqtt", mon.tags[0]["module"])
	assert.Equal(t, "CP1", mon.tags[0]["charge_box_id"])
}

func TestSend_NotConnected(t *testing.T) {
	mc := useMockClient(t)
	g, err := NewPahoGateway(Config{Broker: "tcp://localhost:1883"}, ocpp.DefaultRules())
	require.NoError(t, err)
	mc.disconnected = true
	err = g.Send(context.Background(), dispatch.Request{ChargeBoxID: "CP1", Action: ocpp.ActionReset}, &recordingHandler{})
	assert.ErrorIs(t, err, coremqtt.ErrNotConnected)
}

func useMockClient(t *testing.T) *mockClient {
	t.Helper()
	mc := &mockClient{}
	newMQTTClient = func(o *paho.ClientOptions) pahoClient { mc.opts = o; return mc }
	t.Cleanup(func() { newMQTTClient = func(opts *paho.ClientOptions) pahoClient { return paho.NewClient(opts) } })
	return mc
}

type recordingHandler struct {
	mu     sync.Mutex
	calls  int
	result any
	code   string
	err    error
}

func (h *recordingHandler) OnResult(resp any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	h.result = resp
}

func (h *recordingHandler) OnFault(code, _ string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	h.code = code
}

func (h *recordingHandler) OnTransportFailure(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	h.err = err
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

type captureMonitor struct {
	mu   sync.Mutex
	tags []map[string]string
}

func (c *captureMonitor) CaptureException(_ error, tags map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tags = append(c.tags, tags)
}
func (c *captureMonitor) CapturePanic(any, map[string]string) {}
func (c *captureMonitor) Flush(time.Duration)                 {}

type published struct {
	topic   string
	qos     byte
	payload []byte
}

type publishedFrame struct {
	topic string
	qos   byte
	frame Frame
}

// mockClient implements pahoClient for tests
type mockClient struct {
	mu         sync.Mutex
	opts       *paho.ClientOptions
	subscribed []struct {
		topic string
		qos   byte
	}
	handler      paho.MessageHandler
	published    []published
	publishErrs  []error
	disconnected bool
}

func (m *mockClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.disconnected
}
func (m *mockClient) Connect() paho.Token {
	if m.opts != nil && m.opts.OnConnect != nil {
		m.opts.OnConnect(m)
	}
	return &dummyToken{}
}
func (m *mockClient) Disconnect(uint) {}
func (m *mockClient) Publish(topic string, qos byte, _ bool, payload interface{}) paho.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, _ := payload.([]byte)
	m.published = append(m.published, published{topic: topic, qos: qos, payload: b})
	if len(m.publishErrs) > 0 {
		err := m.publishErrs[0]
		m.publishErrs = m.publishErrs[1:]
		return &dummyToken{err: err}
	}
	return &dummyToken{}
}
func (m *mockClient) Subscribe(topic string, qos byte, h paho.MessageHandler) paho.Token {
	m.subscribed = append(m.subscribed, struct {
		topic string
		qos   byte
	}{topic, qos})
	m.handler = h
	return &dummyToken{}
}
func (m *mockClient) SubscribeMultiple(map[string]byte, paho.MessageHandler) paho.Token {
	return &dummyToken{}
}
func (m *mockClient) Unsubscribe(...string) paho.Token        { return &dummyToken{} }
func (m *mockClient) AddRoute(string, paho.MessageHandler)    {}
func (m *mockClient) OptionsReader() paho.ClientOptionsReader { return paho.ClientOptionsReader{} }
func (m *mockClient) IsConnectionOpen() bool                  { return true }

func (m *mockClient) deliver(topic string, payload []byte) {
	m.handler(m, mockMessage{topic: topic, p: payload})
}

func (m *mockClient) publishedTopics() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.published))
	for _, p := range m.published {
		out = append(out, p.topic)
	}
	return out
}

func (m *mockClient) publishedFrames(t *testing.T) []publishedFrame {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]publishedFrame, 0, len(m.published))
	for _, p := range m.published {
		f, err := DecodeFrame(p.payload)
		require.NoError(t, err)
		out = append(out, publishedFrame{topic: p.topic, qos: p.qos, frame: f})
	}
	return out
}

type dummyToken struct{ err error }

func (d dummyToken) Wait() bool                     { return true }
func (d dummyToken) WaitTimeout(time.Duration) bool { return true }
func (d dummyToken) Done() <-chan struct{}          { ch := make(chan struct{}); close(ch); return ch }
func (d dummyToken) Error() error                   { return d.err }

type mockMessage struct {
	topic string
	p     []byte
}

func (m mockMessage) Duplicate() bool   { return false }
func (m mockMessage) Qos() byte         { return 0 }
func (m mockMessage) Retained() bool    { return false }
func (m mockMessage) Topic() string     { return m.topic }
func (m mockMessage) MessageID() uint16 { return 0 }
func (m mockMessage) Payload() []byte   { return m.p }
func (m mockMessage) Ack()              {}
