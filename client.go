package mqttws

import (
	"context"
	"errors"
	"sync"
)

// ErrClientClosed is returned by client operations after Close.
var ErrClientClosed = errors.New("client closed")

// ErrConnectRefused is returned by Connect when the server answers with a
// non-zero CONNACK return code.
type ErrConnectRefused struct {
	Code ConnackCode
}

func (e *ErrConnectRefused) Error() string {
	return "connection refused: " + e.Code.String()
}

type clientConfig struct {
	clientID     string
	keepAlive    uint16
	cleanSession bool
	logger       Logger
}

// ClientOption configures a Client.
type ClientOption func(*clientConfig)

// WithClientID sets the client identifier sent in CONNECT. An empty
// identifier asks the server to assign one.
func WithClientID(id string) ClientOption {
	return func(c *clientConfig) {
		c.clientID = id
	}
}

// WithKeepAlive sets the CONNECT keep alive interval in seconds.
func WithKeepAlive(seconds uint16) ClientOption {
	return func(c *clientConfig) {
		c.keepAlive = seconds
	}
}

// WithCleanSession sets the CONNECT clean session flag.
func WithCleanSession(clean bool) ClientOption {
	return func(c *clientConfig) {
		c.cleanSession = clean
	}
}

// WithClientLogger sets the client logger.
func WithClientLogger(logger Logger) ClientOption {
	return func(c *clientConfig) {
		c.logger = logger
	}
}

// Client is a minimal MQTT 3.1.1 client. It speaks QoS 0 over any Transport
// and is synchronous: Connect, Subscribe and Unsubscribe block until the
// matching acknowledgement arrives. Packets received while waiting for an
// acknowledgement are queued and returned by later ReadPacket calls.
//
// Client methods must not be called concurrently, except Close.
type Client struct {
	transport Transport
	assembler *Assembler
	config    clientConfig

	nextPacketID uint16
	pending      []Packet

	closeOnce sync.Once
	closed    chan struct{}
}

// NewClient wraps an established transport in a client. The caller still has
// to call Connect before any other operation.
func NewClient(transport Transport, opts ...ClientOption) *Client {
	config := clientConfig{
		keepAlive:    60,
		cleanSession: true,
		logger:       NewNoOpLogger(),
	}

	for _, opt := range opts {
		opt(&config)
	}

	return &Client{
		transport: transport,
		assembler: NewAssembler(),
		config:    config,
		closed:    make(chan struct{}),
	}
}

// Connect sends CONNECT and waits for the CONNACK. A non-zero return code
// yields an *ErrConnectRefused; the server closes the connection afterwards
// for every code except the version mismatch.
func (c *Client) Connect(ctx context.Context) (*ConnackPacket, error) {
	connect := &ConnectPacket{
		ClientID:     c.config.clientID,
		KeepAlive:    c.config.keepAlive,
		CleanSession: c.config.cleanSession,
	}

	if err := c.send(connect); err != nil {
		return nil, err
	}

	pkt, err := c.await(ctx, PacketCONNACK)
	if err != nil {
		return nil, err
	}

	connack := pkt.(*ConnackPacket)
	if connack.ReturnCode != ConnackAccepted {
		return connack, &ErrConnectRefused{Code: connack.ReturnCode}
	}

	return connack, nil
}

// Subscribe sends SUBSCRIBE for the given topics at QoS 0 and waits for the
// SUBACK. Per-topic results are in the returned packet's ReturnCodes, in
// request order.
func (c *Client) Subscribe(ctx context.Context, topics ...string) (*SubackPacket, error) {
	subscribe := &SubscribePacket{
		PacketID: c.claimPacketID(),
	}

	for _, topic := range topics {
		subscribe.Subscriptions = append(subscribe.Subscriptions, Subscription{
			TopicFilter: topic,
		})
	}

	if err := c.send(subscribe); err != nil {
		return nil, err
	}

	for {
		pkt, err := c.await(ctx, PacketSUBACK)
		if err != nil {
			return nil, err
		}

		suback := pkt.(*SubackPacket)
		if suback.PacketID == subscribe.PacketID {
			return suback, nil
		}
	}
}

// Unsubscribe sends UNSUBSCRIBE for the given topics and waits for the
// UNSUBACK.
func (c *Client) Unsubscribe(ctx context.Context, topics ...string) error {
	unsubscribe := &UnsubscribePacket{
		PacketID:     c.claimPacketID(),
		TopicFilters: topics,
	}

	if err := c.send(unsubscribe); err != nil {
		return err
	}

	for {
		pkt, err := c.await(ctx, PacketUNSUBACK)
		if err != nil {
			return err
		}

		if pkt.(*UnsubackPacket).PacketID == unsubscribe.PacketID {
			return nil
		}
	}
}

// Publish sends a QoS 0 PUBLISH. There is no acknowledgement to wait for.
func (c *Client) Publish(_ context.Context, topic string, payload []byte) error {
	return c.send(&PublishPacket{
		Topic:   topic,
		Payload: payload,
	})
}

// Ping sends PINGREQ and waits for the PINGRESP.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.send(&PingreqPacket{}); err != nil {
		return err
	}

	_, err := c.await(ctx, PacketPINGRESP)

	return err
}

// ReadPacket returns the next packet from the server, typically a PUBLISH
// for a subscribed topic. It blocks until a full packet arrives.
func (c *Client) ReadPacket(ctx context.Context) (Packet, error) {
	if len(c.pending) > 0 {
		pkt := c.pending[0]
		c.pending = c.pending[1:]

		return pkt, nil
	}

	return c.readPacket(ctx)
}

// Disconnect sends DISCONNECT and closes the transport.
func (c *Client) Disconnect() error {
	err := c.send(&DisconnectPacket{})

	if closeErr := c.Close(); err == nil {
		err = closeErr
	}

	return err
}

// Close closes the transport without sending DISCONNECT.
func (c *Client) Close() error {
	var err error

	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.transport.Close()
	})

	return err
}

func (c *Client) send(pkt Packet) error {
	select {
	case <-c.closed:
		return ErrClientClosed
	default:
	}

	raw, err := EncodePacket(pkt)
	if err != nil {
		return err
	}

	return c.transport.WriteFrame(raw)
}

// await reads packets until one of the wanted type arrives, queueing the
// rest for ReadPacket.
func (c *Client) await(ctx context.Context, want PacketType) (Packet, error) {
	for {
		pkt, err := c.readPacket(ctx)
		if err != nil {
			return nil, err
		}

		if pkt.Type() == want {
			return pkt, nil
		}

		c.pending = append(c.pending, pkt)
	}
}

func (c *Client) readPacket(ctx context.Context) (Packet, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		select {
		case <-c.closed:
			return nil, ErrClientClosed
		default:
		}

		frame, err := c.transport.ReadFrame()
		if err != nil {
			return nil, err
		}

		packets, err := c.assembler.Feed(frame)
		if err != nil {
			return nil, err
		}

		if len(packets) == 0 {
			continue
		}

		first, err := DecodePacket(packets[0])
		if err != nil {
			return nil, err
		}

		for _, raw := range packets[1:] {
			pkt, err := DecodePacket(raw)
			if err != nil {
				return nil, err
			}

			c.pending = append(c.pending, pkt)
		}

		return first, nil
	}
}

func (c *Client) claimPacketID() uint16 {
	c.nextPacketID++
	if c.nextPacketID == 0 {
		c.nextPacketID = 1
	}

	return c.nextPacketID
}
