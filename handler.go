package mqttws

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// HandlerState is the protocol handler's connection state.
type HandlerState int

const (
	// StateAwaitingConnect is the initial state before a valid CONNECT.
	StateAwaitingConnect HandlerState = iota
	// StateConnected allows the full packet repertoire.
	StateConnected
	// StateClosed means the connection is finished; no packet is legal.
	StateClosed
)

// String returns the string representation of the state.
func (s HandlerState) String() string {
	switch s {
	case StateAwaitingConnect:
		return "awaiting-connect"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ErrCloseConnection signals the caller to close the transport. It is the
// normal outcome of DISCONNECT as well as the fatal outcome of a protocol
// violation; either way no further packet may be handled.
var ErrCloseConnection = errors.New("close connection")

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithHandlerLogger sets the handler logger.
func WithHandlerLogger(logger Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithHandlerMetrics sets the handler metrics collector.
func WithHandlerMetrics(metrics Metrics) HandlerOption {
	return func(h *Handler) {
		h.metrics = metrics
	}
}

// Handler is the per-connection protocol state machine. It decodes complete
// packets, drives the backend, and writes responses through the connection's
// sender. One Handler belongs to exactly one connection task.
type Handler struct {
	backend Backend
	sender  Sender
	connID  ConnID
	logger  Logger
	metrics Metrics
	state   HandlerState
}

// NewHandler creates a handler for one attached connection.
func NewHandler(backend Backend, sender Sender, connID ConnID, opts ...HandlerOption) *Handler {
	h := &Handler{
		backend: backend,
		sender:  sender,
		connID:  connID,
		logger:  NewNoOpLogger(),
		metrics: &NoOpMetrics{},
		state:   StateAwaitingConnect,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// State returns the current connection state.
func (h *Handler) State() HandlerState {
	return h.state
}

// HandlePacket processes one complete raw control packet.
//
// Decode errors and protocol violations are fatal for the connection and are
// returned as-is (no response packet is sent, except for the distinguished
// unacceptable-protocol-version CONNECT rejection, which gets its CONNACK).
// ErrCloseConnection means the transport must be closed; it is not a decode
// failure.
func (h *Handler) HandlePacket(ctx context.Context, raw []byte) error {
	if h.state == StateClosed {
		return ErrCloseConnection
	}

	packet, err := DecodePacket(raw)
	if err != nil {
		var versionErr *VersionError
		if errors.As(err, &versionErr) && h.state == StateAwaitingConnect {
			// The wire format defines an answer for this one decode failure.
			h.logger.Warn("unacceptable protocol version", LogFields{
				LogFieldConnID: h.connID,
				LogFieldError:  versionErr.Error(),
			})
			return h.send(&ConnackPacket{ReturnCode: versionErr.ReturnCode()})
		}

		h.logger.Error("packet decode failed", LogFields{
			LogFieldConnID: h.connID,
			LogFieldError:  err.Error(),
		})
		return err
	}

	h.metrics.Counter(MetricPacketsReceived, MetricLabels{LabelPacketType: packet.Type().String()}).Inc()

	if h.state == StateAwaitingConnect {
		connect, ok := packet.(*ConnectPacket)
		if !ok {
			h.logger.Error("first packet is not CONNECT", LogFields{
				LogFieldConnID:     h.connID,
				LogFieldPacketType: packet.Type().String(),
			})
			h.state = StateClosed
			return ErrProtocolViolation
		}
		return h.handleConnect(connect)
	}

	switch p := packet.(type) {
	case *ConnectPacket:
		// A second CONNECT on one connection is rejected, not idempotent
		return h.handleConnect(p)

	case *PublishPacket:
		return h.handlePublish(ctx, p)

	case *SubscribePacket:
		return h.handleSubscribe(p)

	case *UnsubscribePacket:
		return h.handleUnsubscribe(p)

	case *PingreqPacket:
		return h.send(&PingrespPacket{})

	case *DisconnectPacket:
		h.state = StateClosed
		return ErrCloseConnection

	case *PubackPacket, *PubrecPacket, *PubcompPacket:
		// Valid wire format, meaningless at QoS 0: decoded and dropped
		h.logger.Debug("ignoring QoS acknowledgement", LogFields{
			LogFieldConnID:     h.connID,
			LogFieldPacketType: packet.Type().String(),
		})
		return nil

	case *ConnackPacket, *SubackPacket, *UnsubackPacket, *PingrespPacket, *PubrelPacket:
		// Server-to-client packets (and unsupported PUBREL) must never
		// arrive here
		h.logger.Error("illegal packet from client", LogFields{
			LogFieldConnID:     h.connID,
			LogFieldPacketType: packet.Type().String(),
		})
		h.state = StateClosed
		return ErrProtocolViolation

	default:
		h.state = StateClosed
		return ErrProtocolViolation
	}
}

func (h *Handler) handleConnect(p *ConnectPacket) error {
	clientID := p.ClientID
	if clientID == "" {
		if !p.CleanSession {
			// A zero-length client id requires a clean session
			h.state = StateClosed
			if err := h.send(&ConnackPacket{ReturnCode: ConnackRefusedIdentifier}); err != nil {
				return err
			}
			return ErrCloseConnection
		}
		clientID = uuid.NewString()
	}

	if !h.backend.Connect(h.connID, clientID) {
		h.state = StateClosed
		if err := h.send(&ConnackPacket{ReturnCode: ConnackNotAuthorized}); err != nil {
			return err
		}
		return ErrCloseConnection
	}

	h.state = StateConnected
	h.logger.Info("client connected", LogFields{
		LogFieldConnID:   h.connID,
		LogFieldClientID: clientID,
	})

	return h.send(&ConnackPacket{ReturnCode: ConnackAccepted})
}

func (h *Handler) handlePublish(ctx context.Context, p *PublishPacket) error {
	// Fire-and-forget at QoS 0: no response packet, and a QoS 1/2 publish
	// never receives its acknowledgement. Local delivery failures have no
	// wire-level negative response, so they are logged and swallowed.
	if err := h.backend.NotifyLocalSubscribers(ctx, p.Topic, p.Payload); err != nil {
		h.logger.Error("local delivery failed", LogFields{
			LogFieldConnID: h.connID,
			LogFieldTopic:  p.Topic,
			LogFieldError:  err.Error(),
		})
	}
	return nil
}

func (h *Handler) handleSubscribe(p *SubscribePacket) error {
	codes := make([]byte, len(p.Subscriptions))
	for i, sub := range p.Subscriptions {
		if h.backend.Subscribe(h.connID, sub.TopicFilter) {
			// Granted QoS is capped at "at most once"
			codes[i] = 0
		} else {
			codes[i] = SubackFailure
		}
	}

	return h.send(&SubackPacket{PacketID: p.PacketID, ReturnCodes: codes})
}

func (h *Handler) handleUnsubscribe(p *UnsubscribePacket) error {
	for _, topic := range p.TopicFilters {
		// Best effort: unsubscribing from nothing is not an error at the
		// wire level, the backend logs it
		h.backend.Unsubscribe(h.connID, topic)
	}

	return h.send(&UnsubackPacket{PacketID: p.PacketID})
}

func (h *Handler) send(packet Packet) error {
	data, err := EncodePacket(packet)
	if err != nil {
		return err
	}

	if err := h.sender.SendPacket(data); err != nil {
		return err
	}

	h.metrics.Counter(MetricPacketsSent, MetricLabels{LabelPacketType: packet.Type().String()}).Inc()
	return nil
}
