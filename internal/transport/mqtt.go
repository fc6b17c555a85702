package transport

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/san-kum/nmpc/internal/buffer"
	"github.com/san-kum/nmpc/internal/config"
	"github.com/san-kum/nmpc/internal/dynamo"
)

const (
	connectTimeout   = 5 * time.Second
	subscribeTimeout = 5 * time.Second
	publishTimeout   = 2 * time.Second
)

// Node bridges the controller to an MQTT broker. Pose, goal and path
// messages feed the state buffer; commands go out as twists.
type Node struct {
	cfg    config.TransportConfig
	codec  Codec
	buf    *buffer.Buffer
	clock  clock.Clock
	logger *zap.SugaredLogger
	frame  string

	commandTimeout time.Duration

	client mqtt.Client

	mu         sync.RWMutex
	connected  bool
	subscribed bool
	received   map[string]uint64
	rejected   uint64
	published  uint64
	errors     uint64
}

type Option func(*Node)

// WithClient uses c instead of dialing the configured broker.
func WithClient(c mqtt.Client) Option {
	return func(n *Node) { n.client = c }
}

func WithLogger(l *zap.SugaredLogger) Option {
	return func(n *Node) { n.logger = l }
}

func WithClock(c clock.Clock) Option {
	return func(n *Node) { n.clock = c }
}

// WithCommandTimeout bounds how long Publish waits for the broker. The
// control loop calls Publish once per period, so this should fit in what
// the period leaves after the solve.
func WithCommandTimeout(d time.Duration) Option {
	return func(n *Node) {
		if d > 0 {
			n.commandTimeout = d
		}
	}
}

// WithFrame sets the frame id stamped on outgoing messages.
func WithFrame(frame string) Option {
	return func(n *Node) { n.frame = frame }
}

func NewNode(cfg config.TransportConfig, buf *buffer.Buffer, opts ...Option) (*Node, error) {
	codec, err := CodecByName(cfg.Codec)
	if err != nil {
		return nil, err
	}
	if buf == nil {
		return nil, errors.Wrap(dynamo.ErrConfigInvalid, "transport node needs a state buffer")
	}
	n := &Node{
		cfg:      cfg,
		codec:    codec,
		buf:      buf,
		clock:    clock.New(),
		logger:   zap.NewNop().Sugar(),
		frame:    "map",
		received: make(map[string]uint64),

		commandTimeout: publishTimeout,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

func (n *Node) clientOptions() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(n.cfg.Broker)
	opts.SetClientID(n.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		n.setConnected(true)
		n.logger.Infow("mqtt connection established", "broker", n.cfg.Broker, "client_id", n.cfg.ClientID)

		n.mu.RLock()
		resubscribe := n.subscribed
		n.mu.RUnlock()
		if resubscribe {
			go func() {
				if err := n.subscribe(); err != nil {
					n.logger.Errorw("resubscribe after reconnect failed", "error", err)
				}
			}()
		}
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		n.setConnected(false)
		n.logger.Warnw("mqtt connection lost, will auto-reconnect", "error", err, "broker", n.cfg.Broker)
	}
	return opts
}

// Connect dials the broker and subscribes to the input topics.
func (n *Node) Connect(ctx context.Context) error {
	if n.client == nil {
		n.client = mqtt.NewClient(n.clientOptions())
	}

	n.logger.Infow("connecting to mqtt broker", "broker", n.cfg.Broker)
	token := n.client.Connect()
	if err := wait(ctx, token, connectTimeout); err != nil {
		return errors.Wrap(err, "mqtt connect")
	}
	n.setConnected(true)

	if err := n.subscribe(); err != nil {
		return err
	}
	n.mu.Lock()
	n.subscribed = true
	n.mu.Unlock()
	return nil
}

func (n *Node) subscribe() error {
	topics := map[string]func([]byte) error{
		n.cfg.Topics.Pose: n.HandlePose,
		n.cfg.Topics.Goal: n.HandleGoal,
		n.cfg.Topics.Path: n.HandlePath,
	}
	for topic, handle := range topics {
		if topic == "" {
			continue
		}
		token := n.client.Subscribe(topic, n.cfg.QoS, n.messageHandler(topic, handle))
		if err := wait(context.Background(), token, subscribeTimeout); err != nil {
			return errors.Wrapf(err, "subscribe %s", topic)
		}
		n.logger.Infow("subscribed", "topic", topic, "qos", n.cfg.QoS)
	}
	return nil
}

func (n *Node) messageHandler(topic string, handle func([]byte) error) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		if err := handle(msg.Payload()); err != nil {
			n.mu.Lock()
			n.rejected++
			n.mu.Unlock()
			n.logger.Warnw("dropping message", "topic", topic, "error", err)
			return
		}
		n.mu.Lock()
		n.received[topic]++
		n.mu.Unlock()
	}
}

// HandlePose decodes a PoseStamped and stores it as the robot state.
func (n *Node) HandlePose(payload []byte) error {
	var msg PoseStamped
	if err := n.codec.Unmarshal(payload, &msg); err != nil {
		return errors.Wrap(err, "decode pose")
	}
	return n.buf.SetState(msg.ToPose().State())
}

// HandleGoal decodes a PoseStamped and installs it as the goal.
func (n *Node) HandleGoal(payload []byte) error {
	var msg PoseStamped
	if err := n.codec.Unmarshal(payload, &msg); err != nil {
		return errors.Wrap(err, "decode goal")
	}
	goal := msg.ToPose()
	n.logger.Infow("new goal", "goal", goal)
	return n.buf.SetGoal(goal)
}

func (n *Node) HandlePath(payload []byte) error {
	var msg PathMsg
	if err := n.codec.Unmarshal(payload, &msg); err != nil {
		return errors.Wrap(err, "decode path")
	}
	path := msg.ToPath()
	n.logger.Infow("new path", "waypoints", len(path), "length", path.Length())
	return n.buf.SetPath(path)
}

// Publish sends u as a twist on the command topic.
func (n *Node) Publish(ctx context.Context, u dynamo.Control) error {
	if !n.isConnected() {
		n.countError()
		return errors.New("mqtt not connected")
	}
	payload, err := n.codec.Marshal(TwistFromControl(u))
	if err != nil {
		n.countError()
		return errors.Wrap(err, "encode twist")
	}

	token := n.client.Publish(n.cfg.Topics.Command, n.cfg.QoS, false, payload)
	if err := wait(ctx, token, n.commandTimeout); err != nil {
		n.countError()
		return errors.Wrap(err, "publish command")
	}

	n.mu.Lock()
	n.published++
	n.mu.Unlock()
	return nil
}

// PublishPose sends a pose on topic. The simulator uses it to play the
// robot side of the link.
func (n *Node) PublishPose(ctx context.Context, topic string, p dynamo.Pose) error {
	payload, err := n.codec.Marshal(NewPoseStamped(p, n.clock.Now(), n.frame))
	if err != nil {
		return errors.Wrap(err, "encode pose")
	}
	return wait(ctx, n.client.Publish(topic, n.cfg.QoS, false, payload), publishTimeout)
}

func (n *Node) PublishPath(ctx context.Context, path dynamo.Path) error {
	payload, err := n.codec.Marshal(NewPathMsg(path, n.clock.Now(), n.frame))
	if err != nil {
		return errors.Wrap(err, "encode path")
	}
	return wait(ctx, n.client.Publish(n.cfg.Topics.Path, n.cfg.QoS, false, payload), publishTimeout)
}

// Disconnect unsubscribes and closes the connection with a short grace
// period.
func (n *Node) Disconnect() {
	if n.client != nil && n.client.IsConnected() {
		topics := make([]string, 0, 3)
		for _, t := range []string{n.cfg.Topics.Pose, n.cfg.Topics.Goal, n.cfg.Topics.Path} {
			if t != "" {
				topics = append(topics, t)
			}
		}
		n.client.Unsubscribe(topics...).WaitTimeout(time.Second)
		n.client.Disconnect(250)
		n.logger.Info("mqtt disconnected")
	}
	n.setConnected(false)
}

type Stats struct {
	Connected bool              `json:"connected"`
	Received  map[string]uint64 `json:"received"`
	Rejected  uint64            `json:"rejected"`
	Published uint64            `json:"published"`
	Errors    uint64            `json:"errors"`
}

func (n *Node) Stats() Stats {
	n.mu.RLock()
	defer n.mu.RUnlock()

	received := make(map[string]uint64, len(n.received))
	for k, v := range n.received {
		received[k] = v
	}
	return Stats{
		Connected: n.connected,
		Received:  received,
		Rejected:  n.rejected,
		Published: n.published,
		Errors:    n.errors,
	}
}

func (n *Node) setConnected(v bool) {
	n.mu.Lock()
	n.connected = v
	n.mu.Unlock()
}

func (n *Node) isConnected() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.connected
}

func (n *Node) countError() {
	n.mu.Lock()
	n.errors++
	n.mu.Unlock()
}

// wait blocks until token completes, ctx is done or timeout passes.
func wait(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return errors.New("mqtt operation timed out")
	}
}
