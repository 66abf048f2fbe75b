// Package ingest feeds telemetry published over MQTT into the sensor repository.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/itsatony/sensorhub/internal/config"
	"github.com/itsatony/sensorhub/internal/errors"
	"github.com/itsatony/sensorhub/internal/models"
	nuts "github.com/vaudience/go-nuts"
)

const (
	queueSize   = 1024
	connectWait = 10 * time.Second
)

// TelemetryRecorder is what the ingestor writes readings into
type TelemetryRecorder interface {
	RecordTelemetry(ctx context.Context, sensorID int64, reading models.SensorTelemetry) error
}

type message struct {
	topic   string
	payload []byte
}

// Ingestor subscribes to sensors/<id>/telemetry and records every reading
type Ingestor struct {
	cfg      config.MQTTConfig
	recorder TelemetryRecorder
	client   mqtt.Client
	msgCh    chan message
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	connectWait time.Duration
}

func New(cfg config.MQTTConfig, recorder TelemetryRecorder) *Ingestor {
	return &Ingestor{
		cfg:      cfg,
		recorder: recorder,
		msgCh:    make(chan message, queueSize),
		done:     make(chan struct{}),

		connectWait: connectWait,
	}
}

// Start connects to the broker and begins processing messages until ctx ends or
// Stop is called. An unreachable broker does not fail Start: the client keeps
// retrying in the background and subscribes once it is connected.
func (i *Ingestor) Start(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(i.cfg.Broker).
		SetClientID(i.cfg.ClientID).
		SetOrderMatters(false).
		SetKeepAlive(30 * time.Second).
		SetPingTimeout(10 * time.Second).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)

	if i.cfg.Username != "" {
		opts.SetUsername(i.cfg.Username)
		opts.SetPassword(i.cfg.Password)
	}

	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		nuts.L.Warnf("[Ingestor] MQTT connection lost: %v", err)
	}
	opts.OnConnect = func(c mqtt.Client) {
		nuts.L.Infof("[Ingestor] MQTT connected, subscribing to %s", i.cfg.Topic)
		if token := c.Subscribe(i.cfg.Topic, i.cfg.QoS, i.onMessage); token.Wait() && token.Error() != nil {
			nuts.L.Errorf("[Ingestor] Subscribe error: %v", token.Error())
		}
	}

	i.client = mqtt.NewClient(opts)
	tk := i.client.Connect()
	if !tk.WaitTimeout(i.connectWait) {
		nuts.L.Warnf("[Ingestor] MQTT broker %s not reachable yet, retrying in background", i.cfg.Broker)
	} else if tk.Error() != nil {
		return fmt.Errorf("error connecting to MQTT broker: %w", tk.Error())
	}

	i.startWorker(ctx)
	return nil
}

func (i *Ingestor) startWorker(ctx context.Context) {
	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		i.process(ctx)
	}()
}

// Stop disconnects from the broker and waits for queued messages to drain
func (i *Ingestor) Stop() {
	i.stopOnce.Do(func() {
		if i.client != nil {
			i.client.Disconnect(500)
		}
		close(i.done)
		i.wg.Wait()
	})
}

func (i *Ingestor) IsConnected() bool {
	return i.client != nil && i.client.IsConnected()
}

func (i *Ingestor) onMessage(_ mqtt.Client, m mqtt.Message) {
	select {
	case <-i.done:
		nuts.L.Debugf("[Ingestor] Stopped, dropping message on %s", m.Topic())
		return
	default:
	}

	select {
	case i.msgCh <- message{topic: m.Topic(), payload: m.Payload()}:
	default:
		nuts.L.Warnf("[Ingestor] Queue full, dropping message on %s", m.Topic())
	}
}

func (i *Ingestor) process(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-i.done:
			i.drain(ctx)
			return
		case m := <-i.msgCh:
			i.handle(ctx, m)
		}
	}
}

// drain handles what is still queued after Stop
func (i *Ingestor) drain(ctx context.Context) {
	for {
		select {
		case m := <-i.msgCh:
			i.handle(ctx, m)
		default:
			return
		}
	}
}

func (i *Ingestor) handle(ctx context.Context, m message) {
	if err := i.HandleMessage(ctx, m.topic, m.payload); err != nil {
		nuts.L.Warnf("[Ingestor] Dropped message on %s: %v", m.topic, err)
	}
}

// HandleMessage decodes one telemetry message and records it
func (i *Ingestor) HandleMessage(ctx context.Context, topic string, payload []byte) error {
	sensorID, err := ParseTopic(topic)
	if err != nil {
		return err
	}

	var reading models.SensorTelemetry
	if err := json.Unmarshal(payload, &reading); err != nil {
		return errors.NewValidationError("invalid telemetry payload", err).WithSensorID(sensorID)
	}

	return i.recorder.RecordTelemetry(ctx, sensorID, reading)
}

// ParseTopic extracts the sensor id from sensors/<id>/telemetry
func ParseTopic(topic string) (int64, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != "sensors" || parts[2] != "telemetry" {
		return 0, errors.NewValidationError(fmt.Sprintf("invalid topic %q, expected sensors/<id>/telemetry", topic), nil)
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.NewValidationError(fmt.Sprintf("invalid sensor id in topic %q", topic), err)
	}
	return id, nil
}
