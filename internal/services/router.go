package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/esp32-home/iot-gateway/internal/constants"
	"github.com/esp32-home/iot-gateway/internal/models"
	"github.com/esp32-home/iot-gateway/pkg/mqtt"
)

// RouterService owns the inbound side of the pub/sub channel. It
// subscribes the gateway's topic set, classifies each message by kind
// (telemetry fragment, combined telemetry, heartbeat, acknowledgement,
// sync request) and forwards it to the owning component. It also
// feeds the liveness monitor according to the configured evidence
// policy.
type RouterService struct {
	topicPrefix  string
	qos          int
	devices      []string
	sensorNodeID string
	evidence     string

	mqttClient mqtt.MQTTClient
	liveness   *LivenessService
	telemetry  *TelemetryService
	ack        *AckService
	resync     *ResyncService
	logger     zerolog.Logger

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewRouterService initializes a new RouterService.
func NewRouterService(topicPrefix string, qos int, devices []string, sensorNodeID, evidence string,
	mqttClient mqtt.MQTTClient, liveness *LivenessService, telemetry *TelemetryService,
	ack *AckService, resync *ResyncService, logger zerolog.Logger) *RouterService {

	return &RouterService{
		topicPrefix:  topicPrefix,
		qos:          qos,
		devices:      devices,
		sensorNodeID: sensorNodeID,
		evidence:     evidence,
		mqttClient:   mqttClient,
		liveness:     liveness,
		telemetry:    telemetry,
		ack:          ack,
		resync:       resync,
		logger:       logger,
	}
}

// Start subscribes to the consumed topic set.
func (r *RouterService) Start() error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		r.logger.Warn().Msg("RouterService is already running")
		return errors.New("router service is already running")
	}
	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.running = true
	r.mu.Unlock()

	if err := r.subscribeAll(); err != nil {
		r.mu.Lock()
		r.cancel()
		r.running = false
		r.mu.Unlock()
		return err
	}

	r.logger.Info().Str("prefix", r.topicPrefix).Msg("RouterService started successfully")
	return nil
}

// Resubscribe re-runs the subscriptions after a broker reconnect.
// Failures are logged; paho retries the connection and this hook fires
// again.
func (r *RouterService) Resubscribe() {
	r.mu.Lock()
	running := r.running
	r.mu.Unlock()
	if !running {
		return
	}
	if err := r.subscribeAll(); err != nil {
		r.logger.Error().Err(err).Msg("Failed to restore subscriptions after reconnect")
	}
}

// Stop unsubscribes from all topics. The context stays set, only
// cancelled: a straggling delivery that raced the unsubscribe still
// gets a usable context and degrades to a cancelled-context error
// instead of a nil deref.
func (r *RouterService) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		r.logger.Warn().Msg("RouterService is not running")
		return errors.New("router service is not running")
	}
	r.cancel()
	r.running = false
	r.mu.Unlock()

	token := r.mqttClient.Unsubscribe(r.topics()...)
	token.Wait()
	if err := token.Error(); err != nil {
		r.logger.Error().Err(err).Msg("Failed to unsubscribe from MQTT topics")
		return err
	}

	r.logger.Info().Msg("RouterService stopped successfully")
	return nil
}

// context returns the handler context, never nil. Before the first
// Start it falls back to the background context.
func (r *RouterService) context() context.Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ctx == nil {
		return context.Background()
	}
	return r.ctx
}

func (r *RouterService) topics() []string {
	topics := []string{
		r.topic("heartbeat"),
		r.topic(MetricTemperature),
		r.topic(MetricHumidity),
		r.topic(MetricLight),
		r.topic("telemetry"),
		r.topic("sync"),
	}
	for _, device := range r.devices {
		topics = append(topics, r.ackTopic(device))
	}
	return topics
}

func (r *RouterService) topic(suffix string) string {
	return fmt.Sprintf("%s/%s", r.topicPrefix, suffix)
}

func (r *RouterService) ackTopic(device string) string {
	return fmt.Sprintf("%s/%s/ack", r.topicPrefix, device)
}

func (r *RouterService) subscribeAll() error {
	subscriptions := map[string]MQTT.MessageHandler{
		r.topic("heartbeat"):       r.handleHeartbeat,
		r.topic(MetricTemperature): r.fragmentHandler(MetricTemperature),
		r.topic(MetricHumidity):    r.fragmentHandler(MetricHumidity),
		r.topic(MetricLight):       r.fragmentHandler(MetricLight),
		r.topic("telemetry"):       r.handleTelemetry,
		r.topic("sync"):            r.handleSyncRequest,
	}
	for _, device := range r.devices {
		subscriptions[r.ackTopic(device)] = r.handleAck(device)
	}

	for topic, handler := range subscriptions {
		token := r.mqttClient.Subscribe(topic, byte(r.qos), handler)
		token.Wait()
		if err := token.Error(); err != nil {
			r.logger.Error().Err(err).Str("topic", topic).Msg("Failed to subscribe to MQTT topic")
			return err
		}
	}
	return nil
}

// handleHeartbeat always counts as liveness evidence, whatever the
// policy. The payload is informational only.
func (r *RouterService) handleHeartbeat(client MQTT.Client, msg MQTT.Message) {
	r.liveness.RecordEvidence(time.Now())

	var heartbeat models.Heartbeat
	if err := json.Unmarshal(msg.Payload(), &heartbeat); err == nil && heartbeat.DeviceID != "" {
		r.logger.Debug().Str("device", heartbeat.DeviceID).Str("status", heartbeat.Status).
			Msg("Heartbeat received")
	} else {
		r.logger.Debug().Msg("Heartbeat received")
	}
}

func (r *RouterService) fragmentHandler(metric string) MQTT.MessageHandler {
	return func(client MQTT.Client, msg MQTT.Message) {
		r.recordAmbientEvidence()

		payload := strings.TrimSpace(string(msg.Payload()))
		value, err := strconv.ParseFloat(payload, 64)
		if err != nil {
			r.logger.Warn().Str("topic", msg.Topic()).Str("payload", payload).
				Msg("Dropping non-numeric telemetry payload")
			return
		}
		r.telemetry.HandleFragment(r.context(), r.sensorNodeID, metric, value, time.Now())
	}
}

func (r *RouterService) handleTelemetry(client MQTT.Client, msg MQTT.Message) {
	r.recordAmbientEvidence()

	var payload models.Telemetry
	if err := json.Unmarshal(msg.Payload(), &payload); err != nil {
		r.logger.Warn().Err(err).Msg("Dropping malformed combined telemetry payload")
		return
	}
	r.telemetry.HandleTelemetry(r.context(), payload, time.Now())
}

func (r *RouterService) handleAck(device string) MQTT.MessageHandler {
	return func(client MQTT.Client, msg MQTT.Message) {
		r.recordAmbientEvidence()

		state := strings.ToUpper(strings.TrimSpace(string(msg.Payload())))
		r.ack.HandleAck(r.context(), device, state, time.Now())
	}
}

func (r *RouterService) handleSyncRequest(client MQTT.Client, msg MQTT.Message) {
	r.recordAmbientEvidence()

	r.logger.Info().Msg("Device requested state resync")
	go r.resync.Resync(r.context())
}

// recordAmbientEvidence feeds the liveness monitor for non-heartbeat
// device traffic when the permissive policy is configured.
func (r *RouterService) recordAmbientEvidence() {
	if r.evidence == constants.EvidenceAny {
		r.liveness.RecordEvidence(time.Now())
	}
}
