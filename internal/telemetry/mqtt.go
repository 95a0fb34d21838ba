// Package telemetry publishes the autohost command stream to an MQTT broker
// so external dashboards can follow match progress without polling the API.
package telemetry

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/hostlink-project/hostlink/internal/client"
	"github.com/hostlink-project/hostlink/internal/config"
	"github.com/hostlink-project/hostlink/internal/protocol"
	"github.com/hostlink-project/hostlink/internal/util"
)

// MQTT topic suffixes, published under the configured topic root.
const (
	TopicAdmin   = "admin"
	TopicState   = "match/state"
	TopicPlayers = "match/players"
	TopicChat    = "match/chat"
	TopicStats   = "match/stats"
)

// subscriberPriority keys every telemetry subscription on the dispatcher.
const subscriberPriority = "telemetry"

// MQTTHandler manages the MQTT connection and publishes telemetry derived
// from the autohost command stream.
type MQTTHandler struct {
	cfg    *config.Config
	ah     *client.Client
	client mqtt.Client

	topicRoot string

	// Metadata included in every message
	metadata map[string]interface{}
}

// NewMQTTHandler creates a new MQTT telemetry handler.
func NewMQTTHandler(cfg *config.Config, ah *client.Client) (*MQTTHandler, error) {
	mqttCfg := cfg.GetApplicationData().MQTT

	if !mqttCfg.Enabled {
		return nil, fmt.Errorf("MQTT is disabled")
	}

	// Build system metadata
	sysInfo := util.GetSystemInfo()
	metadata := map[string]interface{}{
		"hostname":    sysInfo.Hostname,
		"platform":    sysInfo.Platform,
		"cpu_model":   sysInfo.CPUModel,
		"cpu_cores":   sysInfo.CPUCores,
		"memory_mb":   sysInfo.TotalMemory,
		"app_version": "1.0.0",
	}

	topicRoot := mqttCfg.TopicRoot
	if topicRoot == "" {
		topicRoot = "hostlink"
	}

	handler := &MQTTHandler{
		cfg:       cfg,
		ah:        ah,
		topicRoot: topicRoot,
		metadata:  metadata,
	}

	// Configure MQTT client
	opts := mqtt.NewClientOptions()
	scheme := "tcp"
	if mqttCfg.UseTLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, mqttCfg.BrokerURL, mqttCfg.Port))

	if mqttCfg.ClientID != "" {
		opts.SetClientID(mqttCfg.ClientID)
	} else {
		opts.SetClientID(fmt.Sprintf("hostlink-%s", sysInfo.Hostname))
	}

	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetCleanSession(false)

	// TLS configuration
	if mqttCfg.UseTLS {
		tlsConfig := &tls.Config{
			MinVersion: tls.VersionTLS12,
		}

		// mTLS: load client certificate
		if mqttCfg.CertFile != "" && mqttCfg.KeyFile != "" {
			cert, err := tls.LoadX509KeyPair(mqttCfg.CertFile, mqttCfg.KeyFile)
			if err != nil {
				return nil, fmt.Errorf("failed to load MQTT TLS certificate: %w", err)
			}
			tlsConfig.Certificates = []tls.Certificate{cert}
		}

		opts.SetTLSConfig(tlsConfig)
	}

	// Connection callbacks
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Info().Msg("MQTT connected")
	})

	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost")
	})

	handler.client = mqtt.NewClient(opts)

	return handler, nil
}

// Start connects to the MQTT broker and blocks until the context is
// cancelled. Subscribe must already have been called from the pump
// goroutine; publishing itself is safe from any goroutine.
func (h *MQTTHandler) Start(ctx context.Context) error {
	mqttCfg := h.cfg.GetApplicationData().MQTT
	log.Info().
		Str("broker", mqttCfg.BrokerURL).
		Int("port", mqttCfg.Port).
		Msg("connecting to MQTT broker")

	token := h.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("MQTT connect failed: %w", token.Error())
	}

	// Block until context cancelled
	<-ctx.Done()

	h.PublishShutdown()
	h.client.Disconnect(5000)
	log.Info().Msg("MQTT disconnected")

	return nil
}

// telemetrySubjects lists the commands telemetry follows.
var telemetrySubjects = []string{
	protocol.SubjectServerStarted,
	protocol.SubjectServerQuit,
	protocol.SubjectServerStartPlaying,
	protocol.SubjectServerGameOver,
	protocol.SubjectPlayerJoined,
	protocol.SubjectPlayerLeft,
	protocol.SubjectPlayerDefeated,
	protocol.SubjectPlayerChat,
	protocol.SubjectGameTeamStat,
}

// Subscribe registers dispatcher callbacks for MQTT publishing. They run
// after the built-in state update, so the published session state is the
// post-command one. Must be called from the goroutine that pumps the client,
// before pumping starts.
func (h *MQTTHandler) Subscribe() {
	for _, subject := range telemetrySubjects {
		h.ah.AddCallback(subject, subscriberPriority, 0, h.onCommand)
	}
}

// Unsubscribe removes the telemetry callbacks. Same goroutine rule as
// Subscribe.
func (h *MQTTHandler) Unsubscribe() {
	h.ah.RemoveCallbacks(telemetrySubjects, subscriberPriority)
}

// onCommand routes one decoded command to its telemetry topic. Publishing is
// best effort and never fails the pump cycle.
func (h *MQTTHandler) onCommand(cmd protocol.Command) bool {
	switch c := cmd.(type) {
	case protocol.ServerStarted, protocol.ServerQuit:
		h.publishState(cmd.Subject())
	case protocol.ServerStartPlaying:
		h.publishState(cmd.Subject())
	case protocol.ServerGameOver:
		h.publish(TopicState, map[string]interface{}{
			"event":              cmd.Subject(),
			"state":              h.ah.State(),
			"player_nb":          c.PlayerNb,
			"winning_ally_teams": c.WinningAllyTeams,
		})
	case protocol.PlayerJoined:
		h.publishPlayer(cmd.Subject(), c.PlayerNb)
	case protocol.PlayerLeft:
		h.publishPlayer(cmd.Subject(), c.PlayerNb)
	case protocol.PlayerDefeated:
		h.publishPlayer(cmd.Subject(), c.PlayerNb)
	case protocol.PlayerChat:
		h.publish(TopicChat, map[string]interface{}{
			"player_nb":   c.PlayerNb,
			"destination": c.Destination,
			"text":        c.Text,
		})
	case protocol.GameTeamStat:
		h.publish(TopicStats, map[string]interface{}{
			"team_nb": c.TeamNb,
			"stats":   c.Stats,
		})
	}
	return true
}

func (h *MQTTHandler) publishState(event string) {
	h.publish(TopicState, map[string]interface{}{
		"event":   event,
		"state":   h.ah.State(),
		"game_id": h.ah.GameID(),
	})
}

func (h *MQTTHandler) publishPlayer(event string, playerNb uint8) {
	payload := map[string]interface{}{
		"event":     event,
		"player_nb": playerNb,
	}
	if p, ok := h.ah.Players()[playerNb]; ok {
		payload["player"] = p
	}
	h.publish(TopicPlayers, payload)
}

// publish sends a JSON message to an MQTT topic.
func (h *MQTTHandler) publish(topic string, payload interface{}) {
	if !h.client.IsConnected() {
		return
	}

	// Merge metadata with payload
	msg := h.buildMessage(payload)

	data, err := json.Marshal(msg)
	if err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("failed to marshal MQTT message")
		return
	}

	fullTopic := h.topicRoot + "/" + topic
	token := h.client.Publish(fullTopic, 1, false, data) // QoS 1
	go func() {
		token.Wait()
		if token.Error() != nil {
			log.Warn().Err(token.Error()).Str("topic", fullTopic).Msg("MQTT publish failed")
		}
	}()
}

// buildMessage combines metadata with the event payload.
func (h *MQTTHandler) buildMessage(payload interface{}) map[string]interface{} {
	msg := make(map[string]interface{})

	// Add metadata
	for k, v := range h.metadata {
		msg[k] = v
	}

	// Add payload
	msg["payload"] = payload
	msg["timestamp"] = time.Now().UTC().Format(time.RFC3339)

	return msg
}

// PublishShutdown sends a shutdown message to the MQTT broker.
func (h *MQTTHandler) PublishShutdown() {
	h.publish(TopicAdmin, map[string]interface{}{
		"event":     "shutdown",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
