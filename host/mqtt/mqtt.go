// Package mqtt publishes ADS1x18 readings to an MQTT broker
package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"

	paho "github.com/eclipse/paho.mqtt.golang"

	"adsgopper/host/ads1x18"
)

const (
	DefaultServer   = "tcp://localhost:1883"
	DefaultClientID = "ads1x18-host"
	// DefaultTopic is formatted with the sensor name
	DefaultTopic = "ads1x18/%s"
)

type Config struct {
	Server   string `json:"server"`
	Username string `json:"username"`
	Password string `json:"password"`
	ClientID string `json:"client_id"`
	Topic    string `json:"topic"`
	Retain   bool   `json:"retain"`
}

// Publisher sends one JSON message per reading
type Publisher struct {
	client paho.Client
	topic  string
	retain bool
}

type payload struct {
	Sensor          string  `json:"sensor"`
	Index           int     `json:"index"`
	Kind            string  `json:"kind"`
	Value           float64 `json:"value"`
	Unit            string  `json:"unit"`
	Raw             int16   `json:"raw"`
	ChipTemperature float64 `json:"chip_temperature"`
	Timestamp       int64   `json:"timestamp_ms"`
}

// New connects to the broker
func New(cfg Config) (*Publisher, error) {
	if cfg.Server == "" {
		cfg.Server = DefaultServer
	}
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultClientID
	}
	opts := paho.NewClientOptions().AddBroker(cfg.Server).SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	client := paho.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return newPublisher(client, cfg), nil
}

func newPublisher(client paho.Client, cfg Config) *Publisher {
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	return &Publisher{client: client, topic: topic, retain: cfg.Retain}
}

// Topic returns the topic a reading is published on. A topic without a
// %s or %d verb is shared by every sensor.
func (p *Publisher) Topic(r ads1x18.Reading) string {
	switch {
	case strings.Contains(p.topic, "%s"):
		name := r.Name
		if name == "" {
			name = fmt.Sprintf("sensor%d", r.Index)
		}
		return fmt.Sprintf(p.topic, name)
	case strings.Contains(p.topic, "%d"):
		return fmt.Sprintf(p.topic, r.Index)
	}
	return p.topic
}

func (p *Publisher) Publish(r ads1x18.Reading) error {
	b, err := json.Marshal(payload{
		Sensor:          r.Name,
		Index:           r.Index,
		Kind:            r.Kind.String(),
		Value:           r.Value,
		Unit:            r.Kind.Unit(),
		Raw:             r.Raw,
		ChipTemperature: r.ChipTemperature,
		Timestamp:       r.Time.UnixMilli(),
	})
	if err != nil {
		return err
	}
	token := p.client.Publish(p.Topic(r), 0, p.retain, b)
	token.Wait()
	return token.Error()
}

func (p *Publisher) Close() error {
	if p.client != nil {
		p.client.Disconnect(250)
	}
	return nil
}
