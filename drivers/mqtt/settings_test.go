package mqtt

import (
	"strings"
	"testing"
	"time"

	"github.com/hygrod/hygrod/config"
)

func TestNewSettingsAppliesDefaults(t *testing.T) {
	settings, err := NewSettings("greenhouse", config.MQTTConfig{Broker: "tcp://broker:1883"})
	if err != nil {
		t.Fatalf("resolve settings: %v", err)
	}
	if !strings.HasPrefix(settings.ClientID, "hygrod-") || len(settings.ClientID) != len("hygrod-")+8 {
		t.Fatalf("unexpected client id %q", settings.ClientID)
	}
	if settings.TopicPrefix != "hygrod/greenhouse" {
		t.Fatalf("unexpected prefix %q", settings.TopicPrefix)
	}
	if settings.Timeout != 30*time.Second {
		t.Fatalf("unexpected timeout %s", settings.Timeout)
	}
}

func TestNewSettingsRandomClientIDsDiffer(t *testing.T) {
	first, err := NewSettings("", config.MQTTConfig{Broker: "tcp://broker:1883"})
	if err != nil {
		t.Fatalf("resolve settings: %v", err)
	}
	second, err := NewSettings("", config.MQTTConfig{Broker: "tcp://broker:1883"})
	if err != nil {
		t.Fatalf("resolve settings: %v", err)
	}
	if first.ClientID == second.ClientID {
		t.Fatalf("expected distinct client ids, got %q twice", first.ClientID)
	}
}

func TestNewSettingsKeepsExplicitValues(t *testing.T) {
	cfg := config.MQTTConfig{
		Broker:      "ssl://broker:8883",
		ClientID:    "hygrod-lab",
		TopicPrefix: "/lab/climate/",
		QoS:         1,
		Retain:      true,
		Timeout:     config.Duration{Duration: 5 * time.Second},
	}
	settings, err := NewSettings("ignored", cfg)
	if err != nil {
		t.Fatalf("resolve settings: %v", err)
	}
	if settings.ClientID != "hygrod-lab" {
		t.Fatalf("unexpected client id %q", settings.ClientID)
	}
	if settings.TopicPrefix != "lab/climate" {
		t.Fatalf("prefix not trimmed: %q", settings.TopicPrefix)
	}
	if settings.QoS != 1 || !settings.Retain || settings.Timeout != 5*time.Second {
		t.Fatalf("explicit values lost: %+v", settings)
	}
}

func TestNewSettingsRequiresBroker(t *testing.T) {
	if _, err := NewSettings("x", config.MQTTConfig{}); err == nil {
		t.Fatal("expected error for missing broker")
	}
}

func TestTopicLayout(t *testing.T) {
	settings := Settings{TopicPrefix: "hygrod/test"}
	cases := []struct {
		got  string
		want string
	}{
		{settings.StatusTopic(), "hygrod/test/status"},
		{settings.StateTopic("indoor"), "hygrod/test/indoor/state"},
		{settings.ValueTopic("indoor", "temperature"), "hygrod/test/indoor/temperature"},
		{settings.StatsTopic("heap"), "hygrod/test/stats/heap"},
		{settings.TimeTopic("seconds"), "hygrod/test/time/seconds"},
		{settings.CommandTopic("conversation"), "hygrod/test/command/conversation"},
		{settings.ConversationTopic(), "hygrod/test/conversation"},
		{settings.AlertTopic(config.AlertConfig{Name: "hot"}), "hygrod/test/alerts/hot"},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Fatalf("topic %q, want %q", tc.got, tc.want)
		}
	}
	override := config.AlertConfig{Name: "hot", Topic: "custom/alerts"}
	if got := settings.AlertTopic(override); got != "custom/alerts" {
		t.Fatalf("alert override ignored: %q", got)
	}
}
