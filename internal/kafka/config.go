package kafka

import (
	"errors"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/config"
	"github.com/IBM/sarama"
)

var ErrNotConfigured = errors.New("kafka bootstrap server is not configured")

type Settings struct {
	BootstrapServer     string
	Username            string
	Password            string
	Topic               string
	IntervalCB          uint32
	ConsecutiveFailures uint32
}

func (settings Settings) Configured() bool {
	return settings.BootstrapServer != ""
}

func SettingsFromConfig() Settings {
	return Settings{
		BootstrapServer:     config.Conf.KafkaBootstrapServer,
		Username:            config.Conf.KafkaUsername,
		Password:            config.Conf.KafkaPassword,
		Topic:               config.Conf.KafkaReportTopic,
		IntervalCB:          config.Conf.KafkaIntervalCB,
		ConsecutiveFailures: config.Conf.KafkaConsecutiveFailuresCB,
	}
}

// newSaramaConfig builds a synchronous producer config. SASL SCRAM-SHA-512
// is enabled when a username is set.
func newSaramaConfig(settings Settings) *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_6_0_0
	cfg.ClientID = "callboard"

	if settings.Username != "" {
		cfg.Net.SASL.Enable = true
		cfg.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA512
		cfg.Net.SASL.User = settings.Username
		cfg.Net.SASL.Password = settings.Password
		cfg.Net.SASL.Handshake = true
		cfg.Net.SASL.SCRAMClientGeneratorFunc = newSCRAMSHA512Client
	}

	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Timeout = 5 * time.Second

	return cfg
}
