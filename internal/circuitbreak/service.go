package circuitbreak

import (
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/logging"
	"go.uber.org/zap"
)

const channelBuffer = 16

var CircuitBreakChan chan string

const (
	HamsaService         = "hamsa"
	TwilioService        = "twilio"
	LLMService           = "llm"
	DBService            = "database"
	RedisService         = "redis"
	MinioService         = "minio"
	KafkaProducerService = "kafka_producer"
)

func Init() {
	CircuitBreakChan = make(chan string, channelBuffer)
}

// TriggerError reports a breaker that went open. It never blocks the caller:
// an HTTP request must not hang because the health monitor is busy.
func TriggerError(service string) {
	if CircuitBreakChan == nil {
		logging.Logger.Warn("circuit break channel is not initialized", zap.String("service", service))
		return
	}

	select {
	case CircuitBreakChan <- service:
	default:
		logging.Logger.Warn("circuit break channel is full, dropping event", zap.String("service", service))
	}
}
