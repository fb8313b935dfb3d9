package healthchecker

import (
	"context"

	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/kafka"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type BucketChecker interface {
	CheckBucket(ctx context.Context) error
}

func CheckDB(dbConn *gorm.DB) Check {
	return func(ctx context.Context) error {
		sqlDB, err := dbConn.DB()
		if err != nil {
			return err
		}

		return sqlDB.PingContext(ctx)
	}
}

func CheckRedis(client redis.UniversalClient) Check {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}

func CheckMinio(client BucketChecker) Check {
	return client.CheckBucket
}

func CheckPinger(pinger Pinger) Check {
	return pinger.Ping
}

// CheckKafkaProducer sends a heartbeat event on the producer's topic.
func CheckKafkaProducer(producer *kafka.Producer) Check {
	return func(ctx context.Context) error {
		id := uuid.NewString()

		value, err := json.Marshal(map[string]string{"type": "healthcheck", "id": id})
		if err != nil {
			return err
		}

		return producer.Publish(ctx, id, value)
	}
}

// CheckFunc adapts any probe whose result value is irrelevant.
func CheckFunc[T any](probe func(ctx context.Context) (T, error)) Check {
	return func(ctx context.Context) error {
		_, err := probe(ctx)
		return err
	}
}
