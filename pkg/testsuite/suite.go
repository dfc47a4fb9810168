package testsuite

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sakashimaa/go-auction-next/pkg/db"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

type BaseSuite struct {
	suite.Suite
	PgContainer    *postgres.PostgresContainer
	KafkaContainer *kafka.KafkaContainer
	RedisContainer *tcredis.RedisContainer
	DbPool         *pgxpool.Pool
	DatabaseURL    string
	KafkaBrokers   []string
	Redis          *redis.Client
	Ctx            context.Context
}

// SetupInfrastructure starts postgres with migrationsRelPath applied. Kafka
// is started only when withKafka is set.
func (s *BaseSuite) SetupInfrastructure(migrationsRelPath string, withKafka bool) {
	s.Ctx = context.Background()

	var err error
	s.PgContainer, err = postgres.Run(
		s.Ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("test_user"),
		postgres.WithPassword("test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)

	s.DatabaseURL, err = s.PgContainer.ConnectionString(s.Ctx, "sslmode=disable")
	s.Require().NoError(err)

	if withKafka {
		s.KafkaContainer, err = kafka.Run(
			s.Ctx,
			"confluentinc/cp-kafka:7.5.0",
			kafka.WithClusterID("test-cluster"),
		)
		s.Require().NoError(err)

		s.KafkaBrokers, err = s.KafkaContainer.Brokers(s.Ctx)
		s.Require().NoError(err)
	}

	s.Require().NoError(db.RunMigrations(migrationsRelPath, s.DatabaseURL))

	s.DbPool, err = pgxpool.New(s.Ctx, s.DatabaseURL)
	s.Require().NoError(err)
}

func (s *BaseSuite) SetupRedis() {
	var err error
	s.RedisContainer, err = tcredis.Run(s.Ctx, "redis:7-alpine")
	s.Require().NoError(err)

	endpoint, err := s.RedisContainer.Endpoint(s.Ctx, "")
	s.Require().NoError(err)

	s.Redis = redis.NewClient(&redis.Options{Addr: endpoint})
	s.Require().NoError(s.Redis.Ping(s.Ctx).Err())
}

func (s *BaseSuite) TearDownInfrastructure() {
	if s.DbPool != nil {
		s.DbPool.Close()
	}
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
	if s.PgContainer != nil {
		terminate(s.Ctx, "postgres", s.PgContainer)
	}
	if s.KafkaContainer != nil {
		terminate(s.Ctx, "kafka", s.KafkaContainer)
	}
	if s.RedisContainer != nil {
		terminate(s.Ctx, "redis", s.RedisContainer)
	}
}

func terminate(ctx context.Context, name string, c testcontainers.Container) {
	if err := c.Terminate(ctx); err != nil {
		log.Printf("Failed to terminate %s container: %v", name, err)
	}
}

func (s *BaseSuite) TruncateTable(tableName string) {
	_, err := s.DbPool.Exec(s.Ctx, fmt.Sprintf("TRUNCATE %s CASCADE", tableName))
	s.Require().NoError(err)
}
