package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/tenant-billing/pkg/metrics"
)

func TestRedisBroker_Publish(t *testing.T) {
	client, mock := redismock.NewClientMock()
	m := metrics.NewMetrics(prometheus.NewRegistry(), "test")
	b := NewRedisBrokerWithClient(client, m)

	payload := []byte(`{"type":"billing.payment_approved"}`)
	mock.ExpectPublish("billing.events", payload).SetVal(1)

	require.NoError(t, b.Publish(context.Background(), "billing.events", payload))
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RedisOperations.WithLabelValues("publish", "success")))
}

func TestRedisBroker_PublishError(t *testing.T) {
	client, mock := redismock.NewClientMock()
	m := metrics.NewMetrics(prometheus.NewRegistry(), "test")
	b := NewRedisBrokerWithClient(client, m)

	payload := []byte(`{}`)
	mock.ExpectPublish("billing.events", payload).SetErr(errors.New("connection refused"))

	err := b.Publish(context.Background(), "billing.events", payload)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "billing.events")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RedisOperations.WithLabelValues("publish", "error")))
}

func TestRedisBroker_Ping(t *testing.T) {
	client, mock := redismock.NewClientMock()
	b := NewRedisBrokerWithClient(client, nil)

	mock.ExpectPing().SetVal("PONG")
	assert.NoError(t, b.Ping(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
