package kafka

import (
	"context"
	"errors"
	"testing"

	cKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type mockAdmin struct {
	mock.Mock
}

func (m *mockAdmin) GetMetadata(topic *string, allTopics bool, timeoutMs int) (*cKafka.Metadata, error) {
	args := m.Called(*topic, allTopics, timeoutMs)
	if v := args.Get(0); v != nil {
		return v.(*cKafka.Metadata), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockAdmin) CreateTopics(ctx context.Context, topics []cKafka.TopicSpecification, _ ...cKafka.CreateTopicsAdminOption) ([]cKafka.TopicResult, error) {
	args := m.Called(ctx, topics)
	if v := args.Get(0); v != nil {
		return v.([]cKafka.TopicResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func metadataWith(name string, partitions, replicas int) *cKafka.Metadata {
	tm := cKafka.TopicMetadata{Topic: name, Error: cKafka.NewError(cKafka.ErrNoError, "", false)}
	for i := 0; i < partitions; i++ {
		tm.Partitions = append(tm.Partitions, cKafka.PartitionMetadata{
			ID:       int32(i),
			Replicas: make([]int32, replicas),
		})
	}
	return &cKafka.Metadata{Topics: map[string]cKafka.TopicMetadata{name: tm}}
}

func TestTopicConfig_Validate(t *testing.T) {
	require.NoError(t, TopicConfig{Name: "blocks", NumPartitions: 1, ReplicationFactor: 1}.Validate())
	require.ErrorContains(t, TopicConfig{NumPartitions: 1, ReplicationFactor: 1}.Validate(), "topic name cannot be empty")
	require.ErrorContains(t, TopicConfig{Name: "blocks", ReplicationFactor: 1}.Validate(), "partitions")
	require.ErrorContains(t, TopicConfig{Name: "blocks", NumPartitions: 1}.Validate(), "replication factor")
}

func TestEnsureTopic_CreatesMissingTopic(t *testing.T) {
	admin := &mockAdmin{}
	admin.On("GetMetadata", "blocks", false, mock.Anything).
		Return(&cKafka.Metadata{Topics: map[string]cKafka.TopicMetadata{}}, nil).Once()
	admin.On("CreateTopics", mock.Anything, []cKafka.TopicSpecification{{
		Topic:             "blocks",
		NumPartitions:     3,
		ReplicationFactor: 2,
	}}).Return([]cKafka.TopicResult{{
		Topic: "blocks",
		Error: cKafka.NewError(cKafka.ErrNoError, "", false),
	}}, nil).Once()

	err := EnsureTopic(t.Context(), admin, TopicConfig{Name: "blocks", NumPartitions: 3, ReplicationFactor: 2}, zap.NewNop().Sugar())
	require.NoError(t, err)
	admin.AssertExpectations(t)
}

func TestEnsureTopic_CreatedConcurrently(t *testing.T) {
	admin := &mockAdmin{}
	admin.On("GetMetadata", "blocks", false, mock.Anything).
		Return(&cKafka.Metadata{Topics: map[string]cKafka.TopicMetadata{}}, nil).Once()
	admin.On("CreateTopics", mock.Anything, mock.Anything).Return([]cKafka.TopicResult{{
		Topic: "blocks",
		Error: cKafka.NewError(cKafka.ErrTopicAlreadyExists, "exists", false),
	}}, nil).Once()

	err := EnsureTopic(t.Context(), admin, TopicConfig{Name: "blocks", NumPartitions: 1, ReplicationFactor: 1}, zap.NewNop().Sugar())
	require.NoError(t, err)
}

func TestEnsureTopic_ExistingTopicDiffers(t *testing.T) {
	admin := &mockAdmin{}
	admin.On("GetMetadata", "blocks", false, mock.Anything).Return(metadataWith("blocks", 6, 3), nil).Once()

	core, recorded := observer.New(zap.WarnLevel)
	err := EnsureTopic(t.Context(), admin, TopicConfig{Name: "blocks", NumPartitions: 3, ReplicationFactor: 3}, zap.New(core).Sugar())
	require.NoError(t, err)

	require.Equal(t, 1, recorded.FilterMessage("existing topic differs from config").Len())
	admin.AssertNotCalled(t, "CreateTopics", mock.Anything, mock.Anything)
}

func TestEnsureTopic_Errors(t *testing.T) {
	t.Run("invalid config", func(t *testing.T) {
		admin := &mockAdmin{}
		err := EnsureTopic(t.Context(), admin, TopicConfig{Name: "blocks"}, zap.NewNop().Sugar())
		require.ErrorContains(t, err, "invalid topic config")
		admin.AssertNotCalled(t, "GetMetadata", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("metadata failure", func(t *testing.T) {
		admin := &mockAdmin{}
		admin.On("GetMetadata", "blocks", false, mock.Anything).Return(nil, errors.New("timed out")).Once()
		err := EnsureTopic(t.Context(), admin, TopicConfig{Name: "blocks", NumPartitions: 1, ReplicationFactor: 1}, zap.NewNop().Sugar())
		require.ErrorContains(t, err, "failed to check topic existence")
	})

	t.Run("create failure", func(t *testing.T) {
		admin := &mockAdmin{}
		admin.On("GetMetadata", "blocks", false, mock.Anything).
			Return(&cKafka.Metadata{Topics: map[string]cKafka.TopicMetadata{}}, nil).Once()
		admin.On("CreateTopics", mock.Anything, mock.Anything).Return([]cKafka.TopicResult{{
			Topic: "blocks",
			Error: cKafka.NewError(cKafka.ErrPolicyViolation, "denied", false),
		}}, nil).Once()
		err := EnsureTopic(t.Context(), admin, TopicConfig{Name: "blocks", NumPartitions: 1, ReplicationFactor: 1}, zap.NewNop().Sugar())
		require.ErrorContains(t, err, "failed to create topic")
	})
}

func TestReplicationFactor(t *testing.T) {
	md := metadataWith("blocks", 2, 3)
	tm := md.Topics["blocks"]
	require.Equal(t, 3, replicationFactor(&tm))
	require.Equal(t, 0, replicationFactor(&cKafka.TopicMetadata{}))
}
