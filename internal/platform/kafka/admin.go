package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// TopicSpec describes a topic to provision.
type TopicSpec struct {
	Name              string
	Partitions        int32
	ReplicationFactor int16
	Config            map[string]*string
}

// EnsureTopic creates the topic if it does not exist. An existing topic is left as-is.
func EnsureTopic(ctx context.Context, client *kgo.Client, spec TopicSpec) error {
	if spec.Partitions <= 0 {
		spec.Partitions = 1
	}
	if spec.ReplicationFactor <= 0 {
		spec.ReplicationFactor = 1
	}

	admin := kadm.NewClient(client)
	resp, err := admin.CreateTopics(ctx, spec.Partitions, spec.ReplicationFactor, spec.Config, spec.Name)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", spec.Name, err)
	}
	for _, r := range resp.Sorted() {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}

// AuditTopicConfig keeps audit records for 30 days with compaction disabled.
func AuditTopicConfig() map[string]*string {
	retention := "2592000000"
	cleanup := "delete"
	return map[string]*string{
		"retention.ms":   &retention,
		"cleanup.policy": &cleanup,
	}
}
