package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/edutrack/commerce-backend/pkg/config"
)

func TestTopicResourceName(t *testing.T) {
	assert.Equal(t, "projects/edu/topics/domain", TopicResourceName("edu", "domain"))
	assert.Equal(t, "projects/x/topics/y", TopicResourceName("edu", "projects/x/topics/y"))
	assert.Equal(t, "", TopicResourceName("", "domain"))
	assert.Equal(t, "", TopicResourceName("edu", "  "))
}

func TestNewClientRequiresProjectAndTopic(t *testing.T) {
	_, err := NewClient(context.Background(), config.PubSubConfig{DomainTopic: "domain"}, nil)
	assert.ErrorIs(t, err, errProjectIDRequired)

	_, err = NewClient(context.Background(), config.PubSubConfig{ProjectID: "edu"}, nil)
	assert.ErrorIs(t, err, errNoTopic)
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	assert.Nil(t, c.Publisher("domain"))
	assert.NoError(t, c.Close())
	assert.Error(t, c.Ping(context.Background()))
}

func TestClientOptionsPickOneCredentialSource(t *testing.T) {
	assert.Empty(t, clientOptions(config.PubSubConfig{}))
	assert.Len(t, clientOptions(config.PubSubConfig{ApplicationCredentials: "/etc/gcp/key.json"}), 1)
	assert.Len(t, clientOptions(config.PubSubConfig{
		CredentialsJSON:        `{"type":"service_account"}`,
		ApplicationCredentials: "/etc/gcp/key.json",
	}), 1)
}
