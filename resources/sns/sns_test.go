package sns

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lex00/cdkutils-go/stack"
)

func TestGetTopic(t *testing.T) {
	tests := []struct {
		name      string
		props     TopicProps
		id        string
		topicName string
		fifo      bool
	}{
		{"defaults", TopicProps{}, "Topicalerts", "alerts", false},
		{"fifo", TopicProps{Fifo: true}, "Topicalerts", "alerts.fifo", true},
		{"custom id", TopicProps{ID: "Alerts", DisplayName: "Alerts"}, "Alerts", "alerts", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := stack.New("etl", stack.Environment{})
			topic, err := GetTopic(st, "alerts", tt.props)
			require.NoError(t, err)
			assert.Equal(t, tt.id, topic.ID())

			tmpl, err := st.Synth()
			require.NoError(t, err)
			def := tmpl.Resources[topic.LogicalID()]
			assert.Equal(t, "AWS::SNS::Topic", def.Type)
			assert.Equal(t, tt.topicName, def.Properties["TopicName"])
			if tt.fifo {
				assert.Equal(t, true, def.Properties["FifoTopic"])
			} else {
				assert.NotContains(t, def.Properties, "FifoTopic")
			}
		})
	}
}

func TestGetTopic_DisplayNameDefault(t *testing.T) {
	st := stack.New("etl", stack.Environment{})
	topic, err := GetTopic(st, "alerts", TopicProps{})
	require.NoError(t, err)
	assert.Equal(t, "Subscription Topic", topic.DisplayName)
}

func TestTopicFromName(t *testing.T) {
	st := stack.New("etl", stack.Environment{Account: "123456789012", Region: "eu-central-1"})
	topic, err := TopicFromName(st, "alerts", "")
	require.NoError(t, err)
	assert.Equal(t, "arn:aws:sns:eu-central-1:123456789012:alerts", topic.Arn())
	assert.Equal(t, "Topicalerts", topic.ID())

	_, err = GetTopic(st, "alerts", TopicProps{})
	assert.ErrorIs(t, err, stack.ErrDuplicateID)
}
