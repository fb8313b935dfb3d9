package kafka

import (
	"github.com/IBM/sarama"
	"github.com/xdg-go/scram"
)

// scramClient adapts xdg-go/scram to sarama's SASL/SCRAM handshake.
type scramClient struct {
	hashGenerator scram.HashGeneratorFcn
	conversation  *scram.ClientConversation
}

func newSCRAMSHA512Client() sarama.SCRAMClient {
	return &scramClient{hashGenerator: scram.SHA512}
}

func (client *scramClient) Begin(userName, password, authzID string) error {
	scramClient, err := client.hashGenerator.NewClient(userName, password, authzID)
	if err != nil {
		return err
	}

	client.conversation = scramClient.NewConversation()

	return nil
}

func (client *scramClient) Step(challenge string) (string, error) {
	return client.conversation.Step(challenge)
}

func (client *scramClient) Done() bool {
	return client.conversation.Done()
}
