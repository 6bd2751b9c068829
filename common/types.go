package common

import (
	"time"

	"github.com/google/uuid"
)

// Envelope carries one serialized ciphertext from sender to recipient.
type Envelope struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"senderId"`
	RecipientID string    `json:"recipientId"`
	Ciphertext  []byte    `json:"encryptedMessage"`
	Timestamp   time.Time `json:"timestamp"`
}

func NewEnvelope(senderID, recipientID string, ciphertext []byte) Envelope {
	return Envelope{
		ID:          uuid.NewString(),
		SenderID:    senderID,
		RecipientID: recipientID,
		Ciphertext:  ciphertext,
		Timestamp:   time.Now().UTC(),
	}
}
