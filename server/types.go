package server

import "signal-sessions/codec"

type RegisterRequest struct {
	UserID string `json:"userId"`
}

type BundleResponse struct {
	UserID       string                       `json:"userId"`
	PreKeyBundle codec.SerializedPreKeyBundle `json:"preKeyBundle"`
}

type SessionRequest struct {
	UserID       string                        `json:"userId"`
	RecipientID  string                        `json:"recipientId"`
	PreKeyBundle *codec.SerializedPreKeyBundle `json:"preKeyBundle"`
}

type SessionResponse struct {
	Success bool `json:"success"`
}

type SendRequest struct {
	SenderID    string `json:"senderId"`
	RecipientID string `json:"recipientId"`
	Message     string `json:"message"`
}

// SendResponse carries the serialized ciphertext, base64 encoded by encoding/json.
type SendResponse struct {
	ID               string `json:"id"`
	EncryptedMessage []byte `json:"encryptedMessage"`
	Delivered        bool   `json:"delivered"`
}

type ReceiveRequest struct {
	RecipientID      string `json:"recipientId"`
	SenderID         string `json:"senderId"`
	EncryptedMessage []byte `json:"encryptedMessage"`
}

type ReceiveResponse struct {
	Message string `json:"message"`
}

type FingerprintResponse struct {
	UserID      string `json:"userId"`
	Fingerprint string `json:"fingerprint"`
}

type HealthResponse struct {
	Status     string            `json:"status"`
	Users      int               `json:"users"`
	PoolErrors map[string]string `json:"poolErrors,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
