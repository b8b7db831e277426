package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

type WebhookDelivery struct {
	ID             string
	TenantID       string
	SubscriptionID string
	EventType      string
	URL            string
	Secret         string
	Payload        []byte
	Status         string
	Attempts       int
}

// DeliveryInfo is the admin view of a queued delivery.
type DeliveryInfo struct {
	ID            string     `json:"id"`
	EventType     string     `json:"eventType"`
	Status        string     `json:"status"`
	Attempts      int        `json:"attempts"`
	URL           string     `json:"url"`
	NextAttemptAt *time.Time `json:"nextAttemptAt,omitempty"`
	LastError     string     `json:"lastError,omitempty"`
	ResponseCode  int        `json:"responseCode,omitempty"`
	LatencyMs     int        `json:"latencyMs,omitempty"`
}

// DeadLetter is a delivery that exhausted its attempts.
type DeadLetter struct {
	ID           string    `json:"id"`
	DeliveryID   string    `json:"deliveryId"`
	EventType    string    `json:"eventType"`
	URL          string    `json:"url"`
	LastError    string    `json:"lastError,omitempty"`
	Attempts     int       `json:"attempts"`
	ResponseCode int       `json:"responseCode,omitempty"`
	LatencyMs    int       `json:"latencyMs,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// computeDedupKey uses the payload's "id" field, or a short hash of the body.
func computeDedupKey(payload []byte) string {
	var m map[string]any
	if json.Unmarshal(payload, &m) == nil {
		if v, ok := m["id"].(string); ok && v != "" {
			return v
		}
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:8])
}
