package idempotency

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// CanonicalJSON converts a value to deterministic JSON.
// Structs are flattened through a generic decode so that field order and map
// order never change the output; encoding/json sorts map keys on the way out.
func CanonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("failed to normalize value: %w", err)
	}

	data, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return data, nil
}

// IntentKey creates an idempotency key for one caller intent within a call
// Format: ik = SHA256(call_id + '\n' + intent + '\n' + canonical_json(payload))
// Returns: "ik:" + hex-encoded SHA256
func IntentKey(callID, intent string, payload any) (string, error) {
	payloadJSON, err := CanonicalJSON(payload)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize payload: %w", err)
	}

	hashInput := callID + "\n" + intent + "\n" + string(payloadJSON)
	hash := sha256.Sum256([]byte(hashInput))

	return "ik:" + hex.EncodeToString(hash[:]), nil
}
