package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// Certificate is a signed-by-hash attestation attached to a patch, fork,
// escalation or containment event — it can be carried in an Entry or
// handed back to a caller for display.
type Certificate struct {
	CertID       string
	Event        string
	OriginStage  *int
	SimulationID string
	DataSnapshot map[string]any
	Persona      string
	Timestamp    time.Time
	CertHash     string
}

// MakeCertificate builds a certificate over a canonical-JSON encoding of
// its own payload, so any later re-derivation of the hash from the
// payload fields proves the certificate wasn't altered.
func MakeCertificate(event string, originStage *int, data map[string]any, simulationID, persona string) Certificate {
	cert := Certificate{
		CertID:       uuid.New().String(),
		Event:        event,
		OriginStage:  originStage,
		SimulationID: simulationID,
		DataSnapshot: data,
		Persona:      persona,
		Timestamp:    time.Now(),
	}

	payload := map[string]any{
		"cert_id":       cert.CertID,
		"event":         cert.Event,
		"origin_layer":  cert.OriginStage,
		"simulation_id": cert.SimulationID,
		"data_snapshot": cert.DataSnapshot,
		"persona":       cert.Persona,
		"timestamp":     cert.Timestamp.UnixNano(),
	}
	data2, err := canonicalJSON(payload)
	if err != nil {
		data2 = []byte(cert.CertID)
	}
	sum := sha256.Sum256(data2)
	cert.CertHash = hex.EncodeToString(sum[:])
	return cert
}

// AsMap renders the certificate as a plain map for embedding in an Entry
// or serializing over the wire.
func (c Certificate) AsMap() map[string]any {
	return map[string]any{
		"cert_id":       c.CertID,
		"event":         c.Event,
		"origin_layer":  c.OriginStage,
		"simulation_id": c.SimulationID,
		"data_snapshot": c.DataSnapshot,
		"persona":       c.Persona,
		"timestamp":     c.Timestamp,
		"cert_hash":     c.CertHash,
	}
}
