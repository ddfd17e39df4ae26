package auditlog

import (
	"net"
	"testing"
	"time"
)

func TestComputeIntegritySHA256_Deterministic(t *testing.T) {
	occurredAt := time.Unix(1770000000, 0).UTC()
	event := Event{
		OccurredAt:   occurredAt,
		Actor:        "alice",
		Action:       "report_run.generated",
		ResourceType: "report_run",
		ResourceID:   "run-1",
		RequestID:    "req-123",
		IP:           net.ParseIP("192.0.2.1"),
		UserAgent:    "test-agent",
	}
	payloadJSON := []byte(`{"data_hash":"abc","packet_type":"insurance"}`)

	a, err := ComputeIntegritySHA256(event, payloadJSON)
	if err != nil {
		t.Fatalf("ComputeIntegritySHA256() err=%v", err)
	}
	b, err := ComputeIntegritySHA256(event, payloadJSON)
	if err != nil {
		t.Fatalf("ComputeIntegritySHA256() err=%v", err)
	}
	if a != b {
		t.Fatalf("integrity mismatch: %q vs %q", a, b)
	}
}

func TestComputeIntegritySHA256_ChangesOnPayload(t *testing.T) {
	occurredAt := time.Unix(1770000000, 0).UTC()
	event := Event{
		OccurredAt:   occurredAt,
		Actor:        "alice",
		Action:       "report_run.signed",
		ResourceType: "report_run",
		ResourceID:   "run-1",
	}

	a, err := ComputeIntegritySHA256(event, []byte(`{"signature_id":"sig-1"}`))
	if err != nil {
		t.Fatalf("ComputeIntegritySHA256() err=%v", err)
	}
	b, err := ComputeIntegritySHA256(event, []byte(`{"signature_id":"sig-2"}`))
	if err != nil {
		t.Fatalf("ComputeIntegritySHA256() err=%v", err)
	}
	if a == b {
		t.Fatalf("expected integrity to differ")
	}
}

func TestEventValidate(t *testing.T) {
	event := Event{
		OccurredAt:   time.Unix(1770000000, 0).UTC(),
		Actor:        "alice",
		Action:       "report_run.generated",
		ResourceType: "report_run",
		ResourceID:   "run-1",
	}
	if err := event.Validate(); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}

	missing := event
	missing.Actor = ""
	if err := missing.Validate(); err == nil {
		t.Fatalf("expected missing actor to be rejected")
	}
}
