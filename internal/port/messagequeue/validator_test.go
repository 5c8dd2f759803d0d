package messagequeue

import (
	"strings"
	"testing"
)

func TestValidateValidTaskSubmit(t *testing.T) {
	data := []byte(`{"required_capability":"go","priority":2,"payload":{"repo":"demo"}}`)
	if err := Validate(SubjectTaskSubmit, data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateValidTaskResult(t *testing.T) {
	data := []byte(`{"task_id":"t1","status":"completed","agent_id":"a1","duration_ms":420,"error":""}`)
	if err := Validate(SubjectTaskResult, data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateValidTaskCancel(t *testing.T) {
	data := []byte(`{"task_id":"t1"}`)
	if err := Validate(SubjectTaskCancel, data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateValidAgentStatus(t *testing.T) {
	data := []byte(`{"agent_id":"a1","pool":"builders","status":"idle"}`)
	if err := Validate(SubjectAgentStatus, data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateValidRunnerDone(t *testing.T) {
	data := []byte(`{"task_id":"t1","agent_id":"a1","success":true,"error":""}`)
	if err := Validate(SubjectRunnerDone, data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRunnerDispatchSubject(t *testing.T) {
	// runners.dispatch.{agent_id} carries the per-agent dispatch schema.
	data := []byte(`{"task_id":"t1","agent_id":"a1","required_capability":"go","payload":{}}`)
	if err := Validate(SubjectRunnerDispatch+".a1", data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRunnerCancelSubject(t *testing.T) {
	data := []byte(`{"task_id":"t1","agent_id":"a1"}`)
	if err := Validate(SubjectRunnerCancel+".a1", data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateUnknownSubject(t *testing.T) {
	// Unknown subjects should pass (future-proof).
	data := []byte(`{"foo":"bar"}`)
	if err := Validate("unknown.subject", data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateInvalidJSON(t *testing.T) {
	data := []byte(`{not valid json`)
	err := Validate(SubjectTaskSubmit, data)
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
	if !strings.Contains(err.Error(), "invalid JSON") {
		t.Fatalf("expected 'invalid JSON' in error, got: %v", err)
	}
}

func TestValidateInvalidSchema(t *testing.T) {
	// Valid JSON but not unmarshalable into TaskSubmitPayload.
	data := []byte(`"just a string"`)
	err := Validate(SubjectTaskSubmit, data)
	if err == nil {
		t.Fatal("expected schema validation error")
	}
	if !strings.Contains(err.Error(), "schema validation failed") {
		t.Fatalf("expected 'schema validation failed' in error, got: %v", err)
	}
}

func TestValidateEmptyJSON(t *testing.T) {
	// Empty object is valid JSON and valid for all schemas (all fields are zero-value).
	data := []byte(`{}`)
	if err := Validate(SubjectTaskSubmit, data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
