package queue

import (
	"encoding/json"
	"testing"
)

// The wire format is shared with the upload service; field names are part of
// the contract.
func TestJobWireFormat(t *testing.T) {
	payload, err := json.Marshal(Job{Type: JobTypeOCR, DocumentID: "doc-42"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if got := string(payload); got != `{"type":"ocr","document_id":"doc-42"}` {
		t.Errorf("payload = %s", got)
	}

	var job Job
	if err := json.Unmarshal([]byte(`{"type":"ocr","document_id":"abc"}`), &job); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if job.Type != JobTypeOCR || job.DocumentID != "abc" {
		t.Errorf("job = %+v", job)
	}
}
