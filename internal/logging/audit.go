// Package logging provides the contract audit trail: one JSON object per line
// in <data_dir>/audit.jsonl recording who did what to which contract.
package logging

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// =============================================================================
// AUDIT EVENT TYPES
// =============================================================================

// AuditEventType defines the type of audit event
type AuditEventType string

const (
	// Contract lifecycle
	AuditContractCreated    AuditEventType = "contract_created"
	AuditContractUpdated    AuditEventType = "contract_updated"
	AuditContractGenerated  AuditEventType = "contract_generated"
	AuditContractSigned     AuditEventType = "contract_signed"
	AuditContractDeleted    AuditEventType = "contract_deleted"
	AuditContractDuplicated AuditEventType = "contract_duplicated"
	AuditContractExported   AuditEventType = "contract_exported"
	AuditContractViewed     AuditEventType = "contract_viewed" // share link opened

	// Rejected operations
	AuditSignatureRejected AuditEventType = "signature_rejected"

	// Session events
	AuditLogin      AuditEventType = "login"
	AuditLoginFail  AuditEventType = "login_failed"
	AuditLogout     AuditEventType = "logout"
	AuditRegistered AuditEventType = "registered"
)

// AuditEvent represents a structured audit log entry.
type AuditEvent struct {
	Timestamp  int64                  `json:"ts"` // Unix milliseconds
	EventType  AuditEventType         `json:"event"`
	ActorID    string                 `json:"actor,omitempty"` // user id, or "client" for share-link actions
	ContractID string                 `json:"contract,omitempty"`
	Status     string                 `json:"status,omitempty"` // contract status after the event
	Version    int                    `json:"version,omitempty"`
	RemoteAddr string                 `json:"remote,omitempty"`
	Success    bool                   `json:"success"`
	Error      string                 `json:"error,omitempty"`
	Message    string                 `json:"msg,omitempty"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}

// Time returns the event timestamp.
func (e AuditEvent) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// =============================================================================
// AUDIT LOGGER
// =============================================================================

// AuditLogger appends audit events to a JSONL file. A nil *AuditLogger
// discards events, which keeps call sites free of nil checks.
type AuditLogger struct {
	mu   sync.Mutex
	path string
	file *os.File
	now  func() time.Time
}

// OpenAudit opens (creating if needed) the audit file at path.
func OpenAudit(path string) (*AuditLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	return &AuditLogger{path: path, file: file, now: time.Now}, nil
}

// Path returns the audit file location.
func (a *AuditLogger) Path() string {
	if a == nil {
		return ""
	}
	return a.path
}

// Close closes the audit file.
func (a *AuditLogger) Close() error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	return err
}

// Log writes an audit event. Failures go to the contracts debug log; the
// audit trail never fails the operation being audited.
func (a *AuditLogger) Log(event AuditEvent) {
	if a == nil {
		return
	}
	if event.Timestamp == 0 {
		event.Timestamp = a.now().UnixMilli()
	}

	data, err := json.Marshal(event)
	if err != nil {
		ContractsWarn("audit: marshal %s: %v", event.EventType, err)
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return
	}
	if _, err := a.file.Write(append(data, '\n')); err != nil {
		ContractsWarn("audit: write %s: %v", event.EventType, err)
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// ContractEvent records a successful contract operation.
func (a *AuditLogger) ContractEvent(t AuditEventType, actorID, contractID, status string, version int) {
	a.Log(AuditEvent{
		EventType:  t,
		ActorID:    actorID,
		ContractID: contractID,
		Status:     status,
		Version:    version,
		Success:    true,
	})
}

// Rejected records an operation refused by validation or the state machine.
func (a *AuditLogger) Rejected(t AuditEventType, actorID, contractID string, err error) {
	ev := AuditEvent{
		EventType:  t,
		ActorID:    actorID,
		ContractID: contractID,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	a.Log(ev)
}

// SessionEvent records login/logout activity.
func (a *AuditLogger) SessionEvent(t AuditEventType, actorID, remote string, success bool) {
	a.Log(AuditEvent{
		EventType:  t,
		ActorID:    actorID,
		RemoteAddr: remote,
		Success:    success,
	})
}

// History returns the events recorded for contractID, oldest first.
func (a *AuditLogger) History(contractID string) ([]AuditEvent, error) {
	if a == nil {
		return nil, nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return ReadAudit(a.path, contractID)
}

// ReadAudit scans an audit file and returns events for contractID. An empty
// contractID returns every event. Malformed lines are skipped.
func ReadAudit(path, contractID string) ([]AuditEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var events []AuditEvent
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		var ev AuditEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			continue
		}
		if contractID == "" || ev.ContractID == contractID {
			events = append(events, ev)
		}
	}
	return events, scanner.Err()
}
