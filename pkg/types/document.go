package types

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// DocumentType classifies the artifacts flowing through the registry
type DocumentType string

const (
	DocTypePRD           DocumentType = "prd"
	DocTypeArchitecture  DocumentType = "architecture"
	DocTypeStory         DocumentType = "story"
	DocTypeEpic          DocumentType = "epic"
	DocTypeTestPlan      DocumentType = "test_plan"
	DocTypeDesign        DocumentType = "design"
	DocTypeReport        DocumentType = "report"
	DocTypeChecklist     DocumentType = "checklist"
	DocTypeTemplate      DocumentType = "template"
	DocTypeWorkflow      DocumentType = "workflow"
	DocTypeMeetingNotes  DocumentType = "meeting_notes"
	DocTypeRetrospective DocumentType = "retrospective"
	DocTypeOther         DocumentType = "other"
)

// ValidDocumentType reports whether t is a known document type
func ValidDocumentType(t DocumentType) bool {
	switch t {
	case DocTypePRD, DocTypeArchitecture, DocTypeStory, DocTypeEpic,
		DocTypeTestPlan, DocTypeDesign, DocTypeReport, DocTypeChecklist,
		DocTypeTemplate, DocTypeWorkflow, DocTypeMeetingNotes,
		DocTypeRetrospective, DocTypeOther:
		return true
	}
	return false
}

// DocumentStatus represents the review/publication state of a document
type DocumentStatus string

const (
	DocStatusDraft      DocumentStatus = "draft"
	DocStatusInReview   DocumentStatus = "in_review"
	DocStatusApproved   DocumentStatus = "approved"
	DocStatusInProgress DocumentStatus = "in_progress"
	DocStatusCompleted  DocumentStatus = "completed"
	DocStatusArchived   DocumentStatus = "archived"
	DocStatusDeprecated DocumentStatus = "deprecated"
)

// ValidDocumentStatus reports whether s is a known document status
func ValidDocumentStatus(s DocumentStatus) bool {
	switch s {
	case DocStatusDraft, DocStatusInReview, DocStatusApproved,
		DocStatusInProgress, DocStatusCompleted, DocStatusArchived,
		DocStatusDeprecated:
		return true
	}
	return false
}

// AccessLevel orders registry permissions: READ < WRITE < ADMIN
type AccessLevel string

const (
	AccessRead  AccessLevel = "read"
	AccessWrite AccessLevel = "write"
	AccessAdmin AccessLevel = "admin"
)

// rank maps access levels onto their ordering
func (l AccessLevel) rank() int {
	switch l {
	case AccessRead:
		return 1
	case AccessWrite:
		return 2
	case AccessAdmin:
		return 3
	}
	return 0
}

// Covers reports whether holding l satisfies a requirement of required
func (l AccessLevel) Covers(required AccessLevel) bool {
	return l.rank() >= required.rank()
}

// Document is an immutable-by-version content record with metadata and ACLs.
// Invariants: ContentHash = SHA-256 of Content; Owner is in Writers and
// Writers is a subset of Readers; Version = parent.Version + 1.
type Document struct {
	ID            string
	Title         string
	Type          DocumentType
	Status        DocumentStatus
	Version       int
	ParentVersion string // id of the previous version, "" for the root
	CreatedBy     string
	ModifiedBy    string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Content       []byte // opaque to the registry
	ContentHash   string
	Owner         string
	Readers       map[string]bool
	Writers       map[string]bool
	WorkflowID    string
	TeamID        string
	Tags          []string
	Dependencies  []string
}

// HashContent computes the registry's content digest
func HashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// CanRead reports whether the agent may read the document
func (d *Document) CanRead(agentID string) bool {
	return agentID == d.Owner || d.Readers[agentID]
}

// CanWrite reports whether the agent may write the document
func (d *Document) CanWrite(agentID string) bool {
	return agentID == d.Owner || d.Writers[agentID]
}

// HasTag reports whether the document carries the given tag
func (d *Document) HasTag(tag string) bool {
	for _, t := range d.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// HandoffPriority orders handoffs in per-agent queues: 1 (LOW) to 4 (CRITICAL)
type HandoffPriority int

const (
	PriorityLow      HandoffPriority = 1
	PriorityMedium   HandoffPriority = 2
	PriorityHigh     HandoffPriority = 3
	PriorityCritical HandoffPriority = 4
)

// String renders the priority by its lowercase name
func (p HandoffPriority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	}
	return "unknown"
}

// HandoffState represents the handoff lifecycle
type HandoffState string

const (
	HandoffStatePending   HandoffState = "pending"
	HandoffStateDelivered HandoffState = "delivered"
	HandoffStateAccepted  HandoffState = "accepted"
	HandoffStateCompleted HandoffState = "completed"
	HandoffStateRejected  HandoffState = "rejected"
	HandoffStateCancelled HandoffState = "cancelled"
	HandoffStateFailed    HandoffState = "failed"
)

// Terminal reports whether the state admits no further transitions
func (s HandoffState) Terminal() bool {
	switch s {
	case HandoffStateCompleted, HandoffStateRejected,
		HandoffStateCancelled, HandoffStateFailed:
		return true
	}
	return false
}

// ExpectedAction tells the recipient what to do with the document
type ExpectedAction string

const (
	ActionReview   ExpectedAction = "review"
	ActionEdit     ExpectedAction = "edit"
	ActionUpdate   ExpectedAction = "update"
	ActionModify   ExpectedAction = "modify"
	ActionApprove  ExpectedAction = "approve"
	ActionComplete ExpectedAction = "complete"
	ActionCreate   ExpectedAction = "create"
)

// RequiresWrite reports whether the action implies WRITE access on accept
func (a ExpectedAction) RequiresWrite() bool {
	switch a {
	case ActionEdit, ActionUpdate, ActionModify, ActionComplete:
		return true
	}
	return false
}

// Handoff is a typed transfer of responsibility over a document between agents
type Handoff struct {
	ID                 string
	DocumentID         string
	FromAgent          string
	ToAgent            string
	Reason             string
	Instructions       string
	ExpectedAction     ExpectedAction
	Priority           HandoffPriority
	State              HandoffState
	CreatedAt          time.Time
	DeliveredAt        time.Time
	CompletedAt        time.Time
	Deadline           time.Time
	RequiresValidation bool
	ValidatorID        string
	ResultDocumentID   string
	RejectReason       string
	ValidationError    string
	WorkflowID         string
}

// Overdue reports whether the handoff is active and past its deadline
func (h *Handoff) Overdue(now time.Time) bool {
	return !h.State.Terminal() && !h.Deadline.IsZero() && now.After(h.Deadline)
}
