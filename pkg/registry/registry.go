package registry

import (
	"sync"
	"time"

	"github.com/cadre-dev/cadre/pkg/errdefs"
	"github.com/cadre-dev/cadre/pkg/events"
	"github.com/cadre-dev/cadre/pkg/log"
	"github.com/cadre-dev/cadre/pkg/metrics"
	"github.com/cadre-dev/cadre/pkg/storage"
	"github.com/cadre-dev/cadre/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// System is the reserved actor id that bypasses ACL checks. Components such
// as the handoff protocol act as System when granting access on transfer.
const System = ""

// Config holds registry construction options
type Config struct {
	Store  storage.Store  // optional write-behind snapshot store
	Broker *events.Broker // optional event broker
}

// Registry is the versioned artifact store. It is the single authority on
// document mutation; all mutating operations run under the write lock.
type Registry struct {
	mu sync.RWMutex

	documents map[string]*types.Document
	chains    map[string][]string // root id -> version ids in creation order
	roots     map[string]string   // any version id -> root id

	// Secondary indices for search
	typeIndex     map[types.DocumentType]map[string]bool
	workflowIndex map[string]map[string]bool
	teamIndex     map[string]map[string]bool

	store  storage.Store
	broker *events.Broker
	logger zerolog.Logger
}

// NewRegistry creates an empty document registry
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		documents:     make(map[string]*types.Document),
		chains:        make(map[string][]string),
		roots:         make(map[string]string),
		typeIndex:     make(map[types.DocumentType]map[string]bool),
		workflowIndex: make(map[string]map[string]bool),
		teamIndex:     make(map[string]map[string]bool),
		store:         cfg.Store,
		broker:        cfg.Broker,
		logger:        log.WithComponent("registry"),
	}
}

// CreateRequest describes a new document
type CreateRequest struct {
	Title      string
	Type       types.DocumentType
	Content    []byte
	Owner      string
	WorkflowID string
	TeamID     string
	Tags       []string
}

// Create stores a new root document owned by the requester
func (r *Registry) Create(req CreateRequest) (*types.Document, error) {
	if req.Title == "" {
		return nil, errdefs.InvalidArgument("document title is required")
	}
	if req.Owner == "" {
		return nil, errdefs.InvalidArgument("document owner is required")
	}
	if !types.ValidDocumentType(req.Type) {
		return nil, errdefs.InvalidArgument("unknown document type: %s", req.Type)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	doc := &types.Document{
		ID:          uuid.New().String(),
		Title:       req.Title,
		Type:        req.Type,
		Status:      types.DocStatusDraft,
		Version:     1,
		CreatedBy:   req.Owner,
		ModifiedBy:  req.Owner,
		CreatedAt:   now,
		UpdatedAt:   now,
		Content:     req.Content,
		ContentHash: types.HashContent(req.Content),
		Owner:       req.Owner,
		Readers:     map[string]bool{req.Owner: true},
		Writers:     map[string]bool{req.Owner: true},
		WorkflowID:  req.WorkflowID,
		TeamID:      req.TeamID,
		Tags:        append([]string(nil), req.Tags...),
	}

	r.index(doc)
	r.chains[doc.ID] = []string{doc.ID}
	r.roots[doc.ID] = doc.ID
	r.documents[doc.ID] = doc

	r.snapshot(doc)
	r.publish(events.EventDocumentCreated, doc.ID, doc.Title)
	metrics.DocumentsTotal.Inc()

	r.logger.Debug().Str("document_id", doc.ID).Str("type", string(doc.Type)).Msg("document created")
	return cloneDocument(doc), nil
}

// Get fetches a document. The requester must hold READ access.
func (r *Registry) Get(id, requester string) (*types.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	doc, ok := r.documents[id]
	if !ok {
		return nil, errdefs.NotFound("document %s", id)
	}
	if requester != System && !doc.CanRead(requester) {
		return nil, errdefs.PermissionDenied("agent %s cannot read document %s", requester, id)
	}
	return cloneDocument(doc), nil
}

// UpdateRequest describes a document update. When CreateVersion is set a new
// version is appended to the chain carrying the new content; otherwise only
// metadata mutates in place and Content must be nil (content bytes are
// immutable once stored).
type UpdateRequest struct {
	Title         string
	Status        types.DocumentStatus
	Tags          []string
	Content       []byte
	CreateVersion bool
}

// Update mutates document metadata or appends a new version
func (r *Registry) Update(id, requester string, req UpdateRequest) (*types.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok := r.documents[id]
	if !ok {
		return nil, errdefs.NotFound("document %s", id)
	}
	if requester != System && !doc.CanWrite(requester) {
		return nil, errdefs.PermissionDenied("agent %s cannot write document %s", requester, id)
	}
	if req.Status != "" && !types.ValidDocumentStatus(req.Status) {
		return nil, errdefs.InvalidArgument("unknown document status: %s", req.Status)
	}
	if req.Content != nil && !req.CreateVersion {
		return nil, errdefs.Precondition("content is immutable; set CreateVersion to change it")
	}

	rootID := r.roots[id]
	current := r.currentLocked(rootID)
	if current.ID != id {
		return nil, errdefs.Precondition("document %s is not the current version of %s", id, rootID)
	}

	now := time.Now().UTC()
	if req.CreateVersion {
		content := req.Content
		if content == nil {
			content = current.Content
		}
		next := cloneDocument(current)
		next.ID = uuid.New().String()
		next.Version = current.Version + 1
		next.ParentVersion = current.ID
		next.Content = content
		next.ContentHash = types.HashContent(content)
		next.ModifiedBy = requester
		next.CreatedAt = now
		next.UpdatedAt = now
		applyMetadata(next, req)

		r.documents[next.ID] = next
		r.roots[next.ID] = rootID
		r.chains[rootID] = append(r.chains[rootID], next.ID)
		r.index(next)

		r.snapshot(next)
		r.snapshotChain(rootID)
		r.publish(events.EventDocumentVersioned, next.ID, next.Title)
		metrics.DocumentVersionsTotal.Inc()
		return cloneDocument(next), nil
	}

	applyMetadata(doc, req)
	doc.ModifiedBy = requester
	doc.UpdatedAt = now
	r.snapshot(doc)
	return cloneDocument(doc), nil
}

func applyMetadata(doc *types.Document, req UpdateRequest) {
	if req.Title != "" {
		doc.Title = req.Title
	}
	if req.Status != "" {
		doc.Status = req.Status
	}
	if req.Tags != nil {
		doc.Tags = append([]string(nil), req.Tags...)
	}
}

// Archive marks the document archived. The requester must hold WRITE access.
func (r *Registry) Archive(id, requester string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok := r.documents[id]
	if !ok {
		return errdefs.NotFound("document %s", id)
	}
	if requester != System && !doc.CanWrite(requester) {
		return errdefs.PermissionDenied("agent %s cannot archive document %s", requester, id)
	}

	doc.Status = types.DocStatusArchived
	doc.UpdatedAt = time.Now().UTC()
	r.snapshot(doc)
	r.publish(events.EventDocumentArchived, doc.ID, doc.Title)
	return nil
}

// Versions returns the full version chain for any id in the chain,
// ordered by creation (root first).
func (r *Registry) Versions(id string) ([]*types.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rootID, ok := r.roots[id]
	if !ok {
		return nil, errdefs.NotFound("document %s", id)
	}
	chain := r.chains[rootID]
	docs := make([]*types.Document, 0, len(chain))
	for _, versionID := range chain {
		docs = append(docs, cloneDocument(r.documents[versionID]))
	}
	return docs, nil
}

// Current returns the newest version in the chain containing id
func (r *Registry) Current(id string) (*types.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rootID, ok := r.roots[id]
	if !ok {
		return nil, errdefs.NotFound("document %s", id)
	}
	return cloneDocument(r.currentLocked(rootID)), nil
}

func (r *Registry) currentLocked(rootID string) *types.Document {
	chain := r.chains[rootID]
	return r.documents[chain[len(chain)-1]]
}

// SearchQuery filters documents. Zero-valued fields are ignored.
type SearchQuery struct {
	Type       types.DocumentType
	Status     types.DocumentStatus
	WorkflowID string
	TeamID     string
	Tags       []string
	CreatedBy  string
}

// Search returns all documents matching the query. Indexed filters (type,
// workflow, team) are intersected first; remaining filters scan the result.
func (r *Registry) Search(q SearchQuery) []*types.Document {
	r.mu.RLock()
	defer r.mu.RUnlock()

	candidates := r.candidateSet(q)

	var out []*types.Document
	for id := range candidates {
		doc := r.documents[id]
		if q.Status != "" && doc.Status != q.Status {
			continue
		}
		if q.CreatedBy != "" && doc.CreatedBy != q.CreatedBy {
			continue
		}
		if !hasAllTags(doc, q.Tags) {
			continue
		}
		out = append(out, cloneDocument(doc))
	}
	return out
}

// candidateSet intersects the secondary indices that apply to the query,
// falling back to a full scan when none do.
func (r *Registry) candidateSet(q SearchQuery) map[string]bool {
	var sets []map[string]bool
	if q.Type != "" {
		sets = append(sets, r.typeIndex[q.Type])
	}
	if q.WorkflowID != "" {
		sets = append(sets, r.workflowIndex[q.WorkflowID])
	}
	if q.TeamID != "" {
		sets = append(sets, r.teamIndex[q.TeamID])
	}

	if len(sets) == 0 {
		all := make(map[string]bool, len(r.documents))
		for id := range r.documents {
			all[id] = true
		}
		return all
	}

	// Intersect starting from the smallest set
	smallest := sets[0]
	for _, s := range sets[1:] {
		if len(s) < len(smallest) {
			smallest = s
		}
	}
	out := make(map[string]bool, len(smallest))
	for id := range smallest {
		ok := true
		for _, s := range sets {
			if !s[id] {
				ok = false
				break
			}
		}
		if ok {
			out[id] = true
		}
	}
	return out
}

func hasAllTags(doc *types.Document, tags []string) bool {
	for _, tag := range tags {
		if !doc.HasTag(tag) {
			return false
		}
	}
	return true
}

// Grant gives an agent access to a document. Granting WRITE implies READ.
// The actor must be the System, the owner, or hold WRITE access.
func (r *Registry) Grant(docID, actor, agentID string, level types.AccessLevel) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok := r.documents[docID]
	if !ok {
		return errdefs.NotFound("document %s", docID)
	}
	if actor != System && !doc.CanWrite(actor) {
		return errdefs.PermissionDenied("agent %s cannot grant access on document %s", actor, docID)
	}

	switch level {
	case types.AccessRead:
		doc.Readers[agentID] = true
	case types.AccessWrite, types.AccessAdmin:
		doc.Readers[agentID] = true
		doc.Writers[agentID] = true
	default:
		return errdefs.InvalidArgument("unknown access level: %s", level)
	}
	r.snapshot(doc)
	return nil
}

// Revoke removes an agent's access at the given level and above.
// The owner's access cannot be revoked.
func (r *Registry) Revoke(docID, actor, agentID string, level types.AccessLevel) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok := r.documents[docID]
	if !ok {
		return errdefs.NotFound("document %s", docID)
	}
	if actor != System && !doc.CanWrite(actor) {
		return errdefs.PermissionDenied("agent %s cannot revoke access on document %s", actor, docID)
	}
	if agentID == doc.Owner {
		return errdefs.Precondition("cannot revoke access from document owner")
	}

	switch level {
	case types.AccessRead:
		delete(doc.Readers, agentID)
		delete(doc.Writers, agentID)
	case types.AccessWrite, types.AccessAdmin:
		delete(doc.Writers, agentID)
	default:
		return errdefs.InvalidArgument("unknown access level: %s", level)
	}
	r.snapshot(doc)
	return nil
}

// AddDependency records that docID depends on depID
func (r *Registry) AddDependency(docID, depID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok := r.documents[docID]
	if !ok {
		return errdefs.NotFound("document %s", docID)
	}
	if _, ok := r.documents[depID]; !ok {
		return errdefs.NotFound("dependency document %s", depID)
	}
	for _, d := range doc.Dependencies {
		if d == depID {
			return nil // already recorded
		}
	}
	doc.Dependencies = append(doc.Dependencies, depID)
	r.snapshot(doc)
	return nil
}

// Dependencies returns the direct dependencies of a document, or the full
// transitive closure. Cycles are tolerated; the BFS terminates by visited set.
func (r *Registry) Dependencies(docID string, transitive bool) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	doc, ok := r.documents[docID]
	if !ok {
		return nil, errdefs.NotFound("document %s", docID)
	}
	if !transitive {
		return append([]string(nil), doc.Dependencies...), nil
	}

	visited := map[string]bool{docID: true}
	var closure []string
	queue := append([]string(nil), doc.Dependencies...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true
		closure = append(closure, id)
		if dep, ok := r.documents[id]; ok {
			queue = append(queue, dep.Dependencies...)
		}
	}
	return closure, nil
}

// Statistics summarizes the registry contents
type Statistics struct {
	TotalDocuments int
	TotalVersions  int
	ByType         map[types.DocumentType]int
	ByStatus       map[types.DocumentStatus]int
}

// Stats computes registry statistics
func (r *Registry) Stats() Statistics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Statistics{
		TotalDocuments: len(r.chains),
		TotalVersions:  len(r.documents),
		ByType:         make(map[types.DocumentType]int),
		ByStatus:       make(map[types.DocumentStatus]int),
	}
	for _, doc := range r.documents {
		stats.ByType[doc.Type]++
		stats.ByStatus[doc.Status]++
	}
	return stats
}

// Load restores registry state from the snapshot store
func (r *Registry) Load() error {
	if r.store == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	docs, err := r.store.ListDocuments()
	if err != nil {
		return errdefs.Fatal("failed to load documents: %v", err)
	}
	for _, doc := range docs {
		r.documents[doc.ID] = doc
		r.index(doc)
	}

	// Rebuild chains from parent pointers: roots are versions with no parent
	for _, doc := range docs {
		if doc.ParentVersion != "" {
			continue
		}
		chain := []string{doc.ID}
		r.roots[doc.ID] = doc.ID
		for {
			child := r.childOf(chain[len(chain)-1])
			if child == "" {
				break
			}
			chain = append(chain, child)
			r.roots[child] = doc.ID
		}
		r.chains[doc.ID] = chain
	}
	return nil
}

func (r *Registry) childOf(id string) string {
	for _, doc := range r.documents {
		if doc.ParentVersion == id {
			return doc.ID
		}
	}
	return ""
}

func (r *Registry) index(doc *types.Document) {
	addIndex := func(idx map[string]map[string]bool, key string) {
		if key == "" {
			return
		}
		if idx[key] == nil {
			idx[key] = make(map[string]bool)
		}
		idx[key][doc.ID] = true
	}
	if r.typeIndex[doc.Type] == nil {
		r.typeIndex[doc.Type] = make(map[string]bool)
	}
	r.typeIndex[doc.Type][doc.ID] = true
	addIndex(r.workflowIndex, doc.WorkflowID)
	addIndex(r.teamIndex, doc.TeamID)
}

// snapshot persists a document write-behind. Persistence errors are fatal to
// the calling operation only in the sense that they are logged loudly; the
// in-memory state remains the source of truth.
func (r *Registry) snapshot(doc *types.Document) {
	if r.store == nil {
		return
	}
	if err := r.store.SaveDocument(doc); err != nil {
		r.logger.Error().Err(err).Str("document_id", doc.ID).Msg("failed to snapshot document")
	}
}

func (r *Registry) snapshotChain(rootID string) {
	if r.store == nil {
		return
	}
	if err := r.store.SaveVersionChain(rootID, r.chains[rootID]); err != nil {
		r.logger.Error().Err(err).Str("document_id", rootID).Msg("failed to snapshot version chain")
	}
}

func (r *Registry) publish(eventType events.EventType, docID, title string) {
	if r.broker == nil {
		return
	}
	r.broker.Publish(&events.Event{
		ID:      uuid.New().String(),
		Type:    eventType,
		Message: title,
		Metadata: map[string]string{
			"document_id": docID,
		},
	})
}

func cloneDocument(doc *types.Document) *types.Document {
	out := *doc
	out.Content = append([]byte(nil), doc.Content...)
	out.Readers = make(map[string]bool, len(doc.Readers))
	for k, v := range doc.Readers {
		out.Readers[k] = v
	}
	out.Writers = make(map[string]bool, len(doc.Writers))
	for k, v := range doc.Writers {
		out.Writers[k] = v
	}
	out.Tags = append([]string(nil), doc.Tags...)
	out.Dependencies = append([]string(nil), doc.Dependencies...)
	return &out
}
