package registry

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/cadre-dev/cadre/pkg/errdefs"
	"github.com/cadre-dev/cadre/pkg/types"
	"gopkg.in/yaml.v3"
)

// ExportFormat selects the document export encoding
type ExportFormat string

const (
	FormatJSON     ExportFormat = "json"
	FormatYAML     ExportFormat = "yaml"
	FormatMarkdown ExportFormat = "markdown"
)

// exportDocument is the serialized form of a document. Timestamps are
// RFC3339 UTC; enums serialize by their lowercase value.
type exportDocument struct {
	ID            string   `json:"id" yaml:"id"`
	Title         string   `json:"title" yaml:"title"`
	Type          string   `json:"type" yaml:"type"`
	Status        string   `json:"status" yaml:"status"`
	Version       int      `json:"version" yaml:"version"`
	ParentVersion string   `json:"parent_version,omitempty" yaml:"parent_version,omitempty"`
	CreatedBy     string   `json:"created_by" yaml:"created_by"`
	ModifiedBy    string   `json:"modified_by" yaml:"modified_by"`
	CreatedAt     string   `json:"created_at" yaml:"created_at"`
	UpdatedAt     string   `json:"updated_at" yaml:"updated_at"`
	Owner         string   `json:"owner" yaml:"owner"`
	Readers       []string `json:"readers" yaml:"readers"`
	Writers       []string `json:"writers" yaml:"writers"`
	WorkflowID    string   `json:"workflow_id,omitempty" yaml:"workflow_id,omitempty"`
	TeamID        string   `json:"team_id,omitempty" yaml:"team_id,omitempty"`
	Tags          []string `json:"tags,omitempty" yaml:"tags,omitempty"`
	Dependencies  []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	ContentHash   string   `json:"content_hash" yaml:"content_hash"`
	Content       string   `json:"content" yaml:"content"`
	Binary        bool     `json:"binary,omitempty" yaml:"binary,omitempty"`
}

func toExport(doc *types.Document) exportDocument {
	out := exportDocument{
		ID:            doc.ID,
		Title:         doc.Title,
		Type:          string(doc.Type),
		Status:        string(doc.Status),
		Version:       doc.Version,
		ParentVersion: doc.ParentVersion,
		CreatedBy:     doc.CreatedBy,
		ModifiedBy:    doc.ModifiedBy,
		CreatedAt:     doc.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     doc.UpdatedAt.UTC().Format(time.RFC3339),
		Owner:         doc.Owner,
		Readers:       sortedKeys(doc.Readers),
		Writers:       sortedKeys(doc.Writers),
		WorkflowID:    doc.WorkflowID,
		TeamID:        doc.TeamID,
		Tags:          doc.Tags,
		Dependencies:  doc.Dependencies,
		ContentHash:   doc.ContentHash,
	}
	if utf8.Valid(doc.Content) {
		out.Content = string(doc.Content)
	} else {
		out.Content = base64.StdEncoding.EncodeToString(doc.Content)
		out.Binary = true
	}
	return out
}

func fromExport(exp exportDocument) (*types.Document, error) {
	createdAt, err := time.Parse(time.RFC3339, exp.CreatedAt)
	if err != nil {
		return nil, errdefs.InvalidArgument("bad created_at timestamp: %v", err)
	}
	updatedAt, err := time.Parse(time.RFC3339, exp.UpdatedAt)
	if err != nil {
		return nil, errdefs.InvalidArgument("bad updated_at timestamp: %v", err)
	}

	content := []byte(exp.Content)
	if exp.Binary {
		content, err = base64.StdEncoding.DecodeString(exp.Content)
		if err != nil {
			return nil, errdefs.InvalidArgument("bad binary content: %v", err)
		}
	}

	doc := &types.Document{
		ID:            exp.ID,
		Title:         exp.Title,
		Type:          types.DocumentType(exp.Type),
		Status:        types.DocumentStatus(exp.Status),
		Version:       exp.Version,
		ParentVersion: exp.ParentVersion,
		CreatedBy:     exp.CreatedBy,
		ModifiedBy:    exp.ModifiedBy,
		CreatedAt:     createdAt,
		UpdatedAt:     updatedAt,
		Content:       content,
		ContentHash:   exp.ContentHash,
		Owner:         exp.Owner,
		Readers:       toSet(exp.Readers),
		Writers:       toSet(exp.Writers),
		WorkflowID:    exp.WorkflowID,
		TeamID:        exp.TeamID,
		Tags:          exp.Tags,
		Dependencies:  exp.Dependencies,
	}
	if !types.ValidDocumentType(doc.Type) {
		return nil, errdefs.InvalidArgument("unknown document type: %s", doc.Type)
	}
	if doc.ContentHash != types.HashContent(doc.Content) {
		return nil, errdefs.Validation("content hash mismatch for document %s", doc.ID)
	}
	return doc, nil
}

// Export serializes a document. The requester must hold READ access.
func (r *Registry) Export(id, requester string, format ExportFormat) ([]byte, error) {
	doc, err := r.Get(id, requester)
	if err != nil {
		return nil, err
	}

	exp := toExport(doc)
	switch format {
	case FormatJSON:
		return json.MarshalIndent(exp, "", "  ")
	case FormatYAML:
		return yaml.Marshal(exp)
	case FormatMarkdown:
		return renderMarkdown(exp)
	default:
		return nil, errdefs.InvalidArgument("unknown export format: %s", format)
	}
}

// renderMarkdown emits YAML front-matter followed by the content body.
// Binary content is rendered as a fenced code block.
func renderMarkdown(exp exportDocument) ([]byte, error) {
	meta := exp
	content := meta.Content
	meta.Content = ""

	front, err := yaml.Marshal(meta)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(front)
	buf.WriteString("---\n\n")
	if exp.Binary {
		fmt.Fprintf(&buf, "```base64\n%s\n```\n", content)
	} else {
		buf.WriteString(content)
	}
	return buf.Bytes(), nil
}

// Import registers a previously exported document. Only JSON and YAML are
// supported; the version chain entry is created for root documents.
func (r *Registry) Import(format ExportFormat, data []byte) (*types.Document, error) {
	var exp exportDocument
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &exp); err != nil {
			return nil, errdefs.InvalidArgument("bad JSON document: %v", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &exp); err != nil {
			return nil, errdefs.InvalidArgument("bad YAML document: %v", err)
		}
	default:
		return nil, errdefs.InvalidArgument("unsupported import format: %s", format)
	}

	doc, err := fromExport(exp)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.documents[doc.ID]; exists {
		return nil, errdefs.Precondition("document %s already exists", doc.ID)
	}
	r.documents[doc.ID] = doc
	r.index(doc)
	if doc.ParentVersion == "" {
		r.chains[doc.ID] = []string{doc.ID}
		r.roots[doc.ID] = doc.ID
	} else if rootID, ok := r.roots[doc.ParentVersion]; ok {
		r.chains[rootID] = append(r.chains[rootID], doc.ID)
		r.roots[doc.ID] = rootID
	}
	r.snapshot(doc)
	return cloneDocument(doc), nil
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func toSet(keys []string) map[string]bool {
	set := make(map[string]bool, len(keys))
	for _, k := range keys {
		set[k] = true
	}
	return set
}
