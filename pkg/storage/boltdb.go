package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/cadre-dev/cadre/pkg/errdefs"
	"github.com/cadre-dev/cadre/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketAgents            = []byte("agents")
	bucketDocuments         = []byte("documents")
	bucketVersionChains     = []byte("document_versions")
	bucketHandoffs          = []byte("handoffs")
	bucketTeams             = []byte("teams")
	bucketTeamArchive       = []byte("team_archive")
	bucketWorkflows         = []byte("workflows")
	bucketWorkflowInstances = []byte("workflow_instances")
	bucketGateReports       = []byte("gate_reports")
)

// BoltStore implements Store interface using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "cadre.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, errdefs.Fatal("failed to open database: %v", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketAgents,
			bucketDocuments,
			bucketVersionChains,
			bucketHandoffs,
			bucketTeams,
			bucketTeamArchive,
			bucketWorkflows,
			bucketWorkflowInstances,
			bucketGateReports,
		}

		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// put marshals v as JSON and stores it under id in the bucket
func (s *BoltStore) put(bucket []byte, id string, v interface{}) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), data)
	})
}

// get unmarshals the value stored under id in the bucket into v
func (s *BoltStore) get(bucket []byte, id string, v interface{}) error {
	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		data := b.Get([]byte(id))
		if data == nil {
			return errdefs.NotFound("%s: %s", bucket, id)
		}
		return json.Unmarshal(data, v)
	})
}

// delete removes the value stored under id in the bucket
func (s *BoltStore) delete(bucket []byte, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Delete([]byte(id))
	})
}

// Agent operations

func (s *BoltStore) SaveAgent(agent *types.Agent) error {
	return s.put(bucketAgents, agent.ID, agent)
}

func (s *BoltStore) GetAgent(id string) (*types.Agent, error) {
	var agent types.Agent
	if err := s.get(bucketAgents, id, &agent); err != nil {
		return nil, err
	}
	return &agent, nil
}

func (s *BoltStore) ListAgents() ([]*types.Agent, error) {
	var agents []*types.Agent
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAgents).ForEach(func(k, v []byte) error {
			var agent types.Agent
			if err := json.Unmarshal(v, &agent); err != nil {
				return err
			}
			agents = append(agents, &agent)
			return nil
		})
	})
	return agents, err
}

func (s *BoltStore) DeleteAgent(id string) error {
	return s.delete(bucketAgents, id)
}

// Document operations

func (s *BoltStore) SaveDocument(doc *types.Document) error {
	return s.put(bucketDocuments, doc.ID, doc)
}

func (s *BoltStore) GetDocument(id string) (*types.Document, error) {
	var doc types.Document
	if err := s.get(bucketDocuments, id, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *BoltStore) ListDocuments() ([]*types.Document, error) {
	var docs []*types.Document
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDocuments).ForEach(func(k, v []byte) error {
			var doc types.Document
			if err := json.Unmarshal(v, &doc); err != nil {
				return err
			}
			docs = append(docs, &doc)
			return nil
		})
	})
	return docs, err
}

func (s *BoltStore) DeleteDocument(id string) error {
	return s.delete(bucketDocuments, id)
}

// Version chain operations

func (s *BoltStore) SaveVersionChain(rootID string, versionIDs []string) error {
	return s.put(bucketVersionChains, rootID, versionIDs)
}

func (s *BoltStore) GetVersionChain(rootID string) ([]string, error) {
	var ids []string
	if err := s.get(bucketVersionChains, rootID, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// Handoff operations

func (s *BoltStore) SaveHandoff(handoff *types.Handoff) error {
	return s.put(bucketHandoffs, handoff.ID, handoff)
}

func (s *BoltStore) GetHandoff(id string) (*types.Handoff, error) {
	var handoff types.Handoff
	if err := s.get(bucketHandoffs, id, &handoff); err != nil {
		return nil, err
	}
	return &handoff, nil
}

func (s *BoltStore) ListHandoffs() ([]*types.Handoff, error) {
	var handoffs []*types.Handoff
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketHandoffs).ForEach(func(k, v []byte) error {
			var handoff types.Handoff
			if err := json.Unmarshal(v, &handoff); err != nil {
				return err
			}
			handoffs = append(handoffs, &handoff)
			return nil
		})
	})
	return handoffs, err
}

func (s *BoltStore) DeleteHandoff(id string) error {
	return s.delete(bucketHandoffs, id)
}

// Team operations

func (s *BoltStore) SaveTeam(team *types.Team) error {
	return s.put(bucketTeams, team.ID, team)
}

func (s *BoltStore) GetTeam(id string) (*types.Team, error) {
	var team types.Team
	if err := s.get(bucketTeams, id, &team); err != nil {
		return nil, err
	}
	return &team, nil
}

func (s *BoltStore) ListTeams() ([]*types.Team, error) {
	var teams []*types.Team
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTeams).ForEach(func(k, v []byte) error {
			var team types.Team
			if err := json.Unmarshal(v, &team); err != nil {
				return err
			}
			teams = append(teams, &team)
			return nil
		})
	})
	return teams, err
}

func (s *BoltStore) DeleteTeam(id string) error {
	return s.delete(bucketTeams, id)
}

// ArchiveTeam stores the full team snapshot taken at dissolution
func (s *BoltStore) ArchiveTeam(team *types.Team) error {
	return s.put(bucketTeamArchive, team.ID, team)
}

func (s *BoltStore) GetArchivedTeam(id string) (*types.Team, error) {
	var team types.Team
	if err := s.get(bucketTeamArchive, id, &team); err != nil {
		return nil, err
	}
	return &team, nil
}

func (s *BoltStore) ListArchivedTeams() ([]*types.Team, error) {
	var teams []*types.Team
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTeamArchive).ForEach(func(k, v []byte) error {
			var team types.Team
			if err := json.Unmarshal(v, &team); err != nil {
				return err
			}
			teams = append(teams, &team)
			return nil
		})
	})
	return teams, err
}

// Workflow operations

func (s *BoltStore) SaveWorkflow(def *types.WorkflowDefinition) error {
	return s.put(bucketWorkflows, def.ID, def)
}

func (s *BoltStore) GetWorkflow(id string) (*types.WorkflowDefinition, error) {
	var def types.WorkflowDefinition
	if err := s.get(bucketWorkflows, id, &def); err != nil {
		return nil, err
	}
	return &def, nil
}

func (s *BoltStore) ListWorkflows() ([]*types.WorkflowDefinition, error) {
	var defs []*types.WorkflowDefinition
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketWorkflows).ForEach(func(k, v []byte) error {
			var def types.WorkflowDefinition
			if err := json.Unmarshal(v, &def); err != nil {
				return err
			}
			defs = append(defs, &def)
			return nil
		})
	})
	return defs, err
}

func (s *BoltStore) SaveWorkflowInstance(instance *types.WorkflowInstance) error {
	return s.put(bucketWorkflowInstances, instance.ID, instance)
}

func (s *BoltStore) GetWorkflowInstance(id string) (*types.WorkflowInstance, error) {
	var instance types.WorkflowInstance
	if err := s.get(bucketWorkflowInstances, id, &instance); err != nil {
		return nil, err
	}
	return &instance, nil
}

func (s *BoltStore) ListWorkflowInstances() ([]*types.WorkflowInstance, error) {
	var instances []*types.WorkflowInstance
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketWorkflowInstances).ForEach(func(k, v []byte) error {
			var instance types.WorkflowInstance
			if err := json.Unmarshal(v, &instance); err != nil {
				return err
			}
			instances = append(instances, &instance)
			return nil
		})
	})
	return instances, err
}

func (s *BoltStore) DeleteWorkflowInstance(id string) error {
	return s.delete(bucketWorkflowInstances, id)
}

// Gate report operations

func (s *BoltStore) SaveGateReport(report *types.GateReport) error {
	return s.put(bucketGateReports, report.ID, report)
}

func (s *BoltStore) GetGateReport(id string) (*types.GateReport, error) {
	var report types.GateReport
	if err := s.get(bucketGateReports, id, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

func (s *BoltStore) ListGateReports() ([]*types.GateReport, error) {
	var reports []*types.GateReport
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketGateReports).ForEach(func(k, v []byte) error {
			var report types.GateReport
			if err := json.Unmarshal(v, &report); err != nil {
				return err
			}
			reports = append(reports, &report)
			return nil
		})
	})
	return reports, err
}
