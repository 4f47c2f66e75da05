package deploy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"daoctl/rpc"
)

// ParticipantRecord captures one generated participant: its principal, where
// its seed lives, and how much it committed to the swap.
type ParticipantRecord struct {
	Principal string `json:"principal"`
	SeedFile  string `json:"seed_file"`
	Amount    uint64 `json:"amount"`
}

// DeploymentRecord is the durable JSON summary written after a successful
// deployment. It holds everything a later invocation needs to address the
// deployed suite and re-load the participant identities.
type DeploymentRecord struct {
	CreatedAt     time.Time           `json:"created_at"`
	RPCEndpoint   string              `json:"rpc_endpoint"`
	ProposalID    uint64              `json:"proposal_id"`
	Owner         string              `json:"owner"`
	OwnerNeuronID uint64              `json:"owner_neuron_id"`
	Suite         rpc.SuiteServices   `json:"suite"`
	Participants  []ParticipantRecord `json:"participants"`
}

// WriteRecord persists the record atomically: written to a temp file in the
// same directory, then renamed over the destination.
func WriteRecord(path string, rec *DeploymentRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("deploy: encode deployment record: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("deploy: create record directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".deployment-*.json")
	if err != nil {
		return fmt.Errorf("deploy: create record temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("deploy: write deployment record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("deploy: close deployment record: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("deploy: publish deployment record: %w", err)
	}
	return nil
}

// ReadRecord loads a previously written deployment record.
func ReadRecord(path string) (*DeploymentRecord, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("deploy: read deployment record: %w", err)
	}
	rec := &DeploymentRecord{}
	if err := json.Unmarshal(raw, rec); err != nil {
		return nil, fmt.Errorf("deploy: parse deployment record %s: %w", path, err)
	}
	return rec, nil
}
