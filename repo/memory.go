package repo

import (
	"context"
	"sync"

	"github.com/shono-io/funcship/sdk"
)

// NewMemoryRepository keeps deployments for the lifetime of the process. It
// is used when no ledger server is configured.
func NewMemoryRepository() Repository {
	return &memoryRepository{deployments: map[sdk.Stage][]Deployment{}}
}

type memoryRepository struct {
	mu          sync.Mutex
	deployments map[sdk.Stage][]Deployment
	revision    uint64
}

func (m *memoryRepository) Record(_ context.Context, d Deployment) error {
	stage, err := sdk.ParseStage(d.Stage)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.revision++
	d.Revision = m.revision
	m.deployments[stage] = append(m.deployments[stage], d)
	return nil
}

func (m *memoryRepository) Latest(_ context.Context, stage sdk.Stage) (*Deployment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ds := m.deployments[stage]
	if len(ds) == 0 {
		return nil, nil
	}
	d := ds[len(ds)-1]
	return &d, nil
}

func (m *memoryRepository) History(_ context.Context, stage sdk.Stage) ([]Deployment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]Deployment(nil), m.deployments[stage]...), nil
}

func (m *memoryRepository) Close() error {
	return nil
}
