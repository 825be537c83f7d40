package docker

import (
	"context"
	"strings"
	"sync"
)

// MockClient is an in-memory Client for tests.
type MockClient struct {
	mu         sync.Mutex
	containers []mockContainer
	pingErr    error
	listErr    error
}

type mockContainer struct {
	info   ContainerInfo
	labels map[string]string
}

// NewMockClient creates an empty MockClient.
func NewMockClient() *MockClient {
	return &MockClient{}
}

var _ Client = (*MockClient)(nil)

// AddContainer registers a container the mock will report.
func (m *MockClient) AddContainer(info ContainerInfo, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.containers = append(m.containers, mockContainer{info: info, labels: labels})
}

// SetPingError makes Ping fail.
func (m *MockClient) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingErr = err
}

// SetListError makes both list calls fail.
func (m *MockClient) SetListError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listErr = err
}

func (m *MockClient) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pingErr
}

func (m *MockClient) ListByLabel(ctx context.Context, label, value string) ([]ContainerInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []ContainerInfo
	for _, c := range m.containers {
		if c.labels[label] == value {
			out = append(out, c.info)
		}
	}
	return out, nil
}

func (m *MockClient) ListByNamePrefix(ctx context.Context, prefix string) ([]ContainerInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []ContainerInfo
	for _, c := range m.containers {
		if strings.HasPrefix(c.info.Name, prefix) {
			out = append(out, c.info)
		}
	}
	return out, nil
}
