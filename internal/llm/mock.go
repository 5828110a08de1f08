package llm

import "context"

// MockProvider is a test double that returns canned responses.
type MockProvider struct {
	Response string
	Err      error
	// Block makes Complete wait for ctx to end, simulating a hung remote.
	Block bool

	Calls       int
	LastRequest *Request
}

func (m *MockProvider) Name() string { return "mock" }

func (m *MockProvider) Complete(ctx context.Context, req *Request) (string, error) {
	m.Calls++
	m.LastRequest = req
	if m.Block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return m.Response, m.Err
}
