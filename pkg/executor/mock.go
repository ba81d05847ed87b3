package executor

import (
	"context"

	"github.com/owliabot/ais-sub001/pkg/docs"
)

// MockEvmClient is an in-memory EvmClient for tests and dry runs. It is
// not a production client; see EvmClient's doc comment.
type MockEvmClient struct {
	CallResult     interface{}
	ReceiptStatus  interface{} // NewMockEvmClient sets "0x1" (success); nil is also treated as success
}

func NewMockEvmClient() *MockEvmClient {
	return &MockEvmClient{ReceiptStatus: "0x1"}
}

func (m *MockEvmClient) Call(ctx context.Context, chain, contract, method string, args map[string]interface{}) (interface{}, error) {
	return m.CallResult, nil
}

func (m *MockEvmClient) SendTransaction(ctx context.Context, chain, contract, method string, args map[string]interface{}, value interface{}) (map[string]interface{}, error) {
	return map[string]interface{}{"status": m.ReceiptStatus, "transactionHash": "0xmock"}, nil
}

func (m *MockEvmClient) MultiCall(ctx context.Context, chain string, calls []docs.CompositeStep) ([]interface{}, error) {
	out := make([]interface{}, len(calls))
	for i := range calls {
		out[i] = m.CallResult
	}
	return out, nil
}

// MockSolanaClient is an in-memory SolanaClient for tests and dry runs.
type MockSolanaClient struct {
	CallResult interface{}
}

func NewMockSolanaClient() *MockSolanaClient {
	return &MockSolanaClient{}
}

func (m *MockSolanaClient) Call(ctx context.Context, chain, program, instruction string, accounts []interface{}) (interface{}, error) {
	return m.CallResult, nil
}

func (m *MockSolanaClient) SendInstruction(ctx context.Context, chain, program, instruction string, accounts []interface{}) (map[string]interface{}, error) {
	return map[string]interface{}{"value": map[string]interface{}{"err": nil}}, nil
}
