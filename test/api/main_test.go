//go:build e2e

package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

var (
	baseURL = envOr("PERSONAS_API_URL", "http://localhost:8000")
	client  = &http.Client{Timeout: 10 * time.Second}
)

// APIResponse represents the API response structure
type APIResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Details json.RawMessage `json:"details,omitempty"`
}

// TestResponse wraps the API response for testing
type TestResponse struct {
	Code    int
	Status  string
	Message string
	Data    map[string]interface{}
	RawData string
	Details map[string]interface{}
}

func (r TestResponse) IsSuccess() bool {
	return r.Status == "success"
}

func (r TestResponse) GetString(key string) string {
	if v, ok := r.Data[key].(string); ok {
		return v
	}
	return ""
}

func (r TestResponse) GetID(key string) int64 {
	if v, ok := r.Data[key].(float64); ok {
		return int64(v)
	}
	return 0
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func checkAPIServer() error {
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health returned %d", resp.StatusCode)
	}
	return nil
}

func TestMain(m *testing.M) {
	maxRetries := 5
	for i := 0; i < maxRetries; i++ {
		err := checkAPIServer()
		if err == nil {
			break
		}
		if i == maxRetries-1 {
			fmt.Printf("Error: %v\nMake sure the API server is running at %s\n", err, baseURL)
			os.Exit(1)
		}
		fmt.Printf("Waiting for API server (attempt %d/%d)...\n", i+1, maxRetries)
		time.Sleep(2 * time.Second)
	}

	os.Exit(m.Run())
}

func makeRequest(method, path string, body interface{}) TestResponse {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return TestResponse{Status: "error", Message: err.Error()}
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, baseURL+"/api/v1"+path, reader)
	if err != nil {
		return TestResponse{Status: "error", Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return TestResponse{Status: "error", Message: err.Error()}
	}
	defer resp.Body.Close()

	var apiResp APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return TestResponse{Code: resp.StatusCode, Status: "error", Message: err.Error()}
	}

	out := TestResponse{
		Code:    resp.StatusCode,
		Status:  apiResp.Status,
		Message: apiResp.Message,
		RawData: string(apiResp.Data),
	}
	_ = json.Unmarshal(apiResp.Data, &out.Data)
	_ = json.Unmarshal(apiResp.Details, &out.Details)
	return out
}

// uniqueDocument returns a document number unlikely to exist already.
func uniqueDocument() string {
	return fmt.Sprintf("E2E%d", time.Now().UnixNano()%1_000_000_000_000)
}
