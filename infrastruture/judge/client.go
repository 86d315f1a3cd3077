// Package judge is a thin client for the judge0 code-execution service. The
// service is consumed as-is over plain request/response; sandboxing and
// scheduling are its problem, not ours.
package judge

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/beka-birhanu/pairpad-api/service/i"
)

// UnsupportedLanguageID is the sentinel judge0 id for language names not in
// the supported set.
const UnsupportedLanguageID = -1

const defaultRequestTimeout = 30 * time.Second

// languageIDs maps editor language names to judge0 numeric language ids.
var languageIDs = map[string]int{
	"bash":       46,
	"c":          50,
	"cpp":        54,
	"csharp":     51,
	"ruby":       72,
	"go":         60,
	"java":       62,
	"javascript": 63,
	"kotlin":     78,
	"lua":        64,
	"perl":       85,
	"objectivec": 79,
	"php":        68,
	"python":     71,
	"r":          80,
	"rust":       73,
	"sql":        82,
	"swift":      83,
	"typescript": 74,
	"vbnet":      84,
}

// LanguageID resolves an editor language name to its judge0 id, or
// UnsupportedLanguageID when the name is unknown.
func LanguageID(language string) int {
	if id, ok := languageIDs[language]; ok {
		return id
	}
	return UnsupportedLanguageID
}

// Client submits code to a judge0 instance and reports its output.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a judge client against the given base URL.
func NewClient(baseURL string) i.CodeRunner {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: defaultRequestTimeout,
		},
	}
}

type submissionRequest struct {
	SourceCode string `json:"source_code"`
	LanguageID int    `json:"language_id"`
}

type submissionResponse struct {
	Stdout        string `json:"stdout"`
	Stderr        string `json:"stderr"`
	CompileOutput string `json:"compile_output"`
	Message       string `json:"message"`
	Time          string `json:"time"`
}

// Run submits code for execution and waits for the result. Unknown language
// names and empty submissions resolve locally without touching the judge.
func (c *Client) Run(ctx context.Context, code, language string) (*i.RunResult, error) {
	if len(code) <= 1 {
		return &i.RunResult{CompileOutput: "No code to run"}, nil
	}

	languageID := LanguageID(language)
	if languageID == UnsupportedLanguageID {
		return &i.RunResult{CompileOutput: fmt.Sprintf("Unsupported language: %s", language)}, nil
	}

	body, err := json.Marshal(submissionRequest{
		SourceCode: base64.StdEncoding.EncodeToString([]byte(code)),
		LanguageID: languageID,
	})
	if err != nil {
		return nil, fmt.Errorf("judge: encoding submission: %w", err)
	}

	url := c.baseURL + "/submissions?base64_encoded=true&wait=true"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("judge: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("judge: submitting: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("judge: unexpected status %d", resp.StatusCode)
	}

	var sr submissionResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("judge: decoding response: %w", err)
	}

	return &i.RunResult{
		Stdout:        decodeOutput(sr.Stdout),
		Stderr:        decodeOutput(sr.Stderr),
		CompileOutput: decodeOutput(sr.CompileOutput),
		Message:       sr.Message,
		Time:          sr.Time,
	}, nil
}

// decodeOutput decodes a base64 output field, falling back to the raw value
// when the judge returned it unencoded.
func decodeOutput(s string) string {
	if s == "" {
		return ""
	}
	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return s
	}
	return string(decoded)
}
