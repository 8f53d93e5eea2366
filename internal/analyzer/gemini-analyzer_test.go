package analyzer

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garnizi/payslip-analyzer-api/internal/models"
	"github.com/garnizi/payslip-analyzer-api/internal/utils"
)

var testImage = []byte("not-really-a-png")

func testRecord() models.PayslipRecord {
	return models.PayslipRecord{
		EmployeeName:    "Dana Levi",
		EmployeeID:      "123456789",
		EmployerName:    "Acme Ltd",
		PayPeriod:       "May 2024",
		GrossSalary:     15000,
		NetSalary:       11200,
		TotalDeductions: 3800,
		Payments: []models.LineItem{
			{Description: "Base salary", Amount: 14000},
			{Description: "Travel allowance", Amount: 1000},
		},
		Deductions: []models.LineItem{
			{Description: "Income tax", Amount: 2500},
			{Description: "Pension", Amount: 1300},
		},
	}
}

// candidateText wraps text in a minimal generateContent response body.
func candidateText(t *testing.T, text string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"candidates": []map[string]any{
			{"content": map[string]any{"parts": []map[string]any{{"text": text}}}},
		},
	})
	require.NoError(t, err)
	return body
}

func newTestAnalyzer(baseURL string) *geminiAnalyzer {
	return &geminiAnalyzer{
		apiKey:  "test-key",
		model:   "gemini-2.5-flash",
		baseURL: baseURL,
		logger:  utils.NewLogger("error"),
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

func TestExtractPayslipRunsExactlyTwoRounds(t *testing.T) {
	first := testRecord()
	first.Payments = first.Payments[:1] // round 1 missed a line item

	refined := testRecord()

	firstJSON, err := json.Marshal(first)
	require.NoError(t, err)
	refinedJSON, err := json.Marshal(refined)
	require.NoError(t, err)

	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(raw))

		switch len(bodies) {
		case 1:
			w.Write(candidateText(t, string(firstJSON)))
		case 2:
			w.Write(candidateText(t, string(refinedJSON)))
		default:
			t.Errorf("unexpected third model call")
			w.WriteHeader(http.StatusTooManyRequests)
		}
	}))
	defer srv.Close()

	a := newTestAnalyzer(srv.URL)
	got, err := a.ExtractPayslip(context.Background(), testImage, "image/png")
	require.NoError(t, err)

	require.Len(t, bodies, 2, "extraction must invoke the model exactly twice")
	assert.Equal(t, refined, *got, "the refinement pass result is the final record")

	// The round-2 prompt embeds the parsed round-1 result verbatim.
	embedded, err := json.MarshalIndent(&first, "", "  ")
	require.NoError(t, err)
	assert.Contains(t, bodies[1], jsonEscaped(t, string(embedded)))

	// Both rounds carry the image and require the schema.
	for _, body := range bodies {
		assert.Contains(t, body, `"inlineData"`)
		assert.Contains(t, body, `"responseSchema"`)
	}
}

func TestExtractPayslipRefinementFailure(t *testing.T) {
	firstJSON, err := json.Marshal(testRecord())
	require.NoError(t, err)

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Write(candidateText(t, string(firstJSON)))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	a := newTestAnalyzer(srv.URL)
	got, err := a.ExtractPayslip(context.Background(), testImage, "image/png")
	require.ErrorIs(t, err, ErrExtraction)
	assert.Nil(t, got, "a round-1 partial result is never surfaced")
	assert.Equal(t, 2, calls)
}

func TestExtractPayslipMalformedResponse(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write(candidateText(t, "I could not read this document, sorry."))
	}))
	defer srv.Close()

	a := newTestAnalyzer(srv.URL)
	_, err := a.ExtractPayslip(context.Background(), testImage, "image/png")
	require.ErrorIs(t, err, ErrExtraction)
	assert.Equal(t, 1, calls, "round 2 must not be issued when round 1 fails to parse")
}

func TestExtractPayslipStripsMarkdownFences(t *testing.T) {
	recordJSON, err := json.Marshal(testRecord())
	require.NoError(t, err)
	fenced := "```json\n" + string(recordJSON) + "\n```"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(candidateText(t, fenced))
	}))
	defer srv.Close()

	a := newTestAnalyzer(srv.URL)
	got, err := a.ExtractPayslip(context.Background(), testImage, "image/png")
	require.NoError(t, err)
	assert.Equal(t, testRecord(), *got)
}

func TestAnswerQuestion(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
		w.Write(candidateText(t, "Your net salary is 11,200."))
	}))
	defer srv.Close()

	a := newTestAnalyzer(srv.URL)
	answer, err := a.AnswerQuestion(context.Background(), testImage, "image/png", "What is my net salary?")
	require.NoError(t, err)
	assert.Equal(t, "Your net salary is 11,200.", answer)

	assert.Contains(t, body, "What is my net salary?")
	assert.Contains(t, body, `"systemInstruction"`)
	assert.NotContains(t, body, `"responseSchema"`, "Q&A is free text, no schema")
}

func TestAnswerQuestionTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	a := newTestAnalyzer(srv.URL)
	_, err := a.AnswerQuestion(context.Background(), testImage, "image/png", "anything")
	require.ErrorIs(t, err, ErrAnswer)
}

// jsonEscaped renders s the way it appears embedded inside a JSON string
// field of the request body.
func jsonEscaped(t *testing.T, s string) string {
	t.Helper()
	b, err := json.Marshal(s)
	require.NoError(t, err)
	return strings.Trim(string(b), `"`)
}
