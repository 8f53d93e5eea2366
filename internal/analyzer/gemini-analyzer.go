package analyzer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/garnizi/payslip-analyzer-api/internal/models"
	"github.com/garnizi/payslip-analyzer-api/internal/utils"
)

// ErrExtraction covers every failure mode of the two-pass extraction:
// transport errors, non-2xx responses, model refusals, and malformed or
// schema-violating JSON. Callers get one signal, never the underlying cause.
var ErrExtraction = errors.New("payslip extraction failed")

// ErrAnswer covers failures of the free-text question call.
var ErrAnswer = errors.New("question answering failed")

// Analyzer is the sole boundary to the hosted multimodal model.
type Analyzer interface {
	// ExtractPayslip runs the fixed two-round extraction protocol against
	// the payslip image and returns the refined result. Round 2 is not
	// issued until round 1 has parsed; there is no third round and no
	// convergence loop.
	ExtractPayslip(ctx context.Context, image []byte, mediaType string) (*models.PayslipRecord, error)

	// AnswerQuestion answers a single free-text question grounded only in
	// the image. No prior conversation turns are sent; every question is
	// independent.
	AnswerQuestion(ctx context.Context, image []byte, mediaType, question string) (string, error)
}

const defaultBaseURL = "https://generativelanguage.googleapis.com"

type geminiAnalyzer struct {
	apiKey  string
	model   string
	baseURL string
	logger  *utils.Logger
	client  *http.Client
}

func NewGeminiAnalyzer(apiKey, model string, logger *utils.Logger) Analyzer {
	return &geminiAnalyzer{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultBaseURL,
		logger:  logger,
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

type geminiRequest struct {
	Contents          []geminiContent   `json:"contents"`
	SystemInstruction *geminiContent    `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type generationConfig struct {
	ResponseMIMEType string         `json:"responseMimeType,omitempty"`
	ResponseSchema   map[string]any `json:"responseSchema,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

// payslipSchema is the response schema both extraction rounds require the
// model to satisfy.
var payslipSchema = map[string]any{
	"type": "OBJECT",
	"properties": map[string]any{
		"employeeName":    map[string]any{"type": "STRING", "description": "Employee's full name"},
		"employeeId":      map[string]any{"type": "STRING", "description": "Employee's ID number"},
		"employerName":    map[string]any{"type": "STRING", "description": "Employer's name"},
		"payPeriod":       map[string]any{"type": "STRING", "description": "Month and year of payment, e.g. 'May 2024'"},
		"grossSalary":     map[string]any{"type": "NUMBER", "description": "Total gross pay"},
		"netSalary":       map[string]any{"type": "NUMBER", "description": "Net pay (the final amount)"},
		"totalDeductions": map[string]any{"type": "NUMBER", "description": "Total deductions"},
		"payments": map[string]any{
			"type": "ARRAY",
			"items": map[string]any{
				"type": "OBJECT",
				"properties": map[string]any{
					"description": map[string]any{"type": "STRING", "description": "Payment component name (e.g. 'Base salary')"},
					"amount":      map[string]any{"type": "NUMBER", "description": "Component amount"},
				},
				"required": []string{"description", "amount"},
			},
		},
		"deductions": map[string]any{
			"type": "ARRAY",
			"items": map[string]any{
				"type": "OBJECT",
				"properties": map[string]any{
					"description": map[string]any{"type": "STRING", "description": "Deduction component name (e.g. 'Income tax')"},
					"amount":      map[string]any{"type": "NUMBER", "description": "Component amount"},
				},
				"required": []string{"description", "amount"},
			},
		},
	},
	"required": []string{
		"employeeName", "employeeId", "employerName", "payPeriod",
		"grossSalary", "netSalary", "totalDeductions", "payments", "deductions",
	},
}

const firstPassPrompt = `Analyze the provided payslip image and extract the key information according to the JSON schema. This is a first pass, so do your best to capture everything. Be accurate and map the payslip's terms to the corresponding schema fields, whatever language the payslip is in. If a field is not found, use a sensible default like an empty string or 0.`

const refinementPromptFormat = `You are a meticulous financial auditor. An initial analysis of a payslip image has been performed, resulting in the following JSON data. Your task is to carefully review this data against the original image.

Please perform a second pass to:
1. Verify the accuracy of every field.
2. Correct any mistakes found in the initial extraction.
3. Most importantly, identify and add any missing items, especially in the 'payments' and 'deductions' lists. Sometimes the first pass misses line items.

Return the final, complete, and corrected JSON object that perfectly reflects the payslip in the image.

Initial Extracted Data:
%s`

const answerSystemInstruction = `You are a helpful assistant that answers questions about a payslip based ONLY on the provided image. Answer in the same language the user's question is written in.`

const answerPromptFormat = `Answer the user's question based only on the attached payslip image. Scan the image carefully to find the answer. If the information does not appear in the image, say so politely.

User's question:
%q`

func (a *geminiAnalyzer) ExtractPayslip(ctx context.Context, image []byte, mediaType string) (*models.PayslipRecord, error) {
	// First pass: initial extraction.
	initialText, err := a.generate(ctx, &geminiRequest{
		Contents: []geminiContent{imageAndText(image, mediaType, firstPassPrompt)},
		GenerationConfig: &generationConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   payslipSchema,
		},
	})
	if err != nil {
		a.logger.Error("Extraction first pass failed", "error", err)
		return nil, fmt.Errorf("%w: first pass: %v", ErrExtraction, err)
	}

	initial, err := parsePayslip(initialText)
	if err != nil {
		a.logger.Error("Extraction first pass returned malformed JSON", "error", err)
		return nil, fmt.Errorf("%w: first pass: %v", ErrExtraction, err)
	}

	// Second pass: audit the first pass against the same image. A single
	// pass on photographed tabular documents under-counts line items; the
	// self-audit embeds the round-1 result and asks for corrections.
	initialJSON, err := json.MarshalIndent(initial, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	refinedText, err := a.generate(ctx, &geminiRequest{
		Contents: []geminiContent{imageAndText(image, mediaType, fmt.Sprintf(refinementPromptFormat, initialJSON))},
		GenerationConfig: &generationConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   payslipSchema,
		},
	})
	if err != nil {
		a.logger.Error("Extraction refinement pass failed", "error", err)
		return nil, fmt.Errorf("%w: refinement pass: %v", ErrExtraction, err)
	}

	refined, err := parsePayslip(refinedText)
	if err != nil {
		a.logger.Error("Extraction refinement pass returned malformed JSON", "error", err)
		return nil, fmt.Errorf("%w: refinement pass: %v", ErrExtraction, err)
	}

	a.logger.Info("Payslip extracted",
		"pay_period", refined.PayPeriod,
		"payments", len(refined.Payments),
		"deductions", len(refined.Deductions))

	return refined, nil
}

func (a *geminiAnalyzer) AnswerQuestion(ctx context.Context, image []byte, mediaType, question string) (string, error) {
	answer, err := a.generate(ctx, &geminiRequest{
		Contents: []geminiContent{imageAndText(image, mediaType, fmt.Sprintf(answerPromptFormat, question))},
		SystemInstruction: &geminiContent{
			Parts: []geminiPart{{Text: answerSystemInstruction}},
		},
	})
	if err != nil {
		a.logger.Error("Question answering failed", "error", err)
		return "", fmt.Errorf("%w: %v", ErrAnswer, err)
	}

	return answer, nil
}

// generate performs one generateContent round-trip and returns the text of
// the first candidate.
func (a *geminiAnalyzer) generate(ctx context.Context, reqBody *geminiRequest) (string, error) {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", a.baseURL, a.model)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		a.logger.Error("Gemini API error", "status", resp.StatusCode, "body", string(body))
		return "", fmt.Errorf("Gemini API returned status %d", resp.StatusCode)
	}

	var geminiResp geminiResponse
	if err := json.Unmarshal(body, &geminiResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if geminiResp.Error != nil {
		return "", fmt.Errorf("Gemini API error: %s", geminiResp.Error.Message)
	}

	if len(geminiResp.Candidates) == 0 || len(geminiResp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}

	return geminiResp.Candidates[0].Content.Parts[0].Text, nil
}

func imageAndText(image []byte, mediaType, text string) geminiContent {
	return geminiContent{
		Parts: []geminiPart{
			{InlineData: &inlineData{
				MimeType: mediaType,
				Data:     base64.StdEncoding.EncodeToString(image),
			}},
			{Text: text},
		},
	}
}

func parsePayslip(content string) (*models.PayslipRecord, error) {
	var record models.PayslipRecord
	if err := json.Unmarshal([]byte(content), &record); err != nil {
		// If parsing fails, try to extract JSON from markdown code blocks
		content = extractJSON(content)
		if err := json.Unmarshal([]byte(content), &record); err != nil {
			return nil, fmt.Errorf("failed to parse model response as JSON: %w", err)
		}
	}
	return &record, nil
}

// extractJSON attempts to extract JSON from markdown code blocks
func extractJSON(content string) string {
	if len(content) > 7 && content[:3] == "```" {
		start := 0
		end := len(content)

		// Find first newline after opening ```
		for i := 3; i < len(content); i++ {
			if content[i] == '\n' {
				start = i + 1
				break
			}
		}

		// Find closing ```
		for i := len(content) - 1; i >= 0; i-- {
			if i >= 2 && content[i-2:i+1] == "```" {
				end = i - 2
				break
			}
		}

		if start < end {
			content = content[start:end]
		}
	}

	return content
}
