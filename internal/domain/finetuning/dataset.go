package finetuning

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FormatTrainingData renders a list of training examples as line-delimited
// JSON, one object per line. Schema violations are hard errors: they
// indicate a caller contract violation, not a runtime condition.
func FormatTrainingData(examples []map[string]any, schema string) (string, error) {
	switch schema {
	case SchemaChat:
		for _, example := range examples {
			if _, ok := example["messages"]; !ok {
				return "", fmt.Errorf("chat format requires 'messages' in each example")
			}
		}
	case SchemaCompletion:
		for _, example := range examples {
			_, hasPrompt := example["prompt"]
			_, hasCompletion := example["completion"]
			if !hasPrompt || !hasCompletion {
				return "", fmt.Errorf("completion format requires 'prompt' and 'completion' in each example")
			}
		}
	default:
		return "", fmt.Errorf("unsupported format type: %s", schema)
	}

	lines := make([]byte, 0, len(examples)*64)
	for i, example := range examples {
		encoded, err := json.Marshal(example)
		if err != nil {
			return "", fmt.Errorf("encode example %d: %w", i+1, err)
		}
		if i > 0 {
			lines = append(lines, '\n')
		}
		lines = append(lines, encoded...)
	}
	return string(lines), nil
}

// SaveTrainingData writes formatted training data to path, creating
// parent directories as needed. Returns the path written.
func SaveTrainingData(data, path string) (string, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

// ValidateTrainingData scans a training data file line by line and
// reports per-line issues without aborting the scan. A missing file
// short-circuits without a line scan; an empty file is valid with zero
// lines.
func ValidateTrainingData(path, schema string) ValidationResult {
	file, err := os.Open(path)
	if err != nil {
		return ValidationResult{
			Valid: false,
			Error: fmt.Sprintf("File not found: %s", path),
		}
	}
	defer file.Close()

	result := ValidationResult{
		FilePath: path,
		Issues:   []string{},
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		result.LineCount++

		var example map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &example); err != nil {
			result.Issues = append(result.Issues, fmt.Sprintf("Line %d: Invalid JSON", lineNo))
			result.FormatErrors++
			continue
		}

		switch schema {
		case SchemaChat:
			checkChatExample(example, lineNo, &result)
		case SchemaCompletion:
			checkCompletionExample(example, lineNo, &result)
		}
	}

	if err := scanner.Err(); err != nil {
		return ValidationResult{Valid: false, Error: err.Error()}
	}

	result.Valid = result.FormatErrors == 0
	return result
}

func checkChatExample(example map[string]any, lineNo int, result *ValidationResult) {
	messages, ok := example["messages"]
	if !ok {
		result.Issues = append(result.Issues, fmt.Sprintf("Line %d: Missing 'messages' field", lineNo))
		result.FormatErrors++
		return
	}

	list, ok := messages.([]any)
	if !ok {
		result.Issues = append(result.Issues, fmt.Sprintf("Line %d: 'messages' field is not a list", lineNo))
		result.FormatErrors++
		return
	}

	for _, entry := range list {
		message, ok := entry.(map[string]any)
		if !ok {
			result.Issues = append(result.Issues, fmt.Sprintf("Line %d: Messages missing required 'role' or 'content' fields", lineNo))
			result.FormatErrors++
			return
		}
		_, hasRole := message["role"]
		_, hasContent := message["content"]
		if !hasRole || !hasContent {
			result.Issues = append(result.Issues, fmt.Sprintf("Line %d: Messages missing required 'role' or 'content' fields", lineNo))
			result.FormatErrors++
			return
		}
	}
}

func checkCompletionExample(example map[string]any, lineNo int, result *ValidationResult) {
	if _, ok := example["prompt"]; !ok {
		result.Issues = append(result.Issues, fmt.Sprintf("Line %d: Missing 'prompt' field", lineNo))
		result.FormatErrors++
	}
	if _, ok := example["completion"]; !ok {
		result.Issues = append(result.Issues, fmt.Sprintf("Line %d: Missing 'completion' field", lineNo))
		result.FormatErrors++
	}
}
