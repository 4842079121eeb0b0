package mcp

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// SupportedBaseModels is the allow-list of base models accepted for
// fine-tuning.
var SupportedBaseModels = []string{"o4-mini-2025-04-16"}

type hyperparameterRange struct {
	min float64
	max float64
}

// supportedHyperparameters maps each accepted hyperparameter to its
// inclusive value range.
var supportedHyperparameters = map[string]hyperparameterRange{
	"n_epochs":                 {min: 1, max: 50},
	"batch_size":               {min: 1, max: 256},
	"learning_rate_multiplier": {min: 0.02, max: 3.0},
}

const maxSuffixLength = 40

var validUploadPurposes = []string{"fine-tune", "assistants"}

// validateModel checks the model against the allow-list; the error
// enumerates the supported set.
func validateModel(model string) error {
	for _, supported := range SupportedBaseModels {
		if model == supported {
			return nil
		}
	}
	return fmt.Errorf("unsupported model: %s. Supported models: %s", model, strings.Join(SupportedBaseModels, ", "))
}

// validateHyperparameters collects every violation into one report keyed
// by parameter name, rather than failing on the first.
func validateHyperparameters(hyperparameters map[string]any) map[string]string {
	errors := map[string]string{}

	var unsupported []string
	for param := range hyperparameters {
		if _, ok := supportedHyperparameters[param]; !ok {
			unsupported = append(unsupported, param)
		}
	}
	if len(unsupported) > 0 {
		sort.Strings(unsupported)
		errors["unsupported_params"] = "Unsupported hyperparameters: " + strings.Join(unsupported, ", ")
	}

	for param, value := range hyperparameters {
		bounds, ok := supportedHyperparameters[param]
		if !ok {
			continue
		}
		number, ok := asNumber(value)
		if !ok {
			errors[param] = fmt.Sprintf("%s must be a number", param)
			continue
		}
		if number < bounds.min || number > bounds.max {
			errors[param] = fmt.Sprintf("%s must be between %v and %v", param, bounds.min, bounds.max)
		}
	}

	return errors
}

func asNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// validateFilePath checks existence, regular-file-ness, and readability
// independently so a caller can distinguish the failures by key.
func validateFilePath(filePath string) map[string]string {
	errors := map[string]string{}

	info, err := os.Stat(filePath)
	switch {
	case err != nil:
		errors["not_found"] = fmt.Sprintf("File not found: %s", filePath)
	case !info.Mode().IsRegular():
		errors["not_file"] = fmt.Sprintf("Not a file: %s", filePath)
	default:
		f, err := os.Open(filePath)
		if err != nil {
			errors["not_readable"] = fmt.Sprintf("File is not readable: %s", filePath)
		} else {
			f.Close()
		}
	}

	return errors
}

// validateIdentifier rejects empty-after-trim string inputs.
func validateIdentifier(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s is required and cannot be empty", field)
	}
	return nil
}

func validateSuffix(suffix string) error {
	if len(suffix) > maxSuffixLength {
		return fmt.Errorf("suffix must be %d characters or less", maxSuffixLength)
	}
	return nil
}

func validatePurpose(purpose string) error {
	for _, valid := range validUploadPurposes {
		if purpose == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid purpose: %s. Must be one of: %s", purpose, strings.Join(validUploadPurposes, ", "))
}

// joinFieldErrors renders a field-keyed error map as one deterministic
// message.
func joinFieldErrors(fieldErrors map[string]string) string {
	keys := make([]string, 0, len(fieldErrors))
	for k := range fieldErrors {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+fieldErrors[k])
	}
	return strings.Join(parts, "; ")
}
