package media

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"ad-video-pipeline/types"
)

// DefaultPlaceholderBytes is the size under which a file is treated as a
// stand-in rather than real media.
const DefaultPlaceholderBytes = 1000

// IsPlaceholder reports whether path is missing or smaller than threshold
func IsPlaceholder(path string, threshold int64) bool {
	if threshold <= 0 {
		threshold = DefaultPlaceholderBytes
	}
	fi, err := os.Stat(path)
	if err != nil {
		return true
	}
	return fi.Size() < threshold
}

// Stub describes the stand-in written when a generation call fails
type Stub struct {
	SceneNumber int
	Path        string   // where the placeholder marker goes
	NotePath    string   // diagnostic sidecar
	Label       string   // one-line marker content
	Details     []string // attempted operation: prompt, model, parameters
}

// Outcome is the result of one generation call after the placeholder policy
// has been applied. Err is the failure that caused substitution and is nil
// when Asset holds real media.
type Outcome struct {
	Asset types.Asset
	Err   error
}

// Degraded reports whether the asset is a substitute
func (o Outcome) Degraded() bool { return o.Err != nil }

// OrPlaceholder runs gen and returns its media as an asset. When gen fails, a
// placeholder marker and a diagnostic note (details plus the error) are
// written at stub's paths and returned instead. It never returns a zero Asset.
func OrPlaceholder(stub Stub, gen func() (string, error)) Outcome {
	path, err := gen()
	if err == nil {
		return Outcome{Asset: types.Asset{SceneNumber: stub.SceneNumber, Path: path}}
	}

	asset := types.Asset{
		SceneNumber:   stub.SceneNumber,
		Path:          stub.Path,
		IsPlaceholder: true,
		Note:          stub.NotePath,
	}
	if werr := WritePlaceholder(stub.Path, stub.Label); werr != nil {
		err = errors.Join(err, werr)
	}
	if stub.NotePath != "" {
		if werr := WriteNote(stub.NotePath, stub.Details, err); werr != nil {
			err = errors.Join(err, werr)
		}
	}
	return Outcome{Asset: asset, Err: err}
}

// WritePlaceholder writes a small marker file, well under the placeholder
// threshold, at path.
func WritePlaceholder(path, label string) error {
	if label == "" {
		label = "Placeholder"
	}
	if err := os.WriteFile(path, []byte(label), 0644); err != nil {
		return fmt.Errorf("write placeholder: %w", err)
	}
	return nil
}

// WriteNote writes a human-readable diagnostic sidecar
func WriteNote(path string, details []string, cause error) error {
	var sb strings.Builder
	for _, d := range details {
		sb.WriteString(d)
		sb.WriteString("\n")
	}
	if cause != nil {
		sb.WriteString("\nError: ")
		sb.WriteString(cause.Error())
		sb.WriteString("\n")
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("write note: %w", err)
	}
	return nil
}

// Assets returns the asset of every outcome, in order
func Assets(outcomes []Outcome) []types.Asset {
	assets := make([]types.Asset, len(outcomes))
	for i, o := range outcomes {
		assets[i] = o.Asset
	}
	return assets
}
