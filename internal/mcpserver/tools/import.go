package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const maxImportItems = 5000

// FileImporter enforces the path-traversal-safe whitelist the file-import
// tool requires: canonicalize, then require a prefix match against one of a
// fixed set of allowed roots computed once at startup.
type FileImporter struct {
	allowedRoots []string
}

// NewFileImporter computes the allowed roots once: the process working
// directory and the system temporary directory, both canonicalised.
func NewFileImporter() (*FileImporter, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("tools: resolve working directory: %w", err)
	}
	wd, err = canonicalize(wd)
	if err != nil {
		return nil, fmt.Errorf("tools: canonicalize working directory: %w", err)
	}
	tmp, err := canonicalize(os.TempDir())
	if err != nil {
		return nil, fmt.Errorf("tools: canonicalize temp directory: %w", err)
	}
	return &FileImporter{allowedRoots: []string{wd, tmp}}, nil
}

// Read validates path per the ordering the tool's tests pin — extension gate
// first, whitelist second — then parses it as a JSON array of task inputs.
func (f *FileImporter) Read(path string) ([]taskInput, error) {
	if strings.HasPrefix(path, "~") {
		return nil, fmt.Errorf("home-directory paths are not allowed")
	}
	if !strings.HasSuffix(strings.ToLower(path), ".json") {
		return nil, fmt.Errorf("Only .json files are allowed")
	}

	resolved, err := canonicalize(path)
	if err != nil {
		return nil, fmt.Errorf("outside of allowed directories")
	}
	if !f.isAllowed(resolved) {
		return nil, fmt.Errorf("outside of allowed directories")
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to read file")
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse file contents: must be a JSON array")
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("file must contain a non-empty JSON array")
	}
	if len(raw) > maxImportItems {
		return nil, fmt.Errorf("file contains more than %d items", maxImportItems)
	}

	items := make([]taskInput, len(raw))
	for i, item := range raw {
		if err := json.Unmarshal(item, &items[i]); err != nil {
			return nil, fmt.Errorf("item at index %d is not a valid task object", i)
		}
	}
	return items, nil
}

func (f *FileImporter) isAllowed(resolved string) bool {
	for _, root := range f.allowedRoots {
		if resolved == root || strings.HasPrefix(resolved, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// canonicalize resolves path to an absolute, symlink-free form. A symlink
// that escapes every allowed root is rejected by the subsequent prefix
// check, not here — EvalSymlinks only needs the final target resolved.
func canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		// The path may not exist yet as a whole (e.g. intermediate
		// directories only); fall back to the absolute, cleaned form so the
		// prefix check still applies.
		return filepath.Clean(abs), nil
	}
	return resolved, nil
}

func (r *Registry) submitTasksFromFile(ctx context.Context, rawArgs json.RawMessage) Result {
	var args struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return errResult(CodeValidation, "invalid arguments", 0)
	}
	if r.importer == nil {
		return errResult(CodeInternal, "file import is not configured", 0)
	}

	items, err := r.importer.Read(args.Path)
	if err != nil {
		return errResult(CodeValidation, err.Error(), 0)
	}

	return r.submit(ctx, items)
}
