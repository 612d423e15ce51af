package toolexecutor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DocumentTool serves the external knowledge documents referenced by tasks,
// laid out as <root>/documents/<name>.
type DocumentTool struct {
	root string
}

// NewDocumentTool creates the document tool over a resource root.
func NewDocumentTool(root string) *DocumentTool {
	return &DocumentTool{root: root}
}

func (t *DocumentTool) documentsDir() string {
	return filepath.Join(t.root, "documents")
}

func (t *DocumentTool) resolve(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("document name cannot be empty")
	}
	if strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		return "", fmt.Errorf("document name must be path-safe: %s", name)
	}
	return filepath.Join(t.documentsDir(), name), nil
}

// ReadDefinition describes the read_document tool.
func (t *DocumentTool) ReadDefinition() ToolDefinition {
	return ToolDefinition{
		Name:        "read_document",
		Description: "Read the full text of one reference document by name.",
		Parameters: []ToolParameter{
			{Name: "name", Type: "string", Description: "Document file name", Required: true},
		},
		Handler: t.Read,
	}
}

// ListDefinition describes the list_documents tool.
func (t *DocumentTool) ListDefinition() ToolDefinition {
	return ToolDefinition{
		Name:        "list_documents",
		Description: "List the reference documents available for this benchmark.",
		Parameters:  []ToolParameter{},
		Handler:     t.List,
	}
}

// Read returns one document's contents.
func (t *DocumentTool) Read(ctx context.Context, args map[string]interface{}) (string, error) {
	name, _ := args["name"].(string)

	path, err := t.resolve(name)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("document not found: %s", name)
		}
		return "", fmt.Errorf("failed to read document %s: %w", name, err)
	}
	return string(data), nil
}

// List enumerates available documents, one per line.
func (t *DocumentTool) List(ctx context.Context, args map[string]interface{}) (string, error) {
	entries, err := os.ReadDir(t.documentsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return "No documents available.", nil
		}
		return "", fmt.Errorf("failed to list documents: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	if len(names) == 0 {
		return "No documents available.", nil
	}
	sort.Strings(names)
	return strings.Join(names, "\n"), nil
}
