// ABOUTME: Files pack: workspace-confined filesystem tools.
// ABOUTME: Requires the "files" capability.

package builtins

import (
	"context"
	"encoding/json"

	"github.com/2389/tool-gateway/internal/fsops"
	"github.com/2389/tool-gateway/internal/packs"
	"github.com/2389/tool-gateway/internal/toolerr"
)

// FilesPack creates the files pack over fs.
func FilesPack(fs *fsops.FS) *packs.BuiltinPack {
	f := &fileHandlers{fs: fs}
	return &packs.BuiltinPack{
		ID: "builtin:files",
		Tools: []*packs.BuiltinTool{
			{
				Definition: &packs.ToolDefinition{
					Name:                 "list_dir",
					Description:          "List the entries of a workspace directory",
					InputSchemaJSON:      `{"type":"object","properties":{"path":{"type":"string","default":"."}}}`,
					OutputSchemaJSON:     `{"type":"object","properties":{"path":{"type":"string"},"entries":{"type":"array","items":{"type":"string"}}},"required":["entries"]}`,
					RequiredCapabilities: []string{CapFiles},
				},
				Handler: f.ListDir,
			},
			{
				Definition: &packs.ToolDefinition{
					Name:                 "read_file",
					Description:          "Read a UTF-8 text file from the workspace",
					InputSchemaJSON:      `{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`,
					OutputSchemaJSON:     `{"type":"object","properties":{"path":{"type":"string"},"content":{"type":"string"}},"required":["content"]}`,
					RequiredCapabilities: []string{CapFiles},
				},
				Handler: f.ReadFile,
			},
			{
				Definition: &packs.ToolDefinition{
					Name:                 "write_file",
					Description:          "Write a text file, creating parent directories and overwriting existing content",
					InputSchemaJSON:      `{"type":"object","properties":{"path":{"type":"string"},"content":{"type":"string"}},"required":["path","content"]}`,
					OutputSchemaJSON:     `{"type":"object","properties":{"path":{"type":"string"},"bytes":{"type":"integer"}}}`,
					RequiredCapabilities: []string{CapFiles},
				},
				Handler: f.WriteFile,
			},
			{
				Definition: &packs.ToolDefinition{
					Name:                 "delete_file",
					Description:          "Delete a file from the workspace",
					InputSchemaJSON:      `{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`,
					OutputSchemaJSON:     statusSchema,
					RequiredCapabilities: []string{CapFiles},
				},
				Handler: f.DeleteFile,
			},
			{
				Definition: &packs.ToolDefinition{
					Name:                 "create_folder",
					Description:          "Create a directory and any missing parents",
					InputSchemaJSON:      `{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`,
					OutputSchemaJSON:     statusSchema,
					RequiredCapabilities: []string{CapFiles},
				},
				Handler: f.CreateFolder,
			},
			{
				Definition: &packs.ToolDefinition{
					Name:                 "delete_folder",
					Description:          "Delete a directory and everything inside it",
					InputSchemaJSON:      `{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`,
					OutputSchemaJSON:     statusSchema,
					RequiredCapabilities: []string{CapFiles},
				},
				Handler: f.DeleteFolder,
			},
			{
				Definition: &packs.ToolDefinition{
					Name:                 "get_file_info",
					Description:          "Get size, type, timestamps, and permissions of a path",
					InputSchemaJSON:      `{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`,
					OutputSchemaJSON:     `{"type":"object","properties":{"path":{"type":"string"},"is_file":{"type":"boolean"},"is_dir":{"type":"boolean"},"size":{"type":"integer"},"size_human":{"type":"string"},"created":{"type":"string","format":"date-time"},"modified":{"type":"string","format":"date-time"},"mode":{"type":"string"}}}`,
					RequiredCapabilities: []string{CapFiles},
				},
				Handler: f.GetFileInfo,
			},
			{
				Definition: &packs.ToolDefinition{
					Name:                 "search_files",
					Description:          "Recursively find files whose name matches a glob pattern",
					InputSchemaJSON:      `{"type":"object","properties":{"pattern":{"type":"string"},"root":{"type":"string","default":"."}},"required":["pattern"]}`,
					OutputSchemaJSON:     `{"type":"object","properties":{"matches":{"type":"array","items":{"type":"string"}},"count":{"type":"integer"}}}`,
					RequiredCapabilities: []string{CapFiles},
				},
				Handler: f.SearchFiles,
			},
			{
				Definition: &packs.ToolDefinition{
					Name:                 "zip_files",
					Description:          "Create a zip archive from workspace files",
					InputSchemaJSON:      `{"type":"object","properties":{"zip_path":{"type":"string"},"files":{"type":"array","items":{"type":"string"},"minItems":1}},"required":["zip_path","files"]}`,
					OutputSchemaJSON:     `{"type":"object","properties":{"path":{"type":"string"},"files":{"type":"integer"}}}`,
					RequiredCapabilities: []string{CapFiles},
				},
				Handler: f.ZipFiles,
			},
			{
				Definition: &packs.ToolDefinition{
					Name:                 "unzip_file",
					Description:          "Extract a zip archive into a workspace directory",
					InputSchemaJSON:      `{"type":"object","properties":{"zip_path":{"type":"string"},"extract_to":{"type":"string"}},"required":["zip_path","extract_to"]}`,
					OutputSchemaJSON:     `{"type":"object","properties":{"extracted":{"type":"array","items":{"type":"string"}},"count":{"type":"integer"}}}`,
					RequiredCapabilities: []string{CapFiles},
				},
				Handler: f.UnzipFile,
			},
			{
				Definition: &packs.ToolDefinition{
					Name:                 "directory_tree",
					Description:          "Render a directory as a tree, descending at most max_depth levels",
					InputSchemaJSON:      `{"type":"object","properties":{"path":{"type":"string","default":"."},"max_depth":{"type":"integer","minimum":0,"default":3}}}`,
					OutputSchemaJSON:     `{"type":"object","properties":{"tree":{"type":"string"}},"required":["tree"]}`,
					RequiredCapabilities: []string{CapFiles},
				},
				Handler: f.DirectoryTree,
			},
			{
				Definition: &packs.ToolDefinition{
					Name:                 "search_and_replace",
					Description:          "Replace occurrences of a string in a file; count -1 replaces all",
					InputSchemaJSON:      `{"type":"object","properties":{"path":{"type":"string"},"search":{"type":"string"},"replace":{"type":"string"},"count":{"type":"integer","default":-1}},"required":["path","search","replace"]}`,
					OutputSchemaJSON:     `{"type":"object","properties":{"replacements":{"type":"integer"}},"required":["replacements"]}`,
					RequiredCapabilities: []string{CapFiles},
				},
				Handler: f.SearchAndReplace,
			},
			{
				Definition: &packs.ToolDefinition{
					Name:                 "file_diff",
					Description:          "Unified diff between two workspace files",
					InputSchemaJSON:      `{"type":"object","properties":{"path1":{"type":"string"},"path2":{"type":"string"},"context":{"type":"integer","minimum":0,"default":3}},"required":["path1","path2"]}`,
					OutputSchemaJSON:     `{"type":"object","properties":{"diff":{"type":"string"},"identical":{"type":"boolean"}}}`,
					RequiredCapabilities: []string{CapFiles},
				},
				Handler: f.FileDiff,
			},
			{
				Definition: &packs.ToolDefinition{
					Name:                 "format_code",
					Description:          "Format a source file in place (black for .py, prettier for .js/.ts)",
					InputSchemaJSON:      `{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`,
					OutputSchemaJSON:     `{"type":"object","properties":{"success":{"type":"boolean"},"stdout":{"type":"string"},"stderr":{"type":"string"}}}`,
					RequiredCapabilities: []string{CapFiles},
					TimeoutSeconds:       120,
				},
				Handler: f.FormatCode,
			},
		},
	}
}

const statusSchema = `{"type":"object","properties":{"path":{"type":"string"},"status":{"type":"string"}},"required":["status"]}`

type fileHandlers struct {
	fs *fsops.FS
}

type pathInput struct {
	Path string `json:"path"`
}

func (in pathInput) require(op string) error {
	if in.Path == "" {
		return toolerr.Missing(op, "path")
	}
	return nil
}

func (f *fileHandlers) ListDir(_ context.Context, _ string, input json.RawMessage) (json.RawMessage, error) {
	var in pathInput
	if err := decode("list_dir", input, &in); err != nil {
		return nil, err
	}
	if in.Path == "" {
		in.Path = "."
	}
	entries, err := f.fs.List(in.Path)
	if err != nil {
		return nil, err
	}
	return encode(map[string]any{"path": in.Path, "entries": entries})
}

func (f *fileHandlers) ReadFile(_ context.Context, _ string, input json.RawMessage) (json.RawMessage, error) {
	const op = "read_file"
	var in pathInput
	if err := decode(op, input, &in); err != nil {
		return nil, err
	}
	if err := in.require(op); err != nil {
		return nil, err
	}
	content, err := f.fs.Read(in.Path)
	if err != nil {
		return nil, err
	}
	return encode(map[string]any{"path": in.Path, "content": content})
}

type writeFileInput struct {
	Path    string  `json:"path"`
	Content *string `json:"content"`
}

func (f *fileHandlers) WriteFile(_ context.Context, _ string, input json.RawMessage) (json.RawMessage, error) {
	const op = "write_file"
	var in writeFileInput
	if err := decode(op, input, &in); err != nil {
		return nil, err
	}
	if in.Path == "" {
		return nil, toolerr.Missing(op, "path")
	}
	if in.Content == nil {
		return nil, toolerr.Missing(op, "content")
	}
	if err := f.fs.Write(in.Path, *in.Content); err != nil {
		return nil, err
	}
	return encode(map[string]any{"path": in.Path, "bytes": len(*in.Content)})
}

func (f *fileHandlers) DeleteFile(_ context.Context, _ string, input json.RawMessage) (json.RawMessage, error) {
	return f.pathStatus(input, "delete_file", "deleted", f.fs.DeleteFile)
}

func (f *fileHandlers) CreateFolder(_ context.Context, _ string, input json.RawMessage) (json.RawMessage, error) {
	return f.pathStatus(input, "create_folder", "created", f.fs.MakeDir)
}

func (f *fileHandlers) DeleteFolder(_ context.Context, _ string, input json.RawMessage) (json.RawMessage, error) {
	return f.pathStatus(input, "delete_folder", "deleted", f.fs.RemoveDir)
}

func (f *fileHandlers) pathStatus(input json.RawMessage, op, status string, fn func(string) error) (json.RawMessage, error) {
	var in pathInput
	if err := decode(op, input, &in); err != nil {
		return nil, err
	}
	if err := in.require(op); err != nil {
		return nil, err
	}
	if err := fn(in.Path); err != nil {
		return nil, err
	}
	return encode(map[string]string{"path": in.Path, "status": status})
}

func (f *fileHandlers) GetFileInfo(_ context.Context, _ string, input json.RawMessage) (json.RawMessage, error) {
	const op = "get_file_info"
	var in pathInput
	if err := decode(op, input, &in); err != nil {
		return nil, err
	}
	if err := in.require(op); err != nil {
		return nil, err
	}
	info, err := f.fs.Stat(in.Path)
	if err != nil {
		return nil, err
	}
	return encode(info)
}

type searchFilesInput struct {
	Pattern string `json:"pattern"`
	Root    string `json:"root"`
}

func (f *fileHandlers) SearchFiles(_ context.Context, _ string, input json.RawMessage) (json.RawMessage, error) {
	var in searchFilesInput
	if err := decode("search_files", input, &in); err != nil {
		return nil, err
	}
	if in.Root == "" {
		in.Root = "."
	}
	matches, err := f.fs.Glob(in.Pattern, in.Root)
	if err != nil {
		return nil, err
	}
	return encode(map[string]any{"matches": matches, "count": len(matches)})
}

type zipFilesInput struct {
	ZipPath string   `json:"zip_path"`
	Files   []string `json:"files"`
}

func (f *fileHandlers) ZipFiles(_ context.Context, _ string, input json.RawMessage) (json.RawMessage, error) {
	const op = "zip_files"
	var in zipFilesInput
	if err := decode(op, input, &in); err != nil {
		return nil, err
	}
	if in.ZipPath == "" {
		return nil, toolerr.Missing(op, "zip_path")
	}
	if len(in.Files) == 0 {
		return nil, toolerr.Missing(op, "files")
	}
	if err := f.fs.Zip(in.ZipPath, in.Files); err != nil {
		return nil, err
	}
	return encode(map[string]any{"path": in.ZipPath, "files": len(in.Files)})
}

type unzipFileInput struct {
	ZipPath   string `json:"zip_path"`
	ExtractTo string `json:"extract_to"`
}

func (f *fileHandlers) UnzipFile(_ context.Context, _ string, input json.RawMessage) (json.RawMessage, error) {
	const op = "unzip_file"
	var in unzipFileInput
	if err := decode(op, input, &in); err != nil {
		return nil, err
	}
	if in.ZipPath == "" {
		return nil, toolerr.Missing(op, "zip_path")
	}
	if in.ExtractTo == "" {
		return nil, toolerr.Missing(op, "extract_to")
	}
	extracted, err := f.fs.Unzip(in.ZipPath, in.ExtractTo)
	if err != nil {
		return nil, err
	}
	return encode(map[string]any{"extracted": extracted, "count": len(extracted)})
}

type directoryTreeInput struct {
	Path     string `json:"path"`
	MaxDepth *int   `json:"max_depth"`
}

func (f *fileHandlers) DirectoryTree(_ context.Context, _ string, input json.RawMessage) (json.RawMessage, error) {
	const op = "directory_tree"
	var in directoryTreeInput
	if err := decode(op, input, &in); err != nil {
		return nil, err
	}
	if in.Path == "" {
		in.Path = "."
	}
	depth := fsops.DefaultTreeDepth
	if in.MaxDepth != nil {
		if *in.MaxDepth < 0 {
			return nil, toolerr.Invalid(op, "max_depth", "max_depth must not be negative")
		}
		depth = *in.MaxDepth
	}
	tree, err := f.fs.Tree(in.Path, depth)
	if err != nil {
		return nil, err
	}
	return encode(map[string]string{"tree": tree})
}

type searchAndReplaceInput struct {
	Path    string  `json:"path"`
	Search  string  `json:"search"`
	Replace *string `json:"replace"`
	Count   *int    `json:"count"`
}

func (f *fileHandlers) SearchAndReplace(_ context.Context, _ string, input json.RawMessage) (json.RawMessage, error) {
	const op = "search_and_replace"
	var in searchAndReplaceInput
	if err := decode(op, input, &in); err != nil {
		return nil, err
	}
	if in.Path == "" {
		return nil, toolerr.Missing(op, "path")
	}
	if in.Replace == nil {
		return nil, toolerr.Missing(op, "replace")
	}
	count := -1
	if in.Count != nil {
		count = *in.Count
	}
	n, err := f.fs.Replace(in.Path, in.Search, *in.Replace, count)
	if err != nil {
		return nil, err
	}
	return encode(map[string]int{"replacements": n})
}

type fileDiffInput struct {
	Path1   string `json:"path1"`
	Path2   string `json:"path2"`
	Context *int   `json:"context"`
}

func (f *fileHandlers) FileDiff(_ context.Context, _ string, input json.RawMessage) (json.RawMessage, error) {
	const op = "file_diff"
	var in fileDiffInput
	if err := decode(op, input, &in); err != nil {
		return nil, err
	}
	if in.Path1 == "" {
		return nil, toolerr.Missing(op, "path1")
	}
	if in.Path2 == "" {
		return nil, toolerr.Missing(op, "path2")
	}
	lines := fsops.DefaultDiffContext
	if in.Context != nil {
		if *in.Context < 0 {
			return nil, toolerr.Invalid(op, "context", "context must not be negative")
		}
		lines = *in.Context
	}
	diff, err := f.fs.Diff(in.Path1, in.Path2, lines)
	if err != nil {
		return nil, err
	}
	return encode(map[string]any{"diff": diff, "identical": diff == ""})
}

func (f *fileHandlers) FormatCode(ctx context.Context, _ string, input json.RawMessage) (json.RawMessage, error) {
	const op = "format_code"
	var in pathInput
	if err := decode(op, input, &in); err != nil {
		return nil, err
	}
	if err := in.require(op); err != nil {
		return nil, err
	}
	res, err := f.fs.FormatCode(ctx, in.Path)
	if err != nil {
		return nil, err
	}
	return encode(res)
}
