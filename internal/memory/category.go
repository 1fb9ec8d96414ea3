// ABOUTME: Deterministic tool categorization by ordered keyword table.
// ABOUTME: Category names double as the values accepted by the category read path.

package memory

import (
	"errors"
	"fmt"
	"strings"
)

// Category classifies a tool invocation.
type Category string

// The fixed category set.
const (
	CategoryFiles    Category = "files"
	CategoryTerminal Category = "terminal"
	CategoryBrowser  Category = "browser"
	CategorySystem   Category = "system"
	CategoryUtility  Category = "utility"
	CategoryOther    Category = "other"
)

// Categories lists every valid category in table order.
var Categories = []Category{
	CategoryFiles,
	CategoryTerminal,
	CategoryBrowser,
	CategorySystem,
	CategoryUtility,
	CategoryOther,
}

// ErrInvalidCategory is returned by ParseCategory for unknown names.
var ErrInvalidCategory = errors.New("invalid category")

// categoryTable is consulted top to bottom; the first keyword set with a
// substring hit wins. File keywords are specific enough that browser tools
// such as browser_upload_file are not claimed by files.
var categoryTable = []struct {
	category Category
	keywords []string
}{
	{CategoryFiles, []string{
		"read_file", "write_file", "delete_file", "file_info", "search_files",
		"zip", "dir", "folder", "tree", "replace", "diff", "format_code",
	}},
	{CategoryTerminal, []string{"shell", "command", "terminal"}},
	{CategoryBrowser, []string{"browser"}},
	{CategorySystem, []string{"system", "process", "ping", "download", "http"}},
	{CategoryUtility, []string{"math", "time", "wait"}},
}

// Categorize maps a tool name to its category. It returns false only for an
// empty name, which marks an entry that is not a tool invocation.
func Categorize(toolName string) (Category, bool) {
	if toolName == "" {
		return "", false
	}
	lower := strings.ToLower(toolName)
	for _, row := range categoryTable {
		for _, kw := range row.keywords {
			if strings.Contains(lower, kw) {
				return row.category, true
			}
		}
	}
	return CategoryOther, true
}

// ParseCategory validates caller input against the fixed category set.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, valid := range Categories {
		if c == valid {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCategory, s)
}
