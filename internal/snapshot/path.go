package snapshot

import "encoding/json"

// filePathKeys are the argument keys a tool call's JSON params use to
// name the file it will touch, tried in this order. Duplicated from
// internal/memoryrules' own extractFilePath rather than imported, to
// keep this package's only dependency the standard library.
var filePathKeys = []string{"file_path", "path", "filePath", "target"}

// ExtractFilePath pulls the first recognized file-path argument out of
// a tool call's JSON params, or "" if none of the known keys are
// present (e.g. Bash, which has no single target file).
func ExtractFilePath(args json.RawMessage) string {
	if len(args) == 0 {
		return ""
	}
	var m map[string]any
	if err := json.Unmarshal(args, &m); err != nil {
		return ""
	}
	for _, key := range filePathKeys {
		if v, ok := m[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}
