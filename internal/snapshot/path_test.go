package snapshot

import "testing"

func TestExtractFilePath(t *testing.T) {
	cases := []struct {
		name string
		args string
		want string
	}{
		{"file_path key", `{"file_path":"a.go","content":"x"}`, "a.go"},
		{"path key", `{"path":"b.go"}`, "b.go"},
		{"filePath key", `{"filePath":"c.go"}`, "c.go"},
		{"target key", `{"target":"d.go"}`, "d.go"},
		{"no recognized key", `{"command":"echo hi"}`, ""},
		{"empty args", ``, ""},
		{"malformed json", `not json`, ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := ExtractFilePath([]byte(c.args))
			if got != c.want {
				t.Errorf("ExtractFilePath(%q) = %q, want %q", c.args, got, c.want)
			}
		})
	}
}
