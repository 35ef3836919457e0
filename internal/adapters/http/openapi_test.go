package http

import (
	"strings"
	"testing"
)

func TestYAMLToJSON(t *testing.T) {
	out, err := yamlToJSON([]byte("paths:\n  /x:\n    get:\n      responses:\n        200:\n          description: ok\n"))
	if err != nil {
		t.Fatalf("yamlToJSON failed: %v", err)
	}
	want := `"200": {`
	if !strings.Contains(string(out), want) {
		t.Errorf("output %s lacks %s", out, want)
	}

	if _, err := yamlToJSON([]byte("a: [")); err == nil {
		t.Error("expected error for malformed YAML")
	}
}
