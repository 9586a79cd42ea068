package extractor

import (
	"fmt"
	"regexp"
	"strings"

	"codegraph/internal/graph"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// FileID is the id of the File entity for path.
func FileID(path string) string {
	return "file:" + path
}

// EntityID builds the stable id prefix:path:name:line. The prefix is usually
// the entity kind, but some kinds keep a legacy prefix (see VariablePrefix).
func EntityID(prefix, path, name string, line int) string {
	return fmt.Sprintf("%s:%s:%s:%d", prefix, path, name, line)
}

// AssumedID is the id used for a same-file reference whose definition was
// not seen. It may never match a real entity.
func AssumedID(kind graph.EntityKind, path, name string) string {
	return EntityID(string(kind), path, name, 0)
}

// VariablePrefix is the id prefix shared by Python globals and Java fields.
const VariablePrefix = "Variable"

func canonicalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return whitespaceRe.ReplaceAllString(s, " ")
}
