package knowledge

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// NoteIDPattern matches the short content-addressed note ids embedded in
// front matter and filenames.
var NoteIDPattern = regexp.MustCompile(`^sb-[a-f0-9]{7}$`)

// noteIDSearch finds a note id anywhere in a path.
var noteIDSearch = regexp.MustCompile(`sb-[a-f0-9]{7}`)

// FrontMatter is the metadata block at the head of every knowledge item.
type FrontMatter struct {
	ID      string   `yaml:"id"`
	Title   string   `yaml:"title"`
	Type    string   `yaml:"type"`
	Tags    []string `yaml:"tags,omitempty"`
	Status  string   `yaml:"status,omitempty"`
	Created string   `yaml:"created,omitempty"`
}

// RenderNote produces a markdown note with a YAML front matter header.
func RenderNote(fm FrontMatter, body string) (string, error) {
	if fm.Created == "" {
		fm.Created = time.Now().UTC().Format("2006-01-02")
	}
	encoded, err := yaml.Marshal(&fm)
	if err != nil {
		return "", fmt.Errorf("encode front matter: %w", err)
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(encoded)
	b.WriteString("---\n\n")
	b.WriteString(strings.TrimRight(body, "\n"))
	b.WriteString("\n")
	return b.String(), nil
}

// ParseNote splits a note into front matter and body. A note without a
// well-formed front matter block yields a nil FrontMatter and the full
// content as body; that is not an error, older notes predate the format.
func ParseNote(content string) (*FrontMatter, string) {
	if !strings.HasPrefix(content, "---\n") {
		return nil, content
	}
	rest := content[4:]
	idx := strings.Index(rest, "\n---")
	if idx < 0 {
		return nil, content
	}

	var fm FrontMatter
	if err := yaml.Unmarshal([]byte(rest[:idx]), &fm); err != nil {
		return nil, content
	}

	body := rest[idx+4:]
	body = strings.TrimLeft(body, "\n")
	return &fm, body
}

// NoteIDFromPath extracts the note id embedded in a repository path, or "".
func NoteIDFromPath(path string) string {
	return noteIDSearch.FindString(path)
}
