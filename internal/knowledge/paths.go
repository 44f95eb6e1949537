package knowledge

import (
	"fmt"
	"time"

	"github.com/loretree/loretree/internal/domain/decision"
	"github.com/loretree/loretree/internal/domain/vcs"
)

// Folder layout of the knowledge repository. Numeric prefixes keep folders
// sorted in the order items flow through the system.
const (
	FolderInbox     = "00-inbox"
	FolderIdeas     = "10-ideas"
	FolderDecisions = "20-decisions"
	FolderProjects  = "30-projects"
	FolderReceipts  = "90-receipts"
)

var classFolders = map[decision.Classification]string{
	decision.ClassInbox:    FolderInbox,
	decision.ClassTask:     FolderInbox,
	decision.ClassIdea:     FolderIdeas,
	decision.ClassDecision: FolderDecisions,
	decision.ClassProject:  FolderProjects,
}

// ItemFolders lists the folders that hold knowledge items with front matter.
var ItemFolders = []string{FolderIdeas, FolderDecisions, FolderProjects}

// FilePath maps a classification to its deterministic repository path.
// Inbox entries and tasks land in the date-stamped daily file; ideas,
// decisions and projects get a slug-named note carrying the note id.
func FilePath(class decision.Classification, slug, noteID string, date time.Time) (string, error) {
	folder, ok := classFolders[class]
	if !ok {
		return "", fmt.Errorf("no folder mapping for classification %q", class)
	}

	day := date.UTC().Format("2006-01-02")
	switch class {
	case decision.ClassInbox, decision.ClassTask:
		return fmt.Sprintf("%s/%s.md", folder, day), nil
	default:
		if slug == "" {
			return "", fmt.Errorf("%w: %s", vcs.ErrSlugRequired, class)
		}
		return fmt.Sprintf("%s/%s__%s__%s.md", folder, day, slug, noteID), nil
	}
}

// ReceiptPath is the daily audit receipt file.
func ReceiptPath(date time.Time) string {
	return fmt.Sprintf("%s/%s.md", FolderReceipts, date.UTC().Format("2006-01-02"))
}
