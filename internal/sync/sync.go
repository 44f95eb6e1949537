package sync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/loretree/loretree/internal/config"
	"github.com/loretree/loretree/internal/domain/item"
	"github.com/loretree/loretree/internal/domain/vcs"
	"github.com/loretree/loretree/internal/knowledge"
)

// maxDiscrepancySamples caps the discrepancy lists in a health report; the
// counts stay exact, only the samples are truncated.
const maxDiscrepancySamples = 10

// Result summarizes one sync run.
type Result struct {
	ItemsSynced  int    `json:"items_synced"`
	ItemsDeleted int    `json:"items_deleted"`
	NewCommitID  string `json:"new_commit_id,omitempty"`
	Skipped      bool   `json:"skipped"`
}

// Report compares the repository with the index.
type Report struct {
	RepoCount        int       `json:"repo_count"`
	IndexCount       int       `json:"index_count"`
	InSync           bool      `json:"in_sync"`
	LastSyncCommitID string    `json:"last_sync_commit_id,omitempty"`
	LastSyncAt       time.Time `json:"last_sync_at,omitempty"`
	MissingInIndex   []string  `json:"missing_in_index,omitempty"`
	ExtraInIndex     []string  `json:"extra_in_index,omitempty"`
}

// Service keeps the item index consistent with the slug-named notes in the
// repository. Sync is incremental: only files changed since the marker commit
// are visited, and a marker already at HEAD is a no-op.
type Service struct {
	repo   vcs.RepoAPI
	branch string
	items  item.Repository
	logger *zap.Logger
}

func NewService(repo vcs.RepoAPI, cfg *config.Config, items item.Repository, logger *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		branch: cfg.KnowledgeBranch,
		items:  items,
		logger: logger.Named("sync"),
	}
}

// Sync brings the index up to the repository HEAD.
func (s *Service) Sync(ctx context.Context) (Result, error) {
	head, err := s.repo.LatestCommitID(ctx, s.branch)
	if err != nil {
		return Result{}, fmt.Errorf("resolve head: %w", err)
	}
	if head == "" {
		// Empty repository, nothing to index.
		return Result{Skipped: true}, nil
	}

	marker, err := s.items.GetMarker(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load sync marker: %w", err)
	}

	if marker != nil && marker.CommitID == head {
		s.logger.Info("sync_skipped_up_to_date", zap.String("commit_id", head))
		return Result{Skipped: true, NewCommitID: head}, nil
	}

	var changes []vcs.Change
	if marker == nil {
		changes, err = s.fullScan(ctx, head)
	} else {
		changes, err = s.repo.Diff(ctx, marker.CommitID, head)
	}
	if err != nil {
		return Result{}, fmt.Errorf("collect changes: %w", err)
	}

	result := Result{NewCommitID: head}
	for _, change := range changes {
		if !itemFile(change.Path) {
			continue
		}

		if change.Type == vcs.ChangeDeleted {
			noteID := knowledge.NoteIDFromPath(change.Path)
			if noteID == "" {
				continue
			}
			if err := s.items.DeleteByNoteID(ctx, noteID); err != nil {
				return Result{}, fmt.Errorf("delete %s from index: %w", noteID, err)
			}
			result.ItemsDeleted++
			continue
		}

		content, err := s.repo.GetFileAt(ctx, change.Path, head)
		if err != nil {
			return Result{}, fmt.Errorf("read %s: %w", change.Path, err)
		}
		if content == nil {
			continue
		}
		it := ExtractItemMetadata(change.Path, string(content))
		if it == nil {
			s.logger.Warn("item_metadata_unparseable", zap.String("path", change.Path))
			continue
		}
		if err := s.items.Upsert(ctx, it); err != nil {
			return Result{}, fmt.Errorf("index %s: %w", it.NoteID, err)
		}
		result.ItemsSynced++
	}

	if err := s.items.SetMarker(ctx, head); err != nil {
		return Result{}, fmt.Errorf("advance sync marker: %w", err)
	}

	s.logger.Info("sync_completed",
		zap.Int("items_synced", result.ItemsSynced),
		zap.Int("items_deleted", result.ItemsDeleted),
		zap.String("commit_id", head),
	)
	return result, nil
}

// Health compares repository note ids against the index and samples up to
// ten discrepancies on each side.
func (s *Service) Health(ctx context.Context) (Report, error) {
	head, err := s.repo.LatestCommitID(ctx, s.branch)
	if err != nil {
		return Report{}, fmt.Errorf("resolve head: %w", err)
	}

	repoIDs := make(map[string]struct{})
	if head != "" {
		for _, folder := range knowledge.ItemFolders {
			paths, err := s.repo.ListFolder(ctx, folder, head)
			if err != nil {
				return Report{}, fmt.Errorf("list %s: %w", folder, err)
			}
			for _, path := range paths {
				if noteID := knowledge.NoteIDFromPath(path); noteID != "" {
					repoIDs[noteID] = struct{}{}
				}
			}
		}
	}

	indexed, err := s.items.List(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list index: %w", err)
	}
	indexIDs := make(map[string]struct{}, len(indexed))
	for _, it := range indexed {
		indexIDs[it.NoteID] = struct{}{}
	}

	report := Report{
		RepoCount:  len(repoIDs),
		IndexCount: len(indexIDs),
	}
	for noteID := range repoIDs {
		if _, ok := indexIDs[noteID]; !ok && len(report.MissingInIndex) < maxDiscrepancySamples {
			report.MissingInIndex = append(report.MissingInIndex, noteID)
		}
	}
	for noteID := range indexIDs {
		if _, ok := repoIDs[noteID]; !ok && len(report.ExtraInIndex) < maxDiscrepancySamples {
			report.ExtraInIndex = append(report.ExtraInIndex, noteID)
		}
	}
	report.InSync = len(report.MissingInIndex) == 0 && len(report.ExtraInIndex) == 0

	if marker, err := s.items.GetMarker(ctx); err == nil && marker != nil {
		report.LastSyncCommitID = marker.CommitID
		report.LastSyncAt = marker.SyncedAt
	}
	return report, nil
}

// fullScan lists every item file at head, for the first sync when there is
// no marker to diff against.
func (s *Service) fullScan(ctx context.Context, head string) ([]vcs.Change, error) {
	var changes []vcs.Change
	for _, folder := range knowledge.ItemFolders {
		paths, err := s.repo.ListFolder(ctx, folder, head)
		if err != nil {
			return nil, err
		}
		for _, path := range paths {
			changes = append(changes, vcs.Change{Path: path, Type: vcs.ChangeAdded})
		}
	}
	return changes, nil
}

// ExtractItemMetadata builds an index row from a note. Front matter wins; a
// note without usable front matter falls back to path-derived fields. A file
// whose id is malformed is not an item.
func ExtractItemMetadata(path, content string) *item.Item {
	noteID := knowledge.NoteIDFromPath(path)
	folder, _, _ := strings.Cut(path, "/")
	itemType := typeForFolder(folder)
	if itemType == "" {
		return nil
	}

	it := &item.Item{
		NoteID: noteID,
		Type:   itemType,
		Path:   path,
		Title:  titleFromPath(path),
	}

	fm, _ := knowledge.ParseNote(content)
	if fm != nil {
		if fm.ID != "" {
			it.NoteID = fm.ID
		}
		if fm.Title != "" {
			it.Title = fm.Title
		}
		if fm.Type != "" {
			it.Type = fm.Type
		}
		it.Tags = fm.Tags
		it.Status = fm.Status
	}

	if !knowledge.NoteIDPattern.MatchString(it.NoteID) {
		return nil
	}
	return it
}

// itemFile reports whether the path lives in a folder that holds indexable
// knowledge items.
func itemFile(path string) bool {
	for _, folder := range knowledge.ItemFolders {
		if strings.HasPrefix(path, folder+"/") {
			return true
		}
	}
	return false
}

func typeForFolder(folder string) string {
	switch folder {
	case knowledge.FolderIdeas:
		return "idea"
	case knowledge.FolderDecisions:
		return "decision"
	case knowledge.FolderProjects:
		return "project"
	}
	return ""
}

// titleFromPath recovers a readable title from the slug segment of
// 10-ideas/2025-01-20__some-slug__sb-xxxxxxx.md.
func titleFromPath(path string) string {
	name := path
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	name = strings.TrimSuffix(name, ".md")
	parts := strings.Split(name, "__")
	if len(parts) < 2 {
		return name
	}
	return strings.ReplaceAll(parts[1], "-", " ")
}
