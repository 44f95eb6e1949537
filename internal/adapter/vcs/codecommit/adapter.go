package codecommit

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/codecommit"
	"github.com/aws/aws-sdk-go-v2/service/codecommit/types"

	"github.com/loretree/loretree/internal/config"
	"github.com/loretree/loretree/internal/domain/vcs"
)

// Adapter implements vcs.RepoAPI over AWS CodeCommit. Conflict and
// absence conditions are translated at this boundary so the write layer never
// dispatches on SDK exception types.
type Adapter struct {
	client *codecommit.Client
	repo   string
	branch string
}

func NewAdapter(cfg *config.Config) (*Adapter, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.AWSRegion),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &Adapter{
		client: codecommit.NewFromConfig(awsCfg),
		repo:   cfg.KnowledgeRepoName,
		branch: cfg.KnowledgeBranch,
	}, nil
}

func (a *Adapter) LatestCommitID(ctx context.Context, branch string) (string, error) {
	if branch == "" {
		branch = a.branch
	}
	out, err := a.client.GetBranch(ctx, &codecommit.GetBranchInput{
		RepositoryName: aws.String(a.repo),
		BranchName:     aws.String(branch),
	})
	if err != nil {
		var branchMissing *types.BranchDoesNotExistException
		if errors.As(err, &branchMissing) {
			return "", nil
		}
		return "", fmt.Errorf("get branch %s: %w", branch, err)
	}
	if out.Branch == nil || out.Branch.CommitId == nil {
		return "", nil
	}
	return *out.Branch.CommitId, nil
}

func (a *Adapter) GetFile(ctx context.Context, path string) ([]byte, error) {
	return a.getFile(ctx, path, nil)
}

func (a *Adapter) GetFileAt(ctx context.Context, path, commitID string) ([]byte, error) {
	return a.getFile(ctx, path, aws.String(commitID))
}

func (a *Adapter) getFile(ctx context.Context, path string, commitSpecifier *string) ([]byte, error) {
	out, err := a.client.GetFile(ctx, &codecommit.GetFileInput{
		RepositoryName:  aws.String(a.repo),
		FilePath:        aws.String(path),
		CommitSpecifier: commitSpecifier,
	})
	if err != nil {
		var fileMissing *types.FileDoesNotExistException
		var commitMissing *types.CommitDoesNotExistException
		if errors.As(err, &fileMissing) || errors.As(err, &commitMissing) {
			return nil, nil
		}
		return nil, fmt.Errorf("get file %s: %w", path, err)
	}
	return out.FileContent, nil
}

func (a *Adapter) PutFile(ctx context.Context, input vcs.PutFileInput) (vcs.CommitResult, error) {
	branch := input.Branch
	if branch == "" {
		branch = a.branch
	}

	req := &codecommit.CreateCommitInput{
		RepositoryName: aws.String(a.repo),
		BranchName:     aws.String(branch),
		CommitMessage:  aws.String(input.Message),
		AuthorName:     aws.String(input.AuthorName),
		Email:          aws.String(input.AuthorEmail),
		PutFiles: []types.PutFileEntry{
			{
				FilePath:    aws.String(input.Path),
				FileContent: input.Content,
			},
		},
	}
	// The first-ever commit on a branch has no parent.
	if input.ParentCommitID != "" {
		req.ParentCommitId = aws.String(input.ParentCommitID)
	}

	out, err := a.client.CreateCommit(ctx, req)
	if err != nil {
		var outdated *types.ParentCommitIdOutdatedException
		if errors.As(err, &outdated) {
			return vcs.CommitResult{}, fmt.Errorf("commit %s: %w", input.Path, vcs.ErrStaleParent)
		}
		return vcs.CommitResult{}, fmt.Errorf("commit %s: %w", input.Path, err)
	}

	return vcs.CommitResult{
		CommitID:       aws.ToString(out.CommitId),
		FilePath:       input.Path,
		ParentCommitID: input.ParentCommitID,
	}, nil
}

func (a *Adapter) ListFolder(ctx context.Context, folder, commitID string) ([]string, error) {
	var commitSpecifier *string
	if commitID != "" {
		commitSpecifier = aws.String(commitID)
	}
	out, err := a.client.GetFolder(ctx, &codecommit.GetFolderInput{
		RepositoryName:  aws.String(a.repo),
		FolderPath:      aws.String(folder),
		CommitSpecifier: commitSpecifier,
	})
	if err != nil {
		var folderMissing *types.FolderDoesNotExistException
		if errors.As(err, &folderMissing) {
			return nil, nil
		}
		return nil, fmt.Errorf("list folder %s: %w", folder, err)
	}

	paths := make([]string, 0, len(out.Files))
	for _, f := range out.Files {
		if f.AbsolutePath != nil {
			paths = append(paths, *f.AbsolutePath)
		}
	}
	return paths, nil
}

func (a *Adapter) Diff(ctx context.Context, beforeCommitID, afterCommitID string) ([]vcs.Change, error) {
	input := &codecommit.GetDifferencesInput{
		RepositoryName:       aws.String(a.repo),
		AfterCommitSpecifier: aws.String(afterCommitID),
	}
	if beforeCommitID != "" {
		input.BeforeCommitSpecifier = aws.String(beforeCommitID)
	}

	var changes []vcs.Change
	for {
		out, err := a.client.GetDifferences(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("get differences: %w", err)
		}
		for _, diff := range out.Differences {
			switch {
			case diff.AfterBlob != nil && diff.AfterBlob.Path != nil:
				kind := vcs.ChangeModified
				if diff.ChangeType == types.ChangeTypeEnumAdded {
					kind = vcs.ChangeAdded
				}
				changes = append(changes, vcs.Change{Path: *diff.AfterBlob.Path, Type: kind})
			case diff.BeforeBlob != nil && diff.BeforeBlob.Path != nil:
				changes = append(changes, vcs.Change{Path: *diff.BeforeBlob.Path, Type: vcs.ChangeDeleted})
			}
		}
		if out.NextToken == nil {
			break
		}
		input.NextToken = out.NextToken
	}
	return changes, nil
}
