package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	ecrtypes "github.com/aws/aws-sdk-go-v2/service/ecr/types"
	"github.com/rs/zerolog/log"

	"github.com/shono-io/funcship/runner"
	"github.com/shono-io/funcship/sdk"
)

// ECR accepts at most this many image ids per batch delete.
const maxBatchDelete = 100

type (
	// Cleaner removes images from the repository a reference points at.
	// Both methods return the number of deleted images.
	Cleaner interface {
		DeleteUntagged(ctx context.Context, ref sdk.ImageRef) (int, error)
		DeleteAll(ctx context.Context, ref sdk.ImageRef) (int, error)
	}

	ImageID struct {
		ImageDigest string `json:"imageDigest,omitempty"`
		ImageTag    string `json:"imageTag,omitempty"`
	}
)

func chunks(ids []ImageID) [][]ImageID {
	var result [][]ImageID
	for len(ids) > maxBatchDelete {
		result = append(result, ids[:maxBatchDelete])
		ids = ids[maxBatchDelete:]
	}
	if len(ids) > 0 {
		result = append(result, ids)
	}
	return result
}

// CLICleaner drives `aws ecr list-images` and `aws ecr batch-delete-image`.
type CLICleaner struct {
	Runner runner.Runner
}

func (c *CLICleaner) DeleteUntagged(ctx context.Context, ref sdk.ImageRef) (int, error) {
	ids, err := c.list(ctx, ref, "--filter", "tagStatus=UNTAGGED")
	if err != nil {
		return 0, err
	}
	return c.delete(ctx, ref, ids)
}

func (c *CLICleaner) DeleteAll(ctx context.Context, ref sdk.ImageRef) (int, error) {
	ids, err := c.list(ctx, ref)
	if err != nil {
		return 0, err
	}
	return c.delete(ctx, ref, ids)
}

func (c *CLICleaner) list(ctx context.Context, ref sdk.ImageRef, extra ...string) ([]ImageID, error) {
	args := []string{"aws", "ecr", "list-images",
		"--region", ref.Region,
		"--repository-name", ref.Name,
	}
	args = append(args, extra...)
	args = append(args, "--query", "imageIds[*]", "--output", "json")

	res, err := runner.Check(ctx, c.Runner, runner.Invocation{Args: args})
	if err != nil {
		return nil, fmt.Errorf("unable to list images of %s: %w", ref.Repository(), err)
	}

	var ids []ImageID
	if err := json.Unmarshal([]byte(strings.TrimSpace(res.Output)), &ids); err != nil {
		return nil, fmt.Errorf("unable to parse image list: %w", err)
	}
	return ids, nil
}

func (c *CLICleaner) delete(ctx context.Context, ref sdk.ImageRef, ids []ImageID) (int, error) {
	if len(ids) == 0 {
		log.Info().Str("repository", ref.Repository()).Msg("nothing to delete")
		return 0, nil
	}

	for _, batch := range chunks(ids) {
		b, err := json.Marshal(batch)
		if err != nil {
			return 0, err
		}

		if _, err := runner.Check(ctx, c.Runner, runner.Invocation{Args: []string{
			"aws", "ecr", "batch-delete-image",
			"--region", ref.Region,
			"--repository-name", ref.Name,
			"--image-ids", string(b),
		}}); err != nil {
			return 0, fmt.Errorf("unable to delete images from %s: %w", ref.Repository(), err)
		}
	}

	return len(ids), nil
}

// ECRImagesAPI is the set of ECR operations used by ECRCleaner.
type ECRImagesAPI interface {
	ListImages(ctx context.Context, params *ecr.ListImagesInput, optFns ...func(*ecr.Options)) (*ecr.ListImagesOutput, error)
	BatchDeleteImage(ctx context.Context, params *ecr.BatchDeleteImageInput, optFns ...func(*ecr.Options)) (*ecr.BatchDeleteImageOutput, error)
}

// ECRCleaner does the same as CLICleaner through the AWS SDK.
type ECRCleaner struct {
	NewClient func(ctx context.Context, region string) (ECRImagesAPI, error)
}

func (c *ECRCleaner) DeleteUntagged(ctx context.Context, ref sdk.ImageRef) (int, error) {
	return c.deleteMatching(ctx, ref, &ecrtypes.ListImagesFilter{TagStatus: ecrtypes.TagStatusUntagged})
}

func (c *ECRCleaner) DeleteAll(ctx context.Context, ref sdk.ImageRef) (int, error) {
	return c.deleteMatching(ctx, ref, nil)
}

func (c *ECRCleaner) deleteMatching(ctx context.Context, ref sdk.ImageRef, filter *ecrtypes.ListImagesFilter) (int, error) {
	client, err := c.NewClient(ctx, ref.Region)
	if err != nil {
		return 0, err
	}

	var ids []ecrtypes.ImageIdentifier
	var next *string
	for {
		out, err := client.ListImages(ctx, &ecr.ListImagesInput{
			RepositoryName: aws.String(ref.Name),
			Filter:         filter,
			NextToken:      next,
		})
		if err != nil {
			return 0, fmt.Errorf("ecr: list images of %s: %w", ref.Repository(), err)
		}

		ids = append(ids, out.ImageIds...)
		if out.NextToken == nil || *out.NextToken == "" {
			break
		}
		next = out.NextToken
	}

	if len(ids) == 0 {
		log.Info().Str("repository", ref.Repository()).Msg("nothing to delete")
		return 0, nil
	}

	deleted := 0
	for start := 0; start < len(ids); start += maxBatchDelete {
		end := min(start+maxBatchDelete, len(ids))

		out, err := client.BatchDeleteImage(ctx, &ecr.BatchDeleteImageInput{
			RepositoryName: aws.String(ref.Name),
			ImageIds:       ids[start:end],
		})
		if err != nil {
			return deleted, fmt.Errorf("ecr: batch delete images from %s: %w", ref.Repository(), err)
		}

		for _, f := range out.Failures {
			log.Warn().
				Str("code", string(f.FailureCode)).
				Str("reason", aws.ToString(f.FailureReason)).
				Msg("image not deleted")
		}
		deleted += len(out.ImageIds)
	}

	return deleted, nil
}
