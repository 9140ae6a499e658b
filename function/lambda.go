package function

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"

	"github.com/shono-io/funcship/sdk"
)

// LambdaAPI defines the Lambda operations used by LambdaClient.
type LambdaAPI interface {
	GetFunctionConfiguration(ctx context.Context, params *lambda.GetFunctionConfigurationInput, optFns ...func(*lambda.Options)) (*lambda.GetFunctionConfigurationOutput, error)
	UpdateFunctionCode(ctx context.Context, params *lambda.UpdateFunctionCodeInput, optFns ...func(*lambda.Options)) (*lambda.UpdateFunctionCodeOutput, error)
}

// LambdaClient talks to Lambda through the AWS SDK. Clients are created per
// region by NewClient.
type LambdaClient struct {
	NewClient func(ctx context.Context, region string) (LambdaAPI, error)
}

func (c *LambdaClient) Status(ctx context.Context, region, name string) (Status, error) {
	api, err := c.NewClient(ctx, region)
	if err != nil {
		return Status{}, err
	}

	out, err := api.GetFunctionConfiguration(ctx, &lambda.GetFunctionConfigurationInput{
		FunctionName: aws.String(name),
	})
	if err != nil {
		return Status{}, fmt.Errorf("lambda: get function configuration %q: %w", name, err)
	}

	return Status{
		Status: ParseUpdateStatus(string(out.LastUpdateStatus)),
		Reason: aws.ToString(out.LastUpdateStatusReason),
	}, nil
}

func (c *LambdaClient) UpdateCode(ctx context.Context, region, name string, image sdk.ImageRef) error {
	api, err := c.NewClient(ctx, region)
	if err != nil {
		return err
	}

	if _, err := api.UpdateFunctionCode(ctx, &lambda.UpdateFunctionCodeInput{
		FunctionName: aws.String(name),
		ImageUri:     aws.String(image.String()),
	}); err != nil {
		return fmt.Errorf("lambda: update function code %q: %w", name, err)
	}
	return nil
}
