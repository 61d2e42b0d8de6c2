package cloud

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/servicediscovery"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/mock"
)

type MockSFNClient struct {
	mock.Mock
}

func (m *MockSFNClient) StartExecution(ctx context.Context, params *sfn.StartExecutionInput, _ ...func(*sfn.Options)) (*sfn.StartExecutionOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*sfn.StartExecutionOutput)
	return out, args.Error(1)
}

func (m *MockSFNClient) DescribeExecution(ctx context.Context, params *sfn.DescribeExecutionInput, _ ...func(*sfn.Options)) (*sfn.DescribeExecutionOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*sfn.DescribeExecutionOutput)
	return out, args.Error(1)
}

type MockDiscoveryClient struct {
	mock.Mock
}

func (m *MockDiscoveryClient) DiscoverInstances(ctx context.Context, params *servicediscovery.DiscoverInstancesInput, _ ...func(*servicediscovery.Options)) (*servicediscovery.DiscoverInstancesOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*servicediscovery.DiscoverInstancesOutput)
	return out, args.Error(1)
}

type MockSecretsClient struct {
	mock.Mock
}

func (m *MockSecretsClient) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*secretsmanager.GetSecretValueOutput)
	return out, args.Error(1)
}

type MockS3Client struct {
	mock.Mock
}

func (m *MockS3Client) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*s3.ListObjectsV2Output)
	return out, args.Error(1)
}

// fakeMinio replays a fixed object listing.
type fakeMinio struct {
	objects []minio.ObjectInfo
	opts    minio.ListObjectsOptions
}

func (f *fakeMinio) ListObjects(ctx context.Context, _ string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo {
	f.opts = opts
	ch := make(chan minio.ObjectInfo)
	go func() {
		defer close(ch)
		for _, obj := range f.objects {
			select {
			case ch <- obj:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}
