package cloud

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/servicediscovery"
)

// DiscoveryClient is the subset of the Cloud Map API used to locate services.
type DiscoveryClient interface {
	DiscoverInstances(ctx context.Context, params *servicediscovery.DiscoverInstancesInput, optFns ...func(*servicediscovery.Options)) (*servicediscovery.DiscoverInstancesOutput, error)
}

// CloudMapLocator finds the check state machine registered in Cloud Map.
type CloudMapLocator struct {
	client    DiscoveryClient
	namespace string
	service   string
	attribute string
}

// NewCloudMapLocator creates a locator that reads attribute from the first
// instance of service in namespace.
func NewCloudMapLocator(client DiscoveryClient, namespace, service, attribute string) *CloudMapLocator {
	return &CloudMapLocator{client: client, namespace: namespace, service: service, attribute: attribute}
}

// Locate returns the state machine ARN.
func (l *CloudMapLocator) Locate(ctx context.Context) (string, error) {
	out, err := l.client.DiscoverInstances(ctx, &servicediscovery.DiscoverInstancesInput{
		NamespaceName: aws.String(l.namespace),
		ServiceName:   aws.String(l.service),
	})
	if err != nil {
		return "", fmt.Errorf("discover %s/%s: %w", l.namespace, l.service, err)
	}
	if len(out.Instances) == 0 {
		return "", fmt.Errorf("%w: %s/%s", ErrNoInstance, l.namespace, l.service)
	}

	arn, ok := out.Instances[0].Attributes[l.attribute]
	if !ok || arn == "" {
		return "", fmt.Errorf("%w: %s on %s/%s", ErrMissingAttribute, l.attribute, l.namespace, l.service)
	}
	return arn, nil
}
