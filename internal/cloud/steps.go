package cloud

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/aws/aws-sdk-go-v2/service/sfn/types"
	"github.com/google/uuid"

	"github.com/umccr/holmes-report/internal/dispatch"
)

// SFNClient is the subset of the Step Functions API used to run checks.
type SFNClient interface {
	StartExecution(ctx context.Context, params *sfn.StartExecutionInput, optFns ...func(*sfn.Options)) (*sfn.StartExecutionOutput, error)
	DescribeExecution(ctx context.Context, params *sfn.DescribeExecutionInput, optFns ...func(*sfn.Options)) (*sfn.DescribeExecutionOutput, error)
}

// StepsService runs fingerprint checks as executions of the check state machine.
type StepsService struct {
	client     SFNClient
	machineARN string
}

// NewStepsService creates a dispatch.ComparisonService backed by machineARN.
func NewStepsService(client SFNClient, machineARN string) *StepsService {
	return &StepsService{client: client, machineARN: machineARN}
}

// Submit starts one execution. Execution names are random so reruns of the
// same fingerprint never collide.
func (s *StepsService) Submit(ctx context.Context, req dispatch.Request) (string, error) {
	input, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode check input: %w", err)
	}

	out, err := s.client.StartExecution(ctx, &sfn.StartExecutionInput{
		StateMachineArn: aws.String(s.machineARN),
		Name:            aws.String(uuid.NewString()),
		Input:           aws.String(string(input)),
	})
	if err != nil {
		return "", fmt.Errorf("start execution: %w", err)
	}
	return aws.ToString(out.ExecutionArn), nil
}

// Poll describes the execution. Output is only populated on success.
func (s *StepsService) Poll(ctx context.Context, handle string) (dispatch.Execution, error) {
	out, err := s.client.DescribeExecution(ctx, &sfn.DescribeExecutionInput{
		ExecutionArn: aws.String(handle),
	})
	if err != nil {
		return dispatch.Execution{}, fmt.Errorf("describe execution: %w", err)
	}

	exec := dispatch.Execution{State: mapStatus(out.Status)}
	if exec.State == dispatch.StateSucceeded && out.Output != nil {
		exec.Output = []byte(*out.Output)
	}
	return exec, nil
}

func mapStatus(s types.ExecutionStatus) dispatch.State {
	switch s {
	case types.ExecutionStatusRunning:
		return dispatch.StateRunning
	case types.ExecutionStatusPendingRedrive:
		return dispatch.StatePending
	case types.ExecutionStatusSucceeded:
		return dispatch.StateSucceeded
	case types.ExecutionStatusFailed, types.ExecutionStatusTimedOut:
		return dispatch.StateFailed
	case types.ExecutionStatusAborted:
		return dispatch.StateAborted
	default:
		return dispatch.State(s)
	}
}
