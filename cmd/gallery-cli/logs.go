package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/spf13/cobra"
)

var (
	logFunctionFlag string
	logSinceFlag    time.Duration
	logFilterFlag   string
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Print recent CloudWatch logs for a pipeline Lambda",
	Long: `Fetch recent log events from the Lambda's CloudWatch log group.

Examples:
  gallery-cli logs --function thumbnail-lambda --since 30m
  gallery-cli logs --function annotation-lambda --filter "Job failed"`,
	RunE: runLogs,
}

func init() {
	logsCmd.Flags().StringVar(&logFunctionFlag, "function", "", "Lambda function name (required)")
	logsCmd.Flags().DurationVar(&logSinceFlag, "since", 15*time.Minute, "How far back to fetch")
	logsCmd.Flags().StringVar(&logFilterFlag, "filter", "", "CloudWatch filter pattern")
	logsCmd.MarkFlagRequired("function")
}

func runLogs(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return fmt.Errorf("load AWS config: %w", err)
	}
	client := cloudwatchlogs.NewFromConfig(cfg)

	logGroup := "/aws/lambda/" + logFunctionFlag
	startTime := time.Now().Add(-logSinceFlag).UnixMilli()

	input := &cloudwatchlogs.FilterLogEventsInput{
		LogGroupName: aws.String(logGroup),
		StartTime:    aws.Int64(startTime),
	}
	if logFilterFlag != "" {
		input.FilterPattern = aws.String(logFilterFlag)
	}

	count := 0
	for {
		out, err := client.FilterLogEvents(ctx, input)
		if err != nil {
			return fmt.Errorf("filter log events for %s: %w", logGroup, err)
		}
		for _, event := range out.Events {
			ts := time.UnixMilli(aws.ToInt64(event.Timestamp)).Local().Format("15:04:05")
			fmt.Printf("%s %s\n", ts, strings.TrimRight(aws.ToString(event.Message), "\n"))
			count++
		}
		if out.NextToken == nil {
			break
		}
		input.NextToken = out.NextToken
	}

	if count == 0 {
		fmt.Printf("No events in %s over the last %s.\n", logGroup, logSinceFlag)
	}
	return nil
}
