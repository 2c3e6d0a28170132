package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/spf13/cobra"
)

var dbClusterFlag string

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the Aurora images cluster",
	Long: `Inspect, start, or stop the Aurora Serverless cluster holding the images
table. The cluster is stopped outside active use to keep costs down; the Data
API returns errors while it resumes, so start it before a batch of uploads.`,
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the cluster's current state",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, id, err := rdsClient()
		if err != nil {
			return err
		}
		status, err := clusterStatus(client, id)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s\n", id, status)
		return nil
	},
}

var dbStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the cluster",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, id, err := rdsClient()
		if err != nil {
			return err
		}
		status, err := clusterStatus(client, id)
		if err != nil {
			return err
		}
		if status == "available" {
			fmt.Printf("%s is already available.\n", id)
			return nil
		}
		if _, err := client.StartDBCluster(context.Background(), &rds.StartDBClusterInput{
			DBClusterIdentifier: aws.String(id),
		}); err != nil {
			return fmt.Errorf("start cluster %s: %w", id, err)
		}
		fmt.Printf("%s starting (was %s); takes a few minutes.\n", id, status)
		return nil
	},
}

var dbStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the cluster",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, id, err := rdsClient()
		if err != nil {
			return err
		}
		status, err := clusterStatus(client, id)
		if err != nil {
			return err
		}
		if status != "available" {
			fmt.Printf("%s is %s; nothing to stop.\n", id, status)
			return nil
		}
		if _, err := client.StopDBCluster(context.Background(), &rds.StopDBClusterInput{
			DBClusterIdentifier: aws.String(id),
		}); err != nil {
			return fmt.Errorf("stop cluster %s: %w", id, err)
		}
		fmt.Printf("%s stopping.\n", id)
		return nil
	},
}

func init() {
	dbCmd.PersistentFlags().StringVar(&dbClusterFlag, "cluster", os.Getenv("IMAGES_CLUSTER_ID"), "DB cluster identifier (env: IMAGES_CLUSTER_ID)")
	dbCmd.AddCommand(dbStatusCmd)
	dbCmd.AddCommand(dbStartCmd)
	dbCmd.AddCommand(dbStopCmd)
}

func rdsClient() (*rds.Client, string, error) {
	if dbClusterFlag == "" {
		return nil, "", fmt.Errorf("--cluster or IMAGES_CLUSTER_ID is required")
	}
	cfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		return nil, "", fmt.Errorf("load AWS config: %w", err)
	}
	return rds.NewFromConfig(cfg), dbClusterFlag, nil
}

func clusterStatus(client *rds.Client, id string) (string, error) {
	out, err := client.DescribeDBClusters(context.Background(), &rds.DescribeDBClustersInput{
		DBClusterIdentifier: aws.String(id),
	})
	if err != nil {
		return "", fmt.Errorf("describe cluster %s: %w", id, err)
	}
	if len(out.DBClusters) == 0 {
		return "", fmt.Errorf("cluster %s not found", id)
	}
	return aws.ToString(out.DBClusters[0].Status), nil
}
