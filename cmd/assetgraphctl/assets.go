package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var assetsCmd = &cobra.Command{
	Use:   "assets",
	Short: "Inspect assets and their version history",
}

var assetsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Get a single asset version",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()

		var result map[string]any
		if err := client.getJSON(fmt.Sprintf("%s/assets/%s", apiBase, args[0]), &result); err != nil {
			return fmt.Errorf("failed to get asset: %w", err)
		}

		return printOutput(result)
	},
}

var assetsRevisionsCmd = &cobra.Command{
	Use:   "revisions <id>",
	Short: "List all versions of the asset's logical entity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()

		var result struct {
			Revisions []struct {
				ID            string  `json:"id"`
				Version       int     `json:"version"`
				IsCurrent     bool    `json:"isCurrent"`
				Status        string  `json:"status"`
				ApprovalState string  `json:"approvalState"`
				RevisionCode  *string `json:"revisionCode"`
				CreatedBy     string  `json:"createdBy"`
			} `json:"revisions"`
		}
		if err := client.getJSON(fmt.Sprintf("%s/assets/%s/revisions", apiBase, args[0]), &result); err != nil {
			return fmt.Errorf("failed to list revisions: %w", err)
		}

		if outputFmt == "json" || outputFmt == "yaml" {
			return printOutput(result)
		}

		headers := []string{"ID", "Version", "Current", "Status", "Approval", "Revision", "By"}
		rows := make([][]string, 0, len(result.Revisions))
		for _, rev := range result.Revisions {
			current := ""
			if rev.IsCurrent {
				current = "*"
			}
			code := ""
			if rev.RevisionCode != nil {
				code = *rev.RevisionCode
			}
			rows = append(rows, []string{
				truncate(rev.ID, 12),
				fmt.Sprintf("%d", rev.Version),
				current,
				rev.Status,
				rev.ApprovalState,
				code,
				rev.CreatedBy,
			})
		}
		printTable(headers, rows)
		return nil
	},
}

var snapshotMessage string

var assetsSnapshotCmd = &cobra.Command{
	Use:   "snapshot <id>",
	Short: "Create a new version from the current head",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()

		body := map[string]any{"commitMessage": snapshotMessage}
		var result map[string]any
		if err := client.postJSON(fmt.Sprintf("%s/assets/%s/revisions", apiBase, args[0]), body, &result); err != nil {
			return fmt.Errorf("failed to create revision: %w", err)
		}

		if outputFmt == "json" || outputFmt == "yaml" {
			return printOutput(result)
		}
		fmt.Printf("Created version %v (%v)\n", result["version"], result["id"])
		return nil
	},
}

var edgeTypeFilter string

var assetsEdgesCmd = &cobra.Command{
	Use:   "edges <id>",
	Short: "List relationship edges touching an asset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()

		path := fmt.Sprintf("%s/assets/%s/edges", apiBase, args[0])
		if edgeTypeFilter != "" {
			path += "?type=" + edgeTypeFilter
		}

		type edge struct {
			ID          string `json:"id"`
			FromAssetID string `json:"fromAssetId"`
			ToAssetID   string `json:"toAssetId"`
			EdgeType    string `json:"edgeType"`
		}
		var result struct {
			Outgoing []edge `json:"outgoing"`
			Incoming []edge `json:"incoming"`
		}
		if err := client.getJSON(path, &result); err != nil {
			return fmt.Errorf("failed to list edges: %w", err)
		}

		if outputFmt == "json" || outputFmt == "yaml" {
			return printOutput(result)
		}

		headers := []string{"Direction", "Type", "From", "To"}
		rows := make([][]string, 0, len(result.Outgoing)+len(result.Incoming))
		for _, e := range result.Outgoing {
			rows = append(rows, []string{"out", e.EdgeType, truncate(e.FromAssetID, 12), truncate(e.ToAssetID, 12)})
		}
		for _, e := range result.Incoming {
			rows = append(rows, []string{"in", e.EdgeType, truncate(e.FromAssetID, 12), truncate(e.ToAssetID, 12)})
		}
		printTable(headers, rows)
		return nil
	},
}

var assetsHistoryCmd = &cobra.Command{
	Use:   "history <id>",
	Short: "List audit events for an asset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()

		var result struct {
			Events []struct {
				EventType string `json:"eventType"`
				Actor     string `json:"actor"`
				Action    string `json:"action"`
				Outcome   string `json:"outcome"`
				Reason    string `json:"reason"`
				CreatedAt string `json:"createdAt"`
			} `json:"events"`
			TotalSize int `json:"totalSize"`
		}
		if err := client.getJSON(fmt.Sprintf("%s/assets/%s/history", apiBase, args[0]), &result); err != nil {
			return fmt.Errorf("failed to list history: %w", err)
		}

		if outputFmt == "json" || outputFmt == "yaml" {
			return printOutput(result)
		}

		headers := []string{"Event", "Actor", "Action", "Outcome", "Reason", "At"}
		rows := make([][]string, 0, len(result.Events))
		for _, ev := range result.Events {
			rows = append(rows, []string{
				ev.EventType, ev.Actor, ev.Action, ev.Outcome, truncate(ev.Reason, 30), ev.CreatedAt,
			})
		}
		printTable(headers, rows)
		fmt.Printf("Total: %d\n", result.TotalSize)
		return nil
	},
}

func init() {
	assetsSnapshotCmd.Flags().StringVarP(&snapshotMessage, "message", "m", "", "Commit message for the new version")
	assetsEdgesCmd.Flags().StringVar(&edgeTypeFilter, "type", "", "Filter by edge type (e.g. APPROVED_BY)")

	assetsCmd.AddCommand(assetsGetCmd)
	assetsCmd.AddCommand(assetsRevisionsCmd)
	assetsCmd.AddCommand(assetsSnapshotCmd)
	assetsCmd.AddCommand(assetsEdgesCmd)
	assetsCmd.AddCommand(assetsHistoryCmd)

	rootCmd.AddCommand(assetsCmd)
}
