package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var workflowsCmd = &cobra.Command{
	Use:   "workflows",
	Short: "Manage approval workflows",
}

var (
	workflowsProjectID string
	workflowsStatus    string
)

var workflowsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List approval workflows in a project",
	RunE: func(cmd *cobra.Command, args []string) error {
		if workflowsProjectID == "" {
			return fmt.Errorf("--project is required")
		}
		client := newClient()

		path := fmt.Sprintf("%s/approval-workflows?projectId=%s", apiBase, workflowsProjectID)
		if workflowsStatus != "" {
			path += "&status=" + workflowsStatus
		}

		var result struct {
			Workflows []struct {
				ID      string         `json:"id"`
				Name    string         `json:"name"`
				Content map[string]any `json:"content"`
			} `json:"workflows"`
		}
		if err := client.getJSON(path, &result); err != nil {
			return fmt.Errorf("failed to list workflows: %w", err)
		}

		if outputFmt == "json" || outputFmt == "yaml" {
			return printOutput(result)
		}

		headers := []string{"ID", "Name", "Status", "Step", "Target"}
		rows := make([][]string, 0, len(result.Workflows))
		for _, wf := range result.Workflows {
			status, _ := wf.Content["status"].(string)
			target, _ := wf.Content["target_asset_id"].(string)
			step := ""
			if n, ok := wf.Content["current_step"].(float64); ok {
				step = fmt.Sprintf("%d", int(n))
			}
			rows = append(rows, []string{
				truncate(wf.ID, 12),
				wf.Name,
				status,
				step,
				truncate(target, 12),
			})
		}
		printTable(headers, rows)
		return nil
	},
}

var (
	createName       string
	createProjectID  string
	createTarget     string
	createDefinition string
)

var workflowsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an approval workflow",
	RunE: func(cmd *cobra.Command, args []string) error {
		if createProjectID == "" || createName == "" {
			return fmt.Errorf("--project and --name are required")
		}
		client := newClient()

		body := map[string]any{
			"projectId":     createProjectID,
			"name":          createName,
			"targetAssetId": createTarget,
		}
		if createDefinition != "" {
			var def any
			if err := json.Unmarshal([]byte(createDefinition), &def); err != nil {
				return fmt.Errorf("invalid --definition JSON: %w", err)
			}
			body["workflowDefinition"] = def
		}

		var result map[string]any
		if err := client.postJSON(apiBase+"/approval-workflows", body, &result); err != nil {
			return fmt.Errorf("failed to create workflow: %w", err)
		}

		if outputFmt == "json" || outputFmt == "yaml" {
			return printOutput(result)
		}
		fmt.Printf("Workflow created: %v\n", result["id"])
		return nil
	},
}

var workflowsAdvanceCmd = &cobra.Command{
	Use:   "advance <id>",
	Short: "Advance a workflow to its next step",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()

		body := map[string]any{"id": args[0], "action": "advance"}
		var result map[string]any
		if err := client.putJSON(apiBase+"/approval-workflows", body, &result); err != nil {
			return fmt.Errorf("failed to advance workflow: %w", err)
		}

		if outputFmt == "json" || outputFmt == "yaml" {
			return printOutput(result)
		}
		fmt.Printf("%v\n", result["message"])
		return nil
	},
}

var decideComment string

func decideRun(decision string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		client := newClient()

		body := map[string]any{
			"id":       args[0],
			"action":   "decide",
			"decision": decision,
			"comment":  decideComment,
		}
		var result map[string]any
		if err := client.putJSON(apiBase+"/approval-workflows", body, &result); err != nil {
			return fmt.Errorf("failed to record decision: %w", err)
		}

		if outputFmt == "json" || outputFmt == "yaml" {
			return printOutput(result)
		}
		fmt.Printf("%v\n", result["message"])
		if target, ok := result["targetAssetId"].(string); ok && target != "" {
			fmt.Printf("Target asset: %s\n", target)
		}
		if warnings, ok := result["warnings"].([]any); ok {
			for _, w := range warnings {
				fmt.Printf("Warning: %v\n", w)
			}
		}
		return nil
	}
}

var workflowsApproveCmd = &cobra.Command{
	Use:   "approve <id>",
	Short: "Approve a workflow",
	Args:  cobra.ExactArgs(1),
	RunE:  decideRun("approve"),
}

var workflowsRejectCmd = &cobra.Command{
	Use:   "reject <id>",
	Short: "Reject a workflow",
	Args:  cobra.ExactArgs(1),
	RunE:  decideRun("reject"),
}

func init() {
	workflowsListCmd.Flags().StringVarP(&workflowsProjectID, "project", "p", "", "Project ID (required)")
	workflowsListCmd.Flags().StringVar(&workflowsStatus, "status", "", "Filter by status (pending, in_progress, completed)")

	workflowsCreateCmd.Flags().StringVarP(&createProjectID, "project", "p", "", "Project ID (required)")
	workflowsCreateCmd.Flags().StringVar(&createName, "name", "", "Workflow name (required)")
	workflowsCreateCmd.Flags().StringVar(&createTarget, "target", "", "Asset ID the workflow gates")
	workflowsCreateCmd.Flags().StringVar(&createDefinition, "definition", "", "Workflow definition as JSON")

	workflowsApproveCmd.Flags().StringVar(&decideComment, "comment", "", "Decision comment")
	workflowsRejectCmd.Flags().StringVar(&decideComment, "comment", "", "Rejection reason")

	workflowsCmd.AddCommand(workflowsListCmd)
	workflowsCmd.AddCommand(workflowsCreateCmd)
	workflowsCmd.AddCommand(workflowsAdvanceCmd)
	workflowsCmd.AddCommand(workflowsApproveCmd)
	workflowsCmd.AddCommand(workflowsRejectCmd)

	rootCmd.AddCommand(workflowsCmd)
}
