package cli

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewFlowCmd создаёт группу команд для управления flows.
func NewFlowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flow",
		Short: "Manage flows",
	}

	cmd.AddCommand(
		newFlowSubmitCmd(clientFn, outputFn),
		newFlowListCmd(clientFn, outputFn),
		newFlowShowCmd(clientFn, outputFn),
		newFlowCancelCmd(clientFn, outputFn),
		newFlowWatchCmd(clientFn, outputFn),
	)

	return cmd
}

var flowHeaders = []string{"ID", "PROJECT", "TYPE", "STATUS", "CREATED"}

func flowRow(f FlowResponse) []string {
	return []string{f.ID, f.ProjectID, f.FlowType, f.Status, f.CreatedAt}
}

func newFlowSubmitCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var projectID string
	var flowType string
	var prompt string
	var priority int
	var paramsJSON string

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a new flow",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			req := CreateFlowRequest{
				FlowType: flowType,
				Prompt:   prompt,
				Priority: priority,
			}
			if paramsJSON != "" {
				if err := json.Unmarshal([]byte(paramsJSON), &req.Parameters); err != nil {
					return fmt.Errorf("invalid --params JSON: %w", err)
				}
			}

			flow, err := client.CreateFlow(projectID, req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Flow submitted: %s", flow.ID))
			out.Print(flowHeaders, [][]string{flowRow(*flow)}, flow)
			return nil
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "Project ID (required)")
	cmd.Flags().StringVar(&flowType, "type", "analytics-composite", "Flow type (strategy|content|community|analytics-composite)")
	cmd.Flags().StringVar(&prompt, "prompt", "", "Prompt for the pipeline (required)")
	cmd.Flags().IntVar(&priority, "priority", 0, "Informational priority")
	cmd.Flags().StringVar(&paramsJSON, "params", "", "Extra parameters as JSON object")
	cmd.MarkFlagRequired("project")
	cmd.MarkFlagRequired("prompt")

	return cmd
}

func newFlowListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var projectID string
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List flows",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			flows, err := client.ListFlows(ListFlowsOpts{
				ProjectID: projectID,
				Status:    status,
				Limit:     limit,
			})
			if err != nil {
				return err
			}

			rows := make([][]string, len(flows))
			for i, f := range flows {
				rows[i] = flowRow(f)
			}

			out.Print(flowHeaders, rows, flows)
			return nil
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "Filter by project ID")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of flows")

	return cmd
}

func newFlowShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show flow details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			flow, err := client.GetFlow(args[0])
			if err != nil {
				return err
			}

			headers := []string{"ID", "TYPE", "STATUS", "STARTED", "COMPLETED", "EXEC_TIME"}
			execTime := ""
			if flow.ExecutionTime != nil {
				execTime = strconv.FormatFloat(*flow.ExecutionTime, 'f', 2, 64) + "s"
			}
			out.Print(
				headers,
				[][]string{{flow.ID, flow.FlowType, flow.Status, flow.StartedAt, flow.CompletedAt, execTime}},
				flow,
			)
			if flow.Result != "" {
				out.Line("")
				out.Line(flow.Result)
			}
			if flow.Error != "" {
				out.Error(flow.Error)
			}
			return nil
		},
	}
}

func newFlowCancelCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel ID",
		Short: "Cancel a flow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			flow, err := client.CancelFlow(args[0])
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Flow cancelled: %s", flow.ID))
			out.Print(flowHeaders, [][]string{flowRow(*flow)}, flow)
			return nil
		},
	}
}

func newFlowWatchCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "watch ID",
		Short: "Stream flow events until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			return client.WatchFlow(args[0], func(frame EventFrame) bool {
				switch frame.Type {
				case "connection":
					status, _ := frame.Payload["status"].(string)
					out.Success(fmt.Sprintf("Connected, current status: %s", status))
					// Терминальный снимок — ждать больше нечего.
					return !isTerminalStatus(status)
				case "stage":
					stage, _ := frame.Payload["stage"].(string)
					status, _ := frame.Payload["status"].(string)
					out.Line(fmt.Sprintf("[stage] %s: %s", stage, status))
					if content, ok := frame.Payload["content"].(string); ok && content != "" {
						out.Line(content)
					}
				case "status":
					status, _ := frame.Payload["status"].(string)
					line := fmt.Sprintf("[status] %s", status)
					if errMsg, ok := frame.Payload["error"].(string); ok && errMsg != "" {
						line += ": " + errMsg
					}
					out.Line(line)
					return !isTerminalStatus(status)
				}
				return true
			})
		},
	}
}

// isTerminalStatus повторяет domain.FlowStatus.IsTerminal по строке:
// CLI не импортирует внутренние пакеты сервера.
func isTerminalStatus(status string) bool {
	switch status {
	case "completed", "failed", "cancelled":
		return true
	default:
		return false
	}
}
