package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"intel-mcp/internal/mcp"
)

var flagStructured bool

func init() {
	callCmd.Flags().BoolVar(&flagStructured, "structured", false, "Print the full result envelope instead of the text summary")
	rootCmd.AddCommand(toolsCmd, callCmd)
}

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Print the tool catalogue",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		return printJSON(cmd.OutOrStdout(), mcp.ListToolsResult{Tools: a.dispatcher.Registry().List()})
	},
}

var callCmd = &cobra.Command{
	Use:   "call <tool> [json-args]",
	Short: "Invoke one tool locally",
	Long:  "Run a single tools/call through the same dispatcher the servers use and print the result.",
	Example: `  intel-mcp call cve_get '{"cveId":"CVE-2021-44228"}'
  intel-mcp call orkl_search_library '{"query":"lazarus","limit":3}'
  intel-mcp call profile_list_sections`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		params := map[string]any{"name": args[0]}
		if len(args) > 1 {
			var toolArgs map[string]any
			if err := json.Unmarshal([]byte(args[1]), &toolArgs); err != nil {
				return fmt.Errorf("invalid JSON arguments: %w", err)
			}
			params["arguments"] = toolArgs
		}
		raw, err := json.Marshal(params)
		if err != nil {
			return err
		}

		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		resp := a.dispatcher.Handle(cmd.Context(), &mcp.Request{
			JSONRPC: mcp.JSONRPCVersion,
			ID:      json.RawMessage("1"),
			Method:  mcp.MethodCallTool,
			Params:  raw,
		})
		if resp.Error != nil {
			return fmt.Errorf("%s (code %d)", resp.Error.Message, resp.Error.Code)
		}
		if flagStructured {
			return printJSON(cmd.OutOrStdout(), resp.Result)
		}
		res, ok := resp.Result.(mcp.CallToolResult)
		if !ok {
			return errors.New("unexpected tools/call result")
		}
		for _, c := range res.Content {
			fmt.Fprintln(cmd.OutOrStdout(), c.Text)
		}
		return nil
	},
}

func printJSON(w io.Writer, v any) error {
	if w == nil {
		w = os.Stdout
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
