package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/layer-3/portal/session"
	"github.com/spf13/cobra"
)

var count int

var helloCmd = &cobra.Command{
	Use:   "hello",
	Short: "Call the protected greeting endpoint",
	RunE:  call(http.MethodGet, "/hello", nil),
}

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Request a prediction",
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]any{"data": map[string]int{"count": count}}
		return call(http.MethodPost, "/predict", body)(cmd, args)
	},
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show API information",
	RunE:  call(http.MethodGet, "/info", nil),
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check API health",
	RunE:  call(http.MethodGet, "/health", nil),
}

func init() {
	predictCmd.Flags().IntVarP(&count, "count", "n", 1, "Input count")
}

func call(method, endpoint string, body any) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := ensureVerified(ctx); err != nil {
			return explain(err)
		}

		var out json.RawMessage
		err := app.Request(ctx, endpoint, session.RequestOptions{Method: method, Body: body}, &out)
		if err != nil {
			return explain(err)
		}
		return printJSON(cmd.OutOrStdout(), out)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to print response: %w", err)
	}
	return nil
}
