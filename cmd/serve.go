package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/docintake/internal/app"
	"github.com/ziadkadry99/docintake/internal/classifier"
	mcpserver "github.com/ziadkadry99/docintake/internal/mcp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server for AI agent integration",
	Long: `Starts a Model Context Protocol (MCP) server on stdio, exposing
classify_text, search_documents and get_record tools for AI agents.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(context.Background(), app.Options{})
		if err != nil {
			return err
		}
		defer rt.Close()

		policy, err := classifier.ParsePolicy(rt.Config.Index.Policy)
		if err != nil {
			return err
		}

		mcpserver.Version = Version
		fmt.Fprintf(os.Stderr, "docintake MCP server started on stdio (index=%d vectors, records=%d)\n",
			rt.Index.Index.Len(), rt.Store.Count())

		srv := mcpserver.NewServer(rt.Classifier, rt.Store, rt.Records, policy)
		return srv.Serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
