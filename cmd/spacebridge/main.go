// Command spacebridge runs the Gradio Space MCP aggregating proxy.
package main

import "github.com/spacebridge/gateway/cmd/spacebridge/cmd"

func main() {
	cmd.Execute()
}
