// Command iceagentd runs a standalone ICE connectivity establishment
// agent, configured via iceagentd.yml and controlled through its
// management HTTP API.
package main

import "github.com/gortc/iceagent/internal/cli"

func main() {
	cli.Execute()
}
