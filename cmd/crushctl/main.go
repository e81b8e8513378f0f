// cmd/crushctl is the CLI entry-point built with Cobra.
//
// Usage:
//
//	crushctl get <object-id>               --daemon 127.0.0.1:9000 --key /etc/crushstore/cluster.key
//	crushctl put <object-id> <file>         --daemon 127.0.0.1:9000 --key /etc/crushstore/cluster.key
//	crushctl delete <object-id>             --daemon 127.0.0.1:9000 --key /etc/crushstore/cluster.key
//	crushctl pool map <pool> <map.json>     --control http://localhost:8080
//	crushctl pool transition prepare <pool> <next-map.json>
//	crushctl pool transition commit <pool>
//	crushctl pool transition finish <pool>
//	crushctl peer add <device-id-hex> <host:port>
//	crushctl peer remove <device-id-hex>
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	daemonAddr  string
	controlAddr string
	keyFile     string
	poolName    string
	timeout     time.Duration
)

func main() {
	root := &cobra.Command{
		Use:   "crushctl",
		Short: "CLI client for a crushstore cluster",
	}

	root.PersistentFlags().StringVar(&daemonAddr, "daemon", "127.0.0.1:9000", "Storage daemon UDP address")
	root.PersistentFlags().StringVar(&controlAddr, "control", "http://127.0.0.1:8080", "Daemon admin HTTP address")
	root.PersistentFlags().StringVar(&keyFile, "key", "/etc/crushstore/cluster.key", "Shared cluster key file (32 bytes: MAC key || encrypt key)")
	root.PersistentFlags().StringVar(&poolName, "pool", "objects", "Pool name")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "Request timeout")

	root.AddCommand(getCmd(), putCmd(), deleteCmd(), poolCmd(), peerCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func prettyPrint(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println(v)
		return
	}
	fmt.Println(string(data))
}
