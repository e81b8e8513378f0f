package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

func adminRequest(method, path string, body any) (map[string]any, error) {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, controlAddr+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("control request: %w", err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return decoded, fmt.Errorf("control plane returned %s: %v", resp.Status, decoded["error"])
	}
	return decoded, nil
}

func poolCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pool",
		Short: "Pool map and transition control",
	}

	mapCmd := &cobra.Command{
		Use:   "map <pool> <map.json>",
		Short: "Bootstrap a pool's storage map (Normal state)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("read map file: %w", err)
			}
			var raw map[string]any
			if err := json.Unmarshal(data, &raw); err != nil {
				return fmt.Errorf("map file is not valid JSON: %w", err)
			}
			resp, err := adminRequest(http.MethodPut, "/pools/"+args[0]+"/map", raw)
			if err != nil {
				return err
			}
			prettyPrint(resp)
			return nil
		},
	}

	transitionCmd := &cobra.Command{
		Use:   "transition",
		Short: "Drive a pool's map-transition state machine",
	}

	prepareCmd := &cobra.Command{
		Use:   "prepare <pool> <next-map.json>",
		Short: "Normal -> TransitionPrepare",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("read map file: %w", err)
			}
			var next map[string]any
			if err := json.Unmarshal(data, &next); err != nil {
				return fmt.Errorf("map file is not valid JSON: %w", err)
			}
			resp, err := adminRequest(http.MethodPost, "/pools/"+args[0]+"/transition/prepare", map[string]any{"next": next})
			if err != nil {
				return err
			}
			prettyPrint(resp)
			return nil
		},
	}

	commitCmd := &cobra.Command{
		Use:   "commit <pool>",
		Short: "TransitionPrepare -> Transition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := adminRequest(http.MethodPost, "/pools/"+args[0]+"/transition/commit", nil)
			if err != nil {
				return err
			}
			prettyPrint(resp)
			return nil
		},
	}

	finishCmd := &cobra.Command{
		Use:   "finish <pool>",
		Short: "Transition -> Normal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := adminRequest(http.MethodPost, "/pools/"+args[0]+"/transition/finish", nil)
			if err != nil {
				return err
			}
			prettyPrint(resp)
			return nil
		},
	}

	transitionCmd.AddCommand(prepareCmd, commitCmd, finishCmd)

	statusCmd := &cobra.Command{
		Use:   "status <pool>",
		Short: "Show whether a pool is known to the daemon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := adminRequest(http.MethodGet, "/pools/"+args[0], nil)
			if err != nil {
				return err
			}
			prettyPrint(resp)
			return nil
		},
	}

	cmd.AddCommand(mapCmd, transitionCmd, statusCmd)
	return cmd
}

func peerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "peer",
		Short: "Peer roster management",
	}

	addCmd := &cobra.Command{
		Use:   "add <device-id-hex> <host:port>",
		Short: "Add or update a peer's address",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := adminRequest(http.MethodPut, "/peers/"+args[0], map[string]any{"address": args[1]})
			if err != nil {
				return err
			}
			prettyPrint(resp)
			return nil
		},
	}

	removeCmd := &cobra.Command{
		Use:   "remove <device-id-hex>",
		Short: "Remove a peer from the roster",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := adminRequest(http.MethodDelete, "/peers/"+args[0], nil)
			if err != nil {
				return err
			}
			prettyPrint(resp)
			return nil
		},
	}

	cmd.AddCommand(addCmd, removeCmd)
	return cmd
}
