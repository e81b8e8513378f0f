package main

import (
	"fmt"
	"net"
	"os"
	"time"

	"crushstore/internal/placement"
	"crushstore/internal/wire"

	"github.com/spf13/cobra"
)

// sendRequest performs one request/reply exchange directly against
// daemonAddr: it does not know the pool's placement map, so it relies on
// the daemon itself to serve, forward, or reject the request. This is
// deliberately simpler than internal/client.Client's engine (no
// retransmission, no multi-peer routing) since it is an ad hoc
// operational tool, not the steady-state data path.
func sendRequest(req wire.Request) (wire.Response, bool, error) {
	keys, err := loadKeyPair(keyFile)
	if err != nil {
		return wire.Response{}, false, err
	}

	addr, err := net.ResolveUDPAddr("udp", daemonAddr)
	if err != nil {
		return wire.Response{}, false, fmt.Errorf("resolve daemon address: %w", err)
	}

	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return wire.Response{}, false, fmt.Errorf("dial daemon: %w", err)
	}
	defer conn.Close()

	datagram, _, err := keys.Encrypt(req.Encode(), 0)
	if err != nil {
		return wire.Response{}, false, fmt.Errorf("encrypt request: %w", err)
	}
	if _, err := conn.Write(datagram); err != nil {
		return wire.Response{}, false, fmt.Errorf("send request: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(timeout))
	buf := make([]byte, 65536)
	n, err := conn.Read(buf)
	if err != nil {
		return wire.Response{}, false, fmt.Errorf("no reply (misrouted, unreachable, or timed out): %w", err)
	}

	plaintext, _, err := keys.Decrypt(buf[:n], 0)
	if err != nil {
		return wire.Response{}, false, fmt.Errorf("authenticate reply: %w", err)
	}

	isRead := req.Opcode == wire.OpReadObject || req.Opcode == wire.OpReadPart
	if isRead {
		resp, err := wire.DecodeReadReply(plaintext)
		return resp, true, err
	}
	resp, err := wire.DecodeAck(plaintext)
	return resp, false, err
}

func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <object-id>",
		Short: "Read an object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, _, err := sendRequest(wire.Request{
				Pool:     placement.PoolName(poolName),
				Opcode:   wire.OpReadObject,
				ObjectId: placement.ObjectId(args[0]),
			})
			if err != nil {
				return err
			}
			if !resp.Present {
				fmt.Printf("object %q not found\n", args[0])
				return nil
			}
			os.Stdout.Write(resp.Data)
			return nil
		},
	}
}

func putCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <object-id> <file>",
		Short: "Write an object from a local file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("read local file: %w", err)
			}
			_, _, err = sendRequest(wire.Request{
				Pool:     placement.PoolName(poolName),
				Opcode:   wire.OpWriteObject,
				ObjectId: placement.ObjectId(args[0]),
				Data:     data,
			})
			if err != nil {
				return err
			}
			fmt.Printf("wrote %d bytes to %q\n", len(data), args[0])
			return nil
		},
	}
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <object-id>",
		Short: "Delete an object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _, err := sendRequest(wire.Request{
				Pool:     placement.PoolName(poolName),
				Opcode:   wire.OpDelete,
				ObjectId: placement.ObjectId(args[0]),
			})
			if err != nil {
				return err
			}
			fmt.Printf("deleted %q\n", args[0])
			return nil
		},
	}
}
