// cmd/crushd is the storage daemon's entrypoint.
//
// Configuration is entirely via flags so a single binary can serve any
// device in the cluster.
//
// Example:
//
//	./crushd --data-dir /var/crushstore/dev1 \
//	         --client-addr :9000 --peer-addr :9001 --control-addr :8080 \
//	         --client-key /etc/crushstore/client.key --peer-key /etc/crushstore/peer.key
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crushstore/internal/backend"
	"crushstore/internal/codec"
	"crushstore/internal/control"
	"crushstore/internal/daemon"
	"crushstore/internal/metrics"
)

func main() {
	dataDir := flag.String("data-dir", "/var/lib/crushstore", "Directory holding this device's identity and (if durable) its objects")
	clientAddr := flag.String("client-addr", ":9000", "UDP listen address for client requests")
	peerAddr := flag.String("peer-addr", ":9001", "UDP listen address for peer forwarding/replication")
	controlAddr := flag.String("control-addr", ":8080", "HTTP listen address for the admin control plane")
	clientKeyFile := flag.String("client-key", "/etc/crushstore/client.key", "Shared client<->daemon key file")
	peerKeyFile := flag.String("peer-key", "/etc/crushstore/peer.key", "Shared daemon<->daemon key file")
	summaryInterval := flag.Duration("summary-interval", 60*time.Second, "Interval between periodic metrics summaries")
	flag.Parse()

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		log.Fatalf("FATAL: create data dir: %v", err)
	}

	selfId, err := backend.LoadOrCreateDeviceId(*dataDir + "/store.id")
	if err != nil {
		log.Fatalf("FATAL: load device id: %v", err)
	}
	log.Printf("device id: %s", selfId)

	clientKeys, err := codec.LoadKeyPairFile(*clientKeyFile)
	if err != nil {
		log.Fatalf("FATAL: load client key: %v", err)
	}
	peerKeys, err := codec.LoadKeyPairFile(*peerKeyFile)
	if err != nil {
		log.Fatalf("FATAL: load peer key: %v", err)
	}

	clientConn, err := net.ListenUDP("udp", mustResolveUDP(*clientAddr))
	if err != nil {
		log.Fatalf("FATAL: listen client socket: %v", err)
	}
	defer clientConn.Close()

	peerConn, err := net.ListenUDP("udp", mustResolveUDP(*peerAddr))
	if err != nil {
		log.Fatalf("FATAL: listen peer socket: %v", err)
	}
	defer peerConn.Close()

	store := backend.NewMemoryBackend()
	sink := &metrics.AtomicSink{}
	router := daemon.NewRouter(selfId, store, sink, peerConn, peerKeys)
	defer router.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		log.Printf("serving clients on %s", *clientAddr)
		if err := router.Serve(ctx, clientConn, clientKeys); err != nil {
			log.Printf("client socket serve error: %v", err)
		}
	}()

	go func() {
		log.Printf("serving peers on %s", *peerAddr)
		if err := router.Serve(ctx, peerConn, peerKeys); err != nil {
			log.Printf("peer socket serve error: %v", err)
		}
	}()

	controlServer := control.NewServer(*controlAddr, router)
	go func() {
		log.Printf("admin control plane on %s", *controlAddr)
		if err := controlServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("control server error: %v", err)
		}
	}()

	stop := make(chan struct{})
	go metrics.RunPeriodicSummary(stop, *summaryInterval, sink.Snapshot)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down")
	close(stop)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := controlServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("control server shutdown error: %v", err)
	}
}

func mustResolveUDP(addr string) *net.UDPAddr {
	resolved, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		log.Fatalf("FATAL: resolve address %q: %v", addr, err)
	}
	return resolved
}
