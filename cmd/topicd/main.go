// Command topicd runs the §4.8 topic broker: creates/removes topics,
// tracks subscribers, and fans published messages out to them.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rpcmesh/broker"
	"rpcmesh/dispatch"
	"rpcmesh/internal/logging"
	"rpcmesh/internal/netutil"
	"rpcmesh/message"
	"rpcmesh/netcore"
)

var (
	flagAddr string
	flagDev  bool
)

func main() {
	root := &cobra.Command{
		Use:   "topicd",
		Short: "Run the rpcmesh topic broker",
		RunE:  runTopicd,
	}
	root.Flags().StringVar(&flagAddr, "addr", fmt.Sprintf(":%d", netutil.DefaultTopicPort), "listen address")
	root.Flags().BoolVar(&flagDev, "dev", false, "use a human-readable development logger instead of JSON production logging")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runTopicd(cmd *cobra.Command, args []string) error {
	logger := logging.New()
	if flagDev {
		logger = logging.NewDevelopment()
	}
	defer logger.Sync()

	core := broker.New(logger)

	server, err := netcore.Listen(flagAddr, logger)
	if err != nil {
		return fmt.Errorf("topicd: listen %s: %w", flagAddr, err)
	}

	server.OnAccept(func(conn netcore.Connection) {
		d := dispatch.New(logger)
		dispatch.RegisterHandler(d, message.ReqTopic, core.OnTopicRequest)
		conn.SetOnDown(func(conn netcore.Connection) { core.OnConnectionDown(conn) })
		d.Bind(conn)
	})

	logger.Info("topicd: listening", zap.String("addr", server.Addr()))

	go func() {
		if err := server.Serve(); err != nil {
			logger.Error("topicd: serve exited", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("topicd: shutting down")
	return server.Shutdown()
}
