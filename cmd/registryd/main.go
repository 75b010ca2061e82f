// Command registryd runs the §4.7 registry server: providers register
// methods, discoverers resolve hosts, and both get ONLINE/OFFLINE pushes as
// the provider set changes.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rpcmesh/dispatch"
	"rpcmesh/internal/logging"
	"rpcmesh/internal/netutil"
	"rpcmesh/message"
	"rpcmesh/netcore"
	"rpcmesh/registry"
	etcdstore "rpcmesh/registry/etcd"
)

var (
	flagAddr          string
	flagEtcdEndpoints []string
	flagDev           bool
)

func main() {
	root := &cobra.Command{
		Use:   "registryd",
		Short: "Run the rpcmesh service registry",
		RunE:  runRegistryd,
	}
	root.Flags().StringVar(&flagAddr, "addr", fmt.Sprintf(":%d", netutil.DefaultRegistryPort), "listen address")
	root.Flags().StringSliceVar(&flagEtcdEndpoints, "etcd-endpoints", nil, "etcd endpoints; when set, registrations are mirrored to an etcd-backed Store alongside the in-memory wire registry")
	root.Flags().BoolVar(&flagDev, "dev", false, "use a human-readable development logger instead of JSON production logging")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// mirrorToStore wraps Core.OnServiceRequest so REGISTRY operations also
// land in store, giving administrative tooling a view of registrations
// independent of the wire-protocol-facing provider index.
func mirrorToStore(core *registry.Core, store registry.Store, logger *zap.Logger) func(netcore.Connection, *message.ServiceRequest) {
	return func(conn netcore.Connection, req *message.ServiceRequest) {
		if req.Optype == message.ServiceRegistry && req.Host != nil {
			if err := store.Register(req.Method, *req.Host); err != nil {
				logger.Warn("registryd: store mirror failed", zap.Error(err))
			}
		}
		core.OnServiceRequest(conn, req)
	}
}

func runRegistryd(cmd *cobra.Command, args []string) error {
	logger := logging.New()
	if flagDev {
		logger = logging.NewDevelopment()
	}
	defer logger.Sync()

	core := registry.New(logger)

	// The etcd backend is a Store, not a wire handler: it mirrors
	// registrations made over the wire protocol so administrative tooling
	// can read them from etcd, without sitting on Core's hot path. Its
	// leases expire once this process stops keeping them alive.
	var store registry.Store = registry.NewInMemoryStore()
	if len(flagEtcdEndpoints) > 0 {
		es, err := etcdstore.New(flagEtcdEndpoints, 10)
		if err != nil {
			return fmt.Errorf("registryd: connect etcd: %w", err)
		}
		store = es
		logger.Info("registryd: etcd store enabled", zap.Strings("endpoints", flagEtcdEndpoints))
	}

	server, err := netcore.Listen(flagAddr, logger)
	if err != nil {
		return fmt.Errorf("registryd: listen %s: %w", flagAddr, err)
	}

	server.OnAccept(func(conn netcore.Connection) {
		d := dispatch.New(logger)
		dispatch.RegisterHandler(d, message.ReqService, mirrorToStore(core, store, logger))
		conn.SetOnDown(func(conn netcore.Connection) { core.OnConnectionDown(conn) })
		d.Bind(conn)
	})

	logger.Info("registryd: listening", zap.String("addr", server.Addr()))

	go func() {
		if err := server.Serve(); err != nil {
			logger.Error("registryd: serve exited", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("registryd: shutting down")
	return server.Shutdown()
}
