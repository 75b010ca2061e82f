// Command rpcserverd runs an RPC server exposing a small demo service
// (Arith.Add/Arith.Mul), optionally registering its methods with a
// registry server so rpcclient's discovery mode can find it.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rpcmesh/dispatch"
	"rpcmesh/internal/logging"
	"rpcmesh/internal/netutil"
	"rpcmesh/message"
	"rpcmesh/middleware"
	"rpcmesh/netcore"
	"rpcmesh/registry"
	"rpcmesh/rpcrouter"
)

var (
	flagAddr         string
	flagAdvertise    string
	flagRegistryAddr string
	flagRateLimit    float64
	flagRateBurst    int
	flagDev          bool
)

func main() {
	root := &cobra.Command{
		Use:   "rpcserverd",
		Short: "Run an rpcmesh RPC server exposing the demo Arith service",
		RunE:  runRpcserverd,
	}
	root.Flags().StringVar(&flagAddr, "addr", fmt.Sprintf(":%d", netutil.DefaultRPCPort), "listen address")
	root.Flags().StringVar(&flagAdvertise, "advertise", "", "ip:port to advertise to the registry (required with --registry-addr)")
	root.Flags().StringVar(&flagRegistryAddr, "registry-addr", "", "registry server address; when set, this server registers its methods on startup")
	root.Flags().Float64Var(&flagRateLimit, "rate", 200, "requests/second allowed before RCodeInternalError throttling kicks in")
	root.Flags().IntVar(&flagRateBurst, "burst", 400, "token bucket burst size")
	root.Flags().BoolVar(&flagDev, "dev", false, "use a human-readable development logger instead of JSON production logging")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func arithService() rpcrouter.ServiceDescribe {
	return rpcrouter.NewBuilder("Arith.Add").
		Param("a", rpcrouter.VNumeric).
		Param("b", rpcrouter.VNumeric).
		Returns(rpcrouter.VNumeric).
		Handler(func(params map[string]interface{}) (interface{}, error) {
			return params["a"].(float64) + params["b"].(float64), nil
		}).
		Build()
}

func mulService() rpcrouter.ServiceDescribe {
	return rpcrouter.NewBuilder("Arith.Mul").
		Param("a", rpcrouter.VNumeric).
		Param("b", rpcrouter.VNumeric).
		Returns(rpcrouter.VNumeric).
		Handler(func(params map[string]interface{}) (interface{}, error) {
			return params["a"].(float64) * params["b"].(float64), nil
		}).
		Build()
}

func runRpcserverd(cmd *cobra.Command, args []string) error {
	logger := logging.New()
	if flagDev {
		logger = logging.NewDevelopment()
	}
	defer logger.Sync()

	router := rpcrouter.New(logger)
	router.Register(arithService())
	router.Register(mulService())

	chain := middleware.Chain(
		middleware.LoggingMiddleware(logger),
		middleware.RateLimitMiddleware(flagRateLimit, flagRateBurst),
		middleware.TimeOutMiddleware(5*time.Second),
	)
	handler := middleware.Bind(router, chain)

	server, err := netcore.Listen(flagAddr, logger)
	if err != nil {
		return fmt.Errorf("rpcserverd: listen %s: %w", flagAddr, err)
	}

	server.OnAccept(func(conn netcore.Connection) {
		d := dispatch.New(logger)
		dispatch.RegisterHandler(d, message.ReqRPC, handler)
		d.Bind(conn)
	})

	logger.Info("rpcserverd: listening", zap.String("addr", server.Addr()))

	var regClient *registry.Client
	if flagRegistryAddr != "" {
		if flagAdvertise == "" {
			return fmt.Errorf("rpcserverd: --advertise is required with --registry-addr")
		}
		host, err := parseHostAddr(flagAdvertise)
		if err != nil {
			return fmt.Errorf("rpcserverd: --advertise: %w", err)
		}
		regClient, err = registry.Dial(flagRegistryAddr, nil, logger)
		if err != nil {
			return fmt.Errorf("rpcserverd: dial registry %s: %w", flagRegistryAddr, err)
		}
		for _, method := range []string{"Arith.Add", "Arith.Mul"} {
			if err := regClient.RegisterMethod(method, host); err != nil {
				return fmt.Errorf("rpcserverd: register %q: %w", method, err)
			}
		}
		logger.Info("rpcserverd: registered with registry",
			zap.String("registry", flagRegistryAddr), zap.String("advertise", flagAdvertise))
	}

	go func() {
		if err := server.Serve(); err != nil {
			logger.Error("rpcserverd: serve exited", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("rpcserverd: shutting down")
	if regClient != nil {
		regClient.Close()
	}
	return server.Shutdown()
}

func parseHostAddr(s string) (registry.HostAddr, error) {
	idx := strings.LastIndex(s, ":")
	if idx < 0 {
		return registry.HostAddr{}, fmt.Errorf("expected ip:port, got %q", s)
	}
	port, err := strconv.Atoi(s[idx+1:])
	if err != nil {
		return registry.HostAddr{}, fmt.Errorf("bad port in %q: %w", s, err)
	}
	return registry.HostAddr{IP: s[:idx], Port: port}, nil
}
