// Command mini-rpc-cli is an interactive client exercising rpcclient,
// registry.Client, and broker.Client end to end against running rpcserverd,
// registryd, and topicd processes.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"rpcmesh/broker"
	"rpcmesh/internal/logging"
	"rpcmesh/loadbalance"
	"rpcmesh/registry"
	"rpcmesh/rpcclient"
)

func main() {
	root := &cobra.Command{
		Use:   "mini-rpc-cli",
		Short: "Call methods, manage registrations, and publish/subscribe topics against a running rpcmesh cluster",
	}

	root.AddCommand(callCmd(), registerCmd(), discoverCmd(), topicCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func parseParams(raw string) (map[string]interface{}, error) {
	params := make(map[string]interface{})
	if raw == "" {
		return params, nil
	}
	if err := json.Unmarshal([]byte(raw), &params); err != nil {
		return nil, fmt.Errorf("--params must be a JSON object: %w", err)
	}
	return params, nil
}

func callCmd() *cobra.Command {
	var direct, registryAddr, method, params string
	cmd := &cobra.Command{
		Use:   "call",
		Short: "Call an RPC method, either directly or via registry discovery",
		RunE: func(cmd *cobra.Command, args []string) error {
			if method == "" {
				return fmt.Errorf("--method is required")
			}
			p, err := parseParams(params)
			if err != nil {
				return err
			}

			var client *rpcclient.Client
			log := logging.NewDevelopment()
			defer log.Sync()
			if direct != "" {
				client, err = rpcclient.NewDirect(direct, log)
			} else if registryAddr != "" {
				client, err = rpcclient.NewDiscovery(registryAddr, &loadbalance.RoundRobinBalancer{}, log)
			} else {
				return fmt.Errorf("one of --direct or --registry-addr is required")
			}
			if err != nil {
				return err
			}
			defer client.Close()

			result, err := client.CallSync(method, p)
			if err != nil {
				return err
			}
			out, _ := json.Marshal(result)
			fmt.Println(string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&direct, "direct", "", "ip:port of the RPC server to call directly")
	cmd.Flags().StringVar(&registryAddr, "registry-addr", "", "registry server address; resolves --method via discovery")
	cmd.Flags().StringVar(&method, "method", "", "method to invoke, e.g. Arith.Add")
	cmd.Flags().StringVar(&params, "params", "", "JSON object of parameters, e.g. '{\"a\":1,\"b\":2}'")
	return cmd
}

func registerCmd() *cobra.Command {
	var registryAddr, method, host string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a method/host pair with the registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			if registryAddr == "" || method == "" || host == "" {
				return fmt.Errorf("--registry-addr, --method, and --host are all required")
			}
			addr, err := parseHostFlag(host)
			if err != nil {
				return err
			}
			log := logging.NewDevelopment()
			defer log.Sync()
			client, err := registry.Dial(registryAddr, nil, log)
			if err != nil {
				return err
			}
			defer client.Close()
			return client.RegisterMethod(method, addr)
		},
	}
	cmd.Flags().StringVar(&registryAddr, "registry-addr", "", "registry server address")
	cmd.Flags().StringVar(&method, "method", "", "method name")
	cmd.Flags().StringVar(&host, "host", "", "ip:port being registered as a provider")
	return cmd
}

func discoverCmd() *cobra.Command {
	var registryAddr, method string
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List the hosts currently providing a method",
		RunE: func(cmd *cobra.Command, args []string) error {
			if registryAddr == "" || method == "" {
				return fmt.Errorf("--registry-addr and --method are both required")
			}
			log := logging.NewDevelopment()
			defer log.Sync()
			client, err := registry.Dial(registryAddr, nil, log)
			if err != nil {
				return err
			}
			defer client.Close()
			hosts, err := client.Discover(method)
			if err != nil {
				return err
			}
			for _, h := range hosts {
				fmt.Printf("%s:%d\n", h.IP, h.Port)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&registryAddr, "registry-addr", "", "registry server address")
	cmd.Flags().StringVar(&method, "method", "", "method name")
	return cmd
}

func topicCmd() *cobra.Command {
	var topicAddr string
	root := &cobra.Command{
		Use:   "topic",
		Short: "Create, subscribe to, and publish on topics",
	}
	root.PersistentFlags().StringVar(&topicAddr, "topic-addr", "", "topic broker address")

	dial := func() (*broker.Client, error) {
		if topicAddr == "" {
			return nil, fmt.Errorf("--topic-addr is required")
		}
		log := logging.NewDevelopment()
		defer log.Sync()
		return broker.Dial(topicAddr, log)
	}

	create := &cobra.Command{
		Use:  "create [topic]",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()
			return c.Create(args[0])
		},
	}

	remove := &cobra.Command{
		Use:  "remove [topic]",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()
			return c.Remove(args[0])
		},
	}

	publish := &cobra.Command{
		Use:  "publish [topic] [message]",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()
			return c.Publish(args[0], args[1])
		},
	}

	subscribe := &cobra.Command{
		Use:  "subscribe [topic]",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()
			err = c.Subscribe(args[0], func(topic, msg string) {
				fmt.Printf("[%s] %s\n", topic, msg)
			})
			if err != nil {
				return err
			}
			fmt.Println("subscribed, press enter to exit")
			fmt.Scanln()
			return c.Cancel(args[0])
		},
	}

	root.AddCommand(create, remove, publish, subscribe)
	return root
}

func parseHostFlag(s string) (registry.HostAddr, error) {
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
