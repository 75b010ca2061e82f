// Command inspector is a debugging aid: it watches a set of registry
// methods and topic names, and streams every ONLINE/OFFLINE push and
// PUBLISH delivery it observes to any browser tab connected over
// websocket. It sits outside the wire protocol entirely — a connected
// registry/broker client plus a websocket fan-out, nothing more.
package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rpcmesh/broker"
	"rpcmesh/internal/logging"
	"rpcmesh/message"
	"rpcmesh/registry"
)

type event struct {
	Kind   string `json:"kind"`
	Method string `json:"method,omitempty"`
	Topic  string `json:"topic,omitempty"`
	Host   string `json:"host,omitempty"`
	Optype string `json:"optype,omitempty"`
	Body   string `json:"body,omitempty"`
}

type hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

func newHub() *hub { return &hub{clients: make(map[*websocket.Conn]struct{})} }

func (h *hub) add(c *websocket.Conn) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *hub) remove(c *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.Close()
}

func (h *hub) broadcast(e event) {
	body, err := json.Marshal(e)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if err := c.WriteMessage(websocket.TextMessage, body); err != nil {
			delete(h.clients, c)
			c.Close()
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func main() {
	var (
		registryAddr string
		topicAddr    string
		methods      string
		topics       string
		httpAddr     string
	)

	root := &cobra.Command{
		Use:   "inspector",
		Short: "Stream registry and topic broker traffic to a websocket for debugging",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.NewDevelopment()
			defer logger.Sync()

			h := newHub()

			if registryAddr != "" {
				if err := watchRegistry(registryAddr, splitCSV(methods), h, logger); err != nil {
					return fmt.Errorf("inspector: %w", err)
				}
			}
			if topicAddr != "" {
				if err := watchTopics(topicAddr, splitCSV(topics), h, logger); err != nil {
					return fmt.Errorf("inspector: %w", err)
				}
			}

			mux := http.NewServeMux()
			mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
				conn, err := upgrader.Upgrade(w, r, nil)
				if err != nil {
					logger.Warn("inspector: upgrade failed", zap.Error(err))
					return
				}
				h.add(conn)
				logger.Info("inspector: browser connected", zap.String("remote", r.RemoteAddr))
				go func() {
					defer h.remove(conn)
					for {
						if _, _, err := conn.ReadMessage(); err != nil {
							return
						}
					}
				}()
			})

			logger.Info("inspector: serving", zap.String("addr", httpAddr))
			return http.ListenAndServe(httpAddr, mux)
		},
	}

	root.Flags().StringVar(&registryAddr, "registry-addr", "", "registry server address to watch")
	root.Flags().StringVar(&topicAddr, "topic-addr", "", "topic broker address to watch")
	root.Flags().StringVar(&methods, "methods", "", "comma-separated method names to watch for ONLINE/OFFLINE")
	root.Flags().StringVar(&topics, "topics", "", "comma-separated topic names to watch for PUBLISH")
	root.Flags().StringVar(&httpAddr, "http-addr", ":9100", "address the websocket endpoint (/events) listens on")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// watchRegistry dials the registry once and issues a Discover for every
// watched method — that is what makes Core treat this connection as a
// discoverer of those methods and start pushing their ONLINE/OFFLINE
// notifications to it.
func watchRegistry(addr string, methods []string, h *hub, logger *zap.Logger) error {
	client, err := registry.Dial(addr, func(optype message.ServiceOptype, method string, host registry.HostAddr) {
		h.broadcast(event{
			Kind:   "registry",
			Method: method,
			Host:   fmt.Sprintf("%s:%d", host.IP, host.Port),
			Optype: optype.String(),
		})
	}, logger)
	if err != nil {
		return fmt.Errorf("dial registry %s: %w", addr, err)
	}
	for _, method := range methods {
		if _, err := client.Discover(method); err != nil {
			logger.Warn("inspector: discover failed", zap.String("method", method), zap.Error(err))
		}
	}
	return nil
}

func watchTopics(addr string, topics []string, h *hub, logger *zap.Logger) error {
	client, err := broker.Dial(addr, logger)
	if err != nil {
		return fmt.Errorf("dial topic broker %s: %w", addr, err)
	}
	for _, topic := range topics {
		err := client.Subscribe(topic, func(topic, msg string) {
			h.broadcast(event{Kind: "topic", Topic: topic, Body: msg})
		})
		if err != nil {
			logger.Warn("inspector: subscribe failed", zap.String("topic", topic), zap.Error(err))
		}
	}
	return nil
}
