// bridgectl is a small control client for a running bridge. It talks to
// the dashboard gateway over NATS request/reply.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"

	"meshbridge/internal/config"
	"meshbridge/internal/dashboard"
)

const requestTimeout = 20 * time.Second

func main() {
	natsURL := flag.String("nats", nats.DefaultURL, "NATS server URL")
	prefix := flag.String("prefix", "meshbridge", "bridge subject prefix")
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	if err := run(*natsURL, *prefix, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "bridgectl: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: bridgectl [-nats URL] [-prefix P] <command>

commands:
  endpoints                                  list connected endpoints
  connect <family> <path> [name]             attach a new endpoint
  disconnect <endpoint-id>                   detach an endpoint
  send <endpoint-id> <channel-index> <text>  send text on one endpoint`)
}

func run(natsURL, prefix string, args []string) error {
	nc, err := nats.Connect(natsURL, nats.Name("bridgectl"))
	if err != nil {
		return fmt.Errorf("connect nats %q: %w", natsURL, err)
	}
	defer nc.Close()

	switch args[0] {
	case "endpoints":
		return listEndpoints(nc, prefix)
	case "connect":
		return connectEndpoint(nc, prefix, args[1:])
	case "disconnect":
		if len(args) != 2 {
			return fmt.Errorf("usage: disconnect <endpoint-id>")
		}
		_, err := request(nc, prefix, "disconnect", dashboard.DisconnectRequest{EndpointID: args[1]})
		if err == nil {
			fmt.Println("disconnected")
		}
		return err
	case "send":
		return sendText(nc, prefix, args[1:])
	default:
		usage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func listEndpoints(nc *nats.Conn, prefix string) error {
	data, err := request(nc, prefix, "endpoints", nil)
	if err != nil {
		return err
	}

	var endpoints []dashboard.EndpointSummary
	if err := json.Unmarshal(data, &endpoints); err != nil {
		return fmt.Errorf("decode endpoint list: %w", err)
	}
	if len(endpoints) == 0 {
		fmt.Println("no endpoints")
		return nil
	}
	for _, ep := range endpoints {
		fmt.Printf("%s  %-18s %-24s %-12s rx:%d tx:%d err:%d queued:%d\n",
			ep.ID, ep.Family, ep.Path, ep.State, ep.Received, ep.Sent, ep.Errors, ep.Queued)
	}

	return nil
}

func connectEndpoint(nc *nats.Conn, prefix string, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: connect <family> <path> [name]")
	}
	epCfg := config.EndpointConfig{
		Family: config.Family(args[0]),
		Path:   args[1],
		Baud:   config.DefaultSerialBaud,
	}
	if len(args) > 2 {
		epCfg.Name = args[2]
	}

	data, err := request(nc, prefix, "connect", epCfg)
	if err != nil {
		return err
	}

	var reply map[string]string
	if err := json.Unmarshal(data, &reply); err != nil {
		return fmt.Errorf("decode connect reply: %w", err)
	}
	fmt.Println(reply["endpoint_id"])

	return nil
}

func sendText(nc *nats.Conn, prefix string, args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: send <endpoint-id> <channel-index> <text>")
	}
	channel, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid channel index %q", args[1])
	}

	_, err = request(nc, prefix, "send", dashboard.SendRequest{
		EndpointID:   args[0],
		ChannelIndex: channel,
		Text:         args[2],
	})
	if err == nil {
		fmt.Println("sent")
	}

	return err
}

func request(nc *nats.Conn, prefix, name string, payload any) (json.RawMessage, error) {
	var raw []byte
	if payload != nil {
		var err error
		raw, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
	}

	subject := fmt.Sprintf("%s.control.%s", prefix, name)
	msg, err := nc.Request(subject, raw, requestTimeout)
	if err != nil {
		return nil, fmt.Errorf("request %q: %w", subject, err)
	}

	var reply dashboard.ControlReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}
	if !reply.OK {
		return nil, fmt.Errorf("bridge: %s", reply.Error)
	}

	return reply.Data, nil
}
