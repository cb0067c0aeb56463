package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"capd/internal/domain"
	"capd/internal/infra/rpc"
)

type clientOptions struct {
	address    string
	timeout    time.Duration
	tlsEnabled bool
	tlsCA      string
	tlsCert    string
	tlsKey     string
	jsonOutput bool
}

func bindClientFlags(cmd *cobra.Command, opts *clientOptions) {
	flags := cmd.Flags()
	flags.StringVar(&opts.address, "rpc", fmt.Sprintf("127.0.0.1:%d", domain.DefaultGRPCPort), "address of a running capd")
	flags.DurationVar(&opts.timeout, "timeout", 10*time.Second, "call timeout")
	flags.BoolVar(&opts.tlsEnabled, "rpc-tls", false, "enable TLS for the RPC connection")
	flags.StringVar(&opts.tlsCA, "rpc-tls-ca", "", "RPC CA file")
	flags.StringVar(&opts.tlsCert, "rpc-tls-cert", "", "client TLS certificate file")
	flags.StringVar(&opts.tlsKey, "rpc-tls-key", "", "client TLS key file")
	flags.BoolVar(&opts.jsonOutput, "json", false, "output JSON")
}

func withClient(ctx context.Context, opts *clientOptions, fn func(context.Context, *rpc.Client) error) error {
	client, err := rpc.Dial(rpc.ClientConfig{
		Address: opts.address,
		TLS: rpc.TLSConfig{
			Enabled:  opts.tlsEnabled,
			CAFile:   opts.tlsCA,
			CertFile: opts.tlsCert,
			KeyFile:  opts.tlsKey,
		},
	})
	if err != nil {
		return err
	}
	defer client.Close()

	callCtx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()
	return fn(callCtx, client)
}

func newInvokeCmd(opts *clientOptions) *cobra.Command {
	var args []string
	var body string
	cmd := &cobra.Command{
		Use:   "invoke <uri>",
		Short: "Invoke a published tool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, positional []string) error {
			arguments, err := parseArguments(args)
			if err != nil {
				return err
			}
			return withClient(cmd.Context(), opts, func(ctx context.Context, client *rpc.Client) error {
				reply, err := client.InvokeTool(ctx, &rpc.ToolInvokeRequest{
					URI:       positional[0],
					Body:      body,
					Arguments: arguments,
				})
				if err != nil {
					return err
				}
				return printReply(reply.IsError, reply.Content, opts.jsonOutput)
			})
		},
	}
	bindClientFlags(cmd, opts)
	cmd.Flags().StringArrayVarP(&args, "arg", "a", nil, "argument as key=value (repeatable)")
	cmd.Flags().StringVar(&body, "body", "", "request body")
	return cmd
}

func newAcquireCmd(opts *clientOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "acquire <location>",
		Short: "Read a published resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, positional []string) error {
			return withClient(cmd.Context(), opts, func(ctx context.Context, client *rpc.Client) error {
				reply, err := client.ResourceAcquire(ctx, &rpc.ResourceRequest{Location: positional[0]})
				if err != nil {
					return err
				}
				return printReply(reply.IsError, reply.Content, opts.jsonOutput)
			})
		},
	}
	bindClientFlags(cmd, opts)
	return cmd
}

func newDescribeCmd(opts *clientOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "describe",
		Short: "Show the service target and its catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd.Context(), opts, func(ctx context.Context, client *rpc.Client) error {
				desc, err := client.Describe(ctx)
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return writeJSON(desc)
				}
				fmt.Printf("service=%s address=%s:%d type=%s registered=%t\n",
					desc.Service, desc.Address, desc.Port, desc.ServiceType, desc.Registered)
				for _, tool := range desc.Tools {
					fmt.Printf("tool     %s\n", tool)
				}
				for _, res := range desc.Resources {
					fmt.Printf("resource %s\n", res)
				}
				return nil
			})
		},
	}
	bindClientFlags(cmd, opts)
	return cmd
}

func newProvisionCmd(opts *clientOptions) *cobra.Command {
	var configFile, secretFile string
	cmd := &cobra.Command{
		Use:   "provision <uri>",
		Short: "Store configuration and secret properties for a capability scope",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, positional []string) error {
			configuration, err := readOptional(configFile)
			if err != nil {
				return err
			}
			secret, err := readOptional(secretFile)
			if err != nil {
				return err
			}
			return withClient(cmd.Context(), opts, func(ctx context.Context, client *rpc.Client) error {
				reply, err := client.Provision(ctx, &rpc.ProvisionRequest{
					URI:           positional[0],
					Configuration: configuration,
					Secret:        secret,
				})
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return writeJSON(reply)
				}
				fmt.Printf("configuration=%s\nsecret=%s\n", reply.ConfigurationURI, reply.SecretURI)
				return nil
			})
		},
	}
	bindClientFlags(cmd, opts)
	cmd.Flags().StringVar(&configFile, "configuration", "", "properties file with configuration values")
	cmd.Flags().StringVar(&secretFile, "secret", "", "properties file with secret values")
	return cmd
}

func parseArguments(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("argument %q must be key=value", pair)
		}
		out[strings.TrimSpace(key)] = value
	}
	return out, nil
}

func readOptional(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func printReply(isError bool, content []string, jsonOutput bool) error {
	if jsonOutput {
		if err := writeJSON(map[string]any{"isError": isError, "content": content}); err != nil {
			return err
		}
	} else {
		for _, line := range content {
			fmt.Println(line)
		}
	}
	if isError {
		return exitSilent(2)
	}
	return nil
}

func writeJSON(value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
