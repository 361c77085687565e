package main

import (
	"context"
	"encoding/json"
	"fmt"

	"go.arsenm.dev/cloudrpc/client"
	"go.arsenm.dev/cloudrpc/codec"
	"go.arsenm.dev/cloudrpc/internal/logging"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var callCmd = &cobra.Command{
	Use:   "call <package> [arg...]",
	Short: "Call a procedure and print its result",
	Long: `Call a procedure on the server and print the result as JSON.

Every argument is parsed as JSON. Arguments that are not valid
JSON are sent as strings.`,
	Example: `  cloudrpc call echo.add 2 3
  cloudrpc call geometry.transform_points '[[0,0,0]]' '[[1,0,0,0],[0,1,0,0],[0,0,1,1],[0,0,0,1]]' --cache`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCall,
}

func init() {
	callCmd.Flags().String("endpoint", "ws://localhost:9009", "WebSocket URL of the compute server")
	callCmd.Flags().String("origin", client.DefaultOrigin, "Origin header sent during the handshake")
	callCmd.Flags().Int("timeout", 10, "Timeout in seconds for connecting and waiting for the result, 0 to wait forever")
	callCmd.Flags().String("kwargs", "{}", "Keyword arguments as a JSON object")
	callCmd.Flags().Bool("cache", false, "Ask the server to cache the result")
}

func runCall(cmd *cobra.Command, args []string) error {
	if err := bindFlags(cmd); err != nil {
		return err
	}
	if err := setupLogging(); err != nil {
		return err
	}

	conf := getClientConfig()
	logging.GetLogger("cmd").Debugf("client configuration:\n%s", conf)

	cdc, err := codec.ByName(conf.Codec)
	if err != nil {
		return err
	}

	var kwargs map[string]any
	if err := json.Unmarshal([]byte(viper.GetString("kwargs")), &kwargs); err != nil {
		return fmt.Errorf("invalid kwargs: %w", err)
	}

	callArgs := make([]any, 0, len(args)-1)
	for _, arg := range args[1:] {
		callArgs = append(callArgs, parseArg(arg))
	}

	ctx := cmd.Context()
	if conf.TimeoutSecond > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, conf.Timeout())
		defer cancel()
	}

	c, err := client.Dial(ctx, conf.Endpoint,
		client.WithCodec(cdc),
		client.WithOrigin(conf.Origin),
	)
	if err != nil {
		return err
	}
	defer c.Close()

	var res any
	err = c.Call(ctx, args[0], callArgs, kwargs, viper.GetBool("cache"), &res)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	return nil
}
