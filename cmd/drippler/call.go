package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/drippler/drippler"
	"github.com/drippler/drippler/dispatch"
	"github.com/drippler/drippler/internal/config"
	"github.com/drippler/drippler/internal/logger"
	"github.com/spf13/cobra"
)

var withAuth bool

// errRequestFailed means the response was printed and reported a failure.
var errRequestFailed = errors.New("request failed")

var callCmd = &cobra.Command{
	Use:   "call <action> [payload-json]",
	Short: "Send one request to a running background process",
	Long: `The call command sends an action to the serve process through the resilient
dispatcher and prints the response. The payload is a JSON object; "-" reads it
from stdin.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		var payload any
		if len(args) == 2 {
			raw, err := readPayload(args[1], cmd.InOrStdin())
			if err != nil {
				return err
			}
			payload = raw
		}
		resp := newDispatcher(config.New()).Call(ctx, args[0], payload)
		return printResponse(cmd.OutOrStdout(), resp)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the connection state of a running background process",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		d := newDispatcher(config.New())
		if err := printResponse(cmd.OutOrStdout(), d.Status(ctx)); err != nil {
			return err
		}
		if !withAuth {
			return nil
		}
		check := d.Authenticate(ctx)
		out, err := json.MarshalIndent(check, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&withAuth, "auth", false, "Also report the signed-in user")
}

func newDispatcher(c config.Config) *dispatch.Dispatcher {
	url := serverURL
	if url == "" {
		url = c.GetServerURL()
	}
	log := logger.New(c.GetLogLevel(), c.GetLogPretty())
	return dispatch.New(dispatch.NewHTTPChannel(url, nil),
		dispatch.WithLogger(log),
		dispatch.WithRecoveryPause(c.GetDispatchRecoveryPause()),
		dispatch.WithStatusTimeout(c.GetStatusTimeout()),
	)
}

func readPayload(arg string, stdin io.Reader) (json.RawMessage, error) {
	if arg == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read payload: %w", err)
		}
		arg = string(b)
	}
	arg = strings.TrimSpace(arg)
	if !json.Valid([]byte(arg)) || !strings.HasPrefix(arg, "{") {
		return nil, fmt.Errorf("payload must be a JSON object")
	}
	return json.RawMessage(arg), nil
}

func printResponse(w io.Writer, resp drippler.Response) error {
	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	fmt.Fprintln(w, string(out))
	if !resp.Success {
		return errRequestFailed
	}
	return nil
}
