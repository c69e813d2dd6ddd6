package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"os"
	"strings"

	"github.com/highfives-app/highfives"
	"github.com/highfives-app/highfives/sdk"
	"github.com/urfave/cli/v3"
)

var resolve = &cli.Command{
	Name:        "resolve",
	ArgsUsage:   "[<recipient>]",
	Usage:       "prints how a recipient can be paid",
	Description: "takes an npub or a user@domain either as an argument or reads a stream of them from stdin, and prints one payment instruction per line as JSON.",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "amount",
			Usage: "request an invoice for this many millisatoshis from lnurl-pay recipients",
		},
	},
	Action: func(ctx context.Context, c *cli.Command) error {
		mods, err := cfg.SystemModifiers()
		if err != nil {
			return err
		}
		sys := sdk.NewSystem(append(mods, sdk.WithLogger(&log))...)
		defer sys.Close()

		amount := int64(c.Int("amount"))
		hasError := false
		for recipient := range argumentOrStdinLines(c) {
			var pi highfives.PaymentInstruction
			var err error
			if amount != 0 {
				pi, err = sys.ResolvePaymentAmount(ctx, recipient, amount)
			} else {
				pi, err = sys.ResolvePayment(ctx, recipient)
			}
			if err != nil {
				msg := err.Error()
				if kind := highfives.KindOf(err); kind != 0 {
					msg = kind.UserMessage() + " (" + msg + ")"
				}
				fmt.Fprintf(os.Stderr, "%s: %s\n", recipient, msg)
				hasError = true
				continue
			}

			line, _ := json.Marshal(pi)
			fmt.Println(string(line))
		}

		if hasError {
			os.Exit(3)
		}
		return nil
	},
}

// argumentOrStdinLines yields the first argument, or every non-empty line of stdin when there is none.
func argumentOrStdinLines(c *cli.Command) iter.Seq[string] {
	return func(yield func(string) bool) {
		if arg := c.Args().First(); arg != "" {
			yield(arg)
			return
		}

		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if !yield(line) {
				return
			}
		}
	}
}
