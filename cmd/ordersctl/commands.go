package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/ariefcatur/go-qr-orders/internal/app"
	"github.com/ariefcatur/go-qr-orders/internal/config"
	"github.com/ariefcatur/go-qr-orders/internal/orders"
	"github.com/ariefcatur/go-qr-orders/internal/payments"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

// cli carries what every subcommand needs; the app is built lazily so
// --help works without a database.
type cli struct {
	out io.Writer
}

func newRootCmd(out io.Writer) *cobra.Command {
	c := &cli{out: out}
	rootCmd := &cobra.Command{
		Use:           "ordersctl",
		Short:         "Operator tool for orders, payments, QR tokens and stock",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(out)

	rootCmd.AddCommand(c.migrateCmd())
	rootCmd.AddCommand(c.reconcileCmd())
	rootCmd.AddCommand(c.refundCmd())
	rootCmd.AddCommand(c.abandonCmd())
	rootCmd.AddCommand(c.orderCmd())
	rootCmd.AddCommand(c.qrCmd())
	rootCmd.AddCommand(c.stockCmd())
	return rootCmd
}

func (c *cli) run(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) (any, error)) error {
	return c.runWith(cmd, config.Load(), fn)
}

func (c *cli) runWith(cmd *cobra.Command, cfg config.Config, fn func(ctx context.Context, a *app.App) (any, error)) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	v, err := fn(ctx, a)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			cfg.Migrate = true
			return c.runWith(cmd, cfg, func(context.Context, *app.App) (any, error) {
				return map[string]string{"status": "migrated"}, nil
			})
		},
	}
}

func (c *cli) reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile [tracking-id]",
		Short: "Query the gateway and settle the payment behind a tracking id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, a *app.App) (any, error) {
				return a.Payments.Reconcile(ctx, args[0], payments.SourceManual)
			})
		},
	}
}

func (c *cli) refundCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refund [transaction-id] [amount]",
		Short: "Refund part or all of a paid purchase",
		Args:  cobra.ExactArgs(2),
	}
	reason := cmd.Flags().StringP("reason", "r", "", "Refund reason")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		amount, err := decimal.NewFromString(args[1])
		if err != nil {
			return fmt.Errorf("amount %q: %w", args[1], err)
		}
		return c.run(cmd, func(ctx context.Context, a *app.App) (any, error) {
			return a.Payments.Refund(ctx, payments.RefundRequest{TransactionID: args[0], Amount: amount, Reason: *reason})
		})
	}
	return cmd
}

func (c *cli) abandonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "abandon [transaction-id]",
		Short: "Fail a pending transaction whose submission never got a tracking id",
		Long: `Marks a pending purchase without tracking id as failed. Only run this after
confirming with the gateway that no charge exists for the order.`,
		Args: cobra.ExactArgs(1),
	}
	note := cmd.Flags().StringP("note", "n", "", "Verification note")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return c.run(cmd, func(ctx context.Context, a *app.App) (any, error) {
			return a.Payments.Abandon(ctx, args[0], *note)
		})
	}
	return cmd
}

func (c *cli) orderCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "order", Short: "Inspect and move orders"}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [order-id]",
		Short: "Show an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, a *app.App) (any, error) {
				return a.Orders.Get(ctx, args[0])
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status [order-id] [status]",
		Short: "Advance an order along its lifecycle",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, a *app.App) (any, error) {
				return a.Orders.UpdateStatus(ctx, args[0], orders.Status(args[1]))
			})
		},
	})

	cancel := &cobra.Command{
		Use:   "cancel [order-id]",
		Short: "Cancel an order and return its stock",
		Args:  cobra.ExactArgs(1),
	}
	reason := cancel.Flags().StringP("reason", "r", "", "Cancellation reason")
	by := cancel.Flags().String("by", "operator", "Who cancelled")
	cancel.RunE = func(cmd *cobra.Command, args []string) error {
		return c.run(cmd, func(ctx context.Context, a *app.App) (any, error) {
			return a.Orders.Cancel(ctx, args[0], *reason, *by)
		})
	}
	cmd.AddCommand(cancel)

	cmd.AddCommand(&cobra.Command{
		Use:   "transactions [order-id]",
		Short: "List payment transactions of an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, a *app.App) (any, error) {
				return a.Payments.History(ctx, args[0])
			})
		},
	})
	return cmd
}

func (c *cli) qrCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "qr", Short: "Manage QR identity tokens"}

	cmd.AddCommand(&cobra.Command{
		Use:   "generate [business-id] [quantity]",
		Short: "Create a batch of unbound tokens",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("quantity %q: %w", args[1], err)
			}
			return c.run(cmd, func(ctx context.Context, a *app.App) (any, error) {
				return a.Tokens.Generate(ctx, args[0], n)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "bind [token-id] [user-id]",
		Short: "Bind a token to a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, a *app.App) (any, error) {
				return a.Tokens.Bind(ctx, args[0], args[1])
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "unbind [token-id]",
		Short: "Release a token from its user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, a *app.App) (any, error) {
				return a.Tokens.Unbind(ctx, args[0])
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "active [token-id] [true|false]",
		Short: "Enable or disable a token",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			on, err := strconv.ParseBool(args[1])
			if err != nil {
				return fmt.Errorf("active %q: %w", args[1], err)
			}
			return c.run(cmd, func(ctx context.Context, a *app.App) (any, error) {
				return a.Tokens.SetActive(ctx, args[0], on)
			})
		},
	})
	return cmd
}

func (c *cli) stockCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "stock", Short: "Correct product stock"}

	adjust := &cobra.Command{
		Use:   "adjust [product-id] [delta]",
		Short: "Add (positive) or write off (negative) units",
		Args:  cobra.ExactArgs(2),
	}
	reason := adjust.Flags().StringP("reason", "r", "", "Adjustment reason")
	adjust.RunE = func(cmd *cobra.Command, args []string) error {
		delta, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("delta %q: %w", args[1], err)
		}
		return c.run(cmd, func(ctx context.Context, a *app.App) (any, error) {
			stock, err := a.Inventory.Adjust(ctx, args[0], delta, *reason)
			if err != nil {
				return nil, err
			}
			return map[string]any{"product_id": args[0], "stock": stock}, nil
		})
	}
	cmd.AddCommand(adjust)
	return cmd
}
