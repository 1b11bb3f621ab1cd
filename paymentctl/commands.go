package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/aswathylr-builds/payment-reconciliation/bootstrap"
	"github.com/aswathylr-builds/payment-reconciliation/config"
	"github.com/aswathylr-builds/payment-reconciliation/gateway"
	"github.com/aswathylr-builds/payment-reconciliation/journal"
	"github.com/aswathylr-builds/payment-reconciliation/logging"
	"github.com/aswathylr-builds/payment-reconciliation/models"
	"github.com/aswathylr-builds/payment-reconciliation/payments"
	"github.com/aswathylr-builds/payment-reconciliation/signature"
	"github.com/aswathylr-builds/payment-reconciliation/workflows"
)

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

func paymentService(cmd *cobra.Command) (*payments.Service, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if err := cfg.RequireGatewayCredentials(); err != nil {
		return nil, err
	}
	client := gateway.NewHTTPClient(cfg.GatewayBaseURL, cfg.RazorpayKeyID, cfg.RazorpayKeySecret, cfg.CallTimeout)
	return payments.NewService(client, cfg.RazorpayKeySecret, logging.Nop()), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func createOrderCmd() *cobra.Command {
	var req models.CreateOrderRequest
	var amount string

	cmd := &cobra.Command{
		Use:   "create-order",
		Short: "Create a gateway order for an internal order",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := paymentService(cmd)
			if err != nil {
				return err
			}
			req.Amount = json.Number(amount)
			resp, err := svc.CreateOrder(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}

	cmd.Flags().Int64Var(&req.OrderID, "order-id", 0, "Internal order id")
	cmd.Flags().StringVar(&amount, "amount", "", "Amount in major units, e.g. 499.00")
	cmd.Flags().StringVar(&req.Currency, "currency", "", "Currency (default INR)")
	cmd.Flags().StringVar(&req.Receipt, "receipt", "", "Receipt (default order_<order-id>)")
	cmd.MarkFlagRequired("order-id")
	cmd.MarkFlagRequired("amount")
	return cmd
}

func verifyCmd() *cobra.Command {
	var req models.VerifyPaymentRequest

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify a checkout payment signature",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := paymentService(cmd)
			if err != nil {
				return err
			}
			resp, err := svc.VerifyPayment(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}

	cmd.Flags().StringVar(&req.RazorpayOrderID, "order", "", "Gateway order id")
	cmd.Flags().StringVar(&req.RazorpayPaymentID, "payment", "", "Gateway payment id")
	cmd.Flags().StringVar(&req.RazorpaySignature, "signature", "", "Checkout signature")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [payment-id]",
		Short: "Fetch a payment's status from the gateway",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := paymentService(cmd)
			if err != nil {
				return err
			}
			resp, err := svc.GetPaymentStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
}

// outcomeSource is where the journal command reads outcomes from
type outcomeSource interface {
	List(ctx context.Context, limit int) ([]models.Outcome, error)
	Get(ctx context.Context, deliveryID string) (models.Outcome, error)
}

func journalCmd() *cobra.Command {
	var path, server string
	var limit int

	cmd := &cobra.Command{
		Use:   "journal [delivery-id]",
		Short: "List recent webhook outcomes, or show one delivery",
		Long: `Reads the delivery journal. With --server the outcomes come from a
running server's /api/payments/webhook/deliveries endpoint. Otherwise the
BoltDB file is opened directly; the server holds a lock on it while running,
so stop the server, use --server, or point --path at a copy.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var source outcomeSource
			if server != "" {
				source = newDeliveriesClient(server)
			} else {
				if path == "" {
					cfg, err := loadConfig(cmd)
					if err != nil {
						return err
					}
					path = cfg.JournalPath
				}
				if path == "" {
					return fmt.Errorf("no journal configured, set journal_path, --path or --server")
				}

				j, err := journal.Open(path)
				if errors.Is(err, journal.ErrLocked) {
					return fmt.Errorf("%w; the server is probably running, retry with --server", err)
				}
				if err != nil {
					return err
				}
				defer j.Close()
				source = j
			}

			if len(args) == 1 {
				outcome, err := source.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), outcome)
			}

			outcomes, err := source.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, o := range outcomes {
				state := string(o.FailureStage)
				if o.Pending {
					state = "pending"
				}
				fmt.Fprintf(w, "%s  %-36s  %-10s  %-20s  order=%-6d  applied=%-5t  notified=%-5t  failure=%s\n",
					o.ProcessedAt.Format(time.RFC3339), o.DeliveryID, o.Action, o.GatewayPaymentID,
					o.OrderID, o.TransitionApplied, o.NotificationSent, state)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "Journal file (default journal_path)")
	cmd.Flags().StringVar(&server, "server", "", "Base URL of a running server, e.g. http://localhost:8080")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum entries")
	return cmd
}

func signCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Compute gateway signatures for testing",
	}

	var secret string
	webhook := &cobra.Command{
		Use:   "webhook [file]",
		Short: "Sign a webhook body read from file, or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var body []byte
			var err error
			if len(args) == 1 {
				body, err = os.ReadFile(args[0])
			} else {
				body, err = io.ReadAll(cmd.InOrStdin())
			}
			if err != nil {
				return err
			}
			if secret == "" {
				cfg, err := loadConfig(cmd)
				if err != nil {
					return err
				}
				secret = cfg.RazorpayWebhookSecret
			}
			if secret == "" {
				return fmt.Errorf("no webhook secret, set razorpay_webhook_secret or --secret")
			}
			fmt.Fprintln(cmd.OutOrStdout(), signature.Sign(body, secret))
			return nil
		},
	}
	webhook.Flags().StringVar(&secret, "secret", "", "Webhook secret (default razorpay_webhook_secret)")

	var keySecret, orderID, paymentID string
	payment := &cobra.Command{
		Use:   "payment",
		Short: "Sign a checkout order/payment pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			if keySecret == "" {
				cfg, err := loadConfig(cmd)
				if err != nil {
					return err
				}
				keySecret = cfg.RazorpayKeySecret
			}
			if keySecret == "" {
				return fmt.Errorf("no key secret, set razorpay_key_secret or --secret")
			}
			fmt.Fprintln(cmd.OutOrStdout(), signature.Sign(signature.PaymentPayload(orderID, paymentID), keySecret))
			return nil
		},
	}
	payment.Flags().StringVar(&keySecret, "secret", "", "Gateway key secret (default razorpay_key_secret)")
	payment.Flags().StringVar(&orderID, "order", "", "Gateway order id")
	payment.Flags().StringVar(&paymentID, "payment", "", "Gateway payment id")
	payment.MarkFlagRequired("order")
	payment.MarkFlagRequired("payment")

	cmd.AddCommand(webhook, payment)
	return cmd
}

func outcomeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "outcome [event] [payment-id]",
		Short: "Query the outcome of a dispatched payment event workflow",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			c, err := bootstrap.DialTemporal(cfg, logging.Nop())
			if err != nil {
				return err
			}
			defer c.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			id := workflows.WorkflowID(models.PaymentEvent{EventName: args[0], GatewayPaymentID: args[1]})
			resp, err := c.QueryWorkflow(ctx, id, "", workflows.QueryOutcome)
			if err != nil {
				return fmt.Errorf("failed to query workflow %s: %w", id, err)
			}

			var outcome models.Outcome
			if err := resp.Get(&outcome); err != nil {
				return fmt.Errorf("failed to decode outcome: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), outcome)
		},
	}
}
