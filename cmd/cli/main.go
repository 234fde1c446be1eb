package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/iho/bankledger/internal/adapter/http/dto"
	"github.com/iho/bankledger/internal/domain"
	"github.com/iho/bankledger/internal/infrastructure/postgres"
)

const maxErrorBody = 512

var (
	bcryptGenerate = bcrypt.GenerateFromPassword
	migrateUp      = postgres.RunMigrations
	migrateDown    = postgres.RunMigrationsDown
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

// apiClient talks to the ledger HTTP API.
type apiClient struct {
	baseURL        string
	token          string
	idempotencyKey string
	timeout        time.Duration
	out            io.Writer
}

func newRootCmd(out io.Writer) *cobra.Command {
	c := &apiClient{out: out}

	rootCmd := &cobra.Command{
		Use:           "bankledger-cli",
		Short:         "Bank ledger CLI tool",
		Long:          `A command line interface for interacting with the bank ledger API.`,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.SetOut(out)

	rootCmd.PersistentFlags().StringVar(&c.baseURL, "url", envOr("BANKLEDGER_URL", "http://localhost:8080"), "Base URL of the ledger API")
	rootCmd.PersistentFlags().StringVar(&c.token, "token", os.Getenv("BANKLEDGER_TOKEN"), "Bearer token")
	rootCmd.PersistentFlags().DurationVar(&c.timeout, "timeout", 10*time.Second, "Request timeout")
	rootCmd.PersistentFlags().StringVar(&c.idempotencyKey, "idempotency-key", "", "Idempotency key for movements (random when empty)")

	rootCmd.AddCommand(
		c.depositCmd(),
		c.distributeCmd(),
		c.withdrawCmd(),
		c.transferCmd(),
		c.accountCmd(),
		c.txCmd(),
		c.loginCmd(),
		c.registerCmd(),
		hashPasswordCmd(),
		migrateCmd(),
	)

	return rootCmd
}

func (c *apiClient) depositCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deposit ACCOUNT AMOUNT",
		Short: "Deposit into one account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[1])
			if err != nil {
				return err
			}
			return c.move(cmd.Context(), "deposit", dto.MovementRequest{AccountID: args[0], Amount: amount})
		},
	}
}

func (c *apiClient) distributeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "distribute TOTAL ACCOUNT=AMOUNT...",
		Short: "Deposit one total split across several accounts",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			total, err := parseAmount(args[0])
			if err != nil {
				return err
			}

			shares := make([]dto.DistributionRequest, 0, len(args)-1)
			for _, arg := range args[1:] {
				id, amt, ok := strings.Cut(arg, "=")
				if !ok || id == "" {
					return fmt.Errorf("invalid share %q, want ACCOUNT=AMOUNT", arg)
				}
				amount, err := parseAmount(amt)
				if err != nil {
					return err
				}
				shares = append(shares, dto.DistributionRequest{AccountID: id, Amount: amount})
			}

			return c.move(cmd.Context(), "deposit", dto.MovementRequest{Amount: total, Distributions: shares})
		},
	}
}

func (c *apiClient) withdrawCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "withdraw ACCOUNT AMOUNT",
		Short: "Withdraw from one account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[1])
			if err != nil {
				return err
			}
			return c.move(cmd.Context(), "withdraw", dto.MovementRequest{AccountID: args[0], Amount: amount})
		},
	}
}

func (c *apiClient) transferCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "transfer FROM TO AMOUNT",
		Short: "Transfer between two accounts",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[2])
			if err != nil {
				return err
			}
			return c.move(cmd.Context(), "transfer", dto.MovementRequest{FromAccountID: args[0], ToAccountID: args[1], Amount: amount})
		},
	}
}

func (c *apiClient) accountCmd() *cobra.Command {
	accountCmd := &cobra.Command{
		Use:   "account",
		Short: "Account operations",
	}

	createCmd := &cobra.Command{
		Use:   "create ID",
		Short: "Create an empty account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp dto.AccountResponse
			if err := c.do(cmd.Context(), http.MethodPost, "/api/accounts", dto.CreateAccountRequest{ID: args[0]}, "", &resp); err != nil {
				return err
			}
			return c.printJSON(resp)
		},
	}

	getCmd := &cobra.Command{
		Use:   "get ID",
		Short: "Show an account and its balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp dto.AccountResponse
			if err := c.do(cmd.Context(), http.MethodGet, "/api/accounts/"+url.PathEscape(args[0]), nil, "", &resp); err != nil {
				return err
			}
			return c.printJSON(resp)
		},
	}

	var limit, offset int

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp dto.ListAccountsResponse
			if err := c.do(cmd.Context(), http.MethodGet, "/api/accounts"+pageQuery(limit, offset), nil, "", &resp); err != nil {
				return err
			}
			return c.printJSON(resp)
		},
	}

	txsCmd := &cobra.Command{
		Use:   "transactions ID",
		Short: "List an account's transactions, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp dto.ListTransactionsResponse
			path := "/api/accounts/" + url.PathEscape(args[0]) + "/transactions" + pageQuery(limit, offset)
			if err := c.do(cmd.Context(), http.MethodGet, path, nil, "", &resp); err != nil {
				return err
			}
			return c.printJSON(resp)
		},
	}

	for _, cmd := range []*cobra.Command{listCmd, txsCmd} {
		cmd.Flags().IntVar(&limit, "limit", 0, "Page size")
		cmd.Flags().IntVar(&offset, "offset", 0, "Page offset")
	}

	accountCmd.AddCommand(createCmd, getCmd, listCmd, txsCmd)
	return accountCmd
}

func (c *apiClient) txCmd() *cobra.Command {
	txCmd := &cobra.Command{
		Use:   "tx",
		Short: "Transaction operations",
	}

	txCmd.AddCommand(&cobra.Command{
		Use:   "get ID",
		Short: "Show a recorded transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("invalid transaction id %q", args[0])
			}
			var resp dto.TransactionResponse
			if err := c.do(cmd.Context(), http.MethodGet, "/api/transaction/"+args[0], nil, "", &resp); err != nil {
				return err
			}
			return c.printJSON(resp)
		},
	})

	return txCmd
}

func (c *apiClient) loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login USERNAME PASSWORD",
		Short: "Log in and print a bearer token",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp dto.LoginResponse
			if err := c.do(cmd.Context(), http.MethodPost, "/api/auth/login", dto.LoginRequest{Username: args[0], Password: args[1]}, "", &resp); err != nil {
				return err
			}
			fmt.Fprintln(c.out, resp.Token)
			return nil
		},
	}
}

func (c *apiClient) registerCmd() *cobra.Command {
	var role string

	cmd := &cobra.Command{
		Use:   "register USERNAME PASSWORD",
		Short: "Register a staff user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := dto.RegisterRequest{Username: args[0], Password: args[1], Role: domain.Role(role)}
			var resp dto.RegisterResponse
			if err := c.do(cmd.Context(), http.MethodPost, "/api/auth/register", req, "", &resp); err != nil {
				return err
			}
			return c.printJSON(resp)
		},
	}
	cmd.Flags().StringVar(&role, "role", string(domain.RoleTeller), "Role: admin, teller or auditor. Admin and auditor need an admin --token")

	return cmd
}

// hashPasswordCmd prints a bcrypt hash for seeding users directly in the database.
func hashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password PASSWORD",
		Short: "Print a bcrypt hash of PASSWORD",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := bcryptGenerate([]byte(args[0]), bcrypt.DefaultCost)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(hash))
			return nil
		},
	}
}

// migrateCmd applies or rolls back schema migrations directly against the database.
func migrateCmd() *cobra.Command {
	var databaseURL, path string

	cmd := &cobra.Command{
		Use:       "migrate up|down",
		Short:     "Apply all pending migrations, or roll back the last one",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if databaseURL == "" {
				return fmt.Errorf("--database-url is required")
			}
			logger := zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()}).With().Timestamp().Logger()

			if args[0] == "down" {
				return migrateDown(databaseURL, path, logger)
			}
			return migrateUp(databaseURL, path, logger)
		},
	}
	cmd.Flags().StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection URL")
	cmd.Flags().StringVar(&path, "path", envOr("MIGRATIONS_PATH", "migrations"), "Migrations directory")

	return cmd
}

func (c *apiClient) move(ctx context.Context, kind string, req dto.MovementRequest) error {
	key := c.idempotencyKey
	if key == "" {
		key = uuid.NewString()
	}

	var resp dto.MovementResponse
	if err := c.do(ctx, http.MethodPost, "/api/transaction/"+kind, req, key, &resp); err != nil {
		return err
	}
	return c.printJSON(resp)
}

func (c *apiClient) do(ctx context.Context, method, path string, body any, idempotencyKey string, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.baseURL, "/")+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr dto.ErrorResponse
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			msg := apiErr.Error
			if apiErr.Message != "" {
				msg += ": " + apiErr.Message
			}
			if apiErr.Field != "" {
				msg += " (" + apiErr.Field + ")"
			}
			return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, msg)
		}
		return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, truncate(strings.TrimSpace(string(data)), maxErrorBody))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *apiClient) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseAmount checks that s is a decimal number and keeps its exact text.
func parseAmount(s string) (json.Number, error) {
	if _, err := decimal.NewFromString(s); err != nil {
		return "", fmt.Errorf("invalid amount %q", s)
	}
	return json.Number(s), nil
}

func pageQuery(limit, offset int) string {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
