package app

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。引数なしの場合の既定。
	CommandServe Command = "serve"
	// CommandWorker は定期同期のみを行うワーカーモードで起動することを示す。
	CommandWorker Command = "worker"
	// CommandSync は手動同期を1回実行して終了することを示す。
	CommandSync Command = "sync"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// NewRootCommand はjobmapperのルートコマンドを生成する。
// ログはwに、コマンドの結果表示は標準出力（SetOutで変更可）に書き込む。
func NewRootCommand(w io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "jobmapper",
		Short:         "Job dataset sync and map marker API",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), w)
		},
	}

	root.AddCommand(
		&cobra.Command{
			Use:   string(CommandServe),
			Short: "Start the HTTP API server",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runServe(cmd.Context(), w)
			},
		},
		&cobra.Command{
			Use:   string(CommandWorker),
			Short: "Run scheduled dataset sync and cache cleanup",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runWorker(cmd.Context(), w)
			},
		},
		&cobra.Command{
			Use:   string(CommandSync),
			Short: "Fetch the latest dataset once and replace the cache",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runSync(cmd.Context(), w, cmd.OutOrStdout())
			},
		},
		newMigrateCommand(w),
		newHealthcheckCommand(),
	)

	return root
}

func newMigrateCommand(w io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   string(CommandMigrate),
		Short: "Apply all pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(w, cmd.OutOrStdout(), "up", 0)
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runMigrate(w, cmd.OutOrStdout(), "up", 0)
			},
		},
		&cobra.Command{
			Use:   "down [steps]",
			Short: "Roll back the given number of migrations (default 1)",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				steps, err := parseSteps(args)
				if err != nil {
					return err
				}
				return runMigrate(w, cmd.OutOrStdout(), "down", steps)
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the applied migration version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runMigrate(w, cmd.OutOrStdout(), "version", 0)
			},
		},
	)
	return cmd
}

func newHealthcheckCommand() *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   string(CommandHealthcheck),
		Short: "Check the local /health endpoint (container healthcheck)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealthcheck(cmd.Context(), healthcheckURL(port))
		},
	}
	cmd.Flags().StringVar(&port, "port", defaultPort(), "server port to check")
	return cmd
}

// parseSteps はロールバックのステップ数を解析する。省略時は1。
func parseSteps(args []string) (int, error) {
	if len(args) == 0 {
		return 1, nil
	}
	steps, err := strconv.Atoi(args[0])
	if err != nil || steps <= 0 {
		return 0, fmt.Errorf("steps must be a positive integer: %q", args[0])
	}
	return steps, nil
}
