// Package cli はsrikandiサーバーを操作するコマンドラインクライアントを提供する。
package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hitoshi/srikandi/internal/authstate"
	"github.com/hitoshi/srikandi/internal/client"
	"github.com/hitoshi/srikandi/internal/logger"
	"github.com/hitoshi/srikandi/internal/model"
)

// RootOptions は全コマンド共通のフラグ。
type RootOptions struct {
	Server     string
	ConfigPath string
	Format     string // "text" | "json"
	Verbose    bool
}

// ValidFormats は出力形式の選択肢。
var ValidFormats = []string{"text", "json"}

// ErrNotSignedIn はログインが必要なコマンドを未ログインで実行した場合に返る。
var ErrNotSignedIn = errors.New("Anda belum login. Jalankan 'srikandi-cli login' terlebih dahulu.")

// runtime はコマンド実行中に共有するクライアントと認証状態。
type runtime struct {
	opts       *RootOptions
	profile    *Profile
	configPath string
	logger     *slog.Logger
	client     *client.Client
	auth       *authstate.Synchronizer
	nav        *terminalNavigator
}

// NewRootCommand はsrikandi-cliのルートコマンドを生成する。
func NewRootCommand() *cobra.Command {
	return newRootCommand(&runtime{opts: &RootOptions{}})
}

func newRootCommand(rt *runtime) *cobra.Command {
	opts := rt.opts

	cmd := &cobra.Command{
		Use:           "srikandi-cli",
		Short:         "SRIKANDI-Lite - arsip surat DPRD",
		Long:          "Command line client for the SRIKANDI-Lite letter archive.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if err := rt.init(cmd); err != nil {
				rt.close()
				return err
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Server, "server", "", "server URL (default from config, then "+DefaultServer+")")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (default "+DefaultConfigPath()+")")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(newLoginCommand(rt))
	cmd.AddCommand(newSignUpCommand(rt))
	cmd.AddCommand(newLogoutCommand(rt))
	cmd.AddCommand(newWhoAmICommand(rt))
	cmd.AddCommand(newListCommand(rt))
	cmd.AddCommand(newUploadCommand(rt))
	cmd.AddCommand(newSummaryCommand(rt))
	closeAfterRun(cmd, rt)

	return cmd
}

// closeAfterRun は各サブコマンドの終了時に必ず認証状態を閉じる。
// cobraはRunEがエラーを返すとPersistentPostRunを呼ばないため、RunE自体を包む。
func closeAfterRun(cmd *cobra.Command, rt *runtime) {
	for _, sub := range cmd.Commands() {
		closeAfterRun(sub, rt)
		run := sub.RunE
		if run == nil {
			continue
		}
		sub.RunE = func(cmd *cobra.Command, args []string) error {
			defer rt.close()
			return run(cmd, args)
		}
	}
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func (rt *runtime) init(cmd *cobra.Command) error {
	level := slog.LevelWarn
	if rt.opts.Verbose {
		level = slog.LevelDebug
	}
	rt.logger = logger.New(cmd.ErrOrStderr(), logger.Options{Level: level, Format: logger.FormatText})

	rt.configPath = rt.opts.ConfigPath
	if rt.configPath == "" {
		rt.configPath = DefaultConfigPath()
	}
	profile, err := LoadProfile(rt.configPath)
	if err != nil {
		return err
	}
	rt.profile = profile

	server := rt.opts.Server
	if server == "" {
		server = profile.Server
	}
	if server == "" {
		server = DefaultServer
	}
	if !strings.HasPrefix(server, "http://") && !strings.HasPrefix(server, "https://") {
		return fmt.Errorf("invalid server URL %q: must start with http:// or https://", server)
	}

	tokens := client.NewFileTokenStore(profile.tokenFile(rt.configPath))
	rt.client = client.New(server, tokens, client.WithLogger(rt.logger))
	rt.nav = newTerminalNavigator(cmd.OutOrStdout(), rt.logger, authstate.DefaultLoginPath)
	rt.auth = authstate.New(rt.client, rt.nav, rt.logger)
	if err := rt.auth.Start(cmd.Context()); err != nil {
		return fmt.Errorf("failed to start auth state: %w", err)
	}
	rt.logger.Debug("cli initialized",
		slog.String("server", server),
		slog.String("config", rt.configPath),
	)
	return nil
}

// close はストアの購読を解除し、認証状態を手放す。
func (rt *runtime) close() {
	if rt.auth != nil {
		rt.auth.Close()
		rt.auth = nil
	}
}

// snapshot は認証状態の読み込み完了を待って返す。
func (rt *runtime) snapshot(cmd *cobra.Command) (model.AuthSnapshot, error) {
	snapshot, err := rt.auth.Wait(cmd.Context())
	if err != nil {
		return snapshot, fmt.Errorf("failed to load session: %w", err)
	}
	return snapshot, nil
}

// requireSession はログイン済みでなければErrNotSignedInを返す。
func (rt *runtime) requireSession(cmd *cobra.Command) (*model.User, error) {
	snapshot, err := rt.snapshot(cmd)
	if err != nil {
		return nil, err
	}
	if !snapshot.SignedIn() {
		return nil, ErrNotSignedIn
	}
	return snapshot.CurrentUser, nil
}

// userMessage はAPIエラーであれば利用者向けメッセージだけを返す。
func userMessage(err error) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return errors.New(apiErr.Message)
	}
	if errors.Is(err, client.ErrNotSignedIn) {
		return ErrNotSignedIn
	}
	return err
}
