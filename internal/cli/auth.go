package cli

import (
	"bufio"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

type credentialsOptions struct {
	email string
}

// readCredentials はフラグまたは入力からメールアドレスとパスワードを取得する。
func (rt *runtime) readCredentials(cmd *cobra.Command, opts *credentialsOptions) (string, string, error) {
	reader := bufio.NewReader(cmd.InOrStdin())
	out := cmd.OutOrStdout()

	email := opts.email
	if email == "" {
		var err error
		email, err = prompt(reader, out, "Email", rt.profile.Email)
		if err != nil {
			return "", "", err
		}
	}
	password, err := promptPassword(reader, out)
	if err != nil {
		return "", "", err
	}
	return email, password, nil
}

// rememberLogin は次回の入力既定値としてメールアドレスと接続先を保存する。
func (rt *runtime) rememberLogin(email string) {
	rt.profile.Email = email
	if rt.opts.Server != "" {
		rt.profile.Server = rt.opts.Server
	}
	if err := rt.profile.Save(rt.configPath); err != nil {
		rt.logger.Warn("設定ファイルの保存に失敗しました", slog.String("error", err.Error()))
	}
}

func newLoginCommand(rt *runtime) *cobra.Command {
	opts := &credentialsOptions{}

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Masuk dengan email dan password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshot, err := rt.snapshot(cmd)
			if err != nil {
				return err
			}
			// ログイン済みならログイン画面を出さない
			if snapshot.SignedIn() {
				fmt.Fprintf(cmd.OutOrStdout(), "Anda sudah login sebagai %s.\n", snapshot.CurrentUser.Email)
				return nil
			}

			email, password, err := rt.readCredentials(cmd, opts)
			if err != nil {
				return err
			}
			if err := rt.auth.SignIn(cmd.Context(), email, password); err != nil {
				return userMessage(err)
			}
			rt.rememberLogin(email)
			fmt.Fprintf(cmd.OutOrStdout(), "Berhasil masuk sebagai %s.\n", email)
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.email, "email", "e", "", "email address")
	return cmd
}

func newSignUpCommand(rt *runtime) *cobra.Command {
	opts := &credentialsOptions{}

	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Daftar akun baru",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshot, err := rt.snapshot(cmd)
			if err != nil {
				return err
			}
			if snapshot.SignedIn() {
				fmt.Fprintf(cmd.OutOrStdout(), "Anda sudah login sebagai %s.\n", snapshot.CurrentUser.Email)
				return nil
			}

			email, password, err := rt.readCredentials(cmd, opts)
			if err != nil {
				return err
			}
			pending, err := rt.auth.SignUp(cmd.Context(), email, password)
			if err != nil {
				return userMessage(err)
			}
			rt.rememberLogin(email)
			if pending {
				fmt.Fprintln(cmd.OutOrStdout(), "Pendaftaran berhasil! Silakan cek email Anda untuk verifikasi akun.")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pendaftaran berhasil. Anda masuk sebagai %s.\n", email)
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.email, "email", "e", "", "email address")
	return cmd
}

func newLogoutCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Keluar dari sesi saat ini",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := rt.snapshot(cmd); err != nil {
				return err
			}
			rt.auth.SignOut(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), "Anda telah keluar.")
			return nil
		},
	}
}

func newWhoAmICommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Tampilkan pengguna yang sedang login",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			current, err := rt.requireSession(cmd)
			if err != nil {
				return err
			}

			user, err := rt.client.GetUser(cmd.Context())
			if err != nil {
				rt.logger.Debug("falling back to cached user")
				user = current
			}

			if rt.opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), toUserJSON(user))
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Email:    %s\n", user.Email)
			fmt.Fprintf(out, "ID:       %s\n", user.ID)
			if user.Confirmed() {
				fmt.Fprintf(out, "Verified: %s\n", user.EmailConfirmedAt.Format("2006-01-02 15:04"))
			} else {
				fmt.Fprintln(out, "Verified: -")
			}
			return nil
		},
	}
}
