package cli

import (
	"bufio"
	"context"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/suPer8Hu/subspace-chat/internal/bot"
	"github.com/suPer8Hu/subspace-chat/internal/client"
	"github.com/suPer8Hu/subspace-chat/internal/common"
	"github.com/suPer8Hu/subspace-chat/internal/config"
	"github.com/suPer8Hu/subspace-chat/internal/markdown"
	"github.com/suPer8Hu/subspace-chat/internal/models"
	"github.com/suPer8Hu/subspace-chat/internal/session"
	"github.com/suPer8Hu/subspace-chat/internal/viewstate"
)

type app struct {
	cfg    config.Config
	client *client.Client
	out    *Printer
}

// NewRootCmd builds the terminal client. The session is restored from
// disk before any subcommand runs.
func NewRootCmd(cfg config.Config) *cobra.Command {
	a := &app{cfg: cfg}
	root := &cobra.Command{
		Use:           "subspace",
		Short:         "Chat from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.out = NewPrinter(cmd.OutOrStdout())
			a.client = client.New(cfg.APIBaseURL, session.NewBroadcaster())
			a.client.SessionFile = cfg.SessionFile
			_, err := a.client.Restore()
			return err
		},
	}
	root.AddCommand(
		a.newSignUpCmd(),
		a.newVerifyCmd(),
		a.newSignInCmd(),
		a.newSignOutCmd(),
		a.newResetCmd(),
		a.newWhoAmICmd(),
		a.newSharedCmd(),
		a.newChatCmd(),
	)
	return root
}

// userError turns a client error into the line shown to the user.
func userError(err error) error {
	if err == nil {
		return nil
	}
	if f := common.FieldOf(err); f != "" {
		return fmt.Errorf("%s: %s", f, common.MessageOf(err))
	}
	return fmt.Errorf("%s", common.MessageOf(err))
}

// promptLine reads one line when a flag was left empty.
func promptLine(cmd *cobra.Command, label string) string {
	fmt.Fprint(cmd.OutOrStdout(), label+": ")
	sc := bufio.NewScanner(cmd.InOrStdin())
	if sc.Scan() {
		return strings.TrimSpace(sc.Text())
	}
	return ""
}

func (a *app) newSignUpCmd() *cobra.Command {
	var opts struct{ Email, Password, Name string }
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Password == "" {
				opts.Password = promptLine(cmd, "Password")
			}
			u, err := a.client.SignUp(cmd.Context(), opts.Email, opts.Password, opts.Name)
			if err != nil {
				return userError(err)
			}
			a.out.Info("Account created for %s. Check your email for a verification code, then run:", u.Email)
			a.out.Plain(fmt.Sprintf("  subspace verify --email %s --code <code>", u.Email))
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.Email, "email", "e", "", "Email address")
	cmd.Flags().StringVarP(&opts.Password, "password", "p", "", "Password (prompted when empty)")
	cmd.Flags().StringVarP(&opts.Name, "name", "n", "", "Display name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (a *app) newVerifyCmd() *cobra.Command {
	var opts struct {
		Email, Code string
		Resend      bool
	}
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify your email with the mailed code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Resend {
				if err := a.client.ResendVerification(cmd.Context(), opts.Email); err != nil {
					return userError(err)
				}
				a.out.Info("A new code is on its way to %s", opts.Email)
				return nil
			}
			if opts.Code == "" {
				opts.Code = promptLine(cmd, "Code")
			}
			s, err := a.client.VerifyEmail(cmd.Context(), opts.Email, opts.Code)
			if err != nil {
				return userError(err)
			}
			a.out.Info("Email verified. Welcome, %s!", s.DisplayName)
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.Email, "email", "e", "", "Email address")
	cmd.Flags().StringVarP(&opts.Code, "code", "c", "", "Verification code")
	cmd.Flags().BoolVar(&opts.Resend, "resend", false, "Mail a new code instead")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (a *app) newSignInCmd() *cobra.Command {
	var opts struct{ Email, Password string }
	cmd := &cobra.Command{
		Use:   "signin",
		Short: "Sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Password == "" {
				opts.Password = promptLine(cmd, "Password")
			}
			s, err := a.client.SignIn(cmd.Context(), opts.Email, opts.Password)
			if err != nil {
				return userError(err)
			}
			a.out.Info("Signed in as %s", s.Email)
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.Email, "email", "e", "", "Email address")
	cmd.Flags().StringVarP(&opts.Password, "password", "p", "", "Password (prompted when empty)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (a *app) newSignOutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "signout",
		Short: "Sign out and forget the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.client.SignOut(cmd.Context()); err != nil {
				a.out.Error("Server sign out failed: %s", common.MessageOf(err))
			}
			a.out.Info("Signed out")
			return nil
		},
	}
}

func (a *app) newResetCmd() *cobra.Command {
	var opts struct{ Email, Code, Password string }
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Reset your password",
		Long:  "Without --code a reset code is mailed. With --code the new password is set.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Code == "" {
				if err := a.client.RequestPasswordReset(cmd.Context(), opts.Email); err != nil {
					return userError(err)
				}
				a.out.Info("If an account exists for %s, a reset code has been sent.", opts.Email)
				return nil
			}
			if opts.Password == "" {
				opts.Password = promptLine(cmd, "New password")
			}
			if err := a.client.ConfirmPasswordReset(cmd.Context(), opts.Email, opts.Code, opts.Password); err != nil {
				return userError(err)
			}
			a.out.Info("Password updated. You can sign in now.")
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.Email, "email", "e", "", "Email address")
	cmd.Flags().StringVarP(&opts.Code, "code", "c", "", "Reset code from the mail")
	cmd.Flags().StringVarP(&opts.Password, "password", "p", "", "New password (prompted when empty)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (a *app) newWhoAmICmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !a.client.IsSignedIn() {
				return errNotSignedIn
			}
			u, err := a.client.Me(cmd.Context())
			if err != nil {
				return userError(err)
			}
			a.out.Plain(fmt.Sprintf("%s <%s> @%s, member since %s", u.DisplayName, u.Email, u.Username, u.CreatedAt.Local().Format("Jan 2, 2006")))
			return nil
		},
	}
}

func (a *app) newSharedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shared <token>",
		Short: "Read a public chat by its share token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conv, err := a.client.GetShared(cmd.Context(), args[0])
			if err != nil {
				return userError(err)
			}
			render := a.renderer(false)
			a.out.Title("%s", conv.Title)
			for _, m := range conv.Messages {
				if m.IsAssistant() {
					a.out.Plain(render(m.Content))
				} else {
					a.out.User(m.Content)
				}
			}
			return nil
		},
	}
}

func (a *app) newChatCmd() *cobra.Command {
	var opts struct {
		Responder string
		Model     string
	}
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open the interactive chat",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if !a.client.IsSignedIn() {
				return errNotSignedIn
			}
			if opts.Responder == "" {
				opts.Responder = a.cfg.BotResponder
			}
			rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
			responder, err := bot.NewDefaultRegistry(a.cfg, rnd).Get(ctx, opts.Responder, opts.Model)
			if err != nil {
				return err
			}

			light := false
			if p, err := a.client.GetProfile(ctx); err == nil {
				light = p.ThemePreference == models.ThemeLight
			}

			ctl := viewstate.New(a.client, a.client.Sessions(), responder, a.out, viewstate.Options{
				DelayMin: a.cfg.BotDelayMin,
				DelayMax: a.cfg.BotDelayMax,
				Rand:     rnd,
			})
			defer ctl.Close()

			repl := NewREPL(ctl, cmd.InOrStdin(), a.out)
			repl.Profiles = a.client
			repl.Watcher = a.client
			repl.Render = a.renderer(light)
			return repl.Run(ctx)
		},
	}
	cmd.Flags().StringVarP(&opts.Responder, "responder", "r", "", "Reply source: canned, ollama or openrouter")
	cmd.Flags().StringVarP(&opts.Model, "model", "m", "", "Model for LLM responders")
	return cmd
}

func (a *app) renderer(light bool) func(string) string {
	r, err := markdown.NewRenderer(80, !light)
	if err != nil {
		return func(s string) string { return s }
	}
	return r.Render
}

// Execute runs the root command and reports a failure on stderr.
func Execute(ctx context.Context, cfg config.Config) int {
	if err := NewRootCmd(cfg).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		return 1
	}
	return 0
}
