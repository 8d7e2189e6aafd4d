package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/2beens/healthtracker/internal/kvstore"
	"github.com/2beens/healthtracker/internal/session"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"golang.org/x/term"
)

// replaced in tests, the prompt needs a real terminal otherwise
var readPassword = term.ReadPassword

type storeOptions struct {
	dbPath     string
	scheme     string
	bcryptCost int
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &storeOptions{}

	root := &cobra.Command{
		Use:           "healthctl",
		Short:         "Manage local healthtracker accounts and the signed in session",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.dbPath, "db", "./healthtracker.db", "bolt database file")
	root.PersistentFlags().StringVar(&opts.scheme, "scheme", session.CredentialSchemeBcrypt, "credential scheme for new secrets: bcrypt|plain")
	root.PersistentFlags().IntVar(&opts.bcryptCost, "bcrypt-cost", 0, "bcrypt cost, 0 for the library default")

	root.AddCommand(newRegisterCmd(opts))
	root.AddCommand(newLoginCmd(opts))
	root.AddCommand(newLogoutCmd(opts))
	root.AddCommand(newWhoamiCmd(opts))
	root.AddCommand(newUpdateProfileCmd(opts))
	return root
}

// withManager opens the store, restores the session and hands an initialized manager to fn.
func withManager(ctx context.Context, opts *storeOptions, fn func(*session.Manager) error) (err error) {
	hasher, err := session.NewHasher(opts.scheme, opts.bcryptCost)
	if err != nil {
		return err
	}

	store, err := kvstore.OpenBolt(opts.dbPath)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, store.Close())
	}()

	manager := session.NewManager(store, hasher)
	if err := manager.Initialize(ctx); err != nil {
		return err
	}
	return fn(manager)
}

func promptPassword(w io.Writer, prompt string) (string, error) {
	if _, err := fmt.Fprint(w, prompt); err != nil {
		return "", err
	}
	pw, err := readPassword(int(os.Stdin.Fd()))
	_, _ = fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pw), nil
}

func printSession(w io.Writer, s session.Session) {
	_, _ = fmt.Fprintf(w, "email:          %s\n", s.Email)
	_, _ = fmt.Fprintf(w, "name:           %s\n", s.FullName)
	if s.ProfilePictureRef != nil {
		_, _ = fmt.Fprintf(w, "picture:        %s\n", *s.ProfilePictureRef)
	}
	_, _ = fmt.Fprintf(w, "weight:         %g\n", s.CurrentWeight)
	_, _ = fmt.Fprintf(w, "calorie goal:   %d\n", s.DailyCalorieGoal)
	_, _ = fmt.Fprintf(w, "water goal:     %d\n", s.DailyWaterGoal)
	_, _ = fmt.Fprintf(w, "fitness level:  %s\n", s.FitnessLevel)
	_, _ = fmt.Fprintf(w, "member since:   %s\n", s.CreatedAt.Format("2006-01-02"))
}

func newRegisterCmd(opts *storeOptions) *cobra.Command {
	var email, fullName, picture string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a local account and sign it in",
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := promptPassword(cmd.ErrOrStderr(), "Password: ")
			if err != nil {
				return err
			}
			confirm, err := promptPassword(cmd.ErrOrStderr(), "Confirm password: ")
			if err != nil {
				return err
			}

			req := session.RegisterRequest{
				Email:           strings.TrimSpace(email),
				Password:        password,
				ConfirmPassword: confirm,
				FullName:        fullName,
			}
			if picture != "" {
				req.ProfilePictureRef = &picture
			}
			if err := req.Validate(); err != nil {
				return err
			}

			return withManager(cmd.Context(), opts, func(manager *session.Manager) error {
				s, err := manager.Register(cmd.Context(), req)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "registered %s (password strength: %s)\n", s.Email, session.StrengthOf(password))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&fullName, "name", "", "full name")
	cmd.Flags().StringVar(&picture, "picture", "", "profile picture reference (optional)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newLoginCmd(opts *storeOptions) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to an existing local account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := promptPassword(cmd.ErrOrStderr(), "Password: ")
			if err != nil {
				return err
			}

			return withManager(cmd.Context(), opts, func(manager *session.Manager) error {
				s, err := manager.Authenticate(cmd.Context(), strings.TrimSpace(email), password)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "signed in as %s\n", s.Email)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newLogoutCmd(opts *storeOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out of the current session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withManager(cmd.Context(), opts, func(manager *session.Manager) error {
				if err := manager.SignOut(cmd.Context()); err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "signed out")
				return nil
			})
		},
	}
}

func newWhoamiCmd(opts *storeOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed in account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withManager(cmd.Context(), opts, func(manager *session.Manager) error {
				s, ok := manager.CurrentSession()
				if !ok {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "not signed in")
					return nil
				}
				printSession(cmd.OutOrStdout(), s)
				return nil
			})
		},
	}
}

func newUpdateProfileCmd(opts *storeOptions) *cobra.Command {
	var (
		fullName     string
		picture      string
		weight       float64
		calorieGoal  int
		waterGoal    int
		fitnessLevel string
	)

	cmd := &cobra.Command{
		Use:   "update-profile",
		Short: "Change profile fields of the signed in account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			update := session.ProfileUpdate{}
			if flags.Changed("name") {
				update.FullName = &fullName
			}
			if flags.Changed("picture") {
				update.ProfilePictureRef = &picture
			}
			if flags.Changed("weight") {
				update.CurrentWeight = &weight
			}
			if flags.Changed("calorie-goal") {
				update.DailyCalorieGoal = &calorieGoal
			}
			if flags.Changed("water-goal") {
				update.DailyWaterGoal = &waterGoal
			}
			if flags.Changed("fitness-level") {
				level := session.FitnessLevel(fitnessLevel)
				update.FitnessLevel = &level
			}
			if err := update.Validate(); err != nil {
				return err
			}

			return withManager(cmd.Context(), opts, func(manager *session.Manager) error {
				s, err := manager.UpdateProfile(cmd.Context(), update)
				if err != nil {
					return err
				}
				printSession(cmd.OutOrStdout(), s)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&fullName, "name", "", "full name")
	cmd.Flags().StringVar(&picture, "picture", "", "profile picture reference, empty to remove it")
	cmd.Flags().Float64Var(&weight, "weight", 0, "current weight")
	cmd.Flags().IntVar(&calorieGoal, "calorie-goal", 0, "daily calorie goal")
	cmd.Flags().IntVar(&waterGoal, "water-goal", 0, "daily water goal (glasses)")
	cmd.Flags().StringVar(&fitnessLevel, "fitness-level", "", "beginner|intermediate|advanced")
	return cmd
}
