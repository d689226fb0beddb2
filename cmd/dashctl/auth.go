package main

import (
	"errors"
	"fmt"

	"microsight/dashboard-service/internal/auth"
	"microsight/dashboard-service/internal/models"

	"github.com/spf13/cobra"
)

type resultOutput struct {
	Status  string `json:"status" yaml:"status"`
	Message string `json:"message" yaml:"message"`
	Email   string `json:"email,omitempty" yaml:"email,omitempty"`
	Name    string `json:"name,omitempty" yaml:"name,omitempty"`
	Role    string `json:"role,omitempty" yaml:"role,omitempty"`
	Next    string `json:"next,omitempty" yaml:"next,omitempty"`
}

func (a *app) loginCmd() *cobra.Command {
	var in auth.LoginInput
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		Long: `Sign in with email and password. Without --role the role is
inferred from the email address.

Examples:
  dashctl login --email admin@lab.example --password hunter22
  dashctl login --email kim@lab.example --password hunter22 --role analyst`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := a.auth.Login(cmd.Context(), in)
			return a.finish(cmd, result, err)
		},
	}
	cmd.Flags().StringVar(&in.Identifier, "email", "", "Email address")
	cmd.Flags().StringVar(&in.Secret, "password", "", "Password")
	cmd.Flags().StringVar(&in.RequestedRole, "role", "", "Role to sign in as (user, researcher, admin)")
	return cmd
}

func (a *app) signupCmd() *cobra.Command {
	var in auth.SignupInput
	var profile models.Profile
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("confirm-password") {
				in.ConfirmSecret = in.Secret
			}
			in.Profile = profile
			result, err := a.auth.Signup(cmd.Context(), in)
			return a.finish(cmd, result, err)
		},
	}
	f := cmd.Flags()
	f.StringVar(&in.Email, "email", "", "Email address")
	f.StringVar(&in.Secret, "password", "", "Password (at least 8 characters)")
	f.StringVar(&in.ConfirmSecret, "confirm-password", "", "Password confirmation (defaults to --password)")
	f.StringVar(&in.FirstName, "first-name", "", "First name")
	f.StringVar(&in.LastName, "last-name", "", "Last name")
	f.StringVar(&in.Role, "role", "user", "Role (user, researcher, admin)")
	f.StringVar(&profile.StaffID, "staff-id", "", "Staff id")
	f.StringVar(&profile.Department, "department", "", "Department")
	f.StringVar(&profile.Position, "position", "", "Position")
	f.StringVar(&profile.Institution, "institution", "", "Institution")
	return cmd
}

func (a *app) googleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "google",
		Short: "Sign in with the demo Google identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := a.auth.LoginWithGoogle(cmd.Context())
			return a.finish(cmd, result, err)
		},
	}
}

func (a *app) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and clear stored session data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := a.auth.Logout(cmd.Context())
			return a.finish(cmd, result, err)
		},
	}
}

type whoamiOutput struct {
	Authenticated bool           `json:"authenticated" yaml:"authenticated"`
	UserID        string         `json:"user_id,omitempty" yaml:"user_id,omitempty"`
	Email         string         `json:"email,omitempty" yaml:"email,omitempty"`
	Name          string         `json:"name,omitempty" yaml:"name,omitempty"`
	Role          string         `json:"role,omitempty" yaml:"role,omitempty"`
	Profile       models.Profile `json:"profile,omitempty" yaml:"profile,omitempty"`
}

func (a *app) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, ok := a.sessions.Get()
			out := whoamiOutput{Authenticated: ok}
			if ok {
				out.UserID = sess.UserID
				out.Email = sess.Email
				out.Name = sess.DisplayName
				out.Role = string(sess.Role)
				out.Profile = sess.Profile
			}
			if done, err := a.emit(cmd.OutOrStdout(), out); done {
				return err
			}

			w := cmd.OutOrStdout()
			if !ok {
				fmt.Fprintln(w, "Not signed in.")
				return nil
			}
			fmt.Fprintf(w, "%s <%s>\n", out.Name, out.Email)
			fmt.Fprintf(w, "Role: %s\n", out.Role)
			if !sess.Profile.IsZero() {
				fmt.Fprintf(w, "Institution: %s\n", sess.Profile.Institution)
			}
			return nil
		},
	}
}

// finish prints an operation result. A failed operation becomes the command
// error carrying the message meant for the user.
func (a *app) finish(cmd *cobra.Command, result auth.Result, err error) error {
	if err != nil {
		if !result.Notice.IsZero() {
			return errors.New(result.Notice.Message)
		}
		return err
	}
	out := resultOutput{
		Status:  string(result.Notice.Level),
		Message: result.Notice.Message,
		Email:   result.Session.Email,
		Name:    result.Session.DisplayName,
		Role:    string(result.Session.Role),
		Next:    result.Navigation.To,
	}
	if done, err := a.emit(cmd.OutOrStdout(), out); done {
		return err
	}
	w := cmd.OutOrStdout()
	fmt.Fprintln(w, out.Message)
	if out.Role != "" {
		fmt.Fprintf(w, "Signed in as %s (%s)\n", out.Email, out.Role)
	}
	if out.Next != "" {
		fmt.Fprintf(w, "Next: %s\n", out.Next)
	}
	return nil
}
