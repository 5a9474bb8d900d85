package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/appflight/appflight/internal/audit"
	"github.com/appflight/appflight/internal/secmem"
	"github.com/appflight/appflight/internal/session"
	"github.com/appflight/appflight/internal/store"
)

var (
	loginPassword string
	loginAuthCode string
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage store accounts",
}

var authLoginCmd = &cobra.Command{
	Use:   "login <email>",
	Short: "Sign in and store the session in the keyring",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp()
		if err != nil {
			fatal(err)
		}
		login(a, args[0])
	},
}

var authListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored accounts",
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp()
		if err != nil {
			fatal(err)
		}
		accounts := a.sessions.Accounts()
		if len(accounts) == 0 {
			fmt.Println("No accounts stored.")
			return
		}
		current, _ := a.sessions.Current()
		for i, acct := range accounts {
			marker := " "
			if acct.Email == current.Email {
				marker = "*"
			}
			fmt.Printf("%s %d  %s (%s, %s)\n", marker, i, acct.Email, acct.Name(), acct.Region)
		}
	},
}

var authSelectCmd = &cobra.Command{
	Use:   "select <index>",
	Short: "Select the active account",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp()
		if err != nil {
			fatal(err)
		}
		pos, err := strconv.Atoi(args[0])
		if err != nil {
			fatal(fmt.Errorf("index must be a number: %q", args[0]))
		}
		if err := a.sessions.Select(pos); err != nil {
			fatal(err)
		}
		acct, _ := a.sessions.Current()
		fmt.Printf("Active account: %s\n", acct.Email)
	},
}

var authRevokeCmd = &cobra.Command{
	Use:   "revoke [email]",
	Short: "Remove a stored account (default: the active one)",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp()
		if err != nil {
			fatal(err)
		}
		email := ""
		if len(args) == 1 {
			email = args[0]
		} else {
			acct, err := a.currentAccount()
			if err != nil {
				fatal(err)
			}
			email = acct.Email
		}
		if err := a.sessions.Remove(email); err != nil {
			fatal(err)
		}
		a.trail.Log(audit.EventAccountRemoved, email, nil)
		fmt.Printf("Removed account %s\n", email)
	},
}

var authRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Validate and refresh the active session token",
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp()
		if err != nil {
			fatal(err)
		}
		acct, err := a.currentAccount()
		if err != nil {
			fatal(err)
		}
		refreshed, err := a.sessions.Refresh(cmd.Context(), acct)
		if errors.Is(err, session.ErrReauthRequired) {
			fatal(fmt.Errorf("session for %s expired, run 'appflight auth login %s'", acct.Email, acct.Email))
		}
		if err != nil {
			fatal(err)
		}
		fmt.Printf("Session for %s is valid.\n", refreshed.Email)
	},
}

func init() {
	authLoginCmd.Flags().StringVar(&loginPassword, "password", "", "account password (prompted when omitted)")
	authLoginCmd.Flags().StringVar(&loginAuthCode, "auth-code", "", "two-factor code, when the account requires one")

	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authListCmd)
	authCmd.AddCommand(authSelectCmd)
	authCmd.AddCommand(authRevokeCmd)
	authCmd.AddCommand(authRefreshCmd)
	rootCmd.AddCommand(authCmd)
}

func login(a *app, email string) {
	password := secmem.NewSecureString(loginPassword)
	loginPassword = ""
	if password.IsZeroed() || password.Reveal() == "" {
		p, err := promptPassword(fmt.Sprintf("Password for %s: ", email))
		if err != nil {
			fatal(err)
		}
		password = p
	}
	defer password.Zero()

	acct, err := a.sessions.Authenticate(context.Background(), email, password.Reveal(), loginAuthCode)
	if errors.Is(err, store.ErrAuthCodeRequired) {
		code, perr := promptLine("Two-factor code: ")
		if perr != nil {
			fatal(perr)
		}
		acct, err = a.sessions.Authenticate(context.Background(), email, password.Reveal(), code)
	}
	if err != nil {
		fatal(err)
	}

	a.trail.Log(audit.EventSignIn, acct.Email, map[string]any{"region": acct.Region})
	fmt.Printf("Signed in as %s (%s)\n", acct.Email, acct.Name())
}

func promptPassword(prompt string) (*secmem.SecureString, error) {
	fmt.Fprint(os.Stderr, prompt)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("read password: %w", err)
	}
	s := secmem.NewSecureString(string(raw))
	for i := range raw {
		raw[i] = 0
	}
	return s, nil
}

func promptLine(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}
