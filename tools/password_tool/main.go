// Command password_tool sets the bcrypt password hash of the admin or
// viewer API account in the agent configuration file.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"mibagent/internal/config"
	"mibagent/internal/middleware"

	"golang.org/x/term"
)

const minPasswordLength = 8

func main() {
	configPath := flag.String("config", config.DefaultFile, "Path to mibagent.config")
	account := flag.String("account", "admin", "Account to update: admin (read-write) or viewer (read-only)")
	username := flag.String("username", "", "Username for the account (defaults to the current one)")
	password := flag.String("password", "", "New password (leave blank to type securely)")
	flag.Parse()

	cfg, _, err := config.Load(strings.TrimSpace(*configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	pwd, err := resolvePassword(*password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "password error: %v\n", err)
		os.Exit(1)
	}
	hash, err := middleware.HashPassword(pwd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to hash password: %v\n", err)
		os.Exit(1)
	}

	if err := setAccount(cfg, *account, *username, hash); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := cfg.Save(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to save config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Updated %s account in %s\n", *account, cfg.Path())
}

// setAccount stores hash on the named account, renaming it when username
// is given.
func setAccount(cfg *config.Config, account, username, hash string) error {
	var target *config.Account
	switch strings.ToLower(strings.TrimSpace(account)) {
	case "admin":
		target = &cfg.Admin
	case "viewer":
		target = &cfg.Viewer
	default:
		return fmt.Errorf("unknown account %q (want admin or viewer)", account)
	}
	if name := strings.TrimSpace(username); name != "" {
		target.Username = name
	}
	if target.Username == "" {
		return errors.New("username cannot be empty")
	}
	target.PasswordHash = hash
	return nil
}

func resolvePassword(input string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed != "" {
		if len(trimmed) < minPasswordLength {
			return "", fmt.Errorf("password must be at least %d characters", minPasswordLength)
		}
		return trimmed, nil
	}

	first, err := promptPassword("Enter new password: ")
	if err != nil {
		return "", err
	}
	second, err := promptPassword("Confirm password: ")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", errors.New("passwords do not match")
	}
	if len(first) < minPasswordLength {
		return "", fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}
	return first, nil
}

func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		bytes, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(bytes)), nil
	}

	reader := bufio.NewReader(os.Stdin)
	text, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}
