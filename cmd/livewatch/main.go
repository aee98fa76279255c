package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "Erreur:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &client{}

	root := &cobra.Command{
		Use:           "livewatch",
		Short:         "Client du serveur livewatch",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&c.baseURL, "server", envOr("LIVEWATCH_SERVER_URL", "http://127.0.0.1:8080"), "URL du serveur")
	root.PersistentFlags().DurationVar(&c.timeout, "timeout", 10*time.Minute, "Timeout HTTP")

	root.AddCommand(simpleGet(c, "health", "Vérifie que le serveur répond", "/api/v1/health"))
	root.AddCommand(simpleGet(c, "version", "Affiche la version du serveur", "/api/v1/version"))
	root.AddCommand(simpleGet(c, "live", "Liste les sessions en cours", "/api/v1/live"))
	root.AddCommand(newPollCmd(c))
	root.AddCommand(newAccountsCmd(c))
	root.AddCommand(newSettingsCmd(c))
	return root
}

func simpleGet(c *client, use, short, path string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.do(cmd.Context(), "GET", path, nil, cmd.OutOrStdout())
		},
	}
}

func newPollCmd(c *client) *cobra.Command {
	return &cobra.Command{
		Use:   "poll",
		Short: "Déclenche un passage de polling",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.do(cmd.Context(), "POST", "/api/v1/poll/run", nil, cmd.OutOrStdout())
		},
	}
}

func newAccountsCmd(c *client) *cobra.Command {
	accounts := &cobra.Command{Use: "accounts", Short: "Gère les comptes surveillés"}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "Liste les comptes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.do(cmd.Context(), "GET", fmt.Sprintf("/api/v1/accounts?limit=%d", limit), nil, cmd.OutOrStdout())
		},
	}
	list.Flags().IntVar(&limit, "limit", 100, "Nombre max de comptes")

	var username string
	add := &cobra.Command{
		Use:   "add <platform> <platform-user-id>",
		Short: "Ajoute un compte (twitch, youtube, kick, ...)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]string{
				"platform":         args[0],
				"platformUserId":   args[1],
				"platformUsername": username,
			}
			return c.do(cmd.Context(), "POST", "/api/v1/accounts", body, cmd.OutOrStdout())
		},
	}
	add.Flags().StringVar(&username, "username", "", "Nom d'utilisateur (slug Kick, login Twitch)")

	accounts.AddCommand(list, add,
		setEnabledCmd(c, "enable", true),
		setEnabledCmd(c, "disable", false),
		accountSubGet(c, "sessions", "Historique des sessions d'un compte"),
		accountSubGet(c, "events", "Journal des événements d'un compte"),
	)
	return accounts
}

func setEnabledCmd(c *client, use string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <account-id>",
		Short: "Active ou désactive la surveillance d'un compte",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]bool{"enabled": enabled}
			return c.do(cmd.Context(), "PUT", "/api/v1/accounts/"+args[0]+"/enabled", body, cmd.OutOrStdout())
		},
	}
}

func accountSubGet(c *client, use, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <account-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.do(cmd.Context(), "GET", "/api/v1/accounts/"+args[0]+"/"+use, nil, cmd.OutOrStdout())
		},
	}
}

func newSettingsCmd(c *client) *cobra.Command {
	settings := &cobra.Command{
		Use:   "settings",
		Short: "Affiche les réglages de polling",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.do(cmd.Context(), "GET", "/api/v1/settings", nil, cmd.OutOrStdout())
		},
	}

	var batchSize, concurrency int
	set := &cobra.Command{
		Use:   "set",
		Short: "Modifie les réglages (seuls les flags fournis changent)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			body := map[string]int{}
			if cmd.Flags().Changed("batch-size") {
				body["batchSize"] = batchSize
			}
			if cmd.Flags().Changed("concurrency") {
				body["accountConcurrency"] = concurrency
			}
			if len(body) == 0 {
				return fmt.Errorf("aucun réglage fourni")
			}
			return c.do(cmd.Context(), "PUT", "/api/v1/settings", body, cmd.OutOrStdout())
		},
	}
	set.Flags().IntVar(&batchSize, "batch-size", 0, "Nombre max de comptes par passage")
	set.Flags().IntVar(&concurrency, "concurrency", 0, "Comptes réconciliés en parallèle")
	settings.AddCommand(set)
	return settings
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
