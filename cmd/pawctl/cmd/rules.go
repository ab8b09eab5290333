package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/pawwatch/internal/alerting"
	"github.com/good-yellow-bee/pawwatch/internal/models"
	"github.com/good-yellow-bee/pawwatch/internal/storage"
)

var (
	rulesUser string
	rulesPet  string
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage alert rules",
	Long:  `Commands for listing, importing and enabling alert rules.`,
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List alert rules",
	Long: `List all alert rules, or the rules of one user with --user.

Examples:
  pawctl rules list
  pawctl rules list --user user-42 -o json`,
	RunE: runRulesList,
}

var rulesImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import alert rules from a YAML file",
	Long: `Import alert rules from a YAML file for a user.

Every rule is validated before any is stored. --pet scopes rules without a
pet_id to one pet.

Examples:
  pawctl rules import rules.yaml --user user-42`,
	Args: cobra.ExactArgs(1),
	RunE: runRulesImport,
}

var rulesBootstrapCmd = &cobra.Command{
	Use:   "bootstrap <user-id>",
	Short: "Create the default rules for a user",
	Args:  cobra.ExactArgs(1),
	RunE:  runRulesBootstrap,
}

var rulesEnableCmd = &cobra.Command{
	Use:   "enable <rule-id>",
	Short: "Activate a rule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setRuleActive(cmd, args[0], true)
	},
}

var rulesDisableCmd = &cobra.Command{
	Use:   "disable <rule-id>",
	Short: "Deactivate a rule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setRuleActive(cmd, args[0], false)
	},
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesListCmd, rulesImportCmd, rulesBootstrapCmd, rulesEnableCmd, rulesDisableCmd)

	rulesListCmd.Flags().StringVar(&rulesUser, "user", "", "only list rules of this user")
	rulesImportCmd.Flags().StringVar(&rulesUser, "user", "", "owner of the imported rules (required)")
	rulesImportCmd.Flags().StringVar(&rulesPet, "pet", "", "pet scope for rules without pet_id")
	rulesImportCmd.MarkFlagRequired("user")
}

func runRulesList(cmd *cobra.Command, args []string) error {
	store, err := openDatabase(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	var rules []*models.AlertRule
	if rulesUser != "" {
		rules, err = store.Rules().ListByUser(ctx, rulesUser)
	} else {
		rules, err = store.Rules().List(ctx)
	}
	if err != nil {
		return fmt.Errorf("list rules: %w", err)
	}

	return printRules(cmd.OutOrStdout(), rules)
}

func runRulesImport(cmd *cobra.Command, args []string) error {
	rules, err := alerting.LoadRulesFromFile(args[0], rulesUser)
	if err != nil {
		return err
	}
	if rulesPet != "" {
		for _, r := range rules {
			if r.PetID == "" {
				r.PetID = rulesPet
			}
		}
	}

	store, err := openDatabase(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := createRules(context.Background(), store, rulesUser, rules); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d rule(s) for %s\n", len(rules), rulesUser)
	return printRules(cmd.OutOrStdout(), rules)
}

func runRulesBootstrap(cmd *cobra.Command, args []string) error {
	userID := args[0]

	store, err := openDatabase(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	rules := alerting.DefaultRules(userID)
	if err := createRules(context.Background(), store, userID, rules); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created %d default rule(s) for %s\n", len(rules), userID)
	return printRules(cmd.OutOrStdout(), rules)
}

// createRules stores rules after checking that the owner and any scoped pets
// exist.
func createRules(ctx context.Context, store storage.Storage, userID string, rules []*models.AlertRule) error {
	if _, err := store.Users().GetByID(ctx, userID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("user not found: %s", userID)
		}
		return fmt.Errorf("look up user: %w", err)
	}

	for _, r := range rules {
		if r.PetID == "" {
			continue
		}
		pet, err := store.Pets().GetByID(ctx, r.PetID)
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("rule %q: pet not found: %s", r.Name, r.PetID)
		}
		if err != nil {
			return fmt.Errorf("look up pet: %w", err)
		}
		if pet.UserID != userID {
			return fmt.Errorf("rule %q: pet %s is not owned by %s", r.Name, r.PetID, userID)
		}
	}

	for _, r := range rules {
		if err := store.Rules().Create(ctx, r); err != nil {
			return fmt.Errorf("create rule %q: %w", r.Name, err)
		}
	}
	return nil
}

func setRuleActive(cmd *cobra.Command, id string, active bool) error {
	store, err := openDatabase(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Rules().SetActive(context.Background(), id, active); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("rule not found: %s", id)
		}
		return fmt.Errorf("update rule: %w", err)
	}

	state := "disabled"
	if active {
		state = "enabled"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Rule %s %s\n", id, state)
	return nil
}

func printRules(w io.Writer, rules []*models.AlertRule) error {
	switch GetOutput() {
	case "json":
		if rules == nil {
			rules = []*models.AlertRule{}
		}
		return printJSON(w, rules)
	case "plain":
		for _, r := range rules {
			fmt.Fprintf(w, "%s %s %t %s\n", r.ID, r.UserID, r.IsActive, r.Name)
		}
		return nil
	}

	if len(rules) == 0 {
		fmt.Fprintln(w, "No rules found.")
		return nil
	}

	tw := newTable(w, "ID", "USER", "PET", "NAME", "ACTIVE", "TYPES", "FIRED")
	for _, r := range rules {
		pet := r.PetID
		if pet == "" {
			pet = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
			r.ID, r.UserID, pet, truncate(r.Name, 30), yesNo(r.IsActive),
			joinTypes(r.Triggers.AnomalyTypes), r.Stats.TotalTriggered)
	}
	return tw.Flush()
}

func joinTypes(types []models.AnomalyType) string {
	if len(types) == 0 {
		return "-"
	}
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = string(t)
	}
	return strings.Join(parts, ",")
}
