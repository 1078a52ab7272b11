package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/adstia/call-tagging/internal/classifier"
	"github.com/adstia/call-tagging/internal/model"
)

var promptsCampaign string

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "Manage campaign system prompts",
}

var promptsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List prompt versions",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("migrate"); err != nil {
			return err
		}
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		prompts, err := st.ListPrompts(cmd.Context(), promptsCampaign)
		if err != nil {
			return err
		}
		if len(prompts) == 0 {
			fmt.Println("no prompts found")
			return nil
		}
		for _, p := range prompts {
			active := " "
			if p.Active {
				active = "*"
			}
			fmt.Printf("%s %-36s  %-16s %-8s %6d chars  %s\n",
				active, p.ID, p.CampaignID, p.Version, p.PromptChars, p.CreatedAt.Format("2006-01-02"))
		}
		return nil
	},
}

var promptsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a prompt body",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("migrate"); err != nil {
			return err
		}
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		p, err := st.GetPrompt(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if p == nil {
			return eris.Errorf("prompt not found: %s", args[0])
		}
		fmt.Printf("# %s (%s, version %s, active=%t)\n\n%s\n", p.ID, p.CampaignID, p.Version, p.Active, p.SystemPrompt)
		return nil
	},
}

// promptFile is the YAML shape accepted by `prompts create`.
type promptFile struct {
	CampaignID   string `yaml:"campaign_id"`
	CampaignName string `yaml:"campaign_name"`
	Version      string `yaml:"version"`
	SystemPrompt string `yaml:"system_prompt"`
	Notes        string `yaml:"notes"`
}

var promptsCreateCmd = &cobra.Command{
	Use:   "create <file.yaml>",
	Short: "Create a new prompt version from a YAML file (deactivates the prior version)",
	Long:  "Reads campaign_id, campaign_name, version, system_prompt and notes from a YAML file. A file without a system_prompt gets the built-in default prompt.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("migrate"); err != nil {
			return err
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrapf(err, "read prompt file %s", args[0])
		}
		var pf promptFile
		if err := yaml.Unmarshal(data, &pf); err != nil {
			return eris.Wrapf(err, "parse prompt file %s", args[0])
		}
		if pf.SystemPrompt == "" {
			pf.SystemPrompt = classifier.DefaultSystemPrompt
		}

		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		p, err := st.CreatePromptVersion(cmd.Context(), model.Prompt{
			CampaignID:   pf.CampaignID,
			CampaignName: pf.CampaignName,
			Version:      pf.Version,
			SystemPrompt: pf.SystemPrompt,
			Notes:        pf.Notes,
		})
		if err != nil {
			return err
		}
		fmt.Printf("created prompt %s for campaign %s (version %s)\n", p.ID, p.CampaignID, p.Version)
		return nil
	},
}

var promptsDeactivateCmd = &cobra.Command{
	Use:   "deactivate <id>",
	Short: "Deactivate a prompt version",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("migrate"); err != nil {
			return err
		}
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.DeactivatePrompt(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("deactivated prompt %s\n", args[0])
		return nil
	},
}

func init() {
	promptsListCmd.Flags().StringVar(&promptsCampaign, "campaign", "", "filter by campaign id")
	promptsCmd.AddCommand(promptsListCmd, promptsShowCmd, promptsCreateCmd, promptsDeactivateCmd)
	rootCmd.AddCommand(promptsCmd)
}
